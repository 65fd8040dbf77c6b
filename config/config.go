package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Audio output configuration
	Audio AudioConfig `mapstructure:"audio"`

	// Playback policy configuration
	Playback PlaybackConfig `mapstructure:"playback"`

	// Spectrum analysis configuration
	Analysis AnalysisConfig `mapstructure:"analysis"`

	// Track library configuration
	Library LibraryConfig `mapstructure:"library"`

	// Wake lock configuration
	WakeLock WakeLockConfig `mapstructure:"wakelock"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// AudioConfig holds output device and buffer pump configuration
type AudioConfig struct {
	Backend        string        `mapstructure:"backend"` // speaker, oto or null
	SampleRate     int           `mapstructure:"sample_rate"`
	BlockSize      int           `mapstructure:"block_size"`
	BatchCount     int           `mapstructure:"batch_count"`
	BufferSize     time.Duration `mapstructure:"buffer_size"`
	LowWaterBlocks int           `mapstructure:"low_water_blocks"`
	Volume         float64       `mapstructure:"volume"`
}

// PlaybackConfig holds the track lifecycle timings and loop policy
type PlaybackConfig struct {
	LoopCount    int           `mapstructure:"loop_count"`
	RearmWindow  time.Duration `mapstructure:"rearm_window"`
	AdvanceDelay time.Duration `mapstructure:"advance_delay"`
	SettleDelay  time.Duration `mapstructure:"settle_delay"`
}

// AnalysisConfig holds the spectrum analyser settings
type AnalysisConfig struct {
	FFTSize     int           `mapstructure:"fft_size"`
	Smoothing   float64       `mapstructure:"smoothing"`
	Interval    time.Duration `mapstructure:"interval"`
	MinDecibels float64       `mapstructure:"min_decibels"`
	MaxDecibels float64       `mapstructure:"max_decibels"`
}

// LibraryConfig holds archive ingestion settings
type LibraryConfig struct {
	Extensions []string `mapstructure:"extensions"`
}

// WakeLockConfig holds wake lock settings
type WakeLockConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
}

// SetDefaults registers the default value of every key
func SetDefaults(v *viper.Viper) {
	v.SetDefault("audio.backend", "speaker")
	v.SetDefault("audio.sample_rate", 44100)
	v.SetDefault("audio.block_size", 4096)
	v.SetDefault("audio.batch_count", 4)
	v.SetDefault("audio.buffer_size", "100ms")
	v.SetDefault("audio.low_water_blocks", 2)
	v.SetDefault("audio.volume", 0)
	v.SetDefault("playback.loop_count", 2)
	v.SetDefault("playback.rearm_window", "800ms")
	v.SetDefault("playback.advance_delay", "500ms")
	v.SetDefault("playback.settle_delay", "100ms")
	v.SetDefault("analysis.fft_size", 256)
	v.SetDefault("analysis.smoothing", 0.8)
	v.SetDefault("analysis.interval", "16ms")
	v.SetDefault("analysis.min_decibels", -100)
	v.SetDefault("analysis.max_decibels", -30)
	v.SetDefault("library.extensions", []string{".mp3", ".wav", ".flac", ".ogg"})
	v.SetDefault("wakelock.enabled", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig() (*Config, error) {
	return Load(viper.GetViper())
}

// Load loads configuration into the given viper instance
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	// Read config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.bitbox")
	v.AddConfigPath("/etc/bitbox")

	// Allow environment variables
	v.SetEnvPrefix("BITBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		slog.Debug("No config file found, using defaults and environment variables")
	} else {
		slog.Info("Using config file", slog.String("file", v.ConfigFileUsed()))
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Audio.Backend {
	case "speaker", "oto", "null":
	default:
		return &ConfigError{Field: "audio.backend", Message: "must be one of speaker, oto, null"}
	}
	if c.Audio.SampleRate <= 0 {
		return &ConfigError{Field: "audio.sample_rate", Message: "sample rate must be positive"}
	}
	if c.Audio.BlockSize <= 0 || c.Audio.BlockSize&(c.Audio.BlockSize-1) != 0 {
		return &ConfigError{Field: "audio.block_size", Message: "block size must be a power of two"}
	}
	if c.Audio.BatchCount <= 0 {
		return &ConfigError{Field: "audio.batch_count", Message: "batch count must be positive"}
	}
	if c.Audio.LowWaterBlocks <= 0 {
		return &ConfigError{Field: "audio.low_water_blocks", Message: "low water mark must be positive"}
	}
	if c.Playback.LoopCount < 1 {
		return &ConfigError{Field: "playback.loop_count", Message: "loop count must be at least 1"}
	}
	if c.Playback.RearmWindow < 0 || c.Playback.AdvanceDelay < 0 || c.Playback.SettleDelay < 0 {
		return &ConfigError{Field: "playback", Message: "delays must not be negative"}
	}
	if n := c.Analysis.FFTSize; n < 32 || n&(n-1) != 0 {
		return &ConfigError{Field: "analysis.fft_size", Message: "fft size must be a power of two >= 32"}
	}
	if c.Analysis.Smoothing < 0 || c.Analysis.Smoothing >= 1 {
		return &ConfigError{Field: "analysis.smoothing", Message: "smoothing must be in [0, 1)"}
	}
	if c.Analysis.MinDecibels >= c.Analysis.MaxDecibels {
		return &ConfigError{Field: "analysis.min_decibels", Message: "min decibels must be below max decibels"}
	}
	if c.Analysis.Interval <= 0 {
		return &ConfigError{Field: "analysis.interval", Message: "interval must be positive"}
	}
	if len(c.Library.Extensions) == 0 {
		return &ConfigError{Field: "library.extensions", Message: "at least one track extension is required"}
	}
	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
