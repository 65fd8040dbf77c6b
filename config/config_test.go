package config

import (
	"errors"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load(viper.New())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg := validConfig(t)

	if cfg.Audio.Backend != "speaker" {
		t.Errorf("Audio.Backend = %q, want speaker", cfg.Audio.Backend)
	}
	if cfg.Audio.SampleRate != 44100 {
		t.Errorf("Audio.SampleRate = %d, want 44100", cfg.Audio.SampleRate)
	}
	if cfg.Audio.BlockSize != 4096 {
		t.Errorf("Audio.BlockSize = %d, want 4096", cfg.Audio.BlockSize)
	}
	if cfg.Audio.BatchCount != 4 {
		t.Errorf("Audio.BatchCount = %d, want 4", cfg.Audio.BatchCount)
	}
	if cfg.Playback.LoopCount != 2 {
		t.Errorf("Playback.LoopCount = %d, want 2", cfg.Playback.LoopCount)
	}
	if cfg.Playback.RearmWindow != 800*time.Millisecond {
		t.Errorf("Playback.RearmWindow = %v, want 800ms", cfg.Playback.RearmWindow)
	}
	if cfg.Playback.AdvanceDelay != 500*time.Millisecond {
		t.Errorf("Playback.AdvanceDelay = %v, want 500ms", cfg.Playback.AdvanceDelay)
	}
	if cfg.Playback.SettleDelay != 100*time.Millisecond {
		t.Errorf("Playback.SettleDelay = %v, want 100ms", cfg.Playback.SettleDelay)
	}
	if cfg.Analysis.FFTSize != 256 {
		t.Errorf("Analysis.FFTSize = %d, want 256", cfg.Analysis.FFTSize)
	}
	if len(cfg.Library.Extensions) != 4 {
		t.Errorf("Library.Extensions = %v, want 4 defaults", cfg.Library.Extensions)
	}
	if !cfg.WakeLock.Enabled {
		t.Error("WakeLock.Enabled = false, want true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BITBOX_AUDIO_BACKEND", "null")
	t.Setenv("BITBOX_PLAYBACK_LOOP_COUNT", "3")
	t.Setenv("BITBOX_PLAYBACK_SETTLE_DELAY", "250ms")
	t.Setenv("BITBOX_LOGGING_LEVEL", "debug")

	cfg := validConfig(t)

	if cfg.Audio.Backend != "null" {
		t.Errorf("Audio.Backend = %q, want env override", cfg.Audio.Backend)
	}
	if cfg.Playback.LoopCount != 3 {
		t.Errorf("Playback.LoopCount = %d, want 3", cfg.Playback.LoopCount)
	}
	if cfg.Playback.SettleDelay != 250*time.Millisecond {
		t.Errorf("Playback.SettleDelay = %v, want 250ms", cfg.Playback.SettleDelay)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "unknown backend", mutate: func(c *Config) { c.Audio.Backend = "alsa" }, wantErr: "audio.backend"},
		{name: "block size not power of two", mutate: func(c *Config) { c.Audio.BlockSize = 1000 }, wantErr: "audio.block_size"},
		{name: "zero batch", mutate: func(c *Config) { c.Audio.BatchCount = 0 }, wantErr: "audio.batch_count"},
		{name: "zero loop count", mutate: func(c *Config) { c.Playback.LoopCount = 0 }, wantErr: "playback.loop_count"},
		{name: "negative delay", mutate: func(c *Config) { c.Playback.AdvanceDelay = -time.Second }, wantErr: "playback"},
		{name: "fft size", mutate: func(c *Config) { c.Analysis.FFTSize = 100 }, wantErr: "analysis.fft_size"},
		{name: "smoothing", mutate: func(c *Config) { c.Analysis.Smoothing = 1 }, wantErr: "analysis.smoothing"},
		{name: "decibel range", mutate: func(c *Config) { c.Analysis.MinDecibels = -10 }, wantErr: "analysis.min_decibels"},
		{name: "no extensions", mutate: func(c *Config) { c.Library.Extensions = nil }, wantErr: "library.extensions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Config.Validate() error = %v, want nil", err)
				}
				return
			}
			var cerr *ConfigError
			if !errors.As(err, &cerr) {
				t.Fatalf("Config.Validate() error = %v, want *ConfigError", err)
			}
			if cerr.Field != tt.wantErr {
				t.Errorf("ConfigError.Field = %q, want %q", cerr.Field, tt.wantErr)
			}
		})
	}
}
