package cmd

import (
	"fmt"
	"log/slog"

	"bitbox/config"
	"bitbox/logger"

	"github.com/spf13/cobra"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  "Commands for managing and validating bitbox configuration.",
}

// configValidateCmd validates the current configuration
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  "Validate the current configuration file and environment variables.",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Setup basic logging for validation
		if err := logger.Setup("info", "text"); err != nil {
			return fmt.Errorf("failed to setup logging: %w", err)
		}

		// Load configuration
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		// Validate configuration
		if err := cfg.Validate(); err != nil {
			slog.Error("Configuration validation failed", slog.Any("error", err))
			return err
		}

		slog.Info("Configuration is valid")
		fmt.Println("✅ Configuration is valid")
		return nil
	},
}

// configShowCmd shows the current configuration
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the current configuration values from file and environment variables.",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Setup basic logging
		if err := logger.Setup("info", "text"); err != nil {
			return fmt.Errorf("failed to setup logging: %w", err)
		}

		// Load configuration
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		fmt.Println("Current Configuration:")
		fmt.Printf("  Audio:\n")
		fmt.Printf("    Backend: %s\n", cfg.Audio.Backend)
		fmt.Printf("    Sample rate: %d\n", cfg.Audio.SampleRate)
		fmt.Printf("    Block size: %d\n", cfg.Audio.BlockSize)
		fmt.Printf("    Batch count: %d\n", cfg.Audio.BatchCount)
		fmt.Printf("    Buffer size: %s\n", cfg.Audio.BufferSize)
		fmt.Printf("    Low water blocks: %d\n", cfg.Audio.LowWaterBlocks)
		fmt.Printf("    Volume: %g\n", cfg.Audio.Volume)
		fmt.Printf("  Playback:\n")
		fmt.Printf("    Loop count: %d\n", cfg.Playback.LoopCount)
		fmt.Printf("    Re-arm window: %s\n", cfg.Playback.RearmWindow)
		fmt.Printf("    Advance delay: %s\n", cfg.Playback.AdvanceDelay)
		fmt.Printf("    Settle delay: %s\n", cfg.Playback.SettleDelay)
		fmt.Printf("  Analysis:\n")
		fmt.Printf("    FFT size: %d\n", cfg.Analysis.FFTSize)
		fmt.Printf("    Smoothing: %g\n", cfg.Analysis.Smoothing)
		fmt.Printf("    Decibels: %g to %g\n", cfg.Analysis.MinDecibels, cfg.Analysis.MaxDecibels)
		fmt.Printf("    Interval: %s\n", cfg.Analysis.Interval)
		fmt.Printf("  Library:\n")
		fmt.Printf("    Extensions: %v\n", cfg.Library.Extensions)
		fmt.Printf("  Wake lock:\n")
		fmt.Printf("    Enabled: %t\n", cfg.WakeLock.Enabled)
		fmt.Printf("  Logging:\n")
		fmt.Printf("    Level: %s\n", cfg.Logging.Level)
		fmt.Printf("    Format: %s\n", cfg.Logging.Format)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
}
