package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bitbox/config"
	"bitbox/logger"
	"bitbox/machine"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "bitbox [archive]",
	Short: "A terminal player for game music archives",
	Long: `Bitbox plays soundtrack archives from a local path or URL. Every track
found in the archive is loaded into a playlist which then plays in order,
advancing automatically when a track finishes.

Keys: space play/pause, n next, p previous, s stop, left/right seek,
1-9 jump to a track, +/- volume, m mute, q quit.
Send SIGUSR1 to pause as if hidden and SIGUSR2 to show the player again.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlayer,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringP("backend", "b", "speaker", "audio backend (speaker, oto, null)")

	// Local flags for the player
	rootCmd.Flags().IntP("loops", "l", 2, "times each track loops before advancing")
	rootCmd.Flags().Float64("volume", 0, "volume as a base-2 exponent, 0 is unity gain")
	rootCmd.Flags().Bool("wakelock", true, "keep the screen awake while playing")
	rootCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.Flags().String("log-format", "text", "log format (text, json)")

	// Bind flags to viper
	viper.BindPFlag("audio.backend", rootCmd.PersistentFlags().Lookup("backend"))
	viper.BindPFlag("audio.volume", rootCmd.Flags().Lookup("volume"))
	viper.BindPFlag("playback.loop_count", rootCmd.Flags().Lookup("loops"))
	viper.BindPFlag("wakelock.enabled", rootCmd.Flags().Lookup("wakelock"))
	viper.BindPFlag("logging.level", rootCmd.Flags().Lookup("log-level"))
	viper.BindPFlag("logging.format", rootCmd.Flags().Lookup("log-format"))
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if verbose {
		viper.Set("logging.level", "debug")
	}
}

// loadConfig loads and validates the configuration
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// printProgress reports load progress on stderr
func printProgress(percent int, message string) {
	fmt.Fprintf(os.Stderr, "\r\x1b[K%3d%% %s", percent, message)
	if percent >= 100 {
		fmt.Fprintln(os.Stderr)
	}
}

// runPlayer starts the interactive player
func runPlayer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// The status line owns stdout
	if err := logger.SetupTo(os.Stderr, cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Create and initialize the machine
	m := machine.New(cfg)
	if err := m.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize machine: %w", err)
	}

	if len(args) == 1 {
		if _, err := m.Load(ctx, args[0], printProgress); err != nil {
			m.Stop()
			return err
		}
		if err := m.Player().Play(0); err != nil {
			m.Stop()
			return fmt.Errorf("failed to start playback: %w", err)
		}
	}

	if err := m.StartInteractive(os.Stdin, os.Stdout); err != nil {
		m.Stop()
		return fmt.Errorf("failed to start machine: %w", err)
	}

	// Wait for shutdown signal, quit key or error
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "\nShutting down...")
	case <-m.Done():
	case err := <-m.Error():
		fmt.Fprintf(os.Stderr, "\nError occurred: %v\n", err)
	}

	// Graceful shutdown
	if err := m.Stop(); err != nil {
		return fmt.Errorf("failed to stop machine gracefully: %w", err)
	}
	fmt.Println()

	return nil
}
