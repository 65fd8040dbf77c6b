package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bitbox/logger"
	"bitbox/machine"

	"github.com/spf13/cobra"
)

// listCmd loads an archive without playing it and prints its playlist
var listCmd = &cobra.Command{
	Use:   "list <archive>",
	Short: "List the tracks in an archive",
	Long:  "Load an archive the same way the player does and print the resulting playlist.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.Audio.Backend = "null"
		cfg.WakeLock.Enabled = false

		if err := logger.SetupTo(os.Stderr, cfg.Logging.Level, cfg.Logging.Format); err != nil {
			return fmt.Errorf("failed to setup logging: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		m := machine.New(cfg)
		if err := m.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize machine: %w", err)
		}
		defer m.Stop()

		tracks, err := m.Load(ctx, args[0], nil)
		if err != nil {
			return err
		}

		for i, track := range tracks {
			info := track.Info()
			fmt.Printf("%3d  %s  %s", i+1, info.Length, info.Title)
			if info.Game != "" {
				fmt.Printf(" (%s)", info.Game)
			}
			fmt.Println()
		}
		fmt.Printf("%d tracks\n", len(tracks))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
