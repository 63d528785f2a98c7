package main

import (
	"fmt"
	"os"
	"time"

	"github.com/nearwire/tether/internal/config"
	"github.com/nearwire/tether/internal/station"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile   string
	serverURL string
	timeout   time.Duration

	// Shared state set during PersistentPreRun
	client *station.Client
)

// rootCmd is the base command for tetherctl.
var rootCmd = &cobra.Command{
	Use:   "tetherctl",
	Short: "Operator CLI for a tetherd station",
	Long: `tetherctl drives a running tetherd through its admin API: bring the
link up as either the connecting or the listening side, exchange text
messages, measure round trips, and inspect recent traffic.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.DefaultCtlPath()
		}
		cfg, err := config.LoadCtlConfig(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if serverURL != "" {
			cfg.Server = serverURL
		}
		to := timeout
		if to <= 0 {
			to = time.Duration(cfg.TimeoutSeconds) * time.Second
		}

		client = station.NewClient(cfg.Server, to, cfg.AuthToken)
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.tether/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "station admin API URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "request timeout (default from config)")
}
