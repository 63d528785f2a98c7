package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

const tetherctlVersion = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show tetherctl and station versions",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "tetherctl version %s\n", tetherctlVersion)

		health, err := client.Health()
		if err != nil {
			return fmt.Errorf("failed to reach station: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "station %s version %s, up %s\n",
			health.Station, health.Version, health.Uptime)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
