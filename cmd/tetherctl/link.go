package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show the link state",
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := client.Link()
		if err != nil {
			return fmt.Errorf("failed to read link state: %w", err)
		}
		if info.Endpoint != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", info.State, info.Endpoint)
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), info.State)
		return nil
	},
}

var connectSecure bool

var connectCmd = &cobra.Command{
	Use:   "connect <endpoint>",
	Short: "Connect the link to a remote station",
	Long: `Start a single outbound connection attempt. The station reports the
attempt as accepted immediately; use "tetherctl state" to see whether it
ended up connected or back at idle.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := client.Connect(args[0], connectSecure)
		if err != nil {
			return fmt.Errorf("connect failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s to %s\n", info.State, args[0])
		return nil
	},
}

var listenSecure bool

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Accept an inbound link from a remote station",
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := client.Listen(listenSecure)
		if err != nil {
			return fmt.Errorf("listen failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), info.State)
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Drop the link, whatever it is doing",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := client.StopLink(); err != nil {
			return fmt.Errorf("stop failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "link stopped")
		return nil
	},
}

func init() {
	connectCmd.Flags().BoolVar(&connectSecure, "secure", false, "require transport security")
	listenCmd.Flags().BoolVar(&listenSecure, "secure", false, "require transport security")

	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(stopCmd)
}
