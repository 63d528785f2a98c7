package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send <text>...",
	Short: "Send a text message over the link",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		receipt, err := client.SendText(strings.Join(args, " "))
		if err != nil {
			return fmt.Errorf("send failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sent %s\n", receipt.ID)
		return nil
	},
}

var messagesLimit int

var messagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "Show recent messages, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		msgs, err := client.Messages(messagesLimit)
		if err != nil {
			return fmt.Errorf("failed to list messages: %w", err)
		}
		if len(msgs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no messages")
			return nil
		}
		for _, m := range msgs {
			from := m.From
			if from == "" {
				from = "?"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %-3s  %-12s  %s\n",
				m.At.Local().Format(time.TimeOnly), m.Direction, from, m.Text)
		}
		return nil
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure one round trip over the link",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := client.Ping()
		if err != nil {
			return fmt.Errorf("ping failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rtt %.2fms\n", res.RTTMillis)
		return nil
	},
}

func init() {
	messagesCmd.Flags().IntVar(&messagesLimit, "limit", 0, "show at most this many messages (0 = all kept)")

	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(messagesCmd)
	rootCmd.AddCommand(pingCmd)
}
