package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var learningCmd = &cobra.Command{
	Use:   "learning",
	Short: "Toggle learning mode on the running daemon",
	Long: `In learning mode the daemon keeps measuring and recording baseline
samples but leaves the qdisc alone, so the weekly model can be built
from unshaped traffic.`,
}

var learningStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Enter learning mode",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		resp, err := client.StartLearning(cmd.Context())
		if err != nil {
			return err
		}
		if resp.LearningSince != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "learning mode on (since %s)\n", humanize.Time(*resp.LearningSince))
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "learning mode on")
		}
		return nil
	},
}

var learningStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Return to monitoring",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		if _, err := client.StopLearning(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "learning mode off")
		return nil
	},
}

func init() {
	learningCmd.AddCommand(learningStartCmd)
	learningCmd.AddCommand(learningStopCmd)
	rootCmd.AddCommand(learningCmd)
}
