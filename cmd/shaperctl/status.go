package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running daemon's status",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		st, err := client.Status(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-18s %s\n", "state", st.State)
		fmt.Fprintf(out, "%-18s %s (%s)\n", "interface", st.Interface, st.Discipline)
		fmt.Fprintf(out, "%-18s %.1f Mbps\n", "current rate", st.CurrentRateMbps)
		if st.LastCalibrationAt != nil {
			fmt.Fprintf(out, "%-18s %.1f Mbps, %s\n", "last calibration",
				st.LastCalibrationMbps, humanize.Time(*st.LastCalibrationAt))
		}
		if st.LastLatencyMs > 0 {
			fmt.Fprintf(out, "%-18s %.1f ms\n", "last latency", st.LastLatencyMs)
		}
		if st.LastAdjustAt != nil {
			fmt.Fprintf(out, "%-18s %s, %s\n", "last adjust",
				st.LastAdjustBranch, humanize.Time(*st.LastAdjustAt))
			fmt.Fprintf(out, "%-18s %s\n", "", st.LastAdjustReason)
		}
		if st.CurrentHour != nil {
			fmt.Fprintf(out, "%-18s median %.1f Mbps, %d sample(s)\n", "hour baseline",
				st.CurrentHour.MedianMbps, st.CurrentHour.Samples)
		}
		fmt.Fprintf(out, "%-18s %.1f%%\n", "learning progress", st.LearningProgressPct)
		if st.LearningMode && st.LearningSince != nil {
			fmt.Fprintf(out, "%-18s on, since %s\n", "learning mode", humanize.Time(*st.LearningSince))
		}
		fmt.Fprintf(out, "%-18s %t\n", "apply rates", st.ApplyRates)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
