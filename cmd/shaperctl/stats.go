package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"shaperctl/internal/history"
)

var statsSince time.Duration

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the history log",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		items, err := history.ReadCSV(cfg.Daemon.HistoryPath)
		if err != nil {
			return err
		}
		sum := history.Summarize(items, time.Now().Add(-statsSince))

		out := cmd.OutOrStdout()
		if sum.Count == 0 {
			fmt.Fprintf(out, "no history in the last %s\n", statsSince)
			return nil
		}
		fmt.Fprintf(out, "%-20s %s to %s\n", "window", humanize.Time(sum.From), humanize.Time(sum.To))
		fmt.Fprintf(out, "%-20s %d (%d calibrations, %d adjusts)\n", "records", sum.Count, sum.Calibrations, sum.Adjusts)
		fmt.Fprintf(out, "%-20s avg %.1f ms, p95 %.1f ms, min %.1f ms, max %.1f ms\n",
			"latency", sum.AvgLatencyMs, sum.P95LatencyMs, sum.MinLatencyMs, sum.MaxLatencyMs)
		fmt.Fprintf(out, "%-20s avg %.1f Mbps, min %.1f Mbps, max %.1f Mbps\n",
			"rate", sum.AvgRateMbps, sum.MinRateMbps, sum.MaxRateMbps)
		fmt.Fprintf(out, "%-20s %d\n", "high-latency events", sum.HighLatencyEvents)
		return nil
	},
}

func init() {
	statsCmd.Flags().DurationVar(&statsSince, "since", 24*time.Hour, "how far back to summarize")
	rootCmd.AddCommand(statsCmd)
}
