package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"shaperctl/internal/profile"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "List and inspect connection tuning profiles",
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the built-in categories",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-10s  %-10s  %-10s  %-9s  %-9s\n",
			"CATEGORY", "BASE_LAT", "THRESHOLD", "DECREASE", "INCREASE")
		for _, cat := range profile.Categories() {
			t, ok := profile.Lookup(cat)
			if !ok {
				continue
			}
			fmt.Fprintf(out, "%-10s  %-10.1f  %-10.1f  %-9.2f  %-9.2f\n",
				cat, t.BaselineLatencyMs, t.LatencyThresholdMs, t.DecreaseFactor, t.IncreaseFactor)
		}
		return nil
	},
}

var profileShowCmd = &cobra.Command{
	Use:   "show <category>",
	Short: "Show the full tuning for one category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := profile.Parse(args[0])
		if err != nil {
			return err
		}
		t, ok := profile.Lookup(cat)
		if !ok {
			return fmt.Errorf("no tuning for category %q", cat)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-20s %s\n", "category", cat)
		fmt.Fprintf(out, "%-20s %.2f\n", "ceiling factor", t.CeilingFactor)
		fmt.Fprintf(out, "%-20s %.2f\n", "floor factor", t.FloorFactor)
		fmt.Fprintf(out, "%-20s %.2f\n", "absolute ceiling", t.AbsoluteCeilingFactor)
		fmt.Fprintf(out, "%-20s %.2f\n", "overhead factor", t.OverheadFactor)
		fmt.Fprintf(out, "%-20s %.1f ms\n", "baseline latency", t.BaselineLatencyMs)
		fmt.Fprintf(out, "%-20s %.1f ms\n", "latency threshold", t.LatencyThresholdMs)
		fmt.Fprintf(out, "%-20s %.2f\n", "decrease factor", t.DecreaseFactor)
		fmt.Fprintf(out, "%-20s %.2f\n", "increase factor", t.IncreaseFactor)
		fmt.Fprintf(out, "%-20s %.0f%% baseline / %.0f%% measured\n", "blend within",
			t.BlendWithin.Baseline*100, t.BlendWithin.Measured*100)
		fmt.Fprintf(out, "%-20s %.0f%% baseline / %.0f%% measured\n", "blend below",
			t.BlendBelow.Baseline*100, t.BlendBelow.Measured*100)
		fmt.Fprintf(out, "%-20s %s\n", "hourly shape", shapeRow(t.HourlyShape))
		if t.WeekendShape != nil {
			fmt.Fprintf(out, "%-20s %s\n", "weekend shape", shapeRow(*t.WeekendShape))
		}
		return nil
	},
}

func shapeRow(shape [24]float64) string {
	parts := make([]string, len(shape))
	for i, f := range shape {
		parts[i] = fmt.Sprintf("%.2f", f)
	}
	return strings.Join(parts, " ")
}

func init() {
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileShowCmd)
	rootCmd.AddCommand(profileCmd)
}
