package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"shaperctl/internal/baseline"
	"shaperctl/internal/store"
)

var baselineOut string

var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Inspect and move the learned weekly baseline",
}

var baselineShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the learned slots from the running daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		resp, err := client.Baseline(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "learning progress %.1f%%\n", resp.ProgressPct)
		if len(resp.Slots) == 0 {
			fmt.Fprintln(out, "no slots yet")
			return nil
		}
		fmt.Fprintf(out, "%-10s  %-5s  %-8s  %-8s  %-8s  %-8s\n",
			"DAY", "HOUR", "MEDIAN", "MEAN", "STDDEV", "SAMPLES")
		for _, s := range resp.Slots {
			fmt.Fprintf(out, "%-10s  %-5d  %-8.1f  %-8.1f  %-8.1f  %-8d\n",
				time.Weekday(s.Day), s.Hour, s.MedianMbps, s.MeanMbps, s.StdDevMbps, s.Samples)
		}
		return nil
	},
}

var baselineExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the persisted baseline as a flat JSON map",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		bf, err := store.LoadBaseline(cfg.Daemon.BaselinePath)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(bf.Slots, "", "  ")
		if err != nil {
			return err
		}
		data = append(data, '\n')

		if baselineOut == "" || baselineOut == "-" {
			_, err := cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(baselineOut, data, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "exported %d slot(s) to %s\n", len(bf.Slots), baselineOut)
		return nil
	},
}

var baselineImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Load a flat baseline export into the store",
	Long: `Reads a "{day}_{hour}" -> median JSON map and replaces the persisted
baseline. Run while the daemon is stopped; a running daemon overwrites
the file on its next persist.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var flat map[string]float64
		if err := json.Unmarshal(data, &flat); err != nil {
			return err
		}
		// Reject bad keys and medians before anything is written.
		if err := baseline.New().ImportFlat(flat); err != nil {
			return err
		}
		if err := store.SaveBaseline(cfg.Daemon.BaselinePath, &store.BaselineFile{
			Category: cfg.Daemon.Category,
			Slots:    flat,
		}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d slot(s) into %s\n", len(flat), cfg.Daemon.BaselinePath)
		return nil
	},
}

func init() {
	baselineExportCmd.Flags().StringVar(&baselineOut, "out", "", "destination file (default stdout)")
	baselineCmd.AddCommand(baselineShowCmd)
	baselineCmd.AddCommand(baselineExportCmd)
	baselineCmd.AddCommand(baselineImportCmd)
	rootCmd.AddCommand(baselineCmd)
}
