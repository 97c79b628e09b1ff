package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"shaperctl/internal/api"
	"shaperctl/internal/daemon"
)

var (
	adjustLatency float64
	adjustApply   bool
	adjustPush    bool
)

var adjustCmd = &cobra.Command{
	Use:   "adjust",
	Short: "Run one latency adjustment cycle",
	Long: `Measures latency (or takes it from --latency), runs the control law
against the current rate and prints the decision. The qdisc is only
touched with --apply. With --push the cycle runs inside the daemon,
which applies per its own config.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var latency *float64
		if cmd.Flags().Changed("latency") {
			latency = &adjustLatency
		}

		if adjustPush {
			client, err := newClient()
			if err != nil {
				return err
			}
			resp, err := client.Adjust(cmd.Context(), latency)
			if err != nil {
				return err
			}
			printAdjust(cmd, resp)
			return nil
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.Daemon.ApplyRates = adjustApply
		d, err := daemon.New(cfg)
		if err != nil {
			return err
		}
		resp, err := d.Adjust(cmd.Context(), latency)
		if err != nil {
			return err
		}
		printAdjust(cmd, resp)
		return nil
	},
}

func printAdjust(cmd *cobra.Command, resp api.AdjustResponse) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-18s %.1f ms\n", "latency", resp.LatencyMs)
	fmt.Fprintf(out, "%-18s %s\n", "branch", resp.Branch)
	fmt.Fprintf(out, "%-18s %.1f Mbps\n", "new rate", resp.NewRateMbps)
	fmt.Fprintf(out, "%-18s %s\n", "reason", resp.Reason)
	if resp.Applied {
		fmt.Fprintln(out, "rate applied to qdisc")
	}
}

func init() {
	adjustCmd.Flags().Float64Var(&adjustLatency, "latency", 0, "latency reading in ms instead of probing")
	adjustCmd.Flags().BoolVar(&adjustApply, "apply", false, "install the resulting rate on the interface")
	adjustCmd.Flags().BoolVar(&adjustPush, "push", false, "run the cycle inside the daemon")
	rootCmd.AddCommand(adjustCmd)
}
