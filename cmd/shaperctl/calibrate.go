package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"shaperctl/internal/api"
	"shaperctl/internal/daemon"
)

var (
	calibrateFile string
	calibratePush bool
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Run one calibration cycle",
	Long: `Runs the configured bandwidth probe, or reads a speedtest JSON result
from --file, blends it against the weekly baseline and persists the
outcome. One-shot runs never touch the qdisc. With --push the result is
handed to the running daemon instead, which applies it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var raw []byte
		if calibrateFile != "" {
			var err error
			raw, err = os.ReadFile(calibrateFile)
			if err != nil {
				return err
			}
		}

		if calibratePush {
			client, err := newClient()
			if err != nil {
				return err
			}
			resp, err := client.Calibrate(cmd.Context(), raw)
			if err != nil {
				return err
			}
			printCalibration(cmd, resp)
			return nil
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.Daemon.ApplyRates = false
		d, err := daemon.New(cfg)
		if err != nil {
			return err
		}
		resp, err := d.Calibrate(cmd.Context(), raw)
		if err != nil {
			return err
		}
		printCalibration(cmd, resp)
		return nil
	},
}

func printCalibration(cmd *cobra.Command, resp api.CalibrateResponse) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-18s %.1f Mbps\n", "measured", resp.MeasuredMbps)
	if resp.BaselineMbps > 0 {
		fmt.Fprintf(out, "%-18s %.1f Mbps\n", "hour baseline", resp.BaselineMbps)
	}
	fmt.Fprintf(out, "%-18s %.1f Mbps\n", "blended", resp.BlendedMbps)
	fmt.Fprintf(out, "%-18s %.1f Mbps\n", "effective rate", resp.EffectiveRateMbps)
	if resp.Applied {
		fmt.Fprintln(out, "rate applied to qdisc")
	}
}

func init() {
	calibrateCmd.Flags().StringVar(&calibrateFile, "file", "", "speedtest JSON result to process instead of probing")
	calibrateCmd.Flags().BoolVar(&calibratePush, "push", false, "process through the running daemon")
	rootCmd.AddCommand(calibrateCmd)
}
