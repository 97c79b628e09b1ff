package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"shaperctl/internal/config"
	"shaperctl/internal/profile"
)

var (
	initCategory   string
	initDown       float64
	initUp         float64
	initInterface  string
	initPingTarget string
	initForce      bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config derived from a connection profile",
	Long: `Derives shaping parameters for the advertised plan speed from a
connection category profile and writes them to the config path. Pass
the nominal rates your ISP sells, not what a speedtest shows.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(cfgPath); err == nil && !initForce {
			return fmt.Errorf("%s already exists, pass --force to overwrite", cfgPath)
		}

		cat, err := profile.Parse(initCategory)
		if err != nil {
			return err
		}
		shaping, err := profile.Derive(cat, initDown, initUp)
		if err != nil {
			return err
		}
		shaping.Interface = initInterface
		shaping.PingTarget = initPingTarget

		cfg := config.Config{
			Shaping: &shaping,
			Daemon: &config.Daemon{
				Category:        string(cat),
				NominalDownMbps: initDown,
				NominalUpMbps:   initUp,
			},
		}
		if err := config.Save(cfgPath, cfg); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "wrote %s\n", cfgPath)
		fmt.Fprintf(out, "%-18s %s (%s)\n", "interface", shaping.Interface, cat)
		fmt.Fprintf(out, "%-18s %.1f - %.1f Mbps (ceiling %.1f)\n", "shaping range",
			shaping.MinRateMbps, shaping.MaxRateMbps, shaping.AbsoluteMaxRateMbps)
		fmt.Fprintf(out, "%-18s %.1f ms + %.1f ms threshold\n", "latency target",
			shaping.BaselineLatencyMs, shaping.LatencyThresholdMs)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initCategory, "category", "cable", "connection category (see profile list)")
	initCmd.Flags().Float64Var(&initDown, "down", 0, "nominal download rate in Mbps")
	initCmd.Flags().Float64Var(&initUp, "up", 0, "nominal upload rate in Mbps")
	initCmd.Flags().StringVar(&initInterface, "interface", "", "network interface to shape")
	initCmd.Flags().StringVar(&initPingTarget, "ping-target", "1.1.1.1", "latency probe destination")
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config")
	_ = initCmd.MarkFlagRequired("down")
	_ = initCmd.MarkFlagRequired("interface")
	rootCmd.AddCommand(initCmd)
}
