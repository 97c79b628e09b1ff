package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"shaperctl/internal/netinfo"
	"shaperctl/internal/shaper"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check config, qdisc, daemon, and public address",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		cfg, cfgErr := loadConfig()
		if cfgErr != nil {
			fmt.Fprintf(out, "%-14s FAIL  %v\n", "config", cfgErr)
		} else {
			fmt.Fprintf(out, "%-14s OK    %s\n", "config", cfgPath)
		}

		if cfgErr == nil {
			inst, ok, err := shaper.DefaultManager().Inspect(cfg.Shaping.Interface)
			switch {
			case err != nil:
				fmt.Fprintf(out, "%-14s FAIL  %v\n", "qdisc", err)
			case ok:
				fmt.Fprintf(out, "%-14s OK    %s at %.1f Mbps on %s\n", "qdisc", inst.Discipline, inst.RateMbps, cfg.Shaping.Interface)
			default:
				fmt.Fprintf(out, "%-14s --    no shaper on %s\n", "qdisc", cfg.Shaping.Interface)
			}
		}

		if client, err := newClient(); err == nil {
			if st, err := client.Status(cmd.Context()); err != nil {
				fmt.Fprintf(out, "%-14s --    not reachable: %v\n", "daemon", err)
			} else {
				fmt.Fprintf(out, "%-14s OK    %s at %.1f Mbps\n", "daemon", st.State, st.CurrentRateMbps)
			}
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		var servers []string
		if cfgErr == nil {
			servers = cfg.Daemon.STUNServers
		}
		info, err := netinfo.Discover(ctx, servers, 3*time.Second)
		if err != nil {
			fmt.Fprintf(out, "%-14s --    %v\n", "public addr", err)
			return nil
		}
		fmt.Fprintf(out, "%-14s OK    %s (%s)\n", "public addr", info.Addr, info.NATType)
		if info.CGNAT {
			fmt.Fprintf(out, "%-14s WARN  carrier-grade NAT detected, expect bufferbloat beyond your control\n", "cgnat")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
