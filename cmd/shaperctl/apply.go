package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"shaperctl/internal/ratectl"
	"shaperctl/internal/shaper"
)

var (
	applyRate   float64
	applyDryRun bool
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Install a shaped rate on the interface",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		settings := shaper.Settings{
			Interface:  cfg.Shaping.Interface,
			Discipline: cfg.Daemon.Discipline,
			RateMbps:   ratectl.Round1(applyRate),
		}
		if applyDryRun {
			plan, err := shaper.Plan(settings)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), shaper.PlanString(plan))
			return nil
		}
		if err := shaper.DefaultManager().Apply(settings); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s at %.1f Mbps\n",
			settings.Interface, settings.Discipline, settings.RateMbps)
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the shaper from the interface",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := shaper.DefaultManager().Clear(cfg.Shaping.Interface); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", cfg.Shaping.Interface)
		return nil
	},
}

func init() {
	applyCmd.Flags().Float64Var(&applyRate, "rate", 0, "rate in Mbps")
	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "print the tc command plan without running it")
	_ = applyCmd.MarkFlagRequired("rate")
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(clearCmd)
}
