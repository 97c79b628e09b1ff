package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"shaperctl/internal/daemon"
	"shaperctl/internal/server"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the shaping daemon",
	Long: `Starts the adjustment and calibration loops plus the local HTTP API,
and blocks until SIGINT or SIGTERM. The qdisc keeps its last rate across
restarts; use clear to remove it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		d, err := daemon.New(cfg)
		if err != nil {
			return err
		}
		srv := server.New(cfg.Daemon.APIListen, d)

		ctx, cancel := signalContext()
		defer cancel()

		errC := make(chan error, 2)
		go func() { errC <- srv.ListenAndServe(ctx) }()
		go func() { errC <- d.Run(ctx) }()

		// Whichever half stops first takes the other one down with it.
		first := <-errC
		cancel()
		second := <-errC

		for _, err := range []error{first, second} {
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
