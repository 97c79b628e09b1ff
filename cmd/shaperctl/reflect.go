package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"shaperctl/internal/probe"
)

var reflectListen string

var reflectCmd = &cobra.Command{
	Use:   "reflect",
	Short: "Run a UDP echo reflector for remote latency probes",
	Long: `Runs the echo half of the UDP probe pair. Point another machine's
probe_mode: udp at this host to measure round trips across the link
being shaped instead of the path to a public ping target.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := probe.StartReflector(reflectListen)
		if err != nil {
			return err
		}
		defer r.Close()
		fmt.Fprintf(cmd.OutOrStdout(), "reflecting on %s\n", r.LocalAddr())
		waitForSignal()
		return nil
	},
}

func init() {
	reflectCmd.Flags().StringVar(&reflectListen, "listen", fmt.Sprintf(":%d", probe.DefaultReflectorPort), "UDP listen address")
	rootCmd.AddCommand(reflectCmd)
}
