package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"shaperctl/internal/api"
	"shaperctl/internal/config"
	"shaperctl/internal/logging"
)

const defaultConfigPath = "/etc/shaperctl/config.yaml"

var (
	cfgPath string
	apiAddr string
)

var rootCmd = &cobra.Command{
	Use:   "shaperctl",
	Short: "Adaptive bandwidth shaping for one uplink",
	Long: `Shaperctl learns a weekly bandwidth baseline for an internet uplink,
blends periodic speed tests against it, and steers the shaped rate with
a latency feedback loop. The run command hosts the daemon; the rest of
the commands are one-shot cycles, direct qdisc control and inspection.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", defaultConfigPath, "config file")
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "", "daemon API address (default from config)")
}

// loadConfig reads and validates the config file, then switches logging
// to its configured level.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, err
	}
	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	if cfg.Daemon != nil {
		logging.SetLevel(cfg.Daemon.LogLevel)
	}
	return cfg, nil
}

// newClient targets the daemon API from --api or the config file. With
// --api set no config file is needed.
func newClient() (*api.Client, error) {
	addr := apiAddr
	if addr == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		addr = config.DefaultAPIListen
		if cfg.Daemon != nil && cfg.Daemon.APIListen != "" {
			addr = cfg.Daemon.APIListen
		}
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return api.NewClient(addr), nil
}
