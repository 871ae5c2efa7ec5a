package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mailsift/mailsift/internal/config"
	"github.com/mailsift/mailsift/internal/logging"
)

var (
	flagConfig string
	flagQuiet  bool
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mailsift",
		Short: "Local email threat classification",
		Long: `mailsift classifies email messages for security threats with a locally-run
language model. Nothing ever leaves the machine: a background daemon owns
an ephemeral llama.cpp worker, and scanning clients talk to it over a
loopback WebSocket.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagQuiet {
				logging.Disable()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file (default: <data_dir>/config.yaml)")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress log output")

	cmd.AddCommand(serveCmd())
	cmd.AddCommand(scanCmd())
	cmd.AddCommand(cacheCmd())
	cmd.AddCommand(doctorCmd())

	return cmd
}

// loadConfig resolves the active configuration for a subcommand.
func loadConfig() (config.Config, error) {
	path := flagConfig
	if path == "" {
		path = filepath.Join(config.DefaultDataDir(), "config.yaml")
	}
	return config.Load(path)
}
