package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mailsift/mailsift/internal/engine"
	"github.com/mailsift/mailsift/internal/orchestrator"
	"github.com/mailsift/mailsift/internal/sysinfo"
	"github.com/mailsift/mailsift/internal/worker"
)

func serveCmd() *cobra.Command {
	var prewarm bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the classification daemon",
		Long: `Start the background daemon: a loopback WebSocket accepting analysis
requests, the single-flight orchestrator, and the on-demand inference
worker. The model is loaded on first admission and torn down after the
idle delay.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
				return fmt.Errorf("create data dir: %w", err)
			}

			manager := engine.NewManager(cfg.DataDir)
			defer manager.Close()

			life := worker.NewManager(func() engine.Engine {
				return engine.NewLlama(manager)
			}, sysinfo.SystemProber{})
			if cfg.Model != "" {
				life.PinModel(cfg.Model)
			}
			defer life.Stop()

			if prewarm {
				life.EnsureStarted()
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				fmt.Println("\nShutting down...")
				cancel()
			}()

			srv := orchestrator.NewServer(cfg.ListenAddr, life)
			return srv.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&prewarm, "prewarm", false, "load the model at startup instead of on first request")
	return cmd
}
