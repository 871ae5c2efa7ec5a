package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mailsift/mailsift/internal/engine"
	"github.com/mailsift/mailsift/internal/sysinfo"
	"github.com/mailsift/mailsift/internal/worker"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Report host resources and the model the daemon would load",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			snap, err := sysinfo.SystemProber{}.Probe()
			if err != nil {
				return err
			}
			fmt.Printf("memory:  %s available / %s total\n",
				sysinfo.FormatBytes(snap.AvailableMemory), sysinfo.FormatBytes(snap.TotalMemory))
			fmt.Printf("cpu:     %d logical threads\n", snap.CPUThreads)
			fmt.Println()

			spec, ok := resolveModel(cfg.Model, snap)
			if !ok {
				fmt.Printf("no model fits: smallest needs %s available\n",
					sysinfo.FormatBytes(worker.MinimumRequiredMemory()))
				return nil
			}

			sizing := worker.DeriveSizing(spec, snap)
			fmt.Printf("model:   %s (needs %s)\n", spec.Name, sysinfo.FormatBytes(worker.RequiredMemory(spec)))
			fmt.Printf("context: %d tokens, batch %d, %d threads\n",
				sizing.Params.ContextSize, sizing.Params.BatchSize, sizing.Params.Threads)
			return nil
		},
	}
}

// resolveModel applies the configured pin, if any, before falling back to
// resource-aware selection.
func resolveModel(pinned string, snap sysinfo.Snapshot) (engine.ModelSpec, bool) {
	if pinned != "" {
		spec, ok := engine.FindModel(pinned)
		if !ok {
			fmt.Printf("model:   %q is not in the catalog, selecting by resources\n", pinned)
			return worker.SelectModel(snap)
		}
		if worker.RequiredMemory(spec) > snap.AvailableMemory {
			fmt.Printf("model:   pinned %s does not fit right now\n", spec.Name)
			return engine.ModelSpec{}, false
		}
		return spec, true
	}
	return worker.SelectModel(snap)
}
