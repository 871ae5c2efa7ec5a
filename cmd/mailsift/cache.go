package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/mailsift/mailsift/internal/cache"
)

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the verdict cache",
	}
	cmd.AddCommand(cacheStatsCmd())
	cmd.AddCommand(cacheClearCmd())
	return cmd
}

func cacheStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cached verdict counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := cache.Open(cfg.CachePath)
			if err != nil {
				return err
			}
			defer store.Close()

			total, err := store.Count()
			if err != nil {
				return err
			}
			fmt.Printf("cached verdicts: %d\n", total)

			byModel, err := store.Stats()
			if err != nil {
				return err
			}
			models := make([]string, 0, len(byModel))
			for model := range byModel {
				models = append(models, model)
			}
			sort.Strings(models)
			for _, model := range models {
				name := model
				if name == "" {
					name = "(unrecorded)"
				}
				fmt.Printf("  %-24s %d\n", name, byModel[model])
			}
			return nil
		},
	}
}

func cacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all cached verdicts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := cache.Open(cfg.CachePath)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Println("cache cleared")
			return nil
		},
	}
}
