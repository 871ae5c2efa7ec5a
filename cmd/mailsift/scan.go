package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/mailsift/mailsift/internal/cache"
	"github.com/mailsift/mailsift/internal/client"
	"github.com/mailsift/mailsift/internal/fingerprint"
	"github.com/mailsift/mailsift/internal/mail"
	"github.com/mailsift/mailsift/internal/protocol"
	"github.com/mailsift/mailsift/internal/worker"
)

func scanCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "scan <file.eml> [more.eml...]",
		Short: "Classify email files against a running daemon",
		Long: `Parse RFC 5322 message files, check the local verdict cache, and submit
misses to the daemon for classification. Results print one line per file.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			store, err := cache.Open(cfg.CachePath)
			if err != nil {
				return fmt.Errorf("open cache: %w", err)
			}
			defer store.Close()

			queue := client.New(cfg.ServerURL(), store)
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			go queue.Start(ctx)
			defer queue.Close()

			var wg sync.WaitGroup
			failed := false
			for _, path := range args {
				if err := submitFile(queue, path, &wg); err != nil {
					fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
					failed = true
				}
			}

			done := make(chan struct{})
			go func() {
				wg.Wait()
				close(done)
			}()
			select {
			case <-done:
			case <-ctx.Done():
				return fmt.Errorf("timed out after %s with %d responses outstanding", timeout, queue.Outstanding())
			}

			if failed {
				return fmt.Errorf("some files could not be scanned")
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "overall deadline for all responses")
	return cmd
}

// submitFile parses, fingerprints and submits one email file.
func submitFile(queue *client.Queue, path string, wg *sync.WaitGroup) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	msg, err := mail.Parse(f)
	if err != nil {
		return err
	}

	content := mail.Normalize(msg)
	fp := fingerprint.Sum(content)
	prompt := worker.BuildPrompt(content)

	wg.Add(1)
	queue.Submit(fp, prompt, func(resp protocol.Response) {
		defer wg.Done()
		printVerdict(path, resp)
	})
	return nil
}

func printVerdict(path string, resp protocol.Response) {
	if resp.Type == protocol.ResponseTypeError {
		fmt.Printf("%-40s  ERROR      %s\n", path, resp.BriefAnalysis)
		return
	}
	fmt.Printf("%-40s  %-18s %.2f  %s\n", path, resp.Category, resp.Confidence, resp.BriefAnalysis)
}
