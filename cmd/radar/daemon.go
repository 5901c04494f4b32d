package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func daemonCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run collection cycles in a loop with configurable interval",
		Long: `Continuously collect, classify, and dedup competitor news on a timer.
Designed for running inside a Docker container or as a background service.
Handles SIGINT/SIGTERM for graceful shutdown (finishes the current cycle).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

			engine, err := newEngine(false)
			if err != nil {
				return err
			}
			defer engine.Close()

			log.Printf("radar daemon: starting with interval %s", interval)

			cycle := 1
			for {
				start := time.Now()
				log.Printf("radar daemon: cycle %d starting", cycle)

				if _, err := engine.RunCollection(ctx); err != nil {
					log.Printf("radar daemon: cycle %d error: %v", cycle, err)
				} else {
					log.Printf("radar daemon: cycle %d completed in %s", cycle, time.Since(start).Round(time.Millisecond))
				}

				cycle++

				// Wait for the next tick or a shutdown signal.
				timer := time.NewTimer(interval)
				select {
				case <-sig:
					timer.Stop()
					log.Println("radar daemon: received shutdown signal, exiting")
					return nil
				case <-timer.C:
				}
			}
		},
	}

	cmd.Flags().DurationVarP(&interval, "interval", "i", time.Hour, "duration between collection cycles (e.g. 30m, 1h)")
	return cmd
}
