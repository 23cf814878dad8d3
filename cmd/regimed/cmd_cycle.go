package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newCycleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cycle",
		Short: "Run a single classification cycle and print the report",
		RunE:  runCycleOnce,
	}
}

func runCycleOnce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyLogLevel(cfg.LogLevel)

	a, err := buildApp(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	snap, err := a.pipeline.RunCycle(ctx)
	if err != nil {
		return fmt.Errorf("cycle: %w", err)
	}

	fmt.Print(snap.FormatReport())
	return nil
}
