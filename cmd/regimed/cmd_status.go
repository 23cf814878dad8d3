package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/regimed/regimed/internal/snapshot"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the last published snapshot from Redis",
		Long:  "Read the snapshot mirrored to Redis by a running service and print the regime report with a staleness verdict.",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyLogLevel(cfg.LogLevel)

	pub := snapshot.NewRedisPublisherForAddr(cfg.Redis)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snap, err := pub.Fetch(ctx)
	if err != nil {
		return err
	}
	if snap == nil {
		fmt.Println("No snapshot published yet.")
		return nil
	}

	fmt.Print(snap.FormatReport())
	if snap.Stale(time.Now(), time.Duration(cfg.Freshness)) {
		fmt.Printf("WARNING: snapshot is stale (older than %s)\n", cfg.Freshness)
	}
	return nil
}
