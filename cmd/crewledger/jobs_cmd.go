package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/crewledger/crewledger/cmd/crewledger/cli"
)

// runJobsCommand handles `crewledger jobs <trigger|inspect|scheduled>` for
// operators working on the queue without the HTTP API.
func runJobsCommand(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: crewledger jobs <trigger|inspect|scheduled>")
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "127.0.0.1:6379"
	}
	jobsCLI, err := cli.NewJobsCLI(redisAddr)
	if err != nil {
		return err
	}
	defer jobsCLI.Close()

	switch args[0] {
	case "trigger":
		fs := flag.NewFlagSet("trigger", flag.ContinueOnError)
		tenantID := fs.Int64("tenant", 0, "tenant id")
		batchID := fs.Int64("batch", 0, "batch id")
		actorID := fs.Int64("actor", 0, "actor id")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		info, err := jobsCLI.TriggerCalculate(ctx, *tenantID, *batchID, *actorID)
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return nil
	case "inspect":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return nil
	case "scheduled":
		tasks, err := jobsCLI.ListScheduled(ctx, 20)
		if err != nil {
			return err
		}
		for _, task := range tasks {
			fmt.Printf("%s id=%s next=%s\n", task.Type, task.ID, task.NextProcessAt)
		}
		return nil
	default:
		return fmt.Errorf("unknown jobs subcommand %q", args[0])
	}
}
