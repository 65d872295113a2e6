package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/trekgear/gearstock/jobs"
)

// JobOps is what the jobs command needs from the queue.
type JobOps interface {
	TriggerStockAudit(ctx context.Context) (*asynq.TaskInfo, error)
	RecomputeOrders(ctx context.Context, orderIDs ...int64) (*asynq.TaskInfo, error)
	InspectQueue(ctx context.Context) (jobs.QueueSnapshot, error)
}

const jobsUsage = `usage: gearstock jobs <command>

commands:
  audit                      enqueue a stock audit now
  recompute -orders 1,2,3    enqueue an order status rebuild
  queue [-json]              show default queue statistics
`

// RunJobsCommand executes one jobs subcommand and returns the exit code.
func RunJobsCommand(ctx context.Context, ops JobOps, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, jobsUsage)
		return 2
	}
	switch args[0] {
	case "audit":
		info, err := ops.TriggerStockAudit(ctx)
		if errors.Is(err, jobs.ErrAuditPending) {
			_, _ = fmt.Fprintln(stdout, "stock audit already queued")
			return 0
		}
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs audit: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "enqueued %s (%s)\n", info.Type, info.ID)
		return 0
	case "recompute":
		fs := flag.NewFlagSet("recompute", flag.ContinueOnError)
		fs.SetOutput(stderr)
		orders := fs.String("orders", "", "comma separated order ids")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		ids, err := parseIDs(*orders)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs recompute: %v\n", err)
			return 2
		}
		info, err := ops.RecomputeOrders(ctx, ids...)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs recompute: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "enqueued %s (%s) for %d orders\n", info.Type, info.ID, len(ids))
		return 0
	case "queue":
		fs := flag.NewFlagSet("queue", flag.ContinueOnError)
		fs.SetOutput(stderr)
		asJSON := fs.Bool("json", false, "print JSON")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		stats, err := ops.InspectQueue(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "jobs queue: %v\n", err)
			return 1
		}
		if *asJSON {
			if err := json.NewEncoder(stdout).Encode(stats); err != nil {
				_, _ = fmt.Fprintf(stderr, "jobs queue: encode json: %v\n", err)
				return 1
			}
			return 0
		}
		_, _ = fmt.Fprintf(stdout, "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d paused=%t\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived, stats.Paused)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "unknown jobs command %q\n\n%s", args[0], jobsUsage)
		return 2
	}
}

func parseIDs(raw string) ([]int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("-orders is required")
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid order id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
