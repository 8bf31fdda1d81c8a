// Package ops holds the operational helpers behind ledgerctl.
package ops

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/hibiken/asynq"

	"github.com/partsledger/partsledger/jobs"
)

// Enqueuer submits tasks by name.
type Enqueuer interface {
	Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error)
	Close() error
}

// Inspector reads queue state.
type Inspector interface {
	jobs.StatsReader
	ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	Close() error
}

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    Enqueuer
	inspector Inspector
}

// NewJobsCLI initialises the helpers against the given Redis.
func NewJobsCLI(opts asynq.RedisClientOpt) *JobsCLI {
	return &JobsCLI{client: jobs.NewClient(opts), inspector: asynq.NewInspector(opts)}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var errs []error
	if c.inspector != nil {
		errs = append(errs, c.inspector.Close())
	}
	if c.client != nil {
		errs = append(errs, c.client.Close())
	}
	return errors.Join(errs...)
}

// Trigger enqueues a supported job by name and reports the task id.
func (c *JobsCLI) Trigger(ctx context.Context, w io.Writer, name string) error {
	if c == nil || c.client == nil {
		return errors.New("jobs cli: client not configured")
	}
	info, err := c.client.Trigger(ctx, name)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "enqueued %s id=%s queue=%s\n", name, info.ID, info.Queue)
	return err
}

// Stats prints the default queue stats.
func (c *JobsCLI) Stats(w io.Writer) error {
	if c == nil || c.inspector == nil {
		return errors.New("jobs cli: inspector not configured")
	}
	stats, err := jobs.ReadQueueStats(c.inspector)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "queue\t%s\n", stats.Queue)
	fmt.Fprintf(tw, "pending\t%d\n", stats.Pending)
	fmt.Fprintf(tw, "active\t%d\n", stats.Active)
	fmt.Fprintf(tw, "scheduled\t%d\n", stats.Scheduled)
	fmt.Fprintf(tw, "retry\t%d\n", stats.Retry)
	fmt.Fprintf(tw, "archived\t%d\n", stats.Archived)
	fmt.Fprintf(tw, "processed\t%d\n", stats.Processed)
	fmt.Fprintf(tw, "failed\t%d\n", stats.Failed)
	return tw.Flush()
}

// Scheduled lists up to size scheduled tasks.
func (c *JobsCLI) Scheduled(w io.Writer, size int) error {
	if c == nil || c.inspector == nil {
		return errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	tasks, err := c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.UTC().Format("2006-01-02T15:04:05Z")); err != nil {
			return err
		}
	}
	return nil
}
