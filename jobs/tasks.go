package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBalanceWarmup recomputes and caches balances of customers with dues.
	TaskBalanceWarmup = "balance:warmup"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// TaskNames lists the task types the worker handles.
var TaskNames = []string{TaskBalanceWarmup, TaskIdempotencyCleanup}

// BalanceWarmupPayload bounds one warmup run.
type BalanceWarmupPayload struct {
	Limit int `json:"limit"`
}

// IdempotencyCleanupPayload sets how long keys are kept.
type IdempotencyCleanupPayload struct {
	RetentionSeconds int64 `json:"retention_seconds"`
}

// NewBalanceWarmupTask builds a warmup task. A zero limit uses the handler default.
func NewBalanceWarmupTask(limit int) (*asynq.Task, error) {
	body, err := json.Marshal(BalanceWarmupPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBalanceWarmup, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// NewIdempotencyCleanupTask builds a cleanup task. A zero retention uses the handler default.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{RetentionSeconds: int64(retention / time.Second)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault), asynq.MaxRetry(1)), nil
}

// NewTask builds a task by type name with default payload values.
func NewTask(name string) (*asynq.Task, error) {
	switch name {
	case TaskBalanceWarmup:
		return NewBalanceWarmupTask(0)
	case TaskIdempotencyCleanup:
		return NewIdempotencyCleanupTask(0)
	}
	return nil, fmt.Errorf("jobs: unknown task %q (known: %v)", name, TaskNames)
}
