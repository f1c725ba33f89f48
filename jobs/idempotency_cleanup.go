package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// TaskIdempotencyCleanup prunes processed request keys past retention.
const TaskIdempotencyCleanup = "maintenance:idempotency-cleanup"

// Keys only need to outlive client retry windows.
const idempotencyRetention = 48 * time.Hour

// IdempotencyCleanupPayload carries scheduling metadata.
type IdempotencyCleanupPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewIdempotencyCleanupTask constructs the task.
func NewIdempotencyCleanupTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}

// HandleIdempotencyCleanup processes TaskIdempotencyCleanup tasks.
func (p *TaskProcessor) HandleIdempotencyCleanup(ctx context.Context, t *asynq.Task) error {
	var payload IdempotencyCleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	err := p.idempotency.Cleanup(ctx, idempotencyRetention)
	p.observe(TaskIdempotencyCleanup, err)
	return err
}
