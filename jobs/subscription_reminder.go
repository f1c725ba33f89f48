package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tokoku-erp/tokoku-erp/internal/shops"
)

// TaskSubscriptionReminder flags shops whose subscription is about to lapse.
const TaskSubscriptionReminder = "shops:subscription-reminder"

const subscriptionWarningWindow = 7 * 24 * time.Hour

// SubscriptionReminderPayload carries scheduling metadata.
type SubscriptionReminderPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewSubscriptionReminderTask constructs the task.
func NewSubscriptionReminderTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(SubscriptionReminderPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSubscriptionReminder, body, asynq.Queue(QueueDefault)), nil
}

// HandleSubscriptionReminder processes TaskSubscriptionReminder tasks.
func (p *TaskProcessor) HandleSubscriptionReminder(ctx context.Context, t *asynq.Task) error {
	var payload SubscriptionReminderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	err := p.remindExpiringSubscriptions(ctx)
	p.observe(TaskSubscriptionReminder, err)
	return err
}

func (p *TaskProcessor) remindExpiringSubscriptions(ctx context.Context) error {
	shopList, err := p.shops.List(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, shop := range shopList {
		if shop.Status != shops.StatusActive || shop.SubscriptionExpiresAt == nil {
			continue
		}
		remaining := shop.SubscriptionExpiresAt.Sub(now)
		if remaining < 0 || remaining > subscriptionWarningWindow {
			continue
		}
		p.logger.Warn("subscription expiring soon",
			slog.Int64("shop_id", shop.ID),
			slog.String("shop", shop.Name),
			slog.Time("expires_at", *shop.SubscriptionExpiresAt))
	}
	return nil
}
