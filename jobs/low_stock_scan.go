package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// TaskLowStockScan walks every active shop and logs items under min stock.
const TaskLowStockScan = "stock:low-stock-scan"

// LowStockScanPayload carries scheduling metadata.
type LowStockScanPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLowStockScanTask constructs the task.
func NewLowStockScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(LowStockScanPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, body, asynq.Queue(QueueDefault)), nil
}

// HandleLowStockScan processes TaskLowStockScan tasks.
func (p *TaskProcessor) HandleLowStockScan(ctx context.Context, t *asynq.Task) error {
	var payload LowStockScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	err := p.scanLowStock(ctx)
	p.observe(TaskLowStockScan, err)
	return err
}

func (p *TaskProcessor) scanLowStock(ctx context.Context) error {
	shopList, err := p.shops.List(ctx)
	if err != nil {
		return err
	}
	for _, shop := range shopList {
		if !shop.Subscribed(time.Now()) {
			continue
		}
		products, materials, err := p.stock.ListBelowMinStock(ctx, shop.ID)
		if err != nil {
			return err
		}
		if len(products) == 0 && len(materials) == 0 {
			continue
		}
		p.logger.Warn("low stock detected",
			slog.Int64("shop_id", shop.ID),
			slog.Int("products", len(products)),
			slog.Int("materials", len(materials)))
	}
	return nil
}
