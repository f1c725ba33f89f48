package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/tokoku-erp/tokoku-erp/internal/catalog"
	"github.com/tokoku-erp/tokoku-erp/internal/observability"
	"github.com/tokoku-erp/tokoku-erp/internal/shared"
	"github.com/tokoku-erp/tokoku-erp/internal/shops"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
)

// ShopDirectory lists registered shops for cross-tenant jobs.
type ShopDirectory interface {
	List(ctx context.Context) ([]shops.Shop, error)
}

// StockAlerter reports items under their minimum stock level.
type StockAlerter interface {
	ListBelowMinStock(ctx context.Context, shopID int64) ([]catalog.Product, []catalog.Material, error)
}

// IdempotencyCleaner prunes expired idempotency keys.
type IdempotencyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// TaskProcessor holds the dependencies shared by all task handlers.
type TaskProcessor struct {
	logger      *slog.Logger
	metrics     *observability.Metrics
	shops       ShopDirectory
	stock       StockAlerter
	idempotency IdempotencyCleaner
}

// TaskProcessorConfig collects TaskProcessor dependencies.
type TaskProcessorConfig struct {
	Logger      *slog.Logger
	Metrics     *observability.Metrics
	Shops       ShopDirectory
	Stock       StockAlerter
	Idempotency IdempotencyCleaner
}

// NewTaskProcessor constructs the processor.
func NewTaskProcessor(cfg TaskProcessorConfig) *TaskProcessor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskProcessor{
		logger:      logger,
		metrics:     cfg.Metrics,
		shops:       cfg.Shops,
		stock:       cfg.Stock,
		idempotency: cfg.Idempotency,
	}
}

func (p *TaskProcessor) observe(task string, err error) {
	if p.metrics != nil {
		p.metrics.ObserveJob(task, err)
	}
}

var _ IdempotencyCleaner = (*shared.IdempotencyStore)(nil)
