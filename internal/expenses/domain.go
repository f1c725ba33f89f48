package expenses

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Expense is one operating cost entry outside inventory and payroll.
type Expense struct {
	ID        int64
	ShopID    int64
	Category  string
	Amount    decimal.Decimal
	Note      string
	SpentAt   time.Time
	CreatedBy int64
	CreatedAt time.Time
}

// CreateInput describes a new expense.
type CreateInput struct {
	ShopID   int64
	Category string
	Amount   decimal.Decimal
	Note     string
	SpentAt  time.Time
	ActorID  int64
}

// ListFilter filters expense listings.
type ListFilter struct {
	ShopID   int64
	Category string
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

// CategoryTotal is one row of the per-category summary.
type CategoryTotal struct {
	Category string
	Total    decimal.Decimal
	Count    int64
}

// ErrInvalidAmount indicates a non-positive expense amount.
var ErrInvalidAmount = errors.New("expenses: amount must be positive")
