package billing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// LineKind tags a bill line as a sale or a customer return.
type LineKind string

const (
	// LineSale decrements product stock when the bill is committed.
	LineSale LineKind = "SALE"
	// LineReturn increments product stock when the bill is committed.
	LineReturn LineKind = "RETURN"
)

// Bill is a committed point-of-sale transaction.
type Bill struct {
	ID            int64
	ShopID        int64
	Number        string
	CustomerName  string
	Subtotal      decimal.Decimal
	Tax           decimal.Decimal
	Total         decimal.Decimal
	Paid          decimal.Decimal
	Due           decimal.Decimal
	PaymentMethod string
	Note          string
	IssuedAt      time.Time
	CreatedBy     int64
	CreatedAt     time.Time
	Items         []BillItem
}

// BillItem is one line of a bill.
type BillItem struct {
	ID          int64
	ShopID      int64
	BillID      int64
	ProductID   int64
	ProductName string
	Kind        LineKind
	Qty         decimal.Decimal
	UnitPrice   decimal.Decimal
	Discount    decimal.Decimal
	LineTotal   decimal.Decimal
}

// productState is the slice of a product row billing needs.
type productState struct {
	ID           int64
	Name         string
	CurrentStock decimal.Decimal
	AvgCost      decimal.Decimal
	Active       bool
}

// LineInput describes one requested bill line.
type LineInput struct {
	ProductID int64
	Kind      LineKind
	Qty       decimal.Decimal
	UnitPrice decimal.Decimal
	Discount  decimal.Decimal
}

// CreateInput describes a bill to commit.
type CreateInput struct {
	ShopID        int64
	Ref           string
	CustomerName  string
	Tax           decimal.Decimal
	Paid          decimal.Decimal
	PaymentMethod string
	Note          string
	IssuedAt      time.Time
	ActorID       int64
	Lines         []LineInput
}

// ListFilter filters bill listings.
type ListFilter struct {
	ShopID int64
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// ErrNoLines indicates a bill without line items.
var ErrNoLines = errors.New("billing: at least one line is required")

// ErrInvalidLineKind indicates an unknown line kind.
var ErrInvalidLineKind = errors.New("billing: line kind must be SALE or RETURN")

// ErrProductInactive indicates a line references a deactivated product.
var ErrProductInactive = errors.New("billing: product inactive")
