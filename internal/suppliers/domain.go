package suppliers

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// EntryType classifies a ledger row. DEBIT records amounts the shop owes the
// supplier (purchases on credit), CREDIT records payments made to the supplier.
type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"
)

// Supplier is a vendor the shop buys from.
type Supplier struct {
	ID        int64
	ShopID    int64
	Name      string
	Phone     string
	Email     string
	Address   string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Balance holds the running totals for one supplier. The payable balance is
// total_debit minus total_credit.
type Balance struct {
	SupplierID  int64
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
}

// Outstanding returns what the shop still owes.
func (b Balance) Outstanding() decimal.Decimal {
	return b.TotalDebit.Sub(b.TotalCredit)
}

// Transaction is one append-only ledger row. Rows are never updated or
// deleted; corrections insert an offsetting row pointing back via ReversalOf.
type Transaction struct {
	ID          int64
	ShopID      int64
	SupplierID  int64
	Type        EntryType
	Amount      decimal.Decimal
	Description string
	Reference   string
	ReversalOf  int64
	CreatedBy   int64
	CreatedAt   time.Time
}

// RecordInput describes a new ledger entry.
type RecordInput struct {
	ShopID      int64
	SupplierID  int64
	Type        EntryType
	Amount      decimal.Decimal
	Description string
	Reference   string
	ActorID     int64
}

// CreateSupplierInput describes a new supplier.
type CreateSupplierInput struct {
	ShopID  int64
	Name    string
	Phone   string
	Email   string
	Address string
	ActorID int64
}

// UpdateSupplierInput carries mutable supplier fields.
type UpdateSupplierInput struct {
	ShopID     int64
	SupplierID int64
	Name       string
	Phone      string
	Email      string
	Address    string
	Active     *bool
	ActorID    int64
}

// ListFilter filters ledger listings.
type ListFilter struct {
	ShopID     int64
	SupplierID int64
	Limit      int
	Offset     int
}

// ErrInvalidAmount indicates a non-positive ledger amount.
var ErrInvalidAmount = errors.New("suppliers: amount must be positive")

// ErrInvalidEntryType indicates an unknown entry type.
var ErrInvalidEntryType = errors.New("suppliers: entry type must be DEBIT or CREDIT")

// ErrAlreadyReversed indicates the transaction was reversed before.
var ErrAlreadyReversed = errors.New("suppliers: transaction already reversed")

// ErrReversalOfReversal indicates an attempt to reverse an offsetting row.
var ErrReversalOfReversal = errors.New("suppliers: cannot reverse a reversal entry")
