package inventory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// OwnerKind identifies which balance a movement mutates.
type OwnerKind string

const (
	// OwnerProduct targets a finished product.
	OwnerProduct OwnerKind = "PRODUCT"
	// OwnerMaterial targets a raw material.
	OwnerMaterial OwnerKind = "MATERIAL"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementIn represents an inbound movement (purchase, production yield).
	MovementIn MovementType = "IN"
	// MovementOut represents an outbound movement (sale, consumption).
	MovementOut MovementType = "OUT"
	// MovementAdjust indicates a manual signed adjustment.
	MovementAdjust MovementType = "ADJUST"
)

// Reference types linking a movement back to its originating document.
const (
	RefPurchase   = "purchase"
	RefProduction = "production"
	RefSale       = "sale"
	RefReturn     = "return"
	RefManual     = "manual"
)

// Movement is the immutable-intent record of a single quantity change.
// Edits and deletes reverse the prior effect before applying a new one.
type Movement struct {
	ID            int64
	ShopID        int64
	Ref           string
	OwnerKind     OwnerKind
	OwnerID       int64
	Type          MovementType
	Qty           decimal.Decimal
	UnitCost      decimal.Decimal
	TotalCost     decimal.Decimal
	ReferenceType string
	ReferenceID   string
	ParentID      int64
	Note          string
	MovedAt       time.Time
	CreatedBy     int64
	CreatedAt     time.Time
}

// StockOwner is the balance view of a product or material.
type StockOwner struct {
	Kind         OwnerKind
	ID           int64
	Name         string
	Unit         string
	CurrentStock decimal.Decimal
	AvgCost      decimal.Decimal
	Active       bool
}

// RecipeRequirement declares how much of a raw material one unit of a
// finished product consumes when stocked in.
type RecipeRequirement struct {
	MaterialID       int64
	MaterialName     string
	QuantityRequired decimal.Decimal
	Position         int
}

// RecordInput describes a new stock movement.
type RecordInput struct {
	ShopID        int64
	Ref           string
	OwnerKind     OwnerKind
	OwnerID       int64
	Type          MovementType
	Qty           decimal.Decimal
	UnitCost      decimal.Decimal
	ReferenceType string
	ReferenceID   string
	Note          string
	MovedAt       time.Time
	ActorID       int64
}

// UpdateInput replaces the quantity/cost of an existing movement.
type UpdateInput struct {
	ShopID     int64
	MovementID int64
	Qty        decimal.Decimal
	UnitCost   decimal.Decimal
	Note       string
	MovedAt    time.Time
	ActorID    int64
}

// MovementFilter filters stock card listings.
type MovementFilter struct {
	ShopID    int64
	OwnerKind OwnerKind
	OwnerID   int64
	From      time.Time
	To        time.Time
	Limit     int
}

// ErrInvalidQuantity indicates a zero or wrongly signed quantity.
var ErrInvalidQuantity = errors.New("inventory: quantity must be positive")

// ErrInvalidUnitCost indicates a negative cost value.
var ErrInvalidUnitCost = errors.New("inventory: unit cost must be >= 0")

// ErrOwnerInactive indicates the product/material is deactivated.
var ErrOwnerInactive = errors.New("inventory: product or material inactive")

// ErrInvalidOwnerKind indicates an unknown owner kind.
var ErrInvalidOwnerKind = errors.New("inventory: owner kind must be PRODUCT or MATERIAL")
