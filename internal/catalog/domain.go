package catalog

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ItemKind selects the owning table of a catalog item.
type ItemKind string

const (
	KindProduct  ItemKind = "PRODUCT"
	KindMaterial ItemKind = "MATERIAL"
)

// Product is a finished good sold on bills. Stock and average cost are
// mutated only by stock movements and billing, never directly here.
type Product struct {
	ID           int64
	ShopID       int64
	SKU          string
	Name         string
	Unit         string
	SalePrice    decimal.Decimal
	CurrentStock decimal.Decimal
	AvgCost      decimal.Decimal
	MinStock     *decimal.Decimal
	MaxStock     *decimal.Decimal
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Material is a raw ingredient consumed by product recipes.
type Material struct {
	ID           int64
	ShopID       int64
	SKU          string
	Name         string
	Unit         string
	CurrentStock decimal.Decimal
	AvgCost      decimal.Decimal
	MinStock     *decimal.Decimal
	MaxStock     *decimal.Decimal
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RecipeItem links a product to one material with the quantity consumed per
// unit of product received.
type RecipeItem struct {
	ID               int64
	ShopID           int64
	ProductID        int64
	MaterialID       int64
	MaterialName     string
	MaterialUnit     string
	QuantityRequired decimal.Decimal
	Position         int
}

// ProductInput carries creatable/updatable product fields.
type ProductInput struct {
	ShopID    int64
	SKU       string
	Name      string
	Unit      string
	SalePrice decimal.Decimal
	MinStock  *decimal.Decimal
	MaxStock  *decimal.Decimal
	ActorID   int64
}

// MaterialInput carries creatable/updatable material fields.
type MaterialInput struct {
	ShopID   int64
	SKU      string
	Name     string
	Unit     string
	MinStock *decimal.Decimal
	MaxStock *decimal.Decimal
	ActorID  int64
}

// RecipeItemInput adds one material requirement to a product's recipe.
type RecipeItemInput struct {
	ShopID           int64
	ProductID        int64
	MaterialID       int64
	QuantityRequired decimal.Decimal
	ActorID          int64
}

// DeleteOutcome reports whether an item was removed or only deactivated.
type DeleteOutcome string

const (
	OutcomeDeleted     DeleteOutcome = "deleted"
	OutcomeDeactivated DeleteOutcome = "deactivated"
)

// ErrDuplicateSKU indicates the SKU is already taken within the shop.
var ErrDuplicateSKU = errors.New("catalog: sku already exists")

// ErrDuplicateRecipeItem indicates the product already requires that material.
var ErrDuplicateRecipeItem = errors.New("catalog: recipe already contains material")

// ErrInvalidQuantity indicates a non-positive recipe ratio.
var ErrInvalidQuantity = errors.New("catalog: quantity required must be positive")
