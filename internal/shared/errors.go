package shared

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidAPIKey indicates tenant authentication failure.
	ErrInvalidAPIKey = errors.New("invalid api key")
	// ErrShopSuspended indicates the shop is suspended or its subscription expired.
	ErrShopSuspended = errors.New("shop suspended or subscription expired")
)

// ValidationError reports an invalid or missing request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// InsufficientStockError reports a stock shortfall, carrying required versus
// available quantities so callers can surface both.
type InsufficientStockError struct {
	OwnerKind string
	OwnerName string
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s %q: required %s, available %s",
		e.OwnerKind, e.OwnerName, e.Required.String(), e.Available.String())
}
