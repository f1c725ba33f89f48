package shops

import (
	"errors"
	"time"
)

// Status is the shop lifecycle state.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
)

// Shop is one tenant. All business rows carry its ID.
type Shop struct {
	ID                    int64
	Name                  string
	Currency              string
	Status                Status
	SubscriptionExpiresAt *time.Time
	CreatedAt             time.Time
}

// Subscribed reports whether the shop may serve requests right now.
func (s Shop) Subscribed(now time.Time) bool {
	if s.Status != StatusActive {
		return false
	}
	if s.SubscriptionExpiresAt != nil && s.SubscriptionExpiresAt.Before(now) {
		return false
	}
	return true
}

// CreateInput describes a new shop.
type CreateInput struct {
	Name     string
	Currency string
}

// Credentials is returned once at shop creation; the raw API key is never
// stored or shown again.
type Credentials struct {
	Shop   Shop
	APIKey string
}

// ErrInvalidCurrency indicates an unknown ISO 4217 currency code.
var ErrInvalidCurrency = errors.New("shops: invalid currency code")
