package expenses

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/tokoku-erp/tokoku-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	Insert(ctx context.Context, input CreateInput) (Expense, error)
	Get(ctx context.Context, shopID, expenseID int64) (Expense, error)
	List(ctx context.Context, filter ListFilter) ([]Expense, error)
	Delete(ctx context.Context, shopID, expenseID int64) error
	TotalsByCategory(ctx context.Context, shopID int64, from, to time.Time) ([]CategoryTotal, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service tracks shop operating expenses.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// Create records an expense.
func (s *Service) Create(ctx context.Context, input CreateInput) (Expense, error) {
	input.Category = strings.TrimSpace(input.Category)
	if input.ShopID == 0 {
		return Expense{}, shared.NewValidationError("shop_id", "is required")
	}
	if input.Category == "" {
		return Expense{}, shared.NewValidationError("category", "is required")
	}
	if !input.Amount.IsPositive() {
		return Expense{}, ErrInvalidAmount
	}
	if input.SpentAt.IsZero() {
		input.SpentAt = time.Now().UTC()
	}
	expense, err := s.repo.Insert(ctx, input)
	if err != nil {
		return Expense{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ShopID:   input.ShopID,
			ActorID:  input.ActorID,
			Action:   "expenses:create",
			Entity:   "expense",
			EntityID: strconv.FormatInt(expense.ID, 10),
			Meta:     map[string]any{"category": expense.Category, "amount": expense.Amount.String()},
		})
	}
	return expense, nil
}

// Get fetches one expense.
func (s *Service) Get(ctx context.Context, shopID, expenseID int64) (Expense, error) {
	return s.repo.Get(ctx, shopID, expenseID)
}

// List lists expenses newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Expense, error) {
	if filter.ShopID == 0 {
		return nil, shared.NewValidationError("shop_id", "is required")
	}
	return s.repo.List(ctx, filter)
}

// Delete removes an expense.
func (s *Service) Delete(ctx context.Context, shopID, expenseID, actorID int64) error {
	if err := s.repo.Delete(ctx, shopID, expenseID); err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ShopID:   shopID,
			ActorID:  actorID,
			Action:   "expenses:delete",
			Entity:   "expense",
			EntityID: strconv.FormatInt(expenseID, 10),
		})
	}
	return nil
}

// TotalsByCategory sums expenses per category within a period.
func (s *Service) TotalsByCategory(ctx context.Context, shopID int64, from, to time.Time) ([]CategoryTotal, error) {
	if shopID == 0 {
		return nil, shared.NewValidationError("shop_id", "is required")
	}
	return s.repo.TotalsByCategory(ctx, shopID, from, to)
}
