package suppliers

import (
	"context"
	"strconv"
	"strings"

	"github.com/tokoku-erp/tokoku-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSupplier(ctx context.Context, shopID, supplierID int64) (Supplier, error)
	ListSuppliers(ctx context.Context, shopID int64) ([]Supplier, error)
	GetBalance(ctx context.Context, shopID, supplierID int64) (Balance, error)
	ListTransactions(ctx context.Context, filter ListFilter) ([]Transaction, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service maintains supplier ledgers. Every balance change goes through an
// append-only transaction row plus one atomic totals update.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// CreateSupplier registers a supplier.
func (s *Service) CreateSupplier(ctx context.Context, input CreateSupplierInput) (Supplier, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.ShopID == 0 {
		return Supplier{}, shared.NewValidationError("shop_id", "is required")
	}
	if input.Name == "" {
		return Supplier{}, shared.NewValidationError("name", "is required")
	}
	var created Supplier
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertSupplier(ctx, input)
		return err
	})
	if err != nil {
		return Supplier{}, err
	}
	s.auditRecord(ctx, input.ShopID, input.ActorID, "suppliers:create", created.ID)
	return created, nil
}

// UpdateSupplier edits supplier master data.
func (s *Service) UpdateSupplier(ctx context.Context, input UpdateSupplierInput) (Supplier, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return Supplier{}, shared.NewValidationError("name", "is required")
	}
	var updated Supplier
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		updated, err = tx.UpdateSupplier(ctx, input)
		return err
	})
	if err != nil {
		return Supplier{}, err
	}
	s.auditRecord(ctx, input.ShopID, input.ActorID, "suppliers:update", updated.ID)
	return updated, nil
}

// RecordTransaction appends a ledger entry and bumps the running totals. The
// balance row is created lazily on the supplier's first entry.
func (s *Service) RecordTransaction(ctx context.Context, input RecordInput) (Transaction, error) {
	if input.Type != EntryDebit && input.Type != EntryCredit {
		return Transaction{}, ErrInvalidEntryType
	}
	if !input.Amount.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}
	var entry Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetSupplierForUpdate(ctx, input.ShopID, input.SupplierID); err != nil {
			return err
		}
		var err error
		entry, err = tx.InsertTransaction(ctx, Transaction{
			ShopID:      input.ShopID,
			SupplierID:  input.SupplierID,
			Type:        input.Type,
			Amount:      input.Amount,
			Description: input.Description,
			Reference:   input.Reference,
			CreatedBy:   input.ActorID,
		})
		if err != nil {
			return err
		}
		return tx.ApplyToBalance(ctx, input.ShopID, input.SupplierID, input.Type, input.Amount)
	})
	if err != nil {
		return Transaction{}, err
	}
	s.auditRecord(ctx, input.ShopID, input.ActorID, "suppliers:"+strings.ToLower(string(input.Type)), entry.ID)
	return entry, nil
}

// ReverseTransaction corrects a ledger entry by appending an offsetting row
// with the opposite entry type. The original row is left untouched.
func (s *Service) ReverseTransaction(ctx context.Context, shopID, transactionID, actorID int64) (Transaction, error) {
	var offset Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetTransactionForUpdate(ctx, shopID, transactionID)
		if err != nil {
			return err
		}
		if original.ReversalOf != 0 {
			return ErrReversalOfReversal
		}
		reversed, err := tx.HasReversal(ctx, shopID, transactionID)
		if err != nil {
			return err
		}
		if reversed {
			return ErrAlreadyReversed
		}
		opposite := EntryCredit
		if original.Type == EntryCredit {
			opposite = EntryDebit
		}
		offset, err = tx.InsertTransaction(ctx, Transaction{
			ShopID:      shopID,
			SupplierID:  original.SupplierID,
			Type:        opposite,
			Amount:      original.Amount,
			Description: "reversal of entry " + original.Reference,
			Reference:   original.Reference,
			ReversalOf:  original.ID,
			CreatedBy:   actorID,
		})
		if err != nil {
			return err
		}
		return tx.ApplyToBalance(ctx, shopID, original.SupplierID, opposite, original.Amount)
	})
	if err != nil {
		return Transaction{}, err
	}
	s.auditRecord(ctx, shopID, actorID, "suppliers:reverse", transactionID)
	return offset, nil
}

// GetSupplier fetches a supplier.
func (s *Service) GetSupplier(ctx context.Context, shopID, supplierID int64) (Supplier, error) {
	return s.repo.GetSupplier(ctx, shopID, supplierID)
}

// ListSuppliers lists all suppliers of a shop.
func (s *Service) ListSuppliers(ctx context.Context, shopID int64) ([]Supplier, error) {
	return s.repo.ListSuppliers(ctx, shopID)
}

// GetBalance returns the supplier's running totals. Suppliers without any
// ledger entry yet report zero totals.
func (s *Service) GetBalance(ctx context.Context, shopID, supplierID int64) (Balance, error) {
	return s.repo.GetBalance(ctx, shopID, supplierID)
}

// ListTransactions lists ledger entries newest first.
func (s *Service) ListTransactions(ctx context.Context, filter ListFilter) ([]Transaction, error) {
	if filter.ShopID == 0 {
		return nil, shared.NewValidationError("shop_id", "is required")
	}
	return s.repo.ListTransactions(ctx, filter)
}

func (s *Service) auditRecord(ctx context.Context, shopID, actorID int64, action string, entityID int64) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ShopID:   shopID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "supplier",
		EntityID: strconv.FormatInt(entityID, 10),
	})
}
