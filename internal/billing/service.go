package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tokoku-erp/tokoku-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBill(ctx context.Context, shopID, billID int64) (Bill, error)
	ListBills(ctx context.Context, filter ListFilter) ([]Bill, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service commits and reverses bills, keeping product stock reconciled with
// sale and return lines inside one transaction.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem}
}

// Create validates the lines, numbers the bill from the shop's yearly
// sequence, inserts bill and items, and mutates product stock per line. Any
// failure rolls back the whole bill; partial bills are never visible.
func (s *Service) Create(ctx context.Context, input CreateInput) (Bill, error) {
	if err := validateCreateInput(&input); err != nil {
		return Bill{}, err
	}

	ref := input.Ref
	if ref == "" {
		ref = uuid.NewString()
	} else if _, err := uuid.Parse(ref); err != nil {
		return Bill{}, shared.NewValidationError("ref", "must be a valid UUID")
	}
	key := fmt.Sprintf("billing:%d:%s", input.ShopID, ref)
	insertedKey := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "billing"); err != nil {
			return Bill{}, err
		}
		insertedKey = true
	}

	var committed Bill
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		year := input.IssuedAt.Year()
		seq, err := tx.NextBillNumber(ctx, input.ShopID, year)
		if err != nil {
			return err
		}

		bill := Bill{
			ShopID:        input.ShopID,
			Number:        fmt.Sprintf("INV-%d-%06d", year, seq),
			CustomerName:  input.CustomerName,
			Tax:           input.Tax,
			Paid:          input.Paid,
			PaymentMethod: input.PaymentMethod,
			Note:          input.Note,
			IssuedAt:      input.IssuedAt,
			CreatedBy:     input.ActorID,
		}

		subtotal := decimal.Zero
		for _, line := range input.Lines {
			lineTotal := line.Qty.Mul(line.UnitPrice).Sub(line.Discount)
			if line.Kind == LineSale {
				subtotal = subtotal.Add(lineTotal)
			} else {
				subtotal = subtotal.Sub(lineTotal)
			}
		}
		bill.Subtotal = subtotal
		bill.Total = subtotal.Add(input.Tax)
		bill.Due = bill.Total.Sub(input.Paid)

		billID, err := tx.InsertBill(ctx, bill)
		if err != nil {
			return err
		}
		bill.ID = billID

		for _, line := range input.Lines {
			product, err := tx.GetProductForUpdate(ctx, input.ShopID, line.ProductID)
			if err != nil {
				return err
			}
			if !product.Active {
				return ErrProductInactive
			}

			var newStock decimal.Decimal
			if line.Kind == LineSale {
				if product.CurrentStock.LessThan(line.Qty) {
					return &shared.InsufficientStockError{
						OwnerKind: "product",
						OwnerName: product.Name,
						Required:  line.Qty,
						Available: product.CurrentStock,
					}
				}
				newStock = product.CurrentStock.Sub(line.Qty)
			} else {
				newStock = product.CurrentStock.Add(line.Qty)
			}
			if err := tx.UpdateProductStock(ctx, input.ShopID, product.ID, newStock); err != nil {
				return err
			}

			item := BillItem{
				ShopID:      input.ShopID,
				BillID:      billID,
				ProductID:   line.ProductID,
				ProductName: product.Name,
				Kind:        line.Kind,
				Qty:         line.Qty,
				UnitPrice:   line.UnitPrice,
				Discount:    line.Discount,
				LineTotal:   line.Qty.Mul(line.UnitPrice).Sub(line.Discount),
			}
			if err := tx.InsertBillItem(ctx, item); err != nil {
				return err
			}

			if err := tx.InsertStockMovement(ctx, stockMovementParams{
				ShopID:      input.ShopID,
				Ref:         uuid.NewString(),
				ProductID:   line.ProductID,
				Outbound:    line.Kind == LineSale,
				Qty:         line.Qty,
				UnitCost:    product.AvgCost,
				RefType:     referenceTypeFor(line.Kind),
				ReferenceID: bill.Number,
				MovedAt:     input.IssuedAt,
				ActorID:     input.ActorID,
			}); err != nil {
				return err
			}
			bill.Items = append(bill.Items, item)
		}
		committed = bill
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return Bill{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ShopID:   input.ShopID,
			ActorID:  input.ActorID,
			Action:   "billing:create",
			Entity:   "bill",
			EntityID: committed.Number,
			Meta:     map[string]any{"total": committed.Total.String(), "lines": len(committed.Items)},
		})
	}
	return committed, nil
}

// Delete reverses every line's stock effect, removes the movement trail, then
// deletes items and bill in one transaction.
func (s *Service) Delete(ctx context.Context, shopID, billID, actorID int64) error {
	if shopID == 0 || billID == 0 {
		return shared.NewValidationError("bill_id", "is required")
	}
	var number string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		bill, err := tx.GetBillForUpdate(ctx, shopID, billID)
		if err != nil {
			return err
		}
		number = bill.Number
		items, err := tx.ListBillItems(ctx, shopID, billID)
		if err != nil {
			return err
		}
		for _, item := range items {
			product, err := tx.GetProductForUpdate(ctx, shopID, item.ProductID)
			if err != nil {
				return err
			}
			var newStock decimal.Decimal
			if item.Kind == LineSale {
				newStock = product.CurrentStock.Add(item.Qty)
			} else {
				if product.CurrentStock.LessThan(item.Qty) {
					return &shared.InsufficientStockError{
						OwnerKind: "product",
						OwnerName: product.Name,
						Required:  item.Qty,
						Available: product.CurrentStock,
					}
				}
				newStock = product.CurrentStock.Sub(item.Qty)
			}
			if err := tx.UpdateProductStock(ctx, shopID, item.ProductID, newStock); err != nil {
				return err
			}
		}
		if err := tx.DeleteStockMovements(ctx, shopID, bill.Number); err != nil {
			return err
		}
		if err := tx.DeleteBillItems(ctx, shopID, billID); err != nil {
			return err
		}
		return tx.DeleteBillRow(ctx, shopID, billID)
	})
	if err != nil {
		return err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ShopID:   shopID,
			ActorID:  actorID,
			Action:   "billing:delete",
			Entity:   "bill",
			EntityID: number,
		})
	}
	return nil
}

// Get fetches one bill with its items.
func (s *Service) Get(ctx context.Context, shopID, billID int64) (Bill, error) {
	if shopID == 0 || billID == 0 {
		return Bill{}, shared.ErrNotFound
	}
	return s.repo.GetBill(ctx, shopID, billID)
}

// List lists committed bills.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Bill, error) {
	if filter.ShopID == 0 {
		return nil, shared.NewValidationError("shop_id", "is required")
	}
	return s.repo.ListBills(ctx, filter)
}

func referenceTypeFor(kind LineKind) string {
	if kind == LineSale {
		return "sale"
	}
	return "return"
}

func validateCreateInput(input *CreateInput) error {
	if input.ShopID == 0 {
		return shared.NewValidationError("shop_id", "is required")
	}
	if len(input.Lines) == 0 {
		return ErrNoLines
	}
	if input.Tax.IsNegative() {
		return shared.NewValidationError("tax", "must be >= 0")
	}
	if input.Paid.IsNegative() {
		return shared.NewValidationError("paid", "must be >= 0")
	}
	if input.IssuedAt.IsZero() {
		input.IssuedAt = time.Now().UTC()
	}
	if input.PaymentMethod == "" {
		input.PaymentMethod = "CASH"
	}
	for _, line := range input.Lines {
		if line.Kind != LineSale && line.Kind != LineReturn {
			return ErrInvalidLineKind
		}
		if line.ProductID == 0 {
			return shared.NewValidationError("product_id", "is required")
		}
		if line.Qty.LessThanOrEqual(decimal.Zero) {
			return shared.NewValidationError("qty", "must be positive")
		}
		if line.UnitPrice.IsNegative() {
			return shared.NewValidationError("unit_price", "must be >= 0")
		}
		if line.Discount.IsNegative() {
			return shared.NewValidationError("discount", "must be >= 0")
		}
	}
	return nil
}
