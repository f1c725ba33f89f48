package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tokoku-erp/tokoku-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetMovement(ctx context.Context, shopID, id int64) (Movement, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates stock movements, weighted-average costing and the
// ingredient consumption cascade.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem}
}

// RecordMovement posts a stock movement against a product or material. A
// product inbound additionally consumes its recipe materials in the same
// transaction; any shortfall aborts the whole operation.
func (s *Service) RecordMovement(ctx context.Context, input RecordInput) (Movement, error) {
	if err := validateRecordInput(input); err != nil {
		return Movement{}, err
	}
	if input.MovedAt.IsZero() {
		input.MovedAt = time.Now().UTC()
	}
	ref := input.Ref
	if ref == "" {
		ref = uuid.NewString()
	} else if _, err := uuid.Parse(ref); err != nil {
		return Movement{}, shared.NewValidationError("ref", "must be a valid UUID")
	}

	key := fmt.Sprintf("inventory:%d:%s", input.ShopID, ref)
	insertedKey := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "inventory"); err != nil {
			return Movement{}, err
		}
		insertedKey = true
	}

	var posted Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m, err := s.post(ctx, tx, input, ref, 0)
		if err != nil {
			return err
		}
		posted = m
		return nil
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return Movement{}, err
	}

	s.recordAudit(ctx, input.ShopID, input.ActorID, fmt.Sprintf("inventory:%s", input.Type), posted)
	return posted, nil
}

// UpdateMovement replaces the quantity and cost of an existing movement. The
// original effect is undone with the original values, then the new effect is
// applied as if freshly recorded, all inside one transaction.
func (s *Service) UpdateMovement(ctx context.Context, input UpdateInput) (Movement, error) {
	if input.ShopID == 0 || input.MovementID == 0 {
		return Movement{}, shared.NewValidationError("movement_id", "is required")
	}
	var updated Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m, err := tx.GetMovementForUpdate(ctx, input.ShopID, input.MovementID)
		if err != nil {
			return err
		}
		if m.ParentID != 0 {
			return shared.NewValidationError("movement_id", "is a production consumption record; edit its parent instead")
		}
		if err := validateQtyForType(m.Type, input.Qty); err != nil {
			return err
		}
		if input.UnitCost.IsNegative() {
			return ErrInvalidUnitCost
		}
		if err := s.unwind(ctx, tx, m); err != nil {
			return err
		}

		redo := RecordInput{
			ShopID:        m.ShopID,
			OwnerKind:     m.OwnerKind,
			OwnerID:       m.OwnerID,
			Type:          m.Type,
			Qty:           input.Qty,
			UnitCost:      input.UnitCost,
			ReferenceType: m.ReferenceType,
			ReferenceID:   m.ReferenceID,
			Note:          input.Note,
			MovedAt:       input.MovedAt,
			ActorID:       input.ActorID,
		}
		if redo.MovedAt.IsZero() {
			redo.MovedAt = m.MovedAt
		}
		if redo.Note == "" {
			redo.Note = m.Note
		}
		applied, err := s.post(ctx, tx, redo, m.Ref, m.ID)
		if err != nil {
			return err
		}
		updated = applied
		return nil
	})
	if err != nil {
		return Movement{}, err
	}

	s.recordAudit(ctx, input.ShopID, input.ActorID, "inventory:update", updated)
	return updated, nil
}

// DeleteMovement removes a movement after reversing its exact stock and cost
// effect, including any production consumption it cascaded into.
func (s *Service) DeleteMovement(ctx context.Context, shopID, movementID, actorID int64) error {
	if shopID == 0 || movementID == 0 {
		return shared.NewValidationError("movement_id", "is required")
	}
	var removed Movement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		m, err := tx.GetMovementForUpdate(ctx, shopID, movementID)
		if err != nil {
			return err
		}
		if m.ParentID != 0 {
			return shared.NewValidationError("movement_id", "is a production consumption record; delete its parent instead")
		}
		if err := s.unwind(ctx, tx, m); err != nil {
			return err
		}
		if err := tx.DeleteMovementRow(ctx, shopID, m.ID); err != nil {
			return err
		}
		removed = m
		return nil
	})
	if err != nil {
		return err
	}

	s.recordAudit(ctx, shopID, actorID, "inventory:delete", removed)
	return nil
}

// GetMovement fetches a single movement.
func (s *Service) GetMovement(ctx context.Context, shopID, id int64) (Movement, error) {
	if shopID == 0 || id == 0 {
		return Movement{}, shared.ErrNotFound
	}
	return s.repo.GetMovement(ctx, shopID, id)
}

// ListMovements lists stock card entries for one product or material.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.ShopID == 0 || filter.OwnerID == 0 {
		return nil, shared.NewValidationError("owner_id", "is required")
	}
	if filter.OwnerKind != OwnerProduct && filter.OwnerKind != OwnerMaterial {
		return nil, ErrInvalidOwnerKind
	}
	return s.repo.ListMovements(ctx, filter)
}

// post applies a movement effect to its owner and writes the row. When
// existingID is non-zero the movement row is updated in place instead of
// inserted (the redo half of an edit).
func (s *Service) post(ctx context.Context, tx TxRepository, input RecordInput, ref string, existingID int64) (Movement, error) {
	owner, err := tx.GetOwnerForUpdate(ctx, input.ShopID, input.OwnerKind, input.OwnerID)
	if err != nil {
		return Movement{}, err
	}
	if !owner.Active {
		return Movement{}, ErrOwnerInactive
	}

	newStock, newAvg, unitCost, err := applyEffect(owner, input.Type, input.Qty, input.UnitCost)
	if err != nil {
		return Movement{}, err
	}

	qtyAbs := input.Qty.Abs()
	m := Movement{
		ID:            existingID,
		ShopID:        input.ShopID,
		Ref:           ref,
		OwnerKind:     input.OwnerKind,
		OwnerID:       input.OwnerID,
		Type:          input.Type,
		Qty:           input.Qty,
		UnitCost:      unitCost,
		TotalCost:     qtyAbs.Mul(unitCost),
		ReferenceType: input.ReferenceType,
		ReferenceID:   input.ReferenceID,
		Note:          input.Note,
		MovedAt:       input.MovedAt,
		CreatedBy:     input.ActorID,
	}
	if existingID == 0 {
		id, err := tx.InsertMovement(ctx, m)
		if err != nil {
			return Movement{}, err
		}
		m.ID = id
	} else {
		if err := tx.UpdateMovementRow(ctx, m); err != nil {
			return Movement{}, err
		}
	}

	if err := tx.UpdateOwnerBalance(ctx, input.ShopID, input.OwnerKind, input.OwnerID, newStock, newAvg); err != nil {
		return Movement{}, err
	}

	if input.OwnerKind == OwnerProduct && input.Type == MovementIn {
		if err := s.consumeRecipe(ctx, tx, m); err != nil {
			return Movement{}, err
		}
	}
	return m, nil
}

// consumeRecipe deducts every recipe material for a product inbound, recording
// an OUT movement per material referencing the triggering movement. Materials
// are processed in recipe order and the whole set is atomic.
func (s *Service) consumeRecipe(ctx context.Context, tx TxRepository, parent Movement) error {
	links, err := tx.ListRecipe(ctx, parent.ShopID, parent.OwnerID)
	if err != nil {
		return err
	}
	for _, link := range links {
		required := link.QuantityRequired.Mul(parent.Qty)
		if required.LessThanOrEqual(decimal.Zero) {
			continue
		}
		mat, err := tx.GetOwnerForUpdate(ctx, parent.ShopID, OwnerMaterial, link.MaterialID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return fmt.Errorf("inventory: recipe material %d: %w", link.MaterialID, err)
			}
			return err
		}
		if mat.CurrentStock.LessThan(required) {
			return &shared.InsufficientStockError{
				OwnerKind: "material",
				OwnerName: mat.Name,
				Required:  required,
				Available: mat.CurrentStock,
			}
		}
		newStock := mat.CurrentStock.Sub(required)
		if err := tx.UpdateOwnerBalance(ctx, parent.ShopID, OwnerMaterial, mat.ID, newStock, mat.AvgCost); err != nil {
			return err
		}
		child := Movement{
			ShopID:        parent.ShopID,
			Ref:           uuid.NewString(),
			OwnerKind:     OwnerMaterial,
			OwnerID:       mat.ID,
			Type:          MovementOut,
			Qty:           required,
			UnitCost:      mat.AvgCost,
			TotalCost:     required.Mul(mat.AvgCost),
			ReferenceType: RefProduction,
			ReferenceID:   parent.Ref,
			ParentID:      parent.ID,
			Note:          fmt.Sprintf("consumed by %s stock-in", parent.Ref),
			MovedAt:       parent.MovedAt,
			CreatedBy:     parent.CreatedBy,
		}
		if _, err := tx.InsertMovement(ctx, child); err != nil {
			return err
		}
	}
	return nil
}

// unwind reverses a movement and its cascade children, deleting the child
// rows. The parent row is left for the caller to delete or rewrite.
func (s *Service) unwind(ctx context.Context, tx TxRepository, m Movement) error {
	children, err := tx.ListChildren(ctx, m.ShopID, m.ID)
	if err != nil {
		return err
	}
	for i := len(children) - 1; i >= 0; i-- {
		child := children[i]
		if err := s.undoEffect(ctx, tx, child); err != nil {
			return err
		}
		if err := tx.DeleteMovementRow(ctx, m.ShopID, child.ID); err != nil {
			return err
		}
	}
	return s.undoEffect(ctx, tx, m)
}

// undoEffect applies the exact inverse of a movement's stock and cost effect
// using the originally recorded quantity and unit cost.
func (s *Service) undoEffect(ctx context.Context, tx TxRepository, m Movement) error {
	owner, err := tx.GetOwnerForUpdate(ctx, m.ShopID, m.OwnerKind, m.OwnerID)
	if err != nil {
		return err
	}

	var newStock, newAvg decimal.Decimal
	if isInbound(m.Type, m.Qty) {
		qty := m.Qty.Abs()
		if owner.CurrentStock.LessThan(qty) {
			return &shared.InsufficientStockError{
				OwnerKind: string(m.OwnerKind),
				OwnerName: owner.Name,
				Required:  qty,
				Available: owner.CurrentStock,
			}
		}
		newStock = owner.CurrentStock.Sub(qty)
		newAvg = ReverseAverageCost(owner.CurrentStock, owner.AvgCost, qty, m.UnitCost)
	} else {
		qty := m.Qty.Abs()
		newStock = owner.CurrentStock.Add(qty)
		newAvg = AverageCost(owner.CurrentStock, owner.AvgCost, qty, m.UnitCost)
	}
	return tx.UpdateOwnerBalance(ctx, m.ShopID, m.OwnerKind, m.OwnerID, newStock, newAvg)
}

// applyEffect computes the owner's new stock and average cost for a movement.
// Outbound movements leave at the current average cost; inbound movements
// reprice the average with the incoming lot.
func applyEffect(owner StockOwner, mType MovementType, qty, unitCost decimal.Decimal) (newStock, newAvg, movementCost decimal.Decimal, err error) {
	if isInbound(mType, qty) {
		q := qty.Abs()
		newStock = owner.CurrentStock.Add(q)
		newAvg = AverageCost(owner.CurrentStock, owner.AvgCost, q, unitCost)
		return newStock, newAvg, unitCost, nil
	}

	q := qty.Abs()
	if owner.CurrentStock.LessThan(q) {
		return decimal.Decimal{}, decimal.Decimal{}, decimal.Decimal{}, &shared.InsufficientStockError{
			OwnerKind: string(owner.Kind),
			OwnerName: owner.Name,
			Required:  q,
			Available: owner.CurrentStock,
		}
	}
	newStock = owner.CurrentStock.Sub(q)
	newAvg = owner.AvgCost
	if newStock.IsZero() {
		newAvg = decimal.Zero
	}
	return newStock, newAvg, owner.AvgCost, nil
}

func isInbound(mType MovementType, qty decimal.Decimal) bool {
	switch mType {
	case MovementIn:
		return true
	case MovementOut:
		return false
	default:
		return qty.GreaterThan(decimal.Zero)
	}
}

func validateRecordInput(input RecordInput) error {
	if input.ShopID == 0 {
		return shared.NewValidationError("shop_id", "is required")
	}
	if input.OwnerID == 0 {
		return shared.NewValidationError("owner_id", "is required")
	}
	if input.OwnerKind != OwnerProduct && input.OwnerKind != OwnerMaterial {
		return ErrInvalidOwnerKind
	}
	if err := validateQtyForType(input.Type, input.Qty); err != nil {
		return err
	}
	if input.UnitCost.IsNegative() {
		return ErrInvalidUnitCost
	}
	return nil
}

func validateQtyForType(mType MovementType, qty decimal.Decimal) error {
	switch mType {
	case MovementIn, MovementOut:
		if qty.LessThanOrEqual(decimal.Zero) {
			return ErrInvalidQuantity
		}
	case MovementAdjust:
		if qty.IsZero() {
			return ErrInvalidQuantity
		}
	default:
		return shared.NewValidationError("type", "must be IN, OUT or ADJUST")
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, shopID, actorID int64, action string, m Movement) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ShopID:   shopID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_movement",
		EntityID: m.Ref,
		Meta: map[string]any{
			"owner_kind": string(m.OwnerKind),
			"owner_id":   m.OwnerID,
			"qty":        m.Qty.String(),
			"unit_cost":  m.UnitCost.String(),
			"ref_type":   m.ReferenceType,
		},
	})
}
