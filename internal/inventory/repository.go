package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tokoku-erp/tokoku-erp/internal/platform/db"
	"github.com/tokoku-erp/tokoku-erp/internal/shared"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetOwnerForUpdate(ctx context.Context, shopID int64, kind OwnerKind, id int64) (StockOwner, error)
	UpdateOwnerBalance(ctx context.Context, shopID int64, kind OwnerKind, id int64, stock, avgCost decimal.Decimal) error
	InsertMovement(ctx context.Context, m Movement) (int64, error)
	UpdateMovementRow(ctx context.Context, m Movement) error
	DeleteMovementRow(ctx context.Context, shopID, id int64) error
	GetMovementForUpdate(ctx context.Context, shopID, id int64) (Movement, error)
	ListChildren(ctx context.Context, shopID, parentID int64) ([]Movement, error)
	ListRecipe(ctx context.Context, shopID, productID int64) ([]RecipeRequirement, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const movementColumns = `id, shop_id, ref, owner_kind, owner_id, movement_type, qty, unit_cost, total_cost, reference_type, reference_id, COALESCE(parent_id, 0), note, moved_at, COALESCE(created_by, 0), created_at`

// GetMovement fetches one movement scoped to the shop.
func (r *Repository) GetMovement(ctx context.Context, shopID, id int64) (Movement, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+movementColumns+` FROM stock_movements WHERE shop_id=$1 AND id=$2`, shopID, id)
	m, err := scanMovement(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Movement{}, fmt.Errorf("movement %d: %w", id, shared.ErrNotFound)
		}
		return Movement{}, err
	}
	return m, nil
}

// ListMovements returns the stock card entries for one owner.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT `+movementColumns+` FROM stock_movements
WHERE shop_id=$1 AND owner_kind=$2 AND owner_id=$3
  AND moved_at BETWEEN COALESCE($4, '-infinity') AND COALESCE($5, 'infinity')
ORDER BY moved_at ASC, id ASC
LIMIT $6`, filter.ShopID, string(filter.OwnerKind), filter.OwnerID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func ownerTable(kind OwnerKind) string {
	if kind == OwnerProduct {
		return "products"
	}
	return "materials"
}

func (r *txRepository) GetOwnerForUpdate(ctx context.Context, shopID int64, kind OwnerKind, id int64) (StockOwner, error) {
	owner := StockOwner{Kind: kind, ID: id}
	query := fmt.Sprintf(`SELECT name, unit, current_stock, avg_cost, is_active FROM %s WHERE shop_id=$1 AND id=$2 FOR UPDATE`, ownerTable(kind))
	err := r.tx.QueryRow(ctx, query, shopID, id).
		Scan(&owner.Name, &owner.Unit, &owner.CurrentStock, &owner.AvgCost, &owner.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockOwner{}, fmt.Errorf("%s %d: %w", kind, id, shared.ErrNotFound)
		}
		return StockOwner{}, err
	}
	return owner, nil
}

func (r *txRepository) UpdateOwnerBalance(ctx context.Context, shopID int64, kind OwnerKind, id int64, stock, avgCost decimal.Decimal) error {
	query := fmt.Sprintf(`UPDATE %s SET current_stock=$3, avg_cost=$4, updated_at=NOW() WHERE shop_id=$1 AND id=$2`, ownerTable(kind))
	_, err := r.tx.Exec(ctx, query, shopID, id, stock, avgCost)
	return err
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (shop_id, ref, owner_kind, owner_id, movement_type, qty, unit_cost, total_cost, reference_type, reference_id, parent_id, note, moved_at, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NOW()) RETURNING id`,
		m.ShopID, m.Ref, string(m.OwnerKind), m.OwnerID, string(m.Type), m.Qty, m.UnitCost, m.TotalCost,
		m.ReferenceType, m.ReferenceID, nullInt(m.ParentID), m.Note, m.MovedAt, nullInt(m.CreatedBy)).Scan(&id)
	return id, err
}

func (r *txRepository) UpdateMovementRow(ctx context.Context, m Movement) error {
	_, err := r.tx.Exec(ctx, `UPDATE stock_movements SET qty=$3, unit_cost=$4, total_cost=$5, note=$6, moved_at=$7 WHERE shop_id=$1 AND id=$2`,
		m.ShopID, m.ID, m.Qty, m.UnitCost, m.TotalCost, m.Note, m.MovedAt)
	return err
}

func (r *txRepository) DeleteMovementRow(ctx context.Context, shopID, id int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM stock_movements WHERE shop_id=$1 AND id=$2`, shopID, id)
	return err
}

func (r *txRepository) GetMovementForUpdate(ctx context.Context, shopID, id int64) (Movement, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+movementColumns+` FROM stock_movements WHERE shop_id=$1 AND id=$2 FOR UPDATE`, shopID, id)
	m, err := scanMovement(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Movement{}, fmt.Errorf("movement %d: %w", id, shared.ErrNotFound)
		}
		return Movement{}, err
	}
	return m, nil
}

func (r *txRepository) ListChildren(ctx context.Context, shopID, parentID int64) ([]Movement, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+movementColumns+` FROM stock_movements WHERE shop_id=$1 AND parent_id=$2 ORDER BY id ASC FOR UPDATE`, shopID, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var children []Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		children = append(children, m)
	}
	return children, rows.Err()
}

func (r *txRepository) ListRecipe(ctx context.Context, shopID, productID int64) ([]RecipeRequirement, error) {
	rows, err := r.tx.Query(ctx, `SELECT ri.material_id, m.name, ri.quantity_required, ri.position
FROM recipe_items ri
JOIN materials m ON m.id = ri.material_id AND m.shop_id = ri.shop_id
WHERE ri.shop_id=$1 AND ri.product_id=$2
ORDER BY ri.position ASC, ri.id ASC`, shopID, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var links []RecipeRequirement
	for rows.Next() {
		var link RecipeRequirement
		if err := rows.Scan(&link.MaterialID, &link.MaterialName, &link.QuantityRequired, &link.Position); err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

func scanMovement(row pgx.Row) (Movement, error) {
	var m Movement
	var ownerKind, movementType string
	err := row.Scan(&m.ID, &m.ShopID, &m.Ref, &ownerKind, &m.OwnerID, &movementType, &m.Qty, &m.UnitCost, &m.TotalCost,
		&m.ReferenceType, &m.ReferenceID, &m.ParentID, &m.Note, &m.MovedAt, &m.CreatedBy, &m.CreatedAt)
	if err != nil {
		return Movement{}, err
	}
	m.OwnerKind = OwnerKind(ownerKind)
	m.Type = MovementType(movementType)
	return m, nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
