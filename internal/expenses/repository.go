package expenses

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tokoku-erp/tokoku-erp/internal/shared"
)

// Repository persists expenses in PostgreSQL. Expenses are single-row writes,
// so no transaction wrapper is needed here.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const expenseColumns = `id, shop_id, category, amount, note, spent_at, COALESCE(created_by,0), created_at`

// Insert stores one expense.
func (r *Repository) Insert(ctx context.Context, input CreateInput) (Expense, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO expenses (shop_id, category, amount, note, spent_at, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,NULLIF($6,0),NOW()) RETURNING `+expenseColumns,
		input.ShopID, input.Category, input.Amount, input.Note, input.SpentAt, input.ActorID)
	return scanExpense(row)
}

// Get fetches one expense.
func (r *Repository) Get(ctx context.Context, shopID, expenseID int64) (Expense, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE shop_id=$1 AND id=$2`, shopID, expenseID)
	expense, err := scanExpense(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Expense{}, fmt.Errorf("expense %d: %w", expenseID, shared.ErrNotFound)
		}
		return Expense{}, err
	}
	return expense, nil
}

// List lists expenses newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Expense, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT `+expenseColumns+` FROM expenses
WHERE shop_id=$1
  AND ($2 = '' OR category=$2)
  AND spent_at BETWEEN COALESCE($3, '-infinity') AND COALESCE($4, 'infinity')
ORDER BY spent_at DESC, id DESC
LIMIT $5 OFFSET $6`, filter.ShopID, filter.Category, nullTime(filter.From), nullTime(filter.To), limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Expense{}
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, expense)
	}
	return out, rows.Err()
}

// Delete removes one expense.
func (r *Repository) Delete(ctx context.Context, shopID, expenseID int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM expenses WHERE shop_id=$1 AND id=$2`, shopID, expenseID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("expense %d: %w", expenseID, shared.ErrNotFound)
	}
	return nil
}

// TotalsByCategory sums amounts per category within the period.
func (r *Repository) TotalsByCategory(ctx context.Context, shopID int64, from, to time.Time) ([]CategoryTotal, error) {
	rows, err := r.pool.Query(ctx, `SELECT category, SUM(amount), COUNT(*)
FROM expenses
WHERE shop_id=$1 AND spent_at BETWEEN COALESCE($2, '-infinity') AND COALESCE($3, 'infinity')
GROUP BY category
ORDER BY SUM(amount) DESC`, shopID, nullTime(from), nullTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []CategoryTotal{}
	for rows.Next() {
		var t CategoryTotal
		if err := rows.Scan(&t.Category, &t.Total, &t.Count); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanExpense(row pgx.Row) (Expense, error) {
	var e Expense
	err := row.Scan(&e.ID, &e.ShopID, &e.Category, &e.Amount, &e.Note, &e.SpentAt, &e.CreatedBy, &e.CreatedAt)
	return e, err
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
