package shops

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tokoku-erp/tokoku-erp/internal/shared"
)

// Repository persists shops in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const shopColumns = `id, name, currency, status, subscription_expires_at, created_at`

// Insert stores a new shop with its API key hash.
func (r *Repository) Insert(ctx context.Context, shop Shop, apiKeyHash string) (Shop, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO shops (name, currency, api_key_hash, status, created_at)
VALUES ($1,$2,$3,$4,NOW()) RETURNING `+shopColumns,
		shop.Name, shop.Currency, apiKeyHash, string(shop.Status))
	return scanShop(row)
}

// Get fetches one shop.
func (r *Repository) Get(ctx context.Context, shopID int64) (Shop, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+shopColumns+` FROM shops WHERE id=$1`, shopID)
	shop, err := scanShop(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Shop{}, fmt.Errorf("shop %d: %w", shopID, shared.ErrNotFound)
		}
		return Shop{}, err
	}
	return shop, nil
}

// GetWithKeyHash fetches one shop plus its stored API key hash.
func (r *Repository) GetWithKeyHash(ctx context.Context, shopID int64) (Shop, string, error) {
	var shop Shop
	var status string
	var hash string
	err := r.pool.QueryRow(ctx, `SELECT id, name, currency, status, subscription_expires_at, created_at, api_key_hash FROM shops WHERE id=$1`, shopID).
		Scan(&shop.ID, &shop.Name, &shop.Currency, &status, &shop.SubscriptionExpiresAt, &shop.CreatedAt, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Shop{}, "", fmt.Errorf("shop %d: %w", shopID, shared.ErrNotFound)
		}
		return Shop{}, "", err
	}
	shop.Status = Status(status)
	return shop, hash, nil
}

// List lists all shops.
func (r *Repository) List(ctx context.Context) ([]Shop, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+shopColumns+` FROM shops ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Shop{}
	for rows.Next() {
		shop, err := scanShop(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, shop)
	}
	return out, rows.Err()
}

// SetStatus updates the lifecycle state.
func (r *Repository) SetStatus(ctx context.Context, shopID int64, status Status) error {
	tag, err := r.pool.Exec(ctx, `UPDATE shops SET status=$2 WHERE id=$1`, shopID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("shop %d: %w", shopID, shared.ErrNotFound)
	}
	return nil
}

// SetSubscriptionExpiry updates the subscription expiry.
func (r *Repository) SetSubscriptionExpiry(ctx context.Context, shopID int64, expiresAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE shops SET subscription_expires_at=$2 WHERE id=$1`, shopID, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("shop %d: %w", shopID, shared.ErrNotFound)
	}
	return nil
}

// SetAPIKeyHash replaces the stored API key hash.
func (r *Repository) SetAPIKeyHash(ctx context.Context, shopID int64, hash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE shops SET api_key_hash=$2 WHERE id=$1`, shopID, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("shop %d: %w", shopID, shared.ErrNotFound)
	}
	return nil
}

func scanShop(row pgx.Row) (Shop, error) {
	var shop Shop
	var status string
	err := row.Scan(&shop.ID, &shop.Name, &shop.Currency, &status, &shop.SubscriptionExpiresAt, &shop.CreatedAt)
	shop.Status = Status(status)
	return shop, err
}
