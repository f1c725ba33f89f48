package suppliers

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tokoku-erp/tokoku-erp/internal/platform/db"
	"github.com/tokoku-erp/tokoku-erp/internal/shared"
)

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	InsertSupplier(ctx context.Context, input CreateSupplierInput) (Supplier, error)
	UpdateSupplier(ctx context.Context, input UpdateSupplierInput) (Supplier, error)
	GetSupplierForUpdate(ctx context.Context, shopID, supplierID int64) (Supplier, error)
	InsertTransaction(ctx context.Context, entry Transaction) (Transaction, error)
	GetTransactionForUpdate(ctx context.Context, shopID, transactionID int64) (Transaction, error)
	HasReversal(ctx context.Context, shopID, transactionID int64) (bool, error)
	ApplyToBalance(ctx context.Context, shopID, supplierID int64, entryType EntryType, amount decimal.Decimal) error
}

// Repository persists supplier data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("suppliers repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const supplierColumns = `id, shop_id, name, COALESCE(phone,''), COALESCE(email,''), COALESCE(address,''), is_active, created_at, updated_at`

const transactionColumns = `id, shop_id, supplier_id, entry_type, amount, COALESCE(description,''), COALESCE(reference,''), COALESCE(reversal_of,0), COALESCE(created_by,0), created_at`

// GetSupplier fetches one supplier.
func (r *Repository) GetSupplier(ctx context.Context, shopID, supplierID int64) (Supplier, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE shop_id=$1 AND id=$2`, shopID, supplierID)
	supplier, err := scanSupplier(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Supplier{}, fmt.Errorf("supplier %d: %w", supplierID, shared.ErrNotFound)
		}
		return Supplier{}, err
	}
	return supplier, nil
}

// ListSuppliers lists suppliers by name.
func (r *Repository) ListSuppliers(ctx context.Context, shopID int64) ([]Supplier, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE shop_id=$1 ORDER BY name ASC`, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Supplier{}
	for rows.Next() {
		supplier, err := scanSupplier(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, supplier)
	}
	return out, rows.Err()
}

// GetBalance returns running totals, zero if no ledger entry exists yet.
func (r *Repository) GetBalance(ctx context.Context, shopID, supplierID int64) (Balance, error) {
	balance := Balance{SupplierID: supplierID, TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	err := r.pool.QueryRow(ctx, `SELECT total_debit, total_credit FROM supplier_balances WHERE shop_id=$1 AND supplier_id=$2`, shopID, supplierID).
		Scan(&balance.TotalDebit, &balance.TotalCredit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return balance, nil
		}
		return Balance{}, err
	}
	return balance, nil
}

// ListTransactions lists ledger entries newest first.
func (r *Repository) ListTransactions(ctx context.Context, filter ListFilter) ([]Transaction, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT `+transactionColumns+` FROM supplier_transactions
WHERE shop_id=$1 AND ($2 = 0 OR supplier_id=$2)
ORDER BY created_at DESC, id DESC
LIMIT $3 OFFSET $4`, filter.ShopID, filter.SupplierID, limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Transaction{}
	for rows.Next() {
		entry, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (r *txRepository) InsertSupplier(ctx context.Context, input CreateSupplierInput) (Supplier, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO suppliers (shop_id, name, phone, email, address, is_active, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,TRUE,NOW(),NOW()) RETURNING `+supplierColumns,
		input.ShopID, input.Name, input.Phone, input.Email, input.Address)
	return scanSupplier(row)
}

func (r *txRepository) UpdateSupplier(ctx context.Context, input UpdateSupplierInput) (Supplier, error) {
	row := r.tx.QueryRow(ctx, `UPDATE suppliers
SET name=$3, phone=$4, email=$5, address=$6, is_active=COALESCE($7, is_active), updated_at=NOW()
WHERE shop_id=$1 AND id=$2
RETURNING `+supplierColumns,
		input.ShopID, input.SupplierID, input.Name, input.Phone, input.Email, input.Address, input.Active)
	supplier, err := scanSupplier(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Supplier{}, fmt.Errorf("supplier %d: %w", input.SupplierID, shared.ErrNotFound)
		}
		return Supplier{}, err
	}
	return supplier, nil
}

func (r *txRepository) GetSupplierForUpdate(ctx context.Context, shopID, supplierID int64) (Supplier, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE shop_id=$1 AND id=$2 FOR UPDATE`, shopID, supplierID)
	supplier, err := scanSupplier(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Supplier{}, fmt.Errorf("supplier %d: %w", supplierID, shared.ErrNotFound)
		}
		return Supplier{}, err
	}
	return supplier, nil
}

func (r *txRepository) InsertTransaction(ctx context.Context, entry Transaction) (Transaction, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO supplier_transactions (shop_id, supplier_id, entry_type, amount, description, reference, reversal_of, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,0),NULLIF($8,0),NOW()) RETURNING `+transactionColumns,
		entry.ShopID, entry.SupplierID, string(entry.Type), entry.Amount, entry.Description, entry.Reference, entry.ReversalOf, entry.CreatedBy)
	return scanTransaction(row)
}

func (r *txRepository) GetTransactionForUpdate(ctx context.Context, shopID, transactionID int64) (Transaction, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM supplier_transactions WHERE shop_id=$1 AND id=$2 FOR UPDATE`, shopID, transactionID)
	entry, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, fmt.Errorf("supplier transaction %d: %w", transactionID, shared.ErrNotFound)
		}
		return Transaction{}, err
	}
	return entry, nil
}

func (r *txRepository) HasReversal(ctx context.Context, shopID, transactionID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM supplier_transactions WHERE shop_id=$1 AND reversal_of=$2)`, shopID, transactionID).Scan(&exists)
	return exists, err
}

// ApplyToBalance bumps the running totals in one atomic statement, creating
// the balance row on the supplier's first ledger entry.
func (r *txRepository) ApplyToBalance(ctx context.Context, shopID, supplierID int64, entryType EntryType, amount decimal.Decimal) error {
	debit, credit := amount, decimal.Zero
	if entryType == EntryCredit {
		debit, credit = decimal.Zero, amount
	}
	_, err := r.tx.Exec(ctx, `INSERT INTO supplier_balances (shop_id, supplier_id, total_debit, total_credit, updated_at)
VALUES ($1,$2,$3,$4,NOW())
ON CONFLICT (shop_id, supplier_id) DO UPDATE
SET total_debit = supplier_balances.total_debit + EXCLUDED.total_debit,
    total_credit = supplier_balances.total_credit + EXCLUDED.total_credit,
    updated_at = NOW()`,
		shopID, supplierID, debit, credit)
	return err
}

func scanSupplier(row pgx.Row) (Supplier, error) {
	var s Supplier
	err := row.Scan(&s.ID, &s.ShopID, &s.Name, &s.Phone, &s.Email, &s.Address, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	var entryType string
	err := row.Scan(&t.ID, &t.ShopID, &t.SupplierID, &entryType, &t.Amount, &t.Description, &t.Reference, &t.ReversalOf, &t.CreatedBy, &t.CreatedAt)
	t.Type = EntryType(entryType)
	return t, err
}
