package billing

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

// stockMovementParams captures the sale/return movement trail written next to
// each bill line.
type stockMovementParams struct {
	ShopID      int64
	Ref         string
	ProductID   int64
	Outbound    bool
	Qty         decimal.Decimal
	UnitCost    decimal.Decimal
	RefType     string
	ReferenceID string
	MovedAt     time.Time
	ActorID     int64
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	NextBillNumber(ctx context.Context, shopID int64, year int) (int64, error)
	GetProductForUpdate(ctx context.Context, shopID, productID int64) (productState, error)
	UpdateProductStock(ctx context.Context, shopID, productID int64, stock decimal.Decimal) error
	InsertBill(ctx context.Context, bill Bill) (int64, error)
	InsertBillItem(ctx context.Context, item BillItem) error
	InsertStockMovement(ctx context.Context, params stockMovementParams) error
	GetBillForUpdate(ctx context.Context, shopID, billID int64) (Bill, error)
	ListBillItems(ctx context.Context, shopID, billID int64) ([]BillItem, error)
	DeleteStockMovements(ctx context.Context, shopID int64, billNumber string) error
	DeleteBillItems(ctx context.Context, shopID, billID int64) error
	DeleteBillRow(ctx context.Context, shopID, billID int64) error
}

// Repository persists billing data in PostgreSQL.
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
		return errors.New("billing repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const billColumns = `id, shop_id, number, customer_name, subtotal, tax, total, paid, due, payment_method, note, issued_at, COALESCE(created_by, 0), created_at`

// GetBill fetches one bill with its items.
func (r *Repository) GetBill(ctx context.Context, shopID, billID int64) (Bill, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+billColumns+` FROM bills WHERE shop_id=$1 AND id=$2`, shopID, billID)
	bill, err := scanBill(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bill{}, fmt.Errorf("bill %d: %w", billID, shared.ErrNotFound)
		}
		return Bill{}, err
	}
	items, err := listItems(ctx, r.pool, shopID, billID)
	if err != nil {
		return Bill{}, err
	}
	bill.Items = items
	return bill, nil
}

// ListBills lists bills ordered newest first.
func (r *Repository) ListBills(ctx context.Context, filter ListFilter) ([]Bill, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT `+billColumns+` FROM bills
WHERE shop_id=$1 AND issued_at BETWEEN COALESCE($2, '-infinity') AND COALESCE($3, 'infinity')
ORDER BY issued_at DESC, id DESC
LIMIT $4 OFFSET $5`, filter.ShopID, nullTime(filter.From), nullTime(filter.To), limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	bills := []Bill{}
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, bill)
	}
	return bills, rows.Err()
}

func (r *txRepository) NextBillNumber(ctx context.Context, shopID int64, year int) (int64, error) {
	var n int64
	err := r.tx.QueryRow(ctx, `INSERT INTO bill_sequences (shop_id, year, last_no) VALUES ($1, $2, 1)
ON CONFLICT (shop_id, year) DO UPDATE SET last_no = bill_sequences.last_no + 1
RETURNING last_no`, shopID, year).Scan(&n)
	return n, err
}

func (r *txRepository) GetProductForUpdate(ctx context.Context, shopID, productID int64) (productState, error) {
	p := productState{ID: productID}
	err := r.tx.QueryRow(ctx, `SELECT name, current_stock, avg_cost, is_active FROM products WHERE shop_id=$1 AND id=$2 FOR UPDATE`, shopID, productID).
		Scan(&p.Name, &p.CurrentStock, &p.AvgCost, &p.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return productState{}, fmt.Errorf("product %d: %w", productID, shared.ErrNotFound)
		}
		return productState{}, err
	}
	return p, nil
}

func (r *txRepository) UpdateProductStock(ctx context.Context, shopID, productID int64, stock decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE products SET current_stock=$3, updated_at=NOW() WHERE shop_id=$1 AND id=$2`, shopID, productID, stock)
	return err
}

func (r *txRepository) InsertBill(ctx context.Context, bill Bill) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO bills (shop_id, number, customer_name, subtotal, tax, total, paid, due, payment_method, note, issued_at, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NOW()) RETURNING id`,
		bill.ShopID, bill.Number, bill.CustomerName, bill.Subtotal, bill.Tax, bill.Total, bill.Paid, bill.Due,
		bill.PaymentMethod, bill.Note, bill.IssuedAt, nullInt(bill.CreatedBy)).Scan(&id)
	return id, err
}

func (r *txRepository) InsertBillItem(ctx context.Context, item BillItem) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO bill_items (shop_id, bill_id, product_id, line_kind, qty, unit_price, discount, line_total)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		item.ShopID, item.BillID, item.ProductID, string(item.Kind), item.Qty, item.UnitPrice, item.Discount, item.LineTotal)
	return err
}

func (r *txRepository) InsertStockMovement(ctx context.Context, params stockMovementParams) error {
	movementType := "IN"
	if params.Outbound {
		movementType = "OUT"
	}
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_movements (shop_id, ref, owner_kind, owner_id, movement_type, qty, unit_cost, total_cost, reference_type, reference_id, note, moved_at, created_by, created_at)
VALUES ($1,$2,'PRODUCT',$3,$4,$5,$6,$7,$8,$9,'',$10,$11,NOW())`,
		params.ShopID, params.Ref, params.ProductID, movementType, params.Qty, params.UnitCost,
		params.Qty.Mul(params.UnitCost), params.RefType, params.ReferenceID, params.MovedAt, nullInt(params.ActorID))
	return err
}

func (r *txRepository) GetBillForUpdate(ctx context.Context, shopID, billID int64) (Bill, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+billColumns+` FROM bills WHERE shop_id=$1 AND id=$2 FOR UPDATE`, shopID, billID)
	bill, err := scanBill(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bill{}, fmt.Errorf("bill %d: %w", billID, shared.ErrNotFound)
		}
		return Bill{}, err
	}
	return bill, nil
}

func (r *txRepository) ListBillItems(ctx context.Context, shopID, billID int64) ([]BillItem, error) {
	return listItems(ctx, r.tx, shopID, billID)
}

func (r *txRepository) DeleteStockMovements(ctx context.Context, shopID int64, billNumber string) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM stock_movements WHERE shop_id=$1 AND reference_type IN ('sale','return') AND reference_id=$2`, shopID, billNumber)
	return err
}

func (r *txRepository) DeleteBillItems(ctx context.Context, shopID, billID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM bill_items WHERE shop_id=$1 AND bill_id=$2`, shopID, billID)
	return err
}

func (r *txRepository) DeleteBillRow(ctx context.Context, shopID, billID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM bills WHERE shop_id=$1 AND id=$2`, shopID, billID)
	return err
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listItems(ctx context.Context, q queryer, shopID, billID int64) ([]BillItem, error) {
	rows, err := q.Query(ctx, `SELECT bi.id, bi.shop_id, bi.bill_id, bi.product_id, p.name, bi.line_kind, bi.qty, bi.unit_price, bi.discount, bi.line_total
FROM bill_items bi
JOIN products p ON p.id = bi.product_id AND p.shop_id = bi.shop_id
WHERE bi.shop_id=$1 AND bi.bill_id=$2
ORDER BY bi.id ASC`, shopID, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []BillItem{}
	for rows.Next() {
		var item BillItem
		var kind string
		if err := rows.Scan(&item.ID, &item.ShopID, &item.BillID, &item.ProductID, &item.ProductName, &kind, &item.Qty, &item.UnitPrice, &item.Discount, &item.LineTotal); err != nil {
			return nil, err
		}
		item.Kind = LineKind(kind)
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanBill(row pgx.Row) (Bill, error) {
	var bill Bill
	err := row.Scan(&bill.ID, &bill.ShopID, &bill.Number, &bill.CustomerName, &bill.Subtotal, &bill.Tax, &bill.Total,
		&bill.Paid, &bill.Due, &bill.PaymentMethod, &bill.Note, &bill.IssuedAt, &bill.CreatedBy, &bill.CreatedAt)
	return bill, err
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
