package billing

import (
	"context"
	"maps"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tokoku-erp/tokoku-erp/internal/shared"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type memMovement struct {
	params stockMovementParams
}

type memoryRepo struct {
	products  map[int64]productState
	bills     map[int64]Bill
	items     map[int64][]BillItem
	movements []memMovement
	sequences map[int]int64
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		products:  map[int64]productState{},
		bills:     map[int64]Bill{},
		items:     map[int64][]BillItem{},
		sequences: map[int]int64{},
		nextID:    1,
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	productsBackup := maps.Clone(m.products)
	billsBackup := maps.Clone(m.bills)
	itemsBackup := maps.Clone(m.items)
	movementsBackup := append([]memMovement(nil), m.movements...)
	sequencesBackup := maps.Clone(m.sequences)
	idBackup := m.nextID
	if err := fn(ctx, m); err != nil {
		m.products = productsBackup
		m.bills = billsBackup
		m.items = itemsBackup
		m.movements = movementsBackup
		m.sequences = sequencesBackup
		m.nextID = idBackup
		return err
	}
	return nil
}

func (m *memoryRepo) GetBill(ctx context.Context, shopID, billID int64) (Bill, error) {
	bill, ok := m.bills[billID]
	if !ok {
		return Bill{}, shared.ErrNotFound
	}
	bill.Items = m.items[billID]
	return bill, nil
}

func (m *memoryRepo) ListBills(ctx context.Context, filter ListFilter) ([]Bill, error) {
	out := []Bill{}
	for _, bill := range m.bills {
		out = append(out, bill)
	}
	return out, nil
}

func (m *memoryRepo) NextBillNumber(ctx context.Context, shopID int64, year int) (int64, error) {
	m.sequences[year]++
	return m.sequences[year], nil
}

func (m *memoryRepo) GetProductForUpdate(ctx context.Context, shopID, productID int64) (productState, error) {
	p, ok := m.products[productID]
	if !ok {
		return productState{}, shared.ErrNotFound
	}
	return p, nil
}

func (m *memoryRepo) UpdateProductStock(ctx context.Context, shopID, productID int64, stock decimal.Decimal) error {
	p := m.products[productID]
	p.CurrentStock = stock
	m.products[productID] = p
	return nil
}

func (m *memoryRepo) InsertBill(ctx context.Context, bill Bill) (int64, error) {
	id := m.nextID
	m.nextID++
	bill.ID = id
	m.bills[id] = bill
	return id, nil
}

func (m *memoryRepo) InsertBillItem(ctx context.Context, item BillItem) error {
	item.ID = m.nextID
	m.nextID++
	m.items[item.BillID] = append(m.items[item.BillID], item)
	return nil
}

func (m *memoryRepo) InsertStockMovement(ctx context.Context, params stockMovementParams) error {
	m.movements = append(m.movements, memMovement{params: params})
	return nil
}

func (m *memoryRepo) GetBillForUpdate(ctx context.Context, shopID, billID int64) (Bill, error) {
	bill, ok := m.bills[billID]
	if !ok {
		return Bill{}, shared.ErrNotFound
	}
	return bill, nil
}

func (m *memoryRepo) ListBillItems(ctx context.Context, shopID, billID int64) ([]BillItem, error) {
	return m.items[billID], nil
}

func (m *memoryRepo) DeleteStockMovements(ctx context.Context, shopID int64, billNumber string) error {
	kept := m.movements[:0]
	for _, mv := range m.movements {
		if mv.params.ReferenceID != billNumber {
			kept = append(kept, mv)
		}
	}
	m.movements = kept
	return nil
}

func (m *memoryRepo) DeleteBillItems(ctx context.Context, shopID, billID int64) error {
	delete(m.items, billID)
	return nil
}

func (m *memoryRepo) DeleteBillRow(ctx context.Context, shopID, billID int64) error {
	delete(m.bills, billID)
	return nil
}

func issued(day int) time.Time {
	return time.Date(2026, time.March, day, 10, 0, 0, 0, time.UTC)
}

func TestCreateBillMutatesStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = productState{ID: 1, Name: "Kopi Susu", CurrentStock: dec("50"), AvgCost: dec("8000"), Active: true}
	svc := NewService(repo, nil, nil)

	bill, err := svc.Create(context.Background(), CreateInput{
		ShopID:   7,
		IssuedAt: issued(1),
		Tax:      dec("1000"),
		Paid:     dec("30000"),
		Lines: []LineInput{
			{ProductID: 1, Kind: LineSale, Qty: dec("3"), UnitPrice: dec("15000"), Discount: dec("5000")},
		},
	})
	require.NoError(t, err)

	require.Equal(t, "INV-2026-000001", bill.Number)
	require.True(t, bill.Subtotal.Equal(dec("40000")), "subtotal %s", bill.Subtotal)
	require.True(t, bill.Total.Equal(dec("41000")))
	require.True(t, bill.Due.Equal(dec("11000")))
	require.True(t, repo.products[1].CurrentStock.Equal(dec("47")))

	require.Len(t, repo.movements, 1)
	mv := repo.movements[0].params
	require.True(t, mv.Outbound)
	require.Equal(t, bill.Number, mv.ReferenceID)
	require.True(t, mv.UnitCost.Equal(dec("8000")), "movement priced at average cost")
}

func TestCreateBillSequencePerYear(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = productState{ID: 1, Name: "Teh", CurrentStock: dec("100"), AvgCost: dec("500"), Active: true}
	svc := NewService(repo, nil, nil)

	line := []LineInput{{ProductID: 1, Kind: LineSale, Qty: dec("1"), UnitPrice: dec("2000")}}
	first, err := svc.Create(context.Background(), CreateInput{ShopID: 7, IssuedAt: issued(1), Lines: line})
	require.NoError(t, err)
	second, err := svc.Create(context.Background(), CreateInput{ShopID: 7, IssuedAt: issued(2), Lines: line})
	require.NoError(t, err)

	require.Equal(t, "INV-2026-000001", first.Number)
	require.Equal(t, "INV-2026-000002", second.Number)
}

func TestCreateBillReturnLineAddsStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = productState{ID: 1, Name: "Roti", CurrentStock: dec("10"), AvgCost: dec("3000"), Active: true}
	svc := NewService(repo, nil, nil)

	bill, err := svc.Create(context.Background(), CreateInput{
		ShopID:   7,
		IssuedAt: issued(3),
		Lines: []LineInput{
			{ProductID: 1, Kind: LineReturn, Qty: dec("2"), UnitPrice: dec("5000")},
		},
	})
	require.NoError(t, err)

	require.True(t, repo.products[1].CurrentStock.Equal(dec("12")))
	// Return lines subtract from the subtotal.
	require.True(t, bill.Subtotal.Equal(dec("-10000")), "subtotal %s", bill.Subtotal)
	require.False(t, repo.movements[0].params.Outbound)
}

func TestCreateBillInsufficientStockRollsBack(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = productState{ID: 1, Name: "Gula", CurrentStock: dec("100"), AvgCost: dec("12000"), Active: true}
	repo.products[2] = productState{ID: 2, Name: "Kopi", CurrentStock: dec("1"), AvgCost: dec("80000"), Active: true}
	svc := NewService(repo, nil, nil)

	_, err := svc.Create(context.Background(), CreateInput{
		ShopID:   7,
		IssuedAt: issued(4),
		Lines: []LineInput{
			{ProductID: 1, Kind: LineSale, Qty: dec("10"), UnitPrice: dec("15000")},
			{ProductID: 2, Kind: LineSale, Qty: dec("5"), UnitPrice: dec("90000")},
		},
	})
	var stockErr *shared.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, "Kopi", stockErr.OwnerName)

	// First line's decrement must not survive the failed bill.
	require.True(t, repo.products[1].CurrentStock.Equal(dec("100")))
	require.Empty(t, repo.bills)
	require.Empty(t, repo.movements)
}

func TestCreateBillInactiveProductRejected(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = productState{ID: 1, Name: "Lama", CurrentStock: dec("10"), AvgCost: dec("100"), Active: false}
	svc := NewService(repo, nil, nil)

	_, err := svc.Create(context.Background(), CreateInput{
		ShopID:   7,
		IssuedAt: issued(5),
		Lines:    []LineInput{{ProductID: 1, Kind: LineSale, Qty: dec("1"), UnitPrice: dec("100")}},
	})
	require.ErrorIs(t, err, ErrProductInactive)
}

func TestDeleteBillReversesEverything(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = productState{ID: 1, Name: "Susu", CurrentStock: dec("20"), AvgCost: dec("4000"), Active: true}
	svc := NewService(repo, nil, nil)

	bill, err := svc.Create(context.Background(), CreateInput{
		ShopID:   7,
		IssuedAt: issued(6),
		Lines:    []LineInput{{ProductID: 1, Kind: LineSale, Qty: dec("8"), UnitPrice: dec("6000")}},
	})
	require.NoError(t, err)
	require.True(t, repo.products[1].CurrentStock.Equal(dec("12")))

	require.NoError(t, svc.Delete(context.Background(), 7, bill.ID, 0))

	require.True(t, repo.products[1].CurrentStock.Equal(dec("20")), "stock restored")
	require.Empty(t, repo.bills)
	require.Empty(t, repo.items)
	require.Empty(t, repo.movements)
}

func TestDeleteBillReturnReversalNeedsStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.products[1] = productState{ID: 1, Name: "Keju", CurrentStock: dec("0"), AvgCost: dec("9000"), Active: true}
	svc := NewService(repo, nil, nil)

	bill, err := svc.Create(context.Background(), CreateInput{
		ShopID:   7,
		IssuedAt: issued(7),
		Lines:    []LineInput{{ProductID: 1, Kind: LineReturn, Qty: dec("4"), UnitPrice: dec("11000")}},
	})
	require.NoError(t, err)
	require.True(t, repo.products[1].CurrentStock.Equal(dec("4")))

	// Consume the returned stock out of band, then reversal must refuse.
	repo.products[1] = productState{ID: 1, Name: "Keju", CurrentStock: dec("1"), AvgCost: dec("9000"), Active: true}
	err = svc.Delete(context.Background(), 7, bill.ID, 0)
	var stockErr *shared.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)

	// Failed reversal leaves the bill intact.
	_, ok := repo.bills[bill.ID]
	require.True(t, ok)
}

func TestCreateBillValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{ShopID: 7, IssuedAt: issued(8)})
	require.ErrorIs(t, err, ErrNoLines)

	_, err = svc.Create(ctx, CreateInput{ShopID: 7, IssuedAt: issued(8), Lines: []LineInput{{ProductID: 1, Kind: "VOID", Qty: dec("1")}}})
	require.ErrorIs(t, err, ErrInvalidLineKind)

	_, err = svc.Create(ctx, CreateInput{ShopID: 7, IssuedAt: issued(8), Lines: []LineInput{{ProductID: 1, Kind: LineSale, Qty: dec("0")}}})
	var vErr *shared.ValidationError
	require.ErrorAs(t, err, &vErr)
}
