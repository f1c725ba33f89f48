package suppliers

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

type memoryRepo struct {
	suppliers    map[int64]Supplier
	balances     map[int64]Balance
	transactions map[int64]Transaction
	nextID       int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		suppliers:    map[int64]Supplier{},
		balances:     map[int64]Balance{},
		transactions: map[int64]Transaction{},
		nextID:       1,
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	suppliersBackup := maps.Clone(m.suppliers)
	balancesBackup := maps.Clone(m.balances)
	transactionsBackup := maps.Clone(m.transactions)
	idBackup := m.nextID
	if err := fn(ctx, m); err != nil {
		m.suppliers = suppliersBackup
		m.balances = balancesBackup
		m.transactions = transactionsBackup
		m.nextID = idBackup
		return err
	}
	return nil
}

func (m *memoryRepo) GetSupplier(ctx context.Context, shopID, supplierID int64) (Supplier, error) {
	s, ok := m.suppliers[supplierID]
	if !ok {
		return Supplier{}, shared.ErrNotFound
	}
	return s, nil
}

func (m *memoryRepo) ListSuppliers(ctx context.Context, shopID int64) ([]Supplier, error) {
	out := []Supplier{}
	for _, s := range m.suppliers {
		out = append(out, s)
	}
	return out, nil
}

func (m *memoryRepo) GetBalance(ctx context.Context, shopID, supplierID int64) (Balance, error) {
	b, ok := m.balances[supplierID]
	if !ok {
		return Balance{SupplierID: supplierID, TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}, nil
	}
	return b, nil
}

func (m *memoryRepo) ListTransactions(ctx context.Context, filter ListFilter) ([]Transaction, error) {
	out := []Transaction{}
	for _, t := range m.transactions {
		if filter.SupplierID == 0 || t.SupplierID == filter.SupplierID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memoryRepo) InsertSupplier(ctx context.Context, input CreateSupplierInput) (Supplier, error) {
	s := Supplier{
		ID:        m.nextID,
		ShopID:    input.ShopID,
		Name:      input.Name,
		Phone:     input.Phone,
		Email:     input.Email,
		Address:   input.Address,
		Active:    true,
		CreatedAt: time.Now(),
	}
	m.nextID++
	m.suppliers[s.ID] = s
	return s, nil
}

func (m *memoryRepo) UpdateSupplier(ctx context.Context, input UpdateSupplierInput) (Supplier, error) {
	s, ok := m.suppliers[input.SupplierID]
	if !ok {
		return Supplier{}, shared.ErrNotFound
	}
	s.Name = input.Name
	s.Phone = input.Phone
	s.Email = input.Email
	s.Address = input.Address
	if input.Active != nil {
		s.Active = *input.Active
	}
	m.suppliers[s.ID] = s
	return s, nil
}

func (m *memoryRepo) GetSupplierForUpdate(ctx context.Context, shopID, supplierID int64) (Supplier, error) {
	return m.GetSupplier(ctx, shopID, supplierID)
}

func (m *memoryRepo) InsertTransaction(ctx context.Context, entry Transaction) (Transaction, error) {
	entry.ID = m.nextID
	m.nextID++
	entry.CreatedAt = time.Now()
	m.transactions[entry.ID] = entry
	return entry, nil
}

func (m *memoryRepo) GetTransactionForUpdate(ctx context.Context, shopID, transactionID int64) (Transaction, error) {
	t, ok := m.transactions[transactionID]
	if !ok {
		return Transaction{}, shared.ErrNotFound
	}
	return t, nil
}

func (m *memoryRepo) HasReversal(ctx context.Context, shopID, transactionID int64) (bool, error) {
	for _, t := range m.transactions {
		if t.ReversalOf == transactionID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryRepo) ApplyToBalance(ctx context.Context, shopID, supplierID int64, entryType EntryType, amount decimal.Decimal) error {
	b, ok := m.balances[supplierID]
	if !ok {
		b = Balance{SupplierID: supplierID, TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	}
	if entryType == EntryDebit {
		b.TotalDebit = b.TotalDebit.Add(amount)
	} else {
		b.TotalCredit = b.TotalCredit.Add(amount)
	}
	m.balances[supplierID] = b
	return nil
}

func seedSupplier(t *testing.T, repo *memoryRepo, svc *Service) Supplier {
	t.Helper()
	supplier, err := svc.CreateSupplier(context.Background(), CreateSupplierInput{ShopID: 7, Name: "PT Sumber Pangan"})
	require.NoError(t, err)
	return supplier
}

func TestLedgerRunningTotals(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	supplier := seedSupplier(t, repo, svc)

	// Balance row does not exist before the first entry.
	balance, err := svc.GetBalance(ctx, 7, supplier.ID)
	require.NoError(t, err)
	require.True(t, balance.Outstanding().IsZero())

	_, err = svc.RecordTransaction(ctx, RecordInput{ShopID: 7, SupplierID: supplier.ID, Type: EntryDebit, Amount: dec("500000"), Description: "beras 50kg"})
	require.NoError(t, err)
	_, err = svc.RecordTransaction(ctx, RecordInput{ShopID: 7, SupplierID: supplier.ID, Type: EntryCredit, Amount: dec("200000"), Description: "pembayaran"})
	require.NoError(t, err)

	balance, err = svc.GetBalance(ctx, 7, supplier.ID)
	require.NoError(t, err)
	require.True(t, balance.TotalDebit.Equal(dec("500000")))
	require.True(t, balance.TotalCredit.Equal(dec("200000")))
	require.True(t, balance.Outstanding().Equal(dec("300000")))
}

func TestRecordTransactionValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	supplier := seedSupplier(t, repo, svc)

	_, err := svc.RecordTransaction(ctx, RecordInput{ShopID: 7, SupplierID: supplier.ID, Type: "PAYMENT", Amount: dec("10")})
	require.ErrorIs(t, err, ErrInvalidEntryType)

	_, err = svc.RecordTransaction(ctx, RecordInput{ShopID: 7, SupplierID: supplier.ID, Type: EntryDebit, Amount: dec("0")})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.RecordTransaction(ctx, RecordInput{ShopID: 7, SupplierID: 999, Type: EntryDebit, Amount: dec("10")})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReversalAppendsOffsettingRow(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	supplier := seedSupplier(t, repo, svc)

	entry, err := svc.RecordTransaction(ctx, RecordInput{ShopID: 7, SupplierID: supplier.ID, Type: EntryDebit, Amount: dec("150000"), Reference: "PO-11"})
	require.NoError(t, err)

	offset, err := svc.ReverseTransaction(ctx, 7, entry.ID, 0)
	require.NoError(t, err)

	require.Equal(t, EntryCredit, offset.Type)
	require.True(t, offset.Amount.Equal(entry.Amount))
	require.Equal(t, entry.ID, offset.ReversalOf)

	// Original row survives; the ledger stays append-only.
	_, ok := repo.transactions[entry.ID]
	require.True(t, ok)
	require.Len(t, repo.transactions, 2)

	balance, err := svc.GetBalance(ctx, 7, supplier.ID)
	require.NoError(t, err)
	require.True(t, balance.Outstanding().IsZero())
}

func TestReversalGuards(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	supplier := seedSupplier(t, repo, svc)

	entry, err := svc.RecordTransaction(ctx, RecordInput{ShopID: 7, SupplierID: supplier.ID, Type: EntryCredit, Amount: dec("75000")})
	require.NoError(t, err)

	offset, err := svc.ReverseTransaction(ctx, 7, entry.ID, 0)
	require.NoError(t, err)

	// Double reversal of the same entry is rejected.
	_, err = svc.ReverseTransaction(ctx, 7, entry.ID, 0)
	require.ErrorIs(t, err, ErrAlreadyReversed)

	// Reversing a reversal is rejected.
	_, err = svc.ReverseTransaction(ctx, 7, offset.ID, 0)
	require.ErrorIs(t, err, ErrReversalOfReversal)
}

func TestCreateSupplierValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	_, err := svc.CreateSupplier(context.Background(), CreateSupplierInput{ShopID: 7, Name: "   "})
	var vErr *shared.ValidationError
	require.ErrorAs(t, err, &vErr)
}
