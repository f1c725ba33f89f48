package expenses

import (
	"context"
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
	expenses map[int64]Expense
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{expenses: map[int64]Expense{}, nextID: 1}
}

func (m *memoryRepo) Insert(ctx context.Context, input CreateInput) (Expense, error) {
	e := Expense{
		ID:       m.nextID,
		ShopID:   input.ShopID,
		Category: input.Category,
		Amount:   input.Amount,
		Note:     input.Note,
		SpentAt:  input.SpentAt,
	}
	m.nextID++
	m.expenses[e.ID] = e
	return e, nil
}

func (m *memoryRepo) Get(ctx context.Context, shopID, expenseID int64) (Expense, error) {
	e, ok := m.expenses[expenseID]
	if !ok {
		return Expense{}, shared.ErrNotFound
	}
	return e, nil
}

func (m *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Expense, error) {
	out := []Expense{}
	for _, e := range m.expenses {
		if filter.Category != "" && e.Category != filter.Category {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *memoryRepo) Delete(ctx context.Context, shopID, expenseID int64) error {
	if _, ok := m.expenses[expenseID]; !ok {
		return shared.ErrNotFound
	}
	delete(m.expenses, expenseID)
	return nil
}

func (m *memoryRepo) TotalsByCategory(ctx context.Context, shopID int64, from, to time.Time) ([]CategoryTotal, error) {
	byCategory := map[string]*CategoryTotal{}
	for _, e := range m.expenses {
		t, ok := byCategory[e.Category]
		if !ok {
			t = &CategoryTotal{Category: e.Category, Total: decimal.Zero}
			byCategory[e.Category] = t
		}
		t.Total = t.Total.Add(e.Amount)
		t.Count++
	}
	out := []CategoryTotal{}
	for _, t := range byCategory {
		out = append(out, *t)
	}
	return out, nil
}

func TestCreateExpense(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	expense, err := svc.Create(context.Background(), CreateInput{
		ShopID: 7, Category: "listrik", Amount: dec("450000"),
	})
	require.NoError(t, err)
	require.NotZero(t, expense.ID)
	require.False(t, expense.SpentAt.IsZero(), "spent_at defaults to now")
}

func TestCreateExpenseValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{ShopID: 7, Category: " ", Amount: dec("10")})
	var vErr *shared.ValidationError
	require.ErrorAs(t, err, &vErr)

	_, err = svc.Create(ctx, CreateInput{ShopID: 7, Category: "sewa", Amount: dec("-5")})
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestTotalsByCategory(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	for _, input := range []CreateInput{
		{ShopID: 7, Category: "listrik", Amount: dec("450000")},
		{ShopID: 7, Category: "listrik", Amount: dec("50000")},
		{ShopID: 7, Category: "sewa", Amount: dec("2000000")},
	} {
		_, err := svc.Create(ctx, input)
		require.NoError(t, err)
	}

	totals, err := svc.TotalsByCategory(ctx, 7, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, totals, 2)
	byCategory := map[string]CategoryTotal{}
	for _, total := range totals {
		byCategory[total.Category] = total
	}
	require.True(t, byCategory["listrik"].Total.Equal(dec("500000")))
	require.EqualValues(t, 2, byCategory["listrik"].Count)
	require.True(t, byCategory["sewa"].Total.Equal(dec("2000000")))
}
