package payroll

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
	employees map[int64]Employee
	loans     map[int64]Loan
	entries   []LoanEntry
	salaries  map[string]Salary
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		employees: map[int64]Employee{},
		loans:     map[int64]Loan{},
		salaries:  map[string]Salary{},
		nextID:    1,
	}
}

func salaryKey(employeeID int64, month string) string {
	return month + "/" + decimal.NewFromInt(employeeID).String()
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	employeesBackup := maps.Clone(m.employees)
	loansBackup := maps.Clone(m.loans)
	entriesBackup := append([]LoanEntry(nil), m.entries...)
	salariesBackup := maps.Clone(m.salaries)
	idBackup := m.nextID
	if err := fn(ctx, m); err != nil {
		m.employees = employeesBackup
		m.loans = loansBackup
		m.entries = entriesBackup
		m.salaries = salariesBackup
		m.nextID = idBackup
		return err
	}
	return nil
}

func (m *memoryRepo) GetEmployee(ctx context.Context, shopID, employeeID int64) (Employee, error) {
	e, ok := m.employees[employeeID]
	if !ok {
		return Employee{}, shared.ErrNotFound
	}
	return e, nil
}

func (m *memoryRepo) ListEmployees(ctx context.Context, shopID int64) ([]Employee, error) {
	out := []Employee{}
	for _, e := range m.employees {
		out = append(out, e)
	}
	return out, nil
}

func (m *memoryRepo) GetLoan(ctx context.Context, shopID, loanID int64) (Loan, error) {
	l, ok := m.loans[loanID]
	if !ok {
		return Loan{}, shared.ErrNotFound
	}
	return l, nil
}

func (m *memoryRepo) ListLoans(ctx context.Context, shopID, employeeID int64) ([]Loan, error) {
	out := []Loan{}
	for _, l := range m.loans {
		if employeeID == 0 || l.EmployeeID == employeeID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memoryRepo) ListLoanEntries(ctx context.Context, shopID, employeeID int64) ([]LoanEntry, error) {
	out := []LoanEntry{}
	for _, e := range m.entries {
		if e.EmployeeID == employeeID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryRepo) GetSalary(ctx context.Context, shopID, employeeID int64, month string) (Salary, error) {
	s, ok := m.salaries[salaryKey(employeeID, month)]
	if !ok {
		return Salary{}, shared.ErrNotFound
	}
	return s, nil
}

func (m *memoryRepo) ListSalaries(ctx context.Context, shopID int64, month string) ([]Salary, error) {
	out := []Salary{}
	for _, s := range m.salaries {
		if month == "" || s.Month == month {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memoryRepo) InsertEmployee(ctx context.Context, input CreateEmployeeInput) (Employee, error) {
	e := Employee{
		ID:            m.nextID,
		ShopID:        input.ShopID,
		Name:          input.Name,
		Phone:         input.Phone,
		Role:          input.Role,
		MonthlySalary: input.MonthlySalary,
		Active:        true,
		JoinedAt:      time.Now(),
	}
	m.nextID++
	m.employees[e.ID] = e
	return e, nil
}

func (m *memoryRepo) GetEmployeeForUpdate(ctx context.Context, shopID, employeeID int64) (Employee, error) {
	return m.GetEmployee(ctx, shopID, employeeID)
}

func (m *memoryRepo) InsertLoan(ctx context.Context, loan Loan) (Loan, error) {
	loan.ID = m.nextID
	m.nextID++
	loan.CreatedAt = time.Now()
	m.loans[loan.ID] = loan
	return loan, nil
}

func (m *memoryRepo) GetLoanForUpdate(ctx context.Context, shopID, loanID int64) (Loan, error) {
	return m.GetLoan(ctx, shopID, loanID)
}

func (m *memoryRepo) ListActiveLoansForUpdate(ctx context.Context, shopID, employeeID int64) ([]Loan, error) {
	out := []Loan{}
	for _, l := range m.loans {
		if l.EmployeeID == employeeID && l.Status == LoanActive {
			out = append(out, l)
		}
	}
	// Oldest disbursement first.
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].DisbursedAt.Before(out[i].DisbursedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (m *memoryRepo) UpdateLoanTotals(ctx context.Context, loan Loan) error {
	stored, ok := m.loans[loan.ID]
	if !ok {
		return shared.ErrNotFound
	}
	stored.TotalPaid = loan.TotalPaid
	stored.TotalBalance = loan.TotalBalance
	stored.Status = loan.Status
	m.loans[loan.ID] = stored
	return nil
}

func (m *memoryRepo) InsertLoanEntry(ctx context.Context, entry LoanEntry) error {
	entry.ID = m.nextID
	m.nextID++
	entry.CreatedAt = time.Now()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memoryRepo) UpsertSalary(ctx context.Context, salary Salary) (Salary, bool, error) {
	key := salaryKey(salary.EmployeeID, salary.Month)
	if existing, ok := m.salaries[key]; ok {
		salary.ID = existing.ID
		salary.Revision = existing.Revision + 1
		m.salaries[key] = salary
		return salary, true, nil
	}
	salary.ID = m.nextID
	m.nextID++
	salary.Revision = 0
	m.salaries[key] = salary
	return salary, false, nil
}

func seedEmployee(t *testing.T, svc *Service) Employee {
	t.Helper()
	employee, err := svc.CreateEmployee(context.Background(), CreateEmployeeInput{
		ShopID: 7, Name: "Dewi", MonthlySalary: dec("3000000"),
	})
	require.NoError(t, err)
	return employee
}

func TestDisburseLoan(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	employee := seedEmployee(t, svc)

	loan, err := svc.DisburseLoan(context.Background(), DisburseInput{
		ShopID: 7, EmployeeID: employee.ID, Amount: dec("1000"),
	})
	require.NoError(t, err)

	require.True(t, loan.TotalBalance.Equal(dec("1000")))
	require.Equal(t, LoanActive, loan.Status)

	entries, err := svc.ListLoanEntries(context.Background(), 7, employee.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, LoanEntryCredit, entries[0].Type)
	require.True(t, entries[0].Amount.Equal(dec("1000")))
}

func TestSalaryDeductionThenDirectPayment(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	employee := seedEmployee(t, svc)

	loan, err := svc.DisburseLoan(ctx, DisburseInput{ShopID: 7, EmployeeID: employee.ID, Amount: dec("1000")})
	require.NoError(t, err)

	// Salary run deducts 300.
	result, err := svc.PaySalary(ctx, PaySalaryInput{
		ShopID:         7,
		EmployeeID:     employee.ID,
		Month:          "2026-03",
		Amount:         dec("3000000"),
		LoanDeductions: []LoanDeduction{{LoanID: loan.ID, Amount: dec("300")}},
	})
	require.NoError(t, err)
	require.True(t, result.Deducted.Equal(dec("300")))
	require.True(t, result.Salary.NetAmount.Equal(dec("2999700")))

	after, err := svc.GetLoan(ctx, 7, loan.ID)
	require.NoError(t, err)
	require.True(t, after.TotalBalance.Equal(dec("700")))
	require.Equal(t, LoanActive, after.Status)

	// Direct payment of 700 clears it.
	pay, err := svc.RepayLoan(ctx, RepayInput{ShopID: 7, EmployeeID: employee.ID, LoanID: loan.ID, Amount: dec("700")})
	require.NoError(t, err)
	require.True(t, pay.Applied.Equal(dec("700")))

	after, err = svc.GetLoan(ctx, 7, loan.ID)
	require.NoError(t, err)
	require.True(t, after.TotalBalance.IsZero())
	require.Equal(t, LoanPaid, after.Status)
}

func TestRepaymentCappedAtBalance(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	employee := seedEmployee(t, svc)

	loan, err := svc.DisburseLoan(ctx, DisburseInput{ShopID: 7, EmployeeID: employee.ID, Amount: dec("500")})
	require.NoError(t, err)

	result, err := svc.RepayLoan(ctx, RepayInput{ShopID: 7, EmployeeID: employee.ID, LoanID: loan.ID, Amount: dec("800")})
	require.NoError(t, err)
	require.True(t, result.Applied.Equal(dec("500")))
	require.True(t, result.Remainder.Equal(dec("300")))

	after, err := svc.GetLoan(ctx, 7, loan.ID)
	require.NoError(t, err)
	require.True(t, after.TotalBalance.IsZero())
	require.Equal(t, LoanPaid, after.Status)

	// A settled loan refuses further repayments.
	_, err = svc.RepayLoan(ctx, RepayInput{ShopID: 7, EmployeeID: employee.ID, LoanID: loan.ID, Amount: dec("10")})
	require.ErrorIs(t, err, ErrLoanAlreadyPaid)
}

func TestRepayAcrossLoansOldestFirst(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	employee := seedEmployee(t, svc)

	older, err := svc.DisburseLoan(ctx, DisburseInput{
		ShopID: 7, EmployeeID: employee.ID, Amount: dec("400"),
		DisbursedAt: time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	newer, err := svc.DisburseLoan(ctx, DisburseInput{
		ShopID: 7, EmployeeID: employee.ID, Amount: dec("600"),
		DisbursedAt: time.Date(2026, time.February, 5, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	result, err := svc.RepayLoan(ctx, RepayInput{ShopID: 7, EmployeeID: employee.ID, Amount: dec("500")})
	require.NoError(t, err)
	require.True(t, result.Applied.Equal(dec("500")))
	require.True(t, result.Remainder.IsZero())

	first, err := svc.GetLoan(ctx, 7, older.ID)
	require.NoError(t, err)
	require.Equal(t, LoanPaid, first.Status)

	second, err := svc.GetLoan(ctx, 7, newer.ID)
	require.NoError(t, err)
	require.True(t, second.TotalBalance.Equal(dec("500")))
	require.Equal(t, LoanActive, second.Status)
}

func TestRepayOverpaymentRecordsAdjustment(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	employee := seedEmployee(t, svc)

	_, err := svc.DisburseLoan(ctx, DisburseInput{ShopID: 7, EmployeeID: employee.ID, Amount: dec("200")})
	require.NoError(t, err)

	result, err := svc.RepayLoan(ctx, RepayInput{ShopID: 7, EmployeeID: employee.ID, Amount: dec("350")})
	require.NoError(t, err)
	require.True(t, result.Applied.Equal(dec("200")))
	require.True(t, result.Remainder.Equal(dec("150")))

	entries, err := svc.ListLoanEntries(ctx, 7, employee.ID)
	require.NoError(t, err)
	var adjust *LoanEntry
	for i := range entries {
		if entries[i].Type == LoanEntryAdjust {
			adjust = &entries[i]
		}
	}
	require.NotNil(t, adjust)
	require.True(t, adjust.Amount.Equal(dec("150")))
	require.Zero(t, adjust.LoanID, "adjustment is not attached to any loan")
}

func TestRepayNoActiveLoans(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	employee := seedEmployee(t, svc)

	_, err := svc.RepayLoan(context.Background(), RepayInput{ShopID: 7, EmployeeID: employee.ID, Amount: dec("100")})
	require.ErrorIs(t, err, ErrNoActiveLoans)
}

func TestLoanBalanceMonotonicity(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	employee := seedEmployee(t, svc)

	loan, err := svc.DisburseLoan(ctx, DisburseInput{ShopID: 7, EmployeeID: employee.ID, Amount: dec("1000")})
	require.NoError(t, err)

	previous := loan.TotalBalance
	for _, amount := range []string{"250", "400", "500", "100"} {
		_, err := svc.RepayLoan(ctx, RepayInput{ShopID: 7, EmployeeID: employee.ID, LoanID: loan.ID, Amount: dec(amount)})
		if err != nil {
			require.ErrorIs(t, err, ErrLoanAlreadyPaid)
			break
		}
		current, err := svc.GetLoan(ctx, 7, loan.ID)
		require.NoError(t, err)
		require.True(t, current.TotalBalance.LessThanOrEqual(previous), "balance must not increase")
		require.False(t, current.TotalBalance.IsNegative(), "balance must not go below zero")
		require.True(t, current.TotalBalance.Equal(current.TotalAmount.Sub(current.TotalPaid)))
		if current.TotalBalance.IsZero() {
			require.Equal(t, LoanPaid, current.Status)
		}
		previous = current.TotalBalance
	}
}

func TestSalaryNetFlooredAtZero(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	employee := seedEmployee(t, svc)

	loan, err := svc.DisburseLoan(ctx, DisburseInput{ShopID: 7, EmployeeID: employee.ID, Amount: dec("5000")})
	require.NoError(t, err)

	result, err := svc.PaySalary(ctx, PaySalaryInput{
		ShopID:         7,
		EmployeeID:     employee.ID,
		Month:          "2026-04",
		Amount:         dec("1000"),
		Fine:           dec("200"),
		LoanDeductions: []LoanDeduction{{LoanID: loan.ID, Amount: dec("2000")}},
	})
	require.NoError(t, err)
	require.True(t, result.Salary.NetAmount.IsZero(), "net %s", result.Salary.NetAmount)
	require.True(t, result.Deducted.Equal(dec("2000")))
}

func TestSalaryResubmissionIsLoggedCorrection(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	employee := seedEmployee(t, svc)

	first, err := svc.PaySalary(ctx, PaySalaryInput{
		ShopID: 7, EmployeeID: employee.ID, Month: "2026-05", Amount: dec("3000000"),
	})
	require.NoError(t, err)
	require.False(t, first.Correction)
	require.Equal(t, 0, first.Salary.Revision)

	second, err := svc.PaySalary(ctx, PaySalaryInput{
		ShopID: 7, EmployeeID: employee.ID, Month: "2026-05", Amount: dec("3100000"), Bonus: dec("50000"),
	})
	require.NoError(t, err)
	require.True(t, second.Correction)
	require.Equal(t, 1, second.Salary.Revision)
	require.True(t, second.Salary.NetAmount.Equal(dec("3150000")))

	// The overwrite replaces, never accumulates.
	stored, err := svc.GetSalary(ctx, 7, employee.ID, "2026-05")
	require.NoError(t, err)
	require.True(t, stored.Amount.Equal(dec("3100000")))
}

func TestPaySalaryValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	employee := seedEmployee(t, svc)

	_, err := svc.PaySalary(ctx, PaySalaryInput{ShopID: 7, EmployeeID: employee.ID, Month: "2026-13", Amount: dec("1")})
	require.ErrorIs(t, err, ErrInvalidMonth)

	_, err = svc.PaySalary(ctx, PaySalaryInput{ShopID: 7, EmployeeID: 999, Month: "2026-05", Amount: dec("1")})
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.PaySalary(ctx, PaySalaryInput{
		ShopID: 7, EmployeeID: employee.ID, Month: "2026-05", Amount: dec("1"),
		LoanDeductions: []LoanDeduction{{LoanID: 1, Amount: dec("0")}},
	})
	require.ErrorIs(t, err, ErrInvalidAmount)
}
