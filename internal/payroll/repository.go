package payroll

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tokoku-erp/tokoku-erp/internal/platform/db"
	"github.com/tokoku-erp/tokoku-erp/internal/shared"
)

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	InsertEmployee(ctx context.Context, input CreateEmployeeInput) (Employee, error)
	GetEmployeeForUpdate(ctx context.Context, shopID, employeeID int64) (Employee, error)
	InsertLoan(ctx context.Context, loan Loan) (Loan, error)
	GetLoanForUpdate(ctx context.Context, shopID, loanID int64) (Loan, error)
	ListActiveLoansForUpdate(ctx context.Context, shopID, employeeID int64) ([]Loan, error)
	UpdateLoanTotals(ctx context.Context, loan Loan) error
	InsertLoanEntry(ctx context.Context, entry LoanEntry) error
	UpsertSalary(ctx context.Context, salary Salary) (Salary, bool, error)
}

// Repository persists payroll data in PostgreSQL.
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
		return errors.New("payroll repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const employeeColumns = `id, shop_id, name, phone, role, monthly_salary, is_active, joined_at`

const loanColumns = `id, shop_id, employee_id, total_amount, total_paid, total_balance, status, note, disbursed_at, created_at`

const salaryColumns = `id, shop_id, employee_id, month, amount, bonus, fine, loan_deduction, net_amount, status, revision, paid_at`

// GetEmployee fetches one employee.
func (r *Repository) GetEmployee(ctx context.Context, shopID, employeeID int64) (Employee, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE shop_id=$1 AND id=$2`, shopID, employeeID)
	return scanEmployeeErr(row, employeeID)
}

// ListEmployees lists employees by name.
func (r *Repository) ListEmployees(ctx context.Context, shopID int64) ([]Employee, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+employeeColumns+` FROM employees WHERE shop_id=$1 ORDER BY name ASC`, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Employee{}
	for rows.Next() {
		employee, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, employee)
	}
	return out, rows.Err()
}

// GetLoan fetches one loan.
func (r *Repository) GetLoan(ctx context.Context, shopID, loanID int64) (Loan, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE shop_id=$1 AND id=$2`, shopID, loanID)
	return scanLoanErr(row, loanID)
}

// ListLoans lists loans newest first, optionally for one employee.
func (r *Repository) ListLoans(ctx context.Context, shopID, employeeID int64) ([]Loan, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+loanColumns+` FROM loans
WHERE shop_id=$1 AND ($2 = 0 OR employee_id=$2)
ORDER BY disbursed_at DESC, id DESC`, shopID, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Loan{}
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, loan)
	}
	return out, rows.Err()
}

// ListLoanEntries lists an employee's ledger newest first.
func (r *Repository) ListLoanEntries(ctx context.Context, shopID, employeeID int64) ([]LoanEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, shop_id, COALESCE(loan_id,0), employee_id, ref, entry_type, amount, method, note, COALESCE(created_by,0), created_at
FROM loan_entries
WHERE shop_id=$1 AND employee_id=$2
ORDER BY created_at DESC, id DESC`, shopID, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []LoanEntry{}
	for rows.Next() {
		var e LoanEntry
		var entryType string
		if err := rows.Scan(&e.ID, &e.ShopID, &e.LoanID, &e.EmployeeID, &e.Ref, &entryType, &e.Amount, &e.Method, &e.Note, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = LoanEntryType(entryType)
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetSalary fetches one settled month.
func (r *Repository) GetSalary(ctx context.Context, shopID, employeeID int64, month string) (Salary, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+salaryColumns+` FROM salaries WHERE shop_id=$1 AND employee_id=$2 AND month=$3`, shopID, employeeID, month)
	salary, err := scanSalary(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Salary{}, fmt.Errorf("salary %s for employee %d: %w", month, employeeID, shared.ErrNotFound)
		}
		return Salary{}, err
	}
	return salary, nil
}

// ListSalaries lists salary records, optionally for one month.
func (r *Repository) ListSalaries(ctx context.Context, shopID int64, month string) ([]Salary, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+salaryColumns+` FROM salaries
WHERE shop_id=$1 AND ($2 = '' OR month=$2)
ORDER BY month DESC, employee_id ASC`, shopID, month)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Salary{}
	for rows.Next() {
		salary, err := scanSalary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, salary)
	}
	return out, rows.Err()
}

func (r *txRepository) InsertEmployee(ctx context.Context, input CreateEmployeeInput) (Employee, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO employees (shop_id, name, phone, role, monthly_salary, is_active, joined_at)
VALUES ($1,$2,$3,$4,$5,TRUE,NOW()) RETURNING `+employeeColumns,
		input.ShopID, input.Name, input.Phone, input.Role, input.MonthlySalary)
	return scanEmployee(row)
}

func (r *txRepository) GetEmployeeForUpdate(ctx context.Context, shopID, employeeID int64) (Employee, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE shop_id=$1 AND id=$2 FOR UPDATE`, shopID, employeeID)
	return scanEmployeeErr(row, employeeID)
}

func (r *txRepository) InsertLoan(ctx context.Context, loan Loan) (Loan, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO loans (shop_id, employee_id, total_amount, total_paid, total_balance, status, note, disbursed_at, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW()) RETURNING `+loanColumns,
		loan.ShopID, loan.EmployeeID, loan.TotalAmount, loan.TotalPaid, loan.TotalBalance, string(loan.Status), loan.Note, loan.DisbursedAt)
	return scanLoan(row)
}

func (r *txRepository) GetLoanForUpdate(ctx context.Context, shopID, loanID int64) (Loan, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+loanColumns+` FROM loans WHERE shop_id=$1 AND id=$2 FOR UPDATE`, shopID, loanID)
	return scanLoanErr(row, loanID)
}

// ListActiveLoansForUpdate locks and returns active loans oldest first so
// employee-level repayments drain them in disbursement order.
func (r *txRepository) ListActiveLoansForUpdate(ctx context.Context, shopID, employeeID int64) ([]Loan, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+loanColumns+` FROM loans
WHERE shop_id=$1 AND employee_id=$2 AND status='ACTIVE'
ORDER BY disbursed_at ASC, id ASC
FOR UPDATE`, shopID, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Loan{}
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, loan)
	}
	return out, rows.Err()
}

func (r *txRepository) UpdateLoanTotals(ctx context.Context, loan Loan) error {
	_, err := r.tx.Exec(ctx, `UPDATE loans SET total_paid=$3, total_balance=$4, status=$5 WHERE shop_id=$1 AND id=$2`,
		loan.ShopID, loan.ID, loan.TotalPaid, loan.TotalBalance, string(loan.Status))
	return err
}

func (r *txRepository) InsertLoanEntry(ctx context.Context, entry LoanEntry) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO loan_entries (shop_id, loan_id, employee_id, ref, entry_type, amount, method, note, created_by, created_at)
VALUES ($1,NULLIF($2,0),$3,$4,$5,$6,$7,$8,NULLIF($9,0),NOW())`,
		entry.ShopID, entry.LoanID, entry.EmployeeID, entry.Ref, string(entry.Type), entry.Amount, entry.Method, entry.Note, entry.CreatedBy)
	return err
}

// UpsertSalary writes the month's record. A conflicting month overwrites the
// existing row and bumps revision; the bool result reports that correction.
func (r *txRepository) UpsertSalary(ctx context.Context, salary Salary) (Salary, bool, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO salaries (shop_id, employee_id, month, amount, bonus, fine, loan_deduction, net_amount, status, revision, paid_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,0,$10,NOW(),NOW())
ON CONFLICT (shop_id, employee_id, month) DO UPDATE
SET amount=EXCLUDED.amount, bonus=EXCLUDED.bonus, fine=EXCLUDED.fine,
    loan_deduction=EXCLUDED.loan_deduction, net_amount=EXCLUDED.net_amount,
    status=EXCLUDED.status, revision=salaries.revision + 1,
    paid_at=EXCLUDED.paid_at, updated_at=NOW()
RETURNING `+salaryColumns,
		salary.ShopID, salary.EmployeeID, salary.Month, salary.Amount, salary.Bonus, salary.Fine,
		salary.LoanDeduction, salary.NetAmount, string(salary.Status), salary.PaidAt)
	stored, err := scanSalary(row)
	if err != nil {
		return Salary{}, false, err
	}
	return stored, stored.Revision > 0, nil
}

func scanEmployee(row pgx.Row) (Employee, error) {
	var e Employee
	err := row.Scan(&e.ID, &e.ShopID, &e.Name, &e.Phone, &e.Role, &e.MonthlySalary, &e.Active, &e.JoinedAt)
	return e, err
}

func scanEmployeeErr(row pgx.Row, employeeID int64) (Employee, error) {
	employee, err := scanEmployee(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Employee{}, fmt.Errorf("employee %d: %w", employeeID, shared.ErrNotFound)
		}
		return Employee{}, err
	}
	return employee, nil
}

func scanLoan(row pgx.Row) (Loan, error) {
	var l Loan
	var status string
	err := row.Scan(&l.ID, &l.ShopID, &l.EmployeeID, &l.TotalAmount, &l.TotalPaid, &l.TotalBalance, &status, &l.Note, &l.DisbursedAt, &l.CreatedAt)
	l.Status = LoanStatus(status)
	return l, err
}

func scanLoanErr(row pgx.Row, loanID int64) (Loan, error) {
	loan, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Loan{}, fmt.Errorf("loan %d: %w", loanID, shared.ErrNotFound)
		}
		return Loan{}, err
	}
	return loan, nil
}

func scanSalary(row pgx.Row) (Salary, error) {
	var s Salary
	var status string
	err := row.Scan(&s.ID, &s.ShopID, &s.EmployeeID, &s.Month, &s.Amount, &s.Bonus, &s.Fine, &s.LoanDeduction, &s.NetAmount, &status, &s.Revision, &s.PaidAt)
	s.Status = SalaryStatus(status)
	return s, err
}
