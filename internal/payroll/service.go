package payroll

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tokoku-erp/tokoku-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetEmployee(ctx context.Context, shopID, employeeID int64) (Employee, error)
	ListEmployees(ctx context.Context, shopID int64) ([]Employee, error)
	GetLoan(ctx context.Context, shopID, loanID int64) (Loan, error)
	ListLoans(ctx context.Context, shopID, employeeID int64) ([]Loan, error)
	ListLoanEntries(ctx context.Context, shopID, employeeID int64) ([]LoanEntry, error)
	GetSalary(ctx context.Context, shopID, employeeID int64, month string) (Salary, error)
	ListSalaries(ctx context.Context, shopID int64, month string) ([]Salary, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service settles employee loans and salaries. Each settlement call is one
// transaction; loan balances only ever decrease toward zero.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// CreateEmployee registers an employee.
func (s *Service) CreateEmployee(ctx context.Context, input CreateEmployeeInput) (Employee, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.ShopID == 0 {
		return Employee{}, shared.NewValidationError("shop_id", "is required")
	}
	if input.Name == "" {
		return Employee{}, shared.NewValidationError("name", "is required")
	}
	if input.MonthlySalary.IsNegative() {
		return Employee{}, shared.NewValidationError("monthly_salary", "must be >= 0")
	}
	var created Employee
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.InsertEmployee(ctx, input)
		return err
	})
	if err != nil {
		return Employee{}, err
	}
	s.auditRecord(ctx, input.ShopID, input.ActorID, "payroll:employee:create", created.ID, nil)
	return created, nil
}

// DisburseLoan creates a loan with the full amount outstanding and writes the
// opening CREDIT ledger entry.
func (s *Service) DisburseLoan(ctx context.Context, input DisburseInput) (Loan, error) {
	if !input.Amount.IsPositive() {
		return Loan{}, ErrInvalidAmount
	}
	if input.DisbursedAt.IsZero() {
		input.DisbursedAt = time.Now().UTC()
	}
	var loan Loan
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetEmployeeForUpdate(ctx, input.ShopID, input.EmployeeID); err != nil {
			return err
		}
		var err error
		loan, err = tx.InsertLoan(ctx, Loan{
			ShopID:       input.ShopID,
			EmployeeID:   input.EmployeeID,
			TotalAmount:  input.Amount,
			TotalPaid:    decimal.Zero,
			TotalBalance: input.Amount,
			Status:       LoanActive,
			Note:         input.Note,
			DisbursedAt:  input.DisbursedAt,
		})
		if err != nil {
			return err
		}
		return tx.InsertLoanEntry(ctx, LoanEntry{
			ShopID:     input.ShopID,
			LoanID:     loan.ID,
			EmployeeID: input.EmployeeID,
			Ref:        uuid.NewString(),
			Type:       LoanEntryCredit,
			Amount:     input.Amount,
			Note:       input.Note,
			CreatedBy:  input.ActorID,
		})
	})
	if err != nil {
		return Loan{}, err
	}
	s.auditRecord(ctx, input.ShopID, input.ActorID, "payroll:loan:disburse", loan.ID,
		map[string]any{"amount": input.Amount.String()})
	return loan, nil
}

// RepayLoan applies a repayment. With a LoanID the amount is capped at that
// loan's balance. Without one, active loans are paid down oldest disbursement
// first; any remainder beyond the employee's total outstanding balance is
// recorded as a standalone ADJUST entry.
func (s *Service) RepayLoan(ctx context.Context, input RepayInput) (RepayResult, error) {
	if !input.Amount.IsPositive() {
		return RepayResult{}, ErrInvalidAmount
	}
	var result RepayResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if input.LoanID != 0 {
			return s.repaySingle(ctx, tx, input, &result)
		}
		return s.repayAcross(ctx, tx, input, &result)
	})
	if err != nil {
		return RepayResult{}, err
	}
	s.auditRecord(ctx, input.ShopID, input.ActorID, "payroll:loan:repay", input.EmployeeID,
		map[string]any{"applied": result.Applied.String(), "remainder": result.Remainder.String()})
	return result, nil
}

func (s *Service) repaySingle(ctx context.Context, tx TxRepository, input RepayInput, result *RepayResult) error {
	loan, err := tx.GetLoanForUpdate(ctx, input.ShopID, input.LoanID)
	if err != nil {
		return err
	}
	if loan.Status == LoanPaid {
		return ErrLoanAlreadyPaid
	}
	applied := decimal.Min(input.Amount, loan.TotalBalance)
	updated, err := applyRepayment(ctx, tx, loan, applied, input)
	if err != nil {
		return err
	}
	result.Applied = applied
	result.Remainder = input.Amount.Sub(applied)
	result.Loans = []Loan{updated}
	return nil
}

func (s *Service) repayAcross(ctx context.Context, tx TxRepository, input RepayInput, result *RepayResult) error {
	loans, err := tx.ListActiveLoansForUpdate(ctx, input.ShopID, input.EmployeeID)
	if err != nil {
		return err
	}
	if len(loans) == 0 {
		return ErrNoActiveLoans
	}
	remaining := input.Amount
	applied := decimal.Zero
	for _, loan := range loans {
		if !remaining.IsPositive() {
			break
		}
		portion := decimal.Min(remaining, loan.TotalBalance)
		updated, err := applyRepayment(ctx, tx, loan, portion, input)
		if err != nil {
			return err
		}
		result.Loans = append(result.Loans, updated)
		applied = applied.Add(portion)
		remaining = remaining.Sub(portion)
	}
	if remaining.IsPositive() {
		// Overpayment beyond every outstanding balance becomes a standalone
		// adjustment entry, not attached to any loan.
		if err := tx.InsertLoanEntry(ctx, LoanEntry{
			ShopID:     input.ShopID,
			EmployeeID: input.EmployeeID,
			Ref:        uuid.NewString(),
			Type:       LoanEntryAdjust,
			Amount:     remaining,
			Method:     input.Method,
			Note:       "overpayment remainder",
			CreatedBy:  input.ActorID,
		}); err != nil {
			return err
		}
	}
	result.Applied = applied
	result.Remainder = remaining
	return nil
}

func applyRepayment(ctx context.Context, tx TxRepository, loan Loan, amount decimal.Decimal, input RepayInput) (Loan, error) {
	if !amount.IsPositive() {
		return loan, nil
	}
	loan.TotalPaid = loan.TotalPaid.Add(amount)
	loan.TotalBalance = loan.TotalAmount.Sub(loan.TotalPaid)
	if loan.TotalBalance.LessThanOrEqual(decimal.Zero) {
		loan.TotalBalance = decimal.Zero
		loan.Status = LoanPaid
	}
	if err := tx.UpdateLoanTotals(ctx, loan); err != nil {
		return Loan{}, err
	}
	err := tx.InsertLoanEntry(ctx, LoanEntry{
		ShopID:     loan.ShopID,
		LoanID:     loan.ID,
		EmployeeID: loan.EmployeeID,
		Ref:        uuid.NewString(),
		Type:       LoanEntryDebit,
		Amount:     amount,
		Method:     input.Method,
		Note:       input.Note,
		CreatedBy:  input.ActorID,
	})
	if err != nil {
		return Loan{}, err
	}
	return loan, nil
}

// PaySalary settles one employee month: net = amount + bonus - fine minus the
// applied loan deductions, floored at zero. Paying the same month again
// overwrites the previous record as a logged correction.
func (s *Service) PaySalary(ctx context.Context, input PaySalaryInput) (SettlementResult, error) {
	if !ValidMonth(input.Month) {
		return SettlementResult{}, ErrInvalidMonth
	}
	if input.Amount.IsNegative() || input.Bonus.IsNegative() || input.Fine.IsNegative() {
		return SettlementResult{}, shared.NewValidationError("amount", "salary figures must be >= 0")
	}
	for _, d := range input.LoanDeductions {
		if !d.Amount.IsPositive() {
			return SettlementResult{}, ErrInvalidAmount
		}
	}

	var result SettlementResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetEmployeeForUpdate(ctx, input.ShopID, input.EmployeeID); err != nil {
			return err
		}

		deducted := decimal.Zero
		for _, d := range input.LoanDeductions {
			loan, err := tx.GetLoanForUpdate(ctx, input.ShopID, d.LoanID)
			if err != nil {
				return err
			}
			if loan.Status == LoanPaid {
				return ErrLoanAlreadyPaid
			}
			portion := decimal.Min(d.Amount, loan.TotalBalance)
			if _, err := applyRepayment(ctx, tx, loan, portion, RepayInput{
				ShopID:     input.ShopID,
				EmployeeID: input.EmployeeID,
				Method:     "SALARY_DEDUCTION",
				Note:       "salary " + input.Month,
				ActorID:    input.ActorID,
			}); err != nil {
				return err
			}
			deducted = deducted.Add(portion)
		}

		net := input.Amount.Add(input.Bonus).Sub(input.Fine).Sub(deducted)
		if net.IsNegative() {
			net = decimal.Zero
		}

		salary, correction, err := tx.UpsertSalary(ctx, Salary{
			ShopID:        input.ShopID,
			EmployeeID:    input.EmployeeID,
			Month:         input.Month,
			Amount:        input.Amount,
			Bonus:         input.Bonus,
			Fine:          input.Fine,
			LoanDeduction: deducted,
			NetAmount:     net,
			Status:        SalaryPaid,
			PaidAt:        time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		result = SettlementResult{Salary: salary, Deducted: deducted, Correction: correction}
		return nil
	})
	if err != nil {
		return SettlementResult{}, err
	}

	action := "payroll:salary:pay"
	if result.Correction {
		action = "payroll:salary:correct"
	}
	s.auditRecord(ctx, input.ShopID, input.ActorID, action, input.EmployeeID,
		map[string]any{"month": input.Month, "net": result.Salary.NetAmount.String(), "revision": result.Salary.Revision})
	return result, nil
}

// GetEmployee fetches one employee.
func (s *Service) GetEmployee(ctx context.Context, shopID, employeeID int64) (Employee, error) {
	return s.repo.GetEmployee(ctx, shopID, employeeID)
}

// ListEmployees lists employees of a shop.
func (s *Service) ListEmployees(ctx context.Context, shopID int64) ([]Employee, error) {
	return s.repo.ListEmployees(ctx, shopID)
}

// GetLoan fetches one loan.
func (s *Service) GetLoan(ctx context.Context, shopID, loanID int64) (Loan, error) {
	return s.repo.GetLoan(ctx, shopID, loanID)
}

// ListLoans lists loans, optionally scoped to one employee.
func (s *Service) ListLoans(ctx context.Context, shopID, employeeID int64) ([]Loan, error) {
	return s.repo.ListLoans(ctx, shopID, employeeID)
}

// ListLoanEntries lists the loan ledger of one employee.
func (s *Service) ListLoanEntries(ctx context.Context, shopID, employeeID int64) ([]LoanEntry, error) {
	return s.repo.ListLoanEntries(ctx, shopID, employeeID)
}

// GetSalary fetches one settled month.
func (s *Service) GetSalary(ctx context.Context, shopID, employeeID int64, month string) (Salary, error) {
	if !ValidMonth(month) {
		return Salary{}, ErrInvalidMonth
	}
	return s.repo.GetSalary(ctx, shopID, employeeID, month)
}

// ListSalaries lists salary records, optionally for one month.
func (s *Service) ListSalaries(ctx context.Context, shopID int64, month string) ([]Salary, error) {
	if month != "" && !ValidMonth(month) {
		return nil, ErrInvalidMonth
	}
	return s.repo.ListSalaries(ctx, shopID, month)
}

func (s *Service) auditRecord(ctx context.Context, shopID, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ShopID:   shopID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "payroll",
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
}
