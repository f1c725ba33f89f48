package payroll

import (
	"errors"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

// LoanStatus is the loan lifecycle state. A loan moves ACTIVE -> PAID once and
// never back.
type LoanStatus string

const (
	LoanActive LoanStatus = "ACTIVE"
	LoanPaid   LoanStatus = "PAID"
)

// LoanEntryType classifies a ledger row against a loan.
type LoanEntryType string

const (
	// LoanEntryCredit records the disbursed principal.
	LoanEntryCredit LoanEntryType = "CREDIT"
	// LoanEntryDebit records a repayment.
	LoanEntryDebit LoanEntryType = "DEBIT"
	// LoanEntryAdjust records an overpayment remainder not attached to any loan.
	LoanEntryAdjust LoanEntryType = "ADJUST"
)

// SalaryStatus marks whether a salary record is settled.
type SalaryStatus string

const (
	SalaryPending SalaryStatus = "PENDING"
	SalaryPaid    SalaryStatus = "PAID"
)

// Employee is a shop staff member.
type Employee struct {
	ID            int64
	ShopID        int64
	Name          string
	Phone         string
	Role          string
	MonthlySalary decimal.Decimal
	Active        bool
	JoinedAt      time.Time
}

// Loan tracks money lent to an employee. TotalBalance always equals
// TotalAmount minus TotalPaid and never goes below zero.
type Loan struct {
	ID          int64
	ShopID      int64
	EmployeeID  int64
	TotalAmount decimal.Decimal
	TotalPaid   decimal.Decimal
	TotalBalance decimal.Decimal
	Status      LoanStatus
	Note        string
	DisbursedAt time.Time
	CreatedAt   time.Time
}

// LoanEntry is one append-only ledger row. LoanID is zero for standalone
// ADJUST entries.
type LoanEntry struct {
	ID         int64
	ShopID     int64
	LoanID     int64
	EmployeeID int64
	Ref        string
	Type       LoanEntryType
	Amount     decimal.Decimal
	Method     string
	Note       string
	CreatedBy  int64
	CreatedAt  time.Time
}

// Salary is one settled month for one employee. Re-submitting the same month
// overwrites the row as an explicit correction and bumps Revision.
type Salary struct {
	ID            int64
	ShopID        int64
	EmployeeID    int64
	Month         string
	Amount        decimal.Decimal
	Bonus         decimal.Decimal
	Fine          decimal.Decimal
	LoanDeduction decimal.Decimal
	NetAmount     decimal.Decimal
	Status        SalaryStatus
	Revision      int
	PaidAt        time.Time
}

// CreateEmployeeInput describes a new employee.
type CreateEmployeeInput struct {
	ShopID        int64
	Name          string
	Phone         string
	Role          string
	MonthlySalary decimal.Decimal
	ActorID       int64
}

// DisburseInput describes a new loan.
type DisburseInput struct {
	ShopID      int64
	EmployeeID  int64
	Amount      decimal.Decimal
	Note        string
	DisbursedAt time.Time
	ActorID     int64
}

// RepayInput describes a repayment. LoanID zero means "pay down all active
// loans of the employee", oldest disbursement first.
type RepayInput struct {
	ShopID     int64
	EmployeeID int64
	LoanID     int64
	Amount     decimal.Decimal
	Method     string
	Note       string
	ActorID    int64
}

// RepayResult reports what a repayment actually did.
type RepayResult struct {
	Applied   decimal.Decimal
	Remainder decimal.Decimal
	Loans     []Loan
}

// PaySalaryInput describes one salary settlement call.
type PaySalaryInput struct {
	ShopID         int64
	EmployeeID     int64
	Month          string
	Amount         decimal.Decimal
	Bonus          decimal.Decimal
	Fine           decimal.Decimal
	LoanDeductions []LoanDeduction
	ActorID        int64
}

// LoanDeduction requests withholding part of a salary against one loan.
type LoanDeduction struct {
	LoanID int64
	Amount decimal.Decimal
}

// SettlementResult reports the outcome of a salary payment.
type SettlementResult struct {
	Salary     Salary
	Deducted   decimal.Decimal
	Correction bool
}

var monthPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// ValidMonth reports whether s is a YYYY-MM month key.
func ValidMonth(s string) bool {
	return monthPattern.MatchString(s)
}

// ErrInvalidAmount indicates a non-positive money amount.
var ErrInvalidAmount = errors.New("payroll: amount must be positive")

// ErrLoanAlreadyPaid indicates a repayment against a settled loan.
var ErrLoanAlreadyPaid = errors.New("payroll: loan already paid")

// ErrNoActiveLoans indicates an employee-level repayment with nothing to pay.
var ErrNoActiveLoans = errors.New("payroll: employee has no active loans")

// ErrInvalidMonth indicates a malformed salary month key.
var ErrInvalidMonth = errors.New("payroll: month must be formatted YYYY-MM")
