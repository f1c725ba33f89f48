package payroll

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/tokoku-erp/tokoku-erp/internal/platform/httpx"
	"github.com/tokoku-erp/tokoku-erp/internal/shared"
)

// Handler wires HTTP endpoints for the payroll module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs payroll handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers payroll routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/employees", h.handleCreateEmployee)
	r.Get("/employees", h.handleListEmployees)
	r.Get("/employees/{id}", h.handleGetEmployee)
	r.Post("/employees/{id}/loans", h.handleDisburseLoan)
	r.Get("/employees/{id}/loans", h.handleListLoans)
	r.Get("/employees/{id}/loan-entries", h.handleListLoanEntries)
	r.Post("/employees/{id}/loan-payments", h.handleRepayLoan)
	r.Post("/employees/{id}/salaries", h.handlePaySalary)
	r.Get("/employees/{id}/salaries/{month}", h.handleGetSalary)
	r.Get("/loans/{id}", h.handleGetLoan)
	r.Get("/salaries", h.handleListSalaries)
}

type createEmployeeRequest struct {
	Name          string          `json:"name" validate:"required,max=200"`
	Phone         string          `json:"phone" validate:"max=50"`
	Role          string          `json:"role" validate:"max=100"`
	MonthlySalary decimal.Decimal `json:"monthly_salary"`
}

type disburseLoanRequest struct {
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	Note        string          `json:"note" validate:"max=500"`
	DisbursedAt time.Time       `json:"disbursed_at"`
}

type repayLoanRequest struct {
	LoanID int64           `json:"loan_id"`
	Amount decimal.Decimal `json:"amount" validate:"required"`
	Method string          `json:"method" validate:"max=50"`
	Note   string          `json:"note" validate:"max=500"`
}

type loanDeductionRequest struct {
	LoanID int64           `json:"loan_id" validate:"required,gt=0"`
	Amount decimal.Decimal `json:"amount" validate:"required"`
}

type paySalaryRequest struct {
	Month          string                 `json:"month" validate:"required"`
	Amount         decimal.Decimal        `json:"amount" validate:"required"`
	Bonus          decimal.Decimal        `json:"bonus"`
	Fine           decimal.Decimal        `json:"fine"`
	LoanDeductions []loanDeductionRequest `json:"loan_deductions" validate:"dive"`
}

type employeeResponse struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Phone         string          `json:"phone,omitempty"`
	Role          string          `json:"role,omitempty"`
	MonthlySalary decimal.Decimal `json:"monthly_salary"`
	Active        bool            `json:"active"`
	JoinedAt      time.Time       `json:"joined_at"`
}

type loanResponse struct {
	ID           int64           `json:"id"`
	EmployeeID   int64           `json:"employee_id"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	TotalPaid    decimal.Decimal `json:"total_paid"`
	TotalBalance decimal.Decimal `json:"total_balance"`
	Status       string          `json:"status"`
	Note         string          `json:"note,omitempty"`
	DisbursedAt  time.Time       `json:"disbursed_at"`
}

type loanEntryResponse struct {
	ID        int64           `json:"id"`
	LoanID    int64           `json:"loan_id,omitempty"`
	Type      string          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method,omitempty"`
	Note      string          `json:"note,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type salaryResponse struct {
	ID            int64           `json:"id"`
	EmployeeID    int64           `json:"employee_id"`
	Month         string          `json:"month"`
	Amount        decimal.Decimal `json:"amount"`
	Bonus         decimal.Decimal `json:"bonus"`
	Fine          decimal.Decimal `json:"fine"`
	LoanDeduction decimal.Decimal `json:"loan_deduction"`
	NetAmount     decimal.Decimal `json:"net_amount"`
	Status        string          `json:"status"`
	Revision      int             `json:"revision"`
	PaidAt        time.Time       `json:"paid_at"`
}

func toEmployeeResponse(e Employee) employeeResponse {
	return employeeResponse{ID: e.ID, Name: e.Name, Phone: e.Phone, Role: e.Role, MonthlySalary: e.MonthlySalary, Active: e.Active, JoinedAt: e.JoinedAt}
}

func toLoanResponse(l Loan) loanResponse {
	return loanResponse{
		ID:           l.ID,
		EmployeeID:   l.EmployeeID,
		TotalAmount:  l.TotalAmount,
		TotalPaid:    l.TotalPaid,
		TotalBalance: l.TotalBalance,
		Status:       string(l.Status),
		Note:         l.Note,
		DisbursedAt:  l.DisbursedAt,
	}
}

func toSalaryResponse(s Salary) salaryResponse {
	return salaryResponse{
		ID:            s.ID,
		EmployeeID:    s.EmployeeID,
		Month:         s.Month,
		Amount:        s.Amount,
		Bonus:         s.Bonus,
		Fine:          s.Fine,
		LoanDeduction: s.LoanDeduction,
		NetAmount:     s.NetAmount,
		Status:        string(s.Status),
		Revision:      s.Revision,
		PaidAt:        s.PaidAt,
	}
}

func (h *Handler) handleCreateEmployee(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	var req createEmployeeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	employee, err := h.service.CreateEmployee(r.Context(), CreateEmployeeInput{
		ShopID:        tenant.ShopID,
		Name:          req.Name,
		Phone:         req.Phone,
		Role:          req.Role,
		MonthlySalary: req.MonthlySalary,
		ActorID:       tenant.UserID,
	})
	if err != nil {
		h.respondServiceError(w, "create employee", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEmployeeResponse(employee))
}

func (h *Handler) handleGetEmployee(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid employee id")
		return
	}
	employee, err := h.service.GetEmployee(r.Context(), tenant.ShopID, id)
	if err != nil {
		h.respondServiceError(w, "get employee", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEmployeeResponse(employee))
}

func (h *Handler) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	employees, err := h.service.ListEmployees(r.Context(), tenant.ShopID)
	if err != nil {
		h.respondServiceError(w, "list employees", err)
		return
	}
	out := make([]employeeResponse, 0, len(employees))
	for _, e := range employees {
		out = append(out, toEmployeeResponse(e))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"employees": out})
}

func (h *Handler) handleDisburseLoan(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	employeeID, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid employee id")
		return
	}
	var req disburseLoanRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	loan, err := h.service.DisburseLoan(r.Context(), DisburseInput{
		ShopID:      tenant.ShopID,
		EmployeeID:  employeeID,
		Amount:      req.Amount,
		Note:        req.Note,
		DisbursedAt: req.DisbursedAt,
		ActorID:     tenant.UserID,
	})
	if err != nil {
		h.respondServiceError(w, "disburse loan", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toLoanResponse(loan))
}

func (h *Handler) handleRepayLoan(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	employeeID, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid employee id")
		return
	}
	var req repayLoanRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.RepayLoan(r.Context(), RepayInput{
		ShopID:     tenant.ShopID,
		EmployeeID: employeeID,
		LoanID:     req.LoanID,
		Amount:     req.Amount,
		Method:     req.Method,
		Note:       req.Note,
		ActorID:    tenant.UserID,
	})
	if err != nil {
		h.respondServiceError(w, "repay loan", err)
		return
	}
	loans := make([]loanResponse, 0, len(result.Loans))
	for _, loan := range result.Loans {
		loans = append(loans, toLoanResponse(loan))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"applied":   result.Applied,
		"remainder": result.Remainder,
		"loans":     loans,
	})
}

func (h *Handler) handlePaySalary(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	employeeID, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid employee id")
		return
	}
	var req paySalaryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input := PaySalaryInput{
		ShopID:     tenant.ShopID,
		EmployeeID: employeeID,
		Month:      req.Month,
		Amount:     req.Amount,
		Bonus:      req.Bonus,
		Fine:       req.Fine,
		ActorID:    tenant.UserID,
	}
	for _, d := range req.LoanDeductions {
		input.LoanDeductions = append(input.LoanDeductions, LoanDeduction{LoanID: d.LoanID, Amount: d.Amount})
	}
	result, err := h.service.PaySalary(r.Context(), input)
	if err != nil {
		h.respondServiceError(w, "pay salary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"salary":     toSalaryResponse(result.Salary),
		"deducted":   result.Deducted,
		"correction": result.Correction,
	})
}

func (h *Handler) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid loan id")
		return
	}
	loan, err := h.service.GetLoan(r.Context(), tenant.ShopID, id)
	if err != nil {
		h.respondServiceError(w, "get loan", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toLoanResponse(loan))
}

func (h *Handler) handleListLoans(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	employeeID, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid employee id")
		return
	}
	loans, err := h.service.ListLoans(r.Context(), tenant.ShopID, employeeID)
	if err != nil {
		h.respondServiceError(w, "list loans", err)
		return
	}
	out := make([]loanResponse, 0, len(loans))
	for _, loan := range loans {
		out = append(out, toLoanResponse(loan))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"loans": out})
}

func (h *Handler) handleListLoanEntries(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	employeeID, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid employee id")
		return
	}
	entries, err := h.service.ListLoanEntries(r.Context(), tenant.ShopID, employeeID)
	if err != nil {
		h.respondServiceError(w, "list loan entries", err)
		return
	}
	out := make([]loanEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, loanEntryResponse{
			ID:        e.ID,
			LoanID:    e.LoanID,
			Type:      string(e.Type),
			Amount:    e.Amount,
			Method:    e.Method,
			Note:      e.Note,
			CreatedAt: e.CreatedAt,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (h *Handler) handleGetSalary(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	employeeID, err := parseID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid employee id")
		return
	}
	salary, err := h.service.GetSalary(r.Context(), tenant.ShopID, employeeID, chi.URLParam(r, "month"))
	if err != nil {
		h.respondServiceError(w, "get salary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSalaryResponse(salary))
}

func (h *Handler) handleListSalaries(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	salaries, err := h.service.ListSalaries(r.Context(), tenant.ShopID, r.URL.Query().Get("month"))
	if err != nil {
		h.respondServiceError(w, "list salaries", err)
		return
	}
	out := make([]salaryResponse, 0, len(salaries))
	for _, s := range salaries {
		out = append(out, toSalaryResponse(s))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"salaries": out})
}

func parseID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, op string, err error) {
	switch err {
	case ErrInvalidAmount, ErrLoanAlreadyPaid, ErrNoActiveLoans, ErrInvalidMonth:
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	h.logger.Error(op+" failed", slog.Any("error", err))
	httpx.RespondError(w, err)
}
