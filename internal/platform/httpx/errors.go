package httpx

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/tokoku-erp/tokoku-erp/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807. Internal
// details are never exposed for unknown errors.
func RespondError(w http.ResponseWriter, err error) {
	var validationErr *shared.ValidationError
	var stockErr *shared.InsufficientStockError
	var fieldErrs validator.ValidationErrors
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrInvalidAPIKey):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	case errors.Is(err, shared.ErrShopSuspended):
		Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.As(err, &stockErr):
		Problem(w, http.StatusConflict, "Insufficient Stock", stockErr.Error())
	case errors.As(err, &validationErr):
		Problem(w, http.StatusBadRequest, "Validation Failed", validationErr.Error())
	case errors.As(err, &fieldErrs):
		Problem(w, http.StatusBadRequest, "Validation Failed", fieldErrs.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
