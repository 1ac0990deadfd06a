package handler

import (
	stderrors "errors"
	"log/slog"
	"net/http"

	"github.com/riteshkumar/bank-ledger/internal/errors"
	u "github.com/riteshkumar/bank-ledger/internal/utils"
)

// handleServiceError maps a typed service error onto an HTTP response.
func handleServiceError(logger *slog.Logger, w http.ResponseWriter, err error, operation string) {
	switch {
	case errors.IsValidationError(err):
		u.WriteError(w, http.StatusBadRequest, "validation error", err.Error())
	case stderrors.Is(err, errors.ErrInvalidAmount):
		u.WriteError(w, http.StatusBadRequest, "invalid amount", "amount must be positive with at most two decimal places")
	case stderrors.Is(err, errors.ErrSameAccount):
		u.WriteError(w, http.StatusBadRequest, "same account", err.Error())
	case errors.IsInsufficientFunds(err):
		u.WriteError(w, http.StatusConflict, "insufficient funds", err.Error())
	case stderrors.Is(err, errors.ErrInactiveAccount):
		u.WriteError(w, http.StatusConflict, "account inactive", err.Error())
	case stderrors.Is(err, errors.ErrTargetInactive):
		u.WriteError(w, http.StatusConflict, "target account inactive", err.Error())
	case stderrors.Is(err, errors.ErrDuplicateAccount):
		u.WriteError(w, http.StatusConflict, "duplicate account", err.Error())
	case stderrors.Is(err, errors.ErrUsernameTaken):
		u.WriteError(w, http.StatusConflict, "username taken", err.Error())
	case stderrors.Is(err, errors.ErrAlreadyRegistered):
		u.WriteError(w, http.StatusConflict, "already registered", err.Error())
	case errors.IsNotFound(err):
		u.WriteError(w, http.StatusNotFound, "not found", err.Error())
	case stderrors.Is(err, errors.ErrUnauthenticated):
		u.WriteError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
	case stderrors.Is(err, errors.ErrForbidden):
		u.WriteError(w, http.StatusForbidden, "forbidden", err.Error())
	default:
		logger.Error("internal server error during "+operation, "error", err.Error())
		u.WriteError(w, http.StatusInternalServerError, "internal server error", "")
	}
}
