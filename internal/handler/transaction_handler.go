package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/riteshkumar/bank-ledger/internal/errors"
	"github.com/riteshkumar/bank-ledger/internal/models"
	"github.com/riteshkumar/bank-ledger/internal/policy"
	"github.com/riteshkumar/bank-ledger/internal/service"
	u "github.com/riteshkumar/bank-ledger/internal/utils"
)

// TransactionHandler serves the money-movement and history routes. Client
// routes always act on the caller's own account.
type TransactionHandler struct {
	accountService service.AccountService
	ledgerService  service.LedgerService
	historyService service.HistoryService
	logger         *slog.Logger
}

func NewTransactionHandler(accountService service.AccountService, ledgerService service.LedgerService, historyService service.HistoryService, logger *slog.Logger) *TransactionHandler {
	return &TransactionHandler{
		accountService: accountService,
		ledgerService:  ledgerService,
		historyService: historyService,
		logger:         logger,
	}
}

func (h *TransactionHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/client/deposit", h.Deposit).Methods(http.MethodPost)
	router.HandleFunc("/client/withdraw", h.Withdraw).Methods(http.MethodPost)
	router.HandleFunc("/client/transfer", h.Transfer).Methods(http.MethodPost)
	router.HandleFunc("/client/history", h.History).Methods(http.MethodGet)
	router.HandleFunc("/admin/transactions", h.ListTransactions).Methods(http.MethodGet)
}

func (h *TransactionHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.handleAmount(w, r, policy.ActionDeposit, "deposit", h.ledgerService.Deposit)
}

func (h *TransactionHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.handleAmount(w, r, policy.ActionWithdraw, "withdrawal", h.ledgerService.Withdraw)
}

type amountOperation func(ctx context.Context, caller models.Caller, accountID string, amount decimal.Decimal) (*models.LedgerResult, error)

func (h *TransactionHandler) handleAmount(w http.ResponseWriter, r *http.Request, action policy.Action, operation string, apply amountOperation) {
	caller, err := authorize(r, action)
	if err != nil {
		handleServiceError(h.logger, w, err, operation)
		return
	}

	var req models.AmountRequest
	if err := u.DecodeAndValidate(r, &req); err != nil {
		h.logger.Warn("invalid "+operation+" request", "user_id", caller.UserID, "error", err.Error())
		handleServiceError(h.logger, w, err, operation)
		return
	}

	account, err := h.accountService.GetAccountForOwner(r.Context(), caller.UserID)
	if err != nil {
		handleServiceError(h.logger, w, err, operation)
		return
	}

	result, err := apply(r.Context(), caller, account.ID, *req.Amount)
	if err != nil {
		handleServiceError(h.logger, w, err, operation)
		return
	}

	u.WriteJSON(w, http.StatusOK, models.LedgerResponse{
		Message: fmt.Sprintf("%s of %s completed", operation, req.Amount.StringFixed(2)),
		Account: models.NewAccountResponse(result.Account),
		Records: result.Records,
	})
}

func (h *TransactionHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	caller, err := authorize(r, policy.ActionTransfer)
	if err != nil {
		handleServiceError(h.logger, w, err, "transfer")
		return
	}

	var req models.TransferRequest
	if err := u.DecodeAndValidate(r, &req); err != nil {
		h.logger.Warn("invalid transfer request", "user_id", caller.UserID, "error", err.Error())
		handleServiceError(h.logger, w, err, "transfer")
		return
	}

	account, err := h.accountService.GetAccountForOwner(r.Context(), caller.UserID)
	if err != nil {
		handleServiceError(h.logger, w, err, "transfer")
		return
	}

	result, err := h.ledgerService.Transfer(r.Context(), caller, account.ID, req.TargetAccountNumber, *req.Amount)
	if err != nil {
		handleServiceError(h.logger, w, err, "transfer")
		return
	}

	u.WriteJSON(w, http.StatusOK, models.LedgerResponse{
		Message: fmt.Sprintf("transfer of %s to %s completed", req.Amount.StringFixed(2), req.TargetAccountNumber),
		Account: models.NewAccountResponse(result.Account),
		Records: result.Records,
	})
}

func (h *TransactionHandler) History(w http.ResponseWriter, r *http.Request) {
	caller, err := authorize(r, policy.ActionViewHistory)
	if err != nil {
		handleServiceError(h.logger, w, err, "history")
		return
	}

	account, err := h.accountService.GetAccountForOwner(r.Context(), caller.UserID)
	if err != nil {
		handleServiceError(h.logger, w, err, "history")
		return
	}

	entries, err := h.historyService.History(r.Context(), caller, account.ID)
	if err != nil {
		handleServiceError(h.logger, w, err, "history")
		return
	}

	u.WriteJSON(w, http.StatusOK, entries)
}

func (h *TransactionHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	if _, err := authorize(r, policy.ActionListAllTx); err != nil {
		handleServiceError(h.logger, w, err, "list transactions")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			handleServiceError(h.logger, w, errors.NewValidationError("limit", "must be an integer"), "list transactions")
			return
		}
		limit = n
	}

	records, err := h.historyService.RecentTransactions(r.Context(), limit)
	if err != nil {
		handleServiceError(h.logger, w, err, "list transactions")
		return
	}

	if records == nil {
		records = []*models.TransactionRecord{}
	}
	u.WriteJSON(w, http.StatusOK, records)
}
