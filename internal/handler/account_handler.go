package handler

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/riteshkumar/bank-ledger/internal/models"
	"github.com/riteshkumar/bank-ledger/internal/policy"
	"github.com/riteshkumar/bank-ledger/internal/service"
	u "github.com/riteshkumar/bank-ledger/internal/utils"
)

type AccountHandler struct {
	accountService service.AccountService
	logger         *slog.Logger
}

func NewAccountHandler(accountService service.AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		logger:         logger,
	}
}

func (h *AccountHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/admin/accounts", h.CreateAccount).Methods(http.MethodPost)
	router.HandleFunc("/admin/accounts", h.ListAccounts).Methods(http.MethodGet)
	router.HandleFunc("/admin/accounts/{id}/toggle-status", h.ToggleStatus).Methods(http.MethodPost)
	router.HandleFunc("/admin/accounts/{id}/audit", h.AuditTrail).Methods(http.MethodGet)
	router.HandleFunc("/client/register", h.Register).Methods(http.MethodPost)
	router.HandleFunc("/client/account", h.GetOwnAccount).Methods(http.MethodGet)
}

// Register is called by the gateway right after it has created credentials
// for a new client; the identity headers carry the new user id.
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	caller, err := authorize(r, policy.ActionRegister)
	if err != nil {
		handleServiceError(h.logger, w, err, "register")
		return
	}

	var req models.RegisterRequest
	if err := u.DecodeAndValidate(r, &req); err != nil {
		h.logger.Warn("invalid register request", "error", err.Error())
		handleServiceError(h.logger, w, err, "register")
		return
	}

	account, err := h.accountService.RegisterClient(r.Context(), caller, &req)
	if err != nil {
		handleServiceError(h.logger, w, err, "register")
		return
	}

	u.WriteJSON(w, http.StatusCreated, models.NewAccountResponse(account))
}

func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	caller, err := authorize(r, policy.ActionCreateAccount)
	if err != nil {
		handleServiceError(h.logger, w, err, "create account")
		return
	}

	var req models.CreateAccountRequest
	if err := u.DecodeAndValidate(r, &req); err != nil {
		h.logger.Warn("invalid create account request", "error", err.Error())
		handleServiceError(h.logger, w, err, "create account")
		return
	}

	account, err := h.accountService.CreateAccount(r.Context(), caller, &req)
	if err != nil {
		handleServiceError(h.logger, w, err, "create account")
		return
	}

	u.WriteJSON(w, http.StatusCreated, models.NewAccountResponse(account))
}

func (h *AccountHandler) ToggleStatus(w http.ResponseWriter, r *http.Request) {
	caller, err := authorize(r, policy.ActionToggleStatus)
	if err != nil {
		handleServiceError(h.logger, w, err, "toggle account status")
		return
	}

	accountID := mux.Vars(r)["id"]
	if accountID == "" {
		u.WriteError(w, http.StatusBadRequest, "id is required", "")
		return
	}

	account, err := h.accountService.ToggleStatus(r.Context(), caller, accountID)
	if err != nil {
		handleServiceError(h.logger, w, err, "toggle account status")
		return
	}

	u.WriteJSON(w, http.StatusOK, models.NewAccountResponse(account))
}

func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	if _, err := authorize(r, policy.ActionListAccounts); err != nil {
		handleServiceError(h.logger, w, err, "list accounts")
		return
	}

	accounts, err := h.accountService.ListAccounts(r.Context())
	if err != nil {
		handleServiceError(h.logger, w, err, "list accounts")
		return
	}

	response := make([]models.AccountResponse, 0, len(accounts))
	for _, account := range accounts {
		response = append(response, models.NewAccountResponse(account))
	}
	u.WriteJSON(w, http.StatusOK, response)
}

func (h *AccountHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	if _, err := authorize(r, policy.ActionViewAudit); err != nil {
		handleServiceError(h.logger, w, err, "get audit trail")
		return
	}

	logs, err := h.accountService.AuditTrail(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		handleServiceError(h.logger, w, err, "get audit trail")
		return
	}

	u.WriteJSON(w, http.StatusOK, logs)
}

func (h *AccountHandler) GetOwnAccount(w http.ResponseWriter, r *http.Request) {
	caller, err := authorize(r, policy.ActionViewAccount)
	if err != nil {
		handleServiceError(h.logger, w, err, "get account")
		return
	}

	account, err := h.accountService.GetAccountForOwner(r.Context(), caller.UserID)
	if err != nil {
		handleServiceError(h.logger, w, err, "get account")
		return
	}

	u.WriteJSON(w, http.StatusOK, models.NewAccountResponse(account))
}
