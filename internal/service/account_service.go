package service

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/riteshkumar/bank-ledger/internal/errors"
	"github.com/riteshkumar/bank-ledger/internal/events"
	"github.com/riteshkumar/bank-ledger/internal/models"
	"github.com/riteshkumar/bank-ledger/internal/repository"
)

const defaultAccountNumberAttempts = 10

// AccountService is the account registry: it opens accounts, assigns account
// numbers and flips account status. It never touches balances after creation.
type AccountService interface {
	CreateAccount(ctx context.Context, caller models.Caller, req *models.CreateAccountRequest) (*models.Account, error)
	RegisterClient(ctx context.Context, caller models.Caller, req *models.RegisterRequest) (*models.Account, error)
	GenerateAccountNumber(ctx context.Context) (string, error)
	ToggleStatus(ctx context.Context, caller models.Caller, accountID string) (*models.Account, error)
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	GetAccountForOwner(ctx context.Context, userID string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]*models.Account, error)
	AuditTrail(ctx context.Context, accountID string) ([]*models.AuditLog, error)
}

type AccountServiceImpl struct {
	db          *sql.DB
	accountRepo repository.AccountRepository
	userRepo    repository.UserRepository
	auditRepo   repository.AuditRepository
	publisher   events.Publisher
	numbers     *AccountNumberGenerator
	maxAttempts int
	logger      *slog.Logger
}

func NewAccountService(db *sql.DB, accountRepo repository.AccountRepository, userRepo repository.UserRepository, auditRepo repository.AuditRepository, publisher events.Publisher, maxAttempts int, logger *slog.Logger) *AccountServiceImpl {
	if maxAttempts <= 0 {
		maxAttempts = defaultAccountNumberAttempts
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &AccountServiceImpl{
		db:          db,
		accountRepo: accountRepo,
		userRepo:    userRepo,
		auditRepo:   auditRepo,
		publisher:   publisher,
		numbers:     NewAccountNumberGenerator(accountRepo.AccountNumberExists),
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// CreateAccount opens an active account for an existing client that holds no
// other active account. A number lost to a concurrent insert is redrawn.
func (s *AccountServiceImpl) CreateAccount(ctx context.Context, caller models.Caller, req *models.CreateAccountRequest) (*models.Account, error) {
	if err := s.validateCreateRequest(req); err != nil {
		s.logger.Warn("invalid create account request",
			"owner_id", req.OwnerID,
			"initial_balance", req.InitialBalance.String(),
			"error", err.Error(),
		)
		return nil, err
	}

	isClient, err := s.accountRepo.OwnerIsClient(ctx, req.OwnerID)
	if err != nil {
		s.logger.Error("failed to look up owner", "owner_id", req.OwnerID, "error", err.Error())
		return nil, persistence("look up owner", err)
	}
	if !isClient {
		s.logger.Warn("owner not found or not a client", "owner_id", req.OwnerID)
		return nil, errors.ErrOwnerNotFound
	}

	hasActive, err := s.accountRepo.OwnerHasActiveAccount(ctx, req.OwnerID)
	if err != nil {
		s.logger.Error("failed to check owner accounts", "owner_id", req.OwnerID, "error", err.Error())
		return nil, persistence("check owner accounts", err)
	}
	if hasActive {
		s.logger.Warn("owner already has an active account", "owner_id", req.OwnerID)
		return nil, errors.ErrDuplicateAccount
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		number, err := s.GenerateAccountNumber(ctx)
		if err != nil {
			return nil, err
		}

		account := &models.Account{
			ID:            uuid.New().String(),
			UserID:        req.OwnerID,
			AccountNumber: number,
			Balance:       req.InitialBalance,
			Status:        models.AccountStatusActive,
		}

		err = s.accountRepo.CreateAccount(ctx, account)
		if stderrors.Is(err, errors.ErrAccountNumberTaken) {
			s.logger.Warn("account number collision, drawing again",
				"account_number", number,
				"attempt", attempt,
			)
			continue
		}
		if err != nil {
			if errors.IsBusinessRule(err) || errors.IsNotFound(err) {
				s.logger.Warn("account creation rejected", "owner_id", req.OwnerID, "error", err.Error())
				return nil, err
			}
			s.logger.Error("failed to create account", "owner_id", req.OwnerID, "error", err.Error())
			return nil, persistence("create account", err)
		}

		if err := s.createAccountAuditLog(ctx, caller, account); err != nil {
			s.logger.Error("failed to create audit log for account creation",
				"account_id", account.ID,
				"error", err.Error(),
			)
		}
		s.publish(ctx, &events.LedgerEvent{
			EventType:     events.EventAccountCreated,
			UserID:        account.UserID,
			AccountID:     account.ID,
			AccountNumber: account.AccountNumber,
			BalanceAfter:  account.Balance,
			Status:        string(account.Status),
		})

		s.logger.Info("account created successfully",
			"account_id", account.ID,
			"account_number", account.AccountNumber,
			"owner_id", account.UserID,
			"actor_id", caller.UserID,
		)
		return account, nil
	}

	s.logger.Error("exhausted account number attempts", "owner_id", req.OwnerID, "attempts", s.maxAttempts)
	return nil, errors.NewPersistenceError("create account",
		fmt.Errorf("no unused account number after %d attempts", s.maxAttempts))
}

// RegisterClient records the caller as a new client user and opens its
// active zero-balance account. Both rows commit together or not at all; a
// number lost to a concurrent insert restarts the whole transaction.
func (s *AccountServiceImpl) RegisterClient(ctx context.Context, caller models.Caller, req *models.RegisterRequest) (*models.Account, error) {
	if caller.UserID == "" {
		return nil, errors.ErrUnauthenticated
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, errors.NewValidationError("username", "must be non-empty")
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		number, err := s.GenerateAccountNumber(ctx)
		if err != nil {
			return nil, err
		}

		account := &models.Account{
			ID:            uuid.New().String(),
			UserID:        caller.UserID,
			Username:      username,
			AccountNumber: number,
			Balance:       decimal.Zero,
			Status:        models.AccountStatusActive,
		}

		err = inTransaction(ctx, s.db, func(tx *sql.Tx) error {
			user := &models.User{ID: caller.UserID, Username: username, Role: models.RoleClient}
			if err := s.userRepo.CreateUser(ctx, tx, user); err != nil {
				return persistence("create user", err)
			}
			if err := s.accountRepo.CreateAccountTx(ctx, tx, account); err != nil {
				return persistence("create account", err)
			}

			auditLog, err := newAuditLog(models.EntityTypeAccount, account.ID, models.AuditActionCreate, caller, nil, models.SnapshotOf(account))
			if err != nil {
				return persistence("build audit log", err)
			}
			if err := s.auditRepo.Create(ctx, tx, auditLog); err != nil {
				return persistence("create audit log", err)
			}
			return nil
		})
		if stderrors.Is(err, errors.ErrAccountNumberTaken) {
			s.logger.Warn("account number collision during registration, drawing again",
				"account_number", number,
				"attempt", attempt,
			)
			continue
		}
		if err != nil {
			if errors.IsPersistenceError(err) {
				s.logger.Error("failed to register client", "user_id", caller.UserID, "error", err.Error())
			} else {
				s.logger.Warn("registration rejected", "user_id", caller.UserID, "username", username, "error", err.Error())
			}
			return nil, err
		}

		s.publish(ctx, &events.LedgerEvent{
			EventType:     events.EventAccountCreated,
			UserID:        account.UserID,
			AccountID:     account.ID,
			AccountNumber: account.AccountNumber,
			BalanceAfter:  account.Balance,
			Status:        string(account.Status),
		})
		s.logger.Info("client registered",
			"user_id", account.UserID,
			"username", username,
			"account_id", account.ID,
			"account_number", account.AccountNumber,
		)
		return account, nil
	}

	s.logger.Error("exhausted account number attempts", "user_id", caller.UserID, "attempts", s.maxAttempts)
	return nil, errors.NewPersistenceError("register client",
		fmt.Errorf("no unused account number after %d attempts", s.maxAttempts))
}

func (s *AccountServiceImpl) GenerateAccountNumber(ctx context.Context) (string, error) {
	number, err := s.numbers.Generate(ctx)
	if err != nil {
		s.logger.Error("failed to generate account number", "error", err.Error())
		return "", persistence("generate account number", err)
	}
	return number, nil
}

// ToggleStatus flips an account between active and inactive. Balance is untouched.
func (s *AccountServiceImpl) ToggleStatus(ctx context.Context, caller models.Caller, accountID string) (*models.Account, error) {
	if accountID == "" {
		return nil, errors.NewValidationError("account_id", "must be non-empty")
	}

	var account *models.Account
	err := inTransaction(ctx, s.db, func(tx *sql.Tx) error {
		locked, err := s.accountRepo.GetAccountByIDForUpdate(ctx, tx, accountID)
		if err != nil {
			return persistence("lock account", err)
		}

		before := models.SnapshotOf(locked)
		next := locked.Status.Toggled()
		if err := s.accountRepo.UpdateAccountStatus(ctx, tx, locked.ID, next); err != nil {
			return persistence("update account status", err)
		}
		locked.Status = next

		auditLog, err := newAuditLog(models.EntityTypeAccount, locked.ID, models.AuditActionStatusChange, caller, before, models.SnapshotOf(locked))
		if err != nil {
			return persistence("build audit log", err)
		}
		if err := s.auditRepo.Create(ctx, tx, auditLog); err != nil {
			return persistence("create audit log", err)
		}

		account = locked
		return nil
	})
	if err != nil {
		if errors.IsPersistenceError(err) {
			s.logger.Error("failed to toggle account status", "account_id", accountID, "error", err.Error())
		} else {
			s.logger.Warn("account status toggle rejected", "account_id", accountID, "error", err.Error())
		}
		return nil, err
	}

	s.publish(ctx, &events.LedgerEvent{
		EventType:     events.EventAccountStatusChange,
		UserID:        account.UserID,
		AccountID:     account.ID,
		AccountNumber: account.AccountNumber,
		BalanceAfter:  account.Balance,
		Status:        string(account.Status),
	})
	s.logger.Info("account status changed",
		"account_id", account.ID,
		"account_number", account.AccountNumber,
		"status", string(account.Status),
		"actor_id", caller.UserID,
	)
	return account, nil
}

func (s *AccountServiceImpl) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	if id == "" {
		return nil, errors.NewValidationError("account_id", "must be non-empty")
	}

	account, err := s.accountRepo.GetAccountByID(ctx, id)
	if err != nil {
		if errors.IsNotFound(err) {
			s.logger.Warn("account not found", "account_id", id)
			return nil, err
		}
		s.logger.Error("failed to get account", "account_id", id, "error", err.Error())
		return nil, persistence("get account", err)
	}
	return account, nil
}

func (s *AccountServiceImpl) GetAccountForOwner(ctx context.Context, userID string) (*models.Account, error) {
	if userID == "" {
		return nil, errors.ErrUnauthenticated
	}

	account, err := s.accountRepo.GetAccountForOwner(ctx, userID)
	if err != nil {
		if errors.IsNotFound(err) {
			s.logger.Warn("no account for owner", "user_id", userID)
			return nil, err
		}
		s.logger.Error("failed to get account for owner", "user_id", userID, "error", err.Error())
		return nil, persistence("get account for owner", err)
	}
	return account, nil
}

func (s *AccountServiceImpl) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	accounts, err := s.accountRepo.ListAccounts(ctx)
	if err != nil {
		s.logger.Error("failed to list accounts", "error", err.Error())
		return nil, persistence("list accounts", err)
	}
	return accounts, nil
}

// AuditTrail returns every audit row touching the account, newest first:
// creation, status changes and the ledger operations on it.
func (s *AccountServiceImpl) AuditTrail(ctx context.Context, accountID string) ([]*models.AuditLog, error) {
	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}

	logs, err := s.auditRepo.GetAccountTrail(ctx, accountID)
	if err != nil {
		s.logger.Error("failed to get audit trail", "account_id", accountID, "error", err.Error())
		return nil, persistence("get audit trail", err)
	}
	if logs == nil {
		logs = []*models.AuditLog{}
	}
	return logs, nil
}

func (s *AccountServiceImpl) validateCreateRequest(req *models.CreateAccountRequest) error {
	if strings.TrimSpace(req.OwnerID) == "" {
		return errors.NewValidationError("owner_id", "must be non-empty")
	}
	if req.InitialBalance.IsNegative() || !req.InitialBalance.Equal(req.InitialBalance.Round(2)) {
		return errors.ErrInvalidAmount
	}
	return nil
}

func (s *AccountServiceImpl) createAccountAuditLog(ctx context.Context, caller models.Caller, account *models.Account) error {
	auditLog, err := newAuditLog(models.EntityTypeAccount, account.ID, models.AuditActionCreate, caller, nil, models.SnapshotOf(account))
	if err != nil {
		return err
	}
	return s.auditRepo.CreateWithDB(ctx, auditLog)
}

func (s *AccountServiceImpl) publish(ctx context.Context, event *events.LedgerEvent) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish ledger event",
			"event_type", event.EventType,
			"account_id", event.AccountID,
			"error", err.Error(),
		)
	}
}
