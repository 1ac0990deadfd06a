package service

import (
	"context"
	"database/sql"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/riteshkumar/bank-ledger/internal/errors"
	"github.com/riteshkumar/bank-ledger/internal/events"
	"github.com/riteshkumar/bank-ledger/internal/models"
	"github.com/riteshkumar/bank-ledger/internal/repository"
)

// LedgerService moves money. Each call is one database transaction: rule
// checks run under row locks before any write, and balances, records and the
// audit row commit together.
type LedgerService interface {
	Deposit(ctx context.Context, caller models.Caller, accountID string, amount decimal.Decimal) (*models.LedgerResult, error)
	Withdraw(ctx context.Context, caller models.Caller, accountID string, amount decimal.Decimal) (*models.LedgerResult, error)
	Transfer(ctx context.Context, caller models.Caller, sourceAccountID, targetAccountNumber string, amount decimal.Decimal) (*models.LedgerResult, error)
}

type LedgerServiceImpl struct {
	db              *sql.DB
	accountRepo     repository.AccountRepository
	transactionRepo repository.TransactionRepository
	auditRepo       repository.AuditRepository
	publisher       events.Publisher
	logger          *slog.Logger
}

func NewLedgerService(db *sql.DB, accountRepo repository.AccountRepository, transactionRepo repository.TransactionRepository, auditRepo repository.AuditRepository, publisher events.Publisher, logger *slog.Logger) *LedgerServiceImpl {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &LedgerServiceImpl{
		db:              db,
		accountRepo:     accountRepo,
		transactionRepo: transactionRepo,
		auditRepo:       auditRepo,
		publisher:       publisher,
		logger:          logger,
	}
}

type transferSnapshot struct {
	Source models.AccountBalanceSnapshot `json:"source"`
	Target models.AccountBalanceSnapshot `json:"target"`
	Amount decimal.Decimal               `json:"amount"`
}

func (s *LedgerServiceImpl) Deposit(ctx context.Context, caller models.Caller, accountID string, amount decimal.Decimal) (*models.LedgerResult, error) {
	return s.applySingle(ctx, caller, accountID, models.EntryKindDeposit, amount)
}

func (s *LedgerServiceImpl) Withdraw(ctx context.Context, caller models.Caller, accountID string, amount decimal.Decimal) (*models.LedgerResult, error) {
	return s.applySingle(ctx, caller, accountID, models.EntryKindWithdrawal, amount)
}

// applySingle runs a one-account movement: a deposit credits, a withdrawal
// debits after checking the balance covers it.
func (s *LedgerServiceImpl) applySingle(ctx context.Context, caller models.Caller, accountID string, kind models.EntryKind, amount decimal.Decimal) (*models.LedgerResult, error) {
	if err := validateAmount(amount); err != nil {
		s.logger.Warn("invalid amount",
			"account_id", accountID,
			"kind", string(kind),
			"amount", amount.String(),
		)
		return nil, err
	}

	var result *models.LedgerResult
	err := inTransaction(ctx, s.db, func(tx *sql.Tx) error {
		account, err := s.accountRepo.GetAccountByIDForUpdate(ctx, tx, accountID)
		if err != nil {
			return persistence("lock account", err)
		}
		if !account.IsActive() {
			return errors.ErrInactiveAccount
		}

		delta := amount
		if kind.Direction() == models.DirectionDebit {
			if account.Balance.LessThan(amount) {
				return errors.ErrInsufficientFunds
			}
			delta = amount.Neg()
		}

		before := models.SnapshotOf(account)
		balance, err := s.accountRepo.AdjustBalance(ctx, tx, account.ID, delta)
		if err != nil {
			return persistence("adjust balance", err)
		}
		account.Balance = balance

		record := models.NewRecord(account.ID, kind, amount, nil)
		record.AccountNumber = account.AccountNumber
		if err := s.transactionRepo.Append(ctx, tx, record); err != nil {
			return persistence("append transaction record", err)
		}

		action := models.AuditActionDeposit
		if kind == models.EntryKindWithdrawal {
			action = models.AuditActionWithdrawal
		}
		auditLog, err := newAuditLog(models.EntityTypeTransaction, record.ID, action, caller, before, models.SnapshotOf(account))
		if err != nil {
			return persistence("build audit log", err)
		}
		if err := s.auditRepo.Create(ctx, tx, auditLog); err != nil {
			return persistence("create audit log", err)
		}

		result = &models.LedgerResult{Account: account, Records: []*models.TransactionRecord{record}}
		return nil
	})
	if err != nil {
		s.logFailure("ledger operation failed", err,
			"account_id", accountID,
			"kind", string(kind),
			"amount", amount.String(),
		)
		return nil, err
	}

	eventType := events.EventDepositCompleted
	if kind == models.EntryKindWithdrawal {
		eventType = events.EventWithdrawalCompleted
	}
	s.publish(ctx, &events.LedgerEvent{
		EventType:     eventType,
		UserID:        result.Account.UserID,
		AccountID:     result.Account.ID,
		AccountNumber: result.Account.AccountNumber,
		Amount:        amount,
		BalanceAfter:  result.Account.Balance,
		RecordIDs:     []string{result.Records[0].ID},
	})

	s.logger.Info("ledger operation completed",
		"account_id", result.Account.ID,
		"account_number", result.Account.AccountNumber,
		"kind", string(kind),
		"amount", amount.String(),
		"balance", result.Account.Balance.String(),
		"user_id", caller.UserID,
	)
	return result, nil
}

// Transfer debits the source and credits the target account identified by
// number. Both rows are locked in ascending id order so that two opposite
// transfers cannot deadlock.
func (s *LedgerServiceImpl) Transfer(ctx context.Context, caller models.Caller, sourceAccountID, targetAccountNumber string, amount decimal.Decimal) (*models.LedgerResult, error) {
	if err := validateAmount(amount); err != nil {
		s.logger.Warn("invalid transfer amount",
			"source_account_id", sourceAccountID,
			"target_account_number", targetAccountNumber,
			"amount", amount.String(),
		)
		return nil, err
	}

	var result *models.LedgerResult
	var target *models.Account
	err := inTransaction(ctx, s.db, func(tx *sql.Tx) error {
		resolved, err := s.accountRepo.GetAccountByNumber(ctx, tx, targetAccountNumber)
		if err != nil {
			if errors.IsNotFound(err) {
				return errors.ErrTargetNotFound
			}
			return persistence("resolve target account", err)
		}
		if resolved.ID == sourceAccountID {
			return errors.ErrSameAccount
		}

		locked, err := s.lockInOrder(ctx, tx, sourceAccountID, resolved.ID)
		if err != nil {
			return err
		}
		source, ok := locked[sourceAccountID]
		if !ok {
			return errors.ErrAccountNotFound
		}
		target, ok = locked[resolved.ID]
		if !ok {
			return errors.ErrTargetNotFound
		}

		if !source.IsActive() {
			return errors.ErrInactiveAccount
		}
		if source.Balance.LessThan(amount) {
			return errors.ErrInsufficientFunds
		}
		if !target.IsActive() {
			return errors.ErrTargetInactive
		}

		before := transferSnapshot{Source: models.SnapshotOf(source), Target: models.SnapshotOf(target), Amount: amount}

		sourceBalance, err := s.accountRepo.AdjustBalance(ctx, tx, source.ID, amount.Neg())
		if err != nil {
			return persistence("debit source account", err)
		}
		source.Balance = sourceBalance

		targetBalance, err := s.accountRepo.AdjustBalance(ctx, tx, target.ID, amount)
		if err != nil {
			return persistence("credit target account", err)
		}
		target.Balance = targetBalance

		targetNumber := target.AccountNumber
		sourceNumber := source.AccountNumber
		out := models.NewRecord(source.ID, models.EntryKindTransferOut, amount, &targetNumber)
		out.AccountNumber = sourceNumber
		in := models.NewRecord(target.ID, models.EntryKindTransferIn, amount, &sourceNumber)
		in.AccountNumber = targetNumber

		if err := s.transactionRepo.Append(ctx, tx, out); err != nil {
			return persistence("append transfer out record", err)
		}
		if err := s.transactionRepo.Append(ctx, tx, in); err != nil {
			return persistence("append transfer in record", err)
		}

		after := transferSnapshot{Source: models.SnapshotOf(source), Target: models.SnapshotOf(target), Amount: amount}
		auditLog, err := newAuditLog(models.EntityTypeTransaction, out.ID, models.AuditActionTransfer, caller, before, after)
		if err != nil {
			return persistence("build audit log", err)
		}
		if err := s.auditRepo.Create(ctx, tx, auditLog); err != nil {
			return persistence("create audit log", err)
		}

		result = &models.LedgerResult{Account: source, Records: []*models.TransactionRecord{out, in}}
		return nil
	})
	if err != nil {
		s.logFailure("transfer failed", err,
			"source_account_id", sourceAccountID,
			"target_account_number", targetAccountNumber,
			"amount", amount.String(),
		)
		return nil, err
	}

	s.publish(ctx, &events.LedgerEvent{
		EventType:     events.EventTransferCompleted,
		UserID:        result.Account.UserID,
		AccountID:     result.Account.ID,
		AccountNumber: result.Account.AccountNumber,
		FromAccount:   result.Account.AccountNumber,
		ToAccount:     target.AccountNumber,
		Amount:        amount,
		BalanceAfter:  result.Account.Balance,
		RecordIDs:     []string{result.Records[0].ID, result.Records[1].ID},
	})

	s.logger.Info("transfer completed",
		"source_account_id", result.Account.ID,
		"from_account", result.Account.AccountNumber,
		"to_account", target.AccountNumber,
		"amount", amount.String(),
		"balance", result.Account.Balance.String(),
		"user_id", caller.UserID,
	)
	return result, nil
}

// lockInOrder takes FOR UPDATE locks on the given accounts in ascending id
// order. Ids with no row are absent from the result.
func (s *LedgerServiceImpl) lockInOrder(ctx context.Context, tx *sql.Tx, ids ...string) (map[string]*models.Account, error) {
	ordered := append([]string(nil), ids...)
	sort.Strings(ordered)

	locked := make(map[string]*models.Account, len(ordered))
	for _, id := range ordered {
		account, err := s.accountRepo.GetAccountByIDForUpdate(ctx, tx, id)
		if err != nil {
			if errors.IsNotFound(err) {
				continue
			}
			return nil, persistence("lock account", err)
		}
		locked[id] = account
	}
	return locked, nil
}

func (s *LedgerServiceImpl) logFailure(msg string, err error, args ...any) {
	args = append(args, "error", err.Error())
	if errors.IsPersistenceError(err) {
		s.logger.Error(msg, args...)
		return
	}
	s.logger.Warn(msg, args...)
}

func (s *LedgerServiceImpl) publish(ctx context.Context, event *events.LedgerEvent) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish ledger event",
			"event_type", event.EventType,
			"account_id", event.AccountID,
			"error", err.Error(),
		)
	}
}
