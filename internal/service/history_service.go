package service

import (
	"context"
	"log/slog"

	"github.com/riteshkumar/bank-ledger/internal/errors"
	"github.com/riteshkumar/bank-ledger/internal/models"
	"github.com/riteshkumar/bank-ledger/internal/repository"
)

const (
	DefaultRecentLimit = 100
	MaxRecentLimit     = 500
)

// HistoryService reads the transaction log.
type HistoryService interface {
	History(ctx context.Context, caller models.Caller, accountID string) ([]*models.HistoryEntry, error)
	RecentTransactions(ctx context.Context, limit int) ([]*models.TransactionRecord, error)
}

type HistoryServiceImpl struct {
	accountRepo     repository.AccountRepository
	transactionRepo repository.TransactionRepository
	logger          *slog.Logger
}

func NewHistoryService(accountRepo repository.AccountRepository, transactionRepo repository.TransactionRepository, logger *slog.Logger) *HistoryServiceImpl {
	return &HistoryServiceImpl{
		accountRepo:     accountRepo,
		transactionRepo: transactionRepo,
		logger:          logger,
	}
}

// History returns the account's records, most recent first, each tagged with
// its kind and whether it credited the account.
func (s *HistoryServiceImpl) History(ctx context.Context, caller models.Caller, accountID string) ([]*models.HistoryEntry, error) {
	if accountID == "" {
		return nil, errors.NewValidationError("account_id", "must be non-empty")
	}

	if _, err := s.accountRepo.GetAccountByID(ctx, accountID); err != nil {
		if errors.IsNotFound(err) {
			s.logger.Warn("history requested for unknown account", "account_id", accountID, "user_id", caller.UserID)
			return nil, err
		}
		s.logger.Error("failed to get account", "account_id", accountID, "error", err.Error())
		return nil, persistence("get account", err)
	}

	records, err := s.transactionRepo.GetByAccountID(ctx, accountID)
	if err != nil {
		s.logger.Error("failed to get transaction history", "account_id", accountID, "error", err.Error())
		return nil, persistence("get transaction history", err)
	}

	entries := make([]*models.HistoryEntry, 0, len(records))
	for _, record := range records {
		kind := Classify(record)
		entries = append(entries, &models.HistoryEntry{
			TransactionRecord: record,
			DisplayKind:       kind,
			IsCredit:          kind.Direction() == models.DirectionCredit,
		})
	}
	return entries, nil
}

// RecentTransactions lists the newest records across all accounts. limit is
// clamped to [1, MaxRecentLimit]; zero or less means DefaultRecentLimit.
func (s *HistoryServiceImpl) RecentTransactions(ctx context.Context, limit int) ([]*models.TransactionRecord, error) {
	switch {
	case limit <= 0:
		limit = DefaultRecentLimit
	case limit > MaxRecentLimit:
		limit = MaxRecentLimit
	}

	records, err := s.transactionRepo.ListRecent(ctx, limit)
	if err != nil {
		s.logger.Error("failed to list recent transactions", "limit", limit, "error", err.Error())
		return nil, persistence("list recent transactions", err)
	}
	return records, nil
}

// Classify returns the record's kind. Rows written without one are inferred
// from type and description.
func Classify(record *models.TransactionRecord) models.EntryKind {
	if record.Kind != "" {
		return record.Kind
	}
	switch {
	case record.Type == models.TransactionTypeDeposit && record.Description == models.DescriptionTransferIn:
		return models.EntryKindTransferIn
	case record.Type == models.TransactionTypeTransfer && record.Description == models.DescriptionTransferOut:
		return models.EntryKindTransferOut
	case record.Type == models.TransactionTypeDeposit:
		return models.EntryKindDeposit
	case record.Type == models.TransactionTypeTransfer:
		return models.EntryKindTransferOut
	default:
		return models.EntryKindWithdrawal
	}
}
