package service

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/riteshkumar/bank-ledger/internal/errors"
	"github.com/riteshkumar/bank-ledger/internal/models"
)

// Row locks taken with SELECT ... FOR UPDATE make READ COMMITTED sufficient;
// a stricter level would only add serialization failures the core does not retry.
var ledgerTxOptions = &sql.TxOptions{Isolation: sql.LevelReadCommitted}

// inTransaction runs fn inside one database transaction. Any error from fn
// rolls everything back and is returned unchanged.
func inTransaction(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, ledgerTxOptions)
	if err != nil {
		return errors.NewPersistenceError("begin", err)
	}

	// Ensure rollback on error
	defer func() {
		if tx != nil {
			tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.NewPersistenceError("commit", err)
	}

	// Nullify tx to avoid rollback in defer
	tx = nil
	return nil
}

// persistence passes domain errors through and wraps everything else.
func persistence(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.IsBusinessRule(err) ||
		errors.IsNotFound(err) ||
		errors.IsPersistenceError(err) ||
		errors.IsRegistrationConflict(err) ||
		stderrors.Is(err, errors.ErrAccountNumberTaken) {
		return err
	}
	return errors.NewPersistenceError(operation, err)
}

// validateAmount accepts strictly positive amounts with at most two decimal places.
func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !amount.Equal(amount.Round(2)) {
		return errors.ErrInvalidAmount
	}
	return nil
}

func newAuditLog(entityType, entityID, action string, caller models.Caller, oldValue, newValue any) (*models.AuditLog, error) {
	log := &models.AuditLog{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		ActorID:    caller.UserID,
	}
	if oldValue != nil {
		raw, err := json.Marshal(oldValue)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal audit old value: %w", err)
		}
		log.OldValue = raw
	}
	raw, err := json.Marshal(newValue)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit new value: %w", err)
	}
	log.NewValue = raw
	return log, nil
}
