package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/riteshkumar/bank-ledger/internal/models"
)

type AuditRepository interface {
	Create(ctx context.Context, tx *sql.Tx, log *models.AuditLog) error
	CreateWithDB(ctx context.Context, log *models.AuditLog) error
	GetAccountTrail(ctx context.Context, accountID string) ([]*models.AuditLog, error)
}

type PostgresAuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *PostgresAuditRepository {
	return &PostgresAuditRepository{db: db}
}

const insertAuditLog = `INSERT INTO audit_logs (entity_type, entity_id, action, actor_id, old_value, new_value, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, CURRENT_TIMESTAMP)
	RETURNING id, created_at`

// Create inserts an audit entry inside the ledger transaction, so it commits
// or rolls back together with the change it describes.
func (r *PostgresAuditRepository) Create(ctx context.Context, tx *sql.Tx, log *models.AuditLog) error {
	err := tx.QueryRowContext(ctx, insertAuditLog, auditArgs(log)...).Scan(&log.ID, &log.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

// CreateWithDB inserts an audit entry outside any transaction.
func (r *PostgresAuditRepository) CreateWithDB(ctx context.Context, log *models.AuditLog) error {
	err := r.db.QueryRowContext(ctx, insertAuditLog, auditArgs(log)...).Scan(&log.ID, &log.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

func auditArgs(log *models.AuditLog) []any {
	var oldValue any
	if log.OldValue != nil {
		oldValue = string(log.OldValue)
	}
	return []any{
		log.EntityType,
		log.EntityID,
		log.Action,
		log.ActorID,
		oldValue,
		string(log.NewValue),
	}
}

// GetAccountTrail returns every audit entry touching the account, newest
// first: its own CREATE and STATUS_CHANGE rows plus the ledger rows whose
// snapshot names it, on either side of a transfer.
func (r *PostgresAuditRepository) GetAccountTrail(ctx context.Context, accountID string) ([]*models.AuditLog, error) {
	query := `SELECT id, entity_type, entity_id, action, actor_id, old_value, new_value, created_at
		FROM audit_logs
		WHERE (entity_type = 'ACCOUNT' AND entity_id = $1)
			OR (entity_type = 'TRANSACTION' AND (
				new_value->>'id' = $1
				OR new_value->'source'->>'id' = $1
				OR new_value->'target'->>'id' = $1))
		ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit trail: %w", err)
	}
	defer rows.Close()

	var logs []*models.AuditLog
	for rows.Next() {
		log := &models.AuditLog{}
		var oldValue, newValue []byte

		err := rows.Scan(
			&log.ID, &log.EntityType, &log.EntityID, &log.Action, &log.ActorID, &oldValue, &newValue, &log.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}

		if oldValue != nil {
			log.OldValue = json.RawMessage(oldValue)
		}
		log.NewValue = json.RawMessage(newValue)

		logs = append(logs, log)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over audit logs: %w", err)
	}
	return logs, nil
}
