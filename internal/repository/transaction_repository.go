package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/riteshkumar/bank-ledger/internal/models"
)

// TransactionRepository is the append-only transaction log. There is no
// update or delete method; the schema rejects both as well.
type TransactionRepository interface {
	Append(ctx context.Context, tx *sql.Tx, record *models.TransactionRecord) error
	GetByAccountID(ctx context.Context, accountID string) ([]*models.TransactionRecord, error)
	ListRecent(ctx context.Context, limit int) ([]*models.TransactionRecord, error)
}

type PostgresTransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *PostgresTransactionRepository {
	return &PostgresTransactionRepository{db: db}
}

func (r *PostgresTransactionRepository) Append(ctx context.Context, tx *sql.Tx, record *models.TransactionRecord) error {
	// Generate UUID if not set
	if record.ID == "" {
		record.ID = uuid.New().String()
	}

	query := `INSERT INTO transactions (id, account_id, kind, type, direction, amount, related_account_number, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING timestamp`

	err := tx.QueryRowContext(ctx, query,
		record.ID,
		record.AccountID,
		nullString(string(record.Kind)),
		record.Type,
		nullString(string(record.Direction)),
		record.Amount,
		record.RelatedAccountNumber,
		record.Description,
	).Scan(&record.Timestamp)

	if err != nil {
		return fmt.Errorf("failed to append transaction record: %w", err)
	}
	return nil
}

// GetByAccountID returns the account's records, most recent first.
func (r *PostgresTransactionRepository) GetByAccountID(ctx context.Context, accountID string) ([]*models.TransactionRecord, error) {
	query := `SELECT t.id, t.account_id, a.account_number, t.kind, t.type, t.direction, t.amount,
			t.related_account_number, t.description, t.timestamp
		FROM transactions t
		JOIN accounts a ON t.account_id = a.id
		WHERE t.account_id = $1
		ORDER BY t.timestamp DESC, t.seq DESC`

	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions by account ID: %w", err)
	}
	return scanRecords(rows)
}

// ListRecent returns the newest records across all accounts.
func (r *PostgresTransactionRepository) ListRecent(ctx context.Context, limit int) ([]*models.TransactionRecord, error) {
	query := `SELECT t.id, t.account_id, a.account_number, t.kind, t.type, t.direction, t.amount,
			t.related_account_number, t.description, t.timestamp
		FROM transactions t
		JOIN accounts a ON t.account_id = a.id
		ORDER BY t.timestamp DESC, t.seq DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent transactions: %w", err)
	}
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]*models.TransactionRecord, error) {
	defer rows.Close()

	var records []*models.TransactionRecord
	for rows.Next() {
		record := &models.TransactionRecord{}
		var kind, direction, related sql.NullString
		err := rows.Scan(
			&record.ID,
			&record.AccountID,
			&record.AccountNumber,
			&kind,
			&record.Type,
			&direction,
			&record.Amount,
			&related,
			&record.Description,
			&record.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction record: %w", err)
		}
		record.Kind = models.EntryKind(kind.String)
		record.Direction = models.Direction(direction.String)
		if related.Valid {
			record.RelatedAccountNumber = &related.String
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over transaction records: %w", err)
	}
	return records, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
