package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/riteshkumar/bank-ledger/internal/errors"
	"github.com/riteshkumar/bank-ledger/internal/models"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"

	constraintAccountNumber     = "accounts_account_number_key"
	constraintOneActivePerOwner = "accounts_one_active_per_owner"
	constraintBalanceNonNeg     = "accounts_balance_non_negative"
)

const accountColumns = `id, user_id, account_number, balance, status, created_at, updated_at`

type AccountRepository interface {
	CreateAccount(ctx context.Context, account *models.Account) error
	CreateAccountTx(ctx context.Context, tx *sql.Tx, account *models.Account) error
	GetAccountByID(ctx context.Context, id string) (*models.Account, error)
	GetAccountByIDForUpdate(ctx context.Context, tx *sql.Tx, id string) (*models.Account, error)
	GetAccountByNumber(ctx context.Context, tx *sql.Tx, accountNumber string) (*models.Account, error)
	GetAccountForOwner(ctx context.Context, userID string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]*models.Account, error)
	AdjustBalance(ctx context.Context, tx *sql.Tx, id string, delta decimal.Decimal) (decimal.Decimal, error)
	UpdateAccountStatus(ctx context.Context, tx *sql.Tx, id string, status models.AccountStatus) error
	AccountNumberExists(ctx context.Context, accountNumber string) (bool, error)
	OwnerIsClient(ctx context.Context, userID string) (bool, error)
	OwnerHasActiveAccount(ctx context.Context, userID string) (bool, error)
}

type PostgresAccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *PostgresAccountRepository {
	return &PostgresAccountRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	account := &models.Account{}
	err := row.Scan(
		&account.ID,
		&account.UserID,
		&account.AccountNumber,
		&account.Balance,
		&account.Status,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return account, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CreateAccount inserts the account. The unique constraint on account_number
// is the authoritative collision check: a violation comes back as
// ErrAccountNumberTaken so the caller can draw again.
func (r *PostgresAccountRepository) CreateAccount(ctx context.Context, account *models.Account) error {
	return insertAccount(ctx, r.db, account)
}

// CreateAccountTx inserts the account inside tx. A constraint violation
// aborts tx, so a caller that wants to redraw must start a new one.
func (r *PostgresAccountRepository) CreateAccountTx(ctx context.Context, tx *sql.Tx, account *models.Account) error {
	return insertAccount(ctx, tx, account)
}

func insertAccount(ctx context.Context, q queryRower, account *models.Account) error {
	query := `INSERT INTO accounts (id, user_id, account_number, balance, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING created_at, updated_at`

	err := q.QueryRowContext(ctx, query,
		account.ID,
		account.UserID,
		account.AccountNumber,
		account.Balance,
		account.Status,
	).Scan(&account.CreatedAt, &account.UpdatedAt)

	if err != nil {
		if pqErr, ok := asPQError(err); ok {
			switch {
			case pqErr.Code == pgUniqueViolation && pqErr.Constraint == constraintAccountNumber:
				return errors.ErrAccountNumberTaken
			case pqErr.Code == pgUniqueViolation && pqErr.Constraint == constraintOneActivePerOwner:
				return errors.ErrDuplicateAccount
			case pqErr.Code == pgForeignKeyViolation:
				return errors.ErrOwnerNotFound
			}
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *PostgresAccountRepository) GetAccountByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account by ID: %w", err)
	}
	return account, nil
}

// GetAccountByIDForUpdate reads the account and holds its row lock until tx ends.
func (r *PostgresAccountRepository) GetAccountByIDForUpdate(ctx context.Context, tx *sql.Tx, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`

	account, err := scanAccount(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account by ID for update: %w", err)
	}
	return account, nil
}

func (r *PostgresAccountRepository) GetAccountByNumber(ctx context.Context, tx *sql.Tx, accountNumber string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1`

	account, err := scanAccount(tx.QueryRowContext(ctx, query, accountNumber))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account by number: %w", err)
	}
	return account, nil
}

// GetAccountForOwner returns the owner's active account, or the newest one
// when none is active.
func (r *PostgresAccountRepository) GetAccountForOwner(ctx context.Context, userID string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts
		WHERE user_id = $1
		ORDER BY (status = 'active') DESC, created_at DESC
		LIMIT 1`

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account for owner: %w", err)
	}
	return account, nil
}

func (r *PostgresAccountRepository) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	query := `SELECT a.id, a.user_id, a.account_number, a.balance, a.status, a.created_at, a.updated_at, u.username
		FROM accounts a
		JOIN users u ON a.user_id = u.id
		ORDER BY u.username, a.account_number`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account := &models.Account{}
		err := rows.Scan(
			&account.ID,
			&account.UserID,
			&account.AccountNumber,
			&account.Balance,
			&account.Status,
			&account.CreatedAt,
			&account.UpdatedAt,
			&account.Username,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over accounts: %w", err)
	}
	return accounts, nil
}

// AdjustBalance adds delta to the balance in a single statement and returns
// the new balance. The guard in the WHERE clause refuses any change that
// would take the balance below zero.
func (r *PostgresAccountRepository) AdjustBalance(ctx context.Context, tx *sql.Tx, id string, delta decimal.Decimal) (decimal.Decimal, error) {
	query := `UPDATE accounts SET balance = balance + $1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $2 AND balance + $1 >= 0
		RETURNING balance`

	var balance decimal.Decimal
	err := tx.QueryRowContext(ctx, query, delta, id).Scan(&balance)
	if err != nil {
		if err == sql.ErrNoRows {
			return decimal.Zero, errors.ErrInsufficientFunds
		}
		if pqErr, ok := asPQError(err); ok && pqErr.Code == pgCheckViolation && pqErr.Constraint == constraintBalanceNonNeg {
			return decimal.Zero, errors.ErrInsufficientFunds
		}
		return decimal.Zero, fmt.Errorf("failed to adjust account balance: %w", err)
	}
	return balance, nil
}

func (r *PostgresAccountRepository) UpdateAccountStatus(ctx context.Context, tx *sql.Tx, id string, status models.AccountStatus) error {
	query := `UPDATE accounts SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`

	result, err := tx.ExecContext(ctx, query, status, id)
	if err != nil {
		if pqErr, ok := asPQError(err); ok && pqErr.Code == pgUniqueViolation && pqErr.Constraint == constraintOneActivePerOwner {
			return errors.ErrDuplicateAccount
		}
		return fmt.Errorf("failed to update account status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected after updating account status: %w", err)
	}
	if rowsAffected == 0 {
		return errors.ErrAccountNotFound
	}
	return nil
}

func (r *PostgresAccountRepository) AccountNumberExists(ctx context.Context, accountNumber string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE account_number = $1)`, accountNumber)
}

// OwnerIsClient reports whether userID names a user with the client role.
// Admin users never hold accounts.
func (r *PostgresAccountRepository) OwnerIsClient(ctx context.Context, userID string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1 AND role = 'client')`, userID)
}

func (r *PostgresAccountRepository) OwnerHasActiveAccount(ctx context.Context, userID string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE user_id = $1 AND status = 'active')`, userID)
}

func (r *PostgresAccountRepository) exists(ctx context.Context, query string, arg any) (bool, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, arg).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return exists, nil
}

func asPQError(err error) (*pq.Error, bool) {
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		return pqErr, true
	}
	return nil, false
}
