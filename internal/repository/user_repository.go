package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/riteshkumar/bank-ledger/internal/errors"
	"github.com/riteshkumar/bank-ledger/internal/models"
)

const (
	constraintUserPK       = "users_pkey"
	constraintUserUsername = "users_username_key"
)

type UserRepository interface {
	CreateUser(ctx context.Context, tx *sql.Tx, user *models.User) error
}

type PostgresUserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

// CreateUser inserts the user inside tx so it commits together with the
// account opened for it.
func (r *PostgresUserRepository) CreateUser(ctx context.Context, tx *sql.Tx, user *models.User) error {
	query := `INSERT INTO users (id, username, role, created_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		RETURNING created_at`

	err := tx.QueryRowContext(ctx, query, user.ID, user.Username, user.Role).Scan(&user.CreatedAt)
	if err != nil {
		if pqErr, ok := asPQError(err); ok && pqErr.Code == pgUniqueViolation {
			switch pqErr.Constraint {
			case constraintUserUsername:
				return errors.ErrUsernameTaken
			case constraintUserPK:
				return errors.ErrAlreadyRegistered
			}
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}
