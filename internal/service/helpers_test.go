package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riteshkumar/bank-ledger/internal/events"
	"github.com/riteshkumar/bank-ledger/internal/models"
)

var accountCols = []string{"id", "user_id", "account_number", "balance", "status", "created_at", "updated_at"}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func q(s string) string { return regexp.QuoteMeta(s) }

type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.LedgerEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event *events.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) published() []*events.LedgerEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*events.LedgerEvent(nil), p.events...)
}

var errPublish = errors.New("redis unavailable")

type testAccount struct {
	id, userID, number, balance string
	status                      models.AccountStatus
}

func (a testAccount) rows() *sqlmock.Rows {
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(accountCols).AddRow(a.id, a.userID, a.number, a.balance, string(a.status), now, now)
}

func expectLock(mock sqlmock.Sqlmock, a testAccount) {
	mock.ExpectQuery(q("FROM accounts WHERE id = $1 FOR UPDATE")).
		WithArgs(a.id).
		WillReturnRows(a.rows())
}

func expectLockMissing(mock sqlmock.Sqlmock, id string) {
	mock.ExpectQuery(q("FROM accounts WHERE id = $1 FOR UPDATE")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(accountCols))
}

func expectByNumber(mock sqlmock.Sqlmock, number string, a *testAccount) {
	exp := mock.ExpectQuery(q("FROM accounts WHERE account_number = $1")).WithArgs(number)
	if a == nil {
		exp.WillReturnRows(sqlmock.NewRows(accountCols))
		return
	}
	exp.WillReturnRows(a.rows())
}

func expectAdjust(mock sqlmock.Sqlmock, id, delta, newBalance string) {
	mock.ExpectQuery(q("UPDATE accounts SET balance = balance + $1")).
		WithArgs(delta, id).
		WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow(newBalance))
}

func expectAppend(mock sqlmock.Sqlmock, accountID string, kind models.EntryKind, amount string, related any) {
	mock.ExpectQuery(q("INSERT INTO transactions")).
		WithArgs(sqlmock.AnyArg(), accountID, string(kind), string(kind.Type()), string(kind.Direction()), amount, related, kind.Description()).
		WillReturnRows(sqlmock.NewRows([]string{"timestamp"}).AddRow(time.Now()))
}

func expectAudit(mock sqlmock.Sqlmock, entityType, action string) {
	mock.ExpectQuery(q("INSERT INTO audit_logs")).
		WithArgs(entityType, sqlmock.AnyArg(), action, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), time.Now()))
}

func expectExists(mock sqlmock.Sqlmock, fragment string, arg string, exists bool) {
	mock.ExpectQuery(q(fragment)).
		WithArgs(arg).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(exists))
}
