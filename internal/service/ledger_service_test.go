package service

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ledgererrors "github.com/riteshkumar/bank-ledger/internal/errors"
	"github.com/riteshkumar/bank-ledger/internal/events"
	"github.com/riteshkumar/bank-ledger/internal/models"
	"github.com/riteshkumar/bank-ledger/internal/repository"
)

var (
	client = models.Caller{UserID: "user-x", Role: models.RoleClient}
	amt    = decimal.RequireFromString
)

func newLedger(t *testing.T) (*LedgerServiceImpl, sqlmock.Sqlmock, *recordingPublisher) {
	db, mock := newMock(t)
	publisher := &recordingPublisher{}
	svc := NewLedgerService(db,
		repository.NewAccountRepository(db),
		repository.NewTransactionRepository(db),
		repository.NewAuditRepository(db),
		publisher,
		testLogger(),
	)
	return svc, mock, publisher
}

func TestLedgerDepositWithdrawTransferFlow(t *testing.T) {
	svc, mock, publisher := newLedger(t)
	ctx := context.Background()

	x := testAccount{id: "acc-x", userID: "user-x", number: "1000000001", balance: "100.00", status: models.AccountStatusActive}
	y := testAccount{id: "acc-y", userID: "user-y", number: "2000000002", balance: "0.00", status: models.AccountStatusActive}

	// deposit(X, 50.00)
	mock.ExpectBegin()
	expectLock(mock, x)
	expectAdjust(mock, "acc-x", "50", "150.00")
	expectAppend(mock, "acc-x", models.EntryKindDeposit, "50", nil)
	expectAudit(mock, models.EntityTypeTransaction, models.AuditActionDeposit)
	mock.ExpectCommit()

	result, err := svc.Deposit(ctx, client, "acc-x", amt("50.00"))
	require.NoError(t, err)
	assert.Equal(t, "150.00", result.Account.Balance.StringFixed(2))
	require.Len(t, result.Records, 1)
	assert.Equal(t, models.TransactionTypeDeposit, result.Records[0].Type)
	assert.Equal(t, models.DirectionCredit, result.Records[0].Direction)
	assert.True(t, result.Records[0].Amount.Equal(amt("50")))

	// withdraw(X, 200.00) fails before any write
	x.balance = "150.00"
	mock.ExpectBegin()
	expectLock(mock, x)
	mock.ExpectRollback()

	_, err = svc.Withdraw(ctx, client, "acc-x", amt("200.00"))
	assert.ErrorIs(t, err, ledgererrors.ErrInsufficientFunds)

	// transfer(X, Y, 30.00)
	mock.ExpectBegin()
	expectByNumber(mock, "2000000002", &y)
	expectLock(mock, x)
	expectLock(mock, y)
	expectAdjust(mock, "acc-x", "-30", "120.00")
	expectAdjust(mock, "acc-y", "30", "30.00")
	expectAppend(mock, "acc-x", models.EntryKindTransferOut, "30", "2000000002")
	expectAppend(mock, "acc-y", models.EntryKindTransferIn, "30", "1000000001")
	expectAudit(mock, models.EntityTypeTransaction, models.AuditActionTransfer)
	mock.ExpectCommit()

	result, err = svc.Transfer(ctx, client, "acc-x", "2000000002", amt("30.00"))
	require.NoError(t, err)
	assert.Equal(t, "120.00", result.Account.Balance.StringFixed(2))
	require.Len(t, result.Records, 2)

	out, in := result.Records[0], result.Records[1]
	assert.Equal(t, models.TransactionTypeTransfer, out.Type)
	assert.Equal(t, models.DirectionDebit, out.Direction)
	assert.Equal(t, "2000000002", *out.RelatedAccountNumber)
	assert.Equal(t, models.TransactionTypeDeposit, in.Type)
	assert.Equal(t, models.DirectionCredit, in.Direction)
	assert.Equal(t, "1000000001", *in.RelatedAccountNumber)
	assert.Equal(t, "acc-y", in.AccountID)
	assert.True(t, out.Amount.Equal(in.Amount))

	published := publisher.published()
	require.Len(t, published, 2)
	assert.Equal(t, events.EventDepositCompleted, published[0].EventType)
	assert.Equal(t, events.EventTransferCompleted, published[1].EventType)
	assert.Equal(t, "2000000002", published[1].ToAccount)
}

func TestDepositThenWithdrawRestoresBalance(t *testing.T) {
	const start = "100.00"

	for _, x := range []string{"0.01", "0.10", "33.33", start, "12345.67"} {
		t.Run(x, func(t *testing.T) {
			svc, mock, _ := newLedger(t)
			ctx := context.Background()
			amount := amt(x)
			raised := amt(start).Add(amount)

			a := testAccount{id: "acc-x", userID: "user-x", number: "1000000001", balance: start, status: models.AccountStatusActive}
			mock.ExpectBegin()
			expectLock(mock, a)
			expectAdjust(mock, "acc-x", amount.String(), raised.StringFixed(2))
			expectAppend(mock, "acc-x", models.EntryKindDeposit, amount.String(), nil)
			expectAudit(mock, models.EntityTypeTransaction, models.AuditActionDeposit)
			mock.ExpectCommit()

			a.balance = raised.StringFixed(2)
			mock.ExpectBegin()
			expectLock(mock, a)
			expectAdjust(mock, "acc-x", amount.Neg().String(), start)
			expectAppend(mock, "acc-x", models.EntryKindWithdrawal, amount.String(), nil)
			expectAudit(mock, models.EntityTypeTransaction, models.AuditActionWithdrawal)
			mock.ExpectCommit()

			deposited, err := svc.Deposit(ctx, client, "acc-x", amount)
			require.NoError(t, err)
			assert.True(t, deposited.Account.Balance.Equal(raised))

			withdrawn, err := svc.Withdraw(ctx, client, "acc-x", amount)
			require.NoError(t, err)
			assert.True(t, withdrawn.Account.Balance.Equal(amt(start)), withdrawn.Account.Balance.String())

			records := append(deposited.Records, withdrawn.Records...)
			require.Len(t, records, 2)
			assert.Equal(t, models.EntryKindDeposit, records[0].Kind)
			assert.Equal(t, models.EntryKindWithdrawal, records[1].Kind)
			assert.True(t, records[0].Amount.Equal(records[1].Amount))
		})
	}
}

func TestLedgerRejectsInvalidAmounts(t *testing.T) {
	svc, _, publisher := newLedger(t)
	ctx := context.Background()

	for _, a := range []string{"0", "-5", "10.001"} {
		_, err := svc.Deposit(ctx, client, "acc-x", amt(a))
		assert.ErrorIs(t, err, ledgererrors.ErrInvalidAmount, a)

		_, err = svc.Withdraw(ctx, client, "acc-x", amt(a))
		assert.ErrorIs(t, err, ledgererrors.ErrInvalidAmount, a)

		_, err = svc.Transfer(ctx, client, "acc-x", "2000000002", amt(a))
		assert.ErrorIs(t, err, ledgererrors.ErrInvalidAmount, a)
	}
	assert.Empty(t, publisher.published())
}

func TestDepositIntoInactiveAccount(t *testing.T) {
	svc, mock, publisher := newLedger(t)

	mock.ExpectBegin()
	expectLock(mock, testAccount{id: "acc-x", userID: "user-x", number: "1000000001", balance: "10.00", status: models.AccountStatusInactive})
	mock.ExpectRollback()

	_, err := svc.Deposit(context.Background(), client, "acc-x", amt("5"))
	assert.ErrorIs(t, err, ledgererrors.ErrInactiveAccount)
	assert.Empty(t, publisher.published())
}

func TestDepositIntoMissingAccount(t *testing.T) {
	svc, mock, _ := newLedger(t)

	mock.ExpectBegin()
	expectLockMissing(mock, "acc-missing")
	mock.ExpectRollback()

	_, err := svc.Deposit(context.Background(), client, "acc-missing", amt("5"))
	assert.ErrorIs(t, err, ledgererrors.ErrAccountNotFound)
}

func TestWithdrawExactBalance(t *testing.T) {
	svc, mock, _ := newLedger(t)

	mock.ExpectBegin()
	expectLock(mock, testAccount{id: "acc-x", userID: "user-x", number: "1000000001", balance: "40.25", status: models.AccountStatusActive})
	expectAdjust(mock, "acc-x", "-40.25", "0.00")
	expectAppend(mock, "acc-x", models.EntryKindWithdrawal, "40.25", nil)
	expectAudit(mock, models.EntityTypeTransaction, models.AuditActionWithdrawal)
	mock.ExpectCommit()

	result, err := svc.Withdraw(context.Background(), client, "acc-x", amt("40.25"))
	require.NoError(t, err)
	assert.True(t, result.Account.Balance.IsZero())
	assert.Equal(t, models.DescriptionWithdrawal, result.Records[0].Description)
}

func TestWithdrawLosesRaceToGuardedUpdate(t *testing.T) {
	svc, mock, _ := newLedger(t)

	mock.ExpectBegin()
	expectLock(mock, testAccount{id: "acc-x", userID: "user-x", number: "1000000001", balance: "40.00", status: models.AccountStatusActive})
	mock.ExpectQuery(q("UPDATE accounts SET balance = balance + $1")).
		WithArgs("-40", "acc-x").
		WillReturnRows(sqlmock.NewRows([]string{"balance"}))
	mock.ExpectRollback()

	_, err := svc.Withdraw(context.Background(), client, "acc-x", amt("40"))
	assert.ErrorIs(t, err, ledgererrors.ErrInsufficientFunds)
}

func TestTransferToOwnAccount(t *testing.T) {
	svc, mock, _ := newLedger(t)
	x := testAccount{id: "acc-x", userID: "user-x", number: "1000000001", balance: "100.00", status: models.AccountStatusActive}

	mock.ExpectBegin()
	expectByNumber(mock, "1000000001", &x)
	mock.ExpectRollback()

	_, err := svc.Transfer(context.Background(), client, "acc-x", "1000000001", amt("10"))
	assert.ErrorIs(t, err, ledgererrors.ErrSameAccount)
}

func TestTransferToUnknownTarget(t *testing.T) {
	svc, mock, _ := newLedger(t)

	mock.ExpectBegin()
	expectByNumber(mock, "9999999999", nil)
	mock.ExpectRollback()

	_, err := svc.Transfer(context.Background(), client, "acc-x", "9999999999", amt("10"))
	assert.ErrorIs(t, err, ledgererrors.ErrTargetNotFound)
}

func TestTransferPreconditions(t *testing.T) {
	active := models.AccountStatusActive
	inactive := models.AccountStatusInactive

	tests := []struct {
		name    string
		source  testAccount
		target  testAccount
		wantErr error
	}{
		{
			name:    "source inactive",
			source:  testAccount{id: "acc-x", userID: "user-x", number: "1000000001", balance: "100.00", status: inactive},
			target:  testAccount{id: "acc-y", userID: "user-y", number: "2000000002", balance: "0.00", status: active},
			wantErr: ledgererrors.ErrInactiveAccount,
		},
		{
			name:    "insufficient funds",
			source:  testAccount{id: "acc-x", userID: "user-x", number: "1000000001", balance: "5.00", status: active},
			target:  testAccount{id: "acc-y", userID: "user-y", number: "2000000002", balance: "0.00", status: active},
			wantErr: ledgererrors.ErrInsufficientFunds,
		},
		{
			name:    "target inactive",
			source:  testAccount{id: "acc-x", userID: "user-x", number: "1000000001", balance: "100.00", status: active},
			target:  testAccount{id: "acc-y", userID: "user-y", number: "2000000002", balance: "0.00", status: inactive},
			wantErr: ledgererrors.ErrTargetInactive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mock, publisher := newLedger(t)

			mock.ExpectBegin()
			expectByNumber(mock, tt.target.number, &tt.target)
			expectLock(mock, tt.source)
			expectLock(mock, tt.target)
			mock.ExpectRollback()

			_, err := svc.Transfer(context.Background(), client, tt.source.id, tt.target.number, amt("10"))
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, publisher.published())
		})
	}
}

func TestTransferLocksInAscendingIDOrder(t *testing.T) {
	svc, mock, _ := newLedger(t)
	source := testAccount{id: "acc-b", userID: "user-b", number: "2000000002", balance: "50.00", status: models.AccountStatusActive}
	target := testAccount{id: "acc-a", userID: "user-a", number: "1000000001", balance: "0.00", status: models.AccountStatusActive}

	mock.ExpectBegin()
	expectByNumber(mock, target.number, &target)
	expectLock(mock, target)
	expectLock(mock, source)
	expectAdjust(mock, "acc-b", "-50", "0.00")
	expectAdjust(mock, "acc-a", "50", "50.00")
	expectAppend(mock, "acc-b", models.EntryKindTransferOut, "50", "1000000001")
	expectAppend(mock, "acc-a", models.EntryKindTransferIn, "50", "2000000002")
	expectAudit(mock, models.EntityTypeTransaction, models.AuditActionTransfer)
	mock.ExpectCommit()

	result, err := svc.Transfer(context.Background(), client, "acc-b", target.number, amt("50"))
	require.NoError(t, err)
	assert.True(t, result.Account.Balance.IsZero())
}

func TestTransferRollsBackWhenSecondRecordFails(t *testing.T) {
	svc, mock, publisher := newLedger(t)
	x := testAccount{id: "acc-x", userID: "user-x", number: "1000000001", balance: "100.00", status: models.AccountStatusActive}
	y := testAccount{id: "acc-y", userID: "user-y", number: "2000000002", balance: "0.00", status: models.AccountStatusActive}

	mock.ExpectBegin()
	expectByNumber(mock, y.number, &y)
	expectLock(mock, x)
	expectLock(mock, y)
	expectAdjust(mock, "acc-x", "-30", "70.00")
	expectAdjust(mock, "acc-y", "30", "30.00")
	expectAppend(mock, "acc-x", models.EntryKindTransferOut, "30", "2000000002")
	mock.ExpectQuery(q("INSERT INTO transactions")).
		WillReturnError(errors.New("connection reset by peer"))
	mock.ExpectRollback()

	_, err := svc.Transfer(context.Background(), client, "acc-x", y.number, amt("30"))
	require.Error(t, err)
	assert.True(t, ledgererrors.IsPersistenceError(err))
	assert.Empty(t, publisher.published())
}

func TestCommitFailureIsPersistenceError(t *testing.T) {
	svc, mock, publisher := newLedger(t)

	mock.ExpectBegin()
	expectLock(mock, testAccount{id: "acc-x", userID: "user-x", number: "1000000001", balance: "0.00", status: models.AccountStatusActive})
	expectAdjust(mock, "acc-x", "1", "1.00")
	expectAppend(mock, "acc-x", models.EntryKindDeposit, "1", nil)
	expectAudit(mock, models.EntityTypeTransaction, models.AuditActionDeposit)
	mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

	_, err := svc.Deposit(context.Background(), client, "acc-x", amt("1"))

	var perr *ledgererrors.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "commit", perr.Operation)
	assert.Empty(t, publisher.published())
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	svc, mock, publisher := newLedger(t)
	publisher.err = errPublish

	mock.ExpectBegin()
	expectLock(mock, testAccount{id: "acc-x", userID: "user-x", number: "1000000001", balance: "0.00", status: models.AccountStatusActive})
	expectAdjust(mock, "acc-x", "1", "1.00")
	expectAppend(mock, "acc-x", models.EntryKindDeposit, "1", nil)
	expectAudit(mock, models.EntityTypeTransaction, models.AuditActionDeposit)
	mock.ExpectCommit()

	result, err := svc.Deposit(context.Background(), client, "acc-x", amt("1"))
	require.NoError(t, err)
	assert.Equal(t, "1.00", result.Account.Balance.StringFixed(2))
	assert.Len(t, publisher.published(), 1)
}

func TestBeginFailureIsPersistenceError(t *testing.T) {
	svc, mock, _ := newLedger(t)
	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	_, err := svc.Deposit(context.Background(), client, "acc-x", amt("1"))
	assert.True(t, ledgererrors.IsPersistenceError(err))
}
