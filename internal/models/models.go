package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusInactive AccountStatus = "inactive"
)

// Toggled returns the status an administrative toggle moves to.
func (s AccountStatus) Toggled() AccountStatus {
	if s == AccountStatusActive {
		return AccountStatusInactive
	}
	return AccountStatusActive
}

type Account struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Username      string          `json:"username,omitempty"`
	AccountNumber string          `json:"account_number"`
	Balance       decimal.Decimal `json:"balance"`
	Status        AccountStatus   `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
	TransactionTypeTransfer   TransactionType = "transfer"
)

type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// EntryKind is the explicit tag written with every record.
type EntryKind string

const (
	EntryKindDeposit     EntryKind = "deposit"
	EntryKindWithdrawal  EntryKind = "withdrawal"
	EntryKindTransferOut EntryKind = "transfer_out"
	EntryKindTransferIn  EntryKind = "transfer_in"
)

// Record descriptions as stored by the original schema.
const (
	DescriptionDeposit     = "Direct deposit"
	DescriptionWithdrawal  = "ATM/Cash withdrawal"
	DescriptionTransferOut = "Transfer Out"
	DescriptionTransferIn  = "Transfer In"
)

// Type returns the stored type column. The incoming transfer leg keeps the
// "deposit" type so existing consumers of the table read it unchanged.
func (k EntryKind) Type() TransactionType {
	switch k {
	case EntryKindWithdrawal:
		return TransactionTypeWithdrawal
	case EntryKindTransferOut:
		return TransactionTypeTransfer
	default:
		return TransactionTypeDeposit
	}
}

func (k EntryKind) Direction() Direction {
	if k == EntryKindDeposit || k == EntryKindTransferIn {
		return DirectionCredit
	}
	return DirectionDebit
}

func (k EntryKind) Description() string {
	switch k {
	case EntryKindDeposit:
		return DescriptionDeposit
	case EntryKindWithdrawal:
		return DescriptionWithdrawal
	case EntryKindTransferOut:
		return DescriptionTransferOut
	case EntryKindTransferIn:
		return DescriptionTransferIn
	}
	return ""
}

type TransactionRecord struct {
	ID                   string          `json:"id"`
	AccountID            string          `json:"account_id"`
	AccountNumber        string          `json:"account_number,omitempty"`
	Kind                 EntryKind       `json:"kind,omitempty"`
	Type                 TransactionType `json:"type"`
	Direction            Direction       `json:"direction,omitempty"`
	Amount               decimal.Decimal `json:"amount"`
	RelatedAccountNumber *string         `json:"related_account_number,omitempty"`
	Description          string          `json:"description"`
	Timestamp            time.Time       `json:"timestamp"`
}

// NewRecord builds a record whose type, direction and description all follow
// from kind.
func NewRecord(accountID string, kind EntryKind, amount decimal.Decimal, related *string) *TransactionRecord {
	return &TransactionRecord{
		AccountID:            accountID,
		Kind:                 kind,
		Type:                 kind.Type(),
		Direction:            kind.Direction(),
		Amount:               amount,
		RelatedAccountNumber: related,
		Description:          kind.Description(),
	}
}

// HistoryEntry is a record as shown in an account history.
type HistoryEntry struct {
	*TransactionRecord
	DisplayKind EntryKind `json:"display_kind"`
	IsCredit    bool      `json:"is_credit"`
}

// LedgerResult is the outcome of a successful ledger operation.
type LedgerResult struct {
	Account *Account             `json:"account"`
	Records []*TransactionRecord `json:"records"`
}

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleClient Role = "client"
)

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Caller is the already authenticated identity on whose behalf an operation runs.
type Caller struct {
	UserID string
	Role   Role
}

type AuditLog struct {
	ID         int64           `json:"id"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Action     string          `json:"action"`
	ActorID    string          `json:"actor_id"`
	OldValue   json.RawMessage `json:"old_value"`
	NewValue   json.RawMessage `json:"new_value"`
	CreatedAt  time.Time       `json:"created_at"`
}

const (
	AuditActionCreate       = "CREATE"
	AuditActionStatusChange = "STATUS_CHANGE"
	AuditActionDeposit      = "DEPOSIT"
	AuditActionWithdrawal   = "WITHDRAWAL"
	AuditActionTransfer     = "TRANSFER"
)

const (
	EntityTypeAccount     = "ACCOUNT"
	EntityTypeTransaction = "TRANSACTION"
)

type AccountBalanceSnapshot struct {
	ID            string          `json:"id"`
	AccountNumber string          `json:"account_number"`
	Balance       decimal.Decimal `json:"balance"`
	Status        AccountStatus   `json:"status"`
}

func SnapshotOf(a *Account) AccountBalanceSnapshot {
	return AccountBalanceSnapshot{
		ID:            a.ID,
		AccountNumber: a.AccountNumber,
		Balance:       a.Balance,
		Status:        a.Status,
	}
}

type CreateAccountRequest struct {
	OwnerID        string          `json:"owner_id" validate:"required"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

// RegisterRequest is sent on behalf of a newly authenticated client. The
// user id comes from the caller identity, not the body.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50,alphanum"`
}

type AmountRequest struct {
	Amount *decimal.Decimal `json:"amount" validate:"required"`
}

type TransferRequest struct {
	TargetAccountNumber string           `json:"target_account_number" validate:"required"`
	Amount              *decimal.Decimal `json:"amount" validate:"required"`
}

type AccountResponse struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	Username      string        `json:"username,omitempty"`
	AccountNumber string        `json:"account_number"`
	Balance       string        `json:"balance"`
	Status        AccountStatus `json:"status"`
}

func NewAccountResponse(a *Account) AccountResponse {
	return AccountResponse{
		ID:            a.ID,
		UserID:        a.UserID,
		Username:      a.Username,
		AccountNumber: a.AccountNumber,
		Balance:       a.Balance.StringFixed(2),
		Status:        a.Status,
	}
}

type LedgerResponse struct {
	Message string               `json:"message"`
	Account AccountResponse      `json:"account"`
	Records []*TransactionRecord `json:"records"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
