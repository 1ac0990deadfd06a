// Package policy decides which roles may invoke which ledger actions. Callers
// check here before calling a service; the services assume the check passed.
package policy

import (
	"github.com/riteshkumar/bank-ledger/internal/errors"
	"github.com/riteshkumar/bank-ledger/internal/models"
)

type Action string

const (
	ActionCreateAccount Action = "account.create"
	ActionToggleStatus  Action = "account.toggle_status"
	ActionListAccounts  Action = "account.list"
	ActionViewAudit     Action = "account.audit"
	ActionListAllTx     Action = "transaction.list_all"
	ActionRegister      Action = "account.register"
	ActionViewAccount   Action = "account.view_own"
	ActionDeposit       Action = "ledger.deposit"
	ActionWithdraw      Action = "ledger.withdraw"
	ActionTransfer      Action = "ledger.transfer"
	ActionViewHistory   Action = "ledger.history"
)

var capabilities = map[models.Role]map[Action]bool{
	models.RoleAdmin: {
		ActionCreateAccount: true,
		ActionToggleStatus:  true,
		ActionListAccounts:  true,
		ActionViewAudit:     true,
		ActionListAllTx:     true,
	},
	models.RoleClient: {
		ActionRegister:    true,
		ActionViewAccount: true,
		ActionDeposit:     true,
		ActionWithdraw:    true,
		ActionTransfer:    true,
		ActionViewHistory: true,
	},
}

// Authorize returns nil when caller's role grants action.
func Authorize(caller models.Caller, action Action) error {
	if caller.UserID == "" || caller.Role == "" {
		return errors.ErrUnauthenticated
	}
	if !capabilities[caller.Role][action] {
		return errors.ErrForbidden
	}
	return nil
}
