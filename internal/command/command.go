// Package command turns a chat message into a typed ledger command.
//
// Parsing is pure: it never touches the store and is safe to call from any
// number of goroutines.
package command

import (
	"github.com/shopspring/decimal"

	"github.com/lev1nzz/test-bot-kopilka/internal/domain"
)

// Command is one of the variants below. The set is closed.
type Command interface {
	// Name is a stable identifier used in logs and audit records.
	Name() string
	// Admin reports whether the command needs administrator rights.
	Admin() bool
	command()
}

type Contribute struct {
	Amount decimal.Decimal
	Period domain.Period
}

type SetMonthlyContribution struct {
	Amount decimal.Decimal
}

type Borrow struct {
	Amount decimal.Decimal
	Due    domain.DueDate
}

type Repay struct {
	Amount decimal.Decimal
	Due    domain.DueDate
}

type AdminSetBalance struct {
	MemberID int64
	Value    decimal.Decimal
}

type AdminSetContribution struct {
	MemberID int64
	Value    decimal.Decimal
}

type AdminCloseDebt struct {
	DebtID int64
}

type AdminSetDebtAmount struct {
	DebtID int64
	Value  decimal.Decimal
}

type AdminSetDebtDueDate struct {
	DebtID int64
	Due    domain.DueDate
}

func (Contribute) Name() string             { return "contribute" }
func (SetMonthlyContribution) Name() string { return "set_monthly_contribution" }
func (Borrow) Name() string                 { return "borrow" }
func (Repay) Name() string                  { return "repay" }
func (AdminSetBalance) Name() string        { return "admin_set_balance" }
func (AdminSetContribution) Name() string   { return "admin_set_contribution" }
func (AdminCloseDebt) Name() string         { return "admin_close_debt" }
func (AdminSetDebtAmount) Name() string     { return "admin_set_debt_amount" }
func (AdminSetDebtDueDate) Name() string    { return "admin_set_debt_due_date" }

func (Contribute) Admin() bool             { return false }
func (SetMonthlyContribution) Admin() bool { return false }
func (Borrow) Admin() bool                 { return false }
func (Repay) Admin() bool                  { return false }
func (AdminSetBalance) Admin() bool        { return true }
func (AdminSetContribution) Admin() bool   { return true }
func (AdminCloseDebt) Admin() bool         { return true }
func (AdminSetDebtAmount) Admin() bool     { return true }
func (AdminSetDebtDueDate) Admin() bool    { return true }

func (Contribute) command()             {}
func (SetMonthlyContribution) command() {}
func (Borrow) command()                 {}
func (Repay) command()                  {}
func (AdminSetBalance) command()        {}
func (AdminSetContribution) command()   {}
func (AdminCloseDebt) command()         {}
func (AdminSetDebtAmount) command()     {}
func (AdminSetDebtDueDate) command()    {}
