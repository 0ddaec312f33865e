package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/lev1nzz/test-bot-kopilka/internal/domain"
)

// Store is the transactional ledger storage.
//
// InTx must run fn as one atomic and isolated unit: either every write made
// through tx is committed or none is, and no other transaction may interleave
// its reads and writes with fn's. A transaction that cannot be serialized is
// reported with an error wrapping ErrConflict.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the view of the store inside one transaction.
type Tx interface {
	// UpsertMember creates the member and a zero account, or refreshes the
	// names of an existing one. JoinedAt is kept from the first insert.
	UpsertMember(ctx context.Context, m domain.Member) (stored domain.Member, created bool, err error)
	GetMember(ctx context.Context, id int64) (domain.Member, error)
	ListMembers(ctx context.Context) ([]domain.MemberAccount, error)

	GetAccount(ctx context.Context, memberID int64) (domain.Account, error)
	SetBalance(ctx context.Context, memberID int64, balance decimal.Decimal) error
	SetMonthlyContribution(ctx context.Context, memberID int64, amount decimal.Decimal) error
	// PoolTotal is the sum of all account balances.
	PoolTotal(ctx context.Context) (decimal.Decimal, error)

	AddContribution(ctx context.Context, c domain.Contribution) (int64, error)
	// ListContributions returns the newest contributions first.
	ListContributions(ctx context.Context, memberID int64, limit int) ([]domain.Contribution, error)

	CreateDebt(ctx context.Context, d domain.Debt) (int64, error)
	GetDebt(ctx context.Context, id int64) (domain.Debt, error)
	// FindActiveDebt returns the active debt of the member due on due with
	// the lowest id, or ErrNoMatchingDebt.
	FindActiveDebt(ctx context.Context, memberID int64, due domain.DueDate) (domain.Debt, error)
	// UpdateDebt persists Amount, DueDate and Status of d.
	UpdateDebt(ctx context.Context, d domain.Debt) error
	// ListDebts orders active debts first, then by due month, due day and id.
	ListDebts(ctx context.Context, f DebtFilter) ([]domain.Debt, error)
}

type DebtFilter struct {
	MemberID   int64 // 0 means every member
	ActiveOnly bool
	Due        *domain.DueDate
}

// Match reports whether d passes the filter. Store implementations that
// filter in memory use it.
func (f DebtFilter) Match(d domain.Debt) bool {
	if f.MemberID != 0 && d.MemberID != f.MemberID {
		return false
	}
	if f.ActiveOnly && !d.Active() {
		return false
	}
	if f.Due != nil && d.DueDate != *f.Due {
		return false
	}
	return true
}

// DebtLess is the ListDebts ordering.
func DebtLess(a, b domain.Debt) bool {
	if a.Active() != b.Active() {
		return a.Active()
	}
	if a.DueDate.Month != b.DueDate.Month {
		return a.DueDate.Month < b.DueDate.Month
	}
	if a.DueDate.Day != b.DueDate.Day {
		return a.DueDate.Day < b.DueDate.Day
	}
	return a.ID < b.ID
}
