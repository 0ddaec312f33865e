package ledger

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lev1nzz/test-bot-kopilka/internal/domain"
)

// Register provisions the actor as a member on first contact and refreshes
// the stored names afterwards.
func (e *Engine) Register(ctx context.Context, actor Actor) (domain.Member, bool, error) {
	const op = "register"
	var (
		member  domain.Member
		created bool
	)
	err := e.run(ctx, op, false, func(ctx context.Context, tx Tx) error {
		var err error
		member, created, err = tx.UpsertMember(ctx, domain.Member{
			ID:        actor.ID,
			Username:  strings.TrimSpace(actor.Username),
			FirstName: strings.TrimSpace(actor.FirstName),
			LastName:  strings.TrimSpace(actor.LastName),
			JoinedAt:  e.now(),
		})
		return err
	})
	if err != nil {
		return domain.Member{}, false, e.reject("", op, actor.ID, err)
	}
	if created {
		e.audit(auditEntry{
			RequestID: uuid.NewString(), Op: op, ActorID: actor.ID, MemberID: actor.ID,
			Before: fields{},
			After:  fields{"balance": money(decimal.Zero), "username": member.Username},
		})
	}
	return member, created, nil
}

func (e *Engine) Account(ctx context.Context, memberID int64) (domain.Account, error) {
	var acct domain.Account
	err := e.run(ctx, "account", false, func(ctx context.Context, tx Tx) error {
		var err error
		acct, err = tx.GetAccount(ctx, memberID)
		return err
	})
	return acct, err
}

func (e *Engine) PoolTotal(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := e.run(ctx, "pool_total", false, func(ctx context.Context, tx Tx) error {
		var err error
		total, err = tx.PoolTotal(ctx)
		return err
	})
	return total, err
}

// Contributions returns the member's pledge and newest contributions.
func (e *Engine) Contributions(ctx context.Context, memberID int64, limit int) (domain.Account, []domain.Contribution, error) {
	var (
		acct domain.Account
		list []domain.Contribution
	)
	err := e.run(ctx, "contributions", false, func(ctx context.Context, tx Tx) error {
		var err error
		if acct, err = tx.GetAccount(ctx, memberID); err != nil {
			return err
		}
		list, err = tx.ListContributions(ctx, memberID, limit)
		return err
	})
	return acct, list, err
}

func (e *Engine) ActiveDebts(ctx context.Context, memberID int64) ([]domain.Debt, error) {
	return e.listDebts(ctx, "active_debts", DebtFilter{MemberID: memberID, ActiveOnly: true})
}

// DebtsDueOn lists active debts of every member due on due.
func (e *Engine) DebtsDueOn(ctx context.Context, due domain.DueDate) ([]domain.Debt, error) {
	return e.listDebts(ctx, "debts_due_on", DebtFilter{ActiveOnly: true, Due: &due})
}

func (e *Engine) listDebts(ctx context.Context, op string, f DebtFilter) ([]domain.Debt, error) {
	var list []domain.Debt
	err := e.run(ctx, op, false, func(ctx context.Context, tx Tx) error {
		var err error
		list, err = tx.ListDebts(ctx, f)
		return err
	})
	return list, err
}

// Members lists every member with its account. Admin only.
func (e *Engine) Members(ctx context.Context, actor Actor) ([]domain.MemberAccount, error) {
	if !e.IsAdmin(actor.ID) {
		return nil, ErrUnauthorized
	}
	var list []domain.MemberAccount
	err := e.run(ctx, "members", false, func(ctx context.Context, tx Tx) error {
		var err error
		list, err = tx.ListMembers(ctx)
		return err
	})
	return list, err
}

type DebtEntry struct {
	Debt   domain.Debt
	Member domain.Member
}

// Debts lists every debt, active first, with its member. Admin only.
func (e *Engine) Debts(ctx context.Context, actor Actor) ([]DebtEntry, error) {
	if !e.IsAdmin(actor.ID) {
		return nil, ErrUnauthorized
	}
	var out []DebtEntry
	err := e.run(ctx, "debts", false, func(ctx context.Context, tx Tx) error {
		debts, err := tx.ListDebts(ctx, DebtFilter{})
		if err != nil {
			return err
		}
		members, err := tx.ListMembers(ctx)
		if err != nil {
			return err
		}
		byID := make(map[int64]domain.Member, len(members))
		for _, m := range members {
			byID[m.ID] = m.Member
		}
		out = make([]DebtEntry, 0, len(debts))
		for _, d := range debts {
			m, ok := byID[d.MemberID]
			if !ok {
				m = domain.Member{ID: d.MemberID}
			}
			out = append(out, DebtEntry{Debt: d, Member: m})
		}
		return nil
	})
	return out, err
}

type Summary struct {
	PoolTotal   decimal.Decimal
	Members     int
	ActiveDebts int
	Outstanding decimal.Decimal
}

// PoolSummary reads the pool total together with debt statistics in one
// consistent snapshot.
func (e *Engine) PoolSummary(ctx context.Context) (Summary, error) {
	var s Summary
	err := e.run(ctx, "pool_summary", false, func(ctx context.Context, tx Tx) error {
		total, err := tx.PoolTotal(ctx)
		if err != nil {
			return err
		}
		members, err := tx.ListMembers(ctx)
		if err != nil {
			return err
		}
		debts, err := tx.ListDebts(ctx, DebtFilter{ActiveOnly: true})
		if err != nil {
			return err
		}
		s = Summary{PoolTotal: total, Members: len(members), ActiveDebts: len(debts), Outstanding: decimal.Zero}
		for _, d := range debts {
			s.Outstanding = s.Outstanding.Add(d.Amount)
		}
		return nil
	})
	return s, err
}

// Ping checks that the store answers a read transaction.
func (e *Engine) Ping(ctx context.Context) error {
	_, err := e.PoolTotal(ctx)
	return err
}
