// Package memory is an in-process ledger store. Transactions run one at a time
// on a private copy of the state that replaces the shared one on commit.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/lev1nzz/test-bot-kopilka/internal/domain"
	"github.com/lev1nzz/test-bot-kopilka/internal/ledger"
)

type state struct {
	members       map[int64]domain.Member
	accounts      map[int64]domain.Account
	debts         map[int64]domain.Debt
	contributions []domain.Contribution
	lastDebtID    int64
	lastContribID int64
}

func newState() *state {
	return &state{
		members:  make(map[int64]domain.Member),
		accounts: make(map[int64]domain.Account),
		debts:    make(map[int64]domain.Debt),
	}
}

func (s *state) clone() *state {
	c := &state{
		members:       make(map[int64]domain.Member, len(s.members)),
		accounts:      make(map[int64]domain.Account, len(s.accounts)),
		debts:         make(map[int64]domain.Debt, len(s.debts)),
		contributions: append([]domain.Contribution(nil), s.contributions...),
		lastDebtID:    s.lastDebtID,
		lastContribID: s.lastContribID,
	}
	for k, v := range s.members {
		c.members[k] = v
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.debts {
		c.debts[k] = v
	}
	return c
}

type Store struct {
	mu sync.Mutex
	st *state
}

func New() *Store { return &Store{st: newState()} }

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, &tx{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

type tx struct{ st *state }

func (t *tx) UpsertMember(_ context.Context, m domain.Member) (domain.Member, bool, error) {
	cur, ok := t.st.members[m.ID]
	if ok {
		cur.Username, cur.FirstName, cur.LastName = m.Username, m.FirstName, m.LastName
		t.st.members[m.ID] = cur
		return cur, false, nil
	}
	t.st.members[m.ID] = m
	t.st.accounts[m.ID] = domain.Account{MemberID: m.ID, Balance: decimal.Zero, MonthlyContribution: decimal.Zero}
	return m, true, nil
}

func (t *tx) GetMember(_ context.Context, id int64) (domain.Member, error) {
	m, ok := t.st.members[id]
	if !ok {
		return domain.Member{}, ledger.ErrMemberNotFound
	}
	return m, nil
}

func (t *tx) ListMembers(_ context.Context) ([]domain.MemberAccount, error) {
	out := make([]domain.MemberAccount, 0, len(t.st.members))
	for id, m := range t.st.members {
		out = append(out, domain.MemberAccount{Member: m, Account: t.st.accounts[id]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) GetAccount(_ context.Context, memberID int64) (domain.Account, error) {
	a, ok := t.st.accounts[memberID]
	if !ok {
		return domain.Account{}, ledger.ErrMemberNotFound
	}
	return a, nil
}

func (t *tx) SetBalance(_ context.Context, memberID int64, balance decimal.Decimal) error {
	a, ok := t.st.accounts[memberID]
	if !ok {
		return ledger.ErrMemberNotFound
	}
	a.Balance = balance
	t.st.accounts[memberID] = a
	return nil
}

func (t *tx) SetMonthlyContribution(_ context.Context, memberID int64, amount decimal.Decimal) error {
	a, ok := t.st.accounts[memberID]
	if !ok {
		return ledger.ErrMemberNotFound
	}
	a.MonthlyContribution = amount
	t.st.accounts[memberID] = a
	return nil
}

func (t *tx) PoolTotal(_ context.Context) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, a := range t.st.accounts {
		total = total.Add(a.Balance)
	}
	return total, nil
}

func (t *tx) AddContribution(_ context.Context, c domain.Contribution) (int64, error) {
	if _, ok := t.st.members[c.MemberID]; !ok {
		return 0, ledger.ErrMemberNotFound
	}
	t.st.lastContribID++
	c.ID = t.st.lastContribID
	t.st.contributions = append(t.st.contributions, c)
	return c.ID, nil
}

func (t *tx) ListContributions(_ context.Context, memberID int64, limit int) ([]domain.Contribution, error) {
	var out []domain.Contribution
	for i := len(t.st.contributions) - 1; i >= 0; i-- {
		c := t.st.contributions[i]
		if c.MemberID != memberID {
			continue
		}
		out = append(out, c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (t *tx) CreateDebt(_ context.Context, d domain.Debt) (int64, error) {
	if _, ok := t.st.members[d.MemberID]; !ok {
		return 0, ledger.ErrMemberNotFound
	}
	t.st.lastDebtID++
	d.ID = t.st.lastDebtID
	t.st.debts[d.ID] = d
	return d.ID, nil
}

func (t *tx) GetDebt(_ context.Context, id int64) (domain.Debt, error) {
	d, ok := t.st.debts[id]
	if !ok {
		return domain.Debt{}, ledger.ErrDebtNotFound
	}
	return d, nil
}

func (t *tx) FindActiveDebt(ctx context.Context, memberID int64, due domain.DueDate) (domain.Debt, error) {
	list, _ := t.ListDebts(ctx, ledger.DebtFilter{MemberID: memberID, ActiveOnly: true, Due: &due})
	if len(list) == 0 {
		return domain.Debt{}, ledger.ErrNoMatchingDebt
	}
	// same due date and status, so ListDebts ordered them by id
	return list[0], nil
}

func (t *tx) UpdateDebt(_ context.Context, d domain.Debt) error {
	cur, ok := t.st.debts[d.ID]
	if !ok {
		return ledger.ErrDebtNotFound
	}
	cur.Amount, cur.DueDate, cur.Status = d.Amount, d.DueDate, d.Status
	t.st.debts[d.ID] = cur
	return nil
}

func (t *tx) ListDebts(_ context.Context, f ledger.DebtFilter) ([]domain.Debt, error) {
	var out []domain.Debt
	for _, d := range t.st.debts {
		if f.Match(d) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return ledger.DebtLess(out[i], out[j]) })
	return out, nil
}
