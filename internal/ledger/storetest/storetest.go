// Package storetest holds the behaviour every ledger.Store must share.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lev1nzz/test-bot-kopilka/internal/domain"
	"github.com/lev1nzz/test-bot-kopilka/internal/ledger"
)

var joined = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Run exercises a fresh store returned by newStore for each subtest.
func Run(t *testing.T, newStore func(t *testing.T) ledger.Store) {
	t.Run("upsert member", func(t *testing.T) { testUpsertMember(t, newStore(t)) })
	t.Run("missing records", func(t *testing.T) { testMissing(t, newStore(t)) })
	t.Run("balances and pool total", func(t *testing.T) { testBalances(t, newStore(t)) })
	t.Run("contributions", func(t *testing.T) { testContributions(t, newStore(t)) })
	t.Run("debts", func(t *testing.T) { testDebts(t, newStore(t)) })
	t.Run("rollback", func(t *testing.T) { testRollback(t, newStore(t)) })
}

func inTx(t *testing.T, s ledger.Store, fn func(ctx context.Context, tx ledger.Tx) error) {
	t.Helper()
	require.NoError(t, s.InTx(context.Background(), fn))
}

func addMember(t *testing.T, s ledger.Store, id int64) {
	t.Helper()
	inTx(t, s, func(ctx context.Context, tx ledger.Tx) error {
		_, _, err := tx.UpsertMember(ctx, domain.Member{ID: id, Username: "u", JoinedAt: joined})
		return err
	})
}

func testUpsertMember(t *testing.T, s ledger.Store) {
	inTx(t, s, func(ctx context.Context, tx ledger.Tx) error {
		m, created, err := tx.UpsertMember(ctx, domain.Member{ID: 7, Username: "ann", FirstName: "Ann", JoinedAt: joined})
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, "ann", m.Username)

		m, created, err = tx.UpsertMember(ctx, domain.Member{ID: 7, Username: "anna", FirstName: "Anna", LastName: "K", JoinedAt: joined.Add(time.Hour)})
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "anna", m.Username)
		assert.Equal(t, "Anna K", m.DisplayName())
		assert.WithinDuration(t, joined, m.JoinedAt, time.Second)

		acct, err := tx.GetAccount(ctx, 7)
		require.NoError(t, err)
		assert.True(t, acct.Balance.IsZero())
		assert.True(t, acct.MonthlyContribution.IsZero())

		list, err := tx.ListMembers(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, int64(7), list[0].ID)
		return nil
	})
}

func testMissing(t *testing.T, s ledger.Store) {
	inTx(t, s, func(ctx context.Context, tx ledger.Tx) error {
		_, err := tx.GetMember(ctx, 1)
		assert.ErrorIs(t, err, ledger.ErrMemberNotFound)
		_, err = tx.GetAccount(ctx, 1)
		assert.ErrorIs(t, err, ledger.ErrMemberNotFound)
		assert.ErrorIs(t, tx.SetBalance(ctx, 1, dec("1")), ledger.ErrMemberNotFound)
		_, err = tx.GetDebt(ctx, 1)
		assert.ErrorIs(t, err, ledger.ErrDebtNotFound)
		_, err = tx.FindActiveDebt(ctx, 1, domain.DueDate{Day: 1, Month: 1})
		assert.ErrorIs(t, err, ledger.ErrNoMatchingDebt)

		total, err := tx.PoolTotal(ctx)
		require.NoError(t, err)
		assert.True(t, total.IsZero())
		return nil
	})
}

func testBalances(t *testing.T, s ledger.Store) {
	addMember(t, s, 1)
	addMember(t, s, 2)
	inTx(t, s, func(ctx context.Context, tx ledger.Tx) error {
		require.NoError(t, tx.SetBalance(ctx, 1, dec("0.10")))
		require.NoError(t, tx.SetBalance(ctx, 2, dec("0.20")))
		require.NoError(t, tx.SetMonthlyContribution(ctx, 2, dec("-5")))
		return nil
	})
	inTx(t, s, func(ctx context.Context, tx ledger.Tx) error {
		total, err := tx.PoolTotal(ctx)
		require.NoError(t, err)
		assert.True(t, total.Equal(dec("0.30")), total.String())

		require.NoError(t, tx.SetBalance(ctx, 1, dec("-1000.55")))
		total, err = tx.PoolTotal(ctx)
		require.NoError(t, err)
		assert.True(t, total.Equal(dec("-1000.35")), total.String())

		acct, err := tx.GetAccount(ctx, 2)
		require.NoError(t, err)
		assert.True(t, acct.MonthlyContribution.Equal(dec("-5")))
		return nil
	})
}

func testContributions(t *testing.T, s ledger.Store) {
	addMember(t, s, 1)
	addMember(t, s, 2)
	inTx(t, s, func(ctx context.Context, tx ledger.Tx) error {
		for i := 1; i <= 4; i++ {
			_, err := tx.AddContribution(ctx, domain.Contribution{
				MemberID:  1,
				Amount:    decimal.NewFromInt(int64(i * 100)),
				Period:    domain.Period{Month: i, Year: 2024},
				CreatedAt: joined.Add(time.Duration(i) * time.Minute),
			})
			require.NoError(t, err)
		}
		_, err := tx.AddContribution(ctx, domain.Contribution{MemberID: 2, Amount: dec("1"), Period: domain.Period{Month: 1, Year: 2024}, CreatedAt: joined})
		require.NoError(t, err)
		return nil
	})
	inTx(t, s, func(ctx context.Context, tx ledger.Tx) error {
		list, err := tx.ListContributions(ctx, 1, 3)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, domain.Period{Month: 4, Year: 2024}, list[0].Period)
		assert.Equal(t, domain.Period{Month: 2, Year: 2024}, list[2].Period)
		assert.True(t, list[0].Amount.Equal(dec("400")))
		assert.Greater(t, list[0].ID, list[1].ID)
		return nil
	})
}

func testDebts(t *testing.T, s ledger.Store) {
	addMember(t, s, 1)
	addMember(t, s, 2)
	due := domain.DueDate{Day: 15, Month: 7}
	var first, second, other, early int64
	inTx(t, s, func(ctx context.Context, tx ledger.Tx) error {
		var err error
		mk := func(member int64, amount string, d domain.DueDate) int64 {
			id, e := tx.CreateDebt(ctx, domain.Debt{MemberID: member, Amount: dec(amount), DueDate: d, Status: domain.DebtActive, CreatedAt: joined})
			require.NoError(t, e)
			return id
		}
		first = mk(1, "100", due)
		second = mk(1, "200", due)
		other = mk(2, "50", due)
		early = mk(1, "10", domain.DueDate{Day: 1, Month: 2})
		return err
	})
	inTx(t, s, func(ctx context.Context, tx ledger.Tx) error {
		d, err := tx.FindActiveDebt(ctx, 1, due)
		require.NoError(t, err)
		assert.Equal(t, first, d.ID)

		d.Status = domain.DebtReturned
		require.NoError(t, tx.UpdateDebt(ctx, d))

		d, err = tx.FindActiveDebt(ctx, 1, due)
		require.NoError(t, err)
		assert.Equal(t, second, d.ID)
		assert.True(t, d.Amount.Equal(dec("200")))

		d.Amount = dec("150.5")
		d.DueDate = domain.DueDate{Day: 30, Month: 12}
		require.NoError(t, tx.UpdateDebt(ctx, d))

		got, err := tx.GetDebt(ctx, second)
		require.NoError(t, err)
		assert.True(t, got.Amount.Equal(dec("150.5")))
		assert.Equal(t, domain.DueDate{Day: 30, Month: 12}, got.DueDate)
		assert.Equal(t, domain.DebtActive, got.Status)

		assert.ErrorIs(t, tx.UpdateDebt(ctx, domain.Debt{ID: 999}), ledger.ErrDebtNotFound)
		return nil
	})
	inTx(t, s, func(ctx context.Context, tx ledger.Tx) error {
		all, err := tx.ListDebts(ctx, ledger.DebtFilter{})
		require.NoError(t, err)
		ids := make([]int64, 0, len(all))
		for _, d := range all {
			ids = append(ids, d.ID)
		}
		assert.Equal(t, []int64{early, other, second, first}, ids)

		mine, err := tx.ListDebts(ctx, ledger.DebtFilter{MemberID: 1, ActiveOnly: true})
		require.NoError(t, err)
		require.Len(t, mine, 2)
		assert.Equal(t, early, mine[0].ID)

		onDue, err := tx.ListDebts(ctx, ledger.DebtFilter{ActiveOnly: true, Due: &due})
		require.NoError(t, err)
		require.Len(t, onDue, 1)
		assert.Equal(t, other, onDue[0].ID)
		return nil
	})
}

func testRollback(t *testing.T, s ledger.Store) {
	addMember(t, s, 1)
	boom := errors.New("boom")
	err := s.InTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		require.NoError(t, tx.SetBalance(ctx, 1, dec("500")))
		_, err := tx.CreateDebt(ctx, domain.Debt{MemberID: 1, Amount: dec("5"), DueDate: domain.DueDate{Day: 1, Month: 1}, Status: domain.DebtActive, CreatedAt: joined})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	inTx(t, s, func(ctx context.Context, tx ledger.Tx) error {
		acct, err := tx.GetAccount(ctx, 1)
		require.NoError(t, err)
		assert.True(t, acct.Balance.IsZero())
		debts, err := tx.ListDebts(ctx, ledger.DebtFilter{})
		require.NoError(t, err)
		assert.Empty(t, debts)
		return nil
	})
}
