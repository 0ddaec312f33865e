package ledger_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lev1nzz/test-bot-kopilka/internal/domain"
	"github.com/lev1nzz/test-bot-kopilka/internal/ledger"
)

var adminActor = ledger.Actor{ID: admin}

func borrowed(t *testing.T, e *ledger.Engine, member int64, amount string) domain.Debt {
	t.Helper()
	ctx := context.Background()
	_, err := e.Contribute(ctx, alice, dec("10000"), july2023)
	require.NoError(t, err)
	res, err := e.Borrow(ctx, member, dec(amount), due1507)
	require.NoError(t, err)
	return *res.Debt
}

func TestAdminSetBalanceAcceptsNegative(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	res, err := e.AdminSetBalance(ctx, adminActor, bob, dec("-200"))
	require.NoError(t, err)
	assertDec(t, "-200", res.Balance)
	assertDec(t, "-200", balance(t, e, bob))
	assertDec(t, "-200", pool(t, e))
}

func TestAdminValuesOutOfRange(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)
	debt := borrowed(t, e, bob, "300")
	huge := decimal.New(1, 2000000000)

	_, err := e.AdminSetBalance(ctx, adminActor, bob, huge)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
	_, err = e.AdminSetContribution(ctx, adminActor, bob, decimal.New(-1, -2000000000))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
	_, err = e.AdminSetDebtAmount(ctx, adminActor, debt.ID, huge)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	assertDec(t, "-300", balance(t, e, bob))
	acct, err := e.Account(ctx, bob)
	require.NoError(t, err)
	assertDec(t, "0", acct.MonthlyContribution)
}

func TestAdminSetContribution(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	_, err := e.AdminSetContribution(ctx, adminActor, bob, dec("-5"))
	require.NoError(t, err)
	acct, err := e.Account(ctx, bob)
	require.NoError(t, err)
	assertDec(t, "-5", acct.MonthlyContribution)
	assertDec(t, "0", acct.Balance)
}

func TestAdminOperationsRequireAdmin(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)
	debt := borrowed(t, e, bob, "100")
	actor := ledger.Actor{ID: alice}

	_, err := e.AdminSetBalance(ctx, actor, bob, dec("1"))
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
	_, err = e.AdminSetContribution(ctx, actor, bob, dec("1"))
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
	_, err = e.AdminCloseDebt(ctx, actor, debt.ID)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
	_, err = e.AdminSetDebtAmount(ctx, actor, debt.ID, dec("1"))
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
	_, err = e.AdminSetDebtDueDate(ctx, actor, debt.ID, due1507)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
	_, err = e.Members(ctx, actor)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)
	_, err = e.Debts(ctx, actor)
	assert.ErrorIs(t, err, ledger.ErrUnauthorized)

	debts, err := e.ActiveDebts(ctx, bob)
	require.NoError(t, err)
	require.Len(t, debts, 1)
	assertDec(t, "100", debts[0].Amount)
}

func TestAdminMissingTargets(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)

	_, err := e.AdminSetBalance(ctx, adminActor, 4242, dec("1"))
	assert.ErrorIs(t, err, ledger.ErrMemberNotFound)
	_, err = e.AdminSetContribution(ctx, adminActor, 4242, dec("1"))
	assert.ErrorIs(t, err, ledger.ErrMemberNotFound)
	_, err = e.AdminCloseDebt(ctx, adminActor, 77)
	assert.ErrorIs(t, err, ledger.ErrDebtNotFound)
	_, err = e.AdminSetDebtAmount(ctx, adminActor, 77, dec("1"))
	assert.ErrorIs(t, err, ledger.ErrDebtNotFound)
}

func TestAdminCloseDebtKeepsBalances(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)
	debt := borrowed(t, e, bob, "300")

	res, err := e.AdminCloseDebt(ctx, adminActor, debt.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DebtReturned, res.Debt.Status)
	assertDec(t, "-300", balance(t, e, bob))

	// closing twice is a no-op
	res, err = e.AdminCloseDebt(ctx, adminActor, debt.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DebtReturned, res.Debt.Status)

	_, err = e.Repay(ctx, bob, dec("300"), due1507)
	assert.ErrorIs(t, err, ledger.ErrNoMatchingDebt)
}

func TestAdminSetDebtAmount(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)
	debt := borrowed(t, e, bob, "300")

	res, err := e.AdminSetDebtAmount(ctx, adminActor, debt.ID, dec("1500"))
	require.NoError(t, err)
	assertDec(t, "1500", res.Debt.Amount)
	assertDec(t, "-300", balance(t, e, bob))

	_, err = e.AdminSetDebtAmount(ctx, adminActor, debt.ID, dec("-1"))
	assert.ErrorIs(t, err, ledger.ErrNegativeAmount)

	res, err = e.AdminSetDebtAmount(ctx, adminActor, debt.ID, dec("0"))
	require.NoError(t, err)
	assert.Equal(t, domain.DebtReturned, res.Debt.Status)

	_, err = e.AdminSetDebtAmount(ctx, adminActor, debt.ID, dec("10"))
	assert.ErrorIs(t, err, ledger.ErrDebtReturned)
}

func TestAdminSetDebtDueDate(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)
	debt := borrowed(t, e, bob, "300")
	moved := domain.DueDate{Day: 30, Month: 12}

	_, err := e.AdminSetDebtDueDate(ctx, adminActor, debt.ID, domain.DueDate{Day: 0, Month: 12})
	assert.ErrorIs(t, err, ledger.ErrInvalidDate)

	res, err := e.AdminSetDebtDueDate(ctx, adminActor, debt.ID, moved)
	require.NoError(t, err)
	assert.Equal(t, moved, res.Debt.DueDate)

	_, err = e.Repay(ctx, bob, dec("300"), due1507)
	assert.ErrorIs(t, err, ledger.ErrNoMatchingDebt)
	_, err = e.Repay(ctx, bob, dec("300"), moved)
	require.NoError(t, err)

	_, err = e.AdminSetDebtDueDate(ctx, adminActor, debt.ID, due1507)
	assert.ErrorIs(t, err, ledger.ErrDebtReturned)
}

func TestAdminListings(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, nil)
	debt := borrowed(t, e, bob, "300")

	members, err := e.Members(ctx, adminActor)
	require.NoError(t, err)
	require.Len(t, members, 3)
	assert.Equal(t, alice, members[0].ID)
	assertDec(t, "10000", members[0].Account.Balance)

	debts, err := e.Debts(ctx, adminActor)
	require.NoError(t, err)
	require.Len(t, debts, 1)
	assert.Equal(t, debt.ID, debts[0].Debt.ID)
	assert.Equal(t, "@user200", debts[0].Member.DisplayName())
}
