package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/lev1nzz/test-bot-kopilka/internal/domain"
	"github.com/lev1nzz/test-bot-kopilka/internal/ledger"
)

type Accounts struct{ q querier }

func NewAccounts(q querier) *Accounts { return &Accounts{q: q} }

func (r *Accounts) GetAccount(ctx context.Context, memberID int64) (domain.Account, error) {
	var balance, pledge string
	err := r.q.QueryRow(ctx, `
		SELECT balance::text, monthly_contribution::text
		FROM accounts WHERE member_id=$1
	`, memberID).Scan(&balance, &pledge)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, ledger.ErrMemberNotFound
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("get account: %w", err)
	}
	a := domain.Account{MemberID: memberID}
	if a.Balance, err = scanDecimal(balance); err != nil {
		return domain.Account{}, err
	}
	if a.MonthlyContribution, err = scanDecimal(pledge); err != nil {
		return domain.Account{}, err
	}
	return a, nil
}

func (r *Accounts) SetBalance(ctx context.Context, memberID int64, balance decimal.Decimal) error {
	return r.update(ctx, `UPDATE accounts SET balance=$1::numeric WHERE member_id=$2`, memberID, balance)
}

func (r *Accounts) SetMonthlyContribution(ctx context.Context, memberID int64, amount decimal.Decimal) error {
	return r.update(ctx, `UPDATE accounts SET monthly_contribution=$1::numeric WHERE member_id=$2`, memberID, amount)
}

func (r *Accounts) update(ctx context.Context, sql string, memberID int64, value decimal.Decimal) error {
	tag, err := r.q.Exec(ctx, sql, value.String(), memberID)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrMemberNotFound
	}
	return nil
}

func (r *Accounts) PoolTotal(ctx context.Context) (decimal.Decimal, error) {
	var total string
	if err := r.q.QueryRow(ctx, `SELECT COALESCE(SUM(balance), 0)::text FROM accounts`).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("pool total: %w", err)
	}
	return scanDecimal(total)
}
