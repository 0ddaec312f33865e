package repo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/lev1nzz/test-bot-kopilka/internal/domain"
	"github.com/lev1nzz/test-bot-kopilka/internal/ledger"
)

type Debts struct{ q querier }

func NewDebts(q querier) *Debts { return &Debts{q: q} }

func (r *Debts) CreateDebt(ctx context.Context, d domain.Debt) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `
		INSERT INTO debts(member_id, amount, due_day, due_month, status, created_at)
		VALUES($1,$2::numeric,$3,$4,$5,$6)
		RETURNING id
	`, d.MemberID, d.Amount.String(), d.DueDate.Day, d.DueDate.Month, string(d.Status), d.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create debt: %w", err)
	}
	return id, nil
}

const debtColumns = `id, member_id, amount::text, due_day, due_month, status, created_at`

func scanDebt(row pgx.Row) (domain.Debt, error) {
	var (
		d              domain.Debt
		amount, status string
	)
	if err := row.Scan(&d.ID, &d.MemberID, &amount, &d.DueDate.Day, &d.DueDate.Month, &status, &d.CreatedAt); err != nil {
		return domain.Debt{}, err
	}
	amt, err := scanDecimal(amount)
	if err != nil {
		return domain.Debt{}, err
	}
	d.Amount = amt
	d.Status = domain.DebtStatus(status)
	return d, nil
}

func (r *Debts) GetDebt(ctx context.Context, id int64) (domain.Debt, error) {
	d, err := scanDebt(r.q.QueryRow(ctx, `SELECT `+debtColumns+` FROM debts WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Debt{}, ledger.ErrDebtNotFound
	}
	if err != nil {
		return domain.Debt{}, fmt.Errorf("get debt: %w", err)
	}
	return d, nil
}

func (r *Debts) FindActiveDebt(ctx context.Context, memberID int64, due domain.DueDate) (domain.Debt, error) {
	d, err := scanDebt(r.q.QueryRow(ctx, `
		SELECT `+debtColumns+`
		FROM debts
		WHERE member_id=$1 AND status='active' AND due_day=$2 AND due_month=$3
		ORDER BY id
		LIMIT 1
	`, memberID, due.Day, due.Month))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Debt{}, ledger.ErrNoMatchingDebt
	}
	if err != nil {
		return domain.Debt{}, fmt.Errorf("find debt: %w", err)
	}
	return d, nil
}

func (r *Debts) UpdateDebt(ctx context.Context, d domain.Debt) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE debts
		SET amount=$1::numeric, due_day=$2, due_month=$3, status=$4, updated_at=now()
		WHERE id=$5
	`, d.Amount.String(), d.DueDate.Day, d.DueDate.Month, string(d.Status), d.ID)
	if err != nil {
		return fmt.Errorf("update debt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrDebtNotFound
	}
	return nil
}

func (r *Debts) ListDebts(ctx context.Context, f ledger.DebtFilter) ([]domain.Debt, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if f.MemberID != 0 {
		where = append(where, "member_id="+arg(f.MemberID))
	}
	if f.ActiveOnly {
		where = append(where, "status='active'")
	}
	if f.Due != nil {
		where = append(where, "due_day="+arg(f.Due.Day), "due_month="+arg(f.Due.Month))
	}
	sql := `SELECT ` + debtColumns + ` FROM debts`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY (status <> 'active'), due_month, due_day, id`

	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list debts: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Debt, 0, 32)
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
