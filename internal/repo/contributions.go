package repo

import (
	"context"
	"fmt"

	"github.com/lev1nzz/test-bot-kopilka/internal/domain"
)

type Contributions struct{ q querier }

func NewContributions(q querier) *Contributions { return &Contributions{q: q} }

func (r *Contributions) AddContribution(ctx context.Context, c domain.Contribution) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `
		INSERT INTO contributions(member_id, amount, period_month, period_year, created_at)
		VALUES($1,$2::numeric,$3,$4,$5)
		RETURNING id
	`, c.MemberID, c.Amount.String(), c.Period.Month, c.Period.Year, c.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("add contribution: %w", err)
	}
	return id, nil
}

// ListContributions returns the newest contributions; limit <= 0 means all.
func (r *Contributions) ListContributions(ctx context.Context, memberID int64, limit int) ([]domain.Contribution, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := r.q.Query(ctx, `
		SELECT id, member_id, amount::text, period_month, period_year, created_at
		FROM contributions
		WHERE member_id=$1
		ORDER BY id DESC
		LIMIT $2
	`, memberID, lim)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Contribution, 0, 10)
	for rows.Next() {
		var (
			c      domain.Contribution
			amount string
		)
		if err := rows.Scan(&c.ID, &c.MemberID, &amount, &c.Period.Month, &c.Period.Year, &c.CreatedAt); err != nil {
			return nil, err
		}
		if c.Amount, err = scanDecimal(amount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
