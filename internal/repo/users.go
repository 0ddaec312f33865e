package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lev1nzz/test-bot-kopilka/internal/domain"
	"github.com/lev1nzz/test-bot-kopilka/internal/ledger"
)

type Members struct{ q querier }

func NewMembers(q querier) *Members { return &Members{q: q} }

// UpsertMember inserts the member with a zero account, or refreshes the names
// of a known one. xmax is zero only for a freshly inserted row.
func (r *Members) UpsertMember(ctx context.Context, m domain.Member) (domain.Member, bool, error) {
	var created bool
	err := r.q.QueryRow(ctx, `
		INSERT INTO members(id, username, first_name, last_name, joined_at)
		VALUES($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE
		SET username=EXCLUDED.username,
			first_name=EXCLUDED.first_name,
			last_name=EXCLUDED.last_name
		RETURNING joined_at, (xmax = 0)
	`, m.ID, m.Username, m.FirstName, m.LastName, m.JoinedAt).Scan(&m.JoinedAt, &created)
	if err != nil {
		return domain.Member{}, false, fmt.Errorf("upsert member: %w", err)
	}
	if created {
		if _, err := r.q.Exec(ctx, `
			INSERT INTO accounts(member_id) VALUES($1)
			ON CONFLICT DO NOTHING
		`, m.ID); err != nil {
			return domain.Member{}, false, fmt.Errorf("insert account: %w", err)
		}
	}
	return m, created, nil
}

func (r *Members) GetMember(ctx context.Context, id int64) (domain.Member, error) {
	var m domain.Member
	err := r.q.QueryRow(ctx, `
		SELECT id, username, first_name, last_name, joined_at
		FROM members WHERE id=$1
	`, id).Scan(&m.ID, &m.Username, &m.FirstName, &m.LastName, &m.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Member{}, ledger.ErrMemberNotFound
	}
	if err != nil {
		return domain.Member{}, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

func (r *Members) ListMembers(ctx context.Context) ([]domain.MemberAccount, error) {
	rows, err := r.q.Query(ctx, `
		SELECT m.id, m.username, m.first_name, m.last_name, m.joined_at,
		       a.balance::text, a.monthly_contribution::text
		FROM members m
		JOIN accounts a ON a.member_id = m.id
		ORDER BY m.id
	`)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	out := make([]domain.MemberAccount, 0, 16)
	for rows.Next() {
		var (
			ma              domain.MemberAccount
			balance, pledge string
		)
		if err := rows.Scan(&ma.ID, &ma.Username, &ma.FirstName, &ma.LastName, &ma.JoinedAt, &balance, &pledge); err != nil {
			return nil, err
		}
		ma.Account.MemberID = ma.ID
		if ma.Account.Balance, err = scanDecimal(balance); err != nil {
			return nil, err
		}
		if ma.Account.MonthlyContribution, err = scanDecimal(pledge); err != nil {
			return nil, err
		}
		out = append(out, ma)
	}
	return out, rows.Err()
}
