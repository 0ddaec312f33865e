// Package sqlite is the embedded ledger store.
//
// The database is opened with a single connection and every transaction
// starts with BEGIN IMMEDIATE, so transactions are fully serialized. A
// database file locked by another process is reported as ledger.ErrConflict.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/lev1nzz/test-bot-kopilka/internal/domain"
	"github.com/lev1nzz/test-bot-kopilka/internal/ledger"
	"github.com/lev1nzz/test-bot-kopilka/internal/repo/sqlite/migrations"
)

type Store struct {
	db *sql.DB
}

// Open opens the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return conflict(fmt.Errorf("begin: %w", err))
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(ctx, &tx{tx: sqlTx}); err != nil {
		return conflict(err)
	}
	if err := sqlTx.Commit(); err != nil {
		return conflict(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// conflict marks busy and locked database errors as retryable.
func conflict(err error) error {
	var se *msqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %w", ledger.ErrConflict, err)
		}
	}
	return err
}

type tx struct{ tx *sql.Tx }

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func (t *tx) UpsertMember(ctx context.Context, m domain.Member) (domain.Member, bool, error) {
	stored, err := t.GetMember(ctx, m.ID)
	switch {
	case err == nil:
		if _, err := t.tx.ExecContext(ctx,
			`UPDATE members SET username = ?, first_name = ?, last_name = ? WHERE id = ?`,
			m.Username, m.FirstName, m.LastName, m.ID,
		); err != nil {
			return domain.Member{}, false, fmt.Errorf("update member: %w", err)
		}
		stored.Username, stored.FirstName, stored.LastName = m.Username, m.FirstName, m.LastName
		return stored, false, nil
	case !errors.Is(err, ledger.ErrMemberNotFound):
		return domain.Member{}, false, err
	}

	if _, err := t.tx.ExecContext(ctx,
		`INSERT INTO members (id, username, first_name, last_name, joined_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.Username, m.FirstName, m.LastName, toMillis(m.JoinedAt),
	); err != nil {
		return domain.Member{}, false, fmt.Errorf("insert member: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx,
		`INSERT INTO accounts (member_id, balance, monthly_contribution) VALUES (?, '0', '0')`, m.ID,
	); err != nil {
		return domain.Member{}, false, fmt.Errorf("insert account: %w", err)
	}
	return m, true, nil
}

func (t *tx) GetMember(ctx context.Context, id int64) (domain.Member, error) {
	var (
		m      domain.Member
		joined int64
	)
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, username, first_name, last_name, joined_at FROM members WHERE id = ?`, id,
	).Scan(&m.ID, &m.Username, &m.FirstName, &m.LastName, &joined)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Member{}, ledger.ErrMemberNotFound
	}
	if err != nil {
		return domain.Member{}, fmt.Errorf("get member: %w", err)
	}
	m.JoinedAt = fromMillis(joined)
	return m, nil
}

func (t *tx) ListMembers(ctx context.Context) ([]domain.MemberAccount, error) {
	rows, err := t.tx.QueryContext(ctx, `
SELECT m.id, m.username, m.first_name, m.last_name, m.joined_at, a.balance, a.monthly_contribution
FROM members m
JOIN accounts a ON a.member_id = m.id
ORDER BY m.id`)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []domain.MemberAccount
	for rows.Next() {
		var (
			ma     domain.MemberAccount
			joined int64
		)
		if err := rows.Scan(&ma.ID, &ma.Username, &ma.FirstName, &ma.LastName, &joined,
			&ma.Account.Balance, &ma.Account.MonthlyContribution); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		ma.JoinedAt = fromMillis(joined)
		ma.Account.MemberID = ma.ID
		out = append(out, ma)
	}
	return out, rows.Err()
}

func (t *tx) GetAccount(ctx context.Context, memberID int64) (domain.Account, error) {
	a := domain.Account{MemberID: memberID}
	err := t.tx.QueryRowContext(ctx,
		`SELECT balance, monthly_contribution FROM accounts WHERE member_id = ?`, memberID,
	).Scan(&a.Balance, &a.MonthlyContribution)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, ledger.ErrMemberNotFound
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (t *tx) SetBalance(ctx context.Context, memberID int64, balance decimal.Decimal) error {
	return t.updateAccount(ctx, `UPDATE accounts SET balance = ? WHERE member_id = ?`, memberID, balance)
}

func (t *tx) SetMonthlyContribution(ctx context.Context, memberID int64, amount decimal.Decimal) error {
	return t.updateAccount(ctx, `UPDATE accounts SET monthly_contribution = ? WHERE member_id = ?`, memberID, amount)
}

func (t *tx) updateAccount(ctx context.Context, query string, memberID int64, value decimal.Decimal) error {
	res, err := t.tx.ExecContext(ctx, query, value.String(), memberID)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if n == 0 {
		return ledger.ErrMemberNotFound
	}
	return nil
}

// PoolTotal sums in Go: balances are stored as text to keep exact decimals.
func (t *tx) PoolTotal(ctx context.Context) (decimal.Decimal, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT balance FROM accounts`)
	if err != nil {
		return decimal.Zero, fmt.Errorf("pool total: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var b decimal.Decimal
		if err := rows.Scan(&b); err != nil {
			return decimal.Zero, fmt.Errorf("scan balance: %w", err)
		}
		total = total.Add(b)
	}
	return total, rows.Err()
}

func (t *tx) AddContribution(ctx context.Context, c domain.Contribution) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
INSERT INTO contributions (member_id, amount, period_month, period_year, created_at)
VALUES (?, ?, ?, ?, ?)`,
		c.MemberID, c.Amount.String(), c.Period.Month, c.Period.Year, toMillis(c.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("add contribution: %w", err)
	}
	return res.LastInsertId()
}

func (t *tx) ListContributions(ctx context.Context, memberID int64, limit int) ([]domain.Contribution, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := t.tx.QueryContext(ctx, `
SELECT id, member_id, amount, period_month, period_year, created_at
FROM contributions
WHERE member_id = ?
ORDER BY id DESC
LIMIT ?`, memberID, limit)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	defer rows.Close()

	var out []domain.Contribution
	for rows.Next() {
		var (
			c       domain.Contribution
			created int64
		)
		if err := rows.Scan(&c.ID, &c.MemberID, &c.Amount, &c.Period.Month, &c.Period.Year, &created); err != nil {
			return nil, fmt.Errorf("scan contribution: %w", err)
		}
		c.CreatedAt = fromMillis(created)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (t *tx) CreateDebt(ctx context.Context, d domain.Debt) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
INSERT INTO debts (member_id, amount, due_day, due_month, status, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		d.MemberID, d.Amount.String(), d.DueDate.Day, d.DueDate.Month, string(d.Status), toMillis(d.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("create debt: %w", err)
	}
	return res.LastInsertId()
}

const debtColumns = `id, member_id, amount, due_day, due_month, status, created_at`

func scanDebt(row interface{ Scan(...any) error }) (domain.Debt, error) {
	var (
		d       domain.Debt
		status  string
		created int64
	)
	if err := row.Scan(&d.ID, &d.MemberID, &d.Amount, &d.DueDate.Day, &d.DueDate.Month, &status, &created); err != nil {
		return domain.Debt{}, err
	}
	d.Status = domain.DebtStatus(status)
	d.CreatedAt = fromMillis(created)
	return d, nil
}

func (t *tx) GetDebt(ctx context.Context, id int64) (domain.Debt, error) {
	d, err := scanDebt(t.tx.QueryRowContext(ctx, `SELECT `+debtColumns+` FROM debts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Debt{}, ledger.ErrDebtNotFound
	}
	if err != nil {
		return domain.Debt{}, fmt.Errorf("get debt: %w", err)
	}
	return d, nil
}

func (t *tx) FindActiveDebt(ctx context.Context, memberID int64, due domain.DueDate) (domain.Debt, error) {
	d, err := scanDebt(t.tx.QueryRowContext(ctx, `
SELECT `+debtColumns+`
FROM debts
WHERE member_id = ? AND status = 'active' AND due_day = ? AND due_month = ?
ORDER BY id
LIMIT 1`, memberID, due.Day, due.Month))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Debt{}, ledger.ErrNoMatchingDebt
	}
	if err != nil {
		return domain.Debt{}, fmt.Errorf("find debt: %w", err)
	}
	return d, nil
}

func (t *tx) UpdateDebt(ctx context.Context, d domain.Debt) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE debts SET amount = ?, due_day = ?, due_month = ?, status = ? WHERE id = ?`,
		d.Amount.String(), d.DueDate.Day, d.DueDate.Month, string(d.Status), d.ID,
	)
	if err != nil {
		return fmt.Errorf("update debt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update debt: %w", err)
	}
	if n == 0 {
		return ledger.ErrDebtNotFound
	}
	return nil
}

func (t *tx) ListDebts(ctx context.Context, f ledger.DebtFilter) ([]domain.Debt, error) {
	var (
		where []string
		args  []any
	)
	if f.MemberID != 0 {
		where = append(where, "member_id = ?")
		args = append(args, f.MemberID)
	}
	if f.ActiveOnly {
		where = append(where, "status = 'active'")
	}
	if f.Due != nil {
		where = append(where, "due_day = ? AND due_month = ?")
		args = append(args, f.Due.Day, f.Due.Month)
	}
	query := `SELECT ` + debtColumns + ` FROM debts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY CASE status WHEN 'active' THEN 0 ELSE 1 END, due_month, due_day, id`

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list debts: %w", err)
	}
	defer rows.Close()

	var out []domain.Debt
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan debt: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
