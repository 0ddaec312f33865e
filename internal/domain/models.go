package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Member struct {
	ID        int64 // Telegram user id
	Username  string
	FirstName string
	LastName  string
	JoinedAt  time.Time
}

// DisplayName returns "First Last", falling back to @username and then the id.
func (m Member) DisplayName() string {
	name := strings.TrimSpace(m.FirstName + " " + m.LastName)
	if name == "" && m.Username != "" {
		name = "@" + m.Username
	}
	if name == "" {
		name = fmt.Sprintf("id=%d", m.ID)
	}
	return name
}

type Account struct {
	MemberID            int64
	Balance             decimal.Decimal
	MonthlyContribution decimal.Decimal
}

// MemberAccount is a member joined with its account, used by admin listings.
type MemberAccount struct {
	Member
	Account Account
}

type Contribution struct {
	ID        int64
	MemberID  int64
	Amount    decimal.Decimal
	Period    Period
	CreatedAt time.Time
}

type DebtStatus string

const (
	DebtActive   DebtStatus = "active"
	DebtReturned DebtStatus = "returned"
)

type Debt struct {
	ID        int64
	MemberID  int64
	Amount    decimal.Decimal // remaining principal
	DueDate   DueDate
	Status    DebtStatus
	CreatedAt time.Time
}

func (d Debt) Active() bool { return d.Status == DebtActive }

// DueDate is a day.month pair without a year. Matching by due date cannot tell
// apart obligations that span a year boundary.
type DueDate struct {
	Day   int
	Month int
}

func (d DueDate) String() string { return fmt.Sprintf("%02d.%02d", d.Day, d.Month) }

func (d DueDate) Valid() bool {
	return d.Day >= 1 && d.Day <= 31 && d.Month >= 1 && d.Month <= 12
}

// DueDateOf returns the day.month of t.
func DueDateOf(t time.Time) DueDate {
	return DueDate{Day: t.Day(), Month: int(t.Month())}
}

// ParseDueDate parses "dd.mm". Single digit parts are accepted.
func ParseDueDate(s string) (DueDate, error) {
	a, b, err := splitPair(s)
	if err != nil {
		return DueDate{}, err
	}
	d := DueDate{Day: a, Month: b}
	if !d.Valid() {
		return DueDate{}, fmt.Errorf("due date %q out of range", s)
	}
	return d, nil
}

// Period is the month.year tag of a contribution.
type Period struct {
	Month int
	Year  int
}

func (p Period) String() string { return fmt.Sprintf("%02d.%04d", p.Month, p.Year) }

func (p Period) Valid() bool {
	return p.Month >= 1 && p.Month <= 12 && p.Year >= 2020
}

// ParsePeriod parses "mm.yyyy".
func ParsePeriod(s string) (Period, error) {
	a, b, err := splitPair(s)
	if err != nil {
		return Period{}, err
	}
	p := Period{Month: a, Year: b}
	if !p.Valid() {
		return Period{}, fmt.Errorf("period %q out of range", s)
	}
	return p, nil
}

func splitPair(s string) (int, int, error) {
	left, right, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok {
		return 0, 0, fmt.Errorf("expected two dot separated numbers, got %q", s)
	}
	a, err := atoiDigits(left)
	if err != nil {
		return 0, 0, err
	}
	b, err := atoiDigits(right)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

// atoiDigits parses a short run of ASCII digits. Signs are not accepted.
func atoiDigits(s string) (int, error) {
	if s == "" || len(s) > 4 {
		return 0, fmt.Errorf("bad number %q", s)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("bad number %q", s)
		}
	}
	return strconv.Atoi(s)
}
