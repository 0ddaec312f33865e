package command

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/lev1nzz/test-bot-kopilka/internal/domain"
)

type Kind int

const (
	Unrecognized Kind = iota + 1
	Malformed
	BadAmount
	BadDate
	BadID
)

var (
	ErrUnrecognized = errors.New("unrecognized command")
	ErrMalformed    = errors.New("malformed command")
	ErrBadAmount    = errors.New("bad amount")
	ErrBadDate      = errors.New("bad date")
	ErrBadID        = errors.New("bad id")
)

var kindErrs = map[Kind]error{
	Unrecognized: ErrUnrecognized,
	Malformed:    ErrMalformed,
	BadAmount:    ErrBadAmount,
	BadDate:      ErrBadDate,
	BadID:        ErrBadID,
}

func (k Kind) String() string {
	if err, ok := kindErrs[k]; ok {
		return err.Error()
	}
	return "unknown"
}

// ParseError explains why a message is not a command. Usage holds an example
// of the expected format that can be shown to the sender as is.
type ParseError struct {
	Kind  Kind
	Usage string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return kindErrs[e.Kind] == target }

// AdminOnly reports whether the message started with an administrator keyword.
func (e *ParseError) AdminOnly() bool {
	switch e.Usage {
	case UsageBalance, UsagePledge, UsageDebtEdit:
		return true
	}
	return false
}

const (
	UsageContribute = "'вношу 3000 за 07.2023'"
	UsageSetMonthly = "'установить взнос 3000'"
	UsageBorrow     = "'беру 500 до 15.07'"
	UsageRepay      = "'возвращаю 500 за 15.07'"
	UsageBalance    = "'баланс 123456789 5000'"
	UsagePledge     = "'взнос 123456789 3000'"
	UsageDebtEdit   = "'закрыть 1'\n'долг 1 1500'\n'дата 1 30.12'"
)

// slash aliases of the admin keywords
var aliases = map[string]string{
	"/balance": "баланс",
	"/vznos":   "взнос",
	"/zakrit":  "закрыть",
	"/dolg":    "долг",
	"/data":    "дата",
}

// Parse converts one message into a Command. Any failure is a *ParseError.
func Parse(text string) (Command, error) {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(text)))
	if len(parts) == 0 {
		return nil, &ParseError{Kind: Unrecognized}
	}

	head := parts[0]
	if strings.HasPrefix(head, "/") {
		head, _, _ = strings.Cut(head, "@")
	}
	if kw, ok := aliases[head]; ok {
		head = kw
	}

	switch head {
	case "вношу":
		return parseContribute(parts)
	case "установить":
		if len(parts) < 2 || parts[1] != "взнос" {
			return nil, &ParseError{Kind: Unrecognized}
		}
		return parseSetMonthly(parts)
	case "беру":
		return parseBorrow(parts)
	case "возвращаю":
		return parseRepay(parts)
	case "баланс":
		id, v, err := parseMemberValue(parts, UsageBalance)
		if err != nil {
			return nil, err
		}
		return AdminSetBalance{MemberID: id, Value: v}, nil
	case "взнос":
		id, v, err := parseMemberValue(parts, UsagePledge)
		if err != nil {
			return nil, err
		}
		return AdminSetContribution{MemberID: id, Value: v}, nil
	case "закрыть":
		if len(parts) != 2 {
			return nil, malformed(UsageDebtEdit, len(parts), 2)
		}
		id, err := parseID(parts[1], UsageDebtEdit)
		if err != nil {
			return nil, err
		}
		return AdminCloseDebt{DebtID: id}, nil
	case "долг":
		if len(parts) != 3 {
			return nil, malformed(UsageDebtEdit, len(parts), 3)
		}
		id, err := parseID(parts[1], UsageDebtEdit)
		if err != nil {
			return nil, err
		}
		v, err := parseAmount(parts[2], UsageDebtEdit)
		if err != nil {
			return nil, err
		}
		return AdminSetDebtAmount{DebtID: id, Value: v}, nil
	case "дата":
		if len(parts) != 3 {
			return nil, malformed(UsageDebtEdit, len(parts), 3)
		}
		id, err := parseID(parts[1], UsageDebtEdit)
		if err != nil {
			return nil, err
		}
		due, err := parseDue(parts[2], UsageDebtEdit)
		if err != nil {
			return nil, err
		}
		return AdminSetDebtDueDate{DebtID: id, Due: due}, nil
	}
	return nil, &ParseError{Kind: Unrecognized}
}

// вношу <amount> за <mm.yyyy>
func parseContribute(parts []string) (Command, error) {
	if len(parts) != 4 || parts[2] != "за" {
		return nil, malformed(UsageContribute, len(parts), 4)
	}
	amount, err := parsePositive(parts[1], UsageContribute)
	if err != nil {
		return nil, err
	}
	period, err := domain.ParsePeriod(parts[3])
	if err != nil {
		return nil, &ParseError{Kind: BadDate, Usage: UsageContribute, Err: err}
	}
	return Contribute{Amount: amount, Period: period}, nil
}

// установить взнос <amount>
func parseSetMonthly(parts []string) (Command, error) {
	if len(parts) != 3 {
		return nil, malformed(UsageSetMonthly, len(parts), 3)
	}
	amount, err := parseAmount(parts[2], UsageSetMonthly)
	if err != nil {
		return nil, err
	}
	return SetMonthlyContribution{Amount: amount}, nil
}

// беру <amount> до <dd.mm>
func parseBorrow(parts []string) (Command, error) {
	if len(parts) != 4 || parts[2] != "до" {
		return nil, malformed(UsageBorrow, len(parts), 4)
	}
	amount, err := parsePositive(parts[1], UsageBorrow)
	if err != nil {
		return nil, err
	}
	due, err := parseDue(parts[3], UsageBorrow)
	if err != nil {
		return nil, err
	}
	return Borrow{Amount: amount, Due: due}, nil
}

// возвращаю <amount> за <dd.mm>
func parseRepay(parts []string) (Command, error) {
	if len(parts) != 4 || parts[2] != "за" {
		return nil, malformed(UsageRepay, len(parts), 4)
	}
	amount, err := parsePositive(parts[1], UsageRepay)
	if err != nil {
		return nil, err
	}
	due, err := parseDue(parts[3], UsageRepay)
	if err != nil {
		return nil, err
	}
	return Repay{Amount: amount, Due: due}, nil
}

func parseMemberValue(parts []string, usage string) (int64, decimal.Decimal, error) {
	if len(parts) != 3 {
		return 0, decimal.Zero, malformed(usage, len(parts), 3)
	}
	id, err := parseID(parts[1], usage)
	if err != nil {
		return 0, decimal.Zero, err
	}
	v, err := parseAmount(parts[2], usage)
	if err != nil {
		return 0, decimal.Zero, err
	}
	return id, v, nil
}

// plain decimal notation with at most two fractional digits; no exponents
var amountRe = regexp.MustCompile(`^[+-]?\d+([.,]\d{1,2})?$`)

func parseAmount(s, usage string) (decimal.Decimal, error) {
	if !amountRe.MatchString(s) {
		return decimal.Zero, &ParseError{Kind: BadAmount, Usage: usage, Err: fmt.Errorf("amount %q is not a number", s)}
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil {
		return decimal.Zero, &ParseError{Kind: BadAmount, Usage: usage, Err: err}
	}
	if !domain.AmountInRange(d) {
		return decimal.Zero, &ParseError{Kind: BadAmount, Usage: usage, Err: fmt.Errorf("amount %q out of range", s)}
	}
	return d, nil
}

func parsePositive(s, usage string) (decimal.Decimal, error) {
	d, err := parseAmount(s, usage)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, &ParseError{Kind: BadAmount, Usage: usage, Err: fmt.Errorf("amount %s must be positive", d)}
	}
	return d, nil
}

func parseDue(s, usage string) (domain.DueDate, error) {
	due, err := domain.ParseDueDate(s)
	if err != nil {
		return domain.DueDate{}, &ParseError{Kind: BadDate, Usage: usage, Err: err}
	}
	return due, nil
}

func parseID(s, usage string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, &ParseError{Kind: BadID, Usage: usage, Err: err}
	}
	if id <= 0 {
		return 0, &ParseError{Kind: BadID, Usage: usage, Err: fmt.Errorf("id %d must be positive", id)}
	}
	return id, nil
}

func malformed(usage string, got, want int) *ParseError {
	return &ParseError{Kind: Malformed, Usage: usage, Err: fmt.Errorf("got %d words, want %d", got, want)}
}
