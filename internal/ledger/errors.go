package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrMemberNotFound = errors.New("member not found")
	ErrNoMatchingDebt = errors.New("no active debt with this due date")
	ErrDebtNotFound   = errors.New("debt not found")
	ErrDebtReturned   = errors.New("debt already returned")
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrInvalidAmount  = errors.New("amount must be positive")
	ErrInvalidDate    = errors.New("date out of range")
	ErrUnauthorized   = errors.New("administrator rights required")
	// ErrConflict is returned by a Store when a transaction could not be
	// serialized. The engine retries it; callers only see it once retries run out.
	ErrConflict = errors.New("store conflict")
)

// InsufficientPoolError rejects a borrow larger than the pool total.
type InsufficientPoolError struct {
	Available decimal.Decimal
}

func (e *InsufficientPoolError) Error() string {
	return fmt.Sprintf("insufficient pool: %s available", e.Available.StringFixed(2))
}

// OverRepaymentError rejects a repayment larger than the remaining principal.
type OverRepaymentError struct {
	Remaining decimal.Decimal
}

func (e *OverRepaymentError) Error() string {
	return fmt.Sprintf("repayment exceeds debt: %s remaining", e.Remaining.StringFixed(2))
}

// IsDomain reports whether err is an expected business outcome rather than a
// store or programming fault.
func IsDomain(err error) bool {
	var ip *InsufficientPoolError
	var or *OverRepaymentError
	switch {
	case errors.As(err, &ip), errors.As(err, &or):
		return true
	case errors.Is(err, ErrMemberNotFound),
		errors.Is(err, ErrNoMatchingDebt),
		errors.Is(err, ErrDebtNotFound),
		errors.Is(err, ErrDebtReturned),
		errors.Is(err, ErrNegativeAmount),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidDate),
		errors.Is(err, ErrUnauthorized):
		return true
	}
	return false
}
