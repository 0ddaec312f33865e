package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lev1nzz/test-bot-kopilka/internal/domain"
)

// Admin overrides skip pool-capacity and repayment checks but still require
// the target record to exist.

func (e *Engine) authorize(reqID, op string, actor Actor) error {
	if !e.IsAdmin(actor.ID) {
		return e.reject(reqID, op, actor.ID, ErrUnauthorized)
	}
	return nil
}

// AdminSetBalance overwrites a member's balance with any value, negative included.
func (e *Engine) AdminSetBalance(ctx context.Context, actor Actor, memberID int64, value decimal.Decimal) (Result, error) {
	const op = "admin_set_balance"
	reqID := uuid.NewString()
	if err := e.authorize(reqID, op, actor); err != nil {
		return Result{}, err
	}
	if !domain.AmountInRange(value) {
		return Result{}, e.reject(reqID, op, actor.ID, ErrInvalidAmount)
	}

	var res Result
	var before decimal.Decimal
	err := e.run(ctx, op, true, func(ctx context.Context, tx Tx) error {
		acct, err := tx.GetAccount(ctx, memberID)
		if err != nil {
			return err
		}
		if err := tx.SetBalance(ctx, memberID, value); err != nil {
			return err
		}
		before = acct.Balance
		res = Result{
			RequestID:           reqID,
			Op:                  op,
			MemberID:            memberID,
			Amount:              value,
			Balance:             value,
			MonthlyContribution: acct.MonthlyContribution,
		}
		return nil
	})
	if err != nil {
		return Result{}, e.reject(reqID, op, actor.ID, err)
	}
	e.audit(auditEntry{
		RequestID: reqID, Op: op, ActorID: actor.ID, MemberID: memberID,
		Before: fields{"balance": money(before)},
		After:  fields{"balance": money(value)},
	})
	return res, nil
}

// AdminSetContribution overwrites a member's monthly pledge. Negative values
// are accepted, as for members themselves.
func (e *Engine) AdminSetContribution(ctx context.Context, actor Actor, memberID int64, value decimal.Decimal) (Result, error) {
	const op = "admin_set_contribution"
	reqID := uuid.NewString()
	if err := e.authorize(reqID, op, actor); err != nil {
		return Result{}, err
	}
	if !domain.AmountInRange(value) {
		return Result{}, e.reject(reqID, op, actor.ID, ErrInvalidAmount)
	}

	var res Result
	var before decimal.Decimal
	err := e.run(ctx, op, true, func(ctx context.Context, tx Tx) error {
		acct, err := tx.GetAccount(ctx, memberID)
		if err != nil {
			return err
		}
		if err := tx.SetMonthlyContribution(ctx, memberID, value); err != nil {
			return err
		}
		before = acct.MonthlyContribution
		res = Result{
			RequestID:           reqID,
			Op:                  op,
			MemberID:            memberID,
			Amount:              value,
			Balance:             acct.Balance,
			MonthlyContribution: value,
		}
		return nil
	})
	if err != nil {
		return Result{}, e.reject(reqID, op, actor.ID, err)
	}
	e.audit(auditEntry{
		RequestID: reqID, Op: op, ActorID: actor.ID, MemberID: memberID,
		Before: fields{"monthly_contribution": money(before)},
		After:  fields{"monthly_contribution": money(value)},
	})
	return res, nil
}

// AdminCloseDebt marks a debt returned whatever its remaining amount. Balances
// are not touched. Closing a returned debt is a no-op.
func (e *Engine) AdminCloseDebt(ctx context.Context, actor Actor, debtID int64) (Result, error) {
	const op = "admin_close_debt"
	reqID := uuid.NewString()
	if err := e.authorize(reqID, op, actor); err != nil {
		return Result{}, err
	}
	return e.editDebt(ctx, reqID, actor, op, debtID, func(d *domain.Debt) error {
		d.Status = domain.DebtReturned
		return nil
	}, true)
}

// AdminSetDebtAmount overwrites the remaining principal. Negative values are
// rejected; zero closes the debt so that an active debt never has a zero amount.
func (e *Engine) AdminSetDebtAmount(ctx context.Context, actor Actor, debtID int64, value decimal.Decimal) (Result, error) {
	const op = "admin_set_debt_amount"
	reqID := uuid.NewString()
	if err := e.authorize(reqID, op, actor); err != nil {
		return Result{}, err
	}
	if value.IsNegative() {
		return Result{}, e.reject(reqID, op, actor.ID, ErrNegativeAmount)
	}
	if !domain.AmountInRange(value) {
		return Result{}, e.reject(reqID, op, actor.ID, ErrInvalidAmount)
	}
	return e.editDebt(ctx, reqID, actor, op, debtID, func(d *domain.Debt) error {
		if value.IsZero() {
			d.Status = domain.DebtReturned
			return nil
		}
		d.Amount = value
		return nil
	}, false)
}

// AdminSetDebtDueDate moves the due date of an active debt.
func (e *Engine) AdminSetDebtDueDate(ctx context.Context, actor Actor, debtID int64, due domain.DueDate) (Result, error) {
	const op = "admin_set_debt_due_date"
	reqID := uuid.NewString()
	if err := e.authorize(reqID, op, actor); err != nil {
		return Result{}, err
	}
	if !due.Valid() {
		return Result{}, e.reject(reqID, op, actor.ID, ErrInvalidDate)
	}
	return e.editDebt(ctx, reqID, actor, op, debtID, func(d *domain.Debt) error {
		d.DueDate = due
		return nil
	}, false)
}

// editDebt loads a debt, applies change and stores it. Returned debts are
// immutable unless allowReturned is set, in which case they are left as is.
func (e *Engine) editDebt(ctx context.Context, reqID string, actor Actor, op string, debtID int64, change func(*domain.Debt) error, allowReturned bool) (Result, error) {
	var res Result
	var before domain.Debt
	var changed bool
	err := e.run(ctx, op, true, func(ctx context.Context, tx Tx) error {
		debt, err := tx.GetDebt(ctx, debtID)
		if err != nil {
			return err
		}
		updated := debt
		changed = false
		if debt.Active() {
			if err := change(&updated); err != nil {
				return err
			}
			if err := tx.UpdateDebt(ctx, updated); err != nil {
				return err
			}
			changed = true
		} else if !allowReturned {
			return ErrDebtReturned
		}
		before = debt
		res = Result{
			RequestID: reqID,
			Op:        op,
			MemberID:  debt.MemberID,
			Amount:    updated.Amount,
			Debt:      &updated,
		}
		return nil
	})
	if err != nil {
		return Result{}, e.reject(reqID, op, actor.ID, err)
	}
	if changed {
		e.audit(auditEntry{
			RequestID: reqID, Op: op, ActorID: actor.ID, MemberID: before.MemberID, DebtID: debtID,
			Before: debtFields(before),
			After:  debtFields(*res.Debt),
		})
	}
	return res, nil
}

func debtFields(d domain.Debt) fields {
	return fields{"amount": money(d.Amount), "due_date": d.DueDate.String(), "status": string(d.Status)}
}
