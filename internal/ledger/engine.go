// Package ledger applies parsed commands to the shared pool.
//
// Every operation runs inside a single Store transaction. Balance-mutating
// operations also hold the global ledger lock, so the pool-capacity check of
// Borrow and the writes that follow it can never interleave with another
// mutation. Serialization conflicts reported by the store are retried with
// exponential backoff and never surface as domain errors.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lev1nzz/test-bot-kopilka/internal/command"
	"github.com/lev1nzz/test-bot-kopilka/internal/domain"
	"github.com/lev1nzz/test-bot-kopilka/internal/lock"
	"github.com/lev1nzz/test-bot-kopilka/internal/logger"
)

const (
	poolLockKey       = "ledger:pool"
	defaultMaxRetries = 5
)

// Actor is whoever sent the command.
type Actor struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// Result summarizes a successful operation.
type Result struct {
	RequestID string
	Op        string
	MemberID  int64
	Amount    decimal.Decimal
	// Balance is the member's balance after the operation.
	Balance             decimal.Decimal
	MonthlyContribution decimal.Decimal
	Period              domain.Period
	// Debt is the state of the affected debt after the operation.
	Debt *domain.Debt
	// PoolTotal is the pool total after the operation, when it was read.
	PoolTotal decimal.Decimal
}

type Engine struct {
	store      Store
	admins     map[int64]struct{}
	locker     lock.Locker
	log        *logger.Logger
	now        func() time.Time
	maxRetries uint
	tracer     trace.Tracer
}

type Option func(*Engine)

// WithAdmins sets the privileged member ids.
func WithAdmins(ids []int64) Option {
	return func(e *Engine) {
		for _, id := range ids {
			e.admins[id] = struct{}{}
		}
	}
}

func WithLocker(l lock.Locker) Option { return func(e *Engine) { e.locker = l } }

func WithLogger(l *logger.Logger) Option { return func(e *Engine) { e.log = l } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithMaxRetries bounds how many times a conflicting transaction is retried.
func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxRetries = uint(n)
		}
	}
}

func New(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		admins:     make(map[int64]struct{}),
		locker:     lock.NewLocal(),
		log:        logger.Nop(),
		now:        time.Now,
		maxRetries: defaultMaxRetries,
		tracer:     otel.Tracer("github.com/lev1nzz/test-bot-kopilka/internal/ledger"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) IsAdmin(id int64) bool {
	_, ok := e.admins[id]
	return ok
}

// Apply executes cmd on behalf of actor.
func (e *Engine) Apply(ctx context.Context, actor Actor, cmd command.Command) (Result, error) {
	if cmd == nil {
		return Result{}, errors.New("nil command")
	}
	if cmd.Admin() && !e.IsAdmin(actor.ID) {
		e.log.Warn("ledger rejected", "op", cmd.Name(), "actor_id", actor.ID, "reason", ErrUnauthorized.Error())
		return Result{}, ErrUnauthorized
	}

	switch c := cmd.(type) {
	case command.Contribute:
		return e.Contribute(ctx, actor.ID, c.Amount, c.Period)
	case command.SetMonthlyContribution:
		return e.SetMonthlyContribution(ctx, actor.ID, c.Amount)
	case command.Borrow:
		return e.Borrow(ctx, actor.ID, c.Amount, c.Due)
	case command.Repay:
		return e.Repay(ctx, actor.ID, c.Amount, c.Due)
	case command.AdminSetBalance:
		return e.AdminSetBalance(ctx, actor, c.MemberID, c.Value)
	case command.AdminSetContribution:
		return e.AdminSetContribution(ctx, actor, c.MemberID, c.Value)
	case command.AdminCloseDebt:
		return e.AdminCloseDebt(ctx, actor, c.DebtID)
	case command.AdminSetDebtAmount:
		return e.AdminSetDebtAmount(ctx, actor, c.DebtID, c.Value)
	case command.AdminSetDebtDueDate:
		return e.AdminSetDebtDueDate(ctx, actor, c.DebtID, c.Due)
	default:
		return Result{}, fmt.Errorf("unsupported command %T", cmd)
	}
}

// Contribute appends a contribution and credits the member's balance.
func (e *Engine) Contribute(ctx context.Context, memberID int64, amount decimal.Decimal, period domain.Period) (Result, error) {
	const op = "contribute"
	reqID := uuid.NewString()
	if !amount.IsPositive() || !domain.AmountInRange(amount) {
		return Result{}, e.reject(reqID, op, memberID, ErrInvalidAmount)
	}
	if !period.Valid() {
		return Result{}, e.reject(reqID, op, memberID, ErrInvalidDate)
	}

	var res Result
	var before decimal.Decimal
	err := e.run(ctx, op, true, func(ctx context.Context, tx Tx) error {
		acct, err := tx.GetAccount(ctx, memberID)
		if err != nil {
			return err
		}
		if _, err := tx.AddContribution(ctx, domain.Contribution{
			MemberID:  memberID,
			Amount:    amount,
			Period:    period,
			CreatedAt: e.now(),
		}); err != nil {
			return err
		}
		after := acct.Balance.Add(amount)
		if err := tx.SetBalance(ctx, memberID, after); err != nil {
			return err
		}
		before = acct.Balance
		res = Result{
			RequestID:           reqID,
			Op:                  op,
			MemberID:            memberID,
			Amount:              amount,
			Balance:             after,
			MonthlyContribution: acct.MonthlyContribution,
			Period:              period,
		}
		return nil
	})
	if err != nil {
		return Result{}, e.reject(reqID, op, memberID, err)
	}
	e.audit(auditEntry{
		RequestID: reqID, Op: op, ActorID: memberID, MemberID: memberID,
		Before: fields{"balance": money(before)},
		After:  fields{"balance": money(res.Balance), "amount": money(amount), "period": period.String()},
	})
	return res, nil
}

// SetMonthlyContribution overwrites the member's standing pledge. No bounds
// are enforced: the pledge is informational and never charged.
func (e *Engine) SetMonthlyContribution(ctx context.Context, memberID int64, amount decimal.Decimal) (Result, error) {
	const op = "set_monthly_contribution"
	reqID := uuid.NewString()
	if !domain.AmountInRange(amount) {
		return Result{}, e.reject(reqID, op, memberID, ErrInvalidAmount)
	}

	var res Result
	var before decimal.Decimal
	err := e.run(ctx, op, true, func(ctx context.Context, tx Tx) error {
		acct, err := tx.GetAccount(ctx, memberID)
		if err != nil {
			return err
		}
		if err := tx.SetMonthlyContribution(ctx, memberID, amount); err != nil {
			return err
		}
		before = acct.MonthlyContribution
		res = Result{
			RequestID:           reqID,
			Op:                  op,
			MemberID:            memberID,
			Amount:              amount,
			Balance:             acct.Balance,
			MonthlyContribution: amount,
		}
		return nil
	})
	if err != nil {
		return Result{}, e.reject(reqID, op, memberID, err)
	}
	e.audit(auditEntry{
		RequestID: reqID, Op: op, ActorID: memberID, MemberID: memberID,
		Before: fields{"monthly_contribution": money(before)},
		After:  fields{"monthly_contribution": money(amount)},
	})
	return res, nil
}

// Borrow lends amount from the pool. The capacity check uses the pool total
// read inside the same transaction; the borrower's own balance is debited and
// may go negative.
func (e *Engine) Borrow(ctx context.Context, memberID int64, amount decimal.Decimal, due domain.DueDate) (Result, error) {
	const op = "borrow"
	reqID := uuid.NewString()
	if !amount.IsPositive() || !domain.AmountInRange(amount) {
		return Result{}, e.reject(reqID, op, memberID, ErrInvalidAmount)
	}
	if !due.Valid() {
		return Result{}, e.reject(reqID, op, memberID, ErrInvalidDate)
	}

	var res Result
	var before, poolBefore decimal.Decimal
	err := e.run(ctx, op, true, func(ctx context.Context, tx Tx) error {
		acct, err := tx.GetAccount(ctx, memberID)
		if err != nil {
			return err
		}
		pool, err := tx.PoolTotal(ctx)
		if err != nil {
			return err
		}
		if amount.GreaterThan(pool) {
			return &InsufficientPoolError{Available: pool}
		}
		debt := domain.Debt{
			MemberID:  memberID,
			Amount:    amount,
			DueDate:   due,
			Status:    domain.DebtActive,
			CreatedAt: e.now(),
		}
		id, err := tx.CreateDebt(ctx, debt)
		if err != nil {
			return err
		}
		debt.ID = id
		after := acct.Balance.Sub(amount)
		if err := tx.SetBalance(ctx, memberID, after); err != nil {
			return err
		}
		before, poolBefore = acct.Balance, pool
		res = Result{
			RequestID:           reqID,
			Op:                  op,
			MemberID:            memberID,
			Amount:              amount,
			Balance:             after,
			MonthlyContribution: acct.MonthlyContribution,
			Debt:                &debt,
			PoolTotal:           pool.Sub(amount),
		}
		return nil
	})
	if err != nil {
		return Result{}, e.reject(reqID, op, memberID, err)
	}
	e.audit(auditEntry{
		RequestID: reqID, Op: op, ActorID: memberID, MemberID: memberID, DebtID: res.Debt.ID,
		Before: fields{"balance": money(before), "pool_total": money(poolBefore)},
		After: fields{
			"balance":    money(res.Balance),
			"pool_total": money(res.PoolTotal),
			"debt":       money(amount),
			"due_date":   due.String(),
		},
	})
	return res, nil
}

// Repay pays back the member's active debt due on due. When several debts
// share the due date the one with the lowest id is repaid first.
func (e *Engine) Repay(ctx context.Context, memberID int64, amount decimal.Decimal, due domain.DueDate) (Result, error) {
	const op = "repay"
	reqID := uuid.NewString()
	if !amount.IsPositive() || !domain.AmountInRange(amount) {
		return Result{}, e.reject(reqID, op, memberID, ErrInvalidAmount)
	}
	if !due.Valid() {
		return Result{}, e.reject(reqID, op, memberID, ErrInvalidDate)
	}

	var res Result
	var before domain.Debt
	var balanceBefore decimal.Decimal
	err := e.run(ctx, op, true, func(ctx context.Context, tx Tx) error {
		acct, err := tx.GetAccount(ctx, memberID)
		if err != nil {
			return err
		}
		debt, err := tx.FindActiveDebt(ctx, memberID, due)
		if err != nil {
			return err
		}
		if amount.GreaterThan(debt.Amount) {
			return &OverRepaymentError{Remaining: debt.Amount}
		}
		updated := debt
		if amount.Equal(debt.Amount) {
			updated.Status = domain.DebtReturned
		} else {
			updated.Amount = debt.Amount.Sub(amount)
		}
		if err := tx.UpdateDebt(ctx, updated); err != nil {
			return err
		}
		after := acct.Balance.Add(amount)
		if err := tx.SetBalance(ctx, memberID, after); err != nil {
			return err
		}
		before, balanceBefore = debt, acct.Balance
		res = Result{
			RequestID:           reqID,
			Op:                  op,
			MemberID:            memberID,
			Amount:              amount,
			Balance:             after,
			MonthlyContribution: acct.MonthlyContribution,
			Debt:                &updated,
		}
		return nil
	})
	if err != nil {
		return Result{}, e.reject(reqID, op, memberID, err)
	}
	e.audit(auditEntry{
		RequestID: reqID, Op: op, ActorID: memberID, MemberID: memberID, DebtID: before.ID,
		Before: fields{"balance": money(balanceBefore), "debt": money(before.Amount), "status": string(before.Status)},
		After:  fields{"balance": money(res.Balance), "debt": money(res.Debt.Amount), "status": string(res.Debt.Status)},
	})
	return res, nil
}

// run executes fn in a store transaction, retrying serialization conflicts.
// Mutating operations additionally hold the pool lock.
func (e *Engine) run(ctx context.Context, op string, mutate bool, fn func(ctx context.Context, tx Tx) error) error {
	ctx, span := e.tracer.Start(ctx, "ledger."+op, trace.WithAttributes(attribute.Bool("ledger.mutate", mutate)))
	defer span.End()

	attempts := 0
	attempt := func() (struct{}, error) {
		attempts++
		err := e.store.InTx(ctx, fn)
		switch {
		case err == nil:
			return struct{}{}, nil
		case errors.Is(err, ErrConflict):
			e.log.Debug("ledger conflict, retrying", "op", op, "attempt", attempts, "error", err)
			return struct{}{}, err
		default:
			return struct{}{}, backoff.Permanent(err)
		}
	}

	exec := func(ctx context.Context) error {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 5 * time.Millisecond
		b.MaxInterval = 200 * time.Millisecond
		_, err := backoff.Retry(ctx, attempt,
			backoff.WithBackOff(b),
			backoff.WithMaxTries(e.maxRetries+1),
		)
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Unwrap()
		}
		return err
	}

	var err error
	if mutate {
		err = e.locker.WithLock(ctx, poolLockKey, exec)
	} else {
		err = exec(ctx)
	}
	span.SetAttributes(attribute.Int("ledger.attempts", attempts))
	if err != nil && !IsDomain(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }
