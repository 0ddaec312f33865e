package ledger

import (
	"fmt"
)

type fields map[string]string

type auditEntry struct {
	RequestID string
	Op        string
	ActorID   int64
	MemberID  int64
	DebtID    int64
	Before    fields
	After     fields
}

// audit records a committed mutation. Admin overrides are irreversible, so
// every change is logged with its before and after values.
func (e *Engine) audit(a auditEntry) {
	kv := []interface{}{
		"request_id", a.RequestID,
		"op", a.Op,
		"actor_id", a.ActorID,
	}
	if a.MemberID != 0 {
		kv = append(kv, "member_id", a.MemberID)
	}
	if a.DebtID != 0 {
		kv = append(kv, "debt_id", a.DebtID)
	}
	kv = append(kv, "before", map[string]string(a.Before), "after", map[string]string(a.After))
	e.log.Info("ledger audit", kv...)
}

// reject logs a failed operation and returns the error to hand to the caller.
// Store faults are wrapped with the operation name; domain errors pass as is.
func (e *Engine) reject(reqID, op string, actorID int64, err error) error {
	if IsDomain(err) {
		e.log.Warn("ledger rejected", "request_id", reqID, "op", op, "actor_id", actorID, "reason", err.Error())
		return err
	}
	e.log.Error("ledger failed", "request_id", reqID, "op", op, "actor_id", actorID, "error", err)
	return fmt.Errorf("ledger %s: %w", op, err)
}
