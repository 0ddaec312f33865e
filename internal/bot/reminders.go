package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/lev1nzz/test-bot-kopilka/internal/domain"
)

// RunReminderWorker wakes up every interval and, once per local day after
// the configured hour, reminds members about debts that fall due soon.
func (h *Handler) RunReminderWorker(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.remind(ctx, h.now())
		}
	}
}

// remind sends the reminders of the local day of now. Each offset is sent at
// most once per day; an offset whose lookup failed is retried on the next tick.
func (h *Handler) remind(ctx context.Context, now time.Time) {
	local := now.In(h.loc)
	if local.Hour() < h.cfg.RemindHour {
		return
	}
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, h.loc)
	if !h.reminderDay.Equal(day) {
		h.reminderDay = day
		h.remindedDone = make(map[int]bool, len(h.cfg.RemindDaysBefore))
	}

	for _, offset := range h.cfg.RemindDaysBefore {
		if h.remindedDone[offset] {
			continue
		}
		due := domain.DueDateOf(day.AddDate(0, 0, offset))
		debts, err := h.ledger.DebtsDueOn(ctx, due)
		if err != nil {
			h.log.Error("reminder debts", "due_date", due.String(), "error", err)
			continue
		}
		for _, d := range debts {
			h.sendDM(d.MemberID, reminderText(d, offset))
		}
		h.remindedDone[offset] = true
		if len(debts) > 0 {
			h.log.Info("reminders sent", "due_date", due.String(), "count", len(debts))
		}
	}
}

func reminderText(d domain.Debt, offset int) string {
	if offset > 0 {
		return fmt.Sprintf("⏰ Напоминание: через %d дн. срок возврата долга #%d\n%s до %s\nВернуть: 'возвращаю %s за %s'",
			offset, d.ID, formatMoney(d.Amount), d.DueDate, formatMoney(d.Amount), d.DueDate)
	}
	return fmt.Sprintf("⏰ Сегодня срок возврата долга #%d\n%s до %s\nВернуть: 'возвращаю %s за %s'",
		d.ID, formatMoney(d.Amount), d.DueDate, formatMoney(d.Amount), d.DueDate)
}
