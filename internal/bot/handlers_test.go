package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lev1nzz/test-bot-kopilka/internal/config"
	"github.com/lev1nzz/test-bot-kopilka/internal/domain"
	"github.com/lev1nzz/test-bot-kopilka/internal/ledger"
	"github.com/lev1nzz/test-bot-kopilka/internal/logger"
	"github.com/lev1nzz/test-bot-kopilka/internal/repo/memory"
)

const (
	memberID int64 = 11
	adminID  int64 = 99
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, f.err
}

func (f *fakeSender) last(t *testing.T) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

func (f *fakeSender) reset() {
	f.mu.Lock()
	f.sent = nil
	f.mu.Unlock()
}

func newTestHandler(t *testing.T) (*Handler, *fakeSender) {
	t.Helper()
	return newTestHandlerWithStore(t, memory.New())
}

func newTestHandlerWithStore(t *testing.T, store ledger.Store) (*Handler, *fakeSender) {
	t.Helper()
	cfg := config.Config{
		Timezone:         "UTC",
		RemindHour:       10,
		RemindDaysBefore: []int{1, 0},
	}
	engine := ledger.New(store,
		ledger.WithAdmins([]int64{adminID}),
		ledger.WithClock(func() time.Time { return time.Date(2024, 7, 1, 9, 30, 0, 0, time.UTC) }),
	)
	sender := &fakeSender{}
	return NewHandler(sender, cfg, engine, logger.Nop()), sender
}

func update(from int64, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		From: &tgbotapi.User{ID: from, FirstName: "Ivan", UserName: "ivan"},
		Chat: &tgbotapi.Chat{ID: from, Type: "private"},
		Text: text,
	}
	if strings.HasPrefix(text, "/") {
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(strings.Fields(text)[0])}}
	}
	return tgbotapi.Update{Message: msg}
}

func send(t *testing.T, h *Handler, s *fakeSender, from int64, text string) string {
	t.Helper()
	h.HandleUpdate(context.Background(), update(from, text))
	return s.last(t).Text
}

func TestStartShowsMainKeyboard(t *testing.T) {
	h, s := newTestHandler(t)
	h.HandleUpdate(context.Background(), update(memberID, "/start"))

	msg := s.last(t)
	assert.Contains(t, msg.Text, "Привет, Ivan")
	kb, ok := msg.ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	require.True(t, ok)
	assert.True(t, kb.ResizeKeyboard)
	require.Len(t, kb.Keyboard, 4)
	assert.Equal(t, btnMyBalance, kb.Keyboard[0][0].Text)
	assert.Equal(t, btnAdmin, kb.Keyboard[3][1].Text)
}

func TestIgnoresGroupChats(t *testing.T) {
	h, s := newTestHandler(t)
	upd := update(memberID, btnPoolTotal)
	upd.Message.Chat.Type = "group"
	h.HandleUpdate(context.Background(), upd)
	assert.Empty(t, s.sent)
}

func TestMemberFlow(t *testing.T) {
	h, s := newTestHandler(t)

	assert.Equal(t, "Вы внесли 3000.00 за 07.2023. Ваш текущий баланс: 3000.00",
		send(t, h, s, memberID, "Вношу 3000 за 07.2023"))
	assert.Equal(t, "Вы взяли в долг 500.00 до 15.07. Ваш текущий баланс: 2500.00",
		send(t, h, s, memberID, "беру 500 до 15.07"))
	assert.Equal(t, "Общий баланс всех пользователей: 2500.00",
		send(t, h, s, memberID, btnPoolTotal))

	debts := send(t, h, s, memberID, btnMyDebts)
	assert.Contains(t, debts, "Сумма: 500.00")
	assert.Contains(t, debts, "Дата возврата: 15.07")

	assert.Equal(t, "Вы вернули 200.00 за 15.07. Ваш текущий баланс: 2700.00\nОсталось вернуть: 300.00",
		send(t, h, s, memberID, "возвращаю 200 за 15.07"))
	assert.Equal(t, "Сумма возврата превышает сумму долга (300.00)",
		send(t, h, s, memberID, "возвращаю 301 за 15.07"))
	assert.Equal(t, "Не найден активный долг с указанной датой возврата.",
		send(t, h, s, memberID, "возвращаю 1 за 16.07"))

	assert.Equal(t, "Установлен ежемесячный взнос: 1500.00",
		send(t, h, s, memberID, "установить взнос 1500"))
	assert.Equal(t, "Ваш текущий баланс: 2700.00\nЕжемесячный взнос: 1500.00",
		send(t, h, s, memberID, btnMyBalance))

	contribs := send(t, h, s, memberID, btnMyContributions)
	assert.Contains(t, contribs, "Ваш текущий ежемесячный взнос: 1500.00")
	assert.Contains(t, contribs, "3000.00 за 07.2023 (внесено 2024-07-01)")
}

func TestBorrowAbovePool(t *testing.T) {
	h, s := newTestHandler(t)
	send(t, h, s, memberID, "вношу 1000 за 07.2023")
	assert.Equal(t, "Недостаточно средств в общем балансе. Максимальная сумма для займа: 1000.00",
		send(t, h, s, adminID, "беру 1500 до 15.07"))
}

func TestParseErrorsReplyWithUsage(t *testing.T) {
	h, s := newTestHandler(t)

	assert.Equal(t, "Некорректный формат сообщения. Пример: 'беру 500 до 15.07'",
		send(t, h, s, memberID, "беру много до 15.07"))
	assert.Equal(t, "Некорректный формат сообщения. Пример: 'вношу 3000 за 07.2023'",
		send(t, h, s, memberID, "вношу 1e2000000000 за 07.2023"))
	assert.Equal(t, "Вы внесли 10.00 за 07.2023. Ваш текущий баланс: 10.00",
		send(t, h, s, memberID, "вношу 10 за 07.2023"))
	assert.Equal(t, msgUnknown, send(t, h, s, memberID, "привет"))
	// admin keywords stay hidden from members
	assert.Equal(t, msgUnknown, send(t, h, s, memberID, "баланс 1"))
	assert.Equal(t, "❌ Ошибка формата. Пример: 'баланс 123456789 5000'",
		send(t, h, s, adminID, "баланс 1"))
	assert.Equal(t, "❌ Ошибка формата. Примеры:\n'закрыть 1'\n'долг 1 1500'\n'дата 1 30.12'",
		send(t, h, s, adminID, "закрыть abc"))
}

func TestAdminButtonsRequireAdmin(t *testing.T) {
	h, s := newTestHandler(t)
	for _, btn := range []string{btnAdmin, btnMembers, btnDebts, btnEditDebt} {
		assert.Equal(t, msgNoAccess, send(t, h, s, memberID, btn), btn)
	}
	assert.Equal(t, msgNoAccess, send(t, h, s, memberID, "баланс 99 5000"))

	h.HandleUpdate(context.Background(), update(adminID, btnAdmin))
	kb, ok := s.last(t).ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	require.True(t, ok)
	assert.Equal(t, btnMembers, kb.Keyboard[0][0].Text)
	assert.Equal(t, btnBack, kb.Keyboard[3][0].Text)
}

func TestAdminFlow(t *testing.T) {
	h, s := newTestHandler(t)
	send(t, h, s, memberID, "вношу 1000 за 07.2023")
	send(t, h, s, memberID, "беру 400 до 15.07")

	assert.Equal(t, "✅ Баланс пользователя 11 изменен на -200.00",
		send(t, h, s, adminID, "/balance 11 -200"))
	assert.Equal(t, "Ваш текущий баланс: -200.00\nЕжемесячный взнос: 0.00",
		send(t, h, s, memberID, btnMyBalance))
	assert.Equal(t, "✅ Взнос пользователя 11 изменен на 3000.00",
		send(t, h, s, adminID, "взнос 11 3000"))

	list := send(t, h, s, adminID, btnDebts)
	assert.Contains(t, list, "ID долга: 1")
	assert.Contains(t, list, "Статус: ⚠️ Активен")

	assert.Equal(t, "✅ Дата долга 1 изменена на 30.12", send(t, h, s, adminID, "дата 1 30.12"))
	assert.Equal(t, "✅ Сумма долга 1 изменена на 1500.00", send(t, h, s, adminID, "долг 1 1500"))
	assert.Equal(t, "✅ Долг 1 помечен как погашенный", send(t, h, s, adminID, "закрыть 1"))
	assert.Equal(t, "❌ Долг 1 уже погашен", send(t, h, s, adminID, "долг 1 10"))
	assert.Equal(t, "❌ Долг с ID 7 не найден", send(t, h, s, adminID, "закрыть 7"))
	assert.Equal(t, "❌ Сумма не может быть отрицательной", send(t, h, s, adminID, "долг 1 -5"))

	members := send(t, h, s, adminID, btnMembers)
	assert.Contains(t, members, "ID: 11")
	assert.Contains(t, members, "Юзернейм: @ivan")
	assert.Contains(t, members, "Баланс: -200.00")
}

func TestSendFailureIsLoggedNotFatal(t *testing.T) {
	h, s := newTestHandler(t)
	s.err = errors.New("network down")
	h.HandleUpdate(context.Background(), update(memberID, btnPoolTotal))
	assert.Len(t, s.sent, 1)
}

func TestSplitMessage(t *testing.T) {
	block := strings.Repeat("я", 30) + "\n\n"
	text := strings.Repeat(block, 10)

	parts := splitMessage(text, 100)
	require.Greater(t, len(parts), 1)
	assert.Equal(t, text, strings.Join(parts, ""))
	for _, p := range parts {
		assert.LessOrEqual(t, len([]rune(p)), 100)
		assert.True(t, strings.HasSuffix(p, "\n\n") || p == parts[len(parts)-1])
	}

	assert.Equal(t, []string{"short"}, splitMessage("short", 100))
	long := strings.Repeat("x", 250)
	assert.Equal(t, []string{long[:100], long[100:200], long[200:]}, splitMessage(long, 100))
}

func TestReminders(t *testing.T) {
	h, s := newTestHandler(t)
	ctx := context.Background()
	send(t, h, s, memberID, "вношу 1000 за 07.2023")
	send(t, h, s, memberID, "беру 100 до 15.07")
	send(t, h, s, adminID, "беру 50 до 16.07")
	s.reset()

	// before the reminder hour nothing is sent
	h.remind(ctx, time.Date(2024, 7, 15, 9, 59, 0, 0, time.UTC))
	assert.Empty(t, s.sent)

	h.remind(ctx, time.Date(2024, 7, 15, 10, 0, 0, 0, time.UTC))
	require.Len(t, s.sent, 2)
	byChat := map[int64]string{}
	for _, m := range s.sent {
		byChat[m.ChatID] = m.Text
	}
	assert.Contains(t, byChat[adminID], "через 1 дн.")
	assert.Contains(t, byChat[memberID], "Сегодня срок возврата долга #1")
	assert.Contains(t, byChat[memberID], "'возвращаю 100.00 за 15.07'")

	// once per day
	h.remind(ctx, time.Date(2024, 7, 15, 18, 0, 0, 0, time.UTC))
	assert.Len(t, s.sent, 2)

	h.remind(ctx, time.Date(2024, 7, 16, 10, 5, 0, 0, time.UTC))
	assert.Len(t, s.sent, 3)
	assert.Equal(t, adminID, s.last(t).ChatID)
}

// brokenDueStore fails debt lookups for one due date.
type brokenDueStore struct {
	ledger.Store
	mu  sync.Mutex
	due *domain.DueDate
}

func (s *brokenDueStore) breakDue(due *domain.DueDate) {
	s.mu.Lock()
	s.due = due
	s.mu.Unlock()
}

func (s *brokenDueStore) InTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	return s.Store.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return fn(ctx, brokenDueTx{Tx: tx, store: s})
	})
}

type brokenDueTx struct {
	ledger.Tx
	store *brokenDueStore
}

func (t brokenDueTx) ListDebts(ctx context.Context, f ledger.DebtFilter) ([]domain.Debt, error) {
	t.store.mu.Lock()
	due := t.store.due
	t.store.mu.Unlock()
	if due != nil && f.Due != nil && *f.Due == *due {
		return nil, errors.New("disk I/O error")
	}
	return t.Tx.ListDebts(ctx, f)
}

func TestReminderFailureDoesNotRepeatSentOffsets(t *testing.T) {
	store := &brokenDueStore{Store: memory.New()}
	h, s := newTestHandlerWithStore(t, store)
	ctx := context.Background()
	send(t, h, s, memberID, "вношу 1000 за 07.2023")
	send(t, h, s, memberID, "беру 100 до 15.07")
	send(t, h, s, adminID, "беру 50 до 16.07")
	s.reset()

	store.breakDue(&domain.DueDate{Day: 15, Month: 7})
	h.remind(ctx, time.Date(2024, 7, 15, 10, 0, 0, 0, time.UTC))
	require.Len(t, s.sent, 1)
	assert.Equal(t, adminID, s.sent[0].ChatID)

	h.remind(ctx, time.Date(2024, 7, 15, 10, 1, 0, 0, time.UTC))
	assert.Len(t, s.sent, 1)

	store.breakDue(nil)
	h.remind(ctx, time.Date(2024, 7, 15, 10, 2, 0, 0, time.UTC))
	require.Len(t, s.sent, 2)
	assert.Equal(t, memberID, s.sent[1].ChatID)
	assert.Contains(t, s.sent[1].Text, "Сегодня срок возврата долга #1")

	h.remind(ctx, time.Date(2024, 7, 15, 18, 0, 0, 0, time.UTC))
	assert.Len(t, s.sent, 2)
}
