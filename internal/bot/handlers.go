package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"github.com/lev1nzz/test-bot-kopilka/internal/command"
	"github.com/lev1nzz/test-bot-kopilka/internal/config"
	"github.com/lev1nzz/test-bot-kopilka/internal/ledger"
	"github.com/lev1nzz/test-bot-kopilka/internal/logger"
)

// Sender is the part of *tgbotapi.BotAPI the handler needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Handler struct {
	api    Sender
	cfg    config.Config
	ledger *ledger.Engine
	log    *logger.Logger
	loc    *time.Location
	now    func() time.Time

	// local midnight of the day being reminded and the offsets already sent
	// for it
	reminderDay  time.Time
	remindedDone map[int]bool
}

func NewHandler(api Sender, cfg config.Config, l *ledger.Engine, log *logger.Logger) *Handler {
	return &Handler{
		api:    api,
		cfg:    cfg,
		ledger: l,
		log:    log,
		loc:    cfg.Location(),
		now:    time.Now,
	}
}

func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil || msg.From == nil {
		return
	}
	// работаем только в личке
	if !msg.Chat.IsPrivate() {
		return
	}

	actor := ledger.Actor{
		ID:        msg.From.ID,
		Username:  msg.From.UserName,
		FirstName: msg.From.FirstName,
		LastName:  msg.From.LastName,
	}
	if _, _, err := h.ledger.Register(ctx, actor); err != nil {
		h.log.Error("register member", "member_id", actor.ID, "error", err)
		h.reply(msg.Chat.ID, msgStoreError)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if msg.IsCommand() && msg.Command() == "start" {
		h.replyKeyboard(msg.Chat.ID, fmt.Sprintf(
			"👋 Привет, %s! Я модератор копилки.\n📲 Используй кнопки ниже для взаимодействия:",
			firstName(actor),
		), mainKeyboard())
		return
	}

	if h.handleButton(ctx, msg.Chat.ID, actor, text) {
		return
	}
	h.handleCommand(ctx, msg.Chat.ID, actor, text)
}

// handleCommand parses free text and applies it to the ledger.
func (h *Handler) handleCommand(ctx context.Context, chatID int64, actor ledger.Actor, text string) {
	cmd, err := command.Parse(text)
	if err != nil {
		h.reply(chatID, h.parseErrorText(actor, err))
		return
	}

	res, err := h.ledger.Apply(ctx, actor, cmd)
	if err != nil {
		h.reply(chatID, h.ledgerErrorText(cmd, err))
		return
	}
	h.reply(chatID, resultText(cmd, res))
}

func (h *Handler) parseErrorText(actor ledger.Actor, err error) string {
	var pe *command.ParseError
	if !errors.As(err, &pe) || pe.Kind == command.Unrecognized {
		return msgUnknown
	}
	if pe.AdminOnly() {
		if !h.ledger.IsAdmin(actor.ID) {
			return msgUnknown
		}
		if pe.Usage == command.UsageDebtEdit {
			return "❌ Ошибка формата. Примеры:\n" + pe.Usage
		}
		return "❌ Ошибка формата. Пример: " + pe.Usage
	}
	return "Некорректный формат сообщения. Пример: " + pe.Usage
}

func (h *Handler) ledgerErrorText(cmd command.Command, err error) string {
	var (
		ip   *ledger.InsufficientPoolError
		over *ledger.OverRepaymentError
	)
	switch {
	case errors.As(err, &ip):
		return "Недостаточно средств в общем балансе. Максимальная сумма для займа: " + formatMoney(ip.Available)
	case errors.As(err, &over):
		return fmt.Sprintf("Сумма возврата превышает сумму долга (%s)", formatMoney(over.Remaining))
	case errors.Is(err, ledger.ErrNoMatchingDebt):
		return "Не найден активный долг с указанной датой возврата."
	case errors.Is(err, ledger.ErrDebtNotFound):
		return fmt.Sprintf("❌ Долг с ID %d не найден", debtID(cmd))
	case errors.Is(err, ledger.ErrDebtReturned):
		return fmt.Sprintf("❌ Долг %d уже погашен", debtID(cmd))
	case errors.Is(err, ledger.ErrMemberNotFound):
		return "❌ Пользователь не найден. Он должен сначала написать боту /start"
	case errors.Is(err, ledger.ErrNegativeAmount):
		return "❌ Сумма не может быть отрицательной"
	case errors.Is(err, ledger.ErrUnauthorized):
		return msgNoAccess
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrInvalidDate):
		return "Некорректный формат сообщения."
	}
	h.log.Error("apply command", "op", cmd.Name(), "error", err)
	return msgStoreError
}

func debtID(cmd command.Command) int64 {
	switch c := cmd.(type) {
	case command.AdminCloseDebt:
		return c.DebtID
	case command.AdminSetDebtAmount:
		return c.DebtID
	case command.AdminSetDebtDueDate:
		return c.DebtID
	}
	return 0
}

func resultText(cmd command.Command, res ledger.Result) string {
	switch c := cmd.(type) {
	case command.Contribute:
		return fmt.Sprintf("Вы внесли %s за %s. Ваш текущий баланс: %s", formatMoney(c.Amount), c.Period, formatMoney(res.Balance))
	case command.SetMonthlyContribution:
		return "Установлен ежемесячный взнос: " + formatMoney(res.MonthlyContribution)
	case command.Borrow:
		return fmt.Sprintf("Вы взяли в долг %s до %s. Ваш текущий баланс: %s", formatMoney(c.Amount), c.Due, formatMoney(res.Balance))
	case command.Repay:
		text := fmt.Sprintf("Вы вернули %s за %s. Ваш текущий баланс: %s", formatMoney(c.Amount), c.Due, formatMoney(res.Balance))
		if res.Debt != nil && res.Debt.Active() {
			text += fmt.Sprintf("\nОсталось вернуть: %s", formatMoney(res.Debt.Amount))
		}
		return text
	case command.AdminSetBalance:
		return fmt.Sprintf("✅ Баланс пользователя %d изменен на %s", c.MemberID, formatMoney(c.Value))
	case command.AdminSetContribution:
		return fmt.Sprintf("✅ Взнос пользователя %d изменен на %s", c.MemberID, formatMoney(c.Value))
	case command.AdminCloseDebt:
		return fmt.Sprintf("✅ Долг %d помечен как погашенный", c.DebtID)
	case command.AdminSetDebtAmount:
		if c.Value.IsZero() {
			return fmt.Sprintf("✅ Долг %d помечен как погашенный", c.DebtID)
		}
		return fmt.Sprintf("✅ Сумма долга %d изменена на %s", c.DebtID, formatMoney(c.Value))
	case command.AdminSetDebtDueDate:
		return fmt.Sprintf("✅ Дата долга %d изменена на %s", c.DebtID, c.Due)
	}
	return "✅ Готово"
}

const (
	msgUnknown    = "❌ Неизвестная команда"
	msgNoAccess   = "🚫 У вас нет прав доступа к админ-панели"
	msgStoreError = "❌ Ошибка базы данных, попробуйте позже"
)

// Telegram rejects messages longer than this many characters.
const maxMessageLen = 4096

func (h *Handler) reply(chatID int64, text string) {
	for _, part := range splitMessage(text, maxMessageLen) {
		h.send(tgbotapi.NewMessage(chatID, part))
	}
}

// splitMessage cuts text into parts of at most limit runes, preferring to cut
// between blank-line separated blocks.
func splitMessage(text string, limit int) []string {
	var parts []string
	for utf8.RuneCountInString(text) > limit {
		cut := len(string([]rune(text)[:limit]))
		if i := strings.LastIndex(text[:cut], "\n\n"); i > 0 {
			cut = i + 2
		}
		parts = append(parts, text[:cut])
		text = text[cut:]
	}
	return append(parts, text)
}

func (h *Handler) replyKeyboard(chatID int64, text string, kb tgbotapi.ReplyKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = kb
	h.send(msg)
}

func (h *Handler) sendDM(telegramID int64, text string) {
	h.send(tgbotapi.NewMessage(telegramID, text))
}

func (h *Handler) send(msg tgbotapi.MessageConfig) {
	if _, err := h.api.Send(msg); err != nil {
		h.log.Warn("telegram send", "chat_id", msg.ChatID, "error", err)
	}
}

func formatMoney(d decimal.Decimal) string { return d.StringFixed(2) }

func firstName(a ledger.Actor) string {
	switch {
	case a.FirstName != "":
		return a.FirstName
	case a.Username != "":
		return "@" + a.Username
	}
	return "участник"
}
