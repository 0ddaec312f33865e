package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/lev1nzz/test-bot-kopilka/internal/domain"
	"github.com/lev1nzz/test-bot-kopilka/internal/ledger"
)

const contributionsShown = 10

// handleButton serves the reply keyboard buttons. It reports false when text
// is not a button.
func (h *Handler) handleButton(ctx context.Context, chatID int64, actor ledger.Actor, text string) bool {
	switch text {
	case btnMyBalance:
		h.handleMyBalance(ctx, chatID, actor.ID)
	case btnPoolTotal:
		h.handlePoolTotal(ctx, chatID)
	case btnContribute:
		h.reply(chatID, "Чтобы внести деньги в копилку, отправьте сообщение в формате:\n"+
			"'вношу [сумма] за [мм.гггг]'\n\n"+
			"Например: 'вношу 3000 за 07.2023'\n"+
			"Или установите ежемесячный взнос:\n"+
			"'установить взнос [сумма]'\n"+
			"Например: 'установить взнос 3000'")
	case btnMyContributions:
		h.handleMyContributions(ctx, chatID, actor.ID)
	case btnBorrow:
		h.reply(chatID, "Чтобы взять деньги в долг, отправьте сообщение в формате:\n"+
			"'беру [сумма] до [дд.мм]'\n\n"+
			"Например: 'беру 500 до 15.07'")
	case btnMyDebts:
		h.handleMyDebts(ctx, chatID, actor.ID)
	case btnRepay:
		h.reply(chatID, "Чтобы вернуть долг, отправьте сообщение в формате:\n"+
			"'возвращаю [сумма] за [дд.мм]'\n\n"+
			"Например: 'возвращаю 500 за 15.07'")
	case btnBack:
		h.replyKeyboard(chatID, fmt.Sprintf("Главное меню, %s!", firstName(actor)), mainKeyboard())
	case btnAdmin, btnMembers, btnSetBalance, btnSetPledge, btnDebts, btnEditDebt:
		if !h.ledger.IsAdmin(actor.ID) {
			h.reply(chatID, msgNoAccess)
			return true
		}
		h.handleAdminButton(ctx, chatID, actor, text)
	default:
		return false
	}
	return true
}

func (h *Handler) handleAdminButton(ctx context.Context, chatID int64, actor ledger.Actor, text string) {
	switch text {
	case btnAdmin:
		h.replyKeyboard(chatID, "👮 Админ-панель:\nВыберите действие:", adminKeyboard())
	case btnMembers:
		h.handleMembers(ctx, chatID, actor)
	case btnSetBalance:
		h.reply(chatID, "Чтобы изменить баланс пользователя, отправьте сообщение в формате:\n"+
			"'баланс [ID пользователя] [новая сумма]'\n\n"+
			"Например: 'баланс 123456789 5000'")
	case btnSetPledge:
		h.reply(chatID, "Чтобы изменить ежемесячный взнос пользователя, отправьте сообщение в формате:\n"+
			"'взнос [ID пользователя] [новая сумма]'\n\n"+
			"Например: 'взнос 123456789 3000'")
	case btnDebts:
		h.handleAllDebts(ctx, chatID, actor)
	case btnEditDebt:
		h.reply(chatID, "Редактирование долга:\n"+
			"1. Чтобы закрыть долг, отправьте 'закрыть [ID долга]'\n"+
			"2. Чтобы изменить сумму, отправьте 'долг [ID долга] [новая сумма]'\n"+
			"3. Чтобы изменить дату, отправьте 'дата [ID долга] [новая дата в формате дд.мм]'\n\n"+
			"Примеры:\n'закрыть 1'\n'долг 1 1500'\n'дата 1 30.12'")
	}
}

func (h *Handler) handleMyBalance(ctx context.Context, chatID, memberID int64) {
	acct, err := h.ledger.Account(ctx, memberID)
	if err != nil {
		h.log.Error("account", "member_id", memberID, "error", err)
		h.reply(chatID, msgStoreError)
		return
	}
	h.reply(chatID, fmt.Sprintf("Ваш текущий баланс: %s\nЕжемесячный взнос: %s",
		formatMoney(acct.Balance), formatMoney(acct.MonthlyContribution)))
}

func (h *Handler) handlePoolTotal(ctx context.Context, chatID int64) {
	total, err := h.ledger.PoolTotal(ctx)
	if err != nil {
		h.log.Error("pool total", "error", err)
		h.reply(chatID, msgStoreError)
		return
	}
	h.reply(chatID, "Общий баланс всех пользователей: "+formatMoney(total))
}

func (h *Handler) handleMyContributions(ctx context.Context, chatID, memberID int64) {
	acct, list, err := h.ledger.Contributions(ctx, memberID, contributionsShown)
	if err != nil {
		h.log.Error("contributions", "member_id", memberID, "error", err)
		h.reply(chatID, msgStoreError)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Ваш текущий ежемесячный взнос: %s\n\n", formatMoney(acct.MonthlyContribution))
	fmt.Fprintf(&b, "Последние %d взносов:\n", contributionsShown)
	if len(list) == 0 {
		b.WriteString("У вас пока нет взносов.")
	}
	for _, c := range list {
		fmt.Fprintf(&b, "%s за %s (внесено %s)\n",
			formatMoney(c.Amount), c.Period, c.CreatedAt.In(h.loc).Format("2006-01-02"))
	}
	h.reply(chatID, b.String())
}

func (h *Handler) handleMyDebts(ctx context.Context, chatID, memberID int64) {
	debts, err := h.ledger.ActiveDebts(ctx, memberID)
	if err != nil {
		h.log.Error("active debts", "member_id", memberID, "error", err)
		h.reply(chatID, msgStoreError)
		return
	}
	if len(debts) == 0 {
		h.reply(chatID, "У вас нет активных долгов.")
		return
	}

	var b strings.Builder
	b.WriteString("Ваши активные долги:\n\n")
	for _, d := range debts {
		fmt.Fprintf(&b, "Сумма: %s\nДата возврата: %s\nДата взятия: %s\n\n",
			formatMoney(d.Amount), d.DueDate, d.CreatedAt.In(h.loc).Format("2006-01-02 15:04"))
	}
	h.reply(chatID, b.String())
}

func (h *Handler) handleMembers(ctx context.Context, chatID int64, actor ledger.Actor) {
	members, err := h.ledger.Members(ctx, actor)
	if err != nil {
		h.log.Error("list members", "error", err)
		h.reply(chatID, msgStoreError)
		return
	}

	var b strings.Builder
	b.WriteString("👥 Список пользователей:\n\n")
	for _, m := range members {
		fmt.Fprintf(&b, "ID: %d\nИмя: %s\nЮзернейм: %s\nБаланс: %s\nДата регистрации: %s\n\n",
			m.ID,
			strings.TrimSpace(m.FirstName+" "+m.LastName),
			safeUsername(m.Username),
			formatMoney(m.Account.Balance),
			m.JoinedAt.In(h.loc).Format("2006-01-02 15:04"),
		)
	}
	h.reply(chatID, b.String())
}

func (h *Handler) handleAllDebts(ctx context.Context, chatID int64, actor ledger.Actor) {
	entries, err := h.ledger.Debts(ctx, actor)
	if err != nil {
		h.log.Error("list debts", "error", err)
		h.reply(chatID, msgStoreError)
		return
	}
	if len(entries) == 0 {
		h.reply(chatID, "Долгов пока нет.")
		return
	}

	var b strings.Builder
	b.WriteString("📋 Список всех долгов:\n\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "ID долга: %d\nПользователь: %s (ID: %d)\nСумма: %s\nДата возврата: %s\nСтатус: %s\n\n",
			e.Debt.ID,
			e.Member.DisplayName(),
			e.Debt.MemberID,
			formatMoney(e.Debt.Amount),
			e.Debt.DueDate,
			statusText(e.Debt),
		)
	}
	h.reply(chatID, b.String())
}

func statusText(d domain.Debt) string {
	if d.Active() {
		return "⚠️ Активен"
	}
	return "✅ Погашен"
}

func safeUsername(u string) string {
	if u == "" {
		return "нет"
	}
	return "@" + u
}
