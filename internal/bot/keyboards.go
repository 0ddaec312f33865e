package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	btnMyBalance       = "👀 Мой баланс"
	btnPoolTotal       = "💰 Общий баланс"
	btnContribute      = "🎯 Внести в копилку"
	btnMyContributions = "💸 Мои взносы"
	btnBorrow          = "🍪 Взять в долг"
	btnMyDebts         = "🔔 Мои долги"
	btnRepay           = "💪 Вернуть долг"
	btnAdmin           = "🔐 Админка"

	btnMembers    = "👥 Список пользователей"
	btnSetBalance = "📊 Изменить баланс"
	btnSetPledge  = "📝 Изменить взнос"
	btnDebts      = "📋 Список долгов"
	btnEditDebt   = "✏️ Редактировать долг"
	btnBack       = "🔙 Назад"
)

func keyboard(rows ...[]string) tgbotapi.ReplyKeyboardMarkup {
	kbRows := make([][]tgbotapi.KeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
		for _, text := range row {
			buttons = append(buttons, tgbotapi.NewKeyboardButton(text))
		}
		kbRows = append(kbRows, tgbotapi.NewKeyboardButtonRow(buttons...))
	}
	kb := tgbotapi.NewReplyKeyboard(kbRows...)
	kb.ResizeKeyboard = true
	return kb
}

func mainKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return keyboard(
		[]string{btnMyBalance, btnPoolTotal},
		[]string{btnContribute, btnMyContributions},
		[]string{btnBorrow, btnMyDebts},
		[]string{btnRepay, btnAdmin},
	)
}

func adminKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return keyboard(
		[]string{btnMembers},
		[]string{btnSetBalance, btnSetPledge},
		[]string{btnDebts, btnEditDebt},
		[]string{btnBack},
	)
}
