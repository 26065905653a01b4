// Package notifier — мост между доменной моделью сообщения и Bot API:
// реализует notify.Transport для сендеров и updates.Gateway для роутера
// диалога. Конвертация клавиатур происходит только здесь; домен не знает
// про формат reply_markup.
package notifier

import (
	"context"

	"telegram-planner/internal/adapters/botapi"
	"telegram-planner/internal/domain/notify"
	"telegram-planner/internal/domain/updates"
)

// Notifier шлёт доменные сообщения через клиент Bot API.
type Notifier struct {
	client *botapi.Client
}

var (
	_ notify.Transport = (*Notifier)(nil)
	_ updates.Gateway  = (*Notifier)(nil)
)

// New оборачивает клиента Bot API.
func New(client *botapi.Client) *Notifier {
	return &Notifier{client: client}
}

// Send отправляет сообщение и возвращает message_id — он нужен сверке
// для последующих перерисовок клавиатуры.
func (n *Notifier) Send(ctx context.Context, chatID int64, msg notify.Message) (int, error) {
	sent, err := n.client.SendMessage(ctx, botapi.SendMessageRequest{
		ChatID:      chatID,
		Text:        msg.Text,
		ReplyMarkup: replyMarkup(msg),
	})
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// Edit правит текст и инлайн-клавиатуру отправленного сообщения.
// Reply-клавиатуру Bot API через edit не меняет, поэтому Menu/RemoveMenu
// здесь игнорируются.
func (n *Notifier) Edit(ctx context.Context, chatID int64, messageID int, msg notify.Message) error {
	return n.client.EditMessageText(ctx, botapi.EditMessageTextRequest{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        msg.Text,
		ReplyMarkup: inlineMarkup(msg.Inline),
	})
}

// AnswerCallback гасит «часики» на кнопке; непустой text показывается тостом.
func (n *Notifier) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return n.client.AnswerCallbackQuery(ctx, botapi.AnswerCallbackRequest{
		CallbackQueryID: callbackID,
		Text:            text,
	})
}

// replyMarkup выбирает клавиатуру сообщения: inline имеет приоритет,
// затем reply-меню, затем снятие меню.
func replyMarkup(msg notify.Message) any {
	switch {
	case len(msg.Inline) > 0:
		return inlineMarkup(msg.Inline)
	case len(msg.Menu) > 0:
		return menuMarkup(msg.Menu)
	case msg.RemoveMenu:
		return botapi.RemoveKeyboard()
	}
	return nil
}

func inlineMarkup(rows [][]notify.Button) *botapi.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}
	kb := make([][]botapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		line := make([]botapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			btn := botapi.InlineKeyboardButton{Text: b.Text}
			switch {
			case b.Callback != "":
				btn.CallbackData = b.Callback
			case b.URL != "":
				btn.URL = b.URL
			case b.WebApp != "":
				btn.WebApp = &botapi.WebAppInfo{URL: b.WebApp}
			}
			line = append(line, btn)
		}
		kb = append(kb, line)
	}
	return &botapi.InlineKeyboardMarkup{InlineKeyboard: kb}
}

func menuMarkup(rows [][]notify.MenuButton) *botapi.ReplyKeyboardMarkup {
	kb := make([][]botapi.KeyboardButton, 0, len(rows))
	for _, row := range rows {
		line := make([]botapi.KeyboardButton, 0, len(row))
		for _, b := range row {
			btn := botapi.KeyboardButton{Text: b.Text}
			if b.WebApp != "" {
				btn.WebApp = &botapi.WebAppInfo{URL: b.WebApp}
			}
			line = append(line, btn)
		}
		kb = append(kb, line)
	}
	return &botapi.ReplyKeyboardMarkup{Keyboard: kb, ResizeKeyboard: true}
}
