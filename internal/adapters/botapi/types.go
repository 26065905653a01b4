// Package botapi — клиент Telegram Bot API: wire-модель апдейтов и клавиатур,
// классификация ошибок на временные/постоянные и long-polling.
//
// Модель намеренно узкая: описаны только поля, которые читает или шлёт бот.
// Неизвестные поля JSON игнорируются декодером, так что расширения Bot API
// не ломают разбор.
package botapi

// Update — один элемент из getUpdates или тела webhook-а.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	EditedMessage *Message       `json:"edited_message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// Message — входящее или отправленное сообщение.
type Message struct {
	MessageID  int         `json:"message_id"`
	From       *User       `json:"from,omitempty"`
	Chat       Chat        `json:"chat"`
	Date       int64       `json:"date"`
	Text       string      `json:"text,omitempty"`
	WebAppData *WebAppData `json:"web_app_data,omitempty"`
}

// Chat — чат, в котором живёт сообщение. Для личных диалогов ID совпадает
// с id пользователя.
type Chat struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"`
	Username string `json:"username,omitempty"`
}

// User — отправитель апдейта.
type User struct {
	ID           int64  `json:"id"`
	IsBot        bool   `json:"is_bot"`
	FirstName    string `json:"first_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

// CallbackQuery — нажатие инлайн-кнопки. Message может отсутствовать,
// если исходное сообщение слишком старое.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}

// WebAppData — данные, присланные WebApp-ом через кнопку reply-клавиатуры.
type WebAppData struct {
	Data       string `json:"data"`
	ButtonText string `json:"button_text"`
}

// WebAppInfo — ссылка на WebApp для кнопок.
type WebAppInfo struct {
	URL string `json:"url"`
}

// InlineKeyboardMarkup — инлайн-клавиатура под сообщением.
type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

// InlineKeyboardButton — одна инлайн-кнопка. Заполняется ровно одно из
// действий: CallbackData, URL или WebApp.
type InlineKeyboardButton struct {
	Text         string      `json:"text"`
	CallbackData string      `json:"callback_data,omitempty"`
	URL          string      `json:"url,omitempty"`
	WebApp       *WebAppInfo `json:"web_app,omitempty"`
}

// ReplyKeyboardMarkup — обычная клавиатура вместо системной.
type ReplyKeyboardMarkup struct {
	Keyboard        [][]KeyboardButton `json:"keyboard"`
	ResizeKeyboard  bool               `json:"resize_keyboard,omitempty"`
	OneTimeKeyboard bool               `json:"one_time_keyboard,omitempty"`
}

// KeyboardButton — кнопка reply-клавиатуры.
type KeyboardButton struct {
	Text   string      `json:"text"`
	WebApp *WebAppInfo `json:"web_app,omitempty"`
}

// ReplyKeyboardRemove убирает reply-клавиатуру у пользователя.
type ReplyKeyboardRemove struct {
	RemoveKeyboard bool `json:"remove_keyboard"`
}

// RemoveKeyboard — готовое значение для снятия reply-клавиатуры.
func RemoveKeyboard() ReplyKeyboardRemove {
	return ReplyKeyboardRemove{RemoveKeyboard: true}
}
