// Package notify — исходящие уведомления планировщика: транспортно-независимая
// модель сообщения, рендер всех видов текстов и клавиатур, журнал доставки
// (идемпотентность «раз в локальный день») и сендеры каналов утро/вечер/кастом.
//
// Пакет не знает про Bot API: транспорт скрыт за интерфейсом Transport,
// постановка отложенных задач — за интерфейсом Enqueuer. Конкретные реализации
// живут в adapters и подключаются при сборке приложения.
package notify

import (
	"context"
	"time"
)

// Button — одна инлайн-кнопка. Заполняется ровно одно из действий:
// Callback (данные нажатия), URL или WebApp (ссылка на мини-приложение).
type Button struct {
	Text     string
	Callback string
	URL      string
	WebApp   string
}

// Message — готовое к отправке сообщение: текст плюс необязательная
// клавиатура. Inline и Menu взаимоисключающие; RemoveMenu снимает
// reply-клавиатуру у пользователя.
type Message struct {
	Text string

	// Inline — инлайн-клавиатура под сообщением, построчно.
	Inline [][]Button

	// Menu — reply-клавиатура вместо системной, построчно.
	Menu [][]MenuButton

	// RemoveMenu — убрать reply-клавиатуру.
	RemoveMenu bool
}

// MenuButton — кнопка reply-клавиатуры. Непустой WebApp превращает кнопку
// в запуск мини-приложения.
type MenuButton struct {
	Text   string
	WebApp string
}

// MenuRow — строка reply-меню из обычных текстовых кнопок.
func MenuRow(labels ...string) []MenuButton {
	row := make([]MenuButton, 0, len(labels))
	for _, l := range labels {
		row = append(row, MenuButton{Text: l})
	}
	return row
}

// Transport — контракт доставки. Send возвращает message_id отправленного
// сообщения. Классификация ошибки на временную/постоянную — забота
// вызывающего через инжектированный предикат (см. Sender).
type Transport interface {
	Send(ctx context.Context, chatID int64, msg Message) (int, error)
}

// Enqueuer — постановка отложенных задач доставки. Реализация поверх очереди
// задач гарантирует дедупликацию по детерминированному идентификатору
// (повторная постановка того же промпта на тот же день — no-op).
type Enqueuer interface {
	// EnqueueMorning ставит утренний промпт на (user, date). Дубликат — no-op.
	EnqueueMorning(ctx context.Context, userID int64, date string) error
	// EnqueueMorningReminder ставит attempt-е повторное утреннее напоминание
	// с задержкой delay.
	EnqueueMorningReminder(ctx context.Context, userID int64, date string, attempt int, delay time.Duration) error
	// EnqueueEvening ставит вечернюю сверку на (user, date). Дубликат — no-op.
	EnqueueEvening(ctx context.Context, userID int64, date string) error
	// EnqueueEveningReminder ставит повторную вечернюю сверку с задержкой delay.
	EnqueueEveningReminder(ctx context.Context, userID int64, date string, delay time.Duration) error
	// EnqueueCustom ставит отправку кастомного напоминания по id.
	EnqueueCustom(ctx context.Context, reminderID int64) error
}
