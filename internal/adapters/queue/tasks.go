// Package queue — адаптер очереди задач на asynq: постановка задач доставки
// с детерминированными идентификаторами, воркеры-обработчики и ежеминутный
// beat диспетчеров.
//
// Контракт с сендерами: обработчик возвращает ошибку только когда задачу надо
// повторить с backoff-ом; все остальные исходы (успех, постоянная ошибка,
// исчерпание попыток) уже зафиксированы в журнале и закрывают задачу.
package queue

import (
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/hibiken/asynq"
)

// Типы задач. Префикс notify: — доставка, dispatch: — ежеминутные проходы.
const (
	TypeMorning         = "notify:morning"
	TypeMorningReminder = "notify:morning_reminder"
	TypeEvening         = "notify:evening"
	TypeEveningReminder = "notify:evening_reminder"
	TypeCustom          = "notify:custom"

	TypeDispatchDaily  = "dispatch:daily"
	TypeDispatchCustom = "dispatch:custom"
)

// dailyPayload — задачи утреннего и вечернего каналов.
type dailyPayload struct {
	UserID int64  `json:"user_id"`
	Date   string `json:"date"`
}

// reminderPayload — повтор утреннего запроса; Attempt ведёт сендер, а не
// счётчик ретраев очереди: повторы — это отдельные задачи, а не ретраи.
type reminderPayload struct {
	UserID  int64  `json:"user_id"`
	Date    string `json:"date"`
	Attempt int    `json:"attempt"`
}

// eveningReminderPayload — повтор вечерней сверки. Offset входит в id задачи,
// чтобы +1ч и +3ч не склеились в одну.
type eveningReminderPayload struct {
	UserID int64  `json:"user_id"`
	Date   string `json:"date"`
}

// customPayload — одно срабатывание кастомного напоминания.
type customPayload struct {
	ReminderID int64 `json:"reminder_id"`
}

func marshalPayload(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// Полезные нагрузки — плоские структуры, маршалинг не падает.
		panic(err)
	}
	return data
}

func unmarshalPayload(t *asynq.Task, v any) error {
	if err := json.Unmarshal(t.Payload(), v); err != nil {
		return errors.Wrapf(err, "queue: decode %s payload", t.Type())
	}
	return nil
}

// Идентификаторы задач детерминированы по смысловому ключу: повторная
// постановка того же уведомления, пока первая задача не закрыта, отсекается
// самой очередью (ErrTaskIDConflict). После закрытия id можно использовать
// снова — повторный выстрел после админского reset проходит штатно.

func morningTaskID(userID int64, date string) string {
	return fmt.Sprintf("%s:%d:%s", TypeMorning, userID, date)
}

func morningReminderTaskID(userID int64, date string, attempt int) string {
	return fmt.Sprintf("%s:%d:%s:%d", TypeMorningReminder, userID, date, attempt)
}

func eveningTaskID(userID int64, date string) string {
	return fmt.Sprintf("%s:%d:%s", TypeEvening, userID, date)
}

func eveningReminderTaskID(userID int64, date string, offsetMinutes int) string {
	return fmt.Sprintf("%s:%d:%s:%d", TypeEveningReminder, userID, date, offsetMinutes)
}

func customTaskID(reminderID int64) string {
	return fmt.Sprintf("%s:%d", TypeCustom, reminderID)
}
