package notify

import "context"

// Channel — канал ежедневного уведомления. Значения попадают в БД.
type Channel string

const (
	// ChannelMorning — утренний запрос плана.
	ChannelMorning Channel = "morning"
	// ChannelEvening — вечерняя сверка.
	ChannelEvening Channel = "evening"
)

// Outcome — исход попытки доставки в журнале.
type Outcome string

const (
	// OutcomeSent — доставка удалась; именно такие записи гасят повторную
	// отправку в тот же локальный день.
	OutcomeSent Outcome = "sent"
	// OutcomeFailed — доставка провалена окончательно (постоянная ошибка
	// или исчерпаны ретраи).
	OutcomeFailed Outcome = "failed"
	// OutcomeRetried — временный сбой, попытка будет повторена.
	OutcomeRetried Outcome = "retried"
)

// Payload — полезная нагрузка записи журнала. Date — локальная дата
// пользователя (YYYY-MM-DD), Attempt — номер попытки по счётчику ретраев
// очереди, PlanID заполняется вечерним каналом.
type Payload struct {
	Date    string `json:"date"`
	Attempt int    `json:"attempt"`
	PlanID  int64  `json:"plan_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Ledger — журнал доставок, он же идемпотентный страж «раз в локальный день».
// Запись sent делается только ПОСЛЕ успешного вызова транспорта; проверка
// дедупликации читает только sent и только поле date полезной нагрузки.
type Ledger interface {
	// WasSent — есть ли запись sent для (user, channel, date).
	WasSent(ctx context.Context, userID int64, ch Channel, date string) (bool, error)
	// Record дописывает запись журнала. Журнал append-only.
	Record(ctx context.Context, userID int64, ch Channel, outcome Outcome, p Payload) error
	// ResetSent удаляет записи sent для (user, channel, date) — единственный
	// поддерживаемый способ заставить канал выстрелить повторно в тот же день.
	// Возвращает число удалённых строк.
	ResetSent(ctx context.Context, userID int64, ch Channel, date string) (int64, error)
}
