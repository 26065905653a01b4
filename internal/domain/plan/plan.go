// Package plan — доменные модели дневного плана: план на локальную дату,
// задачи, отметки выполнения и агрегаты (процент дня, история за месяц,
// стрик). Хранилище скрыто за интерфейсом Store, чтобы postgres-адаптер
// и тесты подставляли свои реализации.
package plan

import (
	"context"
	"math"
	"time"
)

// Status — отметка выполнения задачи в вечерней сверке.
// Строковые метки стабильны: они хранятся в БД и входят в callback-данные кнопок.
type Status string

const (
	// StatusDone — задача выполнена полностью.
	StatusDone Status = "done"
	// StatusPartial — задача выполнена частично.
	StatusPartial Status = "partial"
	// StatusFailed — задача не выполнена.
	StatusFailed Status = "failed"
)

// Valid сообщает, входит ли значение в набор допустимых статусов.
func (s Status) Valid() bool {
	switch s {
	case StatusDone, StatusPartial, StatusFailed:
		return true
	}
	return false
}

// Weight — вклад статуса в процент выполнения дня:
// done — единица, partial — половина, failed — ноль.
func (s Status) Weight() float64 {
	switch s {
	case StatusDone:
		return 1
	case StatusPartial:
		return 0.5
	}
	return 0
}

// TaskStatus — ответ пользователя по задаче: отметка и необязательный комментарий.
type TaskStatus struct {
	Status      Status
	Comment     string // пустая строка — комментария нет
	RespondedAt time.Time
}

// Task — пункт плана. Status == nil, пока пользователь не ответил в сверке.
type Task struct {
	ID       int64
	PlanID   int64
	Position int
	Text     string
	Status   *TaskStatus
}

// Plan — план пользователя на одну локальную дату.
// Date в формате YYYY-MM-DD, у пары (UserID, Date) в БД уникальный индекс.
// Tasks отсортированы по Position.
type Plan struct {
	ID        int64
	UserID    int64
	Date      string
	CreatedAt time.Time
	Tasks     []Task
}

// Completion — итог дня по плану. Done — целая часть взвешенной суммы
// (так исторически показывается «3/5» в истории), Percent считается
// от неусечённой суммы, поэтому 1 done + 1 partial из 2 даёт 75%.
type Completion struct {
	Done    int
	Total   int
	Percent int
}

// Completion считает итог дня: done=1, partial=0.5, failed и «нет ответа»=0.
// Пустой план даёт нули.
func (p *Plan) Completion() Completion {
	total := len(p.Tasks)
	if total == 0 {
		return Completion{}
	}
	var weighted float64
	for _, t := range p.Tasks {
		if t.Status != nil {
			weighted += t.Status.Status.Weight()
		}
	}
	return Completion{
		Done:    int(weighted),
		Total:   total,
		Percent: int(math.Round(100 * weighted / float64(total))),
	}
}

// AllAnswered — true, когда по каждой задаче есть отметка.
// План без задач считается закрытым: спрашивать нечего.
func (p *Plan) AllAnswered() bool {
	for _, t := range p.Tasks {
		if t.Status == nil {
			return false
		}
	}
	return true
}

// TaskByID возвращает задачу плана по идентификатору, nil если её нет.
func (p *Plan) TaskByID(taskID int64) *Task {
	for i := range p.Tasks {
		if p.Tasks[i].ID == taskID {
			return &p.Tasks[i]
		}
	}
	return nil
}

// Store — операции хранилища планов. Методы, возвращающие *Plan или *Task,
// отдают (nil, nil), когда записи нет: отсутствие плана — штатная ситуация,
// а не ошибка.
type Store interface {
	// Save сохраняет план на дату, заменяя прежний состав задач целиком.
	// Повторный вызов с тем же текстом идемпотентен по (userID, date).
	Save(ctx context.Context, userID int64, date string, tasks []string) (*Plan, error)
	// ByDate возвращает план на дату вместе с задачами и отметками.
	ByDate(ctx context.Context, userID int64, date string) (*Plan, error)
	// ByID возвращает план по идентификатору вместе с задачами и отметками.
	ByID(ctx context.Context, planID int64) (*Plan, error)
	// Delete удаляет план на дату; false — плана не было.
	Delete(ctx context.Context, userID int64, date string) (bool, error)
	// TaskForUser возвращает задачу, только если она принадлежит плану пользователя.
	TaskForUser(ctx context.Context, taskID, userID int64) (*Task, error)
	// SetTaskStatus ставит или обновляет отметку. comment == nil оставляет
	// прежний комментарий нетронутым.
	SetTaskStatus(ctx context.Context, taskID int64, status Status, comment *string) error
	// SetTaskComment обновляет только комментарий; если отметки ещё нет,
	// создаёт её со статусом done.
	SetTaskComment(ctx context.Context, taskID int64, comment string) error
	// ForMonth возвращает планы месяца по убыванию даты.
	ForMonth(ctx context.Context, userID int64, year, month int) ([]Plan, error)
	// All возвращает все планы пользователя по убыванию даты.
	All(ctx context.Context, userID int64) ([]Plan, error)
}
