// Package reminders — кастомные ежедневные напоминания: CRUD, суточный цикл
// повторов и вычисление следующего срабатывания. Напоминание стреляет каждый
// день в своё локальное время и повторяется каждые Interval минут, пока
// пользователь не нажмёт «Выполнено» или не кончатся MaxPerDay попыток;
// после этого перевзводится на следующий локальный день.
package reminders

import (
	"context"
	"time"

	"telegram-planner/internal/infra/logger"
	"telegram-planner/internal/infra/timeutil"
)

// Границы и значения по умолчанию. Диалог создания в чате требует явных
// значений, WebApp подставляет умолчания.
const (
	MinInterval     = 1
	MaxInterval     = 1440
	DefaultInterval = 30

	MinMaxPerDay     = 1
	MaxMaxPerDay     = 50
	DefaultMaxPerDay = 3

	MaxDescriptionLength = 500
)

// ValidInterval — интервал повтора в допустимых границах.
func ValidInterval(minutes int) bool {
	return minutes >= MinInterval && minutes <= MaxInterval
}

// ValidMaxPerDay — потолок попыток за день в допустимых границах.
func ValidMaxPerDay(n int) bool {
	return n >= MinMaxPerDay && n <= MaxMaxPerDay
}

// Reminder — одно кастомное напоминание. Все instant-поля в UTC; CycleDate —
// локальная дата текущего суточного цикла в поясе пользователя.
type Reminder struct {
	ID          int64
	UserID      int64
	TimeOfDay   timeutil.TimeOfDay
	Description string

	Interval  int // минуты между повторами внутри дня
	MaxPerDay int // максимум отправок за локальный день

	CycleDate string // YYYY-MM-DD, "" до первой инициализации
	SentToday int
	DoneToday bool

	NextFireAt  *time.Time
	LastSentAt  *time.Time
	LockedUntil *time.Time
	Enabled     bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CycleFinished — суточный цикл закончен после attemptsAfter отправок:
// пользователь нажал «Выполнено» либо выбран дневной лимит.
func (r *Reminder) CycleFinished(attemptsAfter int) bool {
	return r.DoneToday || attemptsAfter >= r.MaxPerDay
}

// NextDailyFire считает ближайшее срабатывание строго после base и локальную
// дату этого срабатывания. Нерезолвящийся пояс здесь не фатален: расписание
// падает на UTC, чтобы напоминание продолжало ходить хоть в каком-то ритме.
func NextDailyFire(tzName string, tod timeutil.TimeOfDay, base time.Time) (time.Time, string) {
	loc, err := timeutil.ParseLocation(tzName)
	if err != nil {
		logger.Warnf("Невалидный часовой пояс %q, расписание напоминания падает на UTC: %v", tzName, err)
		loc = time.UTC
	}
	next := timeutil.NextLocalTimeAfter(loc, tod, base)
	return next.UTC(), timeutil.LocalDate(next, loc)
}

// CycleUpdate — перезапуск расписания: новое срабатывание, дата цикла и
// значение done. Счётчик попыток обнуляется, lease снимается.
type CycleUpdate struct {
	NextFireAt time.Time
	CycleDate  string
	DoneToday  bool
}

// Stats — агрегаты по напоминаниям пользователя для WebApp.
type Stats struct {
	Total     int `json:"total"`
	Enabled   int `json:"enabled"`
	Disabled  int `json:"disabled"`
	DoneToday int `json:"done_today"`
	SentToday int `json:"sent_today"`
}

// Store — операции хранилища напоминаний. ByID возвращает (nil, nil), когда
// записи нет. Мутации по паре (id, userID) возвращают false, если строка не
// принадлежит пользователю.
type Store interface {
	Create(ctx context.Context, r *Reminder) (*Reminder, error)
	ByID(ctx context.Context, id int64) (*Reminder, error)
	// ForUser возвращает напоминания по возрастанию времени срабатывания.
	ForUser(ctx context.Context, userID int64) ([]Reminder, error)
	Delete(ctx context.Context, id, userID int64) (bool, error)
	SetEnabled(ctx context.Context, id, userID int64, enabled bool) (bool, error)
	CountStats(ctx context.Context, userID int64) (Stats, error)

	// ClaimDue атомарно забирает все назревшие строки: enabled, next_fire
	// наступил, lease пуст или истёк. Каждой взятой строке ставится
	// lease now+lease; две конкурентные выборки не получат одну строку.
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration) ([]Reminder, error)
	// ResetDayCounters начинает новый локальный день: attempts=0, done=false,
	// cycle_local_date=cycleDate. Расписание и lease не трогает.
	ResetDayCounters(ctx context.Context, id int64, cycleDate string) error
	// MarkSent фиксирует успешную отправку: attempts_sent_today+1, last_sent_at=at.
	MarkSent(ctx context.Context, id int64, at time.Time) error
	// RearmSameCycle назначает следующий повтор внутри текущего дня и снимает lease.
	RearmSameCycle(ctx context.Context, id int64, next time.Time) error
	// ResetCycle перевзводит напоминание по CycleUpdate: счётчик в ноль, lease снят.
	ResetCycle(ctx context.Context, id int64, upd CycleUpdate) error
	// ReleaseLease снимает lease, ничего больше не меняя. Путь «fail closed»:
	// отправка сорвалась по внутренней причине, расписание оставляем как есть.
	ReleaseLease(ctx context.Context, id int64) error
}
