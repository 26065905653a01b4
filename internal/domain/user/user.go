// Package user — профиль пользователя бота: часовой пояс, времена утреннего
// и вечернего уведомлений, настройки повторных напоминаний и флаги
// пройденного онбординга.
package user

import (
	"context"
	"time"

	"telegram-planner/internal/infra/timeutil"
)

// Значения по умолчанию для нового пользователя.
var (
	DefaultMorningTime = timeutil.TimeOfDay{Hour: 7, Minute: 0}
	DefaultEveningTime = timeutil.TimeOfDay{Hour: 21, Minute: 0}
)

// DefaultTimezone присваивается до того, как пользователь выбрал пояс в онбординге.
const DefaultTimezone = "UTC"

// Границы настроек повторных утренних напоминаний. Проверяются и в чате,
// и в WebApp: БД должна видеть только валидные значения.
const (
	DefaultReminderInterval = 60
	MinReminderInterval     = 5
	MaxReminderInterval     = 720

	DefaultReminderMaxAttempts = 1
	MinReminderMaxAttempts     = 0
	MaxReminderMaxAttempts     = 10
)

// ValidReminderInterval — true, если интервал повторов в допустимых границах.
func ValidReminderInterval(minutes int) bool {
	return minutes >= MinReminderInterval && minutes <= MaxReminderInterval
}

// ValidReminderMaxAttempts — true, если число повторов в допустимых границах.
func ValidReminderMaxAttempts(n int) bool {
	return n >= MinReminderMaxAttempts && n <= MaxReminderMaxAttempts
}

// User — зарегистрированный пользователь. TelegramID — идентификатор чата
// в Telegram, ID — внутренний ключ, на который ссылаются планы, журнал
// уведомлений и кастомные напоминания.
type User struct {
	ID         int64
	TelegramID int64
	Timezone   string

	MorningTime timeutil.TimeOfDay
	EveningTime timeutil.TimeOfDay

	ReminderInterval    int // минуты между повторными утренними напоминаниями
	ReminderMaxAttempts int // сколько повторов слать после первого запроса плана

	// Флаги онбординга: пояс, утреннее и вечернее время подтверждены.
	// Пока все три не выставлены, бот вместо команд ведёт пользователя
	// по шагам настройки.
	TZConfirmed      bool
	MorningConfirmed bool
	EveningConfirmed bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Onboarded — пользователь прошёл все шаги первичной настройки.
func (u *User) Onboarded() bool {
	return u.TZConfirmed && u.MorningConfirmed && u.EveningConfirmed
}

// Location резолвит часовой пояс пользователя. Ошибка возможна, если в БД
// попало имя, которого нет в tzdata на этой машине.
func (u *User) Location() (*time.Location, error) {
	return timeutil.ParseLocation(u.Timezone)
}

// Store — операции хранилища пользователей. Методы By* возвращают
// (nil, nil), когда пользователя нет.
type Store interface {
	ByID(ctx context.Context, id int64) (*User, error)
	ByTelegramID(ctx context.Context, telegramID int64) (*User, error)
	// GetOrCreate возвращает пользователя, создавая запись с настройками
	// по умолчанию при первом обращении.
	GetOrCreate(ctx context.Context, telegramID int64) (*User, error)
	// All возвращает всех пользователей; ежеминутный диспетчер проходит
	// по ним при поиске попавших в окно отправки.
	All(ctx context.Context) ([]User, error)

	// UpdateTimezone меняет пояс и подтверждает шаг онбординга «пояс».
	UpdateTimezone(ctx context.Context, userID int64, tz string) error
	// UpdateMorningTime меняет утреннее время и подтверждает шаг «утро».
	UpdateMorningTime(ctx context.Context, userID int64, t timeutil.TimeOfDay) error
	// UpdateEveningTime меняет вечернее время и подтверждает шаг «вечер».
	UpdateEveningTime(ctx context.Context, userID int64, t timeutil.TimeOfDay) error
	// UpdateReminderSettings меняет интервал и/или потолок повторов;
	// nil-поле остаётся нетронутым.
	UpdateReminderSettings(ctx context.Context, userID int64, interval, maxAttempts *int) error
}
