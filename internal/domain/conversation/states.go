// Package conversation — конечный автомат диалога с пользователем.
// Состояние и сопутствующие данные сериализуются в JSON и живут в
// fsmstate.Store по chat id: продолжить диалог может любой инстанс бота,
// включая воркер планировщика, который переводит пользователя в
// «жду план» при утренней отправке.
package conversation

// State — имя состояния диалога. Метки стабильны: они попадают в Redis/Bolt
// и должны переживать рестарты и деплои.
type State string

const (
	// StateIdle — диалог не ведётся; в хранилище нет записи.
	StateIdle State = ""

	// Онбординг: бот по очереди спрашивает пояс, утреннее и вечернее время.
	StateOnboardingTimezone State = "onboarding:awaiting_timezone"
	StateOnboardingMorning  State = "onboarding:awaiting_morning_time"
	StateOnboardingEvening  State = "onboarding:awaiting_evening_time"

	// Планирование.
	StateAwaitingPlan         State = "plan:awaiting_plan"         // ждём текст плана
	StateAwaitingConfirmation State = "plan:awaiting_confirmation" // вечерняя сверка: ждём статусы
	StateEditingPlan          State = "plan:editing_plan"          // правка плана по /plan
	StateAwaitingComment      State = "plan:awaiting_comment"      // ждём комментарий к задаче из Data.TaskID

	// Настройки через чат.
	StateSettingsTimezone    State = "settings:awaiting_timezone"
	StateSettingsMorning     State = "settings:awaiting_morning_time"
	StateSettingsEvening     State = "settings:awaiting_evening_time"
	StateSettingsInterval    State = "settings:awaiting_interval_minutes"
	StateSettingsMaxAttempts State = "settings:awaiting_max_attempts"

	// Навигация по reply-меню: какое меню сейчас на экране.
	StateMenuMain             State = "menu:main"
	StateMenuPlan             State = "menu:plan"
	StateMenuStats            State = "menu:stats"
	StateMenuSettings         State = "menu:settings"
	StateMenuSettingsNotify   State = "menu:settings_notify"
	StateMenuSettingsInterval State = "menu:settings_intervals"

	// Создание кастомного напоминания: четыре вопроса подряд.
	StateReminderTime        State = "reminder:awaiting_time"
	StateReminderDescription State = "reminder:awaiting_description"
	StateReminderInterval    State = "reminder:awaiting_interval"
	StateReminderMaxAttempts State = "reminder:awaiting_max_attempts"
)

// InMenu — состояние принадлежит навигации по reply-меню.
func (s State) InMenu() bool {
	switch s {
	case StateMenuMain, StateMenuPlan, StateMenuStats,
		StateMenuSettings, StateMenuSettingsNotify, StateMenuSettingsInterval:
		return true
	}
	return false
}

// InOnboarding — пользователь ещё на шагах первичной настройки.
func (s State) InOnboarding() bool {
	switch s {
	case StateOnboardingTimezone, StateOnboardingMorning, StateOnboardingEvening:
		return true
	}
	return false
}
