// Разбор callback-данных инлайн-кнопок в типизированный вариант.
// Сырые строки собираются в notify (Callback*-константы) и разбираются
// только здесь; дальше роутер работает с Callback-структурой.

package updates

import (
	"strconv"
	"strings"

	"telegram-planner/internal/domain/notify"
	"telegram-planner/internal/domain/plan"
)

// CallbackKind — вид нажатия.
type CallbackKind int

const (
	// KindUnknown — данные не распознаны; кнопка из старой версии бота.
	KindUnknown CallbackKind = iota

	// KindTaskStatus — отметка статуса задачи; заполнены TaskID и Status.
	KindTaskStatus
	// KindTaskComment — запрос комментария к задаче; заполнен TaskID.
	KindTaskComment
	// KindDayDone — «День завершён».
	KindDayDone
	// KindPlanSkip — «Сегодня без плана».
	KindPlanSkip

	// KindReminderDone — «Выполнено» на кастомном напоминании; заполнен ReminderID.
	KindReminderDone
	// KindReminderToggle — включение/выключение; заполнены ReminderID и Enable.
	KindReminderToggle
	// KindReminderDelete — удаление; заполнен ReminderID.
	KindReminderDelete
	// KindReminderAdd — запуск мастера создания напоминания.
	KindReminderAdd

	// KindTimezone — быстрый выбор пояса; заполнен Timezone.
	KindTimezone
	// KindTimezoneManual — «Ввести вручную» на шаге выбора пояса.
	KindTimezoneManual

	// KindMenu — навигация по инлайн-меню; заполнен MenuPath.
	KindMenu
)

// Callback — типизированное нажатие инлайн-кнопки.
type Callback struct {
	Kind CallbackKind

	TaskID     int64
	Status     plan.Status
	ReminderID int64
	Enable     bool
	Timezone   string
	MenuPath   string
}

// ParseCallback разбирает callback-данные по таблице префиксов.
// false — данные не из нашего словаря.
func ParseCallback(data string) (Callback, bool) {
	switch data {
	case notify.CallbackDayDone:
		return Callback{Kind: KindDayDone}, true
	case notify.CallbackPlanSkip:
		return Callback{Kind: KindPlanSkip}, true
	case notify.CallbackReminderAdd:
		return Callback{Kind: KindReminderAdd}, true
	case notify.CallbackTimezoneManual:
		return Callback{Kind: KindTimezoneManual}, true
	}

	// tz_manual перехвачен выше, поэтому здесь остаётся только имя пояса.
	if tz, ok := strings.CutPrefix(data, notify.CallbackTimezonePrefix); ok {
		return Callback{Kind: KindTimezone, Timezone: tz}, true
	}
	if path, ok := strings.CutPrefix(data, notify.CallbackMenuPrefix); ok {
		return Callback{Kind: KindMenu, MenuPath: path}, true
	}

	for prefix, status := range map[string]plan.Status{
		notify.CallbackTaskDone:    plan.StatusDone,
		notify.CallbackTaskPartial: plan.StatusPartial,
		notify.CallbackTaskFailed:  plan.StatusFailed,
	} {
		if id, ok := cutID(data, prefix); ok {
			return Callback{Kind: KindTaskStatus, TaskID: id, Status: status}, true
		}
	}
	if id, ok := cutID(data, notify.CallbackTaskComment); ok {
		return Callback{Kind: KindTaskComment, TaskID: id}, true
	}

	if id, ok := cutID(data, notify.CallbackReminderDone); ok {
		return Callback{Kind: KindReminderDone, ReminderID: id}, true
	}
	if id, ok := cutID(data, notify.CallbackReminderOn); ok {
		return Callback{Kind: KindReminderToggle, ReminderID: id, Enable: true}, true
	}
	if id, ok := cutID(data, notify.CallbackReminderOff); ok {
		return Callback{Kind: KindReminderToggle, ReminderID: id}, true
	}
	if id, ok := cutID(data, notify.CallbackReminderDelete); ok {
		return Callback{Kind: KindReminderDelete, ReminderID: id}, true
	}

	return Callback{}, false
}

// cutID срезает префикс и парсит остаток как положительный id.
func cutID(data, prefix string) (int64, bool) {
	rest, ok := strings.CutPrefix(data, prefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
