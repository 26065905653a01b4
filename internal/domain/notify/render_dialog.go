// Рендер диалоговых экранов: меню навигации, пошаговые вопросы мастеров
// (комментарий, настройки, создание напоминания) и подтверждения. Отделён от
// render.go, где живут уведомления каналов утро/вечер/кастом.

package notify

import (
	"fmt"

	"telegram-planner/internal/domain/reminders"
	"telegram-planner/internal/infra/timeutil"
)

// CallbackMenuPrefix — префикс callback-данных навигации по инлайн-меню.
// Путь после префикса — один из menu*-литералов ниже.
const CallbackMenuPrefix = "menu_"

// Пути инлайн-меню.
const (
	MenuMainPath      = "main"
	MenuPlanPath      = "plan"
	MenuTodayPath     = "today"
	MenuStatsPath     = "stats"
	MenuSettingsPath  = "settings"
	MenuRemindersPath = "reminders"
)

// Подписи кнопок reply-меню. Текст нажатой кнопки приходит обычным
// сообщением, поэтому роутер сопоставляет его с этими константами.
const (
	MenuLabelPlan      = "📝 План"
	MenuLabelToday     = "📅 Сегодня"
	MenuLabelStats     = "📊 Статистика"
	MenuLabelReminders = "🔔 Напоминания"
	MenuLabelSettings  = "⚙️ Настройки"
)

// menuCallback собирает callback-данные пункта меню.
func menuCallback(path string) string {
	return CallbackMenuPrefix + path
}

// MenuBackRow — строка возврата в главное меню; добавляется к экранам веток.
func MenuBackRow() []Button {
	return []Button{{Text: "⬅️ Меню", Callback: menuCallback(MenuMainPath)}}
}

// MainReplyMenu — постоянная reply-клавиатура с быстрыми действиями.
// При непустом webAppURL добавляется строка запуска мини-приложения.
func MainReplyMenu(webAppURL string) [][]MenuButton {
	menu := [][]MenuButton{
		MenuRow(MenuLabelPlan, MenuLabelToday),
		MenuRow(MenuLabelStats, MenuLabelReminders),
		MenuRow(MenuLabelSettings),
	}
	if webAppURL != "" {
		menu = append(menu, []MenuButton{{Text: "Открыть планировщик", WebApp: webAppURL}})
	}
	return menu
}

// MenuMain — главный экран /menu: инлайн-навигация по веткам плюс
// reply-клавиатура с теми же действиями.
func MenuMain(webAppURL string) Message {
	return Message{
		Text: "Главное меню. Что делаем?",
		Inline: [][]Button{
			{
				{Text: MenuLabelPlan, Callback: menuCallback(MenuPlanPath)},
				{Text: MenuLabelToday, Callback: menuCallback(MenuTodayPath)},
			},
			{
				{Text: MenuLabelStats, Callback: menuCallback(MenuStatsPath)},
				{Text: MenuLabelReminders, Callback: menuCallback(MenuRemindersPath)},
			},
			{
				{Text: MenuLabelSettings, Callback: menuCallback(MenuSettingsPath)},
			},
		},
		Menu: MainReplyMenu(webAppURL),
	}
}

// WithMenuBack дописывает к сообщению строку возврата в главное меню.
// Используется ветками инлайн-меню при перерисовке на месте.
func WithMenuBack(msg Message) Message {
	msg.Inline = append(msg.Inline, MenuBackRow())
	return msg
}

// PlanPrompt — запрос текста плана по /plan или из меню (в отличие от
// утреннего промпта — без приветствия).
func PlanPrompt(webAppURL string) Message {
	msg := Message{
		Text: "Напиши задачи на сегодня, каждую с новой строки.\n" +
			"Новый план заменит прежний целиком.",
		Inline: [][]Button{
			{{Text: "Сегодня без плана", Callback: CallbackPlanSkip}},
		},
	}
	if webAppURL != "" {
		msg.Inline = append(msg.Inline, []Button{
			{Text: "Открыть планировщик", WebApp: webAppURL},
		})
	}
	return msg
}

// AskComment — запрос комментария к задаче после нажатия 💬.
func AskComment(taskText string) Message {
	return Message{Text: fmt.Sprintf("Напиши комментарий к задаче «%s».", taskText)}
}

// CommentSaved — комментарий записан, сверка продолжается.
func CommentSaved() Message {
	return Message{Text: "Комментарий записан 💬"}
}

// IdleHint — свободный текст вне диалога: подсказываем команды.
func IdleHint() Message {
	return Message{Text: "Сейчас я ничего не жду. План — /plan, меню — /menu, справка — /help."}
}

// AskTimezoneText — запрос часового пояса текстом (ручной ввод).
func AskTimezoneText() Message {
	return Message{Text: "Пришли часовой пояс текстом — IANA-имя, например Europe/Moscow или Asia/Tashkent."}
}

// AskMorningTime — запрос нового утреннего времени (/set_morning).
func AskMorningTime() Message {
	return Message{Text: "Во сколько присылать утренний запрос плана? Формат HH:MM."}
}

// AskEveningTime — запрос нового вечернего времени (/set_evening).
func AskEveningTime() Message {
	return Message{Text: "Во сколько присылать вечернюю сверку? Формат HH:MM."}
}

// AskReminderSettingsInterval — запрос интервала повторов утреннего
// напоминания (/set_interval).
func AskReminderSettingsInterval(min, max int) Message {
	return Message{Text: fmt.Sprintf(
		"Через сколько минут повторять утреннее напоминание, если план не записан? Число от %d до %d.", min, max)}
}

// AskReminderSettingsAttempts — запрос потолка повторов (/set_attempts).
func AskReminderSettingsAttempts(min, max int) Message {
	return Message{Text: fmt.Sprintf(
		"Сколько раз повторять утреннее напоминание? Число от %d до %d (0 — не повторять).", min, max)}
}

// Мастер создания кастомного напоминания: четыре вопроса подряд.

// AskReminderTime — шаг 1: время срабатывания.
func AskReminderTime() Message {
	return Message{Text: "Создаём напоминание. Во сколько присылать? Формат HH:MM, например 14:00."}
}

// AskReminderDescription — шаг 2: текст напоминания.
func AskReminderDescription(tod timeutil.TimeOfDay) Message {
	return Message{Text: fmt.Sprintf("Время %s. О чём напоминать? Коротким текстом.", tod)}
}

// AskReminderInterval — шаг 3: интервал повторов внутри дня.
func AskReminderInterval(min, max, def int) Message {
	return Message{Text: fmt.Sprintf(
		"Через сколько минут повторять, пока не нажмёшь «Выполнено»? Число от %d до %d (обычно %d).", min, max, def)}
}

// AskReminderMaxAttempts — шаг 4: потолок отправок в день.
func AskReminderMaxAttempts(min, max, def int) Message {
	return Message{Text: fmt.Sprintf(
		"Сколько раз в день слать максимум? Число от %d до %d (обычно %d).", min, max, def)}
}

// ReminderCreated — напоминание создано и взведено.
func ReminderCreated(r *reminders.Reminder) Message {
	return Message{Text: fmt.Sprintf(
		"Готово! Буду напоминать «%s» в %s, повтор каждые %d мин, максимум %d раз в день.\n"+
			"Список и управление — /reminders.",
		r.Description, r.TimeOfDay, r.Interval, r.MaxPerDay)}
}

// ErrInvalidDescription — слишком длинный или пустой текст напоминания.
func ErrInvalidDescription(max int) Message {
	return Message{Text: fmt.Sprintf("Текст напоминания должен быть непустым и не длиннее %d символов.", max)}
}

// EveningResetDone — подтверждение /reset_evening: журнал очищен, сверка
// поставлена заново.
func EveningResetDone(date string) Message {
	return Message{Text: fmt.Sprintf("Журнал сверки за %s сброшен, отправляю её заново.", date)}
}

// ErrInvalidPlan — текст плана не прошёл проверку.
func ErrInvalidPlan(reason string) Message {
	return Message{Text: fmt.Sprintf("Не получилось разобрать план: %s\nПопробуй ещё раз.", reason)}
}
