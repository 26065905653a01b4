// Рендер исходящих сообщений: тексты и клавиатуры всех видов уведомлений
// и диалоговых ответов. Выход — транспортно-независимый Message; конвертация
// в формат Bot API происходит в адаптере.
//
// Callback-данные кнопок собираются здесь же (Callback* константы и билдеры),
// разбираются обратно в typed-вариант в domain/updates. Сырые строки за
// пределы этих двух мест не выходят.

package notify

import (
	"fmt"
	"strings"

	"telegram-planner/internal/domain/plan"
	"telegram-planner/internal/domain/reminders"
	"telegram-planner/internal/infra/timeutil"
)

// Префиксы callback-данных инлайн-кнопок. Метки стабильны: они живут в уже
// отправленных сообщениях и должны разбираться после деплоев.
const (
	CallbackTaskDone    = "task_done_"
	CallbackTaskPartial = "task_partial_"
	CallbackTaskFailed  = "task_failed_"
	CallbackTaskComment = "task_comment_"

	CallbackReminderDone    = "crem_done_"
	CallbackReminderOff     = "crem_off_"
	CallbackReminderOn      = "crem_on_"
	CallbackReminderDelete  = "crem_del_"
	CallbackReminderAdd     = "crem_add"
	CallbackDayDone         = "day_done"
	CallbackPlanSkip        = "plan_skip"
	CallbackTimezonePrefix  = "tz_"
	CallbackTimezoneManual  = "tz_manual"
)

// Иконки статусов задач в сверке и истории.
const (
	iconDone    = "✅"
	iconPartial = "⚠️"
	iconFailed  = "❌"
	iconNone    = "—"
)

// StatusIcon возвращает иконку отметки; nil — задача ещё без ответа.
func StatusIcon(st *plan.TaskStatus) string {
	if st == nil {
		return iconNone
	}
	switch st.Status {
	case plan.StatusDone:
		return iconDone
	case plan.StatusPartial:
		return iconPartial
	case plan.StatusFailed:
		return iconFailed
	}
	return iconNone
}

// commonTimezones — быстрый выбор пояса в онбординге. Остальные вводятся
// текстом как IANA-имя.
var commonTimezones = []string{
	"Europe/Moscow",
	"Europe/Berlin",
	"Europe/Kyiv",
	"Asia/Tashkent",
	"Asia/Almaty",
	"Asia/Yekaterinburg",
	"Asia/Novosibirsk",
	"Asia/Vladivostok",
}

// MorningPrompt — первый утренний запрос плана. WebApp-кнопка добавляется,
// когда задан webAppURL (настроен WEBHOOK_BASE_URL).
func MorningPrompt(webAppURL string) Message {
	msg := Message{
		Text: "Доброе утро! ☀️\nКакие задачи планируешь на сегодня?\n\n" +
			"Напиши каждую задачу с новой строки, например:\n" +
			"1. Закончить отчёт\n2. Позвонить клиенту\n3. Тренировка",
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

// MorningReminder — повторный утренний запрос: план всё ещё не прислан.
func MorningReminder(attempt int) Message {
	return Message{
		Text: fmt.Sprintf("Напоминаю: план на сегодня ещё не записан (напоминание %d). "+
			"Напиши задачи с новой строки — или нажми «Сегодня без плана».", attempt),
		Inline: [][]Button{
			{{Text: "Сегодня без плана", Callback: CallbackPlanSkip}},
		},
	}
}

// EveningReview — вечерняя сверка: шапка, список задач с текущими отметками
// и клавиатура по неотвеченным задачам плюс «День завершён».
func EveningReview(p *plan.Plan) Message {
	var b strings.Builder
	b.WriteString("Вечерняя сверка 🌙\nКак прошёл день? Отметь каждую задачу:\n\n")
	for i, t := range p.Tasks {
		fmt.Fprintf(&b, "%d. %s %s\n", i+1, StatusIcon(t.Status), t.Text)
	}
	return Message{
		Text:   strings.TrimRight(b.String(), "\n"),
		Inline: EveningKeyboard(p),
	}
}

// EveningKeyboard строит клавиатуру сверки: по строке ✅/⚠️/❌/💬 на каждую
// неотвеченную задачу и завершающая строка «День завершён». Используется и
// при первой отправке, и при перерисовке после каждой отметки.
func EveningKeyboard(p *plan.Plan) [][]Button {
	var rows [][]Button
	for i, t := range p.Tasks {
		if t.Status != nil {
			continue
		}
		n := fmt.Sprintf("%d", i+1)
		rows = append(rows, []Button{
			{Text: n + " " + iconDone, Callback: fmt.Sprintf("%s%d", CallbackTaskDone, t.ID)},
			{Text: n + " " + iconPartial, Callback: fmt.Sprintf("%s%d", CallbackTaskPartial, t.ID)},
			{Text: n + " " + iconFailed, Callback: fmt.Sprintf("%s%d", CallbackTaskFailed, t.ID)},
			{Text: n + " 💬", Callback: fmt.Sprintf("%s%d", CallbackTaskComment, t.ID)},
		})
	}
	rows = append(rows, []Button{{Text: "День завершён", Callback: CallbackDayDone}})
	return rows
}

// EveningReminder — повтор вечерней сверки для неотвеченных задач.
func EveningReminder(p *plan.Plan) Message {
	left := 0
	for _, t := range p.Tasks {
		if t.Status == nil {
			left++
		}
	}
	msg := EveningReview(p)
	msg.Text = fmt.Sprintf("Напоминаю про вечернюю сверку: осталось отметить задач — %d.\n\n%s", left, msg.Text)
	return msg
}

// EveningNoPlan — вечер без плана на сегодня.
func EveningNoPlan() Message {
	return Message{Text: "Сегодня план не записан — сверять нечего. Увидимся утром! 🌙"}
}

// DaySummary — итог дня после «День завершён».
func DaySummary(p *plan.Plan) Message {
	c := p.Completion()
	var b strings.Builder
	fmt.Fprintf(&b, "День завершён! Выполнено на %d%% (%d/%d).\n\n", c.Percent, c.Done, c.Total)
	for i, t := range p.Tasks {
		fmt.Fprintf(&b, "%d. %s %s\n", i+1, StatusIcon(t.Status), t.Text)
		if t.Status != nil && t.Status.Comment != "" {
			fmt.Fprintf(&b, "   💬 %s\n", t.Status.Comment)
		}
	}
	b.WriteString("\nХорошего вечера! 🌙")
	return Message{Text: b.String()}
}

// CustomReminder — одно срабатывание кастомного напоминания с кнопками
// «Выполнено» (закрыть суточный цикл) и «Выключить».
func CustomReminder(r *reminders.Reminder) Message {
	return Message{
		Text: fmt.Sprintf("🔔 Напоминание: %s", r.Description),
		Inline: [][]Button{
			{
				{Text: "Выполнено", Callback: fmt.Sprintf("%s%d", CallbackReminderDone, r.ID)},
				{Text: "Выключить", Callback: fmt.Sprintf("%s%d", CallbackReminderOff, r.ID)},
			},
		},
	}
}

// DeliveryError — обобщённое сообщение о сбое доставки; шлётся best-effort
// после исчерпания ретраев или постоянной ошибки.
func DeliveryError() Message {
	return Message{Text: "Не получилось доставить уведомление. Попробуем снова в следующий раз."}
}

// PlanSaved — подтверждение сохранения плана.
func PlanSaved(tasks []string) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "План на сегодня записан (%d):\n\n", len(tasks))
	for i, t := range tasks {
		fmt.Fprintf(&b, "%d. %s\n", i+1, t)
	}
	b.WriteString("\nВечером сверимся. Продуктивного дня! 💪")
	return Message{Text: b.String()}
}

// PlanSkipped — день без плана по кнопке «Сегодня без плана».
func PlanSkipped() Message {
	return Message{Text: "Хорошо, сегодня без плана. Если передумаешь — команда /plan."}
}

// TodayView — план на сегодня для /today.
func TodayView(p *plan.Plan) Message {
	if p == nil || len(p.Tasks) == 0 {
		return Message{Text: "На сегодня план не записан. Добавить — /plan."}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "План на %s:\n\n", p.Date)
	for i, t := range p.Tasks {
		fmt.Fprintf(&b, "%d. %s %s\n", i+1, StatusIcon(t.Status), t.Text)
	}
	c := p.Completion()
	fmt.Fprintf(&b, "\nВыполнено: %d%%", c.Percent)
	return Message{Text: b.String()}
}

// StatsView — сводка для /stats.
func StatsView(s plan.Summary) Message {
	if s.TotalPlans == 0 {
		return Message{Text: "Статистики пока нет — запиши первый план утром или командой /plan."}
	}
	return Message{Text: fmt.Sprintf(
		"📊 Статистика\n\nПланов записано: %d\nСредний процент выполнения: %d%%\nТекущий стрик: %d дн.",
		s.TotalPlans, s.AveragePercent, s.CurrentStreak)}
}

// ReminderList — список кастомных напоминаний с кнопками управления.
func ReminderList(list []reminders.Reminder) Message {
	if len(list) == 0 {
		return Message{
			Text: "Кастомных напоминаний нет.",
			Inline: [][]Button{
				{{Text: "Создать напоминание", Callback: CallbackReminderAdd}},
			},
		}
	}
	var b strings.Builder
	b.WriteString("🔔 Твои напоминания:\n\n")
	var rows [][]Button
	for i, r := range list {
		state := "вкл"
		if !r.Enabled {
			state = "выкл"
		}
		fmt.Fprintf(&b, "%d. %s — %s (%s, повтор %d мин, до %d/день)\n",
			i+1, r.TimeOfDay, r.Description, state, r.Interval, r.MaxPerDay)

		toggle := Button{Text: fmt.Sprintf("%d: выключить", i+1), Callback: fmt.Sprintf("%s%d", CallbackReminderOff, r.ID)}
		if !r.Enabled {
			toggle = Button{Text: fmt.Sprintf("%d: включить", i+1), Callback: fmt.Sprintf("%s%d", CallbackReminderOn, r.ID)}
		}
		rows = append(rows, []Button{
			toggle,
			{Text: fmt.Sprintf("%d: удалить", i+1), Callback: fmt.Sprintf("%s%d", CallbackReminderDelete, r.ID)},
		})
	}
	rows = append(rows, []Button{{Text: "Создать напоминание", Callback: CallbackReminderAdd}})
	return Message{Text: strings.TrimRight(b.String(), "\n"), Inline: rows}
}

// Onboarding: три шага первичной настройки.

// OnboardingWelcome — приветствие и запрос часового пояса с быстрым выбором.
func OnboardingWelcome() Message {
	var rows [][]Button
	for i := 0; i < len(commonTimezones); i += 2 {
		row := []Button{{Text: commonTimezones[i], Callback: CallbackTimezonePrefix + commonTimezones[i]}}
		if i+1 < len(commonTimezones) {
			row = append(row, Button{Text: commonTimezones[i+1], Callback: CallbackTimezonePrefix + commonTimezones[i+1]})
		}
		rows = append(rows, row)
	}
	rows = append(rows, []Button{{Text: "Ввести вручную", Callback: CallbackTimezoneManual}})
	return Message{
		Text: "Привет! Я помогу планировать день: утром спрошу план, вечером сверимся.\n\n" +
			"Для начала выбери часовой пояс — или пришли его текстом (например, Europe/Moscow).",
		Inline: rows,
	}
}

// OnboardingAskMorning — запрос утреннего времени.
func OnboardingAskMorning(tz string) Message {
	return Message{Text: fmt.Sprintf(
		"Пояс %s сохранён.\n\nВо сколько присылать утренний запрос плана? Формат HH:MM, например 07:00.", tz)}
}

// OnboardingAskEvening — запрос вечернего времени.
func OnboardingAskEvening(morning timeutil.TimeOfDay) Message {
	return Message{Text: fmt.Sprintf(
		"Утро: %s. А во сколько вечерняя сверка? Формат HH:MM, например 21:00.", morning)}
}

// OnboardingDone — настройка завершена.
func OnboardingDone(morning, evening timeutil.TimeOfDay) Message {
	return Message{Text: fmt.Sprintf(
		"Готово! Утренний план — в %s, вечерняя сверка — в %s.\n\n"+
			"Команды: /plan — записать план, /today — план на сегодня, /stats — статистика,\n"+
			"/reminders — напоминания, /settings — настройки.", morning, evening)}
}

// SettingsView — текущие настройки для /settings.
func SettingsView(tz string, morning, evening timeutil.TimeOfDay, interval, maxAttempts int) Message {
	return Message{Text: fmt.Sprintf(
		"⚙️ Настройки\n\nЧасовой пояс: %s\nУтренний план: %s\nВечерняя сверка: %s\n"+
			"Повтор утреннего напоминания: каждые %d мин, максимум %d раз.\n\n"+
			"Изменить: /set_timezone, /set_morning, /set_evening, /set_interval, /set_attempts.",
		tz, morning, evening, interval, maxAttempts)}
}

// Ошибки ввода: отвечаются в том же ходе диалога и не меняют состояние.

// ErrInvalidTime — неразборчивое время суток.
func ErrInvalidTime() Message {
	return Message{Text: "Не понял время. Нужен формат HH:MM, например 08:30."}
}

// ErrInvalidTimezone — неизвестный часовой пояс.
func ErrInvalidTimezone() Message {
	return Message{Text: "Не знаю такой пояс. Пришли IANA-имя, например Europe/Moscow или Asia/Tashkent."}
}

// ErrInvalidInterval — интервал вне границ.
func ErrInvalidInterval(min, max int) Message {
	return Message{Text: fmt.Sprintf("Интервал должен быть числом от %d до %d минут.", min, max)}
}

// ErrInvalidAttempts — число повторов вне границ.
func ErrInvalidAttempts(min, max int) Message {
	return Message{Text: fmt.Sprintf("Число повторов должно быть от %d до %d.", min, max)}
}

// ErrNotFound — объект не найден или не принадлежит пользователю.
func ErrNotFound() Message {
	return Message{Text: "Не найдено."}
}

// HelpView — справка /help.
func HelpView() Message {
	return Message{Text: "Я ежедневный планировщик.\n\n" +
		"Утром спрошу план на день, вечером — как прошло. Ещё умею кастомные напоминания.\n\n" +
		"/plan — записать план на сегодня\n" +
		"/today — план на сегодня\n" +
		"/stats — статистика\n" +
		"/reminders — кастомные напоминания\n" +
		"/settings — настройки\n" +
		"/reset_evening — прислать вечернюю сверку ещё раз"}
}
