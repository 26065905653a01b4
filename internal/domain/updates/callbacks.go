// Обработка нажатий инлайн-кнопок и данных WebApp.
//
// Каждое нажатие подтверждается AnswerCallback (гасим «часики»), после чего
// выполняется действие. Перерисовка клавиатуры сверки после серии отметок
// дебаунсится по message_id: статусы пишутся сразу, клавиатура обновляется
// один раз после паузы.

package updates

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"

	"telegram-planner/internal/adapters/botapi"
	"telegram-planner/internal/domain/conversation"
	"telegram-planner/internal/domain/notify"
	"telegram-planner/internal/domain/plan"
	"telegram-planner/internal/domain/user"
	"telegram-planner/internal/infra/logger"
	"telegram-planner/internal/infra/timeutil"
)

func (r *Router) handleCallback(ctx context.Context, cq botapi.CallbackQuery) error {
	cb, ok := ParseCallback(cq.Data)
	if !ok {
		// Кнопка из прежней версии бота: молча подтверждаем нажатие.
		logger.Debugf("Callback %q не распознан", cq.Data)
		r.answer(ctx, cq.ID, "")
		return nil
	}
	if cq.Message == nil {
		r.answer(ctx, cq.ID, "")
		return nil
	}
	chatID := cq.Message.Chat.ID
	msgID := cq.Message.MessageID

	u, err := r.users.GetOrCreate(ctx, chatID)
	if err != nil {
		return errors.Wrapf(err, "load user for chat %d", chatID)
	}

	switch cb.Kind {
	case KindTaskStatus:
		return r.cbTaskStatus(ctx, u, cq.ID, chatID, msgID, cb)
	case KindTaskComment:
		return r.cbTaskComment(ctx, u, cq.ID, chatID, cb.TaskID)
	case KindDayDone:
		return r.cbDayDone(ctx, u, cq.ID, chatID, msgID)
	case KindPlanSkip:
		return r.cbPlanSkip(ctx, cq.ID, chatID, msgID)

	case KindReminderDone:
		return r.cbReminderDone(ctx, u, cq.ID, cb.ReminderID)
	case KindReminderToggle:
		return r.cbReminderToggle(ctx, u, cq.ID, chatID, msgID, cb)
	case KindReminderDelete:
		return r.cbReminderDelete(ctx, u, cq.ID, chatID, msgID, cb.ReminderID)
	case KindReminderAdd:
		r.answer(ctx, cq.ID, "")
		if err := r.conv.SetState(ctx, chatID, conversation.StateReminderTime); err != nil {
			return err
		}
		return r.send(ctx, chatID, notify.AskReminderTime())

	case KindTimezone:
		return r.cbTimezone(ctx, u, cq.ID, chatID, cb.Timezone)
	case KindTimezoneManual:
		return r.cbTimezoneManual(ctx, u, cq.ID, chatID)

	case KindMenu:
		return r.cbMenu(ctx, u, cq.ID, chatID, msgID, cb.MenuPath)
	}
	return nil
}

// cbTaskStatus пишет отметку и перерисовывает клавиатуру сверки с дебаунсом.
func (r *Router) cbTaskStatus(ctx context.Context, u *user.User, callbackID string, chatID int64, msgID int, cb Callback) error {
	t, err := r.plans.TaskForUser(ctx, cb.TaskID, u.ID)
	if err != nil {
		return errors.Wrap(err, "load task")
	}
	if t == nil {
		r.answer(ctx, callbackID, "Задача не найдена")
		return nil
	}
	if err := r.plans.SetTaskStatus(ctx, t.ID, cb.Status, nil); err != nil {
		return errors.Wrap(err, "set task status")
	}
	r.answer(ctx, callbackID, "Отмечено")

	planID := t.PlanID
	r.debounce.Do(chatID, msgID, func() {
		ctx, cancel := context.WithTimeout(r.bg, redrawTimeout)
		defer cancel()

		p, err := r.plans.ByID(ctx, planID)
		if err != nil || p == nil {
			logger.Warnf("Перерисовка сверки: план %d не загружен: %v", planID, err)
			return
		}
		if err := r.gw.Edit(ctx, chatID, msgID, notify.EveningReview(p)); err != nil {
			logger.Warnf("Перерисовка сверки в чате %d: %v", chatID, err)
		}
	})
	return nil
}

// cbTaskComment переводит диалог в ожидание комментария, сохранив контекст
// сверки для возврата.
func (r *Router) cbTaskComment(ctx context.Context, u *user.User, callbackID string, chatID, taskID int64) error {
	t, err := r.plans.TaskForUser(ctx, taskID, u.ID)
	if err != nil {
		return errors.Wrap(err, "load task")
	}
	if t == nil {
		r.answer(ctx, callbackID, "Задача не найдена")
		return nil
	}

	c, err := r.conv.Get(ctx, chatID)
	if err != nil {
		return err
	}
	c.State = conversation.StateAwaitingComment
	c.Data.TaskID = t.ID
	c.Data.PlanID = t.PlanID
	if err := r.conv.Set(ctx, chatID, c); err != nil {
		return err
	}

	r.answer(ctx, callbackID, "")
	return r.send(ctx, chatID, notify.AskComment(t.Text))
}

// cbDayDone закрывает сверку: итог дня на месте клавиатуры, диалог в idle.
func (r *Router) cbDayDone(ctx context.Context, u *user.User, callbackID string, chatID int64, msgID int) error {
	c, err := r.conv.Get(ctx, chatID)
	if err != nil {
		return err
	}

	p, err := r.dayPlan(ctx, u, c)
	if err != nil {
		return err
	}
	if p == nil {
		r.answer(ctx, callbackID, "План не найден")
		return nil
	}

	r.answer(ctx, callbackID, "День завершён")
	if err := r.gw.Edit(ctx, chatID, msgID, notify.DaySummary(p)); err != nil {
		return errors.Wrap(err, "render day summary")
	}
	return r.conv.Clear(ctx, chatID)
}

// dayPlan находит план для закрытия дня: из контекста сверки либо,
// если диалог уже сброшен, по сегодняшней дате пользователя.
func (r *Router) dayPlan(ctx context.Context, u *user.User, c conversation.Context) (*plan.Plan, error) {
	if c.Data.PlanID != 0 {
		p, err := r.plans.ByID(ctx, c.Data.PlanID)
		if err != nil {
			return nil, errors.Wrap(err, "load plan by id")
		}
		return p, nil
	}
	p, err := r.plans.ByDate(ctx, u.ID, r.localDate(u))
	if err != nil {
		return nil, errors.Wrap(err, "load today plan")
	}
	return p, nil
}

// cbPlanSkip — «Сегодня без плана» под утренним промптом.
func (r *Router) cbPlanSkip(ctx context.Context, callbackID string, chatID int64, msgID int) error {
	r.answer(ctx, callbackID, "")
	if err := r.conv.Clear(ctx, chatID); err != nil {
		return err
	}
	if err := r.gw.Edit(ctx, chatID, msgID, notify.PlanSkipped()); err != nil {
		return errors.Wrap(err, "render plan skipped")
	}
	return nil
}

func (r *Router) cbReminderDone(ctx context.Context, u *user.User, callbackID string, reminderID int64) error {
	ok, err := r.rems.MarkDoneToday(ctx, reminderID, u.ID)
	if err != nil {
		return errors.Wrap(err, "mark reminder done")
	}
	if !ok {
		r.answer(ctx, callbackID, "Напоминание не найдено")
		return nil
	}
	r.answer(ctx, callbackID, "Принято, до завтра ✅")
	return nil
}

func (r *Router) cbReminderToggle(ctx context.Context, u *user.User, callbackID string, chatID int64, msgID int, cb Callback) error {
	ok, err := r.rems.Toggle(ctx, cb.ReminderID, u.ID, cb.Enable)
	if err != nil {
		return errors.Wrap(err, "toggle reminder")
	}
	if !ok {
		r.answer(ctx, callbackID, "Напоминание не найдено")
		return nil
	}
	if cb.Enable {
		r.answer(ctx, callbackID, "Включено")
	} else {
		r.answer(ctx, callbackID, "Выключено")
	}
	return r.redrawReminderList(ctx, u, chatID, msgID)
}

func (r *Router) cbReminderDelete(ctx context.Context, u *user.User, callbackID string, chatID int64, msgID int, reminderID int64) error {
	ok, err := r.rems.Delete(ctx, reminderID, u.ID)
	if err != nil {
		return errors.Wrap(err, "delete reminder")
	}
	if !ok {
		r.answer(ctx, callbackID, "Напоминание не найдено")
		return nil
	}
	r.answer(ctx, callbackID, "Удалено")
	return r.redrawReminderList(ctx, u, chatID, msgID)
}

// redrawReminderList перерисовывает сообщение со списком напоминаний после
// переключения или удаления.
func (r *Router) redrawReminderList(ctx context.Context, u *user.User, chatID int64, msgID int) error {
	list, err := r.rems.List(ctx, u.ID)
	if err != nil {
		return errors.Wrap(err, "load reminders")
	}
	if err := r.gw.Edit(ctx, chatID, msgID, notify.ReminderList(list)); err != nil {
		return errors.Wrap(err, "render reminder list")
	}
	return nil
}

// cbTimezone — быстрый выбор пояса кнопкой: в онбординге ведёт к шагу
// утреннего времени, в настройках — к свежей сводке.
func (r *Router) cbTimezone(ctx context.Context, u *user.User, callbackID string, chatID int64, tz string) error {
	if _, err := timeutil.ParseLocation(tz); err != nil {
		r.answer(ctx, callbackID, "Неизвестный пояс")
		return nil
	}
	if err := r.users.UpdateTimezone(ctx, u.ID, tz); err != nil {
		return errors.Wrap(err, "update timezone")
	}
	r.answer(ctx, callbackID, "")

	if !u.Onboarded() {
		if err := r.conv.SetState(ctx, chatID, conversation.StateOnboardingMorning); err != nil {
			return err
		}
		return r.send(ctx, chatID, notify.OnboardingAskMorning(tz))
	}
	return r.settingsSaved(ctx, u, chatID)
}

func (r *Router) cbTimezoneManual(ctx context.Context, u *user.User, callbackID string, chatID int64) error {
	r.answer(ctx, callbackID, "")
	st := conversation.StateSettingsTimezone
	if !u.Onboarded() {
		st = conversation.StateOnboardingTimezone
	}
	if err := r.conv.SetState(ctx, chatID, st); err != nil {
		return err
	}
	return r.send(ctx, chatID, notify.AskTimezoneText())
}

// webAppPayload — данные из мини-приложения через web_app_data. Сейчас
// WebApp присылает только автоопределённый часовой пояс.
type webAppPayload struct {
	Type     string `json:"type"`
	Timezone string `json:"timezone,omitempty"`
}

func (r *Router) handleWebAppData(ctx context.Context, u *user.User, chatID int64, data botapi.WebAppData) error {
	var p webAppPayload
	if err := json.Unmarshal([]byte(data.Data), &p); err != nil {
		logger.Warnf("Чат %d: нечитаемые данные WebApp: %v", chatID, err)
		return nil
	}
	if p.Type != "settings" || p.Timezone == "" {
		logger.Debugf("Чат %d: данные WebApp типа %q пропущены", chatID, p.Type)
		return nil
	}
	if _, err := timeutil.ParseLocation(p.Timezone); err != nil {
		return r.send(ctx, chatID, notify.ErrInvalidTimezone())
	}
	if err := r.users.UpdateTimezone(ctx, u.ID, p.Timezone); err != nil {
		return errors.Wrap(err, "update timezone from webapp")
	}

	if !u.Onboarded() {
		if err := r.conv.SetState(ctx, chatID, conversation.StateOnboardingMorning); err != nil {
			return err
		}
		return r.send(ctx, chatID, notify.OnboardingAskMorning(p.Timezone))
	}
	return r.settingsSaved(ctx, u, chatID)
}
