// Обработка свободного текста по состоянию диалога: шаги онбординга,
// текст плана, комментарий к задаче, настройки и мастер создания
// кастомного напоминания.

package updates

import (
	"context"
	"strconv"

	"github.com/go-faster/errors"

	"telegram-planner/internal/domain/conversation"
	"telegram-planner/internal/domain/notify"
	"telegram-planner/internal/domain/plan"
	"telegram-planner/internal/domain/reminders"
	"telegram-planner/internal/domain/user"
	"telegram-planner/internal/infra/timeutil"
)

func (r *Router) handleText(ctx context.Context, u *user.User, chatID int64, text string) error {
	c, err := r.conv.Get(ctx, chatID)
	if err != nil {
		return err
	}

	switch c.State {
	case conversation.StateOnboardingTimezone:
		return r.onboardingTimezone(ctx, u, chatID, text)
	case conversation.StateOnboardingMorning:
		return r.onboardingMorning(ctx, u, chatID, text)
	case conversation.StateOnboardingEvening:
		return r.onboardingEvening(ctx, u, chatID, text)

	case conversation.StateAwaitingPlan, conversation.StateEditingPlan:
		return r.planText(ctx, u, chatID, c, text)
	case conversation.StateAwaitingComment:
		return r.commentText(ctx, u, chatID, c, text)

	case conversation.StateSettingsTimezone:
		return r.settingsTimezone(ctx, u, chatID, text)
	case conversation.StateSettingsMorning, conversation.StateSettingsEvening:
		return r.settingsTime(ctx, u, chatID, c.State, text)
	case conversation.StateSettingsInterval, conversation.StateSettingsMaxAttempts:
		return r.settingsReminder(ctx, u, chatID, c.State, text)

	case conversation.StateReminderTime:
		return r.reminderTime(ctx, chatID, text)
	case conversation.StateReminderDescription:
		return r.reminderDescription(ctx, chatID, c, text)
	case conversation.StateReminderInterval:
		return r.reminderInterval(ctx, chatID, c, text)
	case conversation.StateReminderMaxAttempts:
		return r.reminderMaxAttempts(ctx, u, chatID, c, text)
	}

	// Idle, вечерняя сверка и навигация по меню текста не ждут.
	if !u.Onboarded() {
		return r.startOnboarding(ctx, chatID)
	}
	return r.send(ctx, chatID, notify.IdleHint())
}

// Онбординг: пояс → утро → вечер. Ошибки ввода отвечаются на месте,
// состояние не меняется.

func (r *Router) onboardingTimezone(ctx context.Context, u *user.User, chatID int64, text string) error {
	loc, err := timeutil.ParseLocation(text)
	if err != nil || loc == nil {
		return r.send(ctx, chatID, notify.ErrInvalidTimezone())
	}
	if err := r.users.UpdateTimezone(ctx, u.ID, text); err != nil {
		return errors.Wrap(err, "update timezone")
	}
	if err := r.conv.SetState(ctx, chatID, conversation.StateOnboardingMorning); err != nil {
		return err
	}
	return r.send(ctx, chatID, notify.OnboardingAskMorning(text))
}

func (r *Router) onboardingMorning(ctx context.Context, u *user.User, chatID int64, text string) error {
	tod, err := timeutil.ParseTimeOfDay(text)
	if err != nil {
		return r.send(ctx, chatID, notify.ErrInvalidTime())
	}
	if err := r.users.UpdateMorningTime(ctx, u.ID, tod); err != nil {
		return errors.Wrap(err, "update morning time")
	}
	if err := r.conv.SetState(ctx, chatID, conversation.StateOnboardingEvening); err != nil {
		return err
	}
	return r.send(ctx, chatID, notify.OnboardingAskEvening(tod))
}

func (r *Router) onboardingEvening(ctx context.Context, u *user.User, chatID int64, text string) error {
	tod, err := timeutil.ParseTimeOfDay(text)
	if err != nil {
		return r.send(ctx, chatID, notify.ErrInvalidTime())
	}
	if err := r.users.UpdateEveningTime(ctx, u.ID, tod); err != nil {
		return errors.Wrap(err, "update evening time")
	}
	if err := r.conv.Clear(ctx, chatID); err != nil {
		return err
	}

	// Утро уже подтверждено на прошлом шаге; u загружен до него, поэтому
	// перечитываем профиль ради актуального времени в итоговом сообщении.
	fresh, err := r.users.ByID(ctx, u.ID)
	if err != nil || fresh == nil {
		fresh = u
	}
	msg := notify.OnboardingDone(fresh.MorningTime, tod)
	msg.Menu = notify.MainReplyMenu(r.webAppURL)
	return r.send(ctx, chatID, msg)
}

// planText сохраняет присланный план, заменяя прежний состав задач.
func (r *Router) planText(ctx context.Context, u *user.User, chatID int64, c conversation.Context, text string) error {
	if err := plan.ValidateText(text); err != nil {
		return r.send(ctx, chatID, notify.ErrInvalidPlan(err.Error()))
	}
	tasks := plan.ParseLines(text)

	date := c.Data.PlanDate
	if date == "" {
		date = r.localDate(u)
	}
	if _, err := r.plans.Save(ctx, u.ID, date, tasks); err != nil {
		return errors.Wrapf(err, "save plan for %s", date)
	}
	if err := r.conv.Clear(ctx, chatID); err != nil {
		return err
	}
	return r.send(ctx, chatID, notify.PlanSaved(tasks))
}

// commentText записывает комментарий к задаче из Data.TaskID и возвращает
// диалог к вечерней сверке, если она шла.
func (r *Router) commentText(ctx context.Context, u *user.User, chatID int64, c conversation.Context, text string) error {
	t, err := r.plans.TaskForUser(ctx, c.Data.TaskID, u.ID)
	if err != nil {
		return errors.Wrap(err, "load task for comment")
	}
	if t == nil {
		if err := r.conv.Clear(ctx, chatID); err != nil {
			return err
		}
		return r.send(ctx, chatID, notify.ErrNotFound())
	}

	comment := plan.TruncateRunes(text, plan.MaxTaskLength)
	if err := r.plans.SetTaskComment(ctx, t.ID, comment); err != nil {
		return errors.Wrap(err, "save task comment")
	}

	if c.Data.PlanID != 0 {
		err = r.conv.SetAwaitingConfirmation(ctx, chatID, c.Data.PlanID, c.Data.PlanDate, u.ID)
	} else {
		err = r.conv.Clear(ctx, chatID)
	}
	if err != nil {
		return err
	}
	return r.send(ctx, chatID, notify.CommentSaved())
}

// Настройки через чат: одно значение за диалог, после сохранения — свежая
// сводка настроек.

func (r *Router) settingsTimezone(ctx context.Context, u *user.User, chatID int64, text string) error {
	loc, err := timeutil.ParseLocation(text)
	if err != nil || loc == nil {
		return r.send(ctx, chatID, notify.ErrInvalidTimezone())
	}
	if err := r.users.UpdateTimezone(ctx, u.ID, text); err != nil {
		return errors.Wrap(err, "update timezone")
	}
	return r.settingsSaved(ctx, u, chatID)
}

func (r *Router) settingsTime(ctx context.Context, u *user.User, chatID int64, st conversation.State, text string) error {
	tod, err := timeutil.ParseTimeOfDay(text)
	if err != nil {
		return r.send(ctx, chatID, notify.ErrInvalidTime())
	}
	if st == conversation.StateSettingsMorning {
		err = r.users.UpdateMorningTime(ctx, u.ID, tod)
	} else {
		err = r.users.UpdateEveningTime(ctx, u.ID, tod)
	}
	if err != nil {
		return errors.Wrap(err, "update schedule time")
	}
	return r.settingsSaved(ctx, u, chatID)
}

func (r *Router) settingsReminder(ctx context.Context, u *user.User, chatID int64, st conversation.State, text string) error {
	n, convErr := strconv.Atoi(text)
	var interval, attempts *int
	switch {
	case st == conversation.StateSettingsInterval:
		if convErr != nil || !user.ValidReminderInterval(n) {
			return r.send(ctx, chatID, notify.ErrInvalidInterval(
				user.MinReminderInterval, user.MaxReminderInterval))
		}
		interval = &n
	default:
		if convErr != nil || !user.ValidReminderMaxAttempts(n) {
			return r.send(ctx, chatID, notify.ErrInvalidAttempts(
				user.MinReminderMaxAttempts, user.MaxReminderMaxAttempts))
		}
		attempts = &n
	}
	if err := r.users.UpdateReminderSettings(ctx, u.ID, interval, attempts); err != nil {
		return errors.Wrap(err, "update reminder settings")
	}
	return r.settingsSaved(ctx, u, chatID)
}

// settingsSaved завершает диалог настроек и показывает актуальную сводку.
func (r *Router) settingsSaved(ctx context.Context, u *user.User, chatID int64) error {
	if err := r.conv.Clear(ctx, chatID); err != nil {
		return err
	}
	fresh, err := r.users.ByID(ctx, u.ID)
	if err != nil || fresh == nil {
		fresh = u
	}
	return r.send(ctx, chatID, notify.SettingsView(
		fresh.Timezone, fresh.MorningTime, fresh.EveningTime,
		fresh.ReminderInterval, fresh.ReminderMaxAttempts))
}

// Мастер создания напоминания: время → текст → интервал → потолок в день.
// Черновик переносится между шагами в Data.

func (r *Router) reminderTime(ctx context.Context, chatID int64, text string) error {
	tod, err := timeutil.ParseTimeOfDay(text)
	if err != nil {
		return r.send(ctx, chatID, notify.ErrInvalidTime())
	}
	err = r.conv.Set(ctx, chatID, conversation.Context{
		State: conversation.StateReminderDescription,
		Data:  conversation.Data{ReminderTime: tod.String()},
	})
	if err != nil {
		return err
	}
	return r.send(ctx, chatID, notify.AskReminderDescription(tod))
}

func (r *Router) reminderDescription(ctx context.Context, chatID int64, c conversation.Context, text string) error {
	if text == "" || len([]rune(text)) > reminders.MaxDescriptionLength {
		return r.send(ctx, chatID, notify.ErrInvalidDescription(reminders.MaxDescriptionLength))
	}
	c.State = conversation.StateReminderInterval
	c.Data.ReminderDescription = text
	if err := r.conv.Set(ctx, chatID, c); err != nil {
		return err
	}
	return r.send(ctx, chatID, notify.AskReminderInterval(
		reminders.MinInterval, reminders.MaxInterval, reminders.DefaultInterval))
}

func (r *Router) reminderInterval(ctx context.Context, chatID int64, c conversation.Context, text string) error {
	n, err := strconv.Atoi(text)
	if err != nil || n < reminders.MinInterval || n > reminders.MaxInterval {
		return r.send(ctx, chatID, notify.ErrInvalidInterval(
			reminders.MinInterval, reminders.MaxInterval))
	}
	c.State = conversation.StateReminderMaxAttempts
	c.Data.ReminderInterval = n
	if err := r.conv.Set(ctx, chatID, c); err != nil {
		return err
	}
	return r.send(ctx, chatID, notify.AskReminderMaxAttempts(
		reminders.MinMaxPerDay, reminders.MaxMaxPerDay, reminders.DefaultMaxPerDay))
}

func (r *Router) reminderMaxAttempts(ctx context.Context, u *user.User, chatID int64, c conversation.Context, text string) error {
	n, err := strconv.Atoi(text)
	if err != nil || n < reminders.MinMaxPerDay || n > reminders.MaxMaxPerDay {
		return r.send(ctx, chatID, notify.ErrInvalidAttempts(
			reminders.MinMaxPerDay, reminders.MaxMaxPerDay))
	}

	tod, err := timeutil.ParseTimeOfDay(c.Data.ReminderTime)
	if err != nil {
		// Черновик испорчен (смена формата между версиями) — начинаем заново.
		if err := r.conv.SetState(ctx, chatID, conversation.StateReminderTime); err != nil {
			return err
		}
		return r.send(ctx, chatID, notify.AskReminderTime())
	}

	rem, err := r.rems.Add(ctx, u.ID, tod, c.Data.ReminderDescription, c.Data.ReminderInterval, n)
	if err != nil {
		return errors.Wrap(err, "create reminder")
	}
	if err := r.conv.Clear(ctx, chatID); err != nil {
		return err
	}
	return r.send(ctx, chatID, notify.ReminderCreated(rem))
}
