// Обработка слэш-команд и кнопок reply-меню.

package updates

import (
	"context"
	"strings"

	"github.com/go-faster/errors"

	"telegram-planner/internal/domain/conversation"
	"telegram-planner/internal/domain/notify"
	"telegram-planner/internal/domain/plan"
	"telegram-planner/internal/domain/user"
	"telegram-planner/internal/infra/logger"
)

// menuLabelCommand сопоставляет текст кнопки reply-меню с командой.
func menuLabelCommand(text string) (string, bool) {
	switch text {
	case notify.MenuLabelPlan:
		return "/plan", true
	case notify.MenuLabelToday:
		return "/today", true
	case notify.MenuLabelStats:
		return "/stats", true
	case notify.MenuLabelReminders:
		return "/reminders", true
	case notify.MenuLabelSettings:
		return "/settings", true
	}
	return "", false
}

// splitCommand выделяет имя команды, срезая упоминание бота («/plan@MyBot»).
func splitCommand(text string) string {
	cmd, _, _ := strings.Cut(text, " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return cmd
}

func (r *Router) handleCommand(ctx context.Context, u *user.User, chatID int64, text string) error {
	cmd := splitCommand(text)

	// До конца онбординга доступен только /start: остальные команды
	// возвращают пользователя к первичной настройке.
	if !u.Onboarded() && cmd != "/start" {
		return r.startOnboarding(ctx, chatID)
	}

	switch cmd {
	case "/start":
		if !u.Onboarded() {
			return r.startOnboarding(ctx, chatID)
		}
		if err := r.conv.SetState(ctx, chatID, conversation.StateMenuMain); err != nil {
			return err
		}
		return r.send(ctx, chatID, notify.MenuMain(r.webAppURL))

	case "/help":
		return r.send(ctx, chatID, notify.HelpView())

	case "/menu":
		if err := r.conv.SetState(ctx, chatID, conversation.StateMenuMain); err != nil {
			return err
		}
		return r.send(ctx, chatID, notify.MenuMain(r.webAppURL))

	case "/today":
		return r.cmdToday(ctx, u, chatID)

	case "/stats":
		return r.cmdStats(ctx, u, chatID)

	case "/settings":
		return r.send(ctx, chatID, notify.SettingsView(
			u.Timezone, u.MorningTime, u.EveningTime, u.ReminderInterval, u.ReminderMaxAttempts))

	case "/reminders":
		return r.cmdReminders(ctx, u, chatID)

	case "/plan":
		if err := r.conv.SetAwaitingPlan(ctx, chatID, r.localDate(u)); err != nil {
			return err
		}
		return r.send(ctx, chatID, notify.PlanPrompt(r.webAppURL))

	case "/skip":
		if err := r.conv.Clear(ctx, chatID); err != nil {
			return err
		}
		return r.send(ctx, chatID, notify.PlanSkipped())

	case "/reset_evening":
		return r.cmdResetEvening(ctx, u, chatID)

	case "/set_timezone":
		if err := r.conv.SetState(ctx, chatID, conversation.StateSettingsTimezone); err != nil {
			return err
		}
		return r.send(ctx, chatID, notify.AskTimezoneText())

	case "/set_morning":
		if err := r.conv.SetState(ctx, chatID, conversation.StateSettingsMorning); err != nil {
			return err
		}
		return r.send(ctx, chatID, notify.AskMorningTime())

	case "/set_evening":
		if err := r.conv.SetState(ctx, chatID, conversation.StateSettingsEvening); err != nil {
			return err
		}
		return r.send(ctx, chatID, notify.AskEveningTime())

	case "/set_interval":
		if err := r.conv.SetState(ctx, chatID, conversation.StateSettingsInterval); err != nil {
			return err
		}
		return r.send(ctx, chatID, notify.AskReminderSettingsInterval(
			user.MinReminderInterval, user.MaxReminderInterval))

	case "/set_attempts":
		if err := r.conv.SetState(ctx, chatID, conversation.StateSettingsMaxAttempts); err != nil {
			return err
		}
		return r.send(ctx, chatID, notify.AskReminderSettingsAttempts(
			user.MinReminderMaxAttempts, user.MaxReminderMaxAttempts))
	}

	logger.Debugf("Чат %d: неизвестная команда %s", chatID, cmd)
	return r.send(ctx, chatID, notify.HelpView())
}

func (r *Router) cmdToday(ctx context.Context, u *user.User, chatID int64) error {
	p, err := r.plans.ByDate(ctx, u.ID, r.localDate(u))
	if err != nil {
		return errors.Wrap(err, "load today plan")
	}
	return r.send(ctx, chatID, notify.TodayView(p))
}

func (r *Router) cmdStats(ctx context.Context, u *user.User, chatID int64) error {
	plans, err := r.plans.All(ctx, u.ID)
	if err != nil {
		return errors.Wrap(err, "load plans for stats")
	}
	summary := plan.BuildSummary(plans, r.localDate(u))
	return r.send(ctx, chatID, notify.StatsView(summary))
}

func (r *Router) cmdReminders(ctx context.Context, u *user.User, chatID int64) error {
	list, err := r.rems.List(ctx, u.ID)
	if err != nil {
		return errors.Wrap(err, "load reminders")
	}
	return r.send(ctx, chatID, notify.ReminderList(list))
}

// cmdResetEvening — админский перезапуск вечерней сверки: записи sent за
// сегодня удаляются из журнала, сверка ставится в очередь заново.
func (r *Router) cmdResetEvening(ctx context.Context, u *user.User, chatID int64) error {
	date := r.localDate(u)
	removed, err := r.ledger.ResetSent(ctx, u.ID, notify.ChannelEvening, date)
	if err != nil {
		return errors.Wrap(err, "reset evening ledger")
	}
	logger.Infof("Чат %d: сброс вечерней сверки за %s, удалено записей: %d", chatID, date, removed)
	if err := r.enq.EnqueueEvening(ctx, u.ID, date); err != nil {
		return errors.Wrap(err, "re-enqueue evening")
	}
	return r.send(ctx, chatID, notify.EveningResetDone(date))
}
