// Навигация по инлайн-меню: ветки перерисовываются на месте сообщения,
// состояние menu:* запоминает открытый экран.

package updates

import (
	"context"

	"github.com/go-faster/errors"

	"telegram-planner/internal/domain/conversation"
	"telegram-planner/internal/domain/notify"
	"telegram-planner/internal/domain/plan"
	"telegram-planner/internal/domain/user"
	"telegram-planner/internal/infra/logger"
)

func (r *Router) cbMenu(ctx context.Context, u *user.User, callbackID string, chatID int64, msgID int, path string) error {
	r.answer(ctx, callbackID, "")

	switch path {
	case notify.MenuMainPath:
		if err := r.conv.SetState(ctx, chatID, conversation.StateMenuMain); err != nil {
			return err
		}
		return r.edit(ctx, chatID, msgID, notify.MenuMain(r.webAppURL))

	case notify.MenuPlanPath:
		if err := r.conv.SetAwaitingPlan(ctx, chatID, r.localDate(u)); err != nil {
			return err
		}
		return r.edit(ctx, chatID, msgID, notify.WithMenuBack(notify.PlanPrompt(r.webAppURL)))

	case notify.MenuTodayPath:
		if err := r.conv.SetState(ctx, chatID, conversation.StateMenuPlan); err != nil {
			return err
		}
		p, err := r.plans.ByDate(ctx, u.ID, r.localDate(u))
		if err != nil {
			return errors.Wrap(err, "load today plan")
		}
		return r.edit(ctx, chatID, msgID, notify.WithMenuBack(notify.TodayView(p)))

	case notify.MenuStatsPath:
		if err := r.conv.SetState(ctx, chatID, conversation.StateMenuStats); err != nil {
			return err
		}
		plans, err := r.plans.All(ctx, u.ID)
		if err != nil {
			return errors.Wrap(err, "load plans for stats")
		}
		summary := plan.BuildSummary(plans, r.localDate(u))
		return r.edit(ctx, chatID, msgID, notify.WithMenuBack(notify.StatsView(summary)))

	case notify.MenuRemindersPath:
		if err := r.conv.SetState(ctx, chatID, conversation.StateMenuSettingsNotify); err != nil {
			return err
		}
		list, err := r.rems.List(ctx, u.ID)
		if err != nil {
			return errors.Wrap(err, "load reminders")
		}
		return r.edit(ctx, chatID, msgID, notify.WithMenuBack(notify.ReminderList(list)))

	case notify.MenuSettingsPath:
		if err := r.conv.SetState(ctx, chatID, conversation.StateMenuSettings); err != nil {
			return err
		}
		view := notify.SettingsView(
			u.Timezone, u.MorningTime, u.EveningTime, u.ReminderInterval, u.ReminderMaxAttempts)
		return r.edit(ctx, chatID, msgID, notify.WithMenuBack(view))
	}

	logger.Debugf("Чат %d: неизвестный пункт меню %q", chatID, path)
	return nil
}

// edit перерисовывает сообщение на месте.
func (r *Router) edit(ctx context.Context, chatID int64, msgID int, msg notify.Message) error {
	if err := r.gw.Edit(ctx, chatID, msgID, msg); err != nil {
		return errors.Wrapf(err, "edit message %d in chat %d", msgID, chatID)
	}
	return nil
}
