package dispatch

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"telegram-planner/internal/domain/notify"
	"telegram-planner/internal/domain/reminders"
	"telegram-planner/internal/domain/user"
	"telegram-planner/internal/infra/logger"
	"telegram-planner/internal/infra/timeutil"
)

// LeaseDuration — срок lease на строку напоминания. Двух минут хватает на
// один RTT транспорта с ретраями; воркер, упавший посреди отправки, отдаст
// строку обратно по истечении lease.
const LeaseDuration = 2 * time.Minute

// Custom — ежеминутный диспетчер кастомных напоминаний: атомарно забирает
// назревшие строки под lease, обрабатывает смену локального дня и ставит
// задачи отправки.
type Custom struct {
	rems  reminders.Store
	users user.Store
	enq   notify.Enqueuer

	clock func() time.Time
}

// NewCustom собирает диспетчер кастомных напоминаний.
func NewCustom(rems reminders.Store, users user.Store, enq notify.Enqueuer) *Custom {
	return &Custom{rems: rems, users: users, enq: enq, clock: time.Now}
}

// SetClock подменяет источник времени; нужен тестам.
func (c *Custom) SetClock(clock func() time.Time) { c.clock = clock }

// Tick — один проход: claim назревших строк и постановка задач отправки.
// Строки с закрытым циклом (done или лимит) перевзводятся на следующий
// локальный день прямо здесь, без похода в транспорт.
func (c *Custom) Tick(ctx context.Context) error {
	now := c.clock()
	claimed, err := c.rems.ClaimDue(ctx, now, LeaseDuration)
	if err != nil {
		return errors.Wrap(err, "dispatch: claim reminders")
	}

	for i := range claimed {
		if err := c.dispatchOne(ctx, &claimed[i], now); err != nil {
			logger.Error("Диспетчер напоминаний: строка пропущена",
				zap.Int64("reminder_id", claimed[i].ID), zap.Error(err))
			// Fail closed: снимаем lease, расписание не трогаем — следующий
			// тик возьмёт строку заново.
			if relErr := c.rems.ReleaseLease(ctx, claimed[i].ID); relErr != nil {
				logger.Errorf("Диспетчер напоминаний: не удалось снять lease %d: %v", claimed[i].ID, relErr)
			}
		}
	}
	return nil
}

func (c *Custom) dispatchOne(ctx context.Context, r *reminders.Reminder, now time.Time) error {
	u, err := c.users.ByID(ctx, r.UserID)
	if err != nil {
		return errors.Wrap(err, "load user")
	}
	if u == nil {
		return errors.Errorf("user %d not found", r.UserID)
	}
	today := localDate(u.Timezone, now)

	// Смена локального дня: счётчики прошлого цикла не должны протекать
	// в новый день.
	if r.CycleDate != today {
		if err := c.rems.ResetDayCounters(ctx, r.ID, today); err != nil {
			return errors.Wrap(err, "reset day counters")
		}
		r.CycleDate = today
		r.SentToday = 0
		r.DoneToday = false
	}

	if r.DoneToday || r.SentToday >= r.MaxPerDay {
		// Цикл уже закрыт — перевзводим на следующий локальный день и
		// отпускаем строку без отправки.
		next, cycleDate := reminders.NextDailyFire(u.Timezone, r.TimeOfDay, now)
		if err := c.rems.ResetCycle(ctx, r.ID, reminders.CycleUpdate{
			NextFireAt: next,
			CycleDate:  cycleDate,
		}); err != nil {
			return errors.Wrap(err, "close finished cycle")
		}
		return nil
	}

	if err := c.enq.EnqueueCustom(ctx, r.ID); err != nil {
		return errors.Wrap(err, "enqueue")
	}
	logger.Debug("Диспетчер напоминаний: задача поставлена",
		zap.Int64("reminder_id", r.ID), zap.Int("sent_today", r.SentToday))
	return nil
}

// localDate — локальная дата пользователя; UTC на нерезолвящемся поясе,
// в тон reminders.NextDailyFire.
func localDate(tzName string, now time.Time) string {
	loc, err := timeutil.ParseLocation(tzName)
	if err != nil {
		loc = time.UTC
	}
	return timeutil.LocalDate(now, loc)
}
