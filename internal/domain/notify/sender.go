// Сендеры каналов доставки. Вызываются обработчиками очереди задач: диспетчер
// только ставит задачи, весь транспортный ввод-вывод происходит здесь.
//
// Контракт с очередью: возвращённая ошибка означает «повторить с backoff-ом»;
// nil — задача закрыта (успех, постоянная ошибка или исчерпание попыток —
// исход уже зафиксирован в журнале). Номер попытки и признак последней
// передаются из счётчика ретраев очереди: он единственный источник правды
// для поля attempt в журнале.

package notify

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"telegram-planner/internal/domain/conversation"
	"telegram-planner/internal/domain/plan"
	"telegram-planner/internal/domain/reminders"
	"telegram-planner/internal/domain/user"
	"telegram-planner/internal/infra/logger"
	"telegram-planner/internal/infra/timeutil"
)

// Смещения повторов вечерней сверки от успешной отправки промпта.
var eveningReminderOffsets = []time.Duration{time.Hour, 3 * time.Hour}

// Sender выполняет доставку всех видов уведомлений. permanent — предикат
// «получатель недоступен навсегда» (инжектируется адаптером транспорта).
type Sender struct {
	transport Transport
	permanent func(error) bool

	users  user.Store
	plans  plan.Store
	rems   reminders.Store
	ledger Ledger
	conv   *conversation.Manager
	enq    Enqueuer

	webAppURL string
	clock     func() time.Time
}

// SenderOptions — зависимости Sender. Все поля, кроме WebAppURL и Clock,
// обязательны.
type SenderOptions struct {
	Transport Transport
	Permanent func(error) bool
	Users     user.Store
	Plans     plan.Store
	Reminders reminders.Store
	Ledger    Ledger
	Conv      *conversation.Manager
	Enqueuer  Enqueuer
	WebAppURL string
	Clock     func() time.Time
}

// NewSender собирает Sender.
func NewSender(opts SenderOptions) *Sender {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	permanent := opts.Permanent
	if permanent == nil {
		permanent = func(error) bool { return false }
	}
	return &Sender{
		transport: opts.Transport,
		permanent: permanent,
		users:     opts.Users,
		plans:     opts.Plans,
		rems:      opts.Reminders,
		ledger:    opts.Ledger,
		conv:      opts.Conv,
		enq:       opts.Enqueuer,
		webAppURL: opts.WebAppURL,
		clock:     clock,
	}
}

// SendMorning — утренний запрос плана. На успехе: запись sent, перевод диалога
// в «жду план» и постановка первого повтора (если повторы включены).
func (s *Sender) SendMorning(ctx context.Context, userID int64, date string, attempt int, final bool) error {
	u, err := s.users.ByID(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "morning: load user")
	}
	if u == nil {
		logger.Warnf("Утренний промпт: пользователь %d не найден, задача закрыта", userID)
		return nil
	}

	// Ретрай после временного сбоя шлёт тот же текст первой попытки:
	// «напоминающий» текст ходит отдельным каналом SendMorningReminder.
	if _, err := s.transport.Send(ctx, u.TelegramID, MorningPrompt(s.webAppURL)); err != nil {
		return s.deliveryFailed(ctx, u, ChannelMorning, Payload{Date: date, Attempt: attempt}, final, err)
	}

	if err := s.ledger.Record(ctx, userID, ChannelMorning, OutcomeSent, Payload{Date: date, Attempt: attempt}); err != nil {
		return errors.Wrap(err, "morning: record sent")
	}
	if err := s.conv.SetAwaitingPlan(ctx, u.TelegramID, date); err != nil {
		logger.Errorf("Утренний промпт: не удалось перевести диалог в ожидание плана: %v", err)
	}
	if u.ReminderMaxAttempts >= 1 {
		delay := time.Duration(u.ReminderInterval) * time.Minute
		if err := s.enq.EnqueueMorningReminder(ctx, userID, date, 1, delay); err != nil {
			logger.Errorf("Утренний промпт: не удалось поставить повтор: %v", err)
		}
	}
	return nil
}

// SendMorningReminder — повторный утренний запрос. Молча выходит, если план
// уже записан или превышен потолок повторов.
func (s *Sender) SendMorningReminder(ctx context.Context, userID int64, date string, attempt int) error {
	u, err := s.users.ByID(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "morning reminder: load user")
	}
	if u == nil {
		return nil
	}
	if attempt > u.ReminderMaxAttempts {
		return nil
	}
	p, err := s.plans.ByDate(ctx, userID, date)
	if err != nil {
		return errors.Wrap(err, "morning reminder: load plan")
	}
	if p != nil {
		// План появился — повторы больше не нужны.
		return nil
	}

	if _, err := s.transport.Send(ctx, u.TelegramID, MorningReminder(attempt)); err != nil {
		if s.permanent(err) {
			logger.Warnf("Утреннее напоминание %d/%d: постоянная ошибка, повторы остановлены: %v",
				attempt, u.ReminderMaxAttempts, err)
			return nil
		}
		return errors.Wrap(err, "morning reminder: send")
	}

	if err := s.ledger.Record(ctx, userID, ChannelMorning, OutcomeSent, Payload{Date: date, Attempt: attempt}); err != nil {
		return errors.Wrap(err, "morning reminder: record sent")
	}
	if err := s.conv.SetAwaitingPlan(ctx, u.TelegramID, date); err != nil {
		logger.Errorf("Утреннее напоминание: не удалось перевести диалог: %v", err)
	}
	if attempt < u.ReminderMaxAttempts {
		delay := time.Duration(u.ReminderInterval) * time.Minute
		if err := s.enq.EnqueueMorningReminder(ctx, userID, date, attempt+1, delay); err != nil {
			logger.Errorf("Утреннее напоминание: не удалось поставить следующий повтор: %v", err)
		}
	}
	return nil
}

// SendEvening — вечерняя сверка. Без плана шлётся «сверять нечего» и канал
// закрывается. На успехе ставятся два повтора (+1ч и +3ч).
func (s *Sender) SendEvening(ctx context.Context, userID int64, date string, attempt int, final bool) error {
	u, err := s.users.ByID(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "evening: load user")
	}
	if u == nil {
		return nil
	}
	p, err := s.plans.ByDate(ctx, userID, date)
	if err != nil {
		return errors.Wrap(err, "evening: load plan")
	}

	if p == nil || len(p.Tasks) == 0 {
		if _, err := s.transport.Send(ctx, u.TelegramID, EveningNoPlan()); err != nil {
			return s.deliveryFailed(ctx, u, ChannelEvening, Payload{Date: date, Attempt: attempt}, final, err)
		}
		if err := s.ledger.Record(ctx, userID, ChannelEvening, OutcomeSent, Payload{Date: date, Attempt: attempt}); err != nil {
			return errors.Wrap(err, "evening: record sent")
		}
		return nil
	}

	if err := s.conv.SetAwaitingConfirmation(ctx, u.TelegramID, p.ID, date, userID); err != nil {
		logger.Errorf("Вечерняя сверка: не удалось перевести диалог: %v", err)
	}
	if _, err := s.transport.Send(ctx, u.TelegramID, EveningReview(p)); err != nil {
		return s.deliveryFailed(ctx, u, ChannelEvening, Payload{Date: date, Attempt: attempt, PlanID: p.ID}, final, err)
	}

	if err := s.ledger.Record(ctx, userID, ChannelEvening, OutcomeSent,
		Payload{Date: date, Attempt: attempt, PlanID: p.ID}); err != nil {
		return errors.Wrap(err, "evening: record sent")
	}
	for _, offset := range eveningReminderOffsets {
		if err := s.enq.EnqueueEveningReminder(ctx, userID, date, offset); err != nil {
			logger.Errorf("Вечерняя сверка: не удалось поставить повтор через %s: %v", offset, err)
		}
	}
	return nil
}

// SendEveningReminder — повтор сверки. Молча выходит, когда плана нет или все
// задачи уже отвечены.
func (s *Sender) SendEveningReminder(ctx context.Context, userID int64, date string) error {
	u, err := s.users.ByID(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "evening reminder: load user")
	}
	if u == nil {
		return nil
	}
	p, err := s.plans.ByDate(ctx, userID, date)
	if err != nil {
		return errors.Wrap(err, "evening reminder: load plan")
	}
	if p == nil || len(p.Tasks) == 0 || p.AllAnswered() {
		return nil
	}

	if err := s.conv.SetAwaitingConfirmation(ctx, u.TelegramID, p.ID, date, userID); err != nil {
		logger.Errorf("Вечернее напоминание: не удалось перевести диалог: %v", err)
	}
	if _, err := s.transport.Send(ctx, u.TelegramID, EveningReminder(p)); err != nil {
		if s.permanent(err) {
			logger.Warnf("Вечернее напоминание: постоянная ошибка, повтор отменён: %v", err)
			return nil
		}
		return errors.Wrap(err, "evening reminder: send")
	}
	return nil
}

// SendCustom — одно срабатывание кастомного напоминания. Вызывается из
// обработчика очереди после того, как диспетчер взял строку под lease.
//
// Исходы:
//   - успех: attempts+1, затем либо повтор через Interval (цикл продолжается),
//     либо перевзвод на следующий локальный день (done/лимит);
//   - временный сбой: lease снимается, next_fire двигается на +Interval,
//     счётчик не растёт;
//   - постоянный сбой: цикл закрывается до следующего локального дня.
func (s *Sender) SendCustom(ctx context.Context, reminderID int64) error {
	r, err := s.rems.ByID(ctx, reminderID)
	if err != nil {
		return errors.Wrap(err, "custom: load reminder")
	}
	if r == nil || !r.Enabled {
		return nil
	}
	u, err := s.users.ByID(ctx, r.UserID)
	if err != nil {
		return errors.Wrap(err, "custom: load user")
	}
	if u == nil {
		return nil
	}
	now := s.clock()

	if r.SentToday >= r.MaxPerDay || r.DoneToday {
		// Гонка с кликом «Выполнено» или двойная постановка: цикл уже закрыт.
		return s.closeCycle(ctx, r, u.Timezone, now)
	}

	if _, err := s.transport.Send(ctx, u.TelegramID, CustomReminder(r)); err != nil {
		if s.permanent(err) {
			logger.Warnf("Кастомное напоминание %d: постоянная ошибка, перевзвод на завтра: %v", r.ID, err)
			return s.closeCycle(ctx, r, u.Timezone, now)
		}
		// Временный сбой: перевзводим внутри цикла и снимаем lease; попытка
		// не считается использованной.
		next := now.Add(time.Duration(r.Interval) * time.Minute)
		if rearmErr := s.rems.RearmSameCycle(ctx, r.ID, next); rearmErr != nil {
			logger.Error("Кастомное напоминание: не удалось перевзвести после сбоя",
				zap.Int64("reminder_id", r.ID), zap.Error(rearmErr))
		}
		return errors.Wrap(err, "custom: send")
	}

	if err := s.rems.MarkSent(ctx, r.ID, now); err != nil {
		// Fail closed: отправка прошла, но бухгалтерия не записалась.
		// Снимаем lease и оставляем расписание как есть — следующий тик разберётся.
		if relErr := s.rems.ReleaseLease(ctx, r.ID); relErr != nil {
			logger.Errorf("Кастомное напоминание %d: не удалось снять lease: %v", r.ID, relErr)
		}
		return errors.Wrap(err, "custom: mark sent")
	}

	if r.CycleFinished(r.SentToday + 1) {
		return s.closeCycle(ctx, r, u.Timezone, now)
	}
	next := now.Add(time.Duration(r.Interval) * time.Minute)
	if err := s.rems.RearmSameCycle(ctx, r.ID, next); err != nil {
		return errors.Wrap(err, "custom: rearm")
	}
	return nil
}

// closeCycle перевзводит напоминание на следующий локальный день: счётчики
// в ноль, done снят, lease снят.
func (s *Sender) closeCycle(ctx context.Context, r *reminders.Reminder, tz string, now time.Time) error {
	next, cycleDate := reminders.NextDailyFire(tz, r.TimeOfDay, now)
	if err := s.rems.ResetCycle(ctx, r.ID, reminders.CycleUpdate{
		NextFireAt: next,
		CycleDate:  cycleDate,
	}); err != nil {
		return errors.Wrap(err, "custom: reset cycle")
	}
	return nil
}

// deliveryFailed — общий хвост неуспешной отправки промпта: классификация,
// запись в журнал и best-effort сообщение об ошибке пользователю.
// Возвращает nil, когда задача закрыта, и ошибку, когда нужен ретрай.
func (s *Sender) deliveryFailed(ctx context.Context, u *user.User, ch Channel, p Payload, final bool, sendErr error) error {
	p.Error = sendErr.Error()

	if s.permanent(sendErr) {
		logger.Warn("Доставка невозможна: получатель недоступен",
			zap.Int64("user_id", u.ID), zap.String("channel", string(ch)), zap.Error(sendErr))
		if err := s.ledger.Record(ctx, u.ID, ch, OutcomeFailed, p); err != nil {
			logger.Errorf("Журнал: не удалось записать failed: %v", err)
		}
		s.sendErrorBestEffort(ctx, u.TelegramID)
		return nil
	}

	if final {
		logger.Error("Доставка провалена: ретраи исчерпаны",
			zap.Int64("user_id", u.ID), zap.String("channel", string(ch)),
			zap.Int("attempt", p.Attempt), zap.Error(sendErr))
		if err := s.ledger.Record(ctx, u.ID, ch, OutcomeFailed, p); err != nil {
			logger.Errorf("Журнал: не удалось записать failed: %v", err)
		}
		s.sendErrorBestEffort(ctx, u.TelegramID)
		return nil
	}

	if err := s.ledger.Record(ctx, u.ID, ch, OutcomeRetried, p); err != nil {
		logger.Errorf("Журнал: не удалось записать retried: %v", err)
	}
	return errors.Wrapf(sendErr, "%s: send", ch)
}

// sendErrorBestEffort шлёт пользователю сообщение о сбое доставки; ошибки
// подавляются — это последний жест, а не обязательство.
func (s *Sender) sendErrorBestEffort(ctx context.Context, chatID int64) {
	if _, err := s.transport.Send(ctx, chatID, DeliveryError()); err != nil {
		logger.Debugf("Сообщение об ошибке доставки не ушло (подавлено): %v", err)
	}
}

// LocalDateFor — локальная дата пользователя на момент t; UTC при
// нерезолвящемся поясе.
func LocalDateFor(u *user.User, t time.Time) string {
	loc, err := u.Location()
	if err != nil {
		loc = time.UTC
	}
	return timeutil.LocalDate(t, loc)
}
