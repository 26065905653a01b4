// Package dispatch — ежеминутные диспетчеры планировщика.
//
// Daily сканирует пользователей и ставит утренние/вечерние задачи доставки,
// когда локальное время пользователя попадает в окно отправки. Custom
// забирает назревшие кастомные напоминания под короткий lease. Оба диспетчера
// никогда не трогают транспорт: их работа — дедупликация и постановка задач,
// отправкой занимаются сендеры в воркерах очереди.
package dispatch

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"telegram-planner/internal/domain/notify"
	"telegram-planner/internal/domain/user"
	"telegram-planner/internal/infra/logger"
	"telegram-planner/internal/infra/timeutil"
)

// MinWindowMinutes — нижняя граница окна отправки. Окно меньше минуты не
// переживает даже один пропущенный тик.
const MinWindowMinutes = 1

// Daily — ежеминутный диспетчер ежедневных уведомлений. Для каждого
// пользователя и каждого канала (утро/вечер) проверяет попадание в окно
// и отсутствие записи sent в журнале за сегодняшнюю локальную дату.
type Daily struct {
	users  user.Store
	ledger notify.Ledger
	enq    notify.Enqueuer

	windowMin int
	clock     func() time.Time
}

// NewDaily собирает диспетчер. windowMin ограничивается снизу MinWindowMinutes.
func NewDaily(users user.Store, ledger notify.Ledger, enq notify.Enqueuer, windowMin int) *Daily {
	if windowMin < MinWindowMinutes {
		windowMin = MinWindowMinutes
	}
	return &Daily{
		users:     users,
		ledger:    ledger,
		enq:       enq,
		windowMin: windowMin,
		clock:     time.Now,
	}
}

// SetClock подменяет источник времени; нужен тестам.
func (d *Daily) SetClock(clock func() time.Time) { d.clock = clock }

// Tick — один проход по всем пользователям. Ошибки отдельных пользователей
// не прерывают проход: пропущенный из-за сбоя пользователь догонится
// следующим тиком, пока его локальное время в окне.
func (d *Daily) Tick(ctx context.Context) error {
	now := d.clock()
	users, err := d.users.All(ctx)
	if err != nil {
		return errors.Wrap(err, "dispatch: list users")
	}

	enqueued := 0
	for i := range users {
		n, err := d.tickUser(ctx, &users[i], now)
		if err != nil {
			logger.Error("Диспетчер: пользователь пропущен на этом тике",
				zap.Int64("user_id", users[i].ID), zap.Error(err))
			continue
		}
		enqueued += n
	}
	if enqueued > 0 {
		logger.Infof("Диспетчер: поставлено задач доставки: %d", enqueued)
	}
	return nil
}

// tickUser проверяет оба канала одного пользователя. Возвращает число
// поставленных задач.
func (d *Daily) tickUser(ctx context.Context, u *user.User, now time.Time) (int, error) {
	loc, err := u.Location()
	if err != nil {
		// Нерезолвящийся пояс: пропускаем и логируем — отправка по чужим
		// настенным часам хуже, чем пропуск тика.
		return 0, errors.Wrapf(err, "resolve timezone %q", u.Timezone)
	}
	today := timeutil.LocalDate(now, loc)

	enqueued := 0
	for _, ch := range []struct {
		channel notify.Channel
		tod     timeutil.TimeOfDay
	}{
		{notify.ChannelMorning, u.MorningTime},
		{notify.ChannelEvening, u.EveningTime},
	} {
		if !timeutil.InWindow(now, loc, ch.tod, d.windowMin) {
			continue
		}
		sent, err := d.ledger.WasSent(ctx, u.ID, ch.channel, today)
		if err != nil {
			return enqueued, errors.Wrapf(err, "ledger check %s", ch.channel)
		}
		if sent {
			continue
		}
		if err := d.enqueue(ctx, u.ID, ch.channel, today); err != nil {
			return enqueued, errors.Wrapf(err, "enqueue %s", ch.channel)
		}
		logger.Debug("Диспетчер: канал в окне, задача поставлена",
			zap.Int64("user_id", u.ID), zap.String("channel", string(ch.channel)), zap.String("date", today))
		enqueued++
	}
	return enqueued, nil
}

func (d *Daily) enqueue(ctx context.Context, userID int64, ch notify.Channel, date string) error {
	if ch == notify.ChannelMorning {
		return d.enq.EnqueueMorning(ctx, userID, date)
	}
	return d.enq.EnqueueEvening(ctx, userID, date)
}
