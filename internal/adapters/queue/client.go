package queue

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/hibiken/asynq"

	"telegram-planner/internal/domain/notify"
	"telegram-planner/internal/infra/logger"
)

// maxDeliveryRetries — потолок ретраев одной задачи доставки. Вместе с
// backoff-ом 2^(n+1) минут это даёт попытки через 2, 4 и 8 минут.
const maxDeliveryRetries = 3

// Client реализует notify.Enqueuer поверх asynq-клиента.
type Client struct {
	c *asynq.Client
}

var _ notify.Enqueuer = (*Client)(nil)

// NewClient собирает клиента очереди поверх подключения к Redis.
func NewClient(redis asynq.RedisConnOpt) *Client {
	return &Client{c: asynq.NewClient(redis)}
}

// Close закрывает подключение клиента к брокеру.
func (c *Client) Close() error {
	return c.c.Close()
}

// EnqueueMorning ставит утренний запрос плана на немедленную отправку.
func (c *Client) EnqueueMorning(ctx context.Context, userID int64, date string) error {
	task := asynq.NewTask(TypeMorning, marshalPayload(dailyPayload{UserID: userID, Date: date}))
	return c.enqueue(ctx, task,
		asynq.TaskID(morningTaskID(userID, date)),
		asynq.MaxRetry(maxDeliveryRetries))
}

// EnqueueMorningReminder ставит повтор утреннего запроса с задержкой.
func (c *Client) EnqueueMorningReminder(ctx context.Context, userID int64, date string, attempt int, delay time.Duration) error {
	task := asynq.NewTask(TypeMorningReminder,
		marshalPayload(reminderPayload{UserID: userID, Date: date, Attempt: attempt}))
	return c.enqueue(ctx, task,
		asynq.TaskID(morningReminderTaskID(userID, date, attempt)),
		asynq.ProcessIn(delay),
		asynq.MaxRetry(maxDeliveryRetries))
}

// EnqueueEvening ставит вечернюю сверку на немедленную отправку.
func (c *Client) EnqueueEvening(ctx context.Context, userID int64, date string) error {
	task := asynq.NewTask(TypeEvening, marshalPayload(dailyPayload{UserID: userID, Date: date}))
	return c.enqueue(ctx, task,
		asynq.TaskID(eveningTaskID(userID, date)),
		asynq.MaxRetry(maxDeliveryRetries))
}

// EnqueueEveningReminder ставит повтор сверки с задержкой.
func (c *Client) EnqueueEveningReminder(ctx context.Context, userID int64, date string, delay time.Duration) error {
	task := asynq.NewTask(TypeEveningReminder,
		marshalPayload(eveningReminderPayload{UserID: userID, Date: date}))
	return c.enqueue(ctx, task,
		asynq.TaskID(eveningReminderTaskID(userID, date, int(delay.Minutes()))),
		asynq.ProcessIn(delay),
		asynq.MaxRetry(maxDeliveryRetries))
}

// EnqueueCustom ставит срабатывание кастомного напоминания.
func (c *Client) EnqueueCustom(ctx context.Context, reminderID int64) error {
	task := asynq.NewTask(TypeCustom, marshalPayload(customPayload{ReminderID: reminderID}))
	return c.enqueue(ctx, task,
		asynq.TaskID(customTaskID(reminderID)),
		asynq.MaxRetry(maxDeliveryRetries))
}

// enqueue — общий хвост постановки: конфликт детерминированного id означает,
// что такая задача уже в очереди, и это не ошибка.
func (c *Client) enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) error {
	info, err := c.c.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		logger.Debugf("Очередь: задача %s уже поставлена, пропуск", task.Type())
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "queue: enqueue %s", task.Type())
	}
	logger.Debugf("Очередь: задача %s поставлена (id=%s, queue=%s)", task.Type(), info.ID, info.Queue)
	return nil
}
