package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"telegram-planner/internal/domain/dispatch"
	"telegram-planner/internal/domain/notify"
	"telegram-planner/internal/infra/logger"
)

// Server — воркеры очереди: обработчики задач доставки и ежеминутных
// проходов диспетчеров.
type Server struct {
	srv *asynq.Server
	mux *asynq.ServeMux
}

// ServerOptions — зависимости воркеров.
type ServerOptions struct {
	Redis       asynq.RedisConnOpt
	Concurrency int

	Sender *notify.Sender
	Daily  *dispatch.Daily
	Custom *dispatch.Custom
}

// NewServer собирает воркеров. Backoff ретраев экспоненциальный: 2^(n+1)
// минут после n-й неудачи, то есть 2, 4 и 8 минут.
func NewServer(opts ServerOptions) *Server {
	srv := asynq.NewServer(opts.Redis, asynq.Config{
		Concurrency: opts.Concurrency,
		RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
			return time.Duration(1<<(n+1)) * time.Minute
		},
		Logger: asynqLogger{},
	})

	mux := asynq.NewServeMux()
	s := &Server{srv: srv, mux: mux}

	mux.HandleFunc(TypeMorning, func(ctx context.Context, t *asynq.Task) error {
		var p dailyPayload
		if err := unmarshalPayload(t, &p); err != nil {
			return err
		}
		attempt, final := retryState(ctx)
		return opts.Sender.SendMorning(ctx, p.UserID, p.Date, attempt, final)
	})
	mux.HandleFunc(TypeMorningReminder, func(ctx context.Context, t *asynq.Task) error {
		var p reminderPayload
		if err := unmarshalPayload(t, &p); err != nil {
			return err
		}
		return opts.Sender.SendMorningReminder(ctx, p.UserID, p.Date, p.Attempt)
	})
	mux.HandleFunc(TypeEvening, func(ctx context.Context, t *asynq.Task) error {
		var p dailyPayload
		if err := unmarshalPayload(t, &p); err != nil {
			return err
		}
		attempt, final := retryState(ctx)
		return opts.Sender.SendEvening(ctx, p.UserID, p.Date, attempt, final)
	})
	mux.HandleFunc(TypeEveningReminder, func(ctx context.Context, t *asynq.Task) error {
		var p eveningReminderPayload
		if err := unmarshalPayload(t, &p); err != nil {
			return err
		}
		return opts.Sender.SendEveningReminder(ctx, p.UserID, p.Date)
	})
	mux.HandleFunc(TypeCustom, func(ctx context.Context, t *asynq.Task) error {
		var p customPayload
		if err := unmarshalPayload(t, &p); err != nil {
			return err
		}
		return opts.Sender.SendCustom(ctx, p.ReminderID)
	})

	// Beat-задачи диспетчеров: один проход на тик, ретраи не нужны —
	// следующий beat придёт через минуту.
	mux.HandleFunc(TypeDispatchDaily, func(ctx context.Context, _ *asynq.Task) error {
		return opts.Daily.Tick(ctx)
	})
	mux.HandleFunc(TypeDispatchCustom, func(ctx context.Context, _ *asynq.Task) error {
		return opts.Custom.Tick(ctx)
	})

	return s
}

// retryState извлекает из контекста задачи номер попытки и признак последней.
// Счётчик ретраев очереди — единственный источник правды для поля attempt.
func retryState(ctx context.Context) (attempt int, final bool) {
	attempt, _ = asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	return attempt, attempt >= maxRetry
}

// Start запускает воркеров в фоне.
func (s *Server) Start() error {
	return s.srv.Start(s.mux)
}

// Shutdown дожидается активных задач и останавливает воркеров.
func (s *Server) Shutdown() {
	s.srv.Shutdown()
}

// asynqLogger направляет внутренние сообщения asynq в общий логгер.
type asynqLogger struct{}

func (asynqLogger) Debug(args ...interface{}) { logger.Debugf("asynq: %s", fmt.Sprint(args...)) }
func (asynqLogger) Info(args ...interface{})  { logger.Infof("asynq: %s", fmt.Sprint(args...)) }
func (asynqLogger) Warn(args ...interface{})  { logger.Warnf("asynq: %s", fmt.Sprint(args...)) }
func (asynqLogger) Error(args ...interface{}) { logger.Errorf("asynq: %s", fmt.Sprint(args...)) }
func (asynqLogger) Fatal(args ...interface{}) { logger.Errorf("asynq: %s", fmt.Sprint(args...)) }
