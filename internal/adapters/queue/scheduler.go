package queue

import (
	"github.com/go-faster/errors"
	"github.com/hibiken/asynq"

	"telegram-planner/internal/infra/logger"
)

// beatSpec — cron-выражение ежеминутного beat обоих диспетчеров.
const beatSpec = "* * * * *"

// Scheduler ставит beat-задачи диспетчеров каждую минуту. Детерминированный
// id beat-задачи отсекает наложение: пока прошлый тик ещё выполняется,
// следующий просто не ставится.
type Scheduler struct {
	sch *asynq.Scheduler
}

// NewScheduler собирает планировщик beat-задач.
func NewScheduler(redis asynq.RedisConnOpt) (*Scheduler, error) {
	sch := asynq.NewScheduler(redis, &asynq.SchedulerOpts{
		Logger: asynqLogger{},
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
				logger.Errorf("Планировщик: постановка beat не удалась: %v", err)
			}
		},
	})

	for _, typ := range []string{TypeDispatchDaily, TypeDispatchCustom} {
		_, err := sch.Register(beatSpec, asynq.NewTask(typ, nil),
			asynq.TaskID(typ), asynq.MaxRetry(0))
		if err != nil {
			return nil, errors.Wrapf(err, "queue: register beat %s", typ)
		}
	}
	return &Scheduler{sch: sch}, nil
}

// Start запускает планировщик в фоне.
func (s *Scheduler) Start() error {
	return s.sch.Start()
}

// Shutdown останавливает планировщик.
func (s *Scheduler) Shutdown() {
	s.sch.Shutdown()
}
