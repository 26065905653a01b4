// Long-polling: бот сам запрашивает апдейты у Telegram.
// Подходит для сервера без белого IP — webhook и домен не нужны.
//
// Цикл getUpdates ходит через общий троттлер с backoff-ом и серверными
// retry_after; сетевые сбои ретраятся бесконечно, 401/409 останавливают
// полинг сразу (битый токен либо параллельный полер/webhook).

package botapi

import (
	"context"
	"sync"

	"github.com/go-faster/errors"

	"telegram-planner/internal/infra/logger"
	"telegram-planner/internal/infra/throttle"
)

// pollRate — частота запросов полинга, оп/сек. Реальная частота ниже:
// пустой long-poll висит до longPollTimeout секунд.
const pollRate = 1

// Handler обрабатывает один апдейт. Вызывается последовательно в порядке
// update_id; конкурентность внутри — дело обработчика.
type Handler func(ctx context.Context, upd Update)

// Poller — цикл long-polling-а поверх клиента Bot API.
type Poller struct {
	client  *Client
	handler Handler
	thr     *throttle.Throttler

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPoller создаёт полер. Запуск — отдельным вызовом Start.
func NewPoller(client *Client, handler Handler) *Poller {
	return &Poller{
		client:  client,
		handler: handler,
		thr: throttle.New(pollRate,
			throttle.WithBurst(1),
			throttle.WithWaitExtractors(RetryAfterExtractor()),
		),
	}
}

// Start снимает webhook (иначе Telegram не отдаст апдейты в полинг) и
// запускает фоновый цикл. Повторный Start — no-op.
func (p *Poller) Start(ctx context.Context) error {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.cancel != nil {
		return nil
	}

	if err := p.client.DeleteWebhook(ctx, true); err != nil {
		return errors.Wrap(err, "poller: delete webhook")
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.thr.Start(runCtx)
	p.wg.Go(func() {
		p.loop(runCtx)
	})

	logger.Infof("Запущен long polling (webhook не нужен)")
	return nil
}

// Stop останавливает цикл и дожидается завершения текущей итерации.
func (p *Poller) Stop() {
	p.runMu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	p.thr.Stop()
	p.wg.Wait()
}

func (p *Poller) loop(ctx context.Context) {
	var offset int64
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var updates []Update
		err := p.thr.Do(ctx, func() error {
			var callErr error
			updates, callErr = p.client.GetUpdates(ctx, offset)
			return callErr
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Сюда попадают только StopRetry-ошибки: остальные троттлер
			// ретраит сам без ограничения попыток.
			logger.Errorf("Полинг остановлен: %v", err)
			return
		}

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			p.handler(ctx, upd)
		}
	}
}
