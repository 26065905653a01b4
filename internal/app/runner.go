// Файл runner.go — оркестрация жизненного цикла: регистрация подсистем в
// lifecycle-менеджере, запуск в порядке зависимостей и остановка в обратном
// порядке. Бизнес-назначение: гарантировать, что воркеры и роутер гаснут
// раньше хранилищ, а активные доставки успевают завершиться до закрытия
// пула и брокера.
package app

import (
	"context"
	"time"

	"telegram-planner/internal/infra/concurrency"
	"telegram-planner/internal/infra/config"
	"telegram-planner/internal/infra/lifecycle"
	"telegram-planner/internal/infra/logger"
)

// Имена узлов жизненного цикла. Используются в deps при регистрации.
const (
	nodePostgres  = "postgres"
	nodeFSM       = "fsm_store"
	nodeQueueCli  = "queue_client"
	nodeRouter    = "router"
	nodeWorkers   = "queue_workers"
	nodeScheduler = "scheduler"
	nodeWeb       = "web_server"
	nodeWebhook   = "webhook_register"
	nodePoller    = "poller"
	nodeCLI       = "cli"
)

// stopTimeout ограничивает остановку одного узла при shutdown.
const stopTimeout = 10 * time.Second

// Run регистрирует узлы, запускает их и блокируется до отмены mainCtx.
// Остановка идёт в обратном порядке запуска; ошибка любого узла при старте
// приводит к откату уже запущенных.
func (a *App) Run() error {
	m := lifecycle.New(a.mainCtx)

	if err := a.register(m); err != nil {
		return err
	}

	if err := m.StartAll(); err != nil {
		logger.Errorf("Запуск прерван: %v", err)
		_ = m.Shutdown()
		return err
	}
	logger.Infof("Планировщик запущен (режим %s)", a.mode)

	// Автозавершение для тестовых окружений.
	if err := concurrency.StartTimeoutTimer(a.mainCtx, config.Env().RunTimeoutSec, a.mainCancel); err != nil {
		logger.Errorf("Таймер автозавершения: %v", err)
	}

	<-a.mainCtx.Done()
	logger.Info("Получен сигнал остановки")
	return m.Shutdown()
}

// register описывает дерево подсистем. Узлы хранилищ останавливаются
// последними: всё, что может держать соединение, зависит от них.
func (a *App) register(m *lifecycle.Manager) error { //nolint:funlen // линейная регистрация узлов
	type nodeSpec struct {
		name  string
		deps  []string
		start lifecycle.StartFunc
		stop  lifecycle.StopFunc
	}

	specs := []nodeSpec{
		{
			name: nodePostgres,
			stop: func(context.Context) error {
				a.pool.Close()
				return nil
			},
		},
		{
			name: nodeFSM,
			stop: func(context.Context) error {
				return a.fsmCloser.Close()
			},
		},
		{
			name: nodeQueueCli,
			stop: func(context.Context) error {
				return a.qclient.Close()
			},
		},
		{
			name: nodeRouter,
			deps: []string{nodePostgres, nodeFSM, nodeQueueCli},
			start: func(ctx context.Context) (context.Context, error) {
				a.router.Start(ctx)
				return nil, nil
			},
			stop: func(context.Context) error {
				a.router.Stop()
				return nil
			},
		},
		{
			name: nodeWorkers,
			deps: []string{nodePostgres, nodeQueueCli, nodeRouter},
			start: func(context.Context) (context.Context, error) {
				return nil, a.qserver.Start()
			},
			stop: func(context.Context) error {
				a.qserver.Shutdown()
				return nil
			},
		},
		{
			name: nodeScheduler,
			deps: []string{nodeWorkers},
			start: func(context.Context) (context.Context, error) {
				return nil, a.scheduler.Start()
			},
			stop: func(context.Context) error {
				a.scheduler.Shutdown()
				return nil
			},
		},
		{
			name: nodeWeb,
			deps: []string{nodeRouter},
			start: func(ctx context.Context) (context.Context, error) {
				// ListenAndServe блокирует; сбой сервера валит процесс целиком,
				// иначе вебхук молча перестанет приниматься.
				go func() {
					if err := a.webServer.Start(ctx); err != nil {
						logger.Errorf("Веб-сервер: %v", err)
						a.mainCancel()
					}
				}()
				return nil, nil
			},
			stop: func(context.Context) error {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
				defer cancel()
				return a.webServer.Stop(shutdownCtx)
			},
		},
	}

	switch a.mode {
	case ModeWebhook:
		specs = append(specs, nodeSpec{
			name: nodeWebhook,
			deps: []string{nodeWeb},
			start: func(ctx context.Context) (context.Context, error) {
				env := config.Env()
				url := env.WebhookBaseURL + "/webhook"
				if err := a.client.SetWebhook(ctx, url, env.WebhookSecret); err != nil {
					return nil, err
				}
				logger.Infof("Вебхук зарегистрирован: %s", url)
				return nil, nil
			},
			// Вебхук намеренно не снимается при остановке: после рестарта
			// процесс продолжит принимать накопленные апдейты.
		})
	case ModePolling:
		specs = append(specs, nodeSpec{
			name: nodePoller,
			deps: []string{nodeRouter},
			start: func(ctx context.Context) (context.Context, error) {
				return nil, a.poller.Start(ctx)
			},
			stop: func(context.Context) error {
				a.poller.Stop()
				return nil
			},
		})
	}

	if a.cliSvc != nil {
		specs = append(specs, nodeSpec{
			name: nodeCLI,
			deps: []string{nodeWorkers, nodeWeb},
			start: func(ctx context.Context) (context.Context, error) {
				a.cliSvc.Start(ctx)
				return nil, nil
			},
			stop: func(context.Context) error {
				a.cliSvc.Stop()
				return nil
			},
		})
	}

	for _, spec := range specs {
		if err := m.Register(spec.name, "", spec.deps, spec.start, spec.stop); err != nil {
			return err
		}
	}
	return nil
}
