// Package app — верхний уровень сборки и инициализации планировщика.
// Здесь связываются конфигурация, хранилища (Postgres, Redis/Bolt), клиент
// Bot API, очередь задач asynq, диспетчеры, роутер апдейтов и сервисные
// поверхности (web, CLI). Отсюда стартует жизненный цикл и обеспечивается
// корректный shutdown.
package app

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/term"

	"telegram-planner/internal/adapters/botapi"
	"telegram-planner/internal/adapters/botapi/notifier"
	"telegram-planner/internal/adapters/cli"
	"telegram-planner/internal/adapters/postgres"
	"telegram-planner/internal/adapters/queue"
	"telegram-planner/internal/adapters/web"
	"telegram-planner/internal/domain/conversation"
	"telegram-planner/internal/domain/dispatch"
	"telegram-planner/internal/domain/notify"
	"telegram-planner/internal/domain/reminders"
	"telegram-planner/internal/domain/updates"
	"telegram-planner/internal/infra/config"
	"telegram-planner/internal/infra/fsmstate"
	"telegram-planner/internal/infra/logger"
)

// Режимы получения апдейтов.
const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

// fsmStateTTL — срок жизни диалогового состояния в Redis. Брошенный на
// полуслове диалог не должен держать ключ вечно.
const fsmStateTTL = 30 * 24 * time.Hour

// App агрегирует зависимости планировщика и управляет их связью.
// Фактическая инициализация выполняется в Init(), запуск — в Run().
type App struct {
	mainCtx    context.Context    // Контекст жизненного цикла приложения.
	mainCancel context.CancelFunc // Инициирует отмену mainCtx.
	mode       string             // polling | webhook

	pool      *pgxpool.Pool   // Пул соединений Postgres.
	store     *postgres.Store // Доменные адаптеры поверх пула.
	fsmCloser io.Closer       // Хранилище диалоговых состояний (redis или bolt).

	client    *botapi.Client        // HTTP-клиент Bot API с лимитером.
	notif     *notifier.Notifier    // Транспорт сообщений и Gateway роутера.
	qclient   *queue.Client         // Постановка задач в asynq.
	qserver   *queue.Server         // Воркеры очереди.
	scheduler *queue.Scheduler      // Ежеминутные beat-задачи диспетчеров.
	daily     *dispatch.Daily       // Диспетчер ежедневных уведомлений.
	custom    *dispatch.Custom      // Диспетчер кастомных напоминаний.
	router    *updates.Router       // Маршрутизация входящих апдейтов.
	webServer *web.Server           // Вебхук + API мини-приложения.
	poller    *botapi.Poller        // Long polling (только mode=polling).
	cliSvc    *cli.Service          // Операторская консоль (TTY).
	conv      *conversation.Manager // Диалоговый автомат.
	rems      *reminders.Service    // Валидация и CRUD кастомных напоминаний.
}

// NewApp создаёт пустой каркас приложения.
func NewApp() *App {
	return &App{}
}

// Init собирает все подсистемы в порядке зависимостей: хранилища, транспорт,
// очередь, диспетчеры, роутер и сервисные поверхности. Ошибка на любом шаге
// фатальна: частично собранное приложение не запускается.
func (a *App) Init(mainCtx context.Context, mainCancel context.CancelFunc, mode string) error {
	if mode != ModePolling && mode != ModeWebhook {
		return errors.Errorf("invalid mode %q (must be %s or %s)", mode, ModePolling, ModeWebhook)
	}
	a.mainCtx = mainCtx
	a.mainCancel = mainCancel
	a.mode = mode
	env := config.Env()

	if mode == ModeWebhook && env.WebhookBaseURL == "" {
		return errors.New("webhook mode requires WEBHOOK_BASE_URL")
	}

	// Postgres: пул + доменные адаптеры.
	pool, err := postgres.NewPool(mainCtx, env.DatabaseURL)
	if err != nil {
		return err
	}
	a.pool = pool
	a.store = postgres.New(pool)

	// Redis-брокер очереди.
	redisOpt, err := asynq.ParseRedisURI(env.RedisURL)
	if err != nil {
		return errors.Wrap(err, "parse REDIS_URL")
	}

	// Хранилище диалоговых состояний: общий Redis или локальный Bolt.
	fsmStore, fsmCloser, err := newFSMStore(env)
	if err != nil {
		return err
	}
	a.fsmCloser = fsmCloser
	a.conv = conversation.NewManager(fsmStore)

	// Клиент Bot API и проверка токена.
	a.client = botapi.NewClient(env.BotToken, env.ThrottleRPS)
	me, err := a.client.GetMe(mainCtx)
	if err != nil {
		return errors.Wrap(err, "getMe")
	}
	logger.Infof("Бот авторизован: @%s (id=%d)", me.Username, me.ID)

	a.notif = notifier.New(a.client)
	a.qclient = queue.NewClient(redisOpt)
	a.rems = reminders.NewService(a.store.Reminders, a.store.Users)

	webAppURL := webAppURLFor(env.WebhookBaseURL)

	sender := notify.NewSender(notify.SenderOptions{
		Transport: a.notif,
		Permanent: botapi.IsPermanent,
		Users:     a.store.Users,
		Plans:     a.store.Plans,
		Reminders: a.store.Reminders,
		Ledger:    a.store.Ledger,
		Conv:      a.conv,
		Enqueuer:  a.qclient,
		WebAppURL: webAppURL,
	})

	a.daily = dispatch.NewDaily(a.store.Users, a.store.Ledger, a.qclient, env.DispatchWindowMin)
	a.custom = dispatch.NewCustom(a.store.Reminders, a.store.Users, a.qclient)

	a.qserver = queue.NewServer(queue.ServerOptions{
		Redis:       redisOpt,
		Concurrency: env.WorkerConcurrency,
		Sender:      sender,
		Daily:       a.daily,
		Custom:      a.custom,
	})
	a.scheduler, err = queue.NewScheduler(redisOpt)
	if err != nil {
		return err
	}

	a.router = updates.NewRouter(updates.Options{
		Users:          a.store.Users,
		Plans:          a.store.Plans,
		Reminders:      a.rems,
		Ledger:         a.store.Ledger,
		Enqueuer:       a.qclient,
		Conv:           a.conv,
		Gateway:        a.notif,
		WebAppURL:      webAppURL,
		DedupWindowSec: env.DedupWindowSec,
		DebounceMS:     env.DebounceEditMS,
	})

	a.webServer = web.NewServer(web.Options{
		Listen:        env.WebListen,
		BotToken:      env.BotToken,
		WebhookSecret: env.WebhookSecret,
		Users:         a.store.Users,
		Plans:         a.store.Plans,
		Reminders:     a.rems,
		Router:        a.router,
	})

	if mode == ModePolling {
		a.poller = botapi.NewPoller(a.client, a.router.HandleUpdate)
	}

	// Консоль поднимается только на интерактивном терминале: воркеру в
	// контейнере readline ни к чему.
	if env.CLIEnable && term.IsTerminal(int(os.Stdin.Fd())) {
		a.cliSvc = cli.NewService(cli.Options{
			StopApp:   mainCancel,
			Users:     a.store.Users,
			Ledger:    a.store.Ledger,
			Enq:       a.qclient,
			Daily:     a.daily,
			Custom:    a.custom,
			Inspector: asynq.NewInspector(redisOpt),
		})
	}

	return nil
}

// newFSMStore выбирает бэкенд диалоговых состояний по конфигурации.
func newFSMStore(env config.EnvConfig) (fsmstate.Store, io.Closer, error) {
	switch env.FSMBackend {
	case "redis":
		opts, err := redis.ParseURL(env.RedisURL)
		if err != nil {
			return nil, nil, errors.Wrap(err, "parse REDIS_URL for fsm store")
		}
		st := fsmstate.NewRedisStore(redis.NewClient(opts), fsmStateTTL)
		return st, st, nil
	case "bolt":
		st, err := fsmstate.NewBoltStore(env.FSMBoltFile)
		if err != nil {
			return nil, nil, err
		}
		return st, st, nil
	default:
		return nil, nil, errors.Errorf("unknown FSM_BACKEND %q", env.FSMBackend)
	}
}

// webAppURLFor выводит адрес мини-приложения из базового URL вебхука.
// Пустая база отключает WebApp-кнопки во всех клавиатурах.
func webAppURLFor(baseURL string) string {
	if baseURL == "" {
		return ""
	}
	return baseURL + "/webapp"
}
