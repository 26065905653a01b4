// Package updates — маршрутизация входящих событий Bot API: команды, текст
// по состоянию диалога, нажатия инлайн-кнопок и данные WebApp. Источник
// апдейтов (полинг или вебхук) пакету безразличен — он получает готовый
// botapi.Update.
//
// В рамках пакета решаются задачи:
//  1. подавление повторов по update_id (Deduplicator): Telegram переотправляет
//     апдейт, пока не получит 200,
//  2. сглаживание серий нажатий под одним сообщением (Debouncer) перед
//     перерисовкой клавиатуры сверки,
//  3. типизированный разбор callback-данных (см. callback.go),
//  4. ведение диалогового автомата (conversation.Manager).
//
// Пакет не отправляет сообщения сам — исходящие уходят через Gateway,
// отложенные доставки через notify.Enqueuer.
package updates

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"telegram-planner/internal/adapters/botapi"
	"telegram-planner/internal/domain/conversation"
	"telegram-planner/internal/domain/notify"
	"telegram-planner/internal/domain/plan"
	"telegram-planner/internal/domain/reminders"
	"telegram-planner/internal/domain/user"
	"telegram-planner/internal/infra/concurrency"
	"telegram-planner/internal/infra/logger"
)

// Тайминги по умолчанию: окно подавления повторных update_id и пауза
// дебаунса перерисовки клавиатуры после серии нажатий.
const (
	defaultDedupWindowSec = 120
	defaultDebounceMS     = 700

	// redrawTimeout ограничивает фоновую перерисовку клавиатуры: она идёт
	// вне контекста апдейта, после паузы дебаунса.
	redrawTimeout = 10 * time.Second
)

// Gateway — исходящая сторона диалога. Реализуется адаптером Bot API;
// Send возвращает message_id для последующих Edit.
type Gateway interface {
	Send(ctx context.Context, chatID int64, msg notify.Message) (int, error)
	Edit(ctx context.Context, chatID int64, messageID int, msg notify.Message) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Options — зависимости роутера.
type Options struct {
	Users     user.Store
	Plans     plan.Store
	Reminders *reminders.Service
	Ledger    notify.Ledger
	Enqueuer  notify.Enqueuer
	Conv      *conversation.Manager
	Gateway   Gateway

	// WebAppURL — адрес мини-приложения; пустой отключает WebApp-кнопки.
	WebAppURL string

	// DedupWindowSec и DebounceMS переопределяют тайминги по умолчанию;
	// ноль оставляет дефолт.
	DedupWindowSec int
	DebounceMS     int

	// Clock переопределяется в тестах; nil — time.Now.
	Clock func() time.Time
}

// Router обрабатывает входящие апдейты. Потокобезопасен: вебхук может
// звать HandleUpdate из параллельных запросов.
type Router struct {
	users  user.Store
	plans  plan.Store
	rems   *reminders.Service
	ledger notify.Ledger
	enq    notify.Enqueuer
	conv   *conversation.Manager
	gw     Gateway

	dedup    *concurrency.Deduplicator
	debounce *concurrency.Debouncer

	webAppURL string
	clock     func() time.Time

	// bg — контекст фоновых перерисовок; живёт от Start до остановки.
	bg context.Context
}

// NewRouter собирает роутер апдейтов.
func NewRouter(opts Options) *Router {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	dedupWindow := opts.DedupWindowSec
	if dedupWindow <= 0 {
		dedupWindow = defaultDedupWindowSec
	}
	debounceMS := opts.DebounceMS
	if debounceMS <= 0 {
		debounceMS = defaultDebounceMS
	}
	return &Router{
		users:     opts.Users,
		plans:     opts.Plans,
		rems:      opts.Reminders,
		ledger:    opts.Ledger,
		enq:       opts.Enqueuer,
		conv:      opts.Conv,
		gw:        opts.Gateway,
		dedup:     concurrency.NewDeduplicator(dedupWindow),
		debounce:  concurrency.NewDebouncer(debounceMS),
		webAppURL: opts.WebAppURL,
		clock:     clock,
		bg:        context.Background(),
	}
}

// Start запускает фоновую очистку дедупликатора и дебаунсер.
func (r *Router) Start(ctx context.Context) {
	r.bg = context.WithoutCancel(ctx)
	r.dedup.Start(ctx)
	r.debounce.Start(ctx)
}

// Stop останавливает фоновые горутины, дренируя накопленные перерисовки.
func (r *Router) Stop() {
	r.debounce.Stop()
	r.dedup.Stop()
}

// HandleUpdate — точка входа: один апдейт от полера или вебхука.
// Ошибки обработки журналируются и не возвращаются: переотправка апдейта
// Telegram-ом всё равно срезается дедупликатором.
func (r *Router) HandleUpdate(ctx context.Context, upd botapi.Update) {
	if r.dedup.DedupSeen(upd.UpdateID) {
		return
	}

	var err error
	switch {
	case upd.CallbackQuery != nil:
		err = r.handleCallback(ctx, *upd.CallbackQuery)
	case upd.Message != nil:
		err = r.handleMessage(ctx, *upd.Message)
	case upd.EditedMessage != nil:
		// Правки входящих сообщений план не меняют: план заменяется только
		// повторной отправкой.
		logger.Debugf("Апдейт %d: правка сообщения, пропуск", upd.UpdateID)
	}
	if err != nil {
		logger.Errorf("Апдейт %d: %v", upd.UpdateID, err)
	}
}

// handleMessage разбирает входящее сообщение: WebApp-данные, команда,
// кнопка reply-меню или свободный текст по состоянию диалога.
func (r *Router) handleMessage(ctx context.Context, msg botapi.Message) error {
	if msg.From == nil || msg.From.IsBot {
		return nil
	}
	chatID := msg.Chat.ID

	u, err := r.users.GetOrCreate(ctx, chatID)
	if err != nil {
		return errors.Wrapf(err, "load user for chat %d", chatID)
	}

	if msg.WebAppData != nil {
		return r.handleWebAppData(ctx, u, chatID, *msg.WebAppData)
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}
	if strings.HasPrefix(text, "/") {
		return r.handleCommand(ctx, u, chatID, text)
	}
	if cmd, ok := menuLabelCommand(text); ok {
		return r.handleCommand(ctx, u, chatID, cmd)
	}
	return r.handleText(ctx, u, chatID, text)
}

// send отправляет сообщение, теряя message_id: он нужен только сверке,
// которую шлёт воркер.
func (r *Router) send(ctx context.Context, chatID int64, msg notify.Message) error {
	if _, err := r.gw.Send(ctx, chatID, msg); err != nil {
		return errors.Wrapf(err, "send to chat %d", chatID)
	}
	return nil
}

// answer гасит «часики» на кнопке; сбой не критичен и только журналируется.
func (r *Router) answer(ctx context.Context, callbackID, text string) {
	if err := r.gw.AnswerCallback(ctx, callbackID, text); err != nil {
		logger.Warnf("Ответ на callback %s: %v", callbackID, err)
	}
}

// localDate — сегодняшняя дата в поясе пользователя.
func (r *Router) localDate(u *user.User) string {
	return notify.LocalDateFor(u, r.clock())
}

// startOnboarding начинает (или перезапускает) первичную настройку.
func (r *Router) startOnboarding(ctx context.Context, chatID int64) error {
	if err := r.conv.SetState(ctx, chatID, conversation.StateOnboardingTimezone); err != nil {
		return err
	}
	return r.send(ctx, chatID, notify.OnboardingWelcome())
}
