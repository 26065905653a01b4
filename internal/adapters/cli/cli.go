// Package cli — интерактивная операторская консоль планировщика.
// Сервис стартует фоном, читает команды из readline и взаимодействует с
// остальными подсистемами: хранилищем пользователей, журналом уведомлений,
// очередью задач и диспетчерами. Поддерживается корректная интеграция
// в lifecycle: Start/Stop идемпотентны.
package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"telegram-planner/internal/domain/dispatch"
	"telegram-planner/internal/domain/notify"
	"telegram-planner/internal/domain/user"
	"telegram-planner/internal/infra/logger"
	"telegram-planner/internal/infra/pr"
	"telegram-planner/internal/infra/timeutil"
	versioninfo "telegram-planner/internal/support/version"
)

// commandTimeout ограничивает время выполнения одной консольной команды.
const commandTimeout = 30 * time.Second

// commandDescriptor описывает одну CLI-команду: её имя и краткое описание для help.
type commandDescriptor struct {
	name        string
	description string
}

// commandDescriptors — реестр доступных команд. Рендерится в help и подсказки.
// Важно: имена должны совпадать с кейсами в handleCommand().
var commandDescriptors = []commandDescriptor{
	{name: "help", description: "Show available commands with short descriptions"},
	{name: "status", description: "Show queue and dispatcher counters"},
	{name: "users", description: "List registered users with their schedules"},
	{name: "dispatch", description: "Force a daily dispatcher tick"},
	{name: "remind", description: "Force a custom reminders dispatcher tick"},
	{name: "reset", description: "reset <tg_id> <morning|evening> <date> - clear sent marker and re-enqueue"},
	{name: "version", description: "Print planner version"},
	{name: "exit", description: "Stop CLI and terminate the service"},
}

// Options — зависимости консоли.
type Options struct {
	// StopApp — внешняя отмена приложения (команда exit, Ctrl-C на пустой строке).
	StopApp context.CancelFunc

	Users  user.Store
	Ledger notify.Ledger
	Enq    notify.Enqueuer
	Daily  *dispatch.Daily
	Custom *dispatch.Custom

	// Inspector опционален; без него команда status сообщает о недоступности.
	Inspector *asynq.Inspector
}

// Service инкапсулирует CLI и интегрируется в lifecycle приложения.
// Имеет собственный cancel, запускает цикл чтения команд в отдельной горутине
// и синхронно закрывается через Stop(). Потокобезопасность обеспечивается
// дисциплиной запуска/остановки и отсутствием внешних мутаций.
type Service struct {
	opts Options

	cancel    context.CancelFunc // локальная отмена run-цикла CLI
	wg        sync.WaitGroup     // ожидание завершения фоновой горутины run
	onceStart sync.Once          // идемпотентный запуск
	onceStop  sync.Once          // идемпотентная остановка
}

// NewService создаёт CLI-сервис.
func NewService(opts Options) *Service {
	return &Service{opts: opts}
}

// Start запускает основной цикл CLI в отдельной горутине. Повторные вызовы
// безопасно игнорируются. Контекст используется как родительский для run-цикла.
func (s *Service) Start(ctx context.Context) {
	s.onceStart.Do(func() {
		runCtx, cancel := context.WithCancel(ctx)
		s.cancel = cancel
		s.wg.Go(func() {
			s.run(runCtx)
		})
	})
}

// Stop завершает CLI: посылает внешнюю остановку приложения (если предусмотрено),
// прерывает readline, отменяет локальный контекст и дожидается завершения run-цикла.
func (s *Service) Stop() {
	s.onceStop.Do(func() {
		if s.opts.StopApp != nil {
			s.opts.StopApp()
		}
		if rl := pr.Rl(); rl != nil {
			pr.InterruptReadline()
		}
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
	})
}

// run — основной цикл обработчика CLI. Печатает подсказки, устанавливает обработчики
// клавиш и в цикле читает команды построчно, передавая их в handleCommand().
func (s *Service) run(ctx context.Context) {
	logger.Debug("CLI run started")
	pr.SetPrompt("> ")
	// Устанавливаем промпт и выводим краткую справку, чтобы пользователь не блуждал в темноте.
	pr.Println("CLI started. Enter commands:", joinCommandNames(commandDescriptors))
	pr.Println("Press '?' or type 'help' for detailed descriptions.")
	installKeyHandlers(s.opts.StopApp)

	defer func() {
		if rl := pr.Rl(); rl != nil {
			_ = rl.Close()
		}
	}()

	// Главный цикл чтения команд. Выход — по отмене контекста или по EOF от readline.
	for {
		if ctx.Err() != nil {
			logger.Debug("CLI: context canceled")
			return
		}

		// Блокирующее чтение одной строки с учётом интерактивных обработчиков клавиш.
		line, err := pr.Rl().Readline()
		if err != nil {
			logger.Debug("CLI: deactivated (io.EOF)")
			return
		}

		cmd := strings.TrimSpace(line)
		if s.handleCommand(cmd) {
			logger.Debugf("CLI: command %q requested exit", cmd)
			return
		}
	}
}

// installKeyHandlers подключает обработчики специальных клавиш для readline:
//   - '?' — печать help без отправки символа в текущую строку;
//   - Ctrl-C на пустой строке — мягкая остановка приложения (stopApp) и прерывание readline;
//   - Ctrl-C на непустой строке — очистка текущей строки (как в типичных CLI).
func installKeyHandlers(stop context.CancelFunc) {
	rl := pr.Rl()
	if rl == nil || rl.Config == nil {
		return
	}

	// Сохраняем предыдущий listener, чтобы не ломать поведение по умолчанию.
	prev := rl.Config.Listener
	rl.Config.SetListener(func(line []rune, pos int, key rune) ([]rune, int, bool) {
		// Быстрая справка по командам по нажатию '?'.
		if key == '?' {
			printCommandHelp()
			if pos > 0 && pos <= len(line) {
				trimmed := append([]rune{}, line[:pos-1]...)
				trimmed = append(trimmed, line[pos:]...)
				return trimmed, pos - 1, true
			}
			return line, pos, true
		}
		// Ctrl-C (ETX): особое поведение — либо остановка приложения, либо очистка строки.
		if key == 3 { //nolint: mnd // Ctrl-C (ETX, rune value 3)
			trimmed := strings.TrimSpace(string(line))
			if trimmed == "" {
				if stop != nil {
					stop()
				}
				pr.InterruptReadline()
				return line, pos, true
			} else {
				// Clear the line if not empty (typical readline behavior)
				return []rune{}, 0, true
			}
		}
		if prev != nil {
			return prev.OnChange(line, pos, key)
		}
		return nil, 0, false
	})
}

// printCommandHelp печатает список поддерживаемых команд и их описания.
func printCommandHelp() {
	for _, text := range buildCommandHelpLines(commandDescriptors) {
		pr.Println(text)
	}
}

// handleCommand разбирает введённую команду и выполняет соответствующее действие.
// Возвращает true, если команда инициирует завершение CLI ("exit").
func (s *Service) handleCommand(cmd string) bool {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "help":
		printCommandHelp()
	case "status":
		s.handleStatus()
	case "users":
		s.handleUsers()
	case "dispatch":
		s.handleTick("daily dispatch", func(ctx context.Context) error {
			return s.opts.Daily.Tick(ctx)
		})
	case "remind":
		s.handleTick("custom reminders", func(ctx context.Context) error {
			return s.opts.Custom.Tick(ctx)
		})
	case "reset":
		s.handleReset(fields[1:])
	case "version":
		pr.ErrPrintln(fmt.Sprintf("%s v%s", versioninfo.Name, versioninfo.Version))
	case "exit":
		if s.opts.StopApp != nil {
			s.opts.StopApp()
		}
		return true
	default:
		pr.Println("unknown command:", fields[0])
	}
	return false
}

// handleStatus печатает состояние очереди asynq и число пользователей.
// Счётчики очереди pretty-печатаются целиком: оператору нужнее полный дамп,
// чем выборочная сводка.
func (s *Service) handleStatus() {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if users, err := s.opts.Users.All(ctx); err != nil {
		pr.ErrPrintln("status: list users:", err)
	} else {
		pr.Printf("Users registered: %d\n", len(users))
	}

	if s.opts.Inspector == nil {
		pr.ErrPrintln("queue inspector is not available")
		return
	}
	info, err := s.opts.Inspector.GetQueueInfo("default")
	if err != nil {
		pr.ErrPrintln("status: queue info:", err)
		return
	}
	pr.PP(info)
}

// handleUsers выводит таблицу пользователей: локальный пояс, времена
// уведомлений и состояние онбординга.
func (s *Service) handleUsers() {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	users, err := s.opts.Users.All(ctx)
	if err != nil {
		pr.ErrPrintln("users:", err)
		return
	}
	if len(users) == 0 {
		pr.Println("No users registered yet.")
		return
	}
	for i := range users {
		u := &users[i]
		state := "onboarded"
		if !u.Onboarded() {
			state = "onboarding"
		}
		pr.Printf("tg=%d id=%d tz=%s morning=%s evening=%s interval=%dm attempts=%d [%s]\n",
			u.TelegramID, u.ID, u.Timezone, u.MorningTime, u.EveningTime,
			u.ReminderInterval, u.ReminderMaxAttempts, state)
	}
	pr.Printf("Total users: %d\n", len(users))
}

// handleTick запускает один проход диспетчера вне расписания.
func (s *Service) handleTick(name string, tick func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	logger.Infof("CLI: forced %s tick", name)
	if err := tick(ctx); err != nil {
		pr.ErrPrintf("%s tick error: %v\n", name, err)
		return
	}
	pr.Printf("%s tick completed\n", name)
}

// handleReset выполняет административный сброс отметки sent: после него канал
// выстрелит повторно в тот же локальный день. Для вечернего канала задача
// ставится сразу, утренний подберёт ближайший тик диспетчера, если окно ещё
// открыто.
func (s *Service) handleReset(args []string) {
	const want = 3
	if len(args) != want {
		pr.ErrPrintln("usage: reset <tg_id> <morning|evening> <date YYYY-MM-DD>")
		return
	}

	tgID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || tgID <= 0 {
		pr.ErrPrintln("reset: tg_id must be a positive integer")
		return
	}

	var ch notify.Channel
	switch args[1] {
	case "morning":
		ch = notify.ChannelMorning
	case "evening":
		ch = notify.ChannelEvening
	default:
		pr.ErrPrintln("reset: channel must be morning or evening")
		return
	}

	date := args[2]
	if _, err := time.Parse(timeutil.DateLayout, date); err != nil {
		pr.ErrPrintln("reset: date must be YYYY-MM-DD")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	u, err := s.opts.Users.ByTelegramID(ctx, tgID)
	if err != nil {
		pr.ErrPrintln("reset: load user:", err)
		return
	}
	if u == nil {
		pr.ErrPrintf("reset: user tg=%d not found\n", tgID)
		return
	}

	removed, err := s.opts.Ledger.ResetSent(ctx, u.ID, ch, date)
	if err != nil {
		pr.ErrPrintln("reset: ledger:", err)
		return
	}
	logger.Infof("CLI: сброшены записи sent user=%d channel=%s date=%s (%d шт.)", u.ID, ch, date, removed)

	if ch == notify.ChannelEvening {
		if err := s.opts.Enq.EnqueueEvening(ctx, u.ID, date); err != nil {
			pr.ErrPrintln("reset: enqueue evening:", err)
			return
		}
		pr.Printf("Reset done (%d rows), evening review re-enqueued for %s\n", removed, date)
		return
	}
	pr.Printf("Reset done (%d rows), morning prompt will fire on the next tick inside the window\n", removed)
}

// joinCommandNames собирает строку имён команд, разделённых запятыми, для короткой подсказки.
func joinCommandNames(descriptors []commandDescriptor) string {
	names := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		names = append(names, d.name)
	}
	return strings.Join(names, ", ")
}

// buildCommandHelpLines генерирует строки помощи вида "<name> - <description>".
func buildCommandHelpLines(descriptors []commandDescriptor) []string {
	lines := make([]string, 0, len(descriptors)+1)
	lines = append(lines, "Available commands:")
	for _, descriptor := range descriptors {
		lines = append(lines, fmt.Sprintf("  %-8s - %s", descriptor.name, descriptor.description))
	}
	return lines
}
