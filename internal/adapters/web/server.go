// Package web — HTTP-поверхность планировщика: health-check, приём вебхука
// Bot API и JSON API для мини-приложения за аутентификацией по initData.
//
// Вебхук подтверждается сразу (200), обработка апдейта идёт асинхронно:
// Telegram переотправляет апдейт при медленном ответе, а повторы всё равно
// срезает дедупликатор роутера.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"

	"telegram-planner/internal/adapters/botapi"
	"telegram-planner/internal/domain/plan"
	"telegram-planner/internal/domain/reminders"
	"telegram-planner/internal/domain/updates"
	"telegram-planner/internal/domain/user"
	"telegram-planner/internal/infra/logger"
)

// Таймауты HTTP-сервера.
const (
	readTimeout  = 15 * time.Second
	writeTimeout = 15 * time.Second
	idleTimeout  = 60 * time.Second
)

// secretTokenHeader — заголовок, в котором Telegram возвращает секрет вебхука.
const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// Options — зависимости веб-сервера.
type Options struct {
	Listen string

	// BotToken нужен проверке подписи initData.
	BotToken string
	// WebhookSecret сверяется с заголовком каждого POST /webhook;
	// пустой отключает проверку.
	WebhookSecret string

	Users     user.Store
	Plans     plan.Store
	Reminders *reminders.Service
	Router    *updates.Router

	// Clock переопределяется в тестах; nil — time.Now.
	Clock func() time.Time
}

// Server — HTTP-сервер планировщика.
type Server struct {
	srv *http.Server

	users  user.Store
	plans  plan.Store
	rems   *reminders.Service
	router *updates.Router

	botToken      string
	webhookSecret string
	clock         func() time.Time

	// bg — контекст асинхронной обработки вебхук-апдейтов.
	bg context.Context
}

// NewServer собирает сервер и маршруты.
func NewServer(opts Options) *Server {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	s := &Server{
		users:         opts.Users,
		plans:         opts.Plans,
		rems:          opts.Reminders,
		router:        opts.Router,
		botToken:      opts.BotToken,
		webhookSecret: opts.WebhookSecret,
		clock:         clock,
		bg:            context.Background(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /webhook", s.handleWebhook)
	mux.HandleFunc("POST /webhook/{$}", s.handleWebhook)

	// API мини-приложения: всё за проверкой initData.
	api := http.NewServeMux()
	api.HandleFunc("GET /today", s.handleToday)
	api.HandleFunc("GET /stats", s.handleStats)
	api.HandleFunc("GET /settings", s.handleSettings)
	api.HandleFunc("GET /history", s.handleHistory)
	api.HandleFunc("GET /reminders", s.handleReminderList)
	api.HandleFunc("GET /reminders/stats", s.handleReminderStats)
	api.HandleFunc("POST /plan/today", s.handlePlanSave)
	api.HandleFunc("PUT /tasks/{id}/status", s.handleTaskStatus)
	api.HandleFunc("PUT /settings", s.handleSettingsUpdate)
	api.HandleFunc("POST /reminders", s.handleReminderCreate)
	api.HandleFunc("PUT /reminders/{id}", s.handleReminderUpdate)
	api.HandleFunc("DELETE /reminders/{id}", s.handleReminderDelete)
	mux.Handle("/", s.auth(api))

	s.srv = &http.Server{
		Addr:         opts.Listen,
		Handler:      requestID(logging(mux)),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	return s
}

// Start блокирует до остановки сервера.
func (s *Server) Start(ctx context.Context) error {
	s.bg = context.WithoutCancel(ctx)
	logger.Infof("Веб-сервер слушает %s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "web: listen")
	}
	return nil
}

// Stop корректно гасит сервер, дожидаясь активных запросов.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeOK(w)
}

// handleWebhook принимает апдейт от Telegram: сверка секрета, мгновенный
// ACK, асинхронная обработка.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.webhookSecret != "" && r.Header.Get(secretTokenHeader) != s.webhookSecret {
		logger.Warnf("Вебхук: неверный секрет от %s", r.RemoteAddr)
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var upd botapi.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		// Кривое тело не ретраится повторной доставкой, отвечаем 200.
		logger.Warnf("Вебхук: нечитаемое тело: %v", err)
		writeOK(w)
		return
	}

	writeOK(w)
	go s.router.HandleUpdate(s.bg, upd)
}
