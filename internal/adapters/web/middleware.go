// Middleware веб-сервера: request-id, журналирование и аутентификация
// запросов WebApp по initData.

package web

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"telegram-planner/internal/domain/user"
	"telegram-planner/internal/infra/logger"
)

// requestIDHeader возвращается в каждом ответе для трассировки обращений.
const requestIDHeader = "X-Request-Id"

// initDataHeader — заголовок с подписанной строкой initData. Альтернатива —
// Authorization: tma <initData> (конвенция Telegram Mini Apps).
const initDataHeader = "X-Telegram-Init-Data"

type ctxKey int

const ctxKeyUser ctxKey = iota

// requestUser достаёт аутентифицированного пользователя из контекста запроса.
func requestUser(r *http.Request) *user.User {
	u, _ := r.Context().Value(ctxKeyUser).(*user.User)
	return u
}

// requestID присваивает запросу идентификатор и возвращает его в заголовке.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// logging пишет строку доступа на каждый запрос.
func logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debugf("Веб: %s %s за %s", r.Method, r.URL.Path, time.Since(start))
	})
}

// initDataFrom извлекает сырую строку initData из запроса.
func initDataFrom(r *http.Request) string {
	if raw := r.Header.Get(initDataHeader); raw != "" {
		return raw
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		if raw, ok := strings.CutPrefix(auth, "tma "); ok {
			return raw
		}
	}
	return ""
}

// auth проверяет подпись initData и кладёт пользователя в контекст.
// Неподписанные запросы к API получают 401.
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := initDataFrom(r)
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "init data required")
			return
		}
		tgID, err := ValidateInitData(raw, s.botToken, s.clock())
		if err != nil {
			logger.Debugf("Веб: отклонён initData: %v", err)
			writeError(w, http.StatusUnauthorized, "invalid init data")
			return
		}

		u, err := s.users.GetOrCreate(r.Context(), tgID)
		if err != nil {
			logger.Errorf("Веб: загрузка пользователя tg=%d: %v", tgID, err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyUser, u)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
