// Ошибки Bot API и их классификация.
//
// Классификация нужна сендерам: постоянная ошибка (получатель не может
// принимать сообщения — заблокировал бота, бот-к-боту) фиксируется в журнале
// как failed и не ретраится; всё остальное — временное и уходит на backoff.
// 429 с retry_after — всегда временная, сервер сам говорит, сколько ждать.

package botapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"telegram-planner/internal/infra/throttle"

	"github.com/go-faster/errors"
)

// APIError — ошибка уровня Bot API: ok=false в JSON-ответе либо не-200 HTTP.
type APIError struct {
	Code        int
	Description string
	// Wait — серверная пауза из parameters.retry_after или заголовка
	// Retry-After; ноль, если сервер её не прислал.
	Wait time.Duration
}

// Error форматирует ошибку в журнальном стиле Bot API.
func (e *APIError) Error() string {
	if e.Wait > 0 {
		return fmt.Sprintf("bot api error %d: %s (retry after %s)", e.Code, e.Description, e.Wait)
	}
	return fmt.Sprintf("bot api error %d: %s", e.Code, e.Description)
}

// RetryAfter отдаёт серверную паузу троттлеру (см. RetryAfterExtractor).
func (e *APIError) RetryAfter() time.Duration {
	return e.Wait
}

// StopRetry — полинг должен немедленно остановиться: 401 значит битый токен,
// 409 — webhook уже установлен или работает второй полер. Ретраить такие
// ошибки бессмысленно и вредно.
func (e *APIError) StopRetry() bool {
	return e.Code == http.StatusUnauthorized || e.Code == http.StatusConflict
}

// Permanent — получатель не может принимать сообщения.
func (e *APIError) Permanent() bool {
	if e.Code == http.StatusTooManyRequests || e.Wait > 0 {
		return false
	}
	return permanentDescription(e.Description)
}

// permanentDescription распознаёт описания «получатель недоступен навсегда»:
// точную фразу про бот-к-боту либо любой Forbidden, где речь идёт о боте
// (заблокирован пользователем, кикнут из чата).
func permanentDescription(desc string) bool {
	if strings.Contains(desc, "Forbidden: bots can't send messages to bots") {
		return true
	}
	return strings.Contains(desc, "Forbidden:") && strings.Contains(desc, "bot")
}

// IsPermanent — true, если err (в любом месте цепочки) является постоянной
// ошибкой Bot API. Ошибки других типов (сеть, контекст) — временные.
func IsPermanent(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Permanent()
	}
	return false
}

// RetryAfterExtractor — throttle.WaitExtractor, извлекающий серверный
// retry_after из ошибок Bot API. Пауза отдаётся как есть, без джиттера:
// серверное окно повторов сдвигать нельзя.
func RetryAfterExtractor() throttle.WaitExtractor {
	return func(err error) (time.Duration, bool) {
		if err == nil {
			return 0, false
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			return 0, false
		}
		if wait := apiErr.RetryAfter(); wait > 0 {
			return wait, true
		}
		return 0, false
	}
}
