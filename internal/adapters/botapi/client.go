// Клиент Bot API.
//
// В этом файле (client.go):
//   - настраивается HTTP-клиент и общий rate-limiter запросов;
//   - один вызов invoke() покрывает все методы Bot API: POST JSON,
//     разбор конверта {ok, result, description, error_code}, retry_after;
//   - наружу отдаются типизированные методы: sendMessage, editMessageText,
//     answerCallbackQuery, getUpdates, getMe, setWebhook, deleteWebhook.
//
// Ретраев внутри клиента нет: политика повторов принадлежит вызывающему —
// очередь задач ведёт свой backoff для отправок, полинг ходит через общий
// троттлер. Идемпотентность обеспечивается повторным вызовом с теми же
// параметрами.

package botapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"golang.org/x/time/rate"
)

// httpClientTimeout — таймаут HTTP-клиента, секунды. Должен покрывать сетевые
// колебания и не зависать бесконечно на медленных соединениях. Long-poll
// getUpdates обязан укладываться в него с запасом (см. longPollTimeout).
const httpClientTimeout = 30

// longPollTimeout — серверный таймаут getUpdates, секунды. Меньше таймаута
// HTTP-клиента, иначе клиент обрубал бы пустые long-poll ответы.
const longPollTimeout = 25

// Client — минимальный клиент Bot API c общим token-bucket лимитером:
// все методы, включая полинг, делят одну квоту запросов к api.telegram.org.
type Client struct {
	baseURL string
	httpc   *http.Client
	limiter *rate.Limiter
}

// NewClient создаёт клиент для бота. rps задаёт целевую среднюю частоту
// запросов; burst равен rps.
func NewClient(token string, rps int) *Client {
	if rps <= 0 {
		rps = 1
	}
	return &Client{
		baseURL: "https://api.telegram.org/bot" + token,
		httpc: &http.Client{
			Timeout: httpClientTimeout * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}
}

// SendMessageRequest — параметры sendMessage. ReplyMarkup принимает любую из
// клавиатур пакета (inline, reply, remove) либо nil.
type SendMessageRequest struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	ReplyMarkup           any    `json:"reply_markup,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

// SendMessage отправляет текст с необязательной клавиатурой.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error) {
	req.DisableWebPagePreview = true
	var msg Message
	if err := c.invoke(ctx, "sendMessage", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EditMessageTextRequest — параметры editMessageText. Нулевой ReplyMarkup
// убирает инлайн-клавиатуру у сообщения.
type EditMessageTextRequest struct {
	ChatID      int64                 `json:"chat_id"`
	MessageID   int                   `json:"message_id"`
	Text        string                `json:"text"`
	ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// EditMessageText правит текст и инлайн-клавиатуру отправленного сообщения.
func (c *Client) EditMessageText(ctx context.Context, req EditMessageTextRequest) error {
	return c.invoke(ctx, "editMessageText", req, nil)
}

// AnswerCallbackRequest — параметры answerCallbackQuery.
type AnswerCallbackRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
	ShowAlert       bool   `json:"show_alert,omitempty"`
}

// AnswerCallbackQuery гасит «часики» на кнопке и опционально показывает тост.
func (c *Client) AnswerCallbackQuery(ctx context.Context, req AnswerCallbackRequest) error {
	return c.invoke(ctx, "answerCallbackQuery", req, nil)
}

// GetMe возвращает профиль бота; используется как проверка токена на старте.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var me User
	if err := c.invoke(ctx, "getMe", struct{}{}, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// GetUpdates делает один long-poll запрос. offset — update_id, с которого
// продолжать (последний обработанный + 1). Блокируется до longPollTimeout
// секунд, если апдейтов нет.
func (c *Client) GetUpdates(ctx context.Context, offset int64) ([]Update, error) {
	req := struct {
		Offset         int64    `json:"offset,omitempty"`
		Timeout        int      `json:"timeout"`
		AllowedUpdates []string `json:"allowed_updates,omitempty"`
	}{
		Offset:  offset,
		Timeout: longPollTimeout,
	}
	var updates []Update
	if err := c.invoke(ctx, "getUpdates", req, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// SetWebhook регистрирует webhook. Непустой secretToken Telegram будет
// возвращать в заголовке X-Telegram-Bot-Api-Secret-Token каждого POST-а.
func (c *Client) SetWebhook(ctx context.Context, url, secretToken string) error {
	req := struct {
		URL         string `json:"url"`
		SecretToken string `json:"secret_token,omitempty"`
	}{URL: url, SecretToken: secretToken}
	return c.invoke(ctx, "setWebhook", req, nil)
}

// DeleteWebhook снимает webhook; dropPending выбрасывает накопленные апдейты.
// Обязательный шаг перед запуском полинга — иначе Telegram не отдаёт апдейты.
func (c *Client) DeleteWebhook(ctx context.Context, dropPending bool) error {
	req := struct {
		DropPendingUpdates bool `json:"drop_pending_updates,omitempty"`
	}{DropPendingUpdates: dropPending}
	return c.invoke(ctx, "deleteWebhook", req, nil)
}

// invoke выполняет один метод Bot API: лимитер, POST JSON, разбор конверта.
// result != nil — поле result ответа декодируется в него.
func (c *Client) invoke(ctx context.Context, method string, payload, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "encode %s", method)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, "build %s request", method)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrapf(err, "call %s", method)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "read %s response", method)
	}

	var envelope struct {
		OK          bool            `json:"ok"`
		Result      json.RawMessage `json:"result"`
		Description string          `json:"description"`
		ErrorCode   int             `json:"error_code"`
		Parameters  struct {
			RetryAfter int `json:"retry_after"`
		} `json:"parameters"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		// Не-JSON тело бывает у прокси и балансировщиков; сохраняем статус.
		msg := strings.TrimSpace(string(respBody))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{
			Code:        resp.StatusCode,
			Description: msg,
			Wait:        parseRetryAfterHeader(resp.Header.Get("Retry-After")),
		}
	}

	if !envelope.OK {
		desc := strings.TrimSpace(envelope.Description)
		if desc == "" {
			desc = "(empty bot api description)"
		}
		wait := time.Duration(envelope.Parameters.RetryAfter) * time.Second
		if wait <= 0 {
			wait = parseRetryAfterHeader(resp.Header.Get("Retry-After"))
		}
		return &APIError{Code: envelope.ErrorCode, Description: desc, Wait: wait}
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, result); err != nil {
		return errors.Wrapf(err, "decode %s result", method)
	}
	return nil
}

// parseRetryAfterHeader парсит Retry-After: либо число секунд, либо
// абсолютную дату. Возвращает 0, если значение отсутствует или некорректно.
func parseRetryAfterHeader(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if ts, err := http.ParseTime(value); err == nil {
		if delta := time.Until(ts); delta > 0 {
			return delta
		}
	}
	return 0
}
