// Проверка initData мини-приложения Telegram.
//
// WebApp передаёт подписанную строку initData с каждым запросом; сервер
// пересчитывает HMAC-SHA256 по схеме Bot API: ключ — HMAC("WebAppData",
// bot_token), check-string — пары k=v без hash, отсортированные по ключу
// и склеенные переводом строки. Сравнение — константное по времени.

package web

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// initDataMaxAge — предельный возраст auth_date. Старшие подписи отклоняются:
// перехваченная строка initData не должна работать вечно.
const initDataMaxAge = 24 * time.Hour

// initDataUser — вложенный JSON поля user.
type initDataUser struct {
	ID int64 `json:"id"`
}

// ValidateInitData проверяет подпись и свежесть initData и возвращает
// телеграмный id пользователя из вложенного user-JSON.
func ValidateInitData(raw, botToken string, now time.Time) (int64, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return 0, errors.Wrap(err, "parse init data")
	}

	gotHash := values.Get("hash")
	if gotHash == "" {
		return 0, errors.New("init data: no hash")
	}
	values.Del("hash")

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(values.Get(k))
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))

	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(b.String()))
	want := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(want), []byte(gotHash)) {
		return 0, errors.New("init data: bad signature")
	}

	authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return 0, errors.New("init data: bad auth_date")
	}
	if now.Sub(time.Unix(authDate, 0)) > initDataMaxAge {
		return 0, errors.New("init data: expired")
	}

	var u initDataUser
	if err := json.Unmarshal([]byte(values.Get("user")), &u); err != nil || u.ID == 0 {
		return 0, errors.New("init data: no user")
	}
	return u.ID, nil
}
