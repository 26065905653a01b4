// JSON-ответы API: единый формат тела ошибки и логирование сбоев записи.

package web

import (
	"encoding/json"
	"net/http"

	"telegram-planner/internal/infra/logger"
)

// errorBody — тело ошибки API.
type errorBody struct {
	Error string `json:"error"`
}

// writeJSON сериализует data в тело ответа. Ошибка записи здесь уже
// неисправима, поэтому только журналируется.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warnf("Веб: запись ответа: %v", err)
	}
}

// writeError отвечает JSON-ошибкой с данным статусом.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeOK — пустой успешный ответ {"status":"ok"}.
func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
