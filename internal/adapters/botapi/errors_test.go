package botapi_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/go-faster/errors"

	"telegram-planner/internal/adapters/botapi"
)

func TestAPIErrorPermanent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *botapi.APIError
		want bool
	}{
		{
			name: "bot to bot",
			err:  &botapi.APIError{Code: 403, Description: "Forbidden: bots can't send messages to bots"},
			want: true,
		},
		{
			name: "blocked by user",
			err:  &botapi.APIError{Code: 403, Description: "Forbidden: bot was blocked by the user"},
			want: true,
		},
		{
			name: "kicked from group",
			err:  &botapi.APIError{Code: 403, Description: "Forbidden: bot was kicked from the group chat"},
			want: true,
		},
		{
			name: "forbidden without bot mention stays transient",
			err:  &botapi.APIError{Code: 403, Description: "Forbidden: user is deactivated"},
			want: false,
		},
		{
			name: "bad request is transient",
			err:  &botapi.APIError{Code: 400, Description: "Bad Request: chat not found"},
			want: false,
		},
		{
			name: "rate limit never permanent",
			err:  &botapi.APIError{Code: 429, Description: "Too Many Requests: retry after 5", Wait: 5 * time.Second},
			want: false,
		},
		{
			name: "server error is transient",
			err:  &botapi.APIError{Code: 502, Description: "Bad Gateway"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.err.Permanent(); got != tt.want {
				t.Errorf("Permanent() = %v, want %v (%s)", got, tt.want, tt.err.Description)
			}
		})
	}
}

func TestIsPermanentUnwrapsChain(t *testing.T) {
	t.Parallel()

	base := &botapi.APIError{Code: 403, Description: "Forbidden: bot was blocked by the user"}
	wrapped := errors.Wrap(base, "send morning prompt")
	if !botapi.IsPermanent(wrapped) {
		t.Error("wrapped permanent error must stay permanent")
	}
	if botapi.IsPermanent(errors.New("dial tcp: connection refused")) {
		t.Error("network error must not be permanent")
	}
	if botapi.IsPermanent(nil) {
		t.Error("nil is not permanent")
	}
}

func TestAPIErrorStopRetry(t *testing.T) {
	t.Parallel()

	if !(&botapi.APIError{Code: http.StatusUnauthorized}).StopRetry() {
		t.Error("401 must stop polling retries")
	}
	if !(&botapi.APIError{Code: http.StatusConflict}).StopRetry() {
		t.Error("409 must stop polling retries")
	}
	if (&botapi.APIError{Code: http.StatusForbidden}).StopRetry() {
		t.Error("403 must not stop polling")
	}
}

func TestRetryAfterExtractor(t *testing.T) {
	t.Parallel()

	extract := botapi.RetryAfterExtractor()

	apiErr := &botapi.APIError{Code: 429, Description: "Too Many Requests", Wait: 7 * time.Second}
	wait, ok := extract(errors.Wrap(apiErr, "send"))
	if !ok || wait != 7*time.Second {
		t.Errorf("extract = (%v, %v), want (7s, true)", wait, ok)
	}

	if _, ok := extract(errors.New("plain")); ok {
		t.Error("plain error carries no retry_after")
	}
	if _, ok := extract(nil); ok {
		t.Error("nil error carries no retry_after")
	}
	if _, ok := extract(&botapi.APIError{Code: 400}); ok {
		t.Error("zero wait is not a server hint")
	}
}
