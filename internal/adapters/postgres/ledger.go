package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"

	"telegram-planner/internal/domain/notify"
)

// WasSent — есть ли запись sent для (user, channel, date). Дата лежит внутри
// jsonb-нагрузки: журнал append-only и не навязывает структуру каналам.
func (l *Ledger) WasSent(ctx context.Context, userID int64, ch notify.Channel, date string) (bool, error) {
	var sent bool
	err := l.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM notification_log
		   WHERE user_id = $1 AND channel = $2 AND status = 'sent' AND payload->>'date' = $3
		 )`,
		userID, string(ch), date).Scan(&sent)
	if err != nil {
		return false, errors.Wrap(err, "postgres: ledger lookup")
	}
	return sent, nil
}

// Record дописывает запись журнала.
func (l *Ledger) Record(ctx context.Context, userID int64, ch notify.Channel, outcome notify.Outcome, p notify.Payload) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "postgres: marshal ledger payload")
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO notification_log (user_id, channel, status, payload, created_at)
		 VALUES ($1, $2, $3, $4, now())`,
		userID, string(ch), string(outcome), payload)
	if err != nil {
		return errors.Wrap(err, "postgres: ledger append")
	}
	return nil
}

// ResetSent удаляет записи sent для (user, channel, date). Админская
// операция: после неё канал выстрелит повторно на ближайшем тике в окне.
func (l *Ledger) ResetSent(ctx context.Context, userID int64, ch notify.Channel, date string) (int64, error) {
	tag, err := l.pool.Exec(ctx,
		`DELETE FROM notification_log
		 WHERE user_id = $1 AND channel = $2 AND status = 'sent' AND payload->>'date' = $3`,
		userID, string(ch), date)
	if err != nil {
		return 0, errors.Wrap(err, "postgres: ledger reset")
	}
	return tag.RowsAffected(), nil
}
