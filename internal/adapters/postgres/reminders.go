package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"telegram-planner/internal/domain/reminders"
	"telegram-planner/internal/infra/timeutil"
)

const reminderColumns = `id, user_id, time_of_day, description, interval_min, max_per_day,
	cycle_date, sent_today, done_today,
	next_fire_at, last_sent_at, locked_until, enabled, created_at, updated_at`

func scanReminder(row pgx.Row) (*reminders.Reminder, error) {
	var (
		r         reminders.Reminder
		tod       pgtype.Time
		cycleDate *time.Time
	)
	err := row.Scan(&r.ID, &r.UserID, &tod, &r.Description, &r.Interval, &r.MaxPerDay,
		&cycleDate, &r.SentToday, &r.DoneToday,
		&r.NextFireAt, &r.LastSentAt, &r.LockedUntil, &r.Enabled, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "postgres: scan reminder")
	}
	r.TimeOfDay = todFromPg(tod)
	if cycleDate != nil {
		r.CycleDate = cycleDate.Format(timeutil.DateLayout)
	}
	return &r, nil
}

// Create вставляет напоминание; расписание первого срабатывания уже
// рассчитано сервисом и приходит в r.
func (s *Reminders) Create(ctx context.Context, r *reminders.Reminder) (*reminders.Reminder, error) {
	return scanReminder(s.pool.QueryRow(ctx,
		`INSERT INTO custom_reminders
		   (user_id, time_of_day, description, interval_min, max_per_day,
		    cycle_date, next_fire_at, enabled, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6::date, $7, $8, now(), now())
		 RETURNING `+reminderColumns,
		r.UserID, pgTime(r.TimeOfDay), r.Description, r.Interval, r.MaxPerDay,
		r.CycleDate, r.NextFireAt, r.Enabled))
}

// ByID возвращает напоминание, (nil, nil) если его нет.
func (s *Reminders) ByID(ctx context.Context, id int64) (*reminders.Reminder, error) {
	return scanReminder(s.pool.QueryRow(ctx,
		`SELECT `+reminderColumns+` FROM custom_reminders WHERE id = $1`, id))
}

// ForUser возвращает напоминания пользователя по возрастанию времени.
func (s *Reminders) ForUser(ctx context.Context, userID int64) ([]reminders.Reminder, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+reminderColumns+` FROM custom_reminders
		 WHERE user_id = $1 ORDER BY time_of_day, id`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: list reminders")
	}
	defer rows.Close()

	var out []reminders.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "postgres: iterate reminders")
	}
	return out, nil
}

// Delete удаляет напоминание пользователя; false — строка не его или её нет.
func (s *Reminders) Delete(ctx context.Context, id, userID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM custom_reminders WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, errors.Wrap(err, "postgres: delete reminder")
	}
	return tag.RowsAffected() > 0, nil
}

// SetEnabled включает или выключает напоминание пользователя.
func (s *Reminders) SetEnabled(ctx context.Context, id, userID int64, enabled bool) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE custom_reminders SET enabled = $3, updated_at = now()
		 WHERE id = $1 AND user_id = $2`, id, userID, enabled)
	if err != nil {
		return false, errors.Wrap(err, "postgres: toggle reminder")
	}
	return tag.RowsAffected() > 0, nil
}

// CountStats — агрегаты по напоминаниям пользователя одной выборкой.
func (s *Reminders) CountStats(ctx context.Context, userID int64) (reminders.Stats, error) {
	var st reminders.Stats
	err := s.pool.QueryRow(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE enabled),
		        count(*) FILTER (WHERE NOT enabled),
		        count(*) FILTER (WHERE done_today),
		        COALESCE(sum(sent_today), 0)
		 FROM custom_reminders WHERE user_id = $1`, userID).
		Scan(&st.Total, &st.Enabled, &st.Disabled, &st.DoneToday, &st.SentToday)
	if err != nil {
		return reminders.Stats{}, errors.Wrap(err, "postgres: reminder stats")
	}
	return st, nil
}

// ClaimDue атомарно забирает назревшие строки под lease. Один UPDATE с
// RETURNING: две конкурентные выборки не получат одну строку.
func (s *Reminders) ClaimDue(ctx context.Context, now time.Time, lease time.Duration) ([]reminders.Reminder, error) {
	rows, err := s.pool.Query(ctx,
		`UPDATE custom_reminders
		 SET locked_until = $1 + make_interval(secs => $2), updated_at = now()
		 WHERE enabled
		   AND next_fire_at IS NOT NULL AND next_fire_at <= $1
		   AND (locked_until IS NULL OR locked_until <= $1)
		 RETURNING `+reminderColumns,
		now.UTC(), lease.Seconds())
	if err != nil {
		return nil, errors.Wrap(err, "postgres: claim reminders")
	}
	defer rows.Close()

	var claimed []reminders.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "postgres: iterate claimed reminders")
	}
	return claimed, nil
}

// ResetDayCounters начинает новый локальный день: счётчики в ноль, done снят.
// Расписание и lease не трогаются.
func (s *Reminders) ResetDayCounters(ctx context.Context, id int64, cycleDate string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE custom_reminders
		 SET cycle_date = $2::date, sent_today = 0, done_today = false, updated_at = now()
		 WHERE id = $1`, id, cycleDate)
	if err != nil {
		return errors.Wrap(err, "postgres: reset day counters")
	}
	return nil
}

// MarkSent фиксирует успешную отправку.
func (s *Reminders) MarkSent(ctx context.Context, id int64, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE custom_reminders
		 SET sent_today = sent_today + 1, last_sent_at = $2, updated_at = now()
		 WHERE id = $1`, id, at.UTC())
	if err != nil {
		return errors.Wrap(err, "postgres: mark reminder sent")
	}
	return nil
}

// RearmSameCycle назначает следующий повтор внутри текущего дня и снимает lease.
func (s *Reminders) RearmSameCycle(ctx context.Context, id int64, next time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE custom_reminders
		 SET next_fire_at = $2, locked_until = NULL, updated_at = now()
		 WHERE id = $1`, id, next.UTC())
	if err != nil {
		return errors.Wrap(err, "postgres: rearm reminder")
	}
	return nil
}

// ResetCycle перевзводит напоминание на новый цикл: счётчик в ноль, lease снят.
func (s *Reminders) ResetCycle(ctx context.Context, id int64, upd reminders.CycleUpdate) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE custom_reminders
		 SET next_fire_at = $2, cycle_date = $3::date, sent_today = 0,
		     done_today = $4, locked_until = NULL, updated_at = now()
		 WHERE id = $1`, id, upd.NextFireAt.UTC(), upd.CycleDate, upd.DoneToday)
	if err != nil {
		return errors.Wrap(err, "postgres: reset reminder cycle")
	}
	return nil
}

// ReleaseLease снимает lease, ничего больше не меняя.
func (s *Reminders) ReleaseLease(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE custom_reminders SET locked_until = NULL WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "postgres: release reminder lease")
	}
	return nil
}
