package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"telegram-planner/internal/domain/user"
	"telegram-planner/internal/infra/timeutil"
)

const userColumns = `id, tg_user_id, timezone, morning_time, evening_time,
	reminder_interval_min, reminder_max_attempts,
	tz_confirmed, morning_confirmed, evening_confirmed, created_at, updated_at`

// scanUser читает одну строку users; TimeOfDay-поля идут через pgtype.Time.
func scanUser(row pgx.Row) (*user.User, error) {
	var (
		u                user.User
		morning, evening pgtype.Time
	)
	err := row.Scan(&u.ID, &u.TelegramID, &u.Timezone, &morning, &evening,
		&u.ReminderInterval, &u.ReminderMaxAttempts,
		&u.TZConfirmed, &u.MorningConfirmed, &u.EveningConfirmed, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "postgres: scan user")
	}
	u.MorningTime = todFromPg(morning)
	u.EveningTime = todFromPg(evening)
	return &u, nil
}

// ByID возвращает пользователя по внутреннему ключу, (nil, nil) если его нет.
func (s *Users) ByID(ctx context.Context, id int64) (*user.User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// ByTelegramID возвращает пользователя по идентификатору чата Telegram.
func (s *Users) ByTelegramID(ctx context.Context, telegramID int64) (*user.User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE tg_user_id = $1`, telegramID))
}

// GetOrCreate возвращает пользователя, создавая запись с настройками по
// умолчанию при первом обращении. Один round-trip: upsert с RETURNING.
func (s *Users) GetOrCreate(ctx context.Context, telegramID int64) (*user.User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		`INSERT INTO users (tg_user_id, timezone, morning_time, evening_time,
		                    reminder_interval_min, reminder_max_attempts,
		                    created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		 ON CONFLICT (tg_user_id) DO UPDATE SET tg_user_id = EXCLUDED.tg_user_id
		 RETURNING `+userColumns,
		telegramID, user.DefaultTimezone,
		pgTime(user.DefaultMorningTime), pgTime(user.DefaultEveningTime),
		user.DefaultReminderInterval, user.DefaultReminderMaxAttempts))
}

// All возвращает всех пользователей для прохода диспетчера.
func (s *Users) All(ctx context.Context) ([]user.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: list users")
	}
	defer rows.Close()

	var users []user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "postgres: iterate users")
	}
	return users, nil
}

// UpdateTimezone меняет пояс и подтверждает шаг онбординга «пояс».
func (s *Users) UpdateTimezone(ctx context.Context, userID int64, tz string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE users SET timezone = $2, tz_confirmed = true, updated_at = now() WHERE id = $1`,
		userID, tz)
	if err != nil {
		return errors.Wrap(err, "postgres: update timezone")
	}
	return nil
}

// UpdateMorningTime меняет утреннее время и подтверждает шаг «утро».
func (s *Users) UpdateMorningTime(ctx context.Context, userID int64, t timeutil.TimeOfDay) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE users SET morning_time = $2, morning_confirmed = true, updated_at = now() WHERE id = $1`,
		userID, pgTime(t))
	if err != nil {
		return errors.Wrap(err, "postgres: update morning time")
	}
	return nil
}

// UpdateEveningTime меняет вечернее время и подтверждает шаг «вечер».
func (s *Users) UpdateEveningTime(ctx context.Context, userID int64, t timeutil.TimeOfDay) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE users SET evening_time = $2, evening_confirmed = true, updated_at = now() WHERE id = $1`,
		userID, pgTime(t))
	if err != nil {
		return errors.Wrap(err, "postgres: update evening time")
	}
	return nil
}

// UpdateReminderSettings — частичное обновление: nil-поле остаётся нетронутым.
func (s *Users) UpdateReminderSettings(ctx context.Context, userID int64, interval, maxAttempts *int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE users SET
		   reminder_interval_min = COALESCE($2, reminder_interval_min),
		   reminder_max_attempts = COALESCE($3, reminder_max_attempts),
		   updated_at = now()
		 WHERE id = $1`,
		userID, interval, maxAttempts)
	if err != nil {
		return errors.Wrap(err, "postgres: update reminder settings")
	}
	return nil
}
