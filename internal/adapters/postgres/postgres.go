// Package postgres — шлюз состояния поверх pgx/v5: пользователи, планы,
// журнал уведомлений и кастомные напоминания. Схема создаётся снаружи
// (миграции вне зоны ответственности процесса); шлюз только читает и пишет.
//
// Каждый домен получает свой адаптер поверх общего *pgxpool.Pool. Пул создаёт
// и закрывает вызывающая сторона.
package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"telegram-planner/internal/domain/notify"
	"telegram-planner/internal/domain/plan"
	"telegram-planner/internal/domain/reminders"
	"telegram-planner/internal/domain/user"
	"telegram-planner/internal/infra/timeutil"
)

// NewPool строит пул соединений из DSN и проверяет доступность базы.
// Настройки пула (размер, таймауты) берутся из самого DSN.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: parse dsn")
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "postgres: ping")
	}
	return pool, nil
}

// Store — все четыре доменных адаптера поверх одного пула.
type Store struct {
	Users     *Users
	Plans     *Plans
	Ledger    *Ledger
	Reminders *Reminders
}

// New собирает адаптеры. Пулом владеет вызывающая сторона.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		Users:     &Users{pool: pool},
		Plans:     &Plans{pool: pool},
		Ledger:    &Ledger{pool: pool},
		Reminders: &Reminders{pool: pool},
	}
}

// Users реализует user.Store поверх таблицы users.
type Users struct {
	pool *pgxpool.Pool
}

// Plans реализует plan.Store поверх таблиц plans/tasks/task_statuses.
type Plans struct {
	pool *pgxpool.Pool
}

// Ledger реализует notify.Ledger поверх append-only таблицы notification_log.
type Ledger struct {
	pool *pgxpool.Pool
}

// Reminders реализует reminders.Store поверх таблицы custom_reminders.
type Reminders struct {
	pool *pgxpool.Pool
}

var (
	_ user.Store      = (*Users)(nil)
	_ plan.Store      = (*Plans)(nil)
	_ notify.Ledger   = (*Ledger)(nil)
	_ reminders.Store = (*Reminders)(nil)
)

// pgTime конвертирует TimeOfDay в колонку типа time.
func pgTime(tod timeutil.TimeOfDay) pgtype.Time {
	us := int64(tod.MinutesOfDay()) * int64(time.Minute/time.Microsecond)
	return pgtype.Time{Microseconds: us, Valid: true}
}

// todFromPg конвертирует колонку типа time в TimeOfDay; секунды отбрасываются.
func todFromPg(t pgtype.Time) timeutil.TimeOfDay {
	minutes := int(t.Microseconds / int64(time.Minute/time.Microsecond))
	return timeutil.TimeOfDay{Hour: minutes / 60, Minute: minutes % 60}
}
