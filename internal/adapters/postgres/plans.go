package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"telegram-planner/internal/domain/plan"
	"telegram-planner/internal/infra/timeutil"
)

// Save сохраняет план на дату, заменяя прежний состав задач целиком.
// Одна транзакция: upsert плана, удаление старых задач (отметки уходят
// каскадом), вставка новых. Повторный вызов идемпотентен по (userID, date).
func (s *Plans) Save(ctx context.Context, userID int64, date string, tasks []string) (*plan.Plan, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: begin save plan")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	p := &plan.Plan{UserID: userID, Date: date}
	err = tx.QueryRow(ctx,
		`INSERT INTO plans (user_id, date, created_at)
		 VALUES ($1, $2::date, now())
		 ON CONFLICT (user_id, date) DO UPDATE SET date = EXCLUDED.date
		 RETURNING id, created_at`,
		userID, date).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: upsert plan")
	}

	if _, err := tx.Exec(ctx, `DELETE FROM tasks WHERE plan_id = $1`, p.ID); err != nil {
		return nil, errors.Wrap(err, "postgres: clear plan tasks")
	}
	for i, text := range tasks {
		var t plan.Task
		err := tx.QueryRow(ctx,
			`INSERT INTO tasks (plan_id, position, text) VALUES ($1, $2, $3) RETURNING id`,
			p.ID, i+1, text).Scan(&t.ID)
		if err != nil {
			return nil, errors.Wrap(err, "postgres: insert task")
		}
		t.PlanID = p.ID
		t.Position = i + 1
		t.Text = text
		p.Tasks = append(p.Tasks, t)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "postgres: commit save plan")
	}
	return p, nil
}

// ByDate возвращает план на дату вместе с задачами и отметками.
func (s *Plans) ByDate(ctx context.Context, userID int64, date string) (*plan.Plan, error) {
	return s.loadPlan(ctx, s.pool.QueryRow(ctx,
		`SELECT id, user_id, date, created_at FROM plans WHERE user_id = $1 AND date = $2::date`,
		userID, date))
}

// ByID возвращает план по идентификатору вместе с задачами и отметками.
func (s *Plans) ByID(ctx context.Context, planID int64) (*plan.Plan, error) {
	return s.loadPlan(ctx, s.pool.QueryRow(ctx,
		`SELECT id, user_id, date, created_at FROM plans WHERE id = $1`, planID))
}

func (s *Plans) loadPlan(ctx context.Context, row pgx.Row) (*plan.Plan, error) {
	p, err := scanPlan(row)
	if err != nil || p == nil {
		return nil, err
	}
	p.Tasks, err = s.loadTasks(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func scanPlan(row pgx.Row) (*plan.Plan, error) {
	var (
		p    plan.Plan
		date time.Time
	)
	err := row.Scan(&p.ID, &p.UserID, &date, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "postgres: scan plan")
	}
	p.Date = date.Format(timeutil.DateLayout)
	return &p, nil
}

const taskColumns = `t.id, t.plan_id, t.position, t.text, s.status, s.comment, s.responded_at`

func (s *Plans) loadTasks(ctx context.Context, planID int64) ([]plan.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+`
		 FROM tasks t
		 LEFT JOIN task_statuses s ON s.task_id = t.id
		 WHERE t.plan_id = $1
		 ORDER BY t.position`, planID)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: load tasks")
	}
	defer rows.Close()

	var tasks []plan.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "postgres: iterate tasks")
	}
	return tasks, nil
}

func scanTask(row pgx.Row) (*plan.Task, error) {
	var (
		t           plan.Task
		status      *string
		comment     *string
		respondedAt *time.Time
	)
	err := row.Scan(&t.ID, &t.PlanID, &t.Position, &t.Text, &status, &comment, &respondedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "postgres: scan task")
	}
	if status != nil {
		ts := plan.TaskStatus{Status: plan.Status(*status)}
		if comment != nil {
			ts.Comment = *comment
		}
		if respondedAt != nil {
			ts.RespondedAt = *respondedAt
		}
		t.Status = &ts
	}
	return &t, nil
}

// Delete удаляет план на дату; задачи и отметки уходят каскадом.
func (s *Plans) Delete(ctx context.Context, userID int64, date string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM plans WHERE user_id = $1 AND date = $2::date`, userID, date)
	if err != nil {
		return false, errors.Wrap(err, "postgres: delete plan")
	}
	return tag.RowsAffected() > 0, nil
}

// TaskForUser возвращает задачу, только если она принадлежит плану пользователя.
func (s *Plans) TaskForUser(ctx context.Context, taskID, userID int64) (*plan.Task, error) {
	return scanTask(s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+`
		 FROM tasks t
		 JOIN plans p ON p.id = t.plan_id
		 LEFT JOIN task_statuses s ON s.task_id = t.id
		 WHERE t.id = $1 AND p.user_id = $2`, taskID, userID))
}

// SetTaskStatus ставит или обновляет отметку. comment == nil оставляет
// прежний комментарий нетронутым.
func (s *Plans) SetTaskStatus(ctx context.Context, taskID int64, status plan.Status, comment *string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO task_statuses (task_id, status, comment, responded_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (task_id) DO UPDATE SET
		   status = EXCLUDED.status,
		   comment = COALESCE(EXCLUDED.comment, task_statuses.comment),
		   responded_at = EXCLUDED.responded_at`,
		taskID, string(status), comment)
	if err != nil {
		return errors.Wrap(err, "postgres: set task status")
	}
	return nil
}

// SetTaskComment обновляет комментарий; если отметки ещё нет, создаёт её
// со статусом done.
func (s *Plans) SetTaskComment(ctx context.Context, taskID int64, comment string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO task_statuses (task_id, status, comment, responded_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (task_id) DO UPDATE SET
		   comment = EXCLUDED.comment,
		   responded_at = EXCLUDED.responded_at`,
		taskID, string(plan.StatusDone), comment)
	if err != nil {
		return errors.Wrap(err, "postgres: set task comment")
	}
	return nil
}

// ForMonth возвращает планы месяца по убыванию даты.
func (s *Plans) ForMonth(ctx context.Context, userID int64, year, month int) ([]plan.Plan, error) {
	return s.listPlans(ctx,
		`SELECT id, user_id, date, created_at FROM plans
		 WHERE user_id = $1
		   AND date >= make_date($2, $3, 1)
		   AND date < make_date($2, $3, 1) + interval '1 month'
		 ORDER BY date DESC`, userID, year, month)
}

// All возвращает все планы пользователя по убыванию даты.
func (s *Plans) All(ctx context.Context, userID int64) ([]plan.Plan, error) {
	return s.listPlans(ctx,
		`SELECT id, user_id, date, created_at FROM plans
		 WHERE user_id = $1 ORDER BY date DESC`, userID)
}

func (s *Plans) listPlans(ctx context.Context, query string, args ...any) ([]plan.Plan, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "postgres: list plans")
	}
	defer rows.Close()

	var plans []plan.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "postgres: iterate plans")
	}

	for i := range plans {
		plans[i].Tasks, err = s.loadTasks(ctx, plans[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return plans, nil
}
