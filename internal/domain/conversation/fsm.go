package conversation

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"

	"telegram-planner/internal/infra/fsmstate"
)

// Data — сопутствующие данные состояния. Набор полей общий на все состояния:
// каждое заполняет своё подмножество, остальное опускается при сериализации.
type Data struct {
	PlanDate string `json:"plan_date,omitempty"` // YYYY-MM-DD
	PlanID   int64  `json:"plan_id,omitempty"`
	UserID   int64  `json:"user_id,omitempty"`
	TaskID   int64  `json:"task_id,omitempty"` // задача, к которой ждём комментарий

	// Черновик кастомного напоминания, собирается по шагам диалога.
	ReminderTime        string `json:"reminder_time,omitempty"` // HH:MM
	ReminderDescription string `json:"reminder_description,omitempty"`
	ReminderInterval    int    `json:"reminder_interval,omitempty"`
}

// Context — полное состояние диалога одного чата.
type Context struct {
	State State `json:"state"`
	Data  Data  `json:"data,omitempty"`
}

// Idle — диалог не ведётся.
func (c Context) Idle() bool { return c.State == StateIdle }

// Manager читает и пишет состояния диалогов поверх fsmstate.Store.
// Методы безопасны для конкурентных вызовов в той мере, в какой безопасно
// само хранилище; гонка двух одновременных апдейтов одного чата решается
// последней записью, как и в любом FSM поверх Redis.
type Manager struct {
	store fsmstate.Store
}

// NewManager оборачивает хранилище состояний.
func NewManager(store fsmstate.Store) *Manager {
	return &Manager{store: store}
}

// Get возвращает состояние чата; пустой Context (StateIdle), если записи нет.
func (m *Manager) Get(ctx context.Context, chatID int64) (Context, error) {
	raw, err := m.store.Get(ctx, chatID)
	if err != nil {
		return Context{}, errors.Wrapf(err, "conversation: load chat %d", chatID)
	}
	if len(raw) == 0 {
		return Context{}, nil
	}
	var c Context
	if err := json.Unmarshal(raw, &c); err != nil {
		// Непарсящаяся запись означает смену формата между версиями.
		// Диалог безопаснее начать заново, чем гадать.
		return Context{}, errors.Wrapf(err, "conversation: decode chat %d", chatID)
	}
	return c, nil
}

// Set сохраняет состояние чата целиком, затирая прежнее.
func (m *Manager) Set(ctx context.Context, chatID int64, c Context) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "conversation: encode")
	}
	if err := m.store.Set(ctx, chatID, raw); err != nil {
		return errors.Wrapf(err, "conversation: save chat %d", chatID)
	}
	return nil
}

// SetState переводит чат в состояние без данных.
func (m *Manager) SetState(ctx context.Context, chatID int64, s State) error {
	return m.Set(ctx, chatID, Context{State: s})
}

// Clear завершает диалог: чат снова в StateIdle.
func (m *Manager) Clear(ctx context.Context, chatID int64) error {
	if err := m.store.Clear(ctx, chatID); err != nil {
		return errors.Wrapf(err, "conversation: clear chat %d", chatID)
	}
	return nil
}

// SetAwaitingPlan переводит чат в ожидание текста плана на дату.
// Вызывается и из чата, и из воркера после утренней отправки.
func (m *Manager) SetAwaitingPlan(ctx context.Context, chatID int64, planDate string) error {
	return m.Set(ctx, chatID, Context{
		State: StateAwaitingPlan,
		Data:  Data{PlanDate: planDate},
	})
}

// SetAwaitingConfirmation переводит чат в вечернюю сверку конкретного плана.
func (m *Manager) SetAwaitingConfirmation(ctx context.Context, chatID int64, planID int64, planDate string, userID int64) error {
	return m.Set(ctx, chatID, Context{
		State: StateAwaitingConfirmation,
		Data:  Data{PlanID: planID, PlanDate: planDate, UserID: userID},
	})
}
