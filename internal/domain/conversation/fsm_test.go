package conversation_test

import (
	"context"
	"testing"

	"telegram-planner/internal/domain/conversation"
)

// memStore — fsmstate.Store в памяти для тестов менеджера.
type memStore struct {
	data map[int64][]byte
}

func newMemStore() *memStore { return &memStore{data: make(map[int64][]byte)} }

func (s *memStore) Get(_ context.Context, chatID int64) ([]byte, error) {
	return s.data[chatID], nil
}

func (s *memStore) Set(_ context.Context, chatID int64, raw []byte) error {
	s.data[chatID] = append([]byte(nil), raw...)
	return nil
}

func (s *memStore) Clear(_ context.Context, chatID int64) error {
	delete(s.data, chatID)
	return nil
}

func (s *memStore) Close() error { return nil }

func TestManagerRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := conversation.NewManager(newMemStore())

	got, err := m.Get(ctx, 5001)
	if err != nil {
		t.Fatalf("Get empty: %v", err)
	}
	if !got.Idle() {
		t.Fatalf("fresh chat state = %q, want idle", got.State)
	}

	if err := m.SetAwaitingPlan(ctx, 5001, "2026-03-04"); err != nil {
		t.Fatalf("SetAwaitingPlan: %v", err)
	}
	got, err = m.Get(ctx, 5001)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != conversation.StateAwaitingPlan {
		t.Errorf("state = %q, want %q", got.State, conversation.StateAwaitingPlan)
	}
	if got.Data.PlanDate != "2026-03-04" {
		t.Errorf("plan date = %q, want 2026-03-04", got.Data.PlanDate)
	}

	if err := m.Clear(ctx, 5001); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	got, _ = m.Get(ctx, 5001)
	if !got.Idle() {
		t.Errorf("state after clear = %q, want idle", got.State)
	}
}

func TestManagerAwaitingConfirmation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := conversation.NewManager(newMemStore())

	if err := m.SetAwaitingConfirmation(ctx, 5001, 42, "2026-03-04", 7); err != nil {
		t.Fatalf("SetAwaitingConfirmation: %v", err)
	}
	got, err := m.Get(ctx, 5001)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.State != conversation.StateAwaitingConfirmation {
		t.Errorf("state = %q", got.State)
	}
	if got.Data.PlanID != 42 || got.Data.PlanDate != "2026-03-04" || got.Data.UserID != 7 {
		t.Errorf("data = %+v, want plan 42 / 2026-03-04 / user 7", got.Data)
	}
}

func TestManagerSetReplacesData(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := conversation.NewManager(newMemStore())

	if err := m.SetAwaitingConfirmation(ctx, 1, 42, "2026-03-04", 7); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// Переход в другое состояние не тянет за собой старые данные.
	if err := m.SetState(ctx, 1, conversation.StateMenuMain); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	got, _ := m.Get(ctx, 1)
	if got.State != conversation.StateMenuMain {
		t.Errorf("state = %q", got.State)
	}
	if got.Data != (conversation.Data{}) {
		t.Errorf("data leaked across transition: %+v", got.Data)
	}
}

func TestStatePredicates(t *testing.T) {
	t.Parallel()

	if !conversation.StateMenuSettings.InMenu() {
		t.Error("menu:settings should be a menu state")
	}
	if conversation.StateAwaitingPlan.InMenu() {
		t.Error("plan:awaiting_plan is not a menu state")
	}
	if !conversation.StateOnboardingMorning.InOnboarding() {
		t.Error("onboarding:awaiting_morning_time should be onboarding")
	}
	if conversation.StateIdle.InOnboarding() {
		t.Error("idle is not onboarding")
	}
}
