package reminders_test

import (
	"context"
	"testing"
	"time"

	"telegram-planner/internal/domain/reminders"
	"telegram-planner/internal/domain/user"
	"telegram-planner/internal/infra/timeutil"
)

func TestNextDailyFire(t *testing.T) {
	t.Parallel()

	tod := timeutil.TimeOfDay{Hour: 14, Minute: 30}

	tests := []struct {
		name     string
		tz       string
		base     time.Time
		wantUTC  time.Time
		wantDate string
	}{
		{
			name:     "later today in Tashkent",
			tz:       "Asia/Tashkent", // UTC+5 круглый год
			base:     time.Date(2026, 3, 4, 5, 0, 0, 0, time.UTC),
			wantUTC:  time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC),
			wantDate: "2026-03-04",
		},
		{
			name:     "already passed rolls to tomorrow",
			tz:       "Asia/Tashkent",
			base:     time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC),
			wantUTC:  time.Date(2026, 3, 5, 9, 30, 0, 0, time.UTC),
			wantDate: "2026-03-05",
		},
		{
			name:     "unknown zone falls back to UTC",
			tz:       "Mars/Olympus",
			base:     time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC),
			wantUTC:  time.Date(2026, 3, 4, 14, 30, 0, 0, time.UTC),
			wantDate: "2026-03-04",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, gotDate := reminders.NextDailyFire(tt.tz, tod, tt.base)
			if !got.Equal(tt.wantUTC) {
				t.Errorf("fire = %v, want %v", got, tt.wantUTC)
			}
			if gotDate != tt.wantDate {
				t.Errorf("cycle date = %q, want %q", gotDate, tt.wantDate)
			}
		})
	}
}

func TestCycleFinished(t *testing.T) {
	t.Parallel()

	r := &reminders.Reminder{MaxPerDay: 3}
	if r.CycleFinished(1) || r.CycleFinished(2) {
		t.Error("cycle should continue while attempts below cap")
	}
	if !r.CycleFinished(3) {
		t.Error("cycle should finish at the cap")
	}
	done := &reminders.Reminder{MaxPerDay: 3, DoneToday: true}
	if !done.CycleFinished(1) {
		t.Error("done reminder finishes the cycle regardless of attempts")
	}
}

// fakeStore пишет вызовы мутаций, чтобы проверить решения сервиса.
type fakeStore struct {
	reminders map[int64]*reminders.Reminder

	created    *reminders.Reminder
	enabledSet *bool
	resetID    int64
	resetUpd   *reminders.CycleUpdate
}

func newFakeStore(rs ...*reminders.Reminder) *fakeStore {
	s := &fakeStore{reminders: make(map[int64]*reminders.Reminder)}
	for _, r := range rs {
		s.reminders[r.ID] = r
	}
	return s
}

func (s *fakeStore) Create(_ context.Context, r *reminders.Reminder) (*reminders.Reminder, error) {
	c := *r
	c.ID = 1
	s.created = &c
	return &c, nil
}

func (s *fakeStore) ByID(_ context.Context, id int64) (*reminders.Reminder, error) {
	return s.reminders[id], nil
}

func (s *fakeStore) ForUser(_ context.Context, _ int64) ([]reminders.Reminder, error) {
	return nil, nil
}

func (s *fakeStore) Delete(_ context.Context, id, userID int64) (bool, error) {
	r := s.reminders[id]
	if r == nil || r.UserID != userID {
		return false, nil
	}
	delete(s.reminders, id)
	return true, nil
}

func (s *fakeStore) SetEnabled(_ context.Context, id, userID int64, enabled bool) (bool, error) {
	r := s.reminders[id]
	if r == nil || r.UserID != userID {
		return false, nil
	}
	r.Enabled = enabled
	s.enabledSet = &enabled
	return true, nil
}

func (s *fakeStore) CountStats(_ context.Context, _ int64) (reminders.Stats, error) {
	return reminders.Stats{}, nil
}

func (s *fakeStore) ClaimDue(_ context.Context, _ time.Time, _ time.Duration) ([]reminders.Reminder, error) {
	return nil, nil
}

func (s *fakeStore) ResetDayCounters(_ context.Context, _ int64, _ string) error { return nil }

func (s *fakeStore) MarkSent(_ context.Context, _ int64, _ time.Time) error { return nil }

func (s *fakeStore) RearmSameCycle(_ context.Context, _ int64, _ time.Time) error { return nil }

func (s *fakeStore) ResetCycle(_ context.Context, id int64, upd reminders.CycleUpdate) error {
	s.resetID = id
	s.resetUpd = &upd
	return nil
}

func (s *fakeStore) ReleaseLease(_ context.Context, _ int64) error { return nil }

// fakeUsers отдаёт одного пользователя с фиксированным поясом.
type fakeUsers struct {
	u *user.User
}

func (f *fakeUsers) ByID(_ context.Context, id int64) (*user.User, error) {
	if f.u != nil && f.u.ID == id {
		return f.u, nil
	}
	return nil, nil
}

func (f *fakeUsers) ByTelegramID(_ context.Context, _ int64) (*user.User, error) { return nil, nil }
func (f *fakeUsers) GetOrCreate(_ context.Context, _ int64) (*user.User, error)  { return nil, nil }
func (f *fakeUsers) All(_ context.Context) ([]user.User, error)                  { return nil, nil }
func (f *fakeUsers) UpdateTimezone(_ context.Context, _ int64, _ string) error   { return nil }
func (f *fakeUsers) UpdateMorningTime(_ context.Context, _ int64, _ timeutil.TimeOfDay) error {
	return nil
}
func (f *fakeUsers) UpdateEveningTime(_ context.Context, _ int64, _ timeutil.TimeOfDay) error {
	return nil
}
func (f *fakeUsers) UpdateReminderSettings(_ context.Context, _ int64, _, _ *int) error { return nil }

func TestServiceAddValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newFakeStore()
	svc := reminders.NewService(store, &fakeUsers{u: &user.User{ID: 7, Timezone: "UTC"}})
	tod := timeutil.TimeOfDay{Hour: 14, Minute: 30}

	if _, err := svc.Add(ctx, 7, tod, "   ", 30, 3); err == nil {
		t.Error("empty description should be rejected")
	}
	if _, err := svc.Add(ctx, 7, tod, "таблетка", 0, 3); err == nil {
		t.Error("interval below range should be rejected")
	}
	if _, err := svc.Add(ctx, 7, tod, "таблетка", 30, 51); err == nil {
		t.Error("attempts above range should be rejected")
	}

	r, err := svc.Add(ctx, 7, tod, "  Выпить таблетку  ", 30, 3)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if r.Description != "Выпить таблетку" {
		t.Errorf("description = %q, want trimmed", r.Description)
	}
	if !r.Enabled || r.NextFireAt == nil || r.CycleDate == "" {
		t.Errorf("reminder not armed: %+v", r)
	}
}

func TestServiceToggle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	r := &reminders.Reminder{
		ID: 3, UserID: 7, Enabled: false,
		TimeOfDay: timeutil.TimeOfDay{Hour: 9, Minute: 0},
		SentToday: 2, DoneToday: true,
	}
	store := newFakeStore(r)
	svc := reminders.NewService(store, &fakeUsers{u: &user.User{ID: 7, Timezone: "UTC"}})

	ok, err := svc.Toggle(ctx, 3, 7, true)
	if err != nil || !ok {
		t.Fatalf("Toggle on = %v, %v", ok, err)
	}
	if store.resetUpd == nil {
		t.Fatal("enabling must rearm the schedule")
	}
	if store.resetUpd.DoneToday {
		t.Error("fresh cycle must start with done=false")
	}
	if store.resetUpd.NextFireAt.IsZero() || store.resetUpd.CycleDate == "" {
		t.Errorf("rearm incomplete: %+v", store.resetUpd)
	}

	store.resetUpd = nil
	ok, err = svc.Toggle(ctx, 3, 7, false)
	if err != nil || !ok {
		t.Fatalf("Toggle off = %v, %v", ok, err)
	}
	if store.resetUpd != nil {
		t.Error("disabling must not touch the schedule")
	}

	ok, _ = svc.Toggle(ctx, 3, 999, true)
	if ok {
		t.Error("foreign user must not toggle the reminder")
	}
}

func TestServiceMarkDoneToday(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	r := &reminders.Reminder{
		ID: 4, UserID: 7, Enabled: true,
		TimeOfDay: timeutil.TimeOfDay{Hour: 23, Minute: 59},
		SentToday: 1,
	}
	store := newFakeStore(r)
	svc := reminders.NewService(store, &fakeUsers{u: &user.User{ID: 7, Timezone: "UTC"}})

	before := time.Now().UTC().Format("2006-01-02")
	ok, err := svc.MarkDoneToday(ctx, 4, 7)
	after := time.Now().UTC().Format("2006-01-02")
	if err != nil || !ok {
		t.Fatalf("MarkDoneToday = %v, %v", ok, err)
	}
	if store.resetUpd == nil || !store.resetUpd.DoneToday {
		t.Fatalf("done flag not set: %+v", store.resetUpd)
	}
	// Дата цикла остаётся сегодняшней: завтра диспетчер увидит смену дня
	// и сбросит done перед отправкой.
	if got := store.resetUpd.CycleDate; got != before && got != after {
		t.Errorf("cycle date = %q, want today (%q or %q)", got, before, after)
	}

	ok, _ = svc.MarkDoneToday(ctx, 4, 999)
	if ok {
		t.Error("foreign user must not mark the reminder done")
	}
}
