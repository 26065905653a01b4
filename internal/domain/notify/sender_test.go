package notify_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"telegram-planner/internal/domain/conversation"
	"telegram-planner/internal/domain/notify"
	"telegram-planner/internal/domain/plan"
	"telegram-planner/internal/domain/reminders"
	"telegram-planner/internal/domain/user"
	"telegram-planner/internal/infra/timeutil"
)

// errRecipientGone играет роль постоянной ошибки транспорта (бот заблокирован).
var errRecipientGone = errors.New("recipient gone")

// errFlaky — временный сбой транспорта.
var errFlaky = errors.New("network hiccup")

// fakeTransport пишет отправленные сообщения и отдаёт ошибки по сценарию:
// errs[i] — результат i-го вызова Send, после исчерпания сценария — успех.
type fakeTransport struct {
	sent []notify.Message
	errs []error
}

func (f *fakeTransport) Send(_ context.Context, _ int64, msg notify.Message) (int, error) {
	call := len(f.sent)
	f.sent = append(f.sent, msg)
	if call < len(f.errs) && f.errs[call] != nil {
		return 0, f.errs[call]
	}
	return 100 + call, nil
}

type fakeUsers struct {
	byID map[int64]user.User
}

func (f *fakeUsers) ByID(_ context.Context, id int64) (*user.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (f *fakeUsers) ByTelegramID(_ context.Context, _ int64) (*user.User, error) { return nil, nil }
func (f *fakeUsers) GetOrCreate(_ context.Context, _ int64) (*user.User, error) { return nil, nil }
func (f *fakeUsers) All(_ context.Context) ([]user.User, error)                 { return nil, nil }
func (f *fakeUsers) UpdateTimezone(_ context.Context, _ int64, _ string) error  { return nil }
func (f *fakeUsers) UpdateMorningTime(_ context.Context, _ int64, _ timeutil.TimeOfDay) error {
	return nil
}
func (f *fakeUsers) UpdateEveningTime(_ context.Context, _ int64, _ timeutil.TimeOfDay) error {
	return nil
}
func (f *fakeUsers) UpdateReminderSettings(_ context.Context, _ int64, _, _ *int) error { return nil }

type fakePlans struct {
	plans map[string]*plan.Plan // ключ "userID/date"
}

func (f *fakePlans) key(userID int64, date string) string { return fmt.Sprintf("%d/%s", userID, date) }

func (f *fakePlans) ByDate(_ context.Context, userID int64, date string) (*plan.Plan, error) {
	return f.plans[f.key(userID, date)], nil
}

func (f *fakePlans) Save(_ context.Context, _ int64, _ string, _ []string) (*plan.Plan, error) {
	return nil, nil
}
func (f *fakePlans) ByID(_ context.Context, _ int64) (*plan.Plan, error)        { return nil, nil }
func (f *fakePlans) Delete(_ context.Context, _ int64, _ string) (bool, error)  { return false, nil }
func (f *fakePlans) TaskForUser(_ context.Context, _, _ int64) (*plan.Task, error) {
	return nil, nil
}
func (f *fakePlans) SetTaskStatus(_ context.Context, _ int64, _ plan.Status, _ *string) error {
	return nil
}
func (f *fakePlans) SetTaskComment(_ context.Context, _ int64, _ string) error { return nil }
func (f *fakePlans) ForMonth(_ context.Context, _ int64, _, _ int) ([]plan.Plan, error) {
	return nil, nil
}
func (f *fakePlans) All(_ context.Context, _ int64) ([]plan.Plan, error) { return nil, nil }

// ledgerEntry — одна запись журнала в тестовом представлении.
type ledgerEntry struct {
	userID  int64
	channel notify.Channel
	outcome notify.Outcome
	payload notify.Payload
}

type fakeLedger struct {
	entries []ledgerEntry
}

func (f *fakeLedger) Record(_ context.Context, userID int64, ch notify.Channel, outcome notify.Outcome, p notify.Payload) error {
	f.entries = append(f.entries, ledgerEntry{userID: userID, channel: ch, outcome: outcome, payload: p})
	return nil
}

func (f *fakeLedger) WasSent(_ context.Context, _ int64, _ notify.Channel, _ string) (bool, error) {
	return false, nil
}

func (f *fakeLedger) ResetSent(_ context.Context, _ int64, _ notify.Channel, _ string) (int64, error) {
	return 0, nil
}

type enqueuedReminder struct {
	userID  int64
	date    string
	attempt int
	delay   time.Duration
}

type fakeEnqueuer struct {
	morningReminders []enqueuedReminder
	eveningReminders []time.Duration
}

func (f *fakeEnqueuer) EnqueueMorning(_ context.Context, _ int64, _ string) error { return nil }
func (f *fakeEnqueuer) EnqueueMorningReminder(_ context.Context, userID int64, date string, attempt int, delay time.Duration) error {
	f.morningReminders = append(f.morningReminders, enqueuedReminder{
		userID: userID, date: date, attempt: attempt, delay: delay,
	})
	return nil
}
func (f *fakeEnqueuer) EnqueueEvening(_ context.Context, _ int64, _ string) error { return nil }
func (f *fakeEnqueuer) EnqueueEveningReminder(_ context.Context, _ int64, _ string, delay time.Duration) error {
	f.eveningReminders = append(f.eveningReminders, delay)
	return nil
}
func (f *fakeEnqueuer) EnqueueCustom(_ context.Context, _ int64) error { return nil }

type fakeRemStore struct {
	byID map[int64]reminders.Reminder

	marked  []int64
	rearmed map[int64]time.Time
	cycles  map[int64]reminders.CycleUpdate
	leases  []int64
}

func newFakeRemStore(rs ...reminders.Reminder) *fakeRemStore {
	f := &fakeRemStore{
		byID:    make(map[int64]reminders.Reminder),
		rearmed: make(map[int64]time.Time),
		cycles:  make(map[int64]reminders.CycleUpdate),
	}
	for _, r := range rs {
		f.byID[r.ID] = r
	}
	return f
}

func (f *fakeRemStore) ByID(_ context.Context, id int64) (*reminders.Reminder, error) {
	r, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (f *fakeRemStore) MarkSent(_ context.Context, id int64, _ time.Time) error {
	f.marked = append(f.marked, id)
	return nil
}

func (f *fakeRemStore) RearmSameCycle(_ context.Context, id int64, next time.Time) error {
	f.rearmed[id] = next
	return nil
}

func (f *fakeRemStore) ResetCycle(_ context.Context, id int64, upd reminders.CycleUpdate) error {
	f.cycles[id] = upd
	return nil
}

func (f *fakeRemStore) ReleaseLease(_ context.Context, id int64) error {
	f.leases = append(f.leases, id)
	return nil
}

func (f *fakeRemStore) Create(_ context.Context, _ *reminders.Reminder) (*reminders.Reminder, error) {
	return nil, nil
}
func (f *fakeRemStore) ForUser(_ context.Context, _ int64) ([]reminders.Reminder, error) {
	return nil, nil
}
func (f *fakeRemStore) Delete(_ context.Context, _, _ int64) (bool, error) { return false, nil }
func (f *fakeRemStore) SetEnabled(_ context.Context, _, _ int64, _ bool) (bool, error) {
	return false, nil
}
func (f *fakeRemStore) CountStats(_ context.Context, _ int64) (reminders.Stats, error) {
	return reminders.Stats{}, nil
}
func (f *fakeRemStore) ClaimDue(_ context.Context, _ time.Time, _ time.Duration) ([]reminders.Reminder, error) {
	return nil, nil
}
func (f *fakeRemStore) ResetDayCounters(_ context.Context, _ int64, _ string) error { return nil }

// memStore — диалоговое хранилище в памяти для conversation.Manager.
type memStore struct {
	mu sync.Mutex
	m  map[int64][]byte
}

func newMemStore() *memStore { return &memStore{m: make(map[int64][]byte)} }

func (s *memStore) Get(_ context.Context, chatID int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[chatID], nil
}

func (s *memStore) Set(_ context.Context, chatID int64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[chatID] = append([]byte(nil), data...)
	return nil
}

func (s *memStore) Clear(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, chatID)
	return nil
}

func (s *memStore) Close() error { return nil }

// env — собранный Sender со всеми фейками.
type env struct {
	sender *notify.Sender

	transport *fakeTransport
	users     *fakeUsers
	plans     *fakePlans
	ledger    *fakeLedger
	enq       *fakeEnqueuer
	rems      *fakeRemStore
	conv      *conversation.Manager
	now       time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		transport: &fakeTransport{},
		users:     &fakeUsers{byID: make(map[int64]user.User)},
		plans:     &fakePlans{plans: make(map[string]*plan.Plan)},
		ledger:    &fakeLedger{},
		enq:       &fakeEnqueuer{},
		rems:      newFakeRemStore(),
		conv:      conversation.NewManager(newMemStore()),
		now:       time.Date(2026, 3, 4, 6, 0, 0, 0, time.UTC),
	}
	e.sender = notify.NewSender(notify.SenderOptions{
		Transport: e.transport,
		Permanent: func(err error) bool { return errors.Is(err, errRecipientGone) },
		Users:     e.users,
		Plans:     e.plans,
		Reminders: e.rems,
		Ledger:    e.ledger,
		Conv:      e.conv,
		Enqueuer:  e.enq,
		Clock:     func() time.Time { return e.now },
	})
	return e
}

func (e *env) addUser(id int64, maxAttempts int) {
	e.users.byID[id] = user.User{
		ID:                  id,
		TelegramID:          id * 10,
		Timezone:            "Europe/Berlin",
		MorningTime:         timeutil.TimeOfDay{Hour: 7, Minute: 0},
		EveningTime:         timeutil.TimeOfDay{Hour: 21, Minute: 0},
		ReminderInterval:    30,
		ReminderMaxAttempts: maxAttempts,
		TZConfirmed:         true,
		MorningConfirmed:    true,
		EveningConfirmed:    true,
	}
}

const testDate = "2026-03-04"

func TestSendMorningRecordsAndSchedulesRepeat(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.addUser(1, 2)

	if err := e.sender.SendMorning(context.Background(), 1, testDate, 0, false); err != nil {
		t.Fatalf("SendMorning: %v", err)
	}

	if len(e.transport.sent) != 1 {
		t.Fatalf("отправок = %d, ждали 1", len(e.transport.sent))
	}
	if len(e.ledger.entries) != 1 {
		t.Fatalf("записей журнала = %d, ждали 1", len(e.ledger.entries))
	}
	entry := e.ledger.entries[0]
	if entry.channel != notify.ChannelMorning || entry.outcome != notify.OutcomeSent {
		t.Errorf("запись = %s/%s, ждали morning/sent", entry.channel, entry.outcome)
	}
	if entry.payload.Date != testDate {
		t.Errorf("date = %q, ждали %q", entry.payload.Date, testDate)
	}

	c, err := e.conv.Get(context.Background(), 10)
	if err != nil {
		t.Fatalf("conv.Get: %v", err)
	}
	if c.State != conversation.StateAwaitingPlan || c.Data.PlanDate != testDate {
		t.Errorf("диалог = %s (%q), ждали awaiting_plan на %s", c.State, c.Data.PlanDate, testDate)
	}

	if len(e.enq.morningReminders) != 1 {
		t.Fatalf("повторов поставлено %d, ждали 1", len(e.enq.morningReminders))
	}
	rep := e.enq.morningReminders[0]
	if rep.attempt != 1 || rep.delay != 30*time.Minute {
		t.Errorf("повтор attempt=%d delay=%s, ждали 1 и 30m", rep.attempt, rep.delay)
	}
}

func TestSendMorningNoRepeatsWhenDisabled(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.addUser(1, 0)

	if err := e.sender.SendMorning(context.Background(), 1, testDate, 0, false); err != nil {
		t.Fatalf("SendMorning: %v", err)
	}
	if len(e.enq.morningReminders) != 0 {
		t.Errorf("повторы поставлены при max_attempts=0: %v", e.enq.morningReminders)
	}
}

func TestSendMorningPermanentFailure(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.addUser(1, 2)
	e.transport.errs = []error{errRecipientGone}

	// Постоянная ошибка закрывает задачу: nil, журнал failed.
	if err := e.sender.SendMorning(context.Background(), 1, testDate, 0, false); err != nil {
		t.Fatalf("SendMorning после постоянной ошибки должен вернуть nil, получили %v", err)
	}
	if len(e.ledger.entries) != 1 || e.ledger.entries[0].outcome != notify.OutcomeFailed {
		t.Fatalf("журнал = %+v, ждали одну запись failed", e.ledger.entries)
	}
	if e.ledger.entries[0].payload.Error == "" {
		t.Error("текст ошибки не попал в payload")
	}
	if len(e.enq.morningReminders) != 0 {
		t.Errorf("повторы после постоянной ошибки: %v", e.enq.morningReminders)
	}
}

func TestSendMorningTransientFailure(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.addUser(1, 2)
	e.transport.errs = []error{errFlaky}

	// Временный сбой отдаётся очереди на ретрай, в журнале retried.
	if err := e.sender.SendMorning(context.Background(), 1, testDate, 0, false); err == nil {
		t.Fatal("временный сбой должен вернуть ошибку для ретрая")
	}
	if len(e.ledger.entries) != 1 || e.ledger.entries[0].outcome != notify.OutcomeRetried {
		t.Fatalf("журнал = %+v, ждали одну запись retried", e.ledger.entries)
	}
}

func TestSendMorningFinalAttemptClosesTask(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.addUser(1, 2)
	e.transport.errs = []error{errFlaky}

	if err := e.sender.SendMorning(context.Background(), 1, testDate, 3, true); err != nil {
		t.Fatalf("последняя попытка должна закрыть задачу, получили %v", err)
	}
	if len(e.ledger.entries) != 1 || e.ledger.entries[0].outcome != notify.OutcomeFailed {
		t.Fatalf("журнал = %+v, ждали failed", e.ledger.entries)
	}
}

func TestMorningReminderStopsWhenPlanExists(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.addUser(1, 2)
	e.plans.plans[e.plans.key(1, testDate)] = &plan.Plan{ID: 5, UserID: 1, Date: testDate}

	if err := e.sender.SendMorningReminder(context.Background(), 1, testDate, 1); err != nil {
		t.Fatalf("SendMorningReminder: %v", err)
	}
	if len(e.transport.sent) != 0 {
		t.Errorf("напоминание ушло при готовом плане: %d отправок", len(e.transport.sent))
	}
	if len(e.enq.morningReminders) != 0 {
		t.Errorf("следующий повтор поставлен при готовом плане: %v", e.enq.morningReminders)
	}
}

func TestMorningReminderSchedulesNext(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.addUser(1, 3)

	if err := e.sender.SendMorningReminder(context.Background(), 1, testDate, 1); err != nil {
		t.Fatalf("SendMorningReminder: %v", err)
	}
	if len(e.transport.sent) != 1 {
		t.Fatalf("отправок = %d, ждали 1", len(e.transport.sent))
	}
	if len(e.enq.morningReminders) != 1 || e.enq.morningReminders[0].attempt != 2 {
		t.Fatalf("следующий повтор = %+v, ждали attempt=2", e.enq.morningReminders)
	}
}

func TestMorningReminderRespectsAttemptCap(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.addUser(1, 1)

	// attempt за пределами потолка: выход без отправки.
	if err := e.sender.SendMorningReminder(context.Background(), 1, testDate, 2); err != nil {
		t.Fatalf("SendMorningReminder: %v", err)
	}
	if len(e.transport.sent) != 0 {
		t.Errorf("отправка сверх потолка повторов")
	}
}

func TestSendEveningNoPlan(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.addUser(1, 1)

	if err := e.sender.SendEvening(context.Background(), 1, testDate, 0, false); err != nil {
		t.Fatalf("SendEvening: %v", err)
	}
	if len(e.transport.sent) != 1 {
		t.Fatalf("отправок = %d, ждали 1", len(e.transport.sent))
	}
	if len(e.ledger.entries) != 1 || e.ledger.entries[0].outcome != notify.OutcomeSent {
		t.Fatalf("журнал = %+v, ждали sent", e.ledger.entries)
	}
	// Сверять нечего — повторы не ставятся.
	if len(e.enq.eveningReminders) != 0 {
		t.Errorf("повторы сверки без плана: %v", e.enq.eveningReminders)
	}
}

func TestSendEveningWithPlan(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.addUser(1, 1)
	e.plans.plans[e.plans.key(1, testDate)] = &plan.Plan{
		ID: 5, UserID: 1, Date: testDate,
		Tasks: []plan.Task{{ID: 51, PlanID: 5, Position: 1, Text: "Отчёт"}},
	}

	if err := e.sender.SendEvening(context.Background(), 1, testDate, 0, false); err != nil {
		t.Fatalf("SendEvening: %v", err)
	}

	c, err := e.conv.Get(context.Background(), 10)
	if err != nil {
		t.Fatalf("conv.Get: %v", err)
	}
	if c.State != conversation.StateAwaitingConfirmation || c.Data.PlanID != 5 {
		t.Errorf("диалог = %s (plan=%d), ждали awaiting_confirmation на план 5", c.State, c.Data.PlanID)
	}

	want := []time.Duration{time.Hour, 3 * time.Hour}
	if len(e.enq.eveningReminders) != len(want) {
		t.Fatalf("повторов = %d, ждали %d", len(e.enq.eveningReminders), len(want))
	}
	for i, d := range want {
		if e.enq.eveningReminders[i] != d {
			t.Errorf("повтор %d = %s, ждали %s", i, e.enq.eveningReminders[i], d)
		}
	}
}

func TestSendCustomMarksAndRearms(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.addUser(1, 1)
	e.rems.byID[7] = reminders.Reminder{
		ID: 7, UserID: 1, Description: "Пить воду",
		TimeOfDay: timeutil.TimeOfDay{Hour: 10, Minute: 0},
		Interval:  45, MaxPerDay: 3,
		CycleDate: testDate, SentToday: 0, Enabled: true,
	}

	if err := e.sender.SendCustom(context.Background(), 7); err != nil {
		t.Fatalf("SendCustom: %v", err)
	}
	if len(e.rems.marked) != 1 || e.rems.marked[0] != 7 {
		t.Fatalf("MarkSent = %v, ждали [7]", e.rems.marked)
	}
	next, ok := e.rems.rearmed[7]
	if !ok {
		t.Fatal("повтор внутри цикла не перевзведён")
	}
	if want := e.now.Add(45 * time.Minute); !next.Equal(want) {
		t.Errorf("next = %s, ждали %s", next, want)
	}
}

func TestSendCustomClosesCycleOnLimit(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.addUser(1, 1)
	e.rems.byID[7] = reminders.Reminder{
		ID: 7, UserID: 1, Description: "Пить воду",
		TimeOfDay: timeutil.TimeOfDay{Hour: 10, Minute: 0},
		Interval:  45, MaxPerDay: 2,
		CycleDate: testDate, SentToday: 1, Enabled: true,
	}

	if err := e.sender.SendCustom(context.Background(), 7); err != nil {
		t.Fatalf("SendCustom: %v", err)
	}
	if len(e.rems.marked) != 1 {
		t.Fatalf("отправка не зафиксирована: %v", e.rems.marked)
	}
	upd, ok := e.rems.cycles[7]
	if !ok {
		t.Fatal("цикл не закрыт после последней попытки дня")
	}
	if upd.CycleDate == "" || !upd.NextFireAt.After(e.now) {
		t.Errorf("перевзвод = %+v, ждали следующий локальный день", upd)
	}
}

func TestSendCustomSkipsDisabled(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.addUser(1, 1)
	e.rems.byID[7] = reminders.Reminder{
		ID: 7, UserID: 1, Description: "Пить воду",
		TimeOfDay: timeutil.TimeOfDay{Hour: 10, Minute: 0},
		Interval:  45, MaxPerDay: 2,
		CycleDate: testDate, Enabled: false,
	}

	if err := e.sender.SendCustom(context.Background(), 7); err != nil {
		t.Fatalf("SendCustom: %v", err)
	}
	if len(e.transport.sent) != 0 {
		t.Error("выключенное напоминание отправлено")
	}
}

func TestSendCustomTransientFailureRearms(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.addUser(1, 1)
	e.transport.errs = []error{errFlaky}
	e.rems.byID[7] = reminders.Reminder{
		ID: 7, UserID: 1, Description: "Пить воду",
		TimeOfDay: timeutil.TimeOfDay{Hour: 10, Minute: 0},
		Interval:  45, MaxPerDay: 3,
		CycleDate: testDate, Enabled: true,
	}

	if err := e.sender.SendCustom(context.Background(), 7); err == nil {
		t.Fatal("временный сбой должен вернуть ошибку")
	}
	if len(e.rems.marked) != 0 {
		t.Errorf("попытка засчитана при сбое: %v", e.rems.marked)
	}
	if _, ok := e.rems.rearmed[7]; !ok {
		t.Error("после сбоя строка не перевзведена внутри цикла")
	}
}
