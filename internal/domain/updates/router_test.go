package updates_test

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"telegram-planner/internal/adapters/botapi"
	"telegram-planner/internal/domain/conversation"
	"telegram-planner/internal/domain/notify"
	"telegram-planner/internal/domain/plan"
	"telegram-planner/internal/domain/reminders"
	"telegram-planner/internal/domain/updates"
	"telegram-planner/internal/domain/user"
	"telegram-planner/internal/infra/timeutil"
)

// memStore — fsmstate.Store в памяти для тестов диалога.
type memStore struct{ m map[int64][]byte }

func newMemStore() *memStore { return &memStore{m: make(map[int64][]byte)} }

func (s *memStore) Get(_ context.Context, chatID int64) ([]byte, error) { return s.m[chatID], nil }
func (s *memStore) Set(_ context.Context, chatID int64, data []byte) error {
	s.m[chatID] = data
	return nil
}
func (s *memStore) Clear(_ context.Context, chatID int64) error {
	delete(s.m, chatID)
	return nil
}
func (s *memStore) Close() error { return nil }

// fakeUsers — user.Store в памяти; Update* ведут себя как БД: ставят
// подтверждающие флаги онбординга.
type fakeUsers struct {
	byID   map[int64]*user.User
	nextID int64
}

func newFakeUsers() *fakeUsers { return &fakeUsers{byID: make(map[int64]*user.User)} }

func (f *fakeUsers) ByID(_ context.Context, id int64) (*user.User, error) {
	if u, ok := f.byID[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeUsers) ByTelegramID(_ context.Context, tgID int64) (*user.User, error) {
	for _, u := range f.byID {
		if u.TelegramID == tgID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) GetOrCreate(ctx context.Context, tgID int64) (*user.User, error) {
	if u, _ := f.ByTelegramID(ctx, tgID); u != nil {
		return u, nil
	}
	f.nextID++
	u := &user.User{
		ID:                  f.nextID,
		TelegramID:          tgID,
		Timezone:            user.DefaultTimezone,
		MorningTime:         user.DefaultMorningTime,
		EveningTime:         user.DefaultEveningTime,
		ReminderInterval:    user.DefaultReminderInterval,
		ReminderMaxAttempts: user.DefaultReminderMaxAttempts,
	}
	f.byID[u.ID] = u
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) All(_ context.Context) ([]user.User, error) {
	var out []user.User
	for _, u := range f.byID {
		out = append(out, *u)
	}
	return out, nil
}

func (f *fakeUsers) UpdateTimezone(_ context.Context, userID int64, tz string) error {
	u := f.byID[userID]
	u.Timezone = tz
	u.TZConfirmed = true
	return nil
}

func (f *fakeUsers) UpdateMorningTime(_ context.Context, userID int64, t timeutil.TimeOfDay) error {
	u := f.byID[userID]
	u.MorningTime = t
	u.MorningConfirmed = true
	return nil
}

func (f *fakeUsers) UpdateEveningTime(_ context.Context, userID int64, t timeutil.TimeOfDay) error {
	u := f.byID[userID]
	u.EveningTime = t
	u.EveningConfirmed = true
	return nil
}

func (f *fakeUsers) UpdateReminderSettings(_ context.Context, userID int64, interval, maxAttempts *int) error {
	u := f.byID[userID]
	if interval != nil {
		u.ReminderInterval = *interval
	}
	if maxAttempts != nil {
		u.ReminderMaxAttempts = *maxAttempts
	}
	return nil
}

// fakePlans — plan.Store в памяти ровно в объёме, нужном роутеру.
type fakePlans struct {
	plans    map[int64]*plan.Plan // по id
	statuses map[int64]plan.Status
	comments map[int64]string
	nextID   int64
}

func newFakePlans() *fakePlans {
	return &fakePlans{
		plans:    make(map[int64]*plan.Plan),
		statuses: make(map[int64]plan.Status),
		comments: make(map[int64]string),
	}
}

func (f *fakePlans) Save(_ context.Context, userID int64, date string, tasks []string) (*plan.Plan, error) {
	for _, p := range f.plans {
		if p.UserID == userID && p.Date == date {
			delete(f.plans, p.ID)
		}
	}
	f.nextID++
	p := &plan.Plan{ID: f.nextID, UserID: userID, Date: date}
	for i, text := range tasks {
		f.nextID++
		p.Tasks = append(p.Tasks, plan.Task{ID: f.nextID, PlanID: p.ID, Position: i + 1, Text: text})
	}
	f.plans[p.ID] = p
	return p, nil
}

func (f *fakePlans) ByDate(_ context.Context, userID int64, date string) (*plan.Plan, error) {
	for _, p := range f.plans {
		if p.UserID == userID && p.Date == date {
			return p, nil
		}
	}
	return nil, nil
}

func (f *fakePlans) ByID(_ context.Context, planID int64) (*plan.Plan, error) {
	return f.plans[planID], nil
}

func (f *fakePlans) Delete(_ context.Context, userID int64, date string) (bool, error) {
	for id, p := range f.plans {
		if p.UserID == userID && p.Date == date {
			delete(f.plans, id)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakePlans) TaskForUser(_ context.Context, taskID, userID int64) (*plan.Task, error) {
	for _, p := range f.plans {
		if p.UserID != userID {
			continue
		}
		for i := range p.Tasks {
			if p.Tasks[i].ID == taskID {
				return &p.Tasks[i], nil
			}
		}
	}
	return nil, nil
}

func (f *fakePlans) SetTaskStatus(_ context.Context, taskID int64, status plan.Status, comment *string) error {
	f.statuses[taskID] = status
	if comment != nil {
		f.comments[taskID] = *comment
	}
	return nil
}

func (f *fakePlans) SetTaskComment(_ context.Context, taskID int64, comment string) error {
	f.comments[taskID] = comment
	return nil
}

func (f *fakePlans) ForMonth(_ context.Context, _ int64, _, _ int) ([]plan.Plan, error) {
	return nil, nil
}

func (f *fakePlans) All(_ context.Context, userID int64) ([]plan.Plan, error) {
	var out []plan.Plan
	for _, p := range f.plans {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

// fakeRemStore — reminders.Store в памяти для команд и мастера создания.
type fakeRemStore struct {
	rems   map[int64]*reminders.Reminder
	nextID int64
}

func newFakeRemStore() *fakeRemStore { return &fakeRemStore{rems: make(map[int64]*reminders.Reminder)} }

func (f *fakeRemStore) Create(_ context.Context, r *reminders.Reminder) (*reminders.Reminder, error) {
	f.nextID++
	cp := *r
	cp.ID = f.nextID
	f.rems[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeRemStore) ByID(_ context.Context, id int64) (*reminders.Reminder, error) {
	if r, ok := f.rems[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeRemStore) ForUser(_ context.Context, userID int64) ([]reminders.Reminder, error) {
	var out []reminders.Reminder
	for _, r := range f.rems {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRemStore) Delete(_ context.Context, id, userID int64) (bool, error) {
	if r, ok := f.rems[id]; ok && r.UserID == userID {
		delete(f.rems, id)
		return true, nil
	}
	return false, nil
}

func (f *fakeRemStore) SetEnabled(_ context.Context, id, userID int64, enabled bool) (bool, error) {
	if r, ok := f.rems[id]; ok && r.UserID == userID {
		r.Enabled = enabled
		return true, nil
	}
	return false, nil
}

func (f *fakeRemStore) CountStats(_ context.Context, _ int64) (reminders.Stats, error) {
	return reminders.Stats{}, nil
}

func (f *fakeRemStore) ClaimDue(_ context.Context, _ time.Time, _ time.Duration) ([]reminders.Reminder, error) {
	return nil, nil
}

func (f *fakeRemStore) ResetDayCounters(_ context.Context, _ int64, _ string) error { return nil }
func (f *fakeRemStore) MarkSent(_ context.Context, _ int64, _ time.Time) error      { return nil }
func (f *fakeRemStore) RearmSameCycle(_ context.Context, _ int64, _ time.Time) error {
	return nil
}
func (f *fakeRemStore) ResetCycle(_ context.Context, id int64, upd reminders.CycleUpdate) error {
	if r, ok := f.rems[id]; ok {
		r.NextFireAt = &upd.NextFireAt
		r.CycleDate = upd.CycleDate
		r.SentToday = 0
		r.DoneToday = upd.DoneToday
	}
	return nil
}
func (f *fakeRemStore) ReleaseLease(_ context.Context, _ int64) error { return nil }

// fakeLedger — журнал доставки для /reset_evening.
type fakeLedger struct {
	resets []string // "userID/channel/date"
}

func (f *fakeLedger) WasSent(_ context.Context, _ int64, _ notify.Channel, _ string) (bool, error) {
	return false, nil
}

func (f *fakeLedger) Record(_ context.Context, _ int64, _ notify.Channel, _ notify.Outcome, _ notify.Payload) error {
	return nil
}

func (f *fakeLedger) ResetSent(_ context.Context, userID int64, ch notify.Channel, date string) (int64, error) {
	f.resets = append(f.resets, fmt.Sprintf("%d/%s/%s", userID, ch, date))
	return 1, nil
}

// fakeEnqueuer записывает постановки в очередь.
type fakeEnqueuer struct {
	evening []string // "userID/date"
}

func (f *fakeEnqueuer) EnqueueMorning(_ context.Context, _ int64, _ string) error { return nil }
func (f *fakeEnqueuer) EnqueueMorningReminder(_ context.Context, _ int64, _ string, _ int, _ time.Duration) error {
	return nil
}
func (f *fakeEnqueuer) EnqueueEvening(_ context.Context, _ int64, date string) error {
	f.evening = append(f.evening, date)
	return nil
}
func (f *fakeEnqueuer) EnqueueEveningReminder(_ context.Context, _ int64, _ string, _ time.Duration) error {
	return nil
}
func (f *fakeEnqueuer) EnqueueCustom(_ context.Context, _ int64) error { return nil }

// fakeGateway записывает исходящие сообщения, правки и ответы на нажатия.
type fakeGateway struct {
	sent    []notify.Message
	edits   []notify.Message
	answers []string
	nextID  int
}

func (f *fakeGateway) Send(_ context.Context, _ int64, msg notify.Message) (int, error) {
	f.sent = append(f.sent, msg)
	f.nextID++
	return f.nextID, nil
}

func (f *fakeGateway) Edit(_ context.Context, _ int64, _ int, msg notify.Message) error {
	f.edits = append(f.edits, msg)
	return nil
}

func (f *fakeGateway) AnswerCallback(_ context.Context, callbackID, text string) error {
	f.answers = append(f.answers, text)
	_ = callbackID
	return nil
}

func (f *fakeGateway) lastSent(t *testing.T) notify.Message {
	t.Helper()
	if len(f.sent) == 0 {
		t.Fatal("исходящих сообщений нет")
	}
	return f.sent[len(f.sent)-1]
}

// env — собранный роутер с фейками.
type env struct {
	router *updates.Router
	users  *fakeUsers
	plans  *fakePlans
	rems   *fakeRemStore
	ledger *fakeLedger
	enq    *fakeEnqueuer
	gw     *fakeGateway
	conv   *conversation.Manager
}

func newEnv() *env {
	users := newFakeUsers()
	plans := newFakePlans()
	remStore := newFakeRemStore()
	ledger := &fakeLedger{}
	enq := &fakeEnqueuer{}
	gw := &fakeGateway{}
	conv := conversation.NewManager(newMemStore())

	router := updates.NewRouter(updates.Options{
		Users:     users,
		Plans:     plans,
		Reminders: reminders.NewService(remStore, users),
		Ledger:    ledger,
		Enqueuer:  enq,
		Conv:      conv,
		Gateway:   gw,
		Clock:     func() time.Time { return time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC) },
	})
	return &env{router: router, users: users, plans: plans, rems: remStore,
		ledger: ledger, enq: enq, gw: gw, conv: conv}
}

// onboardedUser создаёт пользователя с завершённым онбордингом.
func (e *env) onboardedUser(t *testing.T, chatID int64) *user.User {
	t.Helper()
	ctx := context.Background()
	u, err := e.users.GetOrCreate(ctx, chatID)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	_ = e.users.UpdateTimezone(ctx, u.ID, "Europe/Berlin")
	_ = e.users.UpdateMorningTime(ctx, u.ID, timeutil.TimeOfDay{Hour: 7})
	_ = e.users.UpdateEveningTime(ctx, u.ID, timeutil.TimeOfDay{Hour: 21})
	u, _ = e.users.ByID(ctx, u.ID)
	return u
}

var nextUpdateID atomic.Int64

func textUpdate(chatID int64, text string) botapi.Update {
	id := nextUpdateID.Add(1)
	return botapi.Update{
		UpdateID: id,
		Message: &botapi.Message{
			MessageID: int(id),
			From:      &botapi.User{ID: chatID},
			Chat:      botapi.Chat{ID: chatID, Type: "private"},
			Text:      text,
		},
	}
}

func callbackUpdate(chatID int64, data string) botapi.Update {
	return botapi.Update{
		UpdateID: nextUpdateID.Add(1),
		CallbackQuery: &botapi.CallbackQuery{
			ID:   "cb",
			From: botapi.User{ID: chatID},
			Message: &botapi.Message{
				MessageID: 100,
				Chat:      botapi.Chat{ID: chatID, Type: "private"},
			},
			Data: data,
		},
	}
}

func TestOnboardingTextFlow(t *testing.T) {
	t.Parallel()
	e := newEnv()
	ctx := context.Background()
	const chatID = int64(5001)

	e.router.HandleUpdate(ctx, textUpdate(chatID, "/start"))
	if got := e.gw.lastSent(t); !strings.Contains(got.Text, "часовой пояс") {
		t.Fatalf("ждали запрос пояса, получили %q", got.Text)
	}

	e.router.HandleUpdate(ctx, textUpdate(chatID, "Europe/Berlin"))
	e.router.HandleUpdate(ctx, textUpdate(chatID, "07:30"))
	e.router.HandleUpdate(ctx, textUpdate(chatID, "21:15"))

	u, err := e.users.ByTelegramID(ctx, chatID)
	if err != nil || u == nil {
		t.Fatalf("пользователь не создан: %v", err)
	}
	if !u.Onboarded() {
		t.Fatalf("онбординг не завершён: %+v", u)
	}
	if u.Timezone != "Europe/Berlin" {
		t.Errorf("Timezone = %q", u.Timezone)
	}
	if u.MorningTime != (timeutil.TimeOfDay{Hour: 7, Minute: 30}) {
		t.Errorf("MorningTime = %s", u.MorningTime)
	}
	if u.EveningTime != (timeutil.TimeOfDay{Hour: 21, Minute: 15}) {
		t.Errorf("EveningTime = %s", u.EveningTime)
	}

	c, _ := e.conv.Get(ctx, chatID)
	if !c.Idle() {
		t.Errorf("диалог не в idle после онбординга: %+v", c)
	}
}

func TestOnboardingBadInputKeepsState(t *testing.T) {
	t.Parallel()
	e := newEnv()
	ctx := context.Background()
	const chatID = int64(5002)

	e.router.HandleUpdate(ctx, textUpdate(chatID, "/start"))
	e.router.HandleUpdate(ctx, textUpdate(chatID, "Mars/Olympus"))

	if got := e.gw.lastSent(t); !strings.Contains(got.Text, "Не знаю такой пояс") {
		t.Fatalf("ждали ошибку пояса, получили %q", got.Text)
	}
	c, _ := e.conv.Get(ctx, chatID)
	if c.State != conversation.StateOnboardingTimezone {
		t.Errorf("состояние = %q, ждали шаг пояса", c.State)
	}
}

func TestCommandsGatedUntilOnboarded(t *testing.T) {
	t.Parallel()
	e := newEnv()
	ctx := context.Background()
	const chatID = int64(5003)

	e.router.HandleUpdate(ctx, textUpdate(chatID, "/today"))
	if got := e.gw.lastSent(t); !strings.Contains(got.Text, "часовой пояс") {
		t.Fatalf("непройденный онбординг должен перехватывать команды, получили %q", got.Text)
	}
}

func TestPlanTextSaved(t *testing.T) {
	t.Parallel()
	e := newEnv()
	ctx := context.Background()
	const chatID = int64(5004)
	u := e.onboardedUser(t, chatID)

	e.router.HandleUpdate(ctx, textUpdate(chatID, "/plan"))
	e.router.HandleUpdate(ctx, textUpdate(chatID, "1. Отчёт\n2. Звонок клиенту\n\n3) Тренировка"))

	p, _ := e.plans.ByDate(ctx, u.ID, "2026-03-04")
	if p == nil {
		t.Fatal("план не сохранён")
	}
	if len(p.Tasks) != 3 {
		t.Fatalf("задач %d, ждали 3", len(p.Tasks))
	}
	if p.Tasks[0].Text != "Отчёт" || p.Tasks[2].Text != "Тренировка" {
		t.Errorf("задачи разобраны неверно: %+v", p.Tasks)
	}

	c, _ := e.conv.Get(ctx, chatID)
	if !c.Idle() {
		t.Errorf("диалог не в idle после сохранения плана")
	}
	if got := e.gw.lastSent(t); !strings.Contains(got.Text, "План на сегодня записан (3)") {
		t.Errorf("ждали подтверждение, получили %q", got.Text)
	}
}

func TestPlanTextInvalidKeepsState(t *testing.T) {
	t.Parallel()
	e := newEnv()
	ctx := context.Background()
	const chatID = int64(5005)
	e.onboardedUser(t, chatID)

	e.router.HandleUpdate(ctx, textUpdate(chatID, "/plan"))
	e.router.HandleUpdate(ctx, textUpdate(chatID, "   \n  "))

	c, _ := e.conv.Get(ctx, chatID)
	if c.State != conversation.StateAwaitingPlan {
		t.Errorf("состояние = %q, ждали ожидание плана", c.State)
	}
}

func TestResetEveningCommand(t *testing.T) {
	t.Parallel()
	e := newEnv()
	ctx := context.Background()
	const chatID = int64(5006)
	e.onboardedUser(t, chatID)

	e.router.HandleUpdate(ctx, textUpdate(chatID, "/reset_evening"))

	if len(e.ledger.resets) != 1 {
		t.Fatalf("сбросов журнала %d, ждали 1", len(e.ledger.resets))
	}
	if len(e.enq.evening) != 1 || e.enq.evening[0] != "2026-03-04" {
		t.Fatalf("вечерняя сверка не поставлена заново: %v", e.enq.evening)
	}
}

func TestCallbackTaskStatus(t *testing.T) {
	t.Parallel()
	e := newEnv()
	ctx := context.Background()
	const chatID = int64(5007)
	u := e.onboardedUser(t, chatID)

	p, _ := e.plans.Save(ctx, u.ID, "2026-03-04", []string{"Отчёт", "Звонок"})
	taskID := p.Tasks[0].ID

	e.router.HandleUpdate(ctx, callbackUpdate(chatID, "task_done_"+itoa(taskID)))

	if e.plans.statuses[taskID] != plan.StatusDone {
		t.Errorf("статус задачи = %q, ждали done", e.plans.statuses[taskID])
	}
	if len(e.gw.answers) != 1 {
		t.Errorf("нажатие не подтверждено: %v", e.gw.answers)
	}
}

func TestCallbackTaskStatusForeignTask(t *testing.T) {
	t.Parallel()
	e := newEnv()
	ctx := context.Background()
	e.onboardedUser(t, 5008)
	stranger := e.onboardedUser(t, 5009)

	p, _ := e.plans.Save(ctx, stranger.ID, "2026-03-04", []string{"Чужая задача"})
	taskID := p.Tasks[0].ID

	e.router.HandleUpdate(ctx, callbackUpdate(5008, "task_done_"+itoa(taskID)))

	if _, ok := e.plans.statuses[taskID]; ok {
		t.Error("чужая задача не должна получить отметку")
	}
}

func TestCallbackPlanSkip(t *testing.T) {
	t.Parallel()
	e := newEnv()
	ctx := context.Background()
	const chatID = int64(5010)
	e.onboardedUser(t, chatID)

	e.router.HandleUpdate(ctx, textUpdate(chatID, "/plan"))
	e.router.HandleUpdate(ctx, callbackUpdate(chatID, "plan_skip"))

	c, _ := e.conv.Get(ctx, chatID)
	if !c.Idle() {
		t.Errorf("диалог не сброшен после пропуска")
	}
	if len(e.gw.edits) == 0 || !strings.Contains(e.gw.edits[len(e.gw.edits)-1].Text, "без плана") {
		t.Errorf("сообщение не перерисовано в «без плана»: %+v", e.gw.edits)
	}
}

func TestReminderWizard(t *testing.T) {
	t.Parallel()
	e := newEnv()
	ctx := context.Background()
	const chatID = int64(5011)
	u := e.onboardedUser(t, chatID)

	e.router.HandleUpdate(ctx, callbackUpdate(chatID, "crem_add"))
	e.router.HandleUpdate(ctx, textUpdate(chatID, "14:00"))
	e.router.HandleUpdate(ctx, textUpdate(chatID, "Пить воду"))
	e.router.HandleUpdate(ctx, textUpdate(chatID, "30"))
	e.router.HandleUpdate(ctx, textUpdate(chatID, "3"))

	list, _ := e.rems.ForUser(ctx, u.ID)
	if len(list) != 1 {
		t.Fatalf("напоминаний %d, ждали 1", len(list))
	}
	r := list[0]
	if r.TimeOfDay != (timeutil.TimeOfDay{Hour: 14}) || r.Description != "Пить воду" ||
		r.Interval != 30 || r.MaxPerDay != 3 {
		t.Errorf("черновик собран неверно: %+v", r)
	}
	if !r.Enabled {
		t.Error("новое напоминание должно быть включено")
	}

	c, _ := e.conv.Get(ctx, chatID)
	if !c.Idle() {
		t.Errorf("диалог не завершён после мастера")
	}
}

func TestDedupSuppressesReplay(t *testing.T) {
	t.Parallel()
	e := newEnv()
	ctx := context.Background()
	const chatID = int64(5012)
	e.onboardedUser(t, chatID)

	upd := textUpdate(chatID, "/help")
	e.router.HandleUpdate(ctx, upd)
	e.router.HandleUpdate(ctx, upd)

	if len(e.gw.sent) != 1 {
		t.Fatalf("повторный update_id обработан дважды: %d сообщений", len(e.gw.sent))
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
