package reminders

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"telegram-planner/internal/domain/plan"
	"telegram-planner/internal/domain/user"
	"telegram-planner/internal/infra/timeutil"
)

// Service — прикладные операции над напоминаниями: создание с расчётом
// первого срабатывания, включение с перевзводом, «выполнено на сегодня».
// Пояс пользователя читается из профиля на каждую операцию: его могли
// сменить в настройках после создания напоминания.
type Service struct {
	store Store
	users user.Store
}

// NewService собирает сервис поверх хранилищ напоминаний и пользователей.
func NewService(store Store, users user.Store) *Service {
	return &Service{store: store, users: users}
}

// Add создаёт напоминание и взводит его на ближайшее срабатывание.
// Описание обрезается до MaxDescriptionLength; пустое — ошибка, подстановку
// заглушки делает вызывающий слой, если она ему нужна.
func (s *Service) Add(ctx context.Context, userID int64, tod timeutil.TimeOfDay, description string, interval, maxPerDay int) (*Reminder, error) {
	description = plan.TruncateRunes(strings.TrimSpace(description), MaxDescriptionLength)
	if description == "" {
		return nil, errors.New("reminders: empty description")
	}
	if !ValidInterval(interval) {
		return nil, errors.Errorf("reminders: interval %d out of range %d-%d", interval, MinInterval, MaxInterval)
	}
	if !ValidMaxPerDay(maxPerDay) {
		return nil, errors.Errorf("reminders: max attempts %d out of range %d-%d", maxPerDay, MinMaxPerDay, MaxMaxPerDay)
	}

	tz, err := s.userTimezone(ctx, userID)
	if err != nil {
		return nil, err
	}
	next, cycleDate := NextDailyFire(tz, tod, time.Now())

	r := &Reminder{
		UserID:      userID,
		TimeOfDay:   tod,
		Description: description,
		Interval:    interval,
		MaxPerDay:   maxPerDay,
		CycleDate:   cycleDate,
		NextFireAt:  &next,
		Enabled:     true,
	}
	created, err := s.store.Create(ctx, r)
	if err != nil {
		return nil, errors.Wrap(err, "reminders: create")
	}
	return created, nil
}

// List возвращает напоминания пользователя по возрастанию времени.
func (s *Service) List(ctx context.Context, userID int64) ([]Reminder, error) {
	return s.store.ForUser(ctx, userID)
}

// Get возвращает напоминание, только если оно принадлежит пользователю.
func (s *Service) Get(ctx context.Context, id, userID int64) (*Reminder, error) {
	r, err := s.store.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil || r.UserID != userID {
		return nil, nil
	}
	return r, nil
}

// Delete удаляет напоминание пользователя; false — не найдено.
func (s *Service) Delete(ctx context.Context, id, userID int64) (bool, error) {
	return s.store.Delete(ctx, id, userID)
}

// Toggle включает или выключает напоминание. При включении расписание
// перевзводится с нуля: свежий next_fire, новый цикл, счётчики обнулены —
// напоминание, пролежавшее выключенным неделю, не начинает «догонять».
func (s *Service) Toggle(ctx context.Context, id, userID int64, enabled bool) (bool, error) {
	ok, err := s.store.SetEnabled(ctx, id, userID, enabled)
	if err != nil || !ok {
		return ok, err
	}
	if !enabled {
		return true, nil
	}

	r, err := s.store.ByID(ctx, id)
	if err != nil {
		return true, err
	}
	if r == nil {
		return true, nil
	}
	tz, err := s.userTimezone(ctx, userID)
	if err != nil {
		return true, err
	}
	next, cycleDate := NextDailyFire(tz, r.TimeOfDay, time.Now())
	err = s.store.ResetCycle(ctx, id, CycleUpdate{NextFireAt: next, CycleDate: cycleDate})
	return true, err
}

// MarkDoneToday закрывает текущий суточный цикл: дальнейшие повторы сегодня
// не шлются, следующее срабатывание — завтра. CycleDate остаётся сегодняшней
// датой, чтобы завтрашний диспетчер увидел смену дня и сбросил done.
func (s *Service) MarkDoneToday(ctx context.Context, id, userID int64) (bool, error) {
	r, err := s.store.ByID(ctx, id)
	if err != nil {
		return false, err
	}
	if r == nil || r.UserID != userID {
		return false, nil
	}

	tz, err := s.userTimezone(ctx, userID)
	if err != nil {
		return false, err
	}
	now := time.Now()
	next, _ := NextDailyFire(tz, r.TimeOfDay, now)

	today := currentLocalDate(tz, now)
	err = s.store.ResetCycle(ctx, id, CycleUpdate{
		NextFireAt: next,
		CycleDate:  today,
		DoneToday:  true,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// Stats — агрегаты для WebApp.
func (s *Service) Stats(ctx context.Context, userID int64) (Stats, error) {
	return s.store.CountStats(ctx, userID)
}

func (s *Service) userTimezone(ctx context.Context, userID int64) (string, error) {
	u, err := s.users.ByID(ctx, userID)
	if err != nil {
		return "", errors.Wrap(err, "reminders: load user")
	}
	if u == nil {
		return "", errors.Errorf("reminders: user %d not found", userID)
	}
	return u.Timezone, nil
}

// currentLocalDate — сегодняшняя дата в поясе tzName; на нерезолвящемся
// поясе — в UTC, в тон NextDailyFire.
func currentLocalDate(tzName string, now time.Time) string {
	loc, err := timeutil.ParseLocation(tzName)
	if err != nil {
		loc = time.UTC
	}
	return timeutil.LocalDate(now, loc)
}
