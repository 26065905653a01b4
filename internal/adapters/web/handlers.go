// Обработчики JSON API мини-приложения. Пользователь уже аутентифицирован
// middleware-ом auth и лежит в контексте запроса.

package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"telegram-planner/internal/domain/notify"
	"telegram-planner/internal/domain/plan"
	"telegram-planner/internal/domain/reminders"
	"telegram-planner/internal/domain/user"
	"telegram-planner/internal/infra/logger"
	"telegram-planner/internal/infra/timeutil"
)

// DTO ответов. Доменные структуры наружу не отдаются: у API свой стабильный
// словарь полей.

type taskDTO struct {
	ID       int64   `json:"id"`
	Position int     `json:"position"`
	Text     string  `json:"text"`
	Status   *string `json:"status,omitempty"`
	Comment  *string `json:"comment,omitempty"`
}

type completionDTO struct {
	Done    int `json:"done"`
	Total   int `json:"total"`
	Percent int `json:"percent"`
}

type planDTO struct {
	Date       string        `json:"date"`
	Tasks      []taskDTO     `json:"tasks"`
	Completion completionDTO `json:"completion"`
}

type settingsDTO struct {
	Timezone            string `json:"timezone"`
	MorningTime         string `json:"morning_time"`
	EveningTime         string `json:"evening_time"`
	ReminderInterval    int    `json:"reminder_interval_minutes"`
	ReminderMaxAttempts int    `json:"reminder_max_attempts"`
}

type reminderDTO struct {
	ID          int64      `json:"id"`
	Time        string     `json:"time"`
	Description string     `json:"description"`
	Interval    int        `json:"interval_minutes"`
	MaxPerDay   int        `json:"max_per_day"`
	Enabled     bool       `json:"enabled"`
	SentToday   int        `json:"sent_today"`
	DoneToday   bool       `json:"done_today"`
	NextFireAt  *time.Time `json:"next_fire_at,omitempty"`
}

func toPlanDTO(date string, p *plan.Plan) planDTO {
	out := planDTO{Date: date, Tasks: []taskDTO{}}
	if p == nil {
		return out
	}
	out.Date = p.Date
	for _, t := range p.Tasks {
		dto := taskDTO{ID: t.ID, Position: t.Position, Text: t.Text}
		if t.Status != nil {
			status := string(t.Status.Status)
			dto.Status = &status
			if t.Status.Comment != "" {
				comment := t.Status.Comment
				dto.Comment = &comment
			}
		}
		out.Tasks = append(out.Tasks, dto)
	}
	c := p.Completion()
	out.Completion = completionDTO{Done: c.Done, Total: c.Total, Percent: c.Percent}
	return out
}

func toReminderDTO(r reminders.Reminder) reminderDTO {
	return reminderDTO{
		ID:          r.ID,
		Time:        r.TimeOfDay.String(),
		Description: r.Description,
		Interval:    r.Interval,
		MaxPerDay:   r.MaxPerDay,
		Enabled:     r.Enabled,
		SentToday:   r.SentToday,
		DoneToday:   r.DoneToday,
		NextFireAt:  r.NextFireAt,
	}
}

// localDate — сегодняшняя дата в поясе пользователя.
func (s *Server) localDate(u *user.User) string {
	return notify.LocalDateFor(u, s.clock())
}

// internalError — общий ответ на сбой хранилища.
func internalError(w http.ResponseWriter, err error) {
	logger.Errorf("Веб: %v", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) handleToday(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	date := s.localDate(u)
	p, err := s.plans.ByDate(r.Context(), u.ID, date)
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlanDTO(date, p))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	plans, err := s.plans.All(r.Context(), u.ID)
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan.BuildSummary(plans, s.localDate(u)))
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	writeJSON(w, http.StatusOK, settingsDTO{
		Timezone:            u.Timezone,
		MorningTime:         u.MorningTime.String(),
		EveningTime:         u.EveningTime.String(),
		ReminderInterval:    u.ReminderInterval,
		ReminderMaxAttempts: u.ReminderMaxAttempts,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	month, err := time.Parse("2006-01", r.URL.Query().Get("month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
		return
	}
	plans, err := s.plans.ForMonth(r.Context(), u.ID, month.Year(), int(month.Month()))
	if err != nil {
		internalError(w, err)
		return
	}
	rows := plan.BuildHistory(plans)
	if rows == nil {
		rows = []plan.HistoryRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleReminderList(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	list, err := s.rems.List(r.Context(), u.ID)
	if err != nil {
		internalError(w, err)
		return
	}
	out := make([]reminderDTO, 0, len(list))
	for _, rem := range list {
		out = append(out, toReminderDTO(rem))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReminderStats(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	stats, err := s.rems.Stats(r.Context(), u.ID)
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handlePlanSave заменяет план на сегодня присланным списком задач.
func (s *Server) handlePlanSave(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	var req struct {
		Tasks []string `json:"tasks"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json body")
		return
	}

	tasks := make([]string, 0, len(req.Tasks))
	for _, t := range req.Tasks {
		if lines := plan.ParseLines(t); len(lines) > 0 {
			tasks = append(tasks, lines...)
		}
	}
	switch {
	case len(tasks) == 0:
		writeError(w, http.StatusBadRequest, "план не может быть пустым")
		return
	case len(tasks) > plan.MaxTasks:
		writeError(w, http.StatusBadRequest, "слишком много задач")
		return
	}

	date := s.localDate(u)
	saved, err := s.plans.Save(r.Context(), u.ID, date, tasks)
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlanDTO(date, saved))
}

// handleTaskStatus ставит отметку и/или комментарий задаче пользователя.
func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	taskID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || taskID <= 0 {
		writeError(w, http.StatusBadRequest, "bad task id")
		return
	}
	var req struct {
		Status  *string `json:"status"`
		Comment *string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json body")
		return
	}
	if req.Status == nil && req.Comment == nil {
		writeError(w, http.StatusBadRequest, "status or comment required")
		return
	}

	t, err := s.plans.TaskForUser(r.Context(), taskID, u.ID)
	if err != nil {
		internalError(w, err)
		return
	}
	if t == nil {
		writeError(w, http.StatusNotFound, "задача не найдена")
		return
	}

	if req.Status != nil {
		status := plan.Status(*req.Status)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "status must be done, partial or failed")
			return
		}
		if err := s.plans.SetTaskStatus(r.Context(), t.ID, status, req.Comment); err != nil {
			internalError(w, err)
			return
		}
		writeOK(w)
		return
	}
	if err := s.plans.SetTaskComment(r.Context(), t.ID, plan.TruncateRunes(*req.Comment, plan.MaxTaskLength)); err != nil {
		internalError(w, err)
		return
	}
	writeOK(w)
}

// handleSettingsUpdate принимает любое подмножество настроек.
func (s *Server) handleSettingsUpdate(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	var req struct {
		Timezone            *string `json:"timezone"`
		MorningTime         *string `json:"morning_time"`
		EveningTime         *string `json:"evening_time"`
		ReminderInterval    *int    `json:"reminder_interval_minutes"`
		ReminderMaxAttempts *int    `json:"reminder_max_attempts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json body")
		return
	}
	ctx := r.Context()

	if req.Timezone != nil {
		if _, err := timeutil.ParseLocation(*req.Timezone); err != nil {
			writeError(w, http.StatusBadRequest, "неизвестный часовой пояс")
			return
		}
		if err := s.users.UpdateTimezone(ctx, u.ID, *req.Timezone); err != nil {
			internalError(w, err)
			return
		}
	}
	if req.MorningTime != nil {
		tod, err := timeutil.ParseTimeOfDay(*req.MorningTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "morning_time must be HH:MM")
			return
		}
		if err := s.users.UpdateMorningTime(ctx, u.ID, tod); err != nil {
			internalError(w, err)
			return
		}
	}
	if req.EveningTime != nil {
		tod, err := timeutil.ParseTimeOfDay(*req.EveningTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "evening_time must be HH:MM")
			return
		}
		if err := s.users.UpdateEveningTime(ctx, u.ID, tod); err != nil {
			internalError(w, err)
			return
		}
	}
	if req.ReminderInterval != nil && !user.ValidReminderInterval(*req.ReminderInterval) {
		writeError(w, http.StatusBadRequest, "reminder_interval_minutes out of range")
		return
	}
	if req.ReminderMaxAttempts != nil && !user.ValidReminderMaxAttempts(*req.ReminderMaxAttempts) {
		writeError(w, http.StatusBadRequest, "reminder_max_attempts out of range")
		return
	}
	if req.ReminderInterval != nil || req.ReminderMaxAttempts != nil {
		if err := s.users.UpdateReminderSettings(ctx, u.ID, req.ReminderInterval, req.ReminderMaxAttempts); err != nil {
			internalError(w, err)
			return
		}
	}

	fresh, err := s.users.ByID(ctx, u.ID)
	if err != nil || fresh == nil {
		fresh = u
	}
	writeJSON(w, http.StatusOK, settingsDTO{
		Timezone:            fresh.Timezone,
		MorningTime:         fresh.MorningTime.String(),
		EveningTime:         fresh.EveningTime.String(),
		ReminderInterval:    fresh.ReminderInterval,
		ReminderMaxAttempts: fresh.ReminderMaxAttempts,
	})
}

// reminderRequest — тело POST /reminders.
type reminderRequest struct {
	Time        string `json:"time"`
	Description string `json:"description"`
	Interval    int    `json:"interval_minutes"`
	MaxPerDay   int    `json:"max_per_day"`
}

func (s *Server) handleReminderCreate(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	var req reminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json body")
		return
	}
	tod, err := timeutil.ParseTimeOfDay(req.Time)
	if err != nil {
		writeError(w, http.StatusBadRequest, "time must be HH:MM")
		return
	}
	if req.Interval == 0 {
		req.Interval = reminders.DefaultInterval
	}
	if req.MaxPerDay == 0 {
		req.MaxPerDay = reminders.DefaultMaxPerDay
	}
	switch {
	case strings.TrimSpace(req.Description) == "":
		writeError(w, http.StatusBadRequest, "описание не может быть пустым")
		return
	case !reminders.ValidInterval(req.Interval):
		writeError(w, http.StatusBadRequest, "interval_minutes out of range")
		return
	case !reminders.ValidMaxPerDay(req.MaxPerDay):
		writeError(w, http.StatusBadRequest, "max_per_day out of range")
		return
	}

	created, err := s.rems.Add(r.Context(), u.ID, tod, req.Description, req.Interval, req.MaxPerDay)
	if err != nil {
		internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReminderDTO(*created))
}

// handleReminderUpdate включает/выключает напоминание.
func (s *Server) handleReminderUpdate(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "bad reminder id")
		return
	}
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled required")
		return
	}
	ok, err := s.rems.Toggle(r.Context(), id, u.ID, *req.Enabled)
	if err != nil {
		internalError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "напоминание не найдено")
		return
	}
	writeOK(w)
}

func (s *Server) handleReminderDelete(w http.ResponseWriter, r *http.Request) {
	u := requestUser(r)
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "bad reminder id")
		return
	}
	ok, err := s.rems.Delete(r.Context(), id, u.ID)
	if err != nil {
		internalError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "напоминание не найдено")
		return
	}
	writeOK(w)
}
