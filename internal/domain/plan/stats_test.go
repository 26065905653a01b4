package plan_test

import (
	"testing"

	"telegram-planner/internal/domain/plan"
)

// mkPlan собирает план с задачами по списку статусов; nil — задача без ответа.
func mkPlan(date string, statuses ...*plan.Status) plan.Plan {
	p := plan.Plan{ID: 1, UserID: 1, Date: date}
	for i, s := range statuses {
		task := plan.Task{ID: int64(i + 1), Position: i, Text: "задача"}
		if s != nil {
			task.Status = &plan.TaskStatus{Status: *s}
		}
		p.Tasks = append(p.Tasks, task)
	}
	return p
}

func st(s plan.Status) *plan.Status { return &s }

func TestCompletion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		plan        plan.Plan
		wantDone    int
		wantTotal   int
		wantPercent int
	}{
		{
			name:        "done partial failed",
			plan:        mkPlan("2026-03-04", st(plan.StatusDone), st(plan.StatusPartial), st(plan.StatusFailed)),
			wantDone:    1,
			wantTotal:   3,
			wantPercent: 50,
		},
		{
			name:        "all done",
			plan:        mkPlan("2026-03-04", st(plan.StatusDone), st(plan.StatusDone)),
			wantDone:    2,
			wantTotal:   2,
			wantPercent: 100,
		},
		{
			name:        "unanswered counts as zero",
			plan:        mkPlan("2026-03-04", st(plan.StatusDone), nil),
			wantDone:    1,
			wantTotal:   2,
			wantPercent: 50,
		},
		{
			name:        "empty plan",
			plan:        mkPlan("2026-03-04"),
			wantDone:    0,
			wantTotal:   0,
			wantPercent: 0,
		},
		{
			name:        "two partial round to half",
			plan:        mkPlan("2026-03-04", st(plan.StatusPartial), st(plan.StatusPartial)),
			wantDone:    1,
			wantTotal:   2,
			wantPercent: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := tt.plan.Completion()
			if c.Done != tt.wantDone || c.Total != tt.wantTotal || c.Percent != tt.wantPercent {
				t.Errorf("Completion() = %+v, want done=%d total=%d percent=%d",
					c, tt.wantDone, tt.wantTotal, tt.wantPercent)
			}
		})
	}
}

func TestAllAnswered(t *testing.T) {
	t.Parallel()

	full := mkPlan("2026-03-04", st(plan.StatusDone), st(plan.StatusFailed))
	if !full.AllAnswered() {
		t.Error("plan with all statuses should be answered")
	}
	partial := mkPlan("2026-03-04", st(plan.StatusDone), nil)
	if partial.AllAnswered() {
		t.Error("plan with missing status should not be answered")
	}
	empty := mkPlan("2026-03-04")
	if !empty.AllAnswered() {
		t.Error("empty plan has nothing to answer")
	}
}

func TestBuildSummary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		plans      []plan.Plan
		today      string
		wantTotal  int
		wantAvg    int
		wantStreak int
	}{
		{
			name:  "no plans",
			plans: nil,
			today: "2026-03-04",
		},
		{
			name: "streak of two broken by half day",
			plans: []plan.Plan{
				mkPlan("2026-03-04", st(plan.StatusDone)),
				mkPlan("2026-03-03", st(plan.StatusDone), st(plan.StatusDone)),
				mkPlan("2026-03-02", st(plan.StatusDone), st(plan.StatusFailed)),
			},
			today:      "2026-03-04",
			wantTotal:  3,
			wantAvg:    83, // (100+100+50)/3
			wantStreak: 2,
		},
		{
			name: "no plan today means no streak",
			plans: []plan.Plan{
				mkPlan("2026-03-03", st(plan.StatusDone)),
			},
			today:      "2026-03-04",
			wantTotal:  1,
			wantAvg:    100,
			wantStreak: 0,
		},
		{
			name: "gap day stops the walk",
			plans: []plan.Plan{
				mkPlan("2026-03-04", st(plan.StatusDone)),
				mkPlan("2026-03-02", st(plan.StatusDone)),
			},
			today:      "2026-03-04",
			wantTotal:  2,
			wantAvg:    100,
			wantStreak: 1,
		},
		{
			name: "empty plan breaks streak",
			plans: []plan.Plan{
				mkPlan("2026-03-04", st(plan.StatusDone)),
				mkPlan("2026-03-03"),
			},
			today:      "2026-03-04",
			wantTotal:  2,
			wantAvg:    50,
			wantStreak: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := plan.BuildSummary(tt.plans, tt.today)
			if s.TotalPlans != tt.wantTotal || s.AveragePercent != tt.wantAvg || s.CurrentStreak != tt.wantStreak {
				t.Errorf("BuildSummary() = %+v, want total=%d avg=%d streak=%d",
					s, tt.wantTotal, tt.wantAvg, tt.wantStreak)
			}
		})
	}
}

func TestBuildHistoryTruncatedPercent(t *testing.T) {
	t.Parallel()

	// 1 done + 1 partial: в истории «1/2 (50%)», хотя точный процент дня 75.
	p := mkPlan("2026-01-15", st(plan.StatusDone), st(plan.StatusPartial))
	rows := plan.BuildHistory([]plan.Plan{p})
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	row := rows[0]
	if row.Date != "2026-01-15" || row.Done != 1 || row.Total != 2 || row.Percent != 50 {
		t.Errorf("row = %+v, want date=2026-01-15 done=1 total=2 percent=50", row)
	}
	if got := p.Completion().Percent; got != 75 {
		t.Errorf("Completion().Percent = %d, want 75", got)
	}
}
