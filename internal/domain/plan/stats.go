package plan

import (
	"math"
	"time"

	"telegram-planner/internal/infra/timeutil"
)

// Summary — сводка по всем планам пользователя для /stats и WebApp.
type Summary struct {
	TotalPlans     int `json:"total_plans"`
	AveragePercent int `json:"avg_percent"`
	CurrentStreak  int `json:"current_streak"`
}

// HistoryRow — строка месячной истории. Percent здесь считается от уже
// усечённого Done, поэтому может отличаться от Plan.Completion().Percent
// на днях с частично выполненными задачами.
type HistoryRow struct {
	Date    string `json:"date"`
	Done    int    `json:"done"`
	Total   int    `json:"total"`
	Percent int    `json:"percent"`
}

// BuildSummary агрегирует планы: средний процент по всем планам и текущий
// стрик — сколько дней подряд, начиная с today и назад, закрыто на 100%.
// Стрик рвётся на дне без плана, на пустом плане и на любом проценте ниже ста.
func BuildSummary(plans []Plan, today string) Summary {
	if len(plans) == 0 {
		return Summary{}
	}
	var sum float64
	byDate := make(map[string]*Plan, len(plans))
	for i := range plans {
		sum += float64(plans[i].Completion().Percent)
		byDate[plans[i].Date] = &plans[i]
	}

	streak := 0
	day, err := time.Parse(timeutil.DateLayout, today)
	if err == nil {
		for {
			p, ok := byDate[day.Format(timeutil.DateLayout)]
			if !ok || len(p.Tasks) == 0 || p.Completion().Percent < 100 {
				break
			}
			streak++
			day = day.AddDate(0, 0, -1)
		}
	}

	return Summary{
		TotalPlans:     len(plans),
		AveragePercent: int(math.Round(sum / float64(len(plans)))),
		CurrentStreak:  streak,
	}
}

// BuildHistory превращает планы месяца в строки истории, сохраняя порядок
// (хранилище отдаёт по убыванию даты).
func BuildHistory(plans []Plan) []HistoryRow {
	rows := make([]HistoryRow, 0, len(plans))
	for i := range plans {
		c := plans[i].Completion()
		pct := 0
		if c.Total > 0 {
			pct = int(math.Round(100 * float64(c.Done) / float64(c.Total)))
		}
		rows = append(rows, HistoryRow{
			Date:    plans[i].Date,
			Done:    c.Done,
			Total:   c.Total,
			Percent: pct,
		})
	}
	return rows
}
