package updates_test

import (
	"testing"

	"telegram-planner/internal/domain/plan"
	"telegram-planner/internal/domain/updates"
)

func TestParseCallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		data string
		want updates.Callback
		ok   bool
	}{
		{"task_done_42", updates.Callback{Kind: updates.KindTaskStatus, TaskID: 42, Status: plan.StatusDone}, true},
		{"task_partial_7", updates.Callback{Kind: updates.KindTaskStatus, TaskID: 7, Status: plan.StatusPartial}, true},
		{"task_failed_1", updates.Callback{Kind: updates.KindTaskStatus, TaskID: 1, Status: plan.StatusFailed}, true},
		{"task_comment_9", updates.Callback{Kind: updates.KindTaskComment, TaskID: 9}, true},
		{"day_done", updates.Callback{Kind: updates.KindDayDone}, true},
		{"plan_skip", updates.Callback{Kind: updates.KindPlanSkip}, true},
		{"crem_done_3", updates.Callback{Kind: updates.KindReminderDone, ReminderID: 3}, true},
		{"crem_on_5", updates.Callback{Kind: updates.KindReminderToggle, ReminderID: 5, Enable: true}, true},
		{"crem_off_5", updates.Callback{Kind: updates.KindReminderToggle, ReminderID: 5}, true},
		{"crem_del_8", updates.Callback{Kind: updates.KindReminderDelete, ReminderID: 8}, true},
		{"crem_add", updates.Callback{Kind: updates.KindReminderAdd}, true},
		{"tz_Europe/Moscow", updates.Callback{Kind: updates.KindTimezone, Timezone: "Europe/Moscow"}, true},
		{"tz_manual", updates.Callback{Kind: updates.KindTimezoneManual}, true},
		{"menu_main", updates.Callback{Kind: updates.KindMenu, MenuPath: "main"}, true},
		{"menu_stats", updates.Callback{Kind: updates.KindMenu, MenuPath: "stats"}, true},

		// Мусор и кнопки прежних версий.
		{"", updates.Callback{}, false},
		{"task_done_", updates.Callback{}, false},
		{"task_done_abc", updates.Callback{}, false},
		{"task_done_-1", updates.Callback{}, false},
		{"crem_done_0", updates.Callback{}, false},
		{"something_else", updates.Callback{}, false},
	}

	for _, tt := range tests {
		got, ok := updates.ParseCallback(tt.data)
		if ok != tt.ok {
			t.Errorf("ParseCallback(%q): ok = %v, ждали %v", tt.data, ok, tt.ok)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCallback(%q) = %+v, ждали %+v", tt.data, got, tt.want)
		}
	}
}
