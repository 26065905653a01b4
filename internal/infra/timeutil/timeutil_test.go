package timeutil_test

import (
	"testing"
	"time"

	"telegram-planner/internal/infra/timeutil"
)

func TestParseTimeOfDay(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		input   string
		want    timeutil.TimeOfDay
		wantErr bool
	}{
		{name: "canonical", input: "07:00", want: timeutil.TimeOfDay{Hour: 7, Minute: 0}},
		{name: "single digit hour", input: "7:30", want: timeutil.TimeOfDay{Hour: 7, Minute: 30}},
		{name: "late evening", input: "23:59", want: timeutil.TimeOfDay{Hour: 23, Minute: 59}},
		{name: "midnight", input: "00:00", want: timeutil.TimeOfDay{}},
		{name: "surrounding spaces", input: "  21:15 ", want: timeutil.TimeOfDay{Hour: 21, Minute: 15}},
		{name: "hour out of range", input: "24:00", wantErr: true},
		{name: "minute out of range", input: "07:60", wantErr: true},
		{name: "no colon", input: "0700", wantErr: true},
		{name: "single digit minute", input: "07:0", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "garbage", input: "ab:cd", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := timeutil.ParseTimeOfDay(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseTimeOfDay(%q) = %v, want error", tc.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTimeOfDay(%q) returned error: %v", tc.input, err)
			}
			if got != tc.want {
				t.Fatalf("ParseTimeOfDay(%q) = %#v, want %#v", tc.input, got, tc.want)
			}
		})
	}
}

func TestTimeOfDayString(t *testing.T) {
	t.Parallel()

	tod := timeutil.TimeOfDay{Hour: 7, Minute: 5}
	if got := tod.String(); got != "07:05" {
		t.Fatalf("String() = %q, want %q", got, "07:05")
	}
	parsed, err := timeutil.ParseTimeOfDay(tod.String())
	if err != nil {
		t.Fatalf("ParseTimeOfDay(String()) returned error: %v", err)
	}
	if parsed != tod {
		t.Fatalf("round-trip mismatch: %#v != %#v", parsed, tod)
	}
}

func TestWindowDelta(t *testing.T) {
	t.Parallel()

	mustLoc := func(name string) *time.Location {
		loc, err := time.LoadLocation(name)
		if err != nil {
			t.Fatalf("LoadLocation(%q): %v", name, err)
		}
		return loc
	}
	berlin := mustLoc("Europe/Berlin")

	cases := []struct {
		name string
		now  time.Time
		tod  timeutil.TimeOfDay
		want int
	}{
		{
			name: "three minutes late",
			now:  time.Date(2026, 3, 4, 7, 3, 11, 0, berlin),
			tod:  timeutil.TimeOfDay{Hour: 7, Minute: 0},
			want: 3,
		},
		{
			name: "exactly on target",
			now:  time.Date(2026, 3, 4, 21, 0, 59, 0, berlin),
			tod:  timeutil.TimeOfDay{Hour: 21, Minute: 0},
			want: 0,
		},
		{
			name: "one minute before wraps to 1439",
			now:  time.Date(2026, 3, 4, 6, 59, 0, 0, berlin),
			tod:  timeutil.TimeOfDay{Hour: 7, Minute: 0},
			want: 1439,
		},
		{
			name: "midnight wrap",
			now:  time.Date(2026, 3, 5, 0, 2, 0, 0, time.UTC),
			tod:  timeutil.TimeOfDay{Hour: 23, Minute: 58},
			want: 4,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := timeutil.WindowDelta(tc.now, tc.tod); got != tc.want {
				t.Fatalf("WindowDelta(%v, %v) = %d, want %d", tc.now, tc.tod, got, tc.want)
			}
		})
	}
}

func TestInWindow(t *testing.T) {
	t.Parallel()

	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}

	cases := []struct {
		name   string
		now    time.Time
		loc    *time.Location
		tod    timeutil.TimeOfDay
		window int
		want   bool
	}{
		{
			name:   "inside window",
			now:    time.Date(2026, 3, 4, 6, 3, 11, 0, time.UTC), // 07:03 CET
			loc:    berlin,
			tod:    timeutil.TimeOfDay{Hour: 7, Minute: 0},
			window: 10,
			want:   true,
		},
		{
			name:   "past window",
			now:    time.Date(2026, 3, 4, 6, 15, 0, 0, time.UTC),
			loc:    berlin,
			tod:    timeutil.TimeOfDay{Hour: 7, Minute: 0},
			window: 10,
			want:   false,
		},
		{
			// 29.03.2026: 02:00 -> 03:00, локального 02:30 нет. Окно
			// отсчитывается от 03:00 CEST (01:00Z).
			name:   "gap day fires after transition",
			now:    time.Date(2026, 3, 29, 1, 4, 0, 0, time.UTC), // 03:04 CEST
			loc:    berlin,
			tod:    timeutil.TimeOfDay{Hour: 2, Minute: 30},
			window: 10,
			want:   true,
		},
		{
			name:   "gap day window closes",
			now:    time.Date(2026, 3, 29, 1, 11, 0, 0, time.UTC), // 03:11 CEST
			loc:    berlin,
			tod:    timeutil.TimeOfDay{Hour: 2, Minute: 30},
			window: 10,
			want:   false,
		},
		{
			name:   "utc midnight",
			now:    time.Date(2026, 3, 4, 0, 2, 0, 0, time.UTC),
			loc:    time.UTC,
			tod:    timeutil.TimeOfDay{Hour: 0, Minute: 0},
			window: 10,
			want:   true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := timeutil.InWindow(tc.now, tc.loc, tc.tod, tc.window); got != tc.want {
				t.Fatalf("InWindow(%v, %v, %d) = %v, want %v", tc.now, tc.tod, tc.window, got, tc.want)
			}
		})
	}
}

func TestLocalDate(t *testing.T) {
	t.Parallel()

	tashkent, err := time.LoadLocation("Asia/Tashkent")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}

	// 21:30Z 4 марта — в Ташкенте (+5) уже 5 марта.
	instant := time.Date(2026, 3, 4, 21, 30, 0, 0, time.UTC)
	if got := timeutil.LocalDate(instant, tashkent); got != "2026-03-05" {
		t.Fatalf("LocalDate() = %q, want %q", got, "2026-03-05")
	}
	if got := timeutil.LocalDate(instant, time.UTC); got != "2026-03-04" {
		t.Fatalf("LocalDate() = %q, want %q", got, "2026-03-04")
	}
}

func TestNextLocalTimeAfter(t *testing.T) {
	t.Parallel()

	mustLoc := func(name string) *time.Location {
		loc, err := time.LoadLocation(name)
		if err != nil {
			t.Fatalf("LoadLocation(%q): %v", name, err)
		}
		return loc
	}
	berlin := mustLoc("Europe/Berlin")
	tashkent := mustLoc("Asia/Tashkent")

	cases := []struct {
		name  string
		loc   *time.Location
		tod   timeutil.TimeOfDay
		after time.Time
		want  time.Time
	}{
		{
			name:  "today not yet reached",
			loc:   berlin,
			tod:   timeutil.TimeOfDay{Hour: 7, Minute: 0},
			after: time.Date(2026, 3, 4, 4, 0, 0, 0, time.UTC), // 05:00 CET
			want:  time.Date(2026, 3, 4, 6, 0, 0, 0, time.UTC), // 07:00 CET
		},
		{
			name:  "today already passed rolls to tomorrow",
			loc:   berlin,
			tod:   timeutil.TimeOfDay{Hour: 7, Minute: 0},
			after: time.Date(2026, 3, 4, 6, 3, 11, 0, time.UTC), // 07:03 CET
			want:  time.Date(2026, 3, 5, 6, 0, 0, 0, time.UTC),
		},
		{
			name:  "fixed offset zone",
			loc:   tashkent,
			tod:   timeutil.TimeOfDay{Hour: 14, Minute: 30},
			after: time.Date(2026, 3, 4, 9, 35, 0, 0, time.UTC), // 14:35 местного
			want:  time.Date(2026, 3, 5, 9, 30, 0, 0, time.UTC),
		},
		{
			name:  "utc midnight",
			loc:   time.UTC,
			tod:   timeutil.TimeOfDay{Hour: 0, Minute: 0},
			after: time.Date(2026, 3, 4, 23, 59, 30, 0, time.UTC),
			want:  time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
		},
		{
			// 29.03.2026 в Берлине часы переводят 02:00 -> 03:00; 02:30 не существует.
			// Ожидаем первый момент после перехода: 03:00 CEST = 01:00Z.
			name:  "spring forward gap",
			loc:   berlin,
			tod:   timeutil.TimeOfDay{Hour: 2, Minute: 30},
			after: time.Date(2026, 3, 28, 12, 0, 0, 0, time.UTC),
			want:  time.Date(2026, 3, 29, 1, 0, 0, 0, time.UTC),
		},
		{
			// 25.10.2026 в Берлине 02:30 существует дважды; берём раннее
			// представление: 02:30 CEST (+2) = 00:30Z.
			name:  "autumn fold picks earlier",
			loc:   berlin,
			tod:   timeutil.TimeOfDay{Hour: 2, Minute: 30},
			after: time.Date(2026, 10, 24, 12, 0, 0, 0, time.UTC),
			want:  time.Date(2026, 10, 25, 0, 30, 0, 0, time.UTC),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := timeutil.NextLocalTimeAfter(tc.loc, tc.tod, tc.after)
			if !got.Equal(tc.want) {
				t.Fatalf("NextLocalTimeAfter() = %v, want %v", got.UTC(), tc.want)
			}
		})
	}
}

// Закон повторного применения: вне окрестности DST два последовательных
// срабатывания отстоят ровно на 24 часа.
func TestNextLocalTimeAfterRoundTrip(t *testing.T) {
	t.Parallel()

	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	tod := timeutil.TimeOfDay{Hour: 9, Minute: 15}
	after := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

	first := timeutil.NextLocalTimeAfter(berlin, tod, after)
	second := timeutil.NextLocalTimeAfter(berlin, tod, first)
	if diff := second.Sub(first); diff != 24*time.Hour {
		t.Fatalf("consecutive fires %v apart, want 24h", diff)
	}
}

func TestParseLocation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "iana zone", input: "Europe/Berlin"},
		{name: "utc", input: "UTC"},
		{name: "offset with prefix", input: "UTC+5"},
		{name: "bare offset", input: "+03:00"},
		{name: "unknown zone", input: "Mars/Olympus", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			loc, err := timeutil.ParseLocation(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseLocation(%q) = %v, want error", tc.input, loc)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLocation(%q) returned error: %v", tc.input, err)
			}
		})
	}
}

func TestIsValidScheduleEntry(t *testing.T) {
	t.Parallel()

	cases := []struct {
		input string
		want  bool
	}{
		{input: "07:00", want: true},
		{input: "23:59", want: true},
		{input: "24:00", want: false},
		{input: "7:00", want: false},
		{input: "07:60", want: false},
		{input: "0700", want: false},
		{input: "", want: false},
	}

	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			t.Parallel()
			if got := timeutil.IsValidScheduleEntry(tc.input); got != tc.want {
				t.Fatalf("IsValidScheduleEntry(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}
