// Пакет timeutil содержит служебные функции для работы со временем:
// парсинг таймзон и времени суток, гражданская дата в заданной зоне,
// вычисление следующего срабатывания по локальному времени пользователя
// с детерминированной обработкой переходов DST (gap/fold).
package timeutil

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout — формат локальной (гражданской) даты, используемый во всех
// персистентных записях и полезных нагрузках задач.
const DateLayout = "2006-01-02"

const minutesPerDay = 24 * 60

// TimeOfDay — время суток без даты и зоны (настройки утро/вечер, напоминания).
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay разбирает строку вида "HH:MM" или "H:MM" в TimeOfDay.
// Формат намеренно терпим к одной цифре часа: так вводят время в чате.
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	v := strings.TrimSpace(value)
	parts := strings.Split(v, ":")
	if len(parts) != 2 {
		return TimeOfDay{}, fmt.Errorf("invalid time %q: expected HH:MM", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time %q: expected HH:MM", value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || len(parts[1]) != 2 {
		return TimeOfDay{}, fmt.Errorf("invalid time %q: expected HH:MM", value)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid time %q: hour 0-23, minute 0-59", value)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// String возвращает каноническую форму "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// MinutesOfDay возвращает количество минут от полуночи.
func (t TimeOfDay) MinutesOfDay() int {
	return t.Hour*60 + t.Minute
}

// LocalDate возвращает гражданскую дату момента t в зоне loc в формате DateLayout.
func LocalDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}

// WindowDelta возвращает (минуты(now) − минуты(tod)) mod 1440 для локального
// времени now. Диспетчер считает цель «в окне», когда 0 ≤ delta < W: это
// покрывает пропущенные тики без повторной отправки (дедупликацию даёт журнал).
func WindowDelta(nowLocal time.Time, tod TimeOfDay) int {
	delta := nowLocal.Hour()*60 + nowLocal.Minute() - tod.MinutesOfDay()
	if delta < 0 {
		delta += minutesPerDay
	}
	return delta
}

// InWindow сообщает, попадает ли момент now в окно отправки [tod, tod+window)
// по настенным часам зоны loc. Дополнительно покрывается день перевода часов:
// если tod попал в несуществующий интервал (gap), окно отсчитывается от
// первого момента после перехода — день перевода не теряет свой промпт.
func InWindow(now time.Time, loc *time.Location, tod TimeOfDay, windowMin int) bool {
	local := now.In(loc)
	if WindowDelta(local, tod) < windowMin {
		return true
	}
	year, month, day := local.Date()
	target := atTimeOfDay(year, month, day, tod, loc)
	if target.Hour() == tod.Hour && target.Minute() == tod.Minute {
		// Время существует — обычная арифметика выше уже всё решила.
		return false
	}
	diff := now.Sub(target)
	return diff >= 0 && diff < time.Duration(windowMin)*time.Minute
}

// NextLocalTimeAfter возвращает самый ранний момент строго после after, чьё
// локальное представление в loc равно tod. Если время tod сегодня уже прошло
// (или совпадает с after), берётся следующий локальный день.
//
// Переходы DST обрабатываются детерминированно:
//   - gap (локальное время не существует): берётся первый момент после перехода;
//   - fold (локальное время существует дважды): берётся раннее представление.
//
// Результат возвращается в UTC: все персистентные моменты хранятся в UTC.
func NextLocalTimeAfter(loc *time.Location, tod TimeOfDay, after time.Time) time.Time {
	local := after.In(loc)
	year, month, day := local.Date()

	candidate := atTimeOfDay(year, month, day, tod, loc)
	if !candidate.After(after) {
		candidate = atTimeOfDay(year, month, day+1, tod, loc)
	}
	return candidate.UTC()
}

// atTimeOfDay материализует момент «tod в этот гражданский день зоны loc».
// time.Date нормализует несуществующие локальные времена, поэтому несовпадение
// часа/минуты после конструирования означает попадание в gap.
func atTimeOfDay(year int, month time.Month, day int, tod TimeOfDay, loc *time.Location) time.Time {
	t := time.Date(year, month, day, tod.Hour, tod.Minute, 0, 0, loc)
	if t.Hour() != tod.Hour || t.Minute() != tod.Minute {
		return gapEnd(t, year, month, day, tod, loc)
	}
	// Проверка на fold: если сдвиг назад на величину типового перевода часов
	// даёт то же самое настенное время, момент неоднозначен — берём ранний.
	for _, d := range []time.Duration{time.Hour, 30 * time.Minute} {
		earlier := t.Add(-d)
		if earlier.Hour() == tod.Hour && earlier.Minute() == tod.Minute && earlier.Day() == t.Day() {
			return earlier
		}
	}
	return t
}

// gapEnd находит первый момент после перехода, поглотившего запрошенное время.
// normalized — результат time.Date, уже сдвинутый за переход. Величина сдвига
// восстанавливается по разнице настенных времён, а сам момент перехода ищется
// двоичным поиском по смене смещения зоны.
func gapEnd(normalized time.Time, year int, month time.Month, day int, tod TimeOfDay, loc *time.Location) time.Time {
	reqWall := time.Date(year, month, day, tod.Hour, tod.Minute, 0, 0, time.UTC)
	gotWall := time.Date(normalized.Year(), normalized.Month(), normalized.Day(),
		normalized.Hour(), normalized.Minute(), 0, 0, time.UTC)
	shift := gotWall.Sub(reqWall)
	if shift <= 0 {
		// Нормализация не вперёд — нетипично; возвращаем как есть.
		return normalized
	}

	_, offsetAfter := normalized.Zone()
	lo := normalized.Add(-shift).Unix()
	hi := normalized.Unix()
	// Инвариант: offset(lo) != offsetAfter, offset(hi) == offsetAfter.
	for lo+1 < hi {
		mid := (lo + hi) / 2
		if _, off := time.Unix(mid, 0).In(loc).Zone(); off == offsetAfter {
			hi = mid
		} else {
			lo = mid
		}
	}
	return time.Unix(hi, 0).In(loc)
}

// ParseLocation разбирает либо IANA‑таймзону (например, "Europe/Moscow"),
// либо UTC‑смещение (например, "+03:00", "-0700", "UTC+3", "GMT-04:30").
// Возвращает *time.Location или ошибку.
func ParseLocation(value string) (*time.Location, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil, errors.New("empty timezone")
	}
	// Try IANA first.
	if loc, err := time.LoadLocation(v); err == nil {
		return loc, nil
	}
	// Try to parse UTC offset forms.
	if loc, ok := ParseUTCOffsetToLocation(v); ok {
		return loc, nil
	}
	return nil, fmt.Errorf("invalid timezone %q: not an IANA name or UTC offset", value)
}

// ParseUTCOffsetToLocation парсит строки вида "+03:00", "-0700", "UTC+3", "GMT-04:30" или "Z".
// Возвращает фиксированную таймзону и ok=true при успешном разборе.
func ParseUTCOffsetToLocation(value string) (*time.Location, bool) {
	v := strings.TrimSpace(strings.ToUpper(value))
	if v == "Z" || v == "UTC" || v == "GMT" {
		return time.FixedZone("UTC+00:00", 0), true
	}
	// Normalize optional UTC/GMT prefix
	v = strings.TrimPrefix(v, "UTC")
	v = strings.TrimPrefix(v, "GMT")
	v = strings.TrimSpace(v)
	// Patterns: +HH, -HH, +HHMM, -HHMM, +HH:MM, -HH:MM
	re := regexp.MustCompile(`^([+-])\s*(\d{1,2})(?::?(\d{2}))?$`)
	m := re.FindStringSubmatch(v)
	if m == nil {
		return nil, false
	}
	sign := 1
	if m[1] == "-" {
		sign = -1
	}
	hourStr := m[2]
	minStr := m[3]
	hours, err := strconv.Atoi(hourStr)
	if err != nil {
		return nil, false
	}
	mins := 0
	if minStr != "" {
		var err2 error
		mins, err2 = strconv.Atoi(minStr)
		if err2 != nil {
			return nil, false
		}
	}
	if hours < 0 || hours > 14 || mins < 0 || mins > 59 {
		return nil, false
	}
	const (
		secInHour = 60 * 60
		secInMin  = 60
	)
	offset := sign * ((hours * secInHour) + (mins * secInMin))
	name := fmt.Sprintf("UTC%+03d:%02d", sign*hours, mins)
	return time.FixedZone(name, offset), true
}

// IsValidScheduleEntry проверяет формат времени HH:MM и диапазоны часов/минут.
// Это строгая синтаксическая проверка для внешних API; ввод в чате идёт через
// более терпимый ParseTimeOfDay.
func IsValidScheduleEntry(value string) bool {
	if len(value) != 5 || value[2] != ':' {
		return false
	}
	hour, err := strconv.Atoi(value[:2])
	if err != nil {
		return false
	}
	minute, err := strconv.Atoi(value[3:])
	if err != nil {
		return false
	}
	if hour < 0 || hour > 23 {
		return false
	}
	if minute < 0 || minute > 59 {
		return false
	}
	return true
}
