package plan

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-faster/errors"
)

// Лимиты входного текста плана. Общая длина меряется в байтах, отдельная
// задача — в рунах, чтобы кириллица не «съедала» половину лимита.
const (
	MaxTaskLength = 500
	MaxPlanLength = 10000
	MaxTasks      = 50
)

var (
	lineSplitRe = regexp.MustCompile(`[\r\n]+`)
	numberingRe = regexp.MustCompile(`^\s*\d+[.)]\s*`)
)

// ParseLines разбивает многострочный текст на задачи: строки режутся по
// переводам, пробелы по краям снимаются, пустые строки выбрасываются,
// ведущая нумерация вида «1.» или «2)» отбрасывается. Каждая задача
// усечена до MaxTaskLength, всего задач не больше MaxTasks.
func ParseLines(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var tasks []string
	for _, line := range lineSplitRe.Split(raw, -1) {
		s := strings.TrimSpace(line)
		if s == "" {
			continue
		}
		s = strings.TrimSpace(numberingRe.ReplaceAllString(s, ""))
		if s == "" {
			continue
		}
		tasks = append(tasks, TruncateRunes(s, MaxTaskLength))
		if len(tasks) == MaxTasks {
			break
		}
	}
	return tasks
}

// ValidateText проверяет сырой текст плана. Возвращаемая ошибка — готовый
// ответ пользователю в чат, nil — текст пригоден для ParseLines.
func ValidateText(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("План не может быть пустым.")
	}
	if len(raw) > MaxPlanLength {
		return fmt.Errorf("План слишком длинный (максимум %d символов).", MaxPlanLength)
	}
	if len(ParseLines(raw)) == 0 {
		return errors.New("Не удалось выделить ни одной задачи. Напиши каждый пункт с новой строки.")
	}
	return nil
}

// TruncateRunes усекает строку до max рун. Нужна везде, где лимит задан
// в символах, а текст приходит в UTF-8.
func TruncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
