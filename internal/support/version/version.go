// Package version — имя и версия приложения в одном месте.
// Version может быть переопределена на этапе сборки:
//
//	go build -ldflags "-X telegram-planner/internal/support/version.Version=1.4.0"
package version

var (
	// Name — короткое имя приложения для логов, CLI и ответов сервисных команд.
	Name = "telegram-planner"

	// Version — семантическая версия сборки. Значение по умолчанию соответствует
	// разработческой сборке без ldflags.
	Version = "0.0.0-dev"
)
