// Пакет config отвечает за сбор и предоставление конфигурации всего приложения
// (планировщик уведомлений + диалоговый движок). Он:
//  1. читает переменные окружения из .env (через godotenv),
//  2. нормализует и валидирует входные значения,
//  3. накапливает предупреждения о подставленных дефолтах,
//  4. предоставляет потокобезопасный доступ к результатам через R/W мьютекс.
//
// Бизнес-контекст: конфиг управляет подключением к Telegram Bot API, Postgres и
// Redis (брокер задач + хранилище диалоговых состояний), окном диспетчеризации
// ежедневных уведомлений, скоростными лимитами, логированием и прочими «ручками».
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// EnvConfig описывает параметры, приходящие из окружения (.env). Это «операционные»
// настройки запуска: токен бота, адреса Postgres/Redis, секрет вебхука, лог-уровень,
// окно диспетчеризации, конкурентность воркеров и т. д.
//
// NB: значения уже проходят минимальную валидацию и нормализацию в loadConfig.
// В рантайме по месту использования предполагается, что EnvConfig последователен.
type EnvConfig struct {
	BotToken       string
	DatabaseURL    string
	RedisURL       string
	WebhookSecret  string
	WebhookBaseURL string
	LogLevel       string
	// Диспетчеризация и доставка
	DispatchWindowMin int
	WorkerConcurrency int
	ThrottleRPS       int
	DedupWindowSec    int
	DebounceEditMS    int
	// Хранилище диалоговых состояний: redis (общий для воркеров) или bolt (локальный файл)
	FSMBackend  string
	FSMBoltFile string
	// Web Server
	WebListen string
	// Операторская консоль
	CLIEnable bool
	// Автозавершение процесса (для тестовых окружений); 0 — выключено
	RunTimeoutSec int
	// Файловое логирование
	LogFile           string
	LogFileLevel      string
	LogFileMaxSize    int
	LogFileMaxBackups int
	LogFileMaxAge     int
	LogFileCompress   bool
}

// Config хранит конфигурацию среды.
//
// Потокобезопасность: публичные геттеры берут RLock. Конфигурация после Load
// неизменяема; мьютекс защищает только доступ к warnings.
type Config struct {
	Env      EnvConfig
	warnings []string     // предупреждения, накопленные при чтении окружения
	mu       sync.RWMutex // защита конкурентного доступа к конфигурации
}

// Значения по умолчанию для параметров окружения.
const (
	defaultLogLevel          = "info"
	defaultDispatchWindowMin = 10
	defaultWorkerConcurrency = 10
	defaultThrottleRPS       = 25
	defaultDedupWindowSec    = 120
	defaultDebounceEditMS    = 400
	defaultFSMBackend        = "redis"
	defaultFSMBoltFile       = "data/fsm.db"
	defaultWebListen         = "127.0.0.1:8080"
	defaultCLIEnable         = true
	defaultRunTimeoutSec     = 0
	// Файловое логирование (LOG_FILE не имеет дефолта - должен быть явно указан для активации)
	defaultLogFileLevel      = "debug"
	defaultLogFileMaxSize    = 50
	defaultLogFileMaxBackups = 3
	defaultLogFileMaxAge     = 7
	defaultLogFileCompress   = true
)

var (
	cfgInstance *Config
	cfgDone     bool
)

// Load — точка входа для инициализации глобальной конфигурации всего приложения.
// При первом вызове:
//  1. читает .env (если путь задан; пустой путь означает «только окружение»),
//  2. формирует EnvConfig,
//  3. фиксирует результат в singleton cfgInstance.
//
// Повторный вызов запрещен (возвращается ошибка), чтобы избежать гонок
// конфигурации на старте.
func Load(envPath string) error {
	if cfgDone {
		return errors.New("config already loaded")
	}
	if cfgInstance == nil {
		cfgInstance = &Config{}
	}
	cfgInstance.mu.Lock()
	defer cfgInstance.mu.Unlock()
	newCfg, err := loadConfig(envPath)
	if err != nil {
		return err
	}
	cfgInstance = newCfg
	cfgDone = true
	return nil
}

// loadConfig выполняет фактическую загрузку/валидацию без установки глобального
// состояния. Удобно для тестов: можно собрать временный Config и проверить его.
func loadConfig(envPath string) (*Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	botToken, err := parseRequiredString("BOT_TOKEN")
	if err != nil {
		return nil, err
	}
	databaseURL, err := parseRequiredString("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	redisURL, err := parseRequiredString("REDIS_URL")
	if err != nil {
		return nil, err
	}

	var warnings []string

	webhookSecret := strings.TrimSpace(os.Getenv("WEBHOOK_SECRET"))
	webhookBaseURL := strings.TrimRight(strings.TrimSpace(os.Getenv("WEBHOOK_BASE_URL")), "/")
	logLevel := sanitizeLogLevel(os.Getenv("LOG_LEVEL"), defaultLogLevel, &warnings)
	dispatchWindow := parseIntDefault("DISPATCH_WINDOW_MINUTES", defaultDispatchWindowMin, greaterThanZero, &warnings)
	workerConcurrency := parseIntDefault("WORKER_CONCURRENCY", defaultWorkerConcurrency, greaterThanZero, &warnings)
	throttleRPS := parseIntDefault("THROTTLE_RPS", defaultThrottleRPS, greaterThanZero, &warnings)
	dedupWindow := parseIntDefault("DEDUP_WINDOW_SEC", defaultDedupWindowSec, nonNegative, &warnings)
	debounceMS := parseIntDefault("DEBOUNCE_EDIT_MS", defaultDebounceEditMS, nonNegative, &warnings)
	fsmBackend := sanitizeFSMBackend(os.Getenv("FSM_BACKEND"), &warnings)
	fsmBoltFile := sanitizeFile("FSM_BOLT_FILE", os.Getenv("FSM_BOLT_FILE"), defaultFSMBoltFile, &warnings)
	webListen := sanitizeFile("WEB_LISTEN", os.Getenv("WEB_LISTEN"), defaultWebListen, &warnings)
	cliEnable := parseBoolDefault("CLI_ENABLE", defaultCLIEnable, &warnings)
	runTimeoutSec := parseIntDefault("RUN_TIMEOUT_SEC", defaultRunTimeoutSec, nonNegative, &warnings)
	logFile := strings.TrimSpace(os.Getenv("LOG_FILE"))
	logFileLevel := sanitizeLogLevel(os.Getenv("LOG_FILE_LEVEL"), defaultLogFileLevel, &warnings)
	logFileMaxSize := parseIntDefault("LOG_FILE_MAX_SIZE_MB", defaultLogFileMaxSize, greaterThanZero, &warnings)
	logFileMaxBackups := parseIntDefault("LOG_FILE_MAX_BACKUPS", defaultLogFileMaxBackups, nonNegative, &warnings)
	logFileMaxAge := parseIntDefault("LOG_FILE_MAX_AGE_DAYS", defaultLogFileMaxAge, nonNegative, &warnings)
	logFileCompress := parseBoolDefault("LOG_FILE_COMPRESS", defaultLogFileCompress, &warnings)

	env := EnvConfig{
		BotToken:          botToken,
		DatabaseURL:       databaseURL,
		RedisURL:          redisURL,
		WebhookSecret:     webhookSecret,
		WebhookBaseURL:    webhookBaseURL,
		LogLevel:          logLevel,
		DispatchWindowMin: dispatchWindow,
		WorkerConcurrency: workerConcurrency,
		ThrottleRPS:       throttleRPS,
		DedupWindowSec:    dedupWindow,
		DebounceEditMS:    debounceMS,
		FSMBackend:        fsmBackend,
		FSMBoltFile:       fsmBoltFile,
		WebListen:         webListen,
		CLIEnable:         cliEnable,
		RunTimeoutSec:     runTimeoutSec,
		// Файловое логирование
		LogFile:           logFile,
		LogFileLevel:      logFileLevel,
		LogFileMaxSize:    logFileMaxSize,
		LogFileMaxBackups: logFileMaxBackups,
		LogFileMaxAge:     logFileMaxAge,
		LogFileCompress:   logFileCompress,
	}

	cfg := &Config{
		Env:      env,
		warnings: warnings,
	}

	return cfg, nil
}

// Warnings возвращает накопленные предупреждения, возникшие при загрузке .env
// (например, когда подставлено значение по умолчанию). Возвращается копия.
func Warnings() []string {
	cfgInstance.mu.RLock()
	defer cfgInstance.mu.RUnlock()
	result := make([]string, len(cfgInstance.warnings))
	copy(result, cfgInstance.warnings)
	return result
}

// Env возвращает EnvConfig из глобального singleton. Это неизменяемый снимок
// на момент последней загрузки; для обновления надо перечитать конфиг целиком.
func Env() EnvConfig {
	return cfgInstance.Env
}

// parseRequiredString читает обязательную строковую переменную окружения name.
// Если переменная не задана — возвращает ошибку. Используется для критичных
// параметров (токен, адреса внешних систем), без которых приложение не стартует.
func parseRequiredString(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("env %s must be set", name)
	}
	return value, nil
}

// parseIntDefault читает name как int. Если пусто/некорректно/не проходит
// дополнительную проверку validator — возвращает defaultVal и пишет предупреждение.
// Это позволяет не падать на несущественных настройках и иметь дефолты.
func parseIntDefault(name string, defaultVal int, validator func(int) bool, warnings *[]string) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		appendWarningf(warnings, "env %s is not set; using default %d", name, defaultVal)
		return defaultVal
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		appendWarningf(warnings, "env %s value %q is not a valid integer; using default %d", name, value, defaultVal)
		return defaultVal
	}
	if validator != nil && !validator(v) {
		appendWarningf(warnings, "env %s value %d does not satisfy constraints; using default %d", name, v, defaultVal)
		return defaultVal
	}
	return v
}

// appendWarningf — служебная функция для накопления предупреждений о некорректных
// переменных окружения. Список затем доступен через Warnings().
func appendWarningf(warnings *[]string, format string, args ...any) {
	if warnings == nil {
		return
	}
	*warnings = append(*warnings, fmt.Sprintf(format, args...))
}

// greaterThanZero/ nonNegative — простые валидаторы чисел. Используются в
// parseIntDefault, чтобы навязать смысловые ограничения без падения приложения.
func greaterThanZero(v int) bool { return v > 0 }
func nonNegative(v int) bool     { return v >= 0 }

// parseBoolDefault читает name как bool. Если пусто/некорректно — возвращает defaultVal и пишет предупреждение.
func parseBoolDefault(name string, defaultVal bool, warnings *[]string) bool {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		appendWarningf(warnings, "env %s is not set; using default %v", name, defaultVal)
		return defaultVal
	}
	v, err := strconv.ParseBool(value)
	if err != nil {
		appendWarningf(warnings, "env %s value %q is not a valid boolean; using default %v", name, value, defaultVal)
		return defaultVal
	}
	return v
}

// sanitizeLogLevel нормализует LOG_LEVEL и ограничивает значения набором
// {debug, info, warn, error}. Всё остальное превращается в defaultVal.
func sanitizeLogLevel(level string, defaultVal string, warnings *[]string) string {
	lvl := strings.ToLower(strings.TrimSpace(level))
	if lvl == "" {
		appendWarningf(warnings, "env LOG_LEVEL is not set; using default %q", defaultVal)
		return defaultVal
	}
	switch lvl {
	case "debug", "info", "warn", "error":
		return lvl
	default:
		appendWarningf(warnings, "env LOG_LEVEL value %q is invalid; using default %q", level, defaultVal)
		return defaultVal
	}
}

// sanitizeFSMBackend выбирает хранилище диалоговых состояний (redis|bolt).
// Redis обязателен для нескольких воркеров; bolt годится для одиночного процесса
// в режиме long polling. Некорректные значения приводятся к дефолту с предупреждением.
func sanitizeFSMBackend(backend string, warnings *[]string) string {
	b := strings.ToLower(strings.TrimSpace(backend))
	if b == "" {
		appendWarningf(warnings, "env FSM_BACKEND is not set; using default %q", defaultFSMBackend)
		return defaultFSMBackend
	}
	if b == "redis" || b == "bolt" {
		return b
	}
	appendWarningf(warnings, "env FSM_BACKEND value %q is invalid; using default %q", backend, defaultFSMBackend)
	return defaultFSMBackend
}

// sanitizeFile возвращает валидное имя файла/адреса из конфигурации. Если
// переменная не задана, подставляет fallback и пишет предупреждение.
func sanitizeFile(name, value, fallback string, warnings *[]string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		appendWarningf(warnings, "env %s is not set; using default %q", name, fallback)
		return fallback
	}
	return v
}
