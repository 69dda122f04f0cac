// Пакет config — загрузка и валидация конфигурации файлового сервиса
// из переменных окружения. Конфигурация читается один раз при старте
// и после этого неизменна.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Backend-теги, допустимые в FS_STORAGE_BACKEND.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// Config содержит все параметры конфигурации сервиса.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Идентификатор экземпляра сервиса (метрики dephealth)
	ServiceID string
	// DSN PostgreSQL (обязательный параметр)
	DatabaseURL string
	// Выбор backend'а хранения: local или s3
	StorageBackend string
	// Корневая директория локального хранилища
	DataDir string
	// Endpoint S3-совместимого хранилища (host:port)
	S3Endpoint string
	// Регион S3
	S3Region string
	// Имя bucket'а
	S3Bucket string
	// Ключ доступа S3
	S3AccessKey string
	// Секретный ключ S3
	S3SecretKey string
	// Использовать TLS при подключении к S3
	S3UseSSL bool
	// Максимальный размер файла в байтах
	MaxFileSize int64
	// Разрешённые расширения файлов (нижний регистр, без точки)
	AllowedExtensions []string
	// Максимальная сторона превью в пикселях
	ThumbMaxDim int
	// Размер выдачи GET /files
	ListLimit int
	// Интервал фоновой сверки orphan-блобов
	SweepInterval time.Duration
	// Объекты моложе этого возраста sweep не трогает
	// (запись могла ещё не закоммититься)
	SweepGrace time.Duration
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string
	// Имя зависимости (целевого сервиса) в метриках topologymetrics
	DephealthDepName string
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
// .env подхватывается только для локальной разработки.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}

	cfg := &Config{}
	var err error

	// FS_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("FS_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("FS_PORT: %w", err)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("FS_PORT: значение %d вне допустимого диапазона", cfg.Port)
	}

	// FS_SERVICE_ID — идентификатор экземпляра (по умолчанию file-service-01)
	cfg.ServiceID = getEnvDefault("FS_SERVICE_ID", "file-service-01")

	// FS_DATABASE_URL — обязательный
	cfg.DatabaseURL, err = getEnvRequired("FS_DATABASE_URL")
	if err != nil {
		return nil, err
	}

	// FS_STORAGE_BACKEND — выбор backend'а (по умолчанию local)
	cfg.StorageBackend = getEnvDefault("FS_STORAGE_BACKEND", BackendLocal)
	if cfg.StorageBackend != BackendLocal && cfg.StorageBackend != BackendS3 {
		return nil, fmt.Errorf("FS_STORAGE_BACKEND: недопустимое значение %q, допустимые: local, s3", cfg.StorageBackend)
	}

	// FS_DATA_DIR — корень локального хранилища (по умолчанию ./uploads)
	cfg.DataDir = getEnvDefault("FS_DATA_DIR", "uploads")

	// Параметры S3 (обязательны только при FS_STORAGE_BACKEND=s3)
	cfg.S3Endpoint = getEnvDefault("FS_S3_ENDPOINT", "")
	cfg.S3Region = getEnvDefault("FS_S3_REGION", "us-east-1")
	cfg.S3Bucket = getEnvDefault("FS_S3_BUCKET", "file-service")
	cfg.S3AccessKey = getEnvDefault("FS_S3_ACCESS_KEY", "minioadmin")
	cfg.S3SecretKey = getEnvDefault("FS_S3_SECRET_KEY", "minioadmin")
	cfg.S3UseSSL, err = getEnvBool("FS_S3_USE_SSL", false)
	if err != nil {
		return nil, fmt.Errorf("FS_S3_USE_SSL: %w", err)
	}
	if cfg.StorageBackend == BackendS3 && cfg.S3Endpoint == "" {
		return nil, fmt.Errorf("FS_S3_ENDPOINT: обязателен при FS_STORAGE_BACKEND=s3")
	}

	// FS_MAX_FILE_SIZE — максимальный размер файла (по умолчанию 10 MiB)
	cfg.MaxFileSize, err = getEnvInt64("FS_MAX_FILE_SIZE", 10485760)
	if err != nil {
		return nil, fmt.Errorf("FS_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("FS_MAX_FILE_SIZE: значение должно быть положительным")
	}

	// FS_ALLOWED_EXTENSIONS — список через запятую
	exts := getEnvDefault("FS_ALLOWED_EXTENSIONS", "jpg,jpeg,png,gif,pdf,doc,docx,txt")
	for _, e := range strings.Split(exts, ",") {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			cfg.AllowedExtensions = append(cfg.AllowedExtensions, e)
		}
	}
	if len(cfg.AllowedExtensions) == 0 {
		return nil, fmt.Errorf("FS_ALLOWED_EXTENSIONS: список не может быть пустым")
	}

	// FS_THUMB_MAX_DIM — максимальная сторона превью (по умолчанию 200)
	cfg.ThumbMaxDim, err = getEnvInt("FS_THUMB_MAX_DIM", 200)
	if err != nil {
		return nil, fmt.Errorf("FS_THUMB_MAX_DIM: %w", err)
	}
	if cfg.ThumbMaxDim <= 0 {
		return nil, fmt.Errorf("FS_THUMB_MAX_DIM: значение должно быть положительным")
	}

	// FS_LIST_LIMIT — размер выдачи листинга (по умолчанию 100)
	cfg.ListLimit, err = getEnvInt("FS_LIST_LIMIT", 100)
	if err != nil {
		return nil, fmt.Errorf("FS_LIST_LIMIT: %w", err)
	}
	if cfg.ListLimit <= 0 || cfg.ListLimit > 1000 {
		return nil, fmt.Errorf("FS_LIST_LIMIT: значение должно быть от 1 до 1000")
	}

	// FS_SWEEP_INTERVAL — интервал сверки (по умолчанию 1h)
	cfg.SweepInterval, err = getEnvDuration("FS_SWEEP_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("FS_SWEEP_INTERVAL: %w", err)
	}

	// FS_SWEEP_GRACE — защитное окно sweep (по умолчанию 15m)
	cfg.SweepGrace, err = getEnvDuration("FS_SWEEP_GRACE", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FS_SWEEP_GRACE: %w", err)
	}

	// FS_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("FS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("FS_LOG_LEVEL: %w", err)
	}

	// FS_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("FS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("FS_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// FS_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("FS_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FS_SHUTDOWN_TIMEOUT: %w", err)
	}

	// FS_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("FS_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FS_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// FS_DEPHEALTH_GROUP — имя группы в метриках (по умолчанию "file-service")
	cfg.DephealthGroup = getEnvDefault("FS_DEPHEALTH_GROUP", "file-service")

	// FS_DEPHEALTH_DEP_NAME — имя зависимости (по умолчанию "s3")
	cfg.DephealthDepName = getEnvDefault("FS_DEPHEALTH_DEP_NAME", "s3")

	return cfg, nil
}

// ExtensionAllowed проверяет расширение (без точки, регистр не важен)
// по списку разрешённых.
func (c *Config) ExtensionAllowed(ext string) bool {
	ext = strings.ToLower(ext)
	for _, e := range c.AllowedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
