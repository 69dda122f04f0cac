package config

import (
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"
)

// setEnvVars устанавливает переменные окружения для теста и возвращает
// функцию очистки. Всегда вызывать defer cleanup().
func setEnvVars(t *testing.T, vars map[string]string) func() {
	t.Helper()

	originals := make(map[string]string)
	origSet := make(map[string]bool)
	for k := range vars {
		if v, ok := os.LookupEnv(k); ok {
			originals[k] = v
			origSet[k] = true
		}
	}

	for k, v := range vars {
		os.Setenv(k, v)
	}

	return func() {
		for k := range vars {
			if origSet[k] {
				os.Setenv(k, originals[k])
			} else {
				os.Unsetenv(k)
			}
		}
	}
}

// clearAllFSEnvVars очищает все переменные окружения FS_* для чистого теста.
func clearAllFSEnvVars(t *testing.T) func() {
	t.Helper()
	keys := []string{
		"FS_PORT", "FS_SERVICE_ID", "FS_DATABASE_URL",
		"FS_STORAGE_BACKEND", "FS_DATA_DIR",
		"FS_S3_ENDPOINT", "FS_S3_REGION", "FS_S3_BUCKET",
		"FS_S3_ACCESS_KEY", "FS_S3_SECRET_KEY", "FS_S3_USE_SSL",
		"FS_MAX_FILE_SIZE", "FS_ALLOWED_EXTENSIONS",
		"FS_THUMB_MAX_DIM", "FS_LIST_LIMIT",
		"FS_SWEEP_INTERVAL", "FS_SWEEP_GRACE",
		"FS_LOG_LEVEL", "FS_LOG_FORMAT", "FS_SHUTDOWN_TIMEOUT",
		"FS_DEPHEALTH_CHECK_INTERVAL", "FS_DEPHEALTH_GROUP", "FS_DEPHEALTH_DEP_NAME",
	}
	originals := make(map[string]string)
	origSet := make(map[string]bool)
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			originals[k] = v
			origSet[k] = true
		}
		os.Unsetenv(k)
	}
	return func() {
		for _, k := range keys {
			if origSet[k] {
				os.Setenv(k, originals[k])
			} else {
				os.Unsetenv(k)
			}
		}
	}
}

// requiredEnvVars возвращает минимальный набор обязательных переменных.
func requiredEnvVars() map[string]string {
	return map[string]string{
		"FS_DATABASE_URL": "postgres://fs:fs@localhost:5432/fileservice?sslmode=disable",
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	cleanup := clearAllFSEnvVars(t)
	defer cleanup()

	cleanupVars := setEnvVars(t, requiredEnvVars())
	defer cleanupVars()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	// Проверяем значения по умолчанию
	if cfg.Port != 8080 {
		t.Errorf("Port: ожидалось 8080, получено %d", cfg.Port)
	}
	if cfg.StorageBackend != BackendLocal {
		t.Errorf("StorageBackend: ожидалось 'local', получено %q", cfg.StorageBackend)
	}
	if cfg.DataDir != "uploads" {
		t.Errorf("DataDir: ожидалось 'uploads', получено %q", cfg.DataDir)
	}
	if cfg.MaxFileSize != 10485760 {
		t.Errorf("MaxFileSize: ожидалось 10485760, получено %d", cfg.MaxFileSize)
	}
	if len(cfg.AllowedExtensions) != 8 {
		t.Errorf("AllowedExtensions: ожидалось 8 расширений, получено %v", cfg.AllowedExtensions)
	}
	if cfg.ThumbMaxDim != 200 {
		t.Errorf("ThumbMaxDim: ожидалось 200, получено %d", cfg.ThumbMaxDim)
	}
	if cfg.ListLimit != 100 {
		t.Errorf("ListLimit: ожидалось 100, получено %d", cfg.ListLimit)
	}
	if cfg.SweepInterval != time.Hour {
		t.Errorf("SweepInterval: ожидалось 1h, получено %v", cfg.SweepInterval)
	}
	if cfg.SweepGrace != 15*time.Minute {
		t.Errorf("SweepGrace: ожидалось 15m, получено %v", cfg.SweepGrace)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel: ожидалось INFO, получено %v", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat: ожидалось 'json', получено %q", cfg.LogFormat)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout: ожидалось 5s, получено %v", cfg.ShutdownTimeout)
	}
	if cfg.DephealthCheckInterval != 15*time.Second {
		t.Errorf("DephealthCheckInterval: ожидалось 15s, получено %v", cfg.DephealthCheckInterval)
	}
}

func TestLoad_AllCustomValues(t *testing.T) {
	cleanup := clearAllFSEnvVars(t)
	defer cleanup()

	vars := requiredEnvVars()
	vars["FS_PORT"] = "9090"
	vars["FS_STORAGE_BACKEND"] = "s3"
	vars["FS_S3_ENDPOINT"] = "minio:9000"
	vars["FS_S3_BUCKET"] = "uploads"
	vars["FS_S3_USE_SSL"] = "true"
	vars["FS_MAX_FILE_SIZE"] = "52428800"
	vars["FS_ALLOWED_EXTENSIONS"] = "png, JPG ,pdf"
	vars["FS_THUMB_MAX_DIM"] = "300"
	vars["FS_LIST_LIMIT"] = "50"
	vars["FS_SWEEP_INTERVAL"] = "30m"
	vars["FS_SWEEP_GRACE"] = "5m"
	vars["FS_LOG_LEVEL"] = "debug"
	vars["FS_LOG_FORMAT"] = "text"

	cleanupVars := setEnvVars(t, vars)
	defer cleanupVars()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port: ожидалось 9090, получено %d", cfg.Port)
	}
	if cfg.StorageBackend != BackendS3 {
		t.Errorf("StorageBackend: ожидалось 's3', получено %q", cfg.StorageBackend)
	}
	if !cfg.S3UseSSL {
		t.Error("S3UseSSL: ожидалось true")
	}
	if cfg.MaxFileSize != 52428800 {
		t.Errorf("MaxFileSize: ожидалось 52428800, получено %d", cfg.MaxFileSize)
	}
	// Расширения нормализуются: trim + нижний регистр
	expected := []string{"png", "jpg", "pdf"}
	if len(cfg.AllowedExtensions) != len(expected) {
		t.Fatalf("AllowedExtensions: получено %v", cfg.AllowedExtensions)
	}
	for i, e := range expected {
		if cfg.AllowedExtensions[i] != e {
			t.Errorf("AllowedExtensions[%d]: ожидалось %s, получено %s", i, e, cfg.AllowedExtensions[i])
		}
	}
	if cfg.SweepInterval != 30*time.Minute {
		t.Errorf("SweepInterval: ожидалось 30m, получено %v", cfg.SweepInterval)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel: ожидалось DEBUG, получено %v", cfg.LogLevel)
	}
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	cleanup := clearAllFSEnvVars(t)
	defer cleanup()

	_, err := Load()
	if err == nil {
		t.Fatal("ожидалась ошибка при отсутствии FS_DATABASE_URL")
	}
	if !strings.Contains(err.Error(), "FS_DATABASE_URL") {
		t.Errorf("ошибка должна называть переменную: %v", err)
	}
}

func TestLoad_S3RequiresEndpoint(t *testing.T) {
	cleanup := clearAllFSEnvVars(t)
	defer cleanup()

	vars := requiredEnvVars()
	vars["FS_STORAGE_BACKEND"] = "s3"
	cleanupVars := setEnvVars(t, vars)
	defer cleanupVars()

	_, err := Load()
	if err == nil {
		t.Fatal("ожидалась ошибка: s3 backend без endpoint")
	}
	if !strings.Contains(err.Error(), "FS_S3_ENDPOINT") {
		t.Errorf("ошибка должна называть переменную: %v", err)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"некорректный порт", "FS_PORT", "70000"},
		{"нечисловой порт", "FS_PORT", "abc"},
		{"отрицательный размер", "FS_MAX_FILE_SIZE", "-1"},
		{"недопустимый backend", "FS_STORAGE_BACKEND", "ftp"},
		{"некорректный интервал", "FS_SWEEP_INTERVAL", "вечность"},
		{"недопустимый уровень", "FS_LOG_LEVEL", "loud"},
		{"недопустимый формат", "FS_LOG_FORMAT", "xml"},
		{"лимит вне диапазона", "FS_LIST_LIMIT", "5000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanup := clearAllFSEnvVars(t)
			defer cleanup()

			vars := requiredEnvVars()
			vars[tt.key] = tt.val
			cleanupVars := setEnvVars(t, vars)
			defer cleanupVars()

			if _, err := Load(); err == nil {
				t.Errorf("ожидалась ошибка для %s=%s", tt.key, tt.val)
			}
		})
	}
}

func TestExtensionAllowed(t *testing.T) {
	cfg := &Config{AllowedExtensions: []string{"jpg", "png", "txt"}}

	tests := []struct {
		ext      string
		expected bool
	}{
		{"jpg", true},
		{"JPG", true},
		{"png", true},
		{"exe", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := cfg.ExtensionAllowed(tt.ext); got != tt.expected {
			t.Errorf("ExtensionAllowed(%q): ожидалось %v, получено %v", tt.ext, tt.expected, got)
		}
	}
}
