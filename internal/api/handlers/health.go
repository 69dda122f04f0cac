// health.go — обработчики health endpoints для Kubernetes probes.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/arturkryukov/fileservice/internal/config"
	"github.com/arturkryukov/fileservice/internal/storage"
)

// statusFail — строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// Pinger — интерфейс проверки доступности базы метаданных.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler реализует health endpoints: /health, /health/ready.
type HealthHandler struct {
	version string
	db      Pinger
	backend storage.Backend
}

// NewHealthHandler создаёт обработчик health endpoints.
func NewHealthHandler(db Pinger, backend storage.Backend) *HealthHandler {
	return &HealthHandler{
		version: config.Version,
		db:      db,
		backend: backend,
	}
}

// Health обрабатывает GET /health.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "file-service",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет: база метаданных, хранилище блобов.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	overallStatus := "ok"
	httpStatus := http.StatusOK

	dbCheck := h.checkDatabase(ctx)
	if dbCheck["status"] != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	backendCheck := h.checkBackend(ctx)
	if backendCheck["status"] != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	resp := map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "file-service",
		"checks": map[string]any{
			"database": dbCheck,
			"storage":  backendCheck,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(resp)
}

// checkDatabase проверяет доступность базы метаданных.
func (h *HealthHandler) checkDatabase(ctx context.Context) map[string]any {
	if h.db == nil {
		return map[string]any{
			"status":  "ok",
			"message": "Проверка не настроена",
		}
	}

	if err := h.db.Ping(ctx); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": "База метаданных недоступна: " + err.Error(),
		}
	}

	return map[string]any{
		"status": "ok",
	}
}

// checkBackend проверяет доступность хранилища блобов.
// Get по заведомо отсутствующему ключу: ErrNotFound означает,
// что хранилище отвечает.
func (h *HealthHandler) checkBackend(ctx context.Context) map[string]any {
	if h.backend == nil {
		return map[string]any{
			"status":  "ok",
			"message": "Проверка не настроена",
		}
	}

	rc, err := h.backend.Get(ctx, ".health_check_probe")
	if err == nil {
		rc.Close()
	} else if !errors.Is(err, storage.ErrNotFound) {
		return map[string]any{
			"status":  statusFail,
			"message": "Хранилище недоступно: " + err.Error(),
		}
	}

	return map[string]any{
		"status": "ok",
		"type":   h.backend.Type(),
	}
}
