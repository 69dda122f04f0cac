// Точка входа файлового сервиса — приём, хранение и выдача файлов.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/arturkryukov/fileservice/internal/api/handlers"
	"github.com/arturkryukov/fileservice/internal/config"
	"github.com/arturkryukov/fileservice/internal/database/postgres"
	"github.com/arturkryukov/fileservice/internal/server"
	"github.com/arturkryukov/fileservice/internal/service"
	"github.com/arturkryukov/fileservice/internal/storage"
	"github.com/arturkryukov/fileservice/internal/storage/localfs"
	"github.com/arturkryukov/fileservice/internal/storage/s3"
	"github.com/arturkryukov/fileservice/internal/thumbnail"
)

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Файловый сервис запускается",
		slog.String("service_id", cfg.ServiceID),
		slog.String("version", config.Version),
		slog.String("storage_backend", cfg.StorageBackend),
		slog.Int("port", cfg.Port),
	)

	ctx := context.Background()

	// --- Инициализация компонентов ---

	// 1. База метаданных: пул соединений + миграции
	repo, err := postgres.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("Ошибка инициализации базы метаданных", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer repo.Close()

	// 2. Backend хранения блобов
	var backend storage.Backend
	switch cfg.StorageBackend {
	case config.BackendS3:
		backend, err = s3.New(ctx, s3.Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3UseSSL,
		}, logger)
	default:
		backend, err = localfs.New(cfg.DataDir)
	}
	if err != nil {
		logger.Error("Ошибка инициализации хранилища",
			slog.String("backend", cfg.StorageBackend),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	logger.Info("Хранилище блобов готово", slog.String("type", backend.Type()))

	// 3. Сервисы
	thumbs := thumbnail.New(cfg.ThumbMaxDim)
	uploadSvc := service.NewUploadService(cfg, backend, repo, thumbs, logger)
	retrieveSvc := service.NewRetrieveService(backend, repo, cfg.ListLimit, logger)

	// 4. Фоновые процессы

	// 4.1 Sweep — уборка осиротевших блобов
	sweepSvc := service.NewSweepService(backend, repo, cfg.SweepInterval, cfg.SweepGrace, logger)
	sweepSvc.Start(ctx)

	// 4.2 topologymetrics — мониторинг S3 endpoint (только для s3 backend)
	var dephealthSvc *service.DephealthService
	if cfg.StorageBackend == config.BackendS3 {
		scheme := "http"
		if cfg.S3UseSSL {
			scheme = "https"
		}
		var dephealthErr error
		dephealthSvc, dephealthErr = service.NewDephealthService(
			cfg.ServiceID,
			cfg.DephealthGroup,
			cfg.DephealthDepName,
			fmt.Sprintf("%s://%s/minio/health/live", scheme, cfg.S3Endpoint),
			cfg.DephealthCheckInterval,
			logger,
		)
		if dephealthErr != nil {
			logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
				slog.String("error", dephealthErr.Error()),
			)
		} else {
			if startErr := dephealthSvc.Start(ctx); startErr != nil {
				logger.Warn("Ошибка запуска topologymetrics",
					slog.String("error", startErr.Error()),
				)
				dephealthSvc = nil
			} else {
				logger.Info("topologymetrics запущен",
					slog.String("endpoint", cfg.S3Endpoint),
					slog.String("check_interval", cfg.DephealthCheckInterval.String()),
				)
			}
		}
	}

	// 5. Handlers
	filesHandler := handlers.NewFilesHandler(uploadSvc, retrieveSvc, cfg.MaxFileSize)
	healthHandler := handlers.NewHealthHandler(repo, backend)

	// 6. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, filesHandler, healthHandler)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// --- Graceful shutdown фоновых процессов ---
	logger.Info("Остановка фоновых процессов...")

	sweepSvc.Stop()
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("Файловый сервис остановлен")
}
