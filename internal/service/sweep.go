// sweep.go — фоновая уборка осиротевших блобов.
//
// Блобы-сироты появляются штатно: откат загрузки, отказ удаления блоба
// после удаления строки метаданных, сбой между записью блоба и коммитом
// записи. Sweep периодически сверяет ключи хранилища со списком ключей,
// на которые ссылаются строки files, и удаляет несвязанные.
//
// Запускается как горутина с периодическим тикером (FS_SWEEP_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/fileservice/internal/storage"
)

// Prometheus метрики sweep
var (
	// sweepRunsTotal — количество запусков sweep.
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fs_sweep_runs_total",
		Help: "Общее количество запусков уборки осиротевших блобов",
	})

	// sweepOrphansDeletedTotal — количество удалённых осиротевших блобов.
	sweepOrphansDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fs_sweep_orphans_deleted_total",
		Help: "Общее количество удалённых осиротевших блобов",
	})

	// sweepErrorsTotal — количество ошибок при уборке.
	sweepErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fs_sweep_errors_total",
		Help: "Общее количество ошибок уборки",
	})

	// sweepDurationSeconds — длительность выполнения sweep.
	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fs_sweep_duration_seconds",
		Help:    "Длительность выполнения уборки в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// SweepResult — результат одного запуска sweep.
type SweepResult struct {
	// Scanned — количество просмотренных ключей хранилища
	Scanned int
	// Deleted — количество удалённых осиротевших блобов
	Deleted int
	// Skipped — количество пропущенных молодых блобов
	Skipped int
	// Errors — количество ошибок при обработке
	Errors int
	// Duration — длительность выполнения
	Duration time.Duration
}

// SweepService — сервис уборки осиротевших блобов.
type SweepService struct {
	backend  storage.Backend
	repo     MetadataRepo
	interval time.Duration
	grace    time.Duration
	logger   *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
}

// NewSweepService создаёт сервис уборки.
// grace — минимальный возраст блоба для удаления: свежезаписанный блоб
// может относиться к загрузке, чья строка метаданных ещё не закоммичена.
func NewSweepService(
	backend storage.Backend,
	repo MetadataRepo,
	interval time.Duration,
	grace time.Duration,
	logger *slog.Logger,
) *SweepService {
	return &SweepService{
		backend:  backend,
		repo:     repo,
		interval: interval,
		grace:    grace,
		logger:   logger.With(slog.String("component", "sweep")),
	}
}

// Start запускает фоновую горутину sweep с периодическим тикером.
// Вызывается один раз при старте приложения.
func (sw *SweepService) Start(ctx context.Context) {
	swCtx, cancel := context.WithCancel(ctx)
	sw.cancel = cancel

	go sw.run(swCtx)

	sw.logger.Info("Sweep запущен",
		slog.String("interval", sw.interval.String()),
		slog.String("grace", sw.grace.String()),
	)
}

// Stop останавливает фоновый процесс sweep.
func (sw *SweepService) Stop() {
	if sw.cancel != nil {
		sw.cancel()
	}
	sw.logger.Info("Sweep остановлен")
}

// run — основной цикл фоновой горутины.
func (sw *SweepService) run(ctx context.Context) {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sw.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один цикл уборки.
// Потокобезопасен: mutex защищает от параллельного запуска.
//
// Порядок принципиален: сначала полный листинг ключей хранилища, потом
// снимок ссылок из БД. Блоб, закоммиченный между шагами, попадает в
// снимок ссылок и не будет удалён; обратный порядок давал бы гонку.
// Дополнительная защита — grace по ModTime.
func (sw *SweepService) RunOnce(ctx context.Context) *SweepResult {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	start := time.Now()
	result := &SweepResult{}

	sw.logger.Debug("Sweep запуск начат")

	objects, err := sw.backend.List(ctx)
	if err != nil {
		sw.logger.Error("Sweep: ошибка листинга хранилища", slog.String("error", err.Error()))
		sweepErrorsTotal.Inc()
		result.Errors++
		return result
	}
	result.Scanned = len(objects)

	referenced, err := sw.repo.ReferencedKeys(ctx)
	if err != nil {
		sw.logger.Error("Sweep: ошибка чтения ссылок из БД", slog.String("error", err.Error()))
		sweepErrorsTotal.Inc()
		result.Errors++
		return result
	}

	cutoff := time.Now().Add(-sw.grace)
	for _, obj := range objects {
		if _, ok := referenced[obj.Key]; ok {
			continue
		}
		if obj.ModTime.After(cutoff) {
			// Молодой блоб: возможно, загрузка ещё не закоммичена
			result.Skipped++
			continue
		}

		if err := sw.backend.Delete(ctx, obj.Key); err != nil {
			sw.logger.Error("Sweep: ошибка удаления блоба",
				slog.String("key", obj.Key),
				slog.String("error", err.Error()),
			)
			sweepErrorsTotal.Inc()
			result.Errors++
			continue
		}

		sw.logger.Debug("Sweep: удалён осиротевший блоб",
			slog.String("key", obj.Key),
			slog.Int64("size", obj.Size),
		)
		result.Deleted++
	}

	result.Duration = time.Since(start)

	sweepRunsTotal.Inc()
	sweepOrphansDeletedTotal.Add(float64(result.Deleted))
	sweepDurationSeconds.Observe(result.Duration.Seconds())

	sw.logger.Info("Sweep завершён",
		slog.Int("scanned", result.Scanned),
		slog.Int("deleted", result.Deleted),
		slog.Int("skipped", result.Skipped),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)

	return result
}
