// retrieve.go — сервис выдачи файлов: метаданные, оригинал, превью,
// листинг и удаление.
package service

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/arturkryukov/fileservice/internal/api/middleware"
	"github.com/arturkryukov/fileservice/internal/domain/model"
	"github.com/arturkryukov/fileservice/internal/storage"
)

// RetrieveService — сервис чтения и удаления файлов.
type RetrieveService struct {
	backend   storage.Backend
	repo      MetadataRepo
	listLimit int
	logger    *slog.Logger
}

// NewRetrieveService создаёт сервис чтения файлов.
func NewRetrieveService(backend storage.Backend, repo MetadataRepo, listLimit int, logger *slog.Logger) *RetrieveService {
	return &RetrieveService{
		backend:   backend,
		repo:      repo,
		listLimit: listLimit,
		logger:    logger.With(slog.String("component", "retrieve_service")),
	}
}

// Metadata возвращает запись файла по идентификатору.
func (s *RetrieveService) Metadata(ctx context.Context, id uuid.UUID) (*model.FileRecord, *OpError) {
	rec, err := s.repo.FileByID(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, errNotFound("Файл %s не найден", id)
		}
		s.logger.Error("Ошибка чтения записи", slog.String("error", err.Error()))
		return nil, errInternal("Ошибка обращения к базе метаданных")
	}
	return rec, nil
}

// OpenOriginal открывает поток оригинального содержимого файла.
//
// Запись есть, а блоба нет — рассогласование хранилища, не 404:
// клиент различает «файла никогда не было» и «файл потерян».
func (s *RetrieveService) OpenOriginal(ctx context.Context, id uuid.UUID) (io.ReadCloser, *model.FileRecord, *OpError) {
	rec, opErr := s.Metadata(ctx, id)
	if opErr != nil {
		return nil, nil, opErr
	}

	rc, err := s.backend.Get(ctx, rec.FilePath)
	if err != nil {
		return nil, nil, s.blobError(id, rec.FilePath, err)
	}

	middleware.OperationsTotal.WithLabelValues("download", "success").Inc()
	s.logger.Debug("Файл отдан",
		slog.String("file_id", id.String()),
		slog.String("filename", rec.OriginalFilename),
		slog.Int64("size", rec.FileSize),
	)
	return rc, rec, nil
}

// OpenThumbnail открывает поток превью файла.
// Запись без thumbnail_path — честный 404: превью не создавалось.
func (s *RetrieveService) OpenThumbnail(ctx context.Context, id uuid.UUID) (io.ReadCloser, *model.FileRecord, *OpError) {
	rec, opErr := s.Metadata(ctx, id)
	if opErr != nil {
		return nil, nil, opErr
	}

	if rec.ThumbnailPath == nil {
		return nil, nil, errNotFound("Превью для файла %s отсутствует", id)
	}

	rc, err := s.backend.Get(ctx, *rec.ThumbnailPath)
	if err != nil {
		return nil, nil, s.blobError(id, *rec.ThumbnailPath, err)
	}
	return rc, rec, nil
}

// ListRecent возвращает последние загруженные файлы.
func (s *RetrieveService) ListRecent(ctx context.Context) ([]*model.FileRecord, *OpError) {
	recs, err := s.repo.ListRecent(ctx, s.listLimit)
	if err != nil {
		s.logger.Error("Ошибка листинга файлов", slog.String("error", err.Error()))
		return nil, errInternal("Ошибка обращения к базе метаданных")
	}
	return recs, nil
}

// Delete удаляет файл: сначала строка метаданных, потом блобы.
//
// Порядок принципиален: после удаления строки файл невидим для API,
// даже если удаление блобов не удалось. Осиротевший блоб безопасен
// и будет подобран sweep'ом; строка без блоба — нет.
func (s *RetrieveService) Delete(ctx context.Context, id uuid.UUID) *OpError {
	rec, opErr := s.Metadata(ctx, id)
	if opErr != nil {
		return opErr
	}

	if err := s.repo.DeleteFile(ctx, id); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			// Параллельное удаление успело раньше
			return errNotFound("Файл %s не найден", id)
		}
		s.logger.Error("Ошибка удаления записи",
			slog.String("file_id", id.String()),
			slog.String("error", err.Error()),
		)
		return errInternal("Ошибка удаления метаданных")
	}

	// Блобы удаляются best-effort: строка уже удалена, операция успешна
	if err := s.backend.Delete(ctx, rec.FilePath); err != nil {
		s.logger.Warn("Блоб не удалён, останется до sweep",
			slog.String("key", rec.FilePath),
			slog.String("error", err.Error()),
		)
	}
	if rec.ThumbnailPath != nil {
		if err := s.backend.Delete(ctx, *rec.ThumbnailPath); err != nil {
			s.logger.Warn("Превью не удалено, останется до sweep",
				slog.String("key", *rec.ThumbnailPath),
				slog.String("error", err.Error()),
			)
		}
	}

	middleware.OperationsTotal.WithLabelValues("delete", "success").Inc()
	s.logger.Info("Файл удалён",
		slog.String("file_id", id.String()),
		slog.String("filename", rec.Filename),
	)
	return nil
}

// blobError классифицирует ошибку чтения блоба при существующей записи.
func (s *RetrieveService) blobError(id uuid.UUID, key string, err error) *OpError {
	if errors.Is(err, storage.ErrNotFound) {
		s.logger.Error("Запись есть, блоб отсутствует",
			slog.String("file_id", id.String()),
			slog.String("key", key),
		)
		return errStorageInconsistency("Содержимое файла %s отсутствует в хранилище", id)
	}
	if errors.Is(err, storage.ErrUnavailable) {
		s.logger.Error("Хранилище недоступно",
			slog.String("file_id", id.String()),
			slog.String("error", err.Error()),
		)
		return errBackendUnavailable("Хранилище недоступно")
	}
	s.logger.Error("Ошибка чтения блоба",
		slog.String("file_id", id.String()),
		slog.String("key", key),
		slog.String("error", err.Error()),
	)
	return errInternal("Ошибка чтения файла из хранилища")
}
