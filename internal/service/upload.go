// Пакет service — бизнес-логика файлового сервиса.
// upload.go — пайплайн приёма файлов: потоковая запись в хранилище
// с подсчётом SHA-256, дедупликация по checksum, генерация превью,
// коммит метаданных.
package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/arturkryukov/fileservice/internal/api/middleware"
	"github.com/arturkryukov/fileservice/internal/config"
	"github.com/arturkryukov/fileservice/internal/domain/model"
	"github.com/arturkryukov/fileservice/internal/storage"
	"github.com/arturkryukov/fileservice/internal/storage/checksum"
	"github.com/arturkryukov/fileservice/internal/thumbnail"
)

// UploadParams — параметры загрузки файла.
type UploadParams struct {
	// Reader — поток данных файла из multipart part
	Reader io.Reader
	// OriginalFilename — имя файла, присланное клиентом
	OriginalFilename string
	// DeclaredMime — Content-Type из заголовка multipart part
	DeclaredMime string
	// RequestedName — имя из поля filename формы (опционально)
	RequestedName string
}

// UploadService — сервис приёма файлов.
type UploadService struct {
	cfg     *config.Config
	backend storage.Backend
	repo    MetadataRepo
	thumbs  *thumbnail.Generator
	logger  *slog.Logger
}

// NewUploadService создаёт сервис приёма файлов.
func NewUploadService(
	cfg *config.Config,
	backend storage.Backend,
	repo MetadataRepo,
	thumbs *thumbnail.Generator,
	logger *slog.Logger,
) *UploadService {
	return &UploadService{
		cfg:     cfg,
		backend: backend,
		repo:    repo,
		thumbs:  thumbs,
		logger:  logger.With(slog.String("component", "upload_service")),
	}
}

// Upload выполняет приём файла.
//
// Поток:
//  1. Валидация расширения
//  2. Потоковая запись в backend + SHA-256 + подсчёт байт (один проход)
//  3. Дедупликация по checksum: дубликат прозрачен для клиента —
//     свежезаписанный блоб удаляется, возвращается существующая запись
//  4. Превью для image/* (ошибка превью не фатальна)
//  5. Вставка записи; проигрыш гонки по checksum разрешается откатом
//     собственного блоба и возвратом записи-победителя
//
// Строка метаданных создаётся только после подтверждённой записи блоба:
// при сбое возможен осиротевший блоб (его подберёт sweep), но не запись
// без содержимого.
func (s *UploadService) Upload(ctx context.Context, params UploadParams) (*model.FileRecord, *OpError) {
	// 1. Расширение из оригинального имени
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(params.OriginalFilename)), ".")
	if ext == "" {
		return nil, errValidation("Не удалось определить расширение файла %q", params.OriginalFilename)
	}
	if !s.cfg.ExtensionAllowed(ext) {
		return nil, errUnsupportedMedia("Расширение .%s не разрешено", ext)
	}

	// 2. Имя и ключ хранения
	id := uuid.New()
	chosen := params.RequestedName
	if chosen == "" {
		chosen = params.OriginalFilename
	}
	filename := id.String() + "_" + sanitizeName(chosen)
	key := "files/" + filename

	// 3. Потоковая запись с одновременным подсчётом SHA-256.
	// LimitReader на байт больше лимита: превышение обнаруживается
	// по фактическому счётчику, Content-Length клиента не используется.
	cr := checksum.NewReader(io.LimitReader(params.Reader, s.cfg.MaxFileSize+1))
	if _, err := s.backend.Put(ctx, key, cr, -1); err != nil {
		s.cleanupBlob(key)
		s.logger.Error("Ошибка записи в хранилище",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		middleware.OperationsTotal.WithLabelValues("upload", "error").Inc()
		if errors.Is(err, storage.ErrUnavailable) {
			return nil, errBackendUnavailable("Хранилище недоступно")
		}
		return nil, errInternal("Ошибка записи файла в хранилище")
	}

	size := cr.Count()
	if size > s.cfg.MaxFileSize {
		s.cleanupBlob(key)
		return nil, errFileTooLarge("Размер файла превышает максимум %d байт", s.cfg.MaxFileSize)
	}
	if size == 0 {
		s.cleanupBlob(key)
		return nil, errValidation("Пустой файл")
	}

	sum := cr.Sum()
	mimeType := detectContentType(params.DeclaredMime)

	// 4. Дедупликация: содержимое уже есть — свежий блоб избыточен
	existing, err := s.repo.FileByChecksum(ctx, sum)
	if err == nil {
		s.cleanupBlob(key)
		middleware.OperationsTotal.WithLabelValues("upload", "dedup").Inc()
		s.logger.Info("Дубликат содержимого, возвращена существующая запись",
			slog.String("file_id", existing.ID.String()),
			slog.String("checksum", sum),
		)
		return existing, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		s.cleanupBlob(key)
		s.logger.Error("Ошибка поиска по checksum", slog.String("error", err.Error()))
		return nil, errInternal("Ошибка обращения к базе метаданных")
	}

	// 5. Превью для изображений. Ошибка не фатальна: запись создаётся
	// без thumbnail_path, загрузка считается успешной.
	var thumbPath *string
	if thumbnail.IsImageMime(mimeType) {
		if tp, thumbErr := s.makeThumbnail(ctx, key); thumbErr != nil {
			s.logger.Warn("Превью не создано",
				slog.String("key", key),
				slog.String("error", thumbErr.Error()),
			)
		} else {
			thumbPath = &tp
		}
	}

	// 6. Коммит метаданных
	rec := &model.FileRecord{
		ID:               id,
		Filename:         filename,
		OriginalFilename: params.OriginalFilename,
		FilePath:         key,
		FileSize:         size,
		MimeType:         mimeType,
		StorageType:      model.StorageType(s.backend.Type()),
		Checksum:         sum,
		ThumbnailPath:    thumbPath,
	}

	created, err := s.repo.CreateFile(ctx, rec)
	if err != nil {
		// Проигрыш гонки параллельных загрузок одинакового содержимого:
		// уникальность checksum сработала после нашей проверки.
		// Откатываем собственный блоб и возвращаем запись-победителя.
		if errors.Is(err, model.ErrDuplicateChecksum) {
			s.cleanupBlob(key)
			if thumbPath != nil {
				s.cleanupBlob(*thumbPath)
			}
			winner, werr := s.repo.FileByChecksum(ctx, sum)
			if werr != nil {
				s.logger.Error("Запись-победитель не найдена после конфликта checksum",
					slog.String("checksum", sum),
					slog.String("error", werr.Error()),
				)
				return nil, errInternal("Ошибка разрешения конфликта дедупликации")
			}
			middleware.OperationsTotal.WithLabelValues("upload", "dedup").Inc()
			s.logger.Info("Конфликт checksum разрешён в пользу параллельной загрузки",
				slog.String("file_id", winner.ID.String()),
				slog.String("checksum", sum),
			)
			return winner, nil
		}

		s.cleanupBlob(key)
		if thumbPath != nil {
			s.cleanupBlob(*thumbPath)
		}
		s.logger.Error("Ошибка вставки записи", slog.String("error", err.Error()))
		middleware.OperationsTotal.WithLabelValues("upload", "error").Inc()
		return nil, errInternal("Ошибка сохранения метаданных")
	}

	middleware.OperationsTotal.WithLabelValues("upload", "success").Inc()
	middleware.UploadBytesTotal.Add(float64(created.FileSize))
	s.logger.Info("Файл загружен",
		slog.String("file_id", created.ID.String()),
		slog.String("filename", created.Filename),
		slog.Int64("size", created.FileSize),
		slog.String("checksum", created.Checksum),
		slog.String("storage_type", string(created.StorageType)),
		slog.Bool("thumbnail", created.HasThumbnail()),
	)

	return created, nil
}

// makeThumbnail читает только что записанный оригинал, генерирует PNG-превью
// и записывает его под детерминированным ключом.
func (s *UploadService) makeThumbnail(ctx context.Context, key string) (string, error) {
	rc, err := s.backend.Get(ctx, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	thumb, size, err := s.thumbs.Generate(rc)
	if err != nil {
		return "", err
	}

	thumbKey := thumbnail.Key(key)
	if _, err := s.backend.Put(ctx, thumbKey, thumb, size); err != nil {
		s.cleanupBlob(thumbKey)
		return "", err
	}
	return thumbKey, nil
}

// cleanupBlob удаляет ключ best-effort. Ошибка логируется, не возвращается:
// блоб без записи безопасен и будет подобран sweep'ом.
func (s *UploadService) cleanupBlob(key string) {
	if err := s.backend.Delete(context.Background(), key); err != nil {
		s.logger.Warn("Не удалось удалить блоб при откате",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// detectContentType нормализует Content-Type из заголовка multipart part.
// Если не указан — используется application/octet-stream.
func detectContentType(contentType string) string {
	if contentType == "" {
		return "application/octet-stream"
	}
	// Убираем параметры (charset и т.д.)
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	return contentType
}

// sanitizeName убирает опасные для путей символы из имени файла.
// Точка сохраняется: расширение нужно в итоговом имени.
func sanitizeName(name string) string {
	name = filepath.Base(filepath.Clean(name))

	var result strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' ||
			(r >= 0x0400 && r <= 0x04FF) { // Кириллица
			result.WriteRune(r)
		}
	}

	out := strings.Trim(result.String(), ".")
	if out == "" {
		return "file"
	}
	if len(out) > 100 {
		out = out[:100]
	}
	return out
}
