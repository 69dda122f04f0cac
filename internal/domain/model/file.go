// Пакет model — доменные модели файлового сервиса.
// FileRecord — единственная сущность: строка таблицы files,
// источник истины о том, какие файлы существуют.
package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StorageType — тип backend'а, в котором лежит содержимое файла.
type StorageType string

const (
	// StorageLocal — локальная файловая система
	StorageLocal StorageType = "local"
	// StorageS3 — S3-совместимое объектное хранилище
	StorageS3 StorageType = "s3"
)

// Ошибки уровня Metadata Store. Репозиторий обязан возвращать именно их,
// чтобы сервисный слой не зависел от драйвера БД.
var (
	// ErrNotFound — запись с таким id не существует.
	ErrNotFound = errors.New("запись не найдена")
	// ErrDuplicateChecksum — нарушение уникальности checksum при вставке.
	// Возникает при гонке параллельных загрузок одинакового содержимого.
	ErrDuplicateChecksum = errors.New("файл с таким checksum уже существует")
)

// FileRecord — метаданные файла. Соответствует строке таблицы files.
// Создаётся только после успешной записи содержимого в хранилище;
// все поля кроме updated_at неизменяемы.
type FileRecord struct {
	// ID — уникальный идентификатор файла (UUID v4)
	ID uuid.UUID

	// Filename — имя файла в хранилище: {id}_{очищенное имя}.
	// Уникально по построению (префикс id).
	Filename string

	// OriginalFilename — имя файла, присланное клиентом. Косметическое.
	OriginalFilename string

	// FilePath — ключ содержимого в backend'е (например files/{filename})
	FilePath string

	// FileSize — фактическое количество записанных байт.
	// Считается при записи, Content-Length клиента не используется.
	FileSize int64

	// MimeType — MIME-тип файла
	MimeType string

	// StorageType — backend, в который записано содержимое
	StorageType StorageType

	// Checksum — hex SHA-256 содержимого, ключ дедупликации
	Checksum string

	// ThumbnailPath — ключ превью в том же backend'е.
	// nil для не-изображений и при ошибке генерации превью.
	ThumbnailPath *string

	// UploadedAt — время загрузки (UTC)
	UploadedAt time.Time

	// UpdatedAt — обновляется триггером БД при любом изменении строки
	UpdatedAt time.Time
}

// UploadResponse — ответ POST /upload.
type UploadResponse struct {
	ID       uuid.UUID `json:"id"`
	Filename string    `json:"filename"`
	URL      string    `json:"url"`
	Size     int64     `json:"size"`
	MimeType string    `json:"mime_type"`
}

// FileResponse — проекция метаданных для GET /files и GET /files/{id}.
// Ссылки download_url/thumbnail_url вычисляются, в БД не хранятся.
type FileResponse struct {
	ID               uuid.UUID `json:"id"`
	Filename         string    `json:"filename"`
	OriginalFilename string    `json:"original_filename"`
	Size             int64     `json:"size"`
	MimeType         string    `json:"mime_type"`
	UploadedAt       time.Time `json:"uploaded_at"`
	DownloadURL      string    `json:"download_url"`
	ThumbnailURL     *string   `json:"thumbnail_url"`
}

// ToUploadResponse строит ответ загрузки из записи.
func (f *FileRecord) ToUploadResponse() UploadResponse {
	return UploadResponse{
		ID:       f.ID,
		Filename: f.Filename,
		URL:      fmt.Sprintf("/files/%s", f.ID),
		Size:     f.FileSize,
		MimeType: f.MimeType,
	}
}

// ToFileResponse строит проекцию метаданных с вычисленными ссылками.
func (f *FileRecord) ToFileResponse() FileResponse {
	resp := FileResponse{
		ID:               f.ID,
		Filename:         f.Filename,
		OriginalFilename: f.OriginalFilename,
		Size:             f.FileSize,
		MimeType:         f.MimeType,
		UploadedAt:       f.UploadedAt,
		DownloadURL:      fmt.Sprintf("/files/%s/download", f.ID),
	}
	if f.ThumbnailPath != nil {
		u := fmt.Sprintf("/files/%s/thumbnail", f.ID)
		resp.ThumbnailURL = &u
	}
	return resp
}

// HasThumbnail проверяет наличие превью у записи.
func (f *FileRecord) HasThumbnail() bool {
	return f.ThumbnailPath != nil && *f.ThumbnailPath != ""
}
