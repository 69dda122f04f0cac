// Пакет service — бизнес-логика файлового сервиса.
// deps.go — контракты зависимостей сервисного слоя и типизированная
// ошибка операции с HTTP-кодом.
package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	apierrors "github.com/arturkryukov/fileservice/internal/api/errors"
	"github.com/arturkryukov/fileservice/internal/domain/model"
)

// MetadataRepo — контракт Metadata Store. Реализуется postgres.Repo;
// в тестах подменяется in-memory фейком.
type MetadataRepo interface {
	// CreateFile вставляет запись. Гонка по checksum —
	// model.ErrDuplicateChecksum.
	CreateFile(ctx context.Context, rec *model.FileRecord) (*model.FileRecord, error)
	// FileByID возвращает запись или model.ErrNotFound.
	FileByID(ctx context.Context, id uuid.UUID) (*model.FileRecord, error)
	// FileByChecksum возвращает запись с данным checksum или model.ErrNotFound.
	FileByChecksum(ctx context.Context, checksum string) (*model.FileRecord, error)
	// ListRecent возвращает последние записи по uploaded_at DESC.
	ListRecent(ctx context.Context, limit int) ([]*model.FileRecord, error)
	// DeleteFile удаляет запись или возвращает model.ErrNotFound.
	DeleteFile(ctx context.Context, id uuid.UUID) error
	// ReferencedKeys возвращает все ключи, на которые ссылаются записи.
	ReferencedKeys(ctx context.Context) (map[string]struct{}, error)
}

// OpError — ошибка операции с HTTP-кодом и машиночитаемым кодом.
type OpError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// --- Конструкторы типичных ошибок операций ---

func errValidation(format string, args ...any) *OpError {
	return &OpError{StatusCode: 400, Code: apierrors.CodeValidationError, Message: fmt.Sprintf(format, args...)}
}

func errNotFound(format string, args ...any) *OpError {
	return &OpError{StatusCode: 404, Code: apierrors.CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func errFileTooLarge(format string, args ...any) *OpError {
	return &OpError{StatusCode: 413, Code: apierrors.CodeFileTooLarge, Message: fmt.Sprintf(format, args...)}
}

func errUnsupportedMedia(format string, args ...any) *OpError {
	return &OpError{StatusCode: 415, Code: apierrors.CodeUnsupportedMediaType, Message: fmt.Sprintf(format, args...)}
}

func errBackendUnavailable(format string, args ...any) *OpError {
	return &OpError{StatusCode: 502, Code: apierrors.CodeBackendUnavailable, Message: fmt.Sprintf(format, args...)}
}

func errStorageInconsistency(format string, args ...any) *OpError {
	return &OpError{StatusCode: 500, Code: apierrors.CodeStorageInconsistency, Message: fmt.Sprintf(format, args...)}
}

func errInternal(format string, args ...any) *OpError {
	return &OpError{StatusCode: 500, Code: apierrors.CodeInternalError, Message: fmt.Sprintf(format, args...)}
}
