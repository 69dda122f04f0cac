// Пакет storage — абстракция над физическим хранилищем содержимого файлов.
// Две реализации: localfs (локальный диск) и s3 (S3-совместимое хранилище).
// Backend выбирается один раз при старте процесса.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// Ошибки backend'а. Реализации обязаны оборачивать свои ошибки
// в эти sentinel-значения (%w), чтобы вызывающий код различал
// "ключа нет" и "хранилище недоступно".
var (
	// ErrNotFound — ключ отсутствует в хранилище.
	ErrNotFound = errors.New("ключ не найден в хранилище")
	// ErrUnavailable — хранилище недоступно (сеть, I/O).
	ErrUnavailable = errors.New("хранилище недоступно")
)

// ObjectInfo — сведения об объекте в хранилище. Используется orphan sweep.
type ObjectInfo struct {
	// Key — ключ объекта
	Key string
	// Size — размер в байтах
	Size int64
	// ModTime — время последней модификации
	ModTime time.Time
}

// Backend — единый контракт хранилища содержимого.
// Ключ непрозрачен для вызывающего кода: гарантируется только уникальность.
type Backend interface {
	// Put записывает поток под ключом key и возвращает количество
	// записанных байт. size — подсказка (может быть -1, если неизвестен);
	// реализация не должна буферизовать объект целиком.
	Put(ctx context.Context, key string, r io.Reader, size int64) (int64, error)

	// Get открывает поток чтения содержимого по ключу.
	// Отсутствующий ключ — ErrNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete удаляет ключ. Удаление отсутствующего ключа — не ошибка.
	Delete(ctx context.Context, key string) error

	// List возвращает все объекты хранилища (для фоновой сверки).
	List(ctx context.Context) ([]ObjectInfo, error)

	// Type возвращает тег backend'а: "local" или "s3".
	Type() string
}
