// Пакет localfs — backend хранения на локальной файловой системе.
// Ключ отображается в путь под корневой директорией. Запись выполняется
// по паттерну temp файл → fsync → atomic rename: обрыв посреди записи
// никогда не оставляет частично записанный файл под итоговым ключом.
package localfs

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/arturkryukov/fileservice/internal/storage"
)

// Backend — локальное файловое хранилище.
type Backend struct {
	// root — корневая директория хранения (FS_DATA_DIR)
	root string
}

// New создаёт локальный backend. Создаёт корневую директорию,
// если она не существует.
func New(root string) (*Backend, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", root, err)
	}
	return &Backend{root: root}, nil
}

// Type возвращает тег backend'а.
func (b *Backend) Type() string { return "local" }

// fullPath отображает ключ в абсолютный путь под root.
// Ключ нормализуется, выход за пределы root запрещён.
func (b *Backend) fullPath(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("недопустимый ключ %q", key)
	}
	return filepath.Join(b.root, clean), nil
}

// Put записывает поток под ключом key.
//
// Паттерн: создание родительских директорий → temp файл → запись →
// fsync → atomic rename. При любой ошибке temp файл удаляется.
func (b *Backend) Put(ctx context.Context, key string, r io.Reader, _ int64) (int64, error) {
	fullPath, err := b.fullPath(key)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return 0, fmt.Errorf("%w: создание директории: %s", storage.ErrUnavailable, err)
	}

	tmpPath := fullPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("%w: создание временного файла: %s", storage.ErrUnavailable, err)
	}

	size, err := io.Copy(f, contextReader{ctx: ctx, r: r})
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("%w: запись данных: %s", storage.ErrUnavailable, err)
	}

	// fsync для гарантии записи на диск до rename
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("%w: fsync: %s", storage.ErrUnavailable, err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("%w: закрытие файла: %s", storage.ErrUnavailable, err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("%w: атомарное переименование: %s", storage.ErrUnavailable, err)
	}

	return size, nil
}

// Get открывает файл для чтения. Вызывающий код обязан закрыть ReadCloser.
func (b *Backend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	fullPath, err := b.fullPath(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return nil, fmt.Errorf("%w: открытие %s: %s", storage.ErrUnavailable, key, err)
	}
	return f, nil
}

// Delete удаляет файл. Идемпотентен: отсутствующий ключ — не ошибка.
func (b *Backend) Delete(ctx context.Context, key string) error {
	fullPath, err := b.fullPath(key)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: удаление %s: %s", storage.ErrUnavailable, key, err)
	}
	return nil
}

// List обходит root и возвращает все объекты.
// Временные файлы (*.tmp) незавершённых записей пропускаются.
func (b *Backend) List(ctx context.Context) ([]storage.ObjectInfo, error) {
	var objects []storage.ObjectInfo

	err := filepath.WalkDir(b.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || strings.HasSuffix(path, ".tmp") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(b.root, path)
		if err != nil {
			return err
		}

		objects = append(objects, storage.ObjectInfo{
			Key:     filepath.ToSlash(rel),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: обход директории данных: %s", storage.ErrUnavailable, err)
	}

	return objects, nil
}

// contextReader прерывает чтение при отмене контекста
// (клиент оборвал загрузку).
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
