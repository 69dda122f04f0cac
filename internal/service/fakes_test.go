package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arturkryukov/fileservice/internal/domain/model"
	"github.com/arturkryukov/fileservice/internal/storage"
)

// fakeRepo — in-memory реализация MetadataRepo для тестов.
type fakeRepo struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*model.FileRecord
	createN int

	// failCreate — если задано, CreateFile возвращает эту ошибку один раз
	failCreate error
	// failLookup — если задано, FileByChecksum возвращает эту ошибку
	failLookup error
	// lookupMisses — первые N вызовов FileByChecksum отвечают NotFound
	// (симуляция гонки: запись-победитель закоммичена после проверки)
	lookupMisses int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byID: make(map[uuid.UUID]*model.FileRecord)}
}

func (f *fakeRepo) CreateFile(_ context.Context, rec *model.FileRecord) (*model.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.createN++
	if f.failCreate != nil {
		err := f.failCreate
		f.failCreate = nil
		return nil, err
	}

	for _, existing := range f.byID {
		if existing.Checksum == rec.Checksum {
			return nil, model.ErrDuplicateChecksum
		}
	}

	cp := *rec
	cp.UploadedAt = time.Now().UTC()
	cp.UpdatedAt = cp.UploadedAt
	f.byID[cp.ID] = &cp
	return &cp, nil
}

func (f *fakeRepo) FileByID(_ context.Context, id uuid.UUID) (*model.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.byID[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeRepo) FileByChecksum(_ context.Context, checksum string) (*model.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failLookup != nil {
		return nil, f.failLookup
	}
	if f.lookupMisses > 0 {
		f.lookupMisses--
		return nil, model.ErrNotFound
	}
	for _, rec := range f.byID {
		if rec.Checksum == checksum {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, model.ErrNotFound
}

func (f *fakeRepo) ListRecent(_ context.Context, limit int) ([]*model.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	recs := make([]*model.FileRecord, 0, len(f.byID))
	for _, rec := range f.byID {
		cp := *rec
		recs = append(recs, &cp)
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].UploadedAt.After(recs[j].UploadedAt)
	})
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func (f *fakeRepo) DeleteFile(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.byID[id]; !ok {
		return model.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeRepo) ReferencedKeys(_ context.Context) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	keys := make(map[string]struct{})
	for _, rec := range f.byID {
		keys[rec.FilePath] = struct{}{}
		if rec.ThumbnailPath != nil {
			keys[*rec.ThumbnailPath] = struct{}{}
		}
	}
	return keys, nil
}

// fakeObject — объект в fakeBackend.
type fakeObject struct {
	data    []byte
	modTime time.Time
}

// fakeBackend — in-memory реализация storage.Backend для тестов.
type fakeBackend struct {
	mu      sync.Mutex
	objects map[string]*fakeObject

	// failPut — если задано, Put возвращает эту ошибку
	failPut error
	// failGet — если задано, Get возвращает эту ошибку
	failGet error
	// failDelete — если задано, Delete возвращает эту ошибку
	failDelete error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{objects: make(map[string]*fakeObject)}
}

func (f *fakeBackend) Put(_ context.Context, key string, r io.Reader, _ int64) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPut != nil {
		return 0, f.failPut
	}
	f.objects[key] = &fakeObject{data: data, modTime: time.Now()}
	return int64(len(data)), nil
}

func (f *fakeBackend) Get(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failGet != nil {
		return nil, f.failGet
	}
	obj, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (f *fakeBackend) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failDelete != nil {
		return f.failDelete
	}
	delete(f.objects, key)
	return nil
}

func (f *fakeBackend) List(_ context.Context) ([]storage.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	objects := make([]storage.ObjectInfo, 0, len(f.objects))
	for key, obj := range f.objects {
		objects = append(objects, storage.ObjectInfo{
			Key:     key,
			Size:    int64(len(obj.data)),
			ModTime: obj.modTime,
		})
	}
	return objects, nil
}

func (f *fakeBackend) Type() string { return "local" }

// setModTime выставляет возраст объекта (для тестов grace-окна sweep).
func (f *fakeBackend) setModTime(key string, t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if obj, ok := f.objects[key]; ok {
		obj.modTime = t
	}
}

// has проверяет наличие ключа.
func (f *fakeBackend) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

// count возвращает количество объектов.
func (f *fakeBackend) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}
