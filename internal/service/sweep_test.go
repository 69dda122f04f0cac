package service

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

// TestSweep_DeletesOrphans проверяет удаление несвязанных блобов.
func TestSweep_DeletesOrphans(t *testing.T) {
	repo := newFakeRepo()
	backend := newFakeBackend()
	uploadSvc := newUploadService(repo, backend)

	// Связанный блоб через обычную загрузку
	rec, opErr := uploadSvc.Upload(context.Background(), UploadParams{
		Reader:           strings.NewReader("живой файл"),
		OriginalFilename: "alive.txt",
		DeclaredMime:     "text/plain",
	})
	if opErr != nil {
		t.Fatalf("ошибка загрузки: %v", opErr)
	}

	// Осиротевший блоб: есть в хранилище, нет в метаданных
	if _, err := backend.Put(context.Background(), "files/orphan.bin", bytes.NewReader([]byte("сирота")), -1); err != nil {
		t.Fatalf("ошибка записи orphan: %v", err)
	}

	// Состариваем оба объекта за grace-окно
	old := time.Now().Add(-2 * time.Hour)
	backend.setModTime(rec.FilePath, old)
	backend.setModTime("files/orphan.bin", old)

	sw := NewSweepService(backend, repo, time.Hour, 15*time.Minute, testLogger())
	result := sw.RunOnce(context.Background())

	if result.Deleted != 1 {
		t.Errorf("удалено: ожидалось 1, получено %d", result.Deleted)
	}
	if backend.has("files/orphan.bin") {
		t.Error("осиротевший блоб должен быть удалён")
	}
	if !backend.has(rec.FilePath) {
		t.Error("связанный блоб не должен удаляться")
	}
}

// TestSweep_KeepsThumbnails проверяет, что превью со ссылкой из записи
// не считается сиротой.
func TestSweep_KeepsThumbnails(t *testing.T) {
	repo := newFakeRepo()
	backend := newFakeBackend()
	uploadSvc := newUploadService(repo, backend)

	rec, opErr := uploadSvc.Upload(context.Background(), UploadParams{
		Reader:           bytes.NewReader(pngBytes(t, 300, 300)),
		OriginalFilename: "pic.png",
		DeclaredMime:     "image/png",
	})
	if opErr != nil {
		t.Fatalf("ошибка загрузки: %v", opErr)
	}
	if rec.ThumbnailPath == nil {
		t.Fatal("превью не создано")
	}

	old := time.Now().Add(-2 * time.Hour)
	backend.setModTime(rec.FilePath, old)
	backend.setModTime(*rec.ThumbnailPath, old)

	sw := NewSweepService(backend, repo, time.Hour, 15*time.Minute, testLogger())
	result := sw.RunOnce(context.Background())

	if result.Deleted != 0 {
		t.Errorf("удалено: ожидалось 0, получено %d", result.Deleted)
	}
	if !backend.has(*rec.ThumbnailPath) {
		t.Error("превью со ссылкой не должно удаляться")
	}
}

// TestSweep_GraceWindow проверяет, что молодые блобы не трогаются:
// их запись метаданных могла ещё не закоммититься.
func TestSweep_GraceWindow(t *testing.T) {
	repo := newFakeRepo()
	backend := newFakeBackend()

	if _, err := backend.Put(context.Background(), "files/inflight.bin", bytes.NewReader([]byte("загрузка в процессе")), -1); err != nil {
		t.Fatalf("ошибка записи: %v", err)
	}

	sw := NewSweepService(backend, repo, time.Hour, 15*time.Minute, testLogger())
	result := sw.RunOnce(context.Background())

	if result.Deleted != 0 {
		t.Errorf("удалено: ожидалось 0, получено %d", result.Deleted)
	}
	if result.Skipped != 1 {
		t.Errorf("пропущено: ожидалось 1, получено %d", result.Skipped)
	}
	if !backend.has("files/inflight.bin") {
		t.Error("молодой блоб не должен удаляться")
	}
}

// TestSweep_OrphanAfterDeleteFailure проверяет полный цикл: отказ удаления
// блоба при Delete оставляет сироту, последующий sweep её подбирает.
func TestSweep_OrphanAfterDeleteFailure(t *testing.T) {
	repo := newFakeRepo()
	backend := newFakeBackend()
	uploadSvc := newUploadService(repo, backend)
	retrieveSvc := NewRetrieveService(backend, repo, 100, testLogger())

	rec, opErr := uploadSvc.Upload(context.Background(), UploadParams{
		Reader:           strings.NewReader("будущая сирота"),
		OriginalFilename: "soon-orphan.txt",
		DeclaredMime:     "text/plain",
	})
	if opErr != nil {
		t.Fatalf("ошибка загрузки: %v", opErr)
	}

	// Удаление с отказавшим backend: строка удалена, блоб остался
	backend.failDelete = context.DeadlineExceeded
	if opErr := retrieveSvc.Delete(context.Background(), rec.ID); opErr != nil {
		t.Fatalf("ошибка удаления: %v", opErr)
	}
	backend.failDelete = nil

	if !backend.has(rec.FilePath) {
		t.Fatal("блоб должен остаться после отказа удаления")
	}

	// Состариваем и убираем sweep'ом
	backend.setModTime(rec.FilePath, time.Now().Add(-2*time.Hour))

	sw := NewSweepService(backend, repo, time.Hour, 15*time.Minute, testLogger())
	result := sw.RunOnce(context.Background())

	if result.Deleted != 1 {
		t.Errorf("удалено: ожидалось 1, получено %d", result.Deleted)
	}
	if backend.has(rec.FilePath) {
		t.Error("сирота должна быть удалена sweep'ом")
	}
}
