package service

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/arturkryukov/fileservice/internal/api/errors"
)

// uploadFixture загружает файл через UploadService и возвращает сервисы.
func uploadFixture(t *testing.T, content, filename, mime string) (*RetrieveService, *fakeRepo, *fakeBackend, uuid.UUID) {
	t.Helper()

	repo := newFakeRepo()
	backend := newFakeBackend()
	uploadSvc := newUploadService(repo, backend)

	rec, opErr := uploadSvc.Upload(context.Background(), UploadParams{
		Reader:           strings.NewReader(content),
		OriginalFilename: filename,
		DeclaredMime:     mime,
	})
	if opErr != nil {
		t.Fatalf("ошибка загрузки fixture: %v", opErr)
	}

	return NewRetrieveService(backend, repo, 100, testLogger()), repo, backend, rec.ID
}

// TestMetadata проверяет выдачу метаданных.
func TestMetadata(t *testing.T) {
	svc, _, _, id := uploadFixture(t, "содержимое", "doc.txt", "text/plain")

	rec, opErr := svc.Metadata(context.Background(), id)
	if opErr != nil {
		t.Fatalf("ошибка чтения метаданных: %v", opErr)
	}
	if rec.ID != id {
		t.Errorf("ID: ожидалось %s, получено %s", id, rec.ID)
	}
	if rec.OriginalFilename != "doc.txt" {
		t.Errorf("имя: получено %s", rec.OriginalFilename)
	}
}

// TestMetadata_NotFound проверяет 404 для несуществующего файла.
func TestMetadata_NotFound(t *testing.T) {
	svc, _, _, _ := uploadFixture(t, "x", "a.txt", "text/plain")

	_, opErr := svc.Metadata(context.Background(), uuid.New())
	if opErr == nil {
		t.Fatal("ожидалась ошибка")
	}
	if opErr.StatusCode != http.StatusNotFound {
		t.Errorf("статус: ожидалось 404, получено %d", opErr.StatusCode)
	}
}

// TestOpenOriginal проверяет roundtrip содержимого.
func TestOpenOriginal(t *testing.T) {
	content := "данные для скачивания"
	svc, _, _, id := uploadFixture(t, content, "dl.txt", "text/plain")

	rc, rec, opErr := svc.OpenOriginal(context.Background(), id)
	if opErr != nil {
		t.Fatalf("ошибка открытия: %v", opErr)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if string(data) != content {
		t.Error("содержимое не совпадает с загруженным")
	}
	if rec.OriginalFilename != "dl.txt" {
		t.Errorf("имя: получено %s", rec.OriginalFilename)
	}
}

// TestOpenOriginal_MissingBlob проверяет различение 404 и рассогласования:
// запись есть, блоб потерян — это STORAGE_INCONSISTENCY, не NOT_FOUND.
func TestOpenOriginal_MissingBlob(t *testing.T) {
	svc, repo, backend, id := uploadFixture(t, "x", "lost.txt", "text/plain")

	rec, err := repo.FileByID(context.Background(), id)
	if err != nil {
		t.Fatalf("ошибка чтения записи: %v", err)
	}
	if err := backend.Delete(context.Background(), rec.FilePath); err != nil {
		t.Fatalf("ошибка удаления блоба: %v", err)
	}

	_, _, opErr := svc.OpenOriginal(context.Background(), id)
	if opErr == nil {
		t.Fatal("ожидалась ошибка")
	}
	if opErr.Code != errors.CodeStorageInconsistency {
		t.Errorf("код: ожидалось %s, получено %s", errors.CodeStorageInconsistency, opErr.Code)
	}
	if opErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("статус: ожидалось 500, получено %d", opErr.StatusCode)
	}
}

// TestOpenThumbnail_NoThumbnail проверяет честный 404 для файла без превью.
func TestOpenThumbnail_NoThumbnail(t *testing.T) {
	svc, _, _, id := uploadFixture(t, "просто текст", "plain.txt", "text/plain")

	_, _, opErr := svc.OpenThumbnail(context.Background(), id)
	if opErr == nil {
		t.Fatal("ожидалась ошибка")
	}
	if opErr.StatusCode != http.StatusNotFound {
		t.Errorf("статус: ожидалось 404, получено %d", opErr.StatusCode)
	}
}

// TestListRecent проверяет листинг последних файлов с лимитом.
func TestListRecent(t *testing.T) {
	repo := newFakeRepo()
	backend := newFakeBackend()
	uploadSvc := newUploadService(repo, backend)
	svc := NewRetrieveService(backend, repo, 2, testLogger())

	for _, name := range []string{"one.txt", "two.txt", "three.txt"} {
		if _, opErr := uploadSvc.Upload(context.Background(), UploadParams{
			Reader:           strings.NewReader("содержимое " + name),
			OriginalFilename: name,
			DeclaredMime:     "text/plain",
		}); opErr != nil {
			t.Fatalf("ошибка загрузки %s: %v", name, opErr)
		}
	}

	recs, opErr := svc.ListRecent(context.Background())
	if opErr != nil {
		t.Fatalf("ошибка листинга: %v", opErr)
	}
	if len(recs) != 2 {
		t.Errorf("ожидалось 2 записи (лимит), получено %d", len(recs))
	}
}

// TestDelete проверяет удаление: запись и блоб исчезают.
func TestDelete(t *testing.T) {
	svc, repo, backend, id := uploadFixture(t, "удали меня", "del.txt", "text/plain")

	if opErr := svc.Delete(context.Background(), id); opErr != nil {
		t.Fatalf("ошибка удаления: %v", opErr)
	}

	// Запись удалена
	if _, err := repo.FileByID(context.Background(), id); err == nil {
		t.Error("запись должна быть удалена")
	}
	// Блоб удалён
	if backend.count() != 0 {
		t.Errorf("хранилище должно быть пустым, объектов: %d", backend.count())
	}

	// Повторное удаление — 404
	opErr := svc.Delete(context.Background(), id)
	if opErr == nil || opErr.StatusCode != http.StatusNotFound {
		t.Errorf("повторное удаление: ожидался 404, получено %v", opErr)
	}
}

// TestDelete_BlobFailureStillInvisible проверяет порядок удаления:
// строка удаляется первой, отказ удаления блоба не делает файл видимым.
func TestDelete_BlobFailureStillInvisible(t *testing.T) {
	svc, repo, backend, id := uploadFixture(t, "данные", "orphan.txt", "text/plain")

	backend.failDelete = io.ErrClosedPipe

	if opErr := svc.Delete(context.Background(), id); opErr != nil {
		t.Fatalf("отказ удаления блоба не должен быть ошибкой API: %v", opErr)
	}

	// Файл невидим для API несмотря на оставшийся блоб
	if _, opErr := svc.Metadata(context.Background(), id); opErr == nil || opErr.StatusCode != http.StatusNotFound {
		t.Error("после удаления строки файл должен быть невидим")
	}
	if _, err := repo.FileByID(context.Background(), id); err == nil {
		t.Error("строка метаданных должна быть удалена")
	}
	// Блоб остался (подберёт sweep)
	if backend.count() == 0 {
		t.Error("блоб должен остаться при отказе удаления")
	}
}
