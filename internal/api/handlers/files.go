// files.go — HTTP handlers файловых операций.
// Upload, Download, Thumbnail, List, Get metadata, Delete.
package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/arturkryukov/fileservice/internal/api/errors"
	"github.com/arturkryukov/fileservice/internal/domain/model"
	"github.com/arturkryukov/fileservice/internal/service"
)

// FilesHandler — обработчик файловых endpoints.
type FilesHandler struct {
	uploadSvc   *service.UploadService
	retrieveSvc *service.RetrieveService
	maxFileSize int64
}

// NewFilesHandler создаёт обработчик файловых endpoints.
func NewFilesHandler(
	uploadSvc *service.UploadService,
	retrieveSvc *service.RetrieveService,
	maxFileSize int64,
) *FilesHandler {
	return &FilesHandler{
		uploadSvc:   uploadSvc,
		retrieveSvc: retrieveSvc,
		maxFileSize: maxFileSize,
	}
}

// Upload обрабатывает POST /upload.
// Multipart form: file (обязательно), filename (опционально).
// Дубликат по содержимому возвращает существующую запись с тем же 201.
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	// Ограничиваем тело запроса: лимит файла + запас на заголовки формы
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+1<<20)

	reader, err := r.MultipartReader()
	if err != nil {
		errors.ValidationError(w, fmt.Sprintf("Ожидается multipart/form-data: %s", err.Error()))
		return
	}

	// Ищем part с именем file, попутно собирая поле filename.
	// Потоковое чтение: файл не буферизуется целиком в памяти.
	var requestedName string
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			errors.ValidationError(w, "Поле 'file' обязательно")
			return
		}
		if err != nil {
			errors.ValidationError(w, fmt.Sprintf("Ошибка чтения multipart: %s", err.Error()))
			return
		}

		switch part.FormName() {
		case "filename":
			buf, rerr := io.ReadAll(io.LimitReader(part, 1024))
			part.Close()
			if rerr != nil {
				errors.ValidationError(w, "Ошибка чтения поля filename")
				return
			}
			requestedName = string(buf)
			continue
		case "file":
			defer part.Close()
			rec, upErr := h.uploadSvc.Upload(r.Context(), service.UploadParams{
				Reader:           part,
				OriginalFilename: part.FileName(),
				DeclaredMime:     part.Header.Get("Content-Type"),
				RequestedName:    requestedName,
			})
			if upErr != nil {
				errors.WriteError(w, upErr.StatusCode, upErr.Code, upErr.Message)
				return
			}
			writeJSON(w, http.StatusCreated, rec.ToUploadResponse())
			return
		default:
			part.Close()
		}
	}
}

// Download обрабатывает GET /files/{id}/download.
// Отдаёт оригинальное содержимое с Content-Disposition: attachment.
func (h *FilesHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, ok := parseFileID(w, r)
	if !ok {
		return
	}

	rc, rec, opErr := h.retrieveSvc.OpenOriginal(r.Context(), id)
	if opErr != nil {
		errors.WriteError(w, opErr.StatusCode, opErr.Code, opErr.Message)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", rec.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.OriginalFilename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", rec.FileSize))
	w.Header().Set("ETag", fmt.Sprintf("%q", rec.Checksum))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}

// Thumbnail обрабатывает GET /files/{id}/thumbnail.
// Превью всегда PNG независимо от формата оригинала.
func (h *FilesHandler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	id, ok := parseFileID(w, r)
	if !ok {
		return
	}

	rc, _, opErr := h.retrieveSvc.OpenThumbnail(r.Context(), id)
	if opErr != nil {
		errors.WriteError(w, opErr.StatusCode, opErr.Code, opErr.Message)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}

// GetMetadata обрабатывает GET /files/{id}.
func (h *FilesHandler) GetMetadata(w http.ResponseWriter, r *http.Request) {
	id, ok := parseFileID(w, r)
	if !ok {
		return
	}

	rec, opErr := h.retrieveSvc.Metadata(r.Context(), id)
	if opErr != nil {
		errors.WriteError(w, opErr.StatusCode, opErr.Code, opErr.Message)
		return
	}

	writeJSON(w, http.StatusOK, rec.ToFileResponse())
}

// List обрабатывает GET /files.
// Возвращает последние загруженные файлы, новые первыми.
func (h *FilesHandler) List(w http.ResponseWriter, r *http.Request) {
	recs, opErr := h.retrieveSvc.ListRecent(r.Context())
	if opErr != nil {
		errors.WriteError(w, opErr.StatusCode, opErr.Code, opErr.Message)
		return
	}

	items := make([]model.FileResponse, 0, len(recs))
	for _, rec := range recs {
		items = append(items, rec.ToFileResponse())
	}
	writeJSON(w, http.StatusOK, items)
}

// Delete обрабатывает DELETE /files/{id}.
func (h *FilesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseFileID(w, r)
	if !ok {
		return
	}

	if opErr := h.retrieveSvc.Delete(r.Context(), id); opErr != nil {
		errors.WriteError(w, opErr.StatusCode, opErr.Code, opErr.Message)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// parseFileID извлекает и валидирует UUID из пути /files/{id}.
func parseFileID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		errors.ValidationError(w, fmt.Sprintf("Некорректный идентификатор файла %q", raw))
		return uuid.Nil, false
	}
	return id, true
}

// writeJSON — вспомогательная функция для записи JSON-ответа.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}
