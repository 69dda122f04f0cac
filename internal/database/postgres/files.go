// files.go — операции над таблицей files.
package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/arturkryukov/fileservice/internal/domain/model"
)

// uniqueViolation — код ошибки Postgres "duplicate key value".
const uniqueViolation = "23505"

// fileColumns — полный набор колонок таблицы files в порядке сканирования.
var fileColumns = []string{
	"id", "filename", "original_filename", "file_path", "file_size",
	"mime_type", "storage_type", "checksum", "thumbnail_path",
	"uploaded_at", "updated_at",
}

// CreateFile вставляет новую запись.
// Нарушение уникальности checksum (гонка параллельных загрузок
// одинакового содержимого) возвращается как model.ErrDuplicateChecksum —
// пайплайн обязан обработать его, а не пробросить клиенту.
func (r *Repo) CreateFile(ctx context.Context, rec *model.FileRecord) (*model.FileRecord, error) {
	q := r.qb().Insert("files").
		Columns("id", "filename", "original_filename", "file_path", "file_size",
			"mime_type", "storage_type", "checksum", "thumbnail_path").
		Values(rec.ID, rec.Filename, rec.OriginalFilename, rec.FilePath, rec.FileSize,
			rec.MimeType, rec.StorageType, rec.Checksum, rec.ThumbnailPath).
		Suffix("RETURNING " + columnList())

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("построение запроса: %w", err)
	}

	out, err := scanFile(r.pool.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, model.ErrDuplicateChecksum
		}
		return nil, fmt.Errorf("вставка записи: %w", err)
	}
	return out, nil
}

// FileByID возвращает запись по идентификатору.
func (r *Repo) FileByID(ctx context.Context, id uuid.UUID) (*model.FileRecord, error) {
	return r.selectOne(ctx, sq.Eq{"id": id})
}

// FileByChecksum возвращает запись с данным checksum (дедупликация).
func (r *Repo) FileByChecksum(ctx context.Context, checksum string) (*model.FileRecord, error) {
	return r.selectOne(ctx, sq.Eq{"checksum": checksum})
}

// ListRecent возвращает последние записи, отсортированные
// по uploaded_at по убыванию.
func (r *Repo) ListRecent(ctx context.Context, limit int) ([]*model.FileRecord, error) {
	q := r.qb().Select(fileColumns...).
		From("files").
		OrderBy("uploaded_at DESC").
		Limit(uint64(limit))

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("построение запроса: %w", err)
	}

	rows, err := r.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("выборка списка: %w", err)
	}
	defer rows.Close()

	var res []*model.FileRecord
	for rows.Next() {
		rec, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("сканирование строки: %w", err)
		}
		res = append(res, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("обход строк: %w", err)
	}
	return res, nil
}

// DeleteFile удаляет запись. Отсутствующий id — model.ErrNotFound.
func (r *Repo) DeleteFile(ctx context.Context, id uuid.UUID) error {
	q := r.qb().Delete("files").Where(sq.Eq{"id": id})

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("построение запроса: %w", err)
	}

	tag, err := r.pool.Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("удаление записи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// ReferencedKeys возвращает все ключи хранилища, на которые ссылаются
// записи (file_path и thumbnail_path). Используется orphan sweep.
func (r *Repo) ReferencedKeys(ctx context.Context) (map[string]struct{}, error) {
	q := r.qb().Select("file_path", "thumbnail_path").From("files")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("построение запроса: %w", err)
	}

	rows, err := r.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("выборка ключей: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var filePath string
		var thumbPath *string
		if err := rows.Scan(&filePath, &thumbPath); err != nil {
			return nil, fmt.Errorf("сканирование строки: %w", err)
		}
		keys[filePath] = struct{}{}
		if thumbPath != nil {
			keys[*thumbPath] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("обход строк: %w", err)
	}
	return keys, nil
}

// selectOne выполняет выборку одной записи по условию.
func (r *Repo) selectOne(ctx context.Context, cond sq.Eq) (*model.FileRecord, error) {
	q := r.qb().Select(fileColumns...).From("files").Where(cond).Limit(1)

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("построение запроса: %w", err)
	}

	rec, err := scanFile(r.pool.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("выборка записи: %w", err)
	}
	return rec, nil
}

// rowScanner — общий контракт pgx.Row и pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanFile сканирует строку в FileRecord (порядок — fileColumns).
func scanFile(row rowScanner) (*model.FileRecord, error) {
	var rec model.FileRecord
	err := row.Scan(
		&rec.ID, &rec.Filename, &rec.OriginalFilename, &rec.FilePath, &rec.FileSize,
		&rec.MimeType, &rec.StorageType, &rec.Checksum, &rec.ThumbnailPath,
		&rec.UploadedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// columnList возвращает колонки через запятую для RETURNING.
func columnList() string {
	out := ""
	for i, c := range fileColumns {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}
