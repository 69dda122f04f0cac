// Пакет s3 — backend хранения в S3-совместимом объектном хранилище
// (AWS S3, MinIO). Потоковая запись без буферизации объекта целиком.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/arturkryukov/fileservice/internal/storage"
)

// Config — параметры подключения к S3.
type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Backend — S3-хранилище на базе MinIO-клиента.
// Клиент потокобезопасен, состояние per-call отсутствует.
type Backend struct {
	cl     *minio.Client
	bucket string
}

// New создаёт S3 backend и гарантирует существование bucket'а.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Backend, error) {
	cl, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
		// MinIO требует path-style адресацию
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("создание S3 клиента: %w", err)
	}

	b := &Backend{cl: cl, bucket: cfg.Bucket}

	exists, err := cl.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("%w: проверка bucket %s: %s", storage.ErrUnavailable, cfg.Bucket, err)
	}
	if !exists {
		if err := cl.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("%w: создание bucket %s: %s", storage.ErrUnavailable, cfg.Bucket, err)
		}
		logger.Info("S3 bucket создан", slog.String("bucket", cfg.Bucket))
	}

	return b, nil
}

// Type возвращает тег backend'а.
func (b *Backend) Type() string { return "s3" }

// Put загружает поток под ключом key. size = -1 включает потоковую
// multipart-загрузку: объект не буферизуется в памяти целиком.
func (b *Backend) Put(ctx context.Context, key string, r io.Reader, size int64) (int64, error) {
	info, err := b.cl.PutObject(ctx, b.bucket, key, r, size, minio.PutObjectOptions{})
	if err != nil {
		return 0, wrapErr("put", key, err)
	}
	return info.Size, nil
}

// Get открывает поток чтения объекта. Первый Read выполняет запрос,
// поэтому отсутствие ключа проверяется через Stat.
func (b *Backend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if _, err := b.cl.StatObject(ctx, b.bucket, key, minio.StatObjectOptions{}); err != nil {
		return nil, wrapErr("stat", key, err)
	}

	obj, err := b.cl.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, wrapErr("get", key, err)
	}
	return obj, nil
}

// Delete удаляет объект. Идемпотентен: S3 не считает удаление
// отсутствующего ключа ошибкой.
func (b *Backend) Delete(ctx context.Context, key string) error {
	if err := b.cl.RemoveObject(ctx, b.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return wrapErr("delete", key, err)
	}
	return nil
}

// List возвращает все объекты bucket'а.
func (b *Backend) List(ctx context.Context) ([]storage.ObjectInfo, error) {
	var objects []storage.ObjectInfo

	for obj := range b.cl.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return nil, wrapErr("list", "", obj.Err)
		}
		objects = append(objects, storage.ObjectInfo{
			Key:     obj.Key,
			Size:    obj.Size,
			ModTime: obj.LastModified,
		})
	}

	return objects, nil
}

// wrapErr переводит ошибки MinIO в sentinel-ошибки пакета storage.
// NoSuchKey — ErrNotFound, всё остальное (сеть, таймауты) — ErrUnavailable.
func wrapErr(op, key string, err error) error {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		if resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
			return fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
	}
	return fmt.Errorf("%w: s3 %s %s: %s", storage.ErrUnavailable, op, key, err)
}
