// Пакет thumbnail — генерация превью для изображений.
// Декодирует оригинал, вписывает в ограничивающий квадрат с сохранением
// пропорций (без увеличения) и перекодирует в PNG независимо от
// исходного формата.
package thumbnail

import (
	"bytes"
	"fmt"
	"image/png"
	"io"
	"path"
	"strings"

	"github.com/disintegration/imaging"
)

// ErrDecodeFailed — входные байты не распознаны как изображение
// (битый файл или неподдерживаемая кодировка). Не фатальная ошибка:
// загрузка файла всё равно завершается успешно, превью отсутствует.
type ErrDecodeFailed struct {
	Err error
}

func (e *ErrDecodeFailed) Error() string {
	return fmt.Sprintf("декодирование изображения: %v", e.Err)
}

func (e *ErrDecodeFailed) Unwrap() error { return e.Err }

// Generator — генератор превью с фиксированной максимальной стороной.
type Generator struct {
	// maxDim — максимальный размер стороны превью в пикселях
	maxDim int
}

// New создаёт генератор превью.
func New(maxDim int) *Generator {
	return &Generator{maxDim: maxDim}
}

// IsImageMime сообщает, поддерживается ли MIME-тип генератором.
func IsImageMime(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

// Key выводит ключ превью из ключа оригинала детерминированно:
// files/{filename} → thumbnails/{filename}_thumb.png.
func Key(originalKey string) string {
	return "thumbnails/" + path.Base(originalKey) + "_thumb.png"
}

// Generate читает оригинал из r и возвращает PNG-превью.
// Сторона результата не превышает maxDim; изображение меньше maxDim
// не увеличивается.
func (g *Generator) Generate(r io.Reader) (io.Reader, int64, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, 0, &ErrDecodeFailed{Err: err}
	}

	// Fit сохраняет пропорции и не увеличивает изображение
	thumb := imaging.Fit(img, g.maxDim, g.maxDim, imaging.Lanczos)

	var buf bytes.Buffer
	if err := png.Encode(&buf, thumb); err != nil {
		return nil, 0, fmt.Errorf("кодирование превью в PNG: %w", err)
	}

	return &buf, int64(buf.Len()), nil
}
