// Пакет checksum — потоковый подсчёт SHA-256 с подсчётом байт.
// Поток проходит через хэш по пути в хранилище за один проход:
// большие файлы не буферизуются и не читаются дважды.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// Reader оборачивает io.Reader: каждый прочитанный байт попадает
// в SHA-256 и учитывается в счётчике.
type Reader struct {
	tee   io.Reader
	h     hash.Hash
	count int64
}

// NewReader создаёт подсчитывающий reader поверх r.
func NewReader(r io.Reader) *Reader {
	h := sha256.New()
	return &Reader{
		tee: io.TeeReader(r, h),
		h:   h,
	}
}

// Read реализует io.Reader.
func (cr *Reader) Read(p []byte) (int, error) {
	n, err := cr.tee.Read(p)
	cr.count += int64(n)
	return n, err
}

// Sum возвращает hex-строку SHA-256 прочитанных байт.
// Вызывается только после подтверждённого завершения записи в хранилище.
func (cr *Reader) Sum() string {
	return hex.EncodeToString(cr.h.Sum(nil))
}

// Count возвращает фактическое количество прочитанных байт.
// Это значение авторитетно, Content-Length клиента — нет.
func (cr *Reader) Count() int64 {
	return cr.count
}
