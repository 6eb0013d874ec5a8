package zstd

import (
	"io"
	"sync"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

const (
	DefaultLevel = 18
	MinLevel     = 1
	MaxLevel     = 22

	// ZipMethod is the zip compression method id for zstd entries.
	ZipMethod uint16 = zstd.ZipMethodWinZip
)

var (
	// Encoder pools by compression level
	encoderPools = make(map[int]*sync.Pool)
	poolMu       sync.RWMutex
)

// ClampLevel maps out of range levels to DefaultLevel.
func ClampLevel(level int) int {
	if level < MinLevel || level > MaxLevel {
		return DefaultLevel
	}
	return level
}

func getEncoderPool(level int) *sync.Pool {
	poolMu.RLock()
	pool, ok := encoderPools[level]
	poolMu.RUnlock()
	if ok {
		return pool
	}

	poolMu.Lock()
	defer poolMu.Unlock()

	if pool, ok = encoderPools[level]; ok {
		return pool
	}

	pool = &sync.Pool{
		New: func() interface{} {
			enc, _ := zstd.NewWriter(nil,
				zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
				zstd.WithEncoderConcurrency(1),
			)
			return enc
		},
	}
	encoderPools[level] = pool
	return pool
}

// pooledWriter returns its encoder to the pool once the entry is closed.
type pooledWriter struct {
	*zstd.Encoder
	pool *sync.Pool
}

func (w *pooledWriter) Close() error {
	err := w.Encoder.Close()
	w.Encoder.Reset(nil)
	w.pool.Put(w.Encoder)
	return err
}

// ZipCompressor returns a zip entry compressor backed by pooled encoders.
func ZipCompressor(level int) zip.Compressor {
	pool := getEncoderPool(ClampLevel(level))
	return func(w io.Writer) (io.WriteCloser, error) {
		enc := pool.Get().(*zstd.Encoder)
		enc.Reset(w)
		return &pooledWriter{Encoder: enc, pool: pool}, nil
	}
}

// ZipDecompressor returns a zip entry decompressor.
func ZipDecompressor() zip.Decompressor {
	return zstd.ZipDecompressor(zstd.WithDecoderConcurrency(1))
}

// RegisterWriter enables zstd entries on w.
func RegisterWriter(w *zip.Writer, level int) {
	w.RegisterCompressor(ZipMethod, ZipCompressor(level))
}

// RegisterReader enables reading zstd entries from r.
func RegisterReader(r *zip.Reader) {
	r.RegisterDecompressor(ZipMethod, ZipDecompressor())
}
