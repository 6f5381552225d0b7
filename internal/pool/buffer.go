// Package pool provides memory management optimizations.
// Response bodies are copied through pooled buffers so that large batches of
// concurrent fetches do not each allocate their own scratch space.
package pool

import (
	"bytes"
	"io"
	"sync"
)

const (
	// SmallBufferSize defines the size for small buffers (4KB)
	SmallBufferSize = 4 * 1024
	// MediumBufferSize defines the size for medium buffers (64KB)
	MediumBufferSize = 64 * 1024
	// LargeBufferSize defines the size for large buffers (1MB)
	LargeBufferSize = 1024 * 1024
)

// BufferPool hands out copy buffers in three size classes.
type BufferPool struct {
	small  *sync.Pool
	medium *sync.Pool
	large  *sync.Pool
}

func sizedPool(size int) *sync.Pool {
	return &sync.Pool{
		New: func() any {
			buf := make([]byte, size)
			return &buf
		},
	}
}

// NewBufferPool creates a new buffer pool with default sizes.
func NewBufferPool() *BufferPool {
	return &BufferPool{
		small:  sizedPool(SmallBufferSize),
		medium: sizedPool(MediumBufferSize),
		large:  sizedPool(LargeBufferSize),
	}
}

// classFor picks the pool for a transfer of the given expected size.
// Unknown sizes (< 0) get a medium buffer.
func (bp *BufferPool) classFor(sizeHint int64) *sync.Pool {
	switch {
	case sizeHint < 0:
		return bp.medium
	case sizeHint <= SmallBufferSize:
		return bp.small
	case sizeHint <= MediumBufferSize:
		return bp.medium
	default:
		return bp.large
	}
}

// Get returns a full-length buffer suited to a transfer of sizeHint bytes.
// The caller must hand it back with Put.
func (bp *BufferPool) Get(sizeHint int64) *[]byte {
	return bp.classFor(sizeHint).Get().(*[]byte)
}

// Put returns a buffer to the pool matching its capacity.
// Buffers of any other capacity are dropped.
func (bp *BufferPool) Put(buf *[]byte) {
	if buf == nil {
		return
	}
	switch cap(*buf) {
	case SmallBufferSize:
		bp.small.Put(buf)
	case MediumBufferSize:
		bp.medium.Put(buf)
	case LargeBufferSize:
		bp.large.Put(buf)
	}
}

// Copy copies src to dst through a pooled buffer.
func (bp *BufferPool) Copy(dst io.Writer, src io.Reader, sizeHint int64) (int64, error) {
	buf := bp.Get(sizeHint)
	defer bp.Put(buf)
	// Hide ReaderFrom/WriterTo so io.CopyBuffer actually uses buf.
	return io.CopyBuffer(writerOnly{dst}, readerOnly{src}, *buf)
}

// MaxPrealloc caps how much ReadAll reserves from a size hint. Peers report
// sizes; the buffer only grows past this as bytes actually arrive.
const MaxPrealloc = 64 << 20

// ReadAll reads r to EOF. A known sizeHint sizes the result up front, up to
// MaxPrealloc.
func (bp *BufferPool) ReadAll(r io.Reader, sizeHint int64) ([]byte, error) {
	var out bytes.Buffer
	if sizeHint > 0 {
		out.Grow(int(min(sizeHint, MaxPrealloc)))
	}
	if _, err := bp.Copy(&out, r, sizeHint); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

type writerOnly struct{ io.Writer }

type readerOnly struct{ io.Reader }

// Global buffer pool instance for use throughout the module.
var globalBufferPool = NewBufferPool()

// Copy copies src to dst through a buffer from the global pool.
func Copy(dst io.Writer, src io.Reader, sizeHint int64) (int64, error) {
	return globalBufferPool.Copy(dst, src, sizeHint)
}

// ReadAll reads r to EOF using the global pool.
func ReadAll(r io.Reader, sizeHint int64) ([]byte, error) {
	return globalBufferPool.ReadAll(r, sizeHint)
}
