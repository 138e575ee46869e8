package payload

import (
	"bytes"
	"sync"
)

// Buffer is a sync.Pool-backed bytes.Buffer pool, grounded on the donor
// codec package's identically-named type (packet/pool.go). Every encode
// call borrows one for building a field's length-delimited body before
// it's known how long the body is.
type Buffer struct {
	pool *sync.Pool
}

func newBuffer() *Buffer {
	return &Buffer{
		pool: &sync.Pool{
			New: func() any { return new(bytes.Buffer) },
		},
	}
}

func (b *Buffer) Get() *bytes.Buffer {
	return b.pool.Get().(*bytes.Buffer)
}

func (b *Buffer) Put(buf *bytes.Buffer) {
	buf.Reset()
	b.pool.Put(buf)
}

var bufferPool = newBuffer()

func GetBuffer() *bytes.Buffer {
	return bufferPool.Get()
}

func PutBuffer(buf *bytes.Buffer) {
	bufferPool.Put(buf)
}
