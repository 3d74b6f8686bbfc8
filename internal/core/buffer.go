// Package core holds small infrastructure shared by the decode pipeline
// that doesn't belong to any one domain package.
package core

import (
	"bytes"
	"sync"
)

var bufferPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, 1024))
	},
}

// PooledBuffer is a bytes.Buffer borrowed from a shared pool. Every blob
// and block decoded from a PBF file needs a scratch buffer of roughly the
// same size, so reusing them avoids a fresh allocation per block.
type PooledBuffer struct {
	*bytes.Buffer
}

func NewPooledBuffer() *PooledBuffer {
	return &PooledBuffer{Buffer: bufferPool.Get().(*bytes.Buffer)}
}

func (b *PooledBuffer) Close() error {
	b.Reset()
	bufferPool.Put(b.Buffer)

	return nil
}
