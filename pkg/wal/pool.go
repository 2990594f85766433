package wal

import (
	"bytes"
	"sync"
)

// bufferPool reuses the scratch buffers records are framed into before
// they hit the sink, avoiding an allocation on every append.
var bufferPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

func acquireBuffer() *bytes.Buffer {
	b := bufferPool.Get().(*bytes.Buffer)
	b.Reset()
	return b
}

func releaseBuffer(b *bytes.Buffer) {
	bufferPool.Put(b)
}
