package packets

import "sync"

// bufferPool recycles byte slices used while reading and encoding
// packets. 4KB covers the overwhelming majority of control packets;
// larger PUBLISH payloads fall back to a direct allocation.
var bufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, 4096)
		return &buf
	},
}

// GetBuffer returns a buffer of at least size bytes from the pool.
func GetBuffer(size int) *[]byte {
	if size > 4096 {
		buf := make([]byte, size)
		return &buf
	}
	return bufferPool.Get().(*[]byte)
}

// PutBuffer returns buf to the pool. Buffers that were allocated
// directly (not pooled) are dropped.
func PutBuffer(buf *[]byte) {
	if cap(*buf) != 4096 {
		return
	}
	bufferPool.Put(buf)
}
