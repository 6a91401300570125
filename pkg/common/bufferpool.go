package common

import "sync"

// MediumBufferSize is sized to a typical Ethernet MTU frame, the unit in
// which the raw-socket receive path recycles buffers.
const MediumBufferSize = 1500

// BufferPool provides a pool of reusable byte buffers to reduce garbage
// collector pressure on the packet receive hot path.
type BufferPool struct {
	pool sync.Pool
}

// NewBufferPool creates a new buffer pool with the specified buffer size.
func NewBufferPool(size int) *BufferPool {
	return &BufferPool{
		pool: sync.Pool{
			New: func() interface{} {
				buf := make([]byte, size)
				return &buf
			},
		},
	}
}

// Get retrieves a buffer from the pool. The buffer should be returned to the
// pool with Put() once the caller has copied out whatever it needs to keep.
func (bp *BufferPool) Get() []byte {
	bufPtr := bp.pool.Get().(*[]byte)
	return (*bufPtr)[:cap(*bufPtr)]
}

// Put returns a buffer to the pool for reuse.
func (bp *BufferPool) Put(buf []byte) {
	bp.pool.Put(&buf)
}

// MediumBufferPool is the shared pool for MTU-sized receive buffers.
var MediumBufferPool = NewBufferPool(MediumBufferSize)
