// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>

package pool

import (
	"sync"
	"sync/atomic"
)

// DefaultSizes are the size classes used by NewBytePool.
var DefaultSizes = []int{512, 4096, 32768, 131072}

// BytePool is a tiered byte-slice pool. Requests above the largest class are
// allocated directly and dropped on Put.
type BytePool struct {
	pools []*sync.Pool
	sizes []int

	gets   atomic.Int64
	puts   atomic.Int64
	misses atomic.Int64
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Gets   int64
	Puts   int64
	Misses int64 // requests too large for any class
}

// NewBytePool creates a pool with DefaultSizes.
func NewBytePool() *BytePool {
	return NewBytePoolWithSizes(DefaultSizes)
}

// NewBytePoolWithSizes creates a pool with ascending size classes.
func NewBytePoolWithSizes(sizes []int) *BytePool {
	bp := &BytePool{
		pools: make([]*sync.Pool, len(sizes)),
		sizes: append([]int(nil), sizes...),
	}
	for i, size := range bp.sizes {
		sz := size
		bp.pools[i] = &sync.Pool{
			New: func() any {
				buf := make([]byte, sz)
				return &buf
			},
		}
	}
	return bp
}

// Get returns a slice of length size.
func (bp *BytePool) Get(size int) []byte {
	bp.gets.Add(1)
	for i, classSize := range bp.sizes {
		if size <= classSize {
			buf := *bp.pools[i].Get().(*[]byte)
			return buf[:size]
		}
	}
	bp.misses.Add(1)
	return make([]byte, size)
}

// Put returns buf to its class. Slices that did not come from the pool are ignored.
func (bp *BytePool) Put(buf []byte) {
	c := cap(buf)
	for i, classSize := range bp.sizes {
		if c == classSize {
			buf = buf[:c]
			bp.pools[i].Put(&buf)
			bp.puts.Add(1)
			return
		}
	}
}

// Stats returns current counters.
func (bp *BytePool) Stats() Stats {
	return Stats{Gets: bp.gets.Load(), Puts: bp.puts.Load(), Misses: bp.misses.Load()}
}
