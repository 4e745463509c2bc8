// Package pool provides object pooling for csvmachine.
//
// The package provides:
//   - Generic type-safe object pooling with Pool[T]
//   - Buffer pooling with size-based buckets
//   - A global buffer pool shared by read buffers and string field buffers
//   - Statistics for monitoring pool efficiency
//
// Example usage:
//
//	buf := pool.GlobalBufferPool.Get(4096)
//	defer pool.GlobalBufferPool.Put(buf)
//
//	batches := pool.New(
//	    func() []int { return make([]int, 0, 64) },
//	    nil,
//	)
//	batch := batches.Get()
//	defer batches.Put(batch[:0])
package pool

import (
	"sync"
	"sync/atomic"
)

// Pool represents a generic object pool with type safety.
// It wraps sync.Pool with statistics tracking and an optional reset
// function. The pool is safe for concurrent use.
type Pool[T any] struct {
	pool  sync.Pool
	new   func() T
	reset func(T)
	stats struct {
		allocated int64
		inUse     int64
		gets      int64
	}
}

// New creates a new typed pool with custom allocation and reset functions.
// The new function is called when the pool is empty. The reset function,
// when not nil, is called before an object goes back into the pool.
//
// Example:
//
//	pool := New(
//	    func() *Buffer { return &Buffer{data: make([]byte, 0, 1024)} },
//	    func(b *Buffer) { b.data = b.data[:0] },
//	)
func New[T any](new func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{
		new:   new,
		reset: reset,
	}
	p.pool.New = func() interface{} {
		atomic.AddInt64(&p.stats.allocated, 1)
		return new()
	}
	return p
}

// Get retrieves an object from the pool, creating one if the pool is empty.
func (p *Pool[T]) Get() T {
	atomic.AddInt64(&p.stats.inUse, 1)
	atomic.AddInt64(&p.stats.gets, 1)
	return p.pool.Get().(T)
}

// Put returns an object to the pool for reuse.
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	atomic.AddInt64(&p.stats.inUse, -1)
	p.pool.Put(obj)
}

// Stats returns current pool statistics.
//
// Returns:
//   - allocated: Total number of objects created by the pool
//   - inUse: Number of objects currently checked out from the pool
//   - hits: Number of Get calls served by a recycled object
//   - misses: Number of Get calls that had to create a new object
func (p *Pool[T]) Stats() (allocated, inUse, hits, misses int64) {
	allocated = atomic.LoadInt64(&p.stats.allocated)
	gets := atomic.LoadInt64(&p.stats.gets)
	hits = gets - allocated
	if hits < 0 {
		hits = 0
	}
	return allocated, atomic.LoadInt64(&p.stats.inUse), hits, allocated
}

// Snapshot returns Stats as a struct.
func (p *Pool[T]) Snapshot() Stats {
	allocated, inUse, hits, misses := p.Stats()
	return Stats{Allocated: allocated, InUse: inUse, Hits: hits, Misses: misses}
}

// BufferPool manages byte buffer pooling with size-based buckets.
// It selects the bucket based on the requested size, which reduces
// fragmentation for I/O buffers and growable field buffers.
type BufferPool struct {
	pools []*Pool[[]byte]
	sizes []int
}

// NewBufferPool creates a new buffer pool with power-of-2 buckets from
// 256 bytes to 16MB. Larger buffers are allocated directly without pooling.
func NewBufferPool() *BufferPool {
	sizes := []int{
		256,      // 256B
		512,      // 512B
		1024,     // 1KB
		4096,     // 4KB
		16384,    // 16KB
		65536,    // 64KB
		131072,   // 128KB
		262144,   // 256KB
		1048576,  // 1MB
		4194304,  // 4MB
		16777216, // 16MB
	}

	pools := make([]*Pool[[]byte], len(sizes))
	for i, size := range sizes {
		size := size // capture loop variable
		pools[i] = New(
			func() []byte {
				return make([]byte, size)
			},
			nil,
		)
	}

	return &BufferPool{
		pools: pools,
		sizes: sizes,
	}
}

// Get returns a buffer of at least the requested size. The returned
// buffer's length is the requested size; its capacity may be larger.
//
// Example:
//
//	buf := bufferPool.Get(2048)  // Returns a 4KB buffer with length 2048
//	defer bufferPool.Put(buf)
func (p *BufferPool) Get(size int) []byte {
	for i, s := range p.sizes {
		if s >= size {
			buf := p.pools[i].Get()
			return buf[:size]
		}
	}

	// Fallback to allocation for very large buffers
	return make([]byte, size)
}

// Put returns a buffer to the pool. Buffers whose capacity does not match
// a bucket are left to the garbage collector.
func (p *BufferPool) Put(buf []byte) {
	size := cap(buf)

	for i, s := range p.sizes {
		if s == size {
			p.pools[i].Put(buf[:size])
			return
		}
	}
}

// Stats returns the combined statistics of all buckets.
func (p *BufferPool) Stats() Stats {
	var total Stats
	for _, bucket := range p.pools {
		s := bucket.Snapshot()
		total.Allocated += s.Allocated
		total.InUse += s.InUse
		total.Hits += s.Hits
		total.Misses += s.Misses
	}
	return total
}

// GlobalBufferPool provides size-based byte buffer pooling shared across
// the module.
var GlobalBufferPool = NewBufferPool()

// Stats represents pool statistics for monitoring and optimization.
type Stats struct {
	// Allocated is the total number of objects created by the pool
	Allocated int64
	// InUse is the current number of objects checked out from the pool
	InUse int64
	// Hits is the number of Get calls served by a recycled object
	Hits int64
	// Misses is the number of times a new object had to be created
	Misses int64
}
