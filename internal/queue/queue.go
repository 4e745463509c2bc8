// Package queue provides the bounded ring buffer that carries rows from the
// single lexing goroutine to the entity building goroutines.
//
// Consumers take the whole available range at once instead of one row at a
// time, which keeps lock traffic low when the producer is fast. The end of
// the stream is marked by a sentinel that Close inserts after the last row.
package queue

import (
	"sync"

	"github.com/ajitpratap0/csvmachine/pkg/errors"
	"github.com/ajitpratap0/csvmachine/pkg/pool"
)

// ErrAborted is returned by Insert and Close once the queue was aborted.
var ErrAborted = errors.New(errors.ErrorTypeWorker, "queue aborted")

type entry[T any] struct {
	value T
	end   bool
}

// Queue is a fixed capacity FIFO shared by one producer and any number of
// consumers. All state is guarded by one mutex.
type Queue[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	buf   []entry[T]
	head  int
	tail  int
	count int

	closed  bool
	drained bool
	aborted error

	// consumers are woken once this many rows are waiting
	threshold  int
	unsignaled int

	batches *pool.Pool[[]T]
}

// New returns a queue holding up to capacity entries, the end of stream
// sentinel included. consumers tunes how eagerly waiting consumers are
// woken.
func New[T any](capacity, consumers int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	if consumers < 1 {
		consumers = 1
	}
	threshold := capacity / (2 * consumers)
	if threshold < 1 {
		threshold = 1
	}
	q := &Queue[T]{
		buf:       make([]entry[T], capacity),
		threshold: threshold,
		batches: pool.New(
			func() []T { return make([]T, 0, capacity) },
			func(s []T) { clear(s) },
		),
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Insert appends v, blocking while the queue is full.
func (q *Queue[T]) Insert(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.waitForRoom(); err != nil {
		return err
	}
	if q.closed {
		return errors.New(errors.ErrorTypeInternal, "insert into closed queue")
	}
	q.push(entry[T]{value: v})

	q.unsignaled++
	if q.unsignaled >= q.threshold {
		q.unsignaled = 0
		q.notEmpty.Signal()
	}
	return nil
}

// Close inserts the end of stream sentinel. Later calls do nothing.
func (q *Queue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	if err := q.waitForRoom(); err != nil {
		return err
	}
	q.push(entry[T]{end: true})
	q.closed = true
	q.unsignaled = 0
	q.notEmpty.Broadcast()
	return nil
}

// waitForRoom must be called with the lock held.
func (q *Queue[T]) waitForRoom() error {
	for q.count == len(q.buf) && q.aborted == nil {
		// a full queue always has enough rows to be worth a wake-up
		q.unsignaled = 0
		q.notEmpty.Broadcast()
		q.notFull.Wait()
	}
	if q.aborted != nil {
		return ErrAborted
	}
	return nil
}

func (q *Queue[T]) push(e entry[T]) {
	q.buf[q.tail] = e
	q.tail = (q.tail + 1) % len(q.buf)
	q.count++
}

// DrainBatch blocks until rows are available and claims all of them. closed
// is true once the end of stream has been reached, either in this batch or
// earlier by another consumer, or the queue was aborted. The batch may hold
// rows even when closed is true. Hand batches back with Recycle.
func (q *Queue[T]) DrainBatch() (batch []T, closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.drained && q.aborted == nil {
		q.notEmpty.Wait()
	}
	if q.aborted != nil || q.drained {
		return nil, true
	}

	batch = q.batches.Get()[:0]
	for q.count > 0 {
		e := q.buf[q.head]
		q.buf[q.head] = entry[T]{}
		q.head = (q.head + 1) % len(q.buf)
		q.count--
		if e.end {
			q.drained = true
			break
		}
		batch = append(batch, e.value)
	}

	q.notFull.Broadcast()
	if q.drained {
		// let every other waiting consumer see the end of stream
		q.notEmpty.Broadcast()
	}
	return batch, q.drained
}

// Recycle returns a batch obtained from DrainBatch.
func (q *Queue[T]) Recycle(batch []T) {
	if batch != nil {
		q.batches.Put(batch)
	}
}

// Abort wakes every blocked producer and consumer. Insert and Close return
// ErrAborted afterwards and DrainBatch reports the queue as closed. The
// first cause is kept.
func (q *Queue[T]) Abort(cause error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.aborted == nil {
		if cause == nil {
			cause = ErrAborted
		}
		q.aborted = cause
	}
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// Aborted returns the cause passed to the first Abort call, or nil.
func (q *Queue[T]) Aborted() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.aborted
}

// Drained reports whether a consumer took the end of stream marker, so that
// every inserted entry has been handed out.
func (q *Queue[T]) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.drained
}

// Len returns the number of queued entries.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the capacity of the queue.
func (q *Queue[T]) Cap() int {
	return len(q.buf)
}
