package router

import (
	"context"
	"sync"
)

// growThreshold is the fill percentage at which the buffer doubles.
const growThreshold = 70

// GrowableBuffer is a thread-safe FIFO ring that doubles its capacity at
// 70% fill. Producers never block. With a maximum capacity set, a full
// buffer drops its oldest item to make room.
type GrowableBuffer[T any] struct {
	mu       sync.Mutex
	buf      []T
	head     int // read position
	count    int
	maxCap   int // 0 = unbounded
	closed   bool
	ready    chan struct{} // holds one token while items may be waiting
	closedCh chan struct{}

	// Stats
	totalReceived int64
	totalSent     int64
	dropped       int64
	resizeCount   int
}

// BufferStats contains buffer statistics.
type BufferStats struct {
	Count         int   `json:"count"`
	Capacity      int   `json:"capacity"`
	TotalReceived int64 `json:"total_received"`
	TotalSent     int64 `json:"total_sent"`
	Dropped       int64 `json:"dropped"` // Oldest items evicted at max capacity
	ResizeCount   int   `json:"resize_count"`
}

// BufferOption configures a GrowableBuffer.
type BufferOption func(*bufferOptions)

type bufferOptions struct {
	maxCap int
}

// WithMaxCapacity stops growth at n items. Beyond that the oldest item is
// dropped for each new one.
func WithMaxCapacity(n int) BufferOption {
	return func(o *bufferOptions) {
		o.maxCap = n
	}
}

// NewGrowableBuffer creates a buffer with the given initial capacity.
func NewGrowableBuffer[T any](initialCapacity int, opts ...BufferOption) *GrowableBuffer[T] {
	var o bufferOptions
	for _, opt := range opts {
		opt(&o)
	}
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	if o.maxCap > 0 && o.maxCap < initialCapacity {
		initialCapacity = o.maxCap
	}
	return &GrowableBuffer[T]{
		buf:      make([]T, initialCapacity),
		maxCap:   o.maxCap,
		ready:    make(chan struct{}, 1),
		closedCh: make(chan struct{}),
	}
}

// Send appends an item. Returns false if the buffer is closed.
func (b *GrowableBuffer[T]) Send(item T) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}

	switch {
	case b.count == len(b.buf):
		// Full at max capacity.
		b.popLocked()
		b.totalSent--
		b.dropped++
	case (b.count+1)*100 >= len(b.buf)*growThreshold && b.canGrow():
		b.grow()
	}

	b.buf[(b.head+b.count)%len(b.buf)] = item
	b.count++
	b.totalReceived++
	b.mu.Unlock()

	b.signal()
	return true
}

func (b *GrowableBuffer[T]) canGrow() bool {
	return b.maxCap == 0 || len(b.buf) < b.maxCap
}

func (b *GrowableBuffer[T]) signal() {
	select {
	case b.ready <- struct{}{}:
	default:
	}
}

// Receive blocks until an item is available or the buffer is closed and
// drained.
func (b *GrowableBuffer[T]) Receive() (T, bool) {
	return b.ReceiveContext(context.Background())
}

// TryReceive returns the next item without blocking.
func (b *GrowableBuffer[T]) TryReceive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.popLocked()
}

// ReceiveContext waits for an item until ctx is done. Returns false when
// ctx ends or the buffer is closed and drained.
func (b *GrowableBuffer[T]) ReceiveContext(ctx context.Context) (T, bool) {
	for {
		b.mu.Lock()
		item, ok := b.popLocked()
		more, closed := b.count > 0, b.closed
		b.mu.Unlock()

		if ok {
			if more {
				// Pass the token on to another waiting receiver.
				b.signal()
			}
			return item, true
		}
		if closed {
			return item, false
		}

		select {
		case <-ctx.Done():
			return item, false
		case <-b.ready:
		case <-b.closedCh:
		}
	}
}

// popLocked removes the head item. Must be called with lock held.
func (b *GrowableBuffer[T]) popLocked() (T, bool) {
	var zero T
	if b.count == 0 {
		return zero, false
	}

	item := b.buf[b.head]
	b.buf[b.head] = zero // Clear reference for GC
	b.head = (b.head + 1) % len(b.buf)
	b.count--
	b.totalSent++
	return item, true
}

// Close stops accepting items. Receivers drain what remains.
func (b *GrowableBuffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.closedCh)
}

// Closed reports whether Close has been called and the buffer is empty.
func (b *GrowableBuffer[T]) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed && b.count == 0
}

// Len returns the current number of items in the buffer.
func (b *GrowableBuffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Stats returns buffer statistics.
func (b *GrowableBuffer[T]) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Count:         b.count,
		Capacity:      len(b.buf),
		TotalReceived: b.totalReceived,
		TotalSent:     b.totalSent,
		Dropped:       b.dropped,
		ResizeCount:   b.resizeCount,
	}
}

// grow doubles the capacity, up to the maximum, and unwraps the ring.
// Must be called with lock held.
func (b *GrowableBuffer[T]) grow() {
	newCap := len(b.buf) * 2
	if b.maxCap > 0 && newCap > b.maxCap {
		newCap = b.maxCap
	}
	newBuf := make([]T, newCap)
	n := copy(newBuf, b.buf[b.head:])
	if n < b.count {
		copy(newBuf[n:], b.buf[:b.count-n])
	}

	b.buf = newBuf
	b.head = 0
	b.resizeCount++
}

// DrainTo removes up to max items (all if max <= 0) in FIFO order.
func (b *GrowableBuffer[T]) DrainTo(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}

	n := b.count
	if max > 0 && max < n {
		n = max
	}

	result := make([]T, 0, n)
	for i := 0; i < n; i++ {
		item, _ := b.popLocked()
		result = append(result, item)
	}
	return result
}
