package ringbuffer

import "sync"

// Buffer is a fixed-capacity FIFO. When full, Push evicts the oldest entry.
type Buffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	head     int // next write position
	size     int
	capacity int
}

// New crea un buffer con la capacità data (minimo 1).
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Push appends item and returns the evicted entry, if any.
func (b *Buffer[T]) Push(item T) (evicted T, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == b.capacity {
		evicted = b.items[b.head]
		ok = true
	} else {
		b.size++
	}
	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	return evicted, ok
}

// Snapshot returns a copy of the contents, oldest first.
func (b *Buffer[T]) Snapshot() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]T, b.size)
	start := (b.head - b.size + b.capacity) % b.capacity
	for i := 0; i < b.size; i++ {
		out[i] = b.items[(start+i)%b.capacity]
	}
	return out
}

// Newest returns a copy of the contents, newest first.
func (b *Buffer[T]) Newest() []T {
	out := b.Snapshot()
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Last returns the most recently pushed item.
func (b *Buffer[T]) Last() (T, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var zero T
	if b.size == 0 {
		return zero, false
	}
	return b.items[(b.head-1+b.capacity)%b.capacity], true
}

func (b *Buffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

func (b *Buffer[T]) Cap() int { return b.capacity }

// Reset empties the buffer and releases references held by old entries.
func (b *Buffer[T]) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	b.head = 0
	b.size = 0
}
