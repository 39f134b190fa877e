// Package ringbuffer implements a fixed-capacity buffer that overwrites its
// oldest element once full.
package ringbuffer

import (
	"errors"
	"fmt"
)

// ErrInvalidCapacity is returned when a buffer is requested with capacity < 1.
var ErrInvalidCapacity = errors.New("ringbuffer: capacity must be at least 1")

// Buffer holds the most recent Cap() pushed values. It is not safe for
// concurrent use.
type Buffer[T any] struct {
	data  []T
	head  int // next write position
	count int
}

// New allocates a buffer holding up to capacity elements.
func New[T any](capacity int) (*Buffer[T], error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}
	return &Buffer[T]{data: make([]T, capacity)}, nil
}

// MustNew is like New but panics on an invalid capacity.
func MustNew[T any](capacity int) *Buffer[T] {
	b, err := New[T](capacity)
	if err != nil {
		panic(err)
	}
	return b
}

// Push appends v, evicting the oldest element when the buffer is full.
func (b *Buffer[T]) Push(v T) {
	b.data[b.head] = v
	b.head = (b.head + 1) % len(b.data)
	if b.count < len(b.data) {
		b.count++
	}
}

// At returns the i-th element in chronological order (0 is the oldest).
// It panics if i is outside [0, Len()).
func (b *Buffer[T]) At(i int) T {
	if i < 0 || i >= b.count {
		panic(fmt.Sprintf("ringbuffer: index %d out of range [0,%d)", i, b.count))
	}
	return b.data[(b.start()+i)%len(b.data)]
}

// Len reports the number of stored elements.
func (b *Buffer[T]) Len() int { return b.count }

// Cap reports the buffer capacity.
func (b *Buffer[T]) Cap() int { return len(b.data) }

// Full reports whether the next Push evicts an element.
func (b *Buffer[T]) Full() bool { return b.count == len(b.data) }

// Slice returns a copy of the contents from oldest to newest.
func (b *Buffer[T]) Slice() []T {
	out := make([]T, 0, b.count)
	if b.count < len(b.data) {
		return append(out, b.data[:b.count]...)
	}
	// Full: the tail region [head:] holds the oldest elements.
	out = append(out, b.data[b.head:]...)
	return append(out, b.data[:b.head]...)
}

// Reset drops all elements without reallocating.
func (b *Buffer[T]) Reset() {
	var zero T
	for i := range b.data {
		b.data[i] = zero
	}
	b.head, b.count = 0, 0
}

func (b *Buffer[T]) start() int {
	if b.count < len(b.data) {
		return 0
	}
	return b.head
}
