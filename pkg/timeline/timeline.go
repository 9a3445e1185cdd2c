// Package timeline provides the timestamp-ordered sample buffers that feed the
// synchronizer. A timeline is written by producers and read by the engine;
// every operation is safe for concurrent use.
package timeline

import (
	"errors"
	"sort"
	"sync"
)

// DefaultCapacity is the number of buffers retained when no capacity is given
const DefaultCapacity = 64

var (
	// ErrElementOutOfRange is returned when an element index exceeds MaxElements
	ErrElementOutOfRange = errors.New("element index out of range")

	// ErrNilBuffer is returned when pushing a nil buffer
	ErrNilBuffer = errors.New("nil buffer")
)

// Buffer is one timeline sample: a timestamp and up to MaxElements values.
// A buffer must not be modified once pushed.
type Buffer[T any] struct {
	timestamp int64
	elements  []T
	present   []bool
}

// NewBuffer creates an empty buffer able to hold maxElements values
func NewBuffer[T any](timestamp int64, maxElements int) *Buffer[T] {
	if maxElements < 1 {
		maxElements = 1
	}
	return &Buffer[T]{
		timestamp: timestamp,
		elements:  make([]T, maxElements),
		present:   make([]bool, maxElements),
	}
}

// Timestamp returns the sample timestamp
func (b *Buffer[T]) Timestamp() int64 {
	return b.timestamp
}

// SetElement stores a value at the given element index
func (b *Buffer[T]) SetElement(index int, value T) error {
	if index < 0 || index >= len(b.elements) {
		return ErrElementOutOfRange
	}
	b.elements[index] = value
	b.present[index] = true
	return nil
}

// Element returns the value at index and whether it was set
func (b *Buffer[T]) Element(index int) (T, bool) {
	var zero T
	if index < 0 || index >= len(b.elements) || !b.present[index] {
		return zero, false
	}
	return b.elements[index], true
}

// Reader is the read side of a timeline, as consumed by the synchronizer
type Reader[T any] interface {
	// Newest returns the newest timestamp, or false when the timeline is empty
	Newest() (int64, bool)

	// Closest returns the buffer whose timestamp is nearest to ts
	Closest(ts int64) (*Buffer[T], bool)

	// MaxElements returns the number of element slots of every buffer
	MaxElements() int
}

// Timeline is a bounded, timestamp-ordered buffer collection
type Timeline[T any] struct {
	mu          sync.RWMutex
	buffers     []*Buffer[T]
	capacity    int
	maxElements int

	listenersMu sync.Mutex
	onPush      []func(timestamp int64)
	onClear     []func()
}

// New creates a timeline retaining at most capacity buffers of maxElements values
func New[T any](maxElements, capacity int) *Timeline[T] {
	if maxElements < 1 {
		maxElements = 1
	}
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Timeline[T]{
		buffers:     make([]*Buffer[T], 0, capacity),
		capacity:    capacity,
		maxElements: maxElements,
	}
}

// MaxElements returns the number of element slots per buffer
func (tl *Timeline[T]) MaxElements() int {
	return tl.maxElements
}

// NewBuffer creates a buffer sized for this timeline
func (tl *Timeline[T]) NewBuffer(timestamp int64) *Buffer[T] {
	return NewBuffer[T](timestamp, tl.maxElements)
}

// Push inserts a buffer at its timestamp position. A buffer with the same
// timestamp as an existing one replaces it. When the capacity is exceeded the
// oldest buffer is dropped.
func (tl *Timeline[T]) Push(buf *Buffer[T]) error {
	if buf == nil {
		return ErrNilBuffer
	}

	tl.mu.Lock()
	n := len(tl.buffers)
	switch {
	case n == 0 || tl.buffers[n-1].timestamp < buf.timestamp:
		// Common case: in-order append
		tl.buffers = append(tl.buffers, buf)
	default:
		idx := sort.Search(n, func(i int) bool {
			return tl.buffers[i].timestamp >= buf.timestamp
		})
		if idx < n && tl.buffers[idx].timestamp == buf.timestamp {
			tl.buffers[idx] = buf
		} else {
			tl.buffers = append(tl.buffers, nil)
			copy(tl.buffers[idx+1:], tl.buffers[idx:])
			tl.buffers[idx] = buf
		}
	}
	if len(tl.buffers) > tl.capacity {
		tl.buffers = tl.buffers[len(tl.buffers)-tl.capacity:]
	}
	tl.mu.Unlock()

	tl.notifyPush(buf.timestamp)
	return nil
}

// PushElements is a helper creating and pushing a buffer from element values
func (tl *Timeline[T]) PushElements(timestamp int64, values map[int]T) error {
	buf := tl.NewBuffer(timestamp)
	for idx, v := range values {
		if err := buf.SetElement(idx, v); err != nil {
			return err
		}
	}
	return tl.Push(buf)
}

// Newest returns the newest timestamp
func (tl *Timeline[T]) Newest() (int64, bool) {
	tl.mu.RLock()
	defer tl.mu.RUnlock()

	if len(tl.buffers) == 0 {
		return 0, false
	}
	return tl.buffers[len(tl.buffers)-1].timestamp, true
}

// Oldest returns the oldest retained timestamp
func (tl *Timeline[T]) Oldest() (int64, bool) {
	tl.mu.RLock()
	defer tl.mu.RUnlock()

	if len(tl.buffers) == 0 {
		return 0, false
	}
	return tl.buffers[0].timestamp, true
}

// Len returns the number of retained buffers
func (tl *Timeline[T]) Len() int {
	tl.mu.RLock()
	defer tl.mu.RUnlock()
	return len(tl.buffers)
}

// Closest returns the buffer with the smallest |timestamp - ts|.
// On a tie the older buffer wins.
func (tl *Timeline[T]) Closest(ts int64) (*Buffer[T], bool) {
	tl.mu.RLock()
	defer tl.mu.RUnlock()

	n := len(tl.buffers)
	if n == 0 {
		return nil, false
	}

	idx := sort.Search(n, func(i int) bool {
		return tl.buffers[i].timestamp >= ts
	})
	if idx == 0 {
		return tl.buffers[0], true
	}
	if idx == n {
		return tl.buffers[n-1], true
	}

	before := tl.buffers[idx-1]
	after := tl.buffers[idx]
	if ts-before.timestamp <= after.timestamp-ts {
		return before, true
	}
	return after, true
}

// Clear drops every buffer and notifies clear listeners
func (tl *Timeline[T]) Clear() {
	tl.mu.Lock()
	tl.buffers = tl.buffers[:0]
	tl.mu.Unlock()

	tl.listenersMu.Lock()
	listeners := append([]func(){}, tl.onClear...)
	tl.listenersMu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// OnPush registers a callback invoked after every push
func (tl *Timeline[T]) OnPush(fn func(timestamp int64)) {
	tl.listenersMu.Lock()
	defer tl.listenersMu.Unlock()
	tl.onPush = append(tl.onPush, fn)
}

// OnClear registers a callback invoked after every clear
func (tl *Timeline[T]) OnClear(fn func()) {
	tl.listenersMu.Lock()
	defer tl.listenersMu.Unlock()
	tl.onClear = append(tl.onClear, fn)
}

func (tl *Timeline[T]) notifyPush(ts int64) {
	tl.listenersMu.Lock()
	listeners := append([]func(int64){}, tl.onPush...)
	tl.listenersMu.Unlock()
	for _, fn := range listeners {
		fn(ts)
	}
}
