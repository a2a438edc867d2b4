package vfs

// Ring is a bounded double-ended queue. The canonicalizer pushes path
// segments to the tail, pops the tail for "..", and replays from the head.
type Ring[T any] struct {
	buf  []T
	head int
	n    int
}

// NewRing returns an empty ring holding at most capacity elements.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Len returns the number of queued elements.
func (r *Ring[T]) Len() int { return r.n }

// Cap returns the maximum number of elements.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Push appends v at the tail. It returns false and leaves the ring untouched
// when the ring is full.
func (r *Ring[T]) Push(v T) bool {
	if r.n == len(r.buf) {
		return false
	}
	r.buf[(r.head+r.n)%len(r.buf)] = v
	r.n++
	return true
}

// PopBack removes and returns the most recently pushed element.
func (r *Ring[T]) PopBack() (v T, ok bool) {
	if r.n == 0 {
		return v, false
	}
	i := (r.head + r.n - 1) % len(r.buf)
	v = r.buf[i]
	var zero T
	r.buf[i] = zero
	r.n--
	return v, true
}

// PopFront removes and returns the oldest element.
func (r *Ring[T]) PopFront() (v T, ok bool) {
	if r.n == 0 {
		return v, false
	}
	v = r.buf[r.head]
	var zero T
	r.buf[r.head] = zero
	r.head = (r.head + 1) % len(r.buf)
	r.n--
	return v, true
}

// Reset drops all elements.
func (r *Ring[T]) Reset() {
	for r.n > 0 {
		r.PopFront()
	}
	r.head = 0
}
