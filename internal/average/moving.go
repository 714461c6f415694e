// Package average provides a fixed-capacity moving average and the trend
// reading derived from it for single-series displays.
package average

import "golang.org/x/exp/constraints"

// DefaultWindow is the number of samples averaged by default.
const DefaultWindow = 5

// Number is any integer or floating-point type.
type Number interface {
	constraints.Integer | constraints.Float
}

// MovingAverage is a circular accumulator over the last N values.
// Not safe for concurrent use.
type MovingAverage[T Number] struct {
	ring   []T
	pos    int // next write position
	filled bool
}

// New creates a MovingAverage over the last size values.
// A size below 1 selects DefaultWindow.
func New[T Number](size int) *MovingAverage[T] {
	if size < 1 {
		size = DefaultWindow
	}
	return &MovingAverage[T]{ring: make([]T, size)}
}

// Add records v, overwriting the oldest slot once the ring is full, and
// returns the new average.
func (m *MovingAverage[T]) Add(v T) T {
	m.ring[m.pos] = v
	m.pos = (m.pos + 1) % len(m.ring)
	if m.pos == 0 {
		m.filled = true
	}
	return m.Average()
}

// Last returns the most recently added value, or zero if nothing was added.
func (m *MovingAverage[T]) Last() T {
	if m.Len() == 0 {
		var zero T
		return zero
	}
	return m.ring[(m.pos-1+len(m.ring))%len(m.ring)]
}

// Average returns the mean of the occupied slots. During warm-up the
// denominator is the number of samples written so far.
func (m *MovingAverage[T]) Average() T {
	n := m.Len()
	if n == 0 {
		var zero T
		return zero
	}
	var sum T
	for _, v := range m.ring[:n] {
		sum += v
	}
	return sum / T(n)
}

// Len returns the number of occupied slots.
func (m *MovingAverage[T]) Len() int {
	if m.filled {
		return len(m.ring)
	}
	return m.pos
}

// Cap returns the window size.
func (m *MovingAverage[T]) Cap() int {
	return len(m.ring)
}

// Reset empties the ring.
func (m *MovingAverage[T]) Reset() {
	clear(m.ring)
	m.pos = 0
	m.filled = false
}
