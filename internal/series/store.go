// Package series holds the bounded per-device history buffers and the color
// assignment that goes with them. It knows nothing about charts or transport.
package series

import (
	"math"
	"time"
)

// DefaultCapacity is the number of points retained per device.
const DefaultCapacity = 100

// Store owns one Buffer per device.
// Not safe for concurrent use: it is driven by a single event loop.
type Store struct {
	capacity int
	colors   ColorAssigner
	buffers  map[string]*Buffer
	order    []string // first-seen order
}

// NewStore creates an empty store. A capacity below 1 selects DefaultCapacity.
func NewStore(capacity int, colors ColorAssigner) *Store {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		colors:   colors,
		buffers:  make(map[string]*Buffer),
	}
}

// Insert appends a point to the device's buffer, evicting the oldest point if
// the buffer is full. Non-finite values are skipped and Insert reports false.
func (s *Store) Insert(device string, ts time.Time, value float64) bool {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return false
	}
	b, ok := s.buffers[device]
	if !ok {
		b = newBuffer(device, s.colors.ColorFor(device), s.capacity)
		s.buffers[device] = b
		s.order = append(s.order, device)
	}
	b.push(Point{Time: ts, Value: value})
	return true
}

// Reset drops every buffer and forgets all color assignments.
func (s *Store) Reset() {
	clear(s.buffers)
	s.order = s.order[:0]
	s.colors.Reset()
}

// IsEmpty reports whether no device has a retained point.
func (s *Store) IsEmpty() bool {
	for _, b := range s.buffers {
		if b.Len() > 0 {
			return false
		}
	}
	return true
}

// Get returns the buffer for device, if any.
func (s *Store) Get(device string) (*Buffer, bool) {
	b, ok := s.buffers[device]
	return b, ok
}

// Len returns the number of known devices.
func (s *Store) Len() int {
	return len(s.order)
}

// Capacity returns the per-device point limit.
func (s *Store) Capacity() int {
	return s.capacity
}

// Each calls fn for every buffer in first-seen order.
func (s *Store) Each(fn func(b *Buffer)) {
	for _, key := range s.order {
		fn(s.buffers[key])
	}
}
