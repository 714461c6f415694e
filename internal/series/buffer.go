package series

import "time"

// Point is a single retained reading.
type Point struct {
	Time  time.Time
	Value float64
}

// Buffer is the bounded history of one device: a fixed-capacity FIFO that
// drops the oldest point once full. Points stay in arrival order.
// Not safe for concurrent use; the caller synchronizes.
type Buffer struct {
	key      string
	color    int
	buf      []Point
	capacity int
	head     int // next write position
	count    int
	evicted  int
}

func newBuffer(key string, color, capacity int) *Buffer {
	return &Buffer{
		key:      key,
		color:    color,
		buf:      make([]Point, capacity),
		capacity: capacity,
	}
}

func (b *Buffer) push(p Point) {
	if b.count == b.capacity {
		// Overwrite oldest: head is already pointing at it
		b.buf[b.head] = p
		b.head = (b.head + 1) % b.capacity
		b.evicted++
		return
	}
	b.buf[b.head] = p
	b.head = (b.head + 1) % b.capacity
	b.count++
}

// at returns the i-th retained point, oldest first.
func (b *Buffer) at(i int) Point {
	// Oldest item is at (head - count) mod capacity
	start := (b.head - b.count + b.capacity) % b.capacity
	return b.buf[(start+i)%b.capacity]
}

// Key returns the device identifier.
func (b *Buffer) Key() string {
	return b.key
}

// ColorIndex returns the palette index assigned to the device.
func (b *Buffer) ColorIndex() int {
	return b.color
}

// Len returns the number of retained points.
func (b *Buffer) Len() int {
	return b.count
}

// Cap returns the maximum number of retained points.
func (b *Buffer) Cap() int {
	return b.capacity
}

// Evicted returns how many points were dropped to make room.
func (b *Buffer) Evicted() int {
	return b.evicted
}

// Points returns a copy of the retained points, oldest first.
func (b *Buffer) Points() []Point {
	if b.count == 0 {
		return nil
	}
	result := make([]Point, b.count)
	for i := 0; i < b.count; i++ {
		result[i] = b.at(i)
	}
	return result
}

// First returns the oldest retained point.
func (b *Buffer) First() (Point, bool) {
	if b.count == 0 {
		return Point{}, false
	}
	return b.at(0), true
}

// Last returns the newest retained point.
func (b *Buffer) Last() (Point, bool) {
	if b.count == 0 {
		return Point{}, false
	}
	return b.at(b.count - 1), true
}
