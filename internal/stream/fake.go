package stream

import (
	"context"
	"sync"
)

// FakeDialer is a test double that hands out FakeConns.
type FakeDialer struct {
	mu sync.Mutex

	// DialError, if set, will be returned by Dial.
	DialError error

	// Endpoints records every dialed endpoint.
	Endpoints []string

	// Opened receives each FakeConn as it is dialed.
	Opened chan *FakeConn
}

// NewFakeDialer creates a FakeDialer.
func NewFakeDialer() *FakeDialer {
	return &FakeDialer{Opened: make(chan *FakeConn, 16)}
}

// Dial records the endpoint and returns a new FakeConn.
func (f *FakeDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	f.mu.Lock()
	f.Endpoints = append(f.Endpoints, endpoint)
	dialErr := f.DialError
	f.mu.Unlock()

	if dialErr != nil {
		return nil, dialErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := NewFakeConn()
	f.Opened <- c
	return c, nil
}

// SetDialError changes DialError safely while a loop is running.
func (f *FakeDialer) SetDialError(err error) {
	f.mu.Lock()
	f.DialError = err
	f.mu.Unlock()
}

// Dialed returns a copy of the dialed endpoints.
func (f *FakeDialer) Dialed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Endpoints...)
}

// FakeConn is a scripted stream.
type FakeConn struct {
	*pipe

	mu     sync.Mutex
	closed bool
}

// NewFakeConn creates an open FakeConn.
func NewFakeConn() *FakeConn {
	return &FakeConn{pipe: newPipe(0)}
}

// Push delivers msg, blocking until it is consumed or the conn is closed.
func (c *FakeConn) Push(msg []byte) {
	c.send(msg)
}

// End simulates the remote end closing the stream with cause err.
func (c *FakeConn) End(err error) {
	c.finish(err)
}

// Close marks the conn closed.
func (c *FakeConn) Close() error {
	c.stop()
	c.finish(nil)
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (c *FakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
