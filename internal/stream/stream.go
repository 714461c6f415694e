// Package stream connects to telemetry sources and delivers raw payloads.
// It is the transport collaborator of the session: it never decodes payloads.
package stream

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
)

// ErrUnsupportedScheme is returned for endpoints no dialer can serve.
var ErrUnsupportedScheme = errors.New("unsupported endpoint scheme")

// Conn is an open telemetry stream.
type Conn interface {
	// Messages delivers raw payloads in arrival order.
	// It is closed when the stream ends.
	Messages() <-chan []byte

	// Err reports why Messages was closed. It is nil after Close or a clean
	// close by the remote end.
	Err() error

	// Close ends the stream and releases its resources.
	Close() error
}

// Dialer opens a stream for an endpoint URL. Dial blocks until the
// handshake completes or ctx is done.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// Router picks a dialer by URL scheme.
type Router struct {
	Websocket Dialer // ws, wss
	MQTT      Dialer // tcp, ssl, mqtt, mqtts
}

var (
	websocketSchemes = map[string]bool{"ws": true, "wss": true}
	mqttSchemes      = map[string]bool{"tcp": true, "ssl": true, "mqtt": true, "mqtts": true}
)

// ValidateEndpoint checks that endpoint is an absolute URL with a supported
// scheme.
func ValidateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	if !websocketSchemes[u.Scheme] && !mqttSchemes[u.Scheme] {
		return fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid endpoint %q: missing host", endpoint)
	}
	return nil
}

// Dial validates endpoint and hands it to the matching dialer.
func (r *Router) Dial(ctx context.Context, endpoint string) (Conn, error) {
	if err := ValidateEndpoint(endpoint); err != nil {
		return nil, err
	}
	u, _ := url.Parse(endpoint)
	var d Dialer
	switch {
	case websocketSchemes[u.Scheme]:
		d = r.Websocket
	case mqttSchemes[u.Scheme]:
		d = r.MQTT
	}
	if d == nil {
		return nil, fmt.Errorf("%w: %q not configured", ErrUnsupportedScheme, u.Scheme)
	}
	return d.Dial(ctx, endpoint)
}

// pipe is the delivery half shared by every Conn implementation.
// send and finish may be called from different goroutines.
type pipe struct {
	msgs     chan []byte
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	finished bool
	err      error
}

func newPipe(buffer int) *pipe {
	return &pipe{
		msgs: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

// send delivers msg unless the pipe is finished or stopped. It blocks while
// the consumer is busy.
func (p *pipe) send(msg []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return
	}
	select {
	case p.msgs <- msg:
	case <-p.done:
	}
}

// finish closes Messages with the given cause. Only the first call counts.
func (p *pipe) finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return
	}
	p.finished = true
	p.err = err
	close(p.msgs)
}

// stop unblocks pending sends; Close calls it before tearing down.
func (p *pipe) stop() {
	p.stopOnce.Do(func() { close(p.done) })
}

func (p *pipe) stopped() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *pipe) Messages() <-chan []byte {
	return p.msgs
}

func (p *pipe) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
