// Package session owns all per-session state: the connection state machine,
// the series store, the color table and the single-series reading.
// This package has NO transport or HTTP dependencies. It is driven one event
// at a time by a single goroutine.
package session

import (
	"errors"
	"fmt"

	"github.com/sweeney/temp-monitor/internal/average"
	"github.com/sweeney/temp-monitor/internal/telemetry"
)

// State is the connection state of a session.
type State string

const (
	Disconnected State = "Disconnected"
	Connecting   State = "Connecting"
	Connected    State = "Connected"
)

// States lists every state, in lifecycle order.
var States = []State{Disconnected, Connecting, Connected}

var (
	// ErrInvalidTransition is returned when an event is not allowed in the
	// current state.
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrNotConnected is returned for data delivered outside Connected.
	ErrNotConnected = errors.New("session not connected")
)

func invalid(event string, from State) error {
	return fmt.Errorf("%w: %s while %s", ErrInvalidTransition, event, from)
}

// TransportError wraps a failure reported by the transport collaborator.
// It never corrupts buffered state.
type TransportError struct {
	Op  string // "connect", "receive", "close"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Counts tracks payload handling since the last connect.
type Counts struct {
	// Received counts payloads carrying the accepted schema, valid or not.
	Received int
	Accepted int
	Rejected map[telemetry.Reason]int
	// TransportErrors counts errors reported by the transport.
	TransportErrors int
}

func (c Counts) clone() Counts {
	out := c
	out.Rejected = make(map[telemetry.Reason]int, len(c.Rejected))
	for k, v := range c.Rejected {
		out.Rejected[k] = v
	}
	return out
}

// Outcome is the result of handling one payload.
type Outcome struct {
	Record   telemetry.Record
	Accepted bool
	Err      error // *telemetry.RejectError or ErrNotConnected when not accepted
	Reading  average.Reading
}

// Status is a point-in-time copy of session state for display.
type Status struct {
	State     State
	Endpoint  string
	Schema    string
	Counts    Counts
	LastError string
	Reading   average.Reading
	Series    int
	Capacity  int
	Window    int
	Reconnect bool
}

// CommandKind names a control request.
type CommandKind string

const (
	CmdConnect     CommandKind = "connect"
	CmdDisconnect  CommandKind = "disconnect"
	CmdSetEndpoint CommandKind = "set_endpoint"
)

// Command is a control request from the outer surface.
type Command struct {
	Kind     CommandKind
	Endpoint string // CmdSetEndpoint only
}
