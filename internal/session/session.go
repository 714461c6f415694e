package session

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/sweeney/temp-monitor/internal/average"
	"github.com/sweeney/temp-monitor/internal/chart"
	"github.com/sweeney/temp-monitor/internal/series"
	"github.com/sweeney/temp-monitor/internal/telemetry"
)

// Config holds session parameters.
type Config struct {
	Endpoint      string
	Schema        string
	Capacity      int
	AverageWindow int
	Colors        series.ColorAssigner // nil selects deterministic over Palette
	Palette       chart.Palette
	Reconnect     bool // re-enter Connecting when an established connection closes

	// ValidateEndpoint checks endpoint URLs; nil accepts any absolute URL.
	ValidateEndpoint func(string) error
}

// Session is the explicit session context.
// Not safe for concurrent use.
type Session struct {
	state     State
	endpoint  string
	extractor telemetry.Extractor
	store     *series.Store
	projector *chart.Projector
	trend     *average.Tracker
	counts    Counts
	lastErr   error
	reconnect bool
	validate  func(string) error
}

// New creates a Disconnected session.
func New(cfg Config) *Session {
	projector := chart.NewProjector(cfg.Palette)
	colors := cfg.Colors
	if colors == nil {
		colors = series.NewDeterministicAssigner(len(projector.Palette()))
	}
	validate := cfg.ValidateEndpoint
	if validate == nil {
		validate = validateURL
	}
	return &Session{
		state:     Disconnected,
		endpoint:  cfg.Endpoint,
		extractor: telemetry.NewExtractor(cfg.Schema),
		store:     series.NewStore(cfg.Capacity, colors),
		projector: projector,
		trend:     average.NewTracker(cfg.AverageWindow),
		counts:    Counts{Rejected: make(map[telemetry.Reason]int)},
		reconnect: cfg.Reconnect,
		validate:  validate,
	}
}

// State returns the current connection state.
func (s *Session) State() State {
	return s.state
}

// Endpoint returns the configured stream URL.
func (s *Session) Endpoint() string {
	return s.endpoint
}

// Store exposes the series store for read-only use.
func (s *Session) Store() *series.Store {
	return s.store
}

// reset discards every buffered value. Only called on (re)connect.
func (s *Session) reset() {
	s.store.Reset()
	s.trend.Reset()
	s.counts = Counts{Rejected: make(map[telemetry.Reason]int)}
	s.lastErr = nil
}

// Connect starts a new session: Disconnected -> Connecting.
// All buffered state is cleared.
func (s *Session) Connect() error {
	if s.state != Disconnected {
		return invalid("connect", s.state)
	}
	s.reset()
	s.state = Connecting
	return nil
}

// Established records a completed handshake: Connecting -> Connected.
func (s *Session) Established() error {
	if s.state != Connecting {
		return invalid("established", s.state)
	}
	s.state = Connected
	return nil
}

// ConnectFailed records a failed handshake: Connecting -> Disconnected.
// Buffered state is left untouched.
func (s *Session) ConnectFailed(err error) error {
	if s.state != Connecting {
		return invalid("connect failed", s.state)
	}
	s.lastErr = &TransportError{Op: "connect", Err: err}
	s.counts.TransportErrors++
	s.state = Disconnected
	return nil
}

// Closed records the end of an established connection. With reconnect
// enabled the session goes back to Connecting, clearing buffers like a fresh
// connect, and retry is true. Otherwise it becomes Disconnected.
func (s *Session) Closed(cause error) (retry bool, err error) {
	if s.state != Connected {
		return false, invalid("closed", s.state)
	}
	retry = s.reconnect
	if retry {
		s.reset()
		s.state = Connecting
	} else {
		s.state = Disconnected
	}
	if cause != nil {
		s.lastErr = &TransportError{Op: "receive", Err: cause}
		s.counts.TransportErrors++
	}
	return retry, nil
}

// Disconnect ends the session at the user's request. Buffered points stay
// visible until the next connect. Disconnecting twice is a no-op.
func (s *Session) Disconnect() error {
	s.state = Disconnected
	return nil
}

// TransportFailed records a non-fatal transport error.
func (s *Session) TransportFailed(err error) {
	s.lastErr = &TransportError{Op: "receive", Err: err}
	s.counts.TransportErrors++
}

// SetEndpoint changes the stream URL. Only allowed while Disconnected.
func (s *Session) SetEndpoint(endpoint string) error {
	if s.state != Disconnected {
		return invalid("set endpoint", s.state)
	}
	if err := s.validate(endpoint); err != nil {
		return err
	}
	s.endpoint = endpoint
	return nil
}

// Apply dispatches a control command.
func (s *Session) Apply(cmd Command) error {
	switch cmd.Kind {
	case CmdConnect:
		return s.Connect()
	case CmdDisconnect:
		return s.Disconnect()
	case CmdSetEndpoint:
		return s.SetEndpoint(cmd.Endpoint)
	}
	return fmt.Errorf("unknown command %q", cmd.Kind)
}

// HandleData folds one raw payload into the store.
// Rejected payloads leave every buffer unchanged.
func (s *Session) HandleData(raw []byte) Outcome {
	if s.state != Connected {
		return Outcome{Err: ErrNotConnected}
	}

	rec, err := s.extractor.Extract(raw)
	if err != nil {
		reason := telemetry.ReasonOf(err)
		if reason != telemetry.ErrSchemaMismatch && reason != telemetry.ErrMalformed {
			s.counts.Received++
		}
		s.counts.Rejected[reason]++
		return Outcome{Err: err}
	}
	s.counts.Received++

	if !s.store.Insert(rec.Device, rec.Timestamp, rec.Value) {
		s.counts.Rejected[telemetry.ErrNonFiniteValue]++
		return Outcome{Record: rec, Err: &telemetry.RejectError{Reason: telemetry.ErrNonFiniteValue, Field: telemetry.FieldValue}}
	}
	s.counts.Accepted++

	return Outcome{
		Record:   rec,
		Accepted: true,
		Reading:  s.trend.Observe(rec.Value),
	}
}

// Project derives the chart dataset from the current store.
func (s *Session) Project() chart.Dataset {
	return s.projector.Project(s.store)
}

// LastError returns the most recent transport error, or nil.
func (s *Session) LastError() error {
	return s.lastErr
}

// Status returns a copy of the session state for display.
func (s *Session) Status() Status {
	st := Status{
		State:     s.state,
		Endpoint:  s.endpoint,
		Schema:    s.extractor.Schema(),
		Counts:    s.counts.clone(),
		Reading:   s.trend.Reading(),
		Series:    s.store.Len(),
		Capacity:  s.store.Capacity(),
		Window:    s.trend.Window(),
		Reconnect: s.reconnect,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

func validateURL(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return errors.New("invalid endpoint: need scheme://host")
	}
	return nil
}
