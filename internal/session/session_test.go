package session

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/temp-monitor/internal/average"
	"github.com/sweeney/temp-monitor/internal/telemetry"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func payload(device string, offset time.Duration, temp any) []byte {
	var value string
	switch v := temp.(type) {
	case string:
		value = fmt.Sprintf("%q", v)
	default:
		value = fmt.Sprint(v)
	}
	return []byte(fmt.Sprintf(`{"dataschema":%q,"device":%q,"time":%q,"data":{"temp":%s}}`,
		telemetry.Schema, device, t0.Add(offset).Format(time.RFC3339), value))
}

func newConnected(t *testing.T, cfg Config) *Session {
	t.Helper()
	s := New(cfg)
	require.NoError(t, s.Connect())
	require.NoError(t, s.Established())
	require.Equal(t, Connected, s.State())
	return s
}

func TestInitialState(t *testing.T) {
	s := New(Config{Endpoint: "ws://localhost:9000/ws"})
	assert.Equal(t, Disconnected, s.State())
	assert.Equal(t, "ws://localhost:9000/ws", s.Endpoint())
	assert.True(t, s.Project().Empty())
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		name  string
		from  State
		event func(s *Session) error
		want  State
		ok    bool
	}{
		{"connect from disconnected", Disconnected, (*Session).Connect, Connecting, true},
		{"connect from connecting", Connecting, (*Session).Connect, Connecting, false},
		{"connect from connected", Connected, (*Session).Connect, Connected, false},
		{"established from connecting", Connecting, (*Session).Established, Connected, true},
		{"established from disconnected", Disconnected, (*Session).Established, Disconnected, false},
		{"connect failed from connecting", Connecting, func(s *Session) error { return s.ConnectFailed(errors.New("refused")) }, Disconnected, true},
		{"connect failed from connected", Connected, func(s *Session) error { return s.ConnectFailed(errors.New("refused")) }, Connected, false},
		{"disconnect from connected", Connected, (*Session).Disconnect, Disconnected, true},
		{"disconnect from connecting", Connecting, (*Session).Disconnect, Disconnected, true},
		{"disconnect from disconnected", Disconnected, (*Session).Disconnect, Disconnected, true},
		{"closed from connecting", Connecting, func(s *Session) error { _, err := s.Closed(nil); return err }, Connecting, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Config{})
			switch tt.from {
			case Connecting:
				require.NoError(t, s.Connect())
			case Connected:
				require.NoError(t, s.Connect())
				require.NoError(t, s.Established())
			}

			err := tt.event(s)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			}
			assert.Equal(t, tt.want, s.State())
		})
	}
}

func TestHandleDataAccepted(t *testing.T) {
	s := newConnected(t, Config{})

	out := s.HandleData(payload("a", 0, 21.5))
	require.True(t, out.Accepted)
	require.NoError(t, out.Err)
	assert.Equal(t, "a", out.Record.Device)
	assert.Equal(t, 21.5, out.Reading.Last)

	out = s.HandleData(payload("a", time.Second, "22.5"))
	require.True(t, out.Accepted, "string values are accepted")
	assert.Equal(t, 22.0, out.Reading.Average)
	assert.Equal(t, average.Warming, out.Reading.Trend)

	b, ok := s.Store().Get("a")
	require.True(t, ok)
	assert.Equal(t, 2, b.Len())

	st := s.Status()
	assert.Equal(t, 2, st.Counts.Received)
	assert.Equal(t, 2, st.Counts.Accepted)
	assert.Equal(t, 1, st.Series)
}

func TestHandleDataRejectLeavesBuffersUnchanged(t *testing.T) {
	s := newConnected(t, Config{})
	s.HandleData(payload("a", 0, 20))
	before := s.Project()

	rejects := [][]byte{
		[]byte(`{"dataschema":"urn:other","device":"a","time":"2026-01-01T12:00:05Z","data":{"temp":99}}`),
		[]byte(`{"dataschema":"urn:drogue:iot:temperature","device":"a","time":"later","data":{"temp":99}}`),
		[]byte(`{"dataschema":"urn:drogue:iot:temperature","device":"b","time":"2026-01-01T12:00:05Z","data":{"temp":false}}`),
		[]byte(`{"dataschema":"urn:drogue:iot:temperature","device":"b","time":"2026-01-01T12:00:05Z"}`),
		[]byte(`not json`),
	}
	for _, raw := range rejects {
		out := s.HandleData(raw)
		assert.False(t, out.Accepted)
		var rej *telemetry.RejectError
		assert.True(t, errors.As(out.Err, &rej), "payload %s", raw)
	}

	assert.Equal(t, before, s.Project())
	assert.Equal(t, 1, s.Store().Len())

	st := s.Status()
	// schema-matching payloads count as received even when rejected
	assert.Equal(t, 4, st.Counts.Received)
	assert.Equal(t, 1, st.Counts.Accepted)
	assert.Equal(t, 1, st.Counts.Rejected[telemetry.ErrSchemaMismatch])
	assert.Equal(t, 1, st.Counts.Rejected[telemetry.ErrTimestampParse])
	assert.Equal(t, 1, st.Counts.Rejected[telemetry.ErrValueType])
	assert.Equal(t, 1, st.Counts.Rejected[telemetry.ErrMissingField])
	assert.Equal(t, 1, st.Counts.Rejected[telemetry.ErrMalformed])
	assert.Equal(t, 20.0, st.Reading.Last, "reading untouched by rejects")
}

func TestHandleDataNotConnected(t *testing.T) {
	s := New(Config{})
	out := s.HandleData(payload("a", 0, 1))
	assert.ErrorIs(t, out.Err, ErrNotConnected)
	assert.True(t, s.Store().IsEmpty())
}

func TestConnectResetsSession(t *testing.T) {
	s := newConnected(t, Config{})
	s.HandleData(payload("a", 0, 1))
	s.HandleData(payload("b", 0, 2))
	require.NoError(t, s.Disconnect())

	// Buffers stay visible after disconnect.
	assert.False(t, s.Project().Empty())

	require.NoError(t, s.Connect())
	assert.True(t, s.Project().Empty())
	assert.Equal(t, 0, s.Status().Counts.Received)
	assert.Equal(t, average.Reading{}, s.Status().Reading)

	require.NoError(t, s.Established())
	s.HandleData(payload("b", 0, 2))
	b, _ := s.Store().Get("b")
	assert.Equal(t, 0, b.ColorIndex(), "color table cleared on reconnect")
}

func TestClosedWithReconnect(t *testing.T) {
	s := newConnected(t, Config{Reconnect: true})
	s.HandleData(payload("a", 0, 1))

	retry, err := s.Closed(errors.New("eof"))
	require.NoError(t, err)
	assert.True(t, retry)
	assert.Equal(t, Connecting, s.State())
	assert.True(t, s.Store().IsEmpty())

	var te *TransportError
	require.True(t, errors.As(s.LastError(), &te))
	assert.Equal(t, "receive", te.Op)
	assert.Equal(t, 1, s.Status().Counts.TransportErrors)
}

func TestClosedWithoutReconnect(t *testing.T) {
	s := newConnected(t, Config{})
	s.HandleData(payload("a", 0, 1))

	retry, err := s.Closed(nil)
	require.NoError(t, err)
	assert.False(t, retry)
	assert.Equal(t, Disconnected, s.State())
	assert.False(t, s.Store().IsEmpty())
	assert.NoError(t, s.LastError())
}

func TestConnectFailedKeepsBuffers(t *testing.T) {
	s := New(Config{})
	require.NoError(t, s.Connect())
	require.NoError(t, s.ConnectFailed(errors.New("handshake refused")))

	assert.Equal(t, Disconnected, s.State())
	assert.Contains(t, s.Status().LastError, "transport connect: handshake refused")
}

func TestTransportFailedKeepsState(t *testing.T) {
	s := newConnected(t, Config{})
	s.HandleData(payload("a", 0, 1))

	s.TransportFailed(errors.New("bad frame"))

	assert.Equal(t, Connected, s.State())
	assert.False(t, s.Store().IsEmpty())
	assert.Equal(t, "transport receive: bad frame", s.Status().LastError)
}

func TestSetEndpoint(t *testing.T) {
	s := New(Config{Endpoint: "ws://a/ws"})

	require.NoError(t, s.SetEndpoint("wss://b.example.com/stream"))
	assert.Equal(t, "wss://b.example.com/stream", s.Endpoint())

	assert.Error(t, s.SetEndpoint("not a url"))
	assert.Equal(t, "wss://b.example.com/stream", s.Endpoint())

	require.NoError(t, s.Connect())
	assert.ErrorIs(t, s.SetEndpoint("ws://c/ws"), ErrInvalidTransition)
}

func TestSetEndpointCustomValidator(t *testing.T) {
	s := New(Config{ValidateEndpoint: func(string) error { return errors.New("nope") }})
	assert.EqualError(t, s.SetEndpoint("ws://a/ws"), "nope")
}

func TestApply(t *testing.T) {
	s := New(Config{})
	require.NoError(t, s.Apply(Command{Kind: CmdSetEndpoint, Endpoint: "ws://x/ws"}))
	require.NoError(t, s.Apply(Command{Kind: CmdConnect}))
	assert.Equal(t, Connecting, s.State())
	require.NoError(t, s.Apply(Command{Kind: CmdDisconnect}))
	assert.Equal(t, Disconnected, s.State())
	assert.Error(t, s.Apply(Command{Kind: "explode"}))
}

func TestStatusIsCopy(t *testing.T) {
	s := newConnected(t, Config{})
	s.HandleData([]byte(`{}`))

	st := s.Status()
	st.Counts.Rejected[telemetry.ErrSchemaMismatch] = 100

	assert.Equal(t, 1, s.Status().Counts.Rejected[telemetry.ErrSchemaMismatch])
}

func TestStatusConfigFields(t *testing.T) {
	s := New(Config{Capacity: 10, AverageWindow: 3, Reconnect: true, Schema: "urn:x"})
	st := s.Status()
	assert.Equal(t, 10, st.Capacity)
	assert.Equal(t, 3, st.Window)
	assert.True(t, st.Reconnect)
	assert.Equal(t, "urn:x", st.Schema)
}
