package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WebsocketDialer opens text-frame telemetry streams over ws:// and wss://.
type WebsocketDialer struct {
	Dialer *websocket.Dialer // nil selects websocket.DefaultDialer
	Log    zerolog.Logger
}

// NewWebsocketDialer creates a WebsocketDialer with the given handshake timeout.
func NewWebsocketDialer(handshakeTimeout time.Duration, log zerolog.Logger) *WebsocketDialer {
	d := *websocket.DefaultDialer
	d.HandshakeTimeout = handshakeTimeout
	return &WebsocketDialer{
		Dialer: &d,
		Log:    log.With().Str("component", "websocket").Logger(),
	}
}

type websocketConn struct {
	*pipe
	ws      *websocket.Conn
	log     zerolog.Logger
	readerC chan struct{}
}

// Dial performs the websocket handshake and starts reading frames.
func (d *WebsocketDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake (%s): %w", resp.Status, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	d.Log.Info().Str("endpoint", endpoint).Msg("websocket connected")

	c := &websocketConn{
		pipe:    newPipe(0),
		ws:      ws,
		log:     d.Log,
		readerC: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *websocketConn) readLoop() {
	defer close(c.readerC)
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.stopped() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.finish(nil)
				return
			}
			c.log.Warn().Err(err).Msg("websocket read failed")
			c.finish(err)
			return
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		c.send(data)
	}
}

// Close sends a close frame and waits for the reader to exit.
func (c *websocketConn) Close() error {
	c.stop()
	deadline := time.Now().Add(time.Second)
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	err := c.ws.Close()
	<-c.readerC
	c.finish(nil)
	return err
}
