package stream

import (
	"context"
	"fmt"
	"net/url"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultTopic is the topic subscribed to when the endpoint names none.
const DefaultTopic = "temperature/#"

// MQTTDialer subscribes to a telemetry topic on an MQTT broker.
// The topic can be overridden per endpoint with a "topic" query parameter,
// e.g. mqtt://broker:1883?topic=site/%2B/temp.
type MQTTDialer struct {
	Topic          string
	ClientIDPrefix string
	QoS            byte
	ConnectTimeout time.Duration
	Buffer         int // messages queued before the broker connection blocks
	Log            zerolog.Logger
}

// NewMQTTDialer creates an MQTTDialer with sensible defaults.
func NewMQTTDialer(topic, clientIDPrefix string, log zerolog.Logger) *MQTTDialer {
	if topic == "" {
		topic = DefaultTopic
	}
	if clientIDPrefix == "" {
		clientIDPrefix = "temp-monitor"
	}
	return &MQTTDialer{
		Topic:          topic,
		ClientIDPrefix: clientIDPrefix,
		ConnectTimeout: 10 * time.Second,
		Buffer:         64,
		Log:            log.With().Str("component", "mqtt").Logger(),
	}
}

type mqttConn struct {
	*pipe
	client paho.Client
}

// brokerURL converts an endpoint into the tcp:// or ssl:// form paho expects.
func brokerURL(u *url.URL) string {
	scheme := u.Scheme
	switch scheme {
	case "mqtt":
		scheme = "tcp"
	case "mqtts":
		scheme = "ssl"
	}
	return scheme + "://" + u.Host
}

// Dial connects to the broker and subscribes. Reconnecting is left to the
// session, so paho's own auto-reconnect is disabled.
func (d *MQTTDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	topic := d.Topic
	if q := u.Query().Get("topic"); q != "" {
		topic = q
	}

	c := &mqttConn{pipe: newPipe(d.Buffer)}

	opts := paho.NewClientOptions().
		AddBroker(brokerURL(u)).
		SetClientID(d.ClientIDPrefix + "-" + uuid.NewString()).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(d.ConnectTimeout).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			d.Log.Warn().Err(err).Msg("mqtt connection lost")
			c.finish(err)
		})
	if u.User != nil {
		opts.SetUsername(u.User.Username())
		if pw, ok := u.User.Password(); ok {
			opts.SetPassword(pw)
		}
	}

	c.client = paho.NewClient(opts)
	if err := wait(ctx, c.client.Connect()); err != nil {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	handler := func(_ paho.Client, m paho.Message) {
		c.send(m.Payload())
	}
	if err := wait(ctx, c.client.Subscribe(topic, d.QoS, handler)); err != nil {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	d.Log.Info().Str("broker", brokerURL(u)).Str("topic", topic).Msg("mqtt subscribed")
	return c, nil
}

// wait blocks until the token completes or ctx is done.
func wait(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects from the broker.
func (c *mqttConn) Close() error {
	c.stop()
	c.client.Disconnect(250)
	c.finish(nil)
	return nil
}
