package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultBufferSize is how many messages are kept while the broker is away.
const DefaultBufferSize = 256

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed, oldest first, on reconnect.
type RealPublisher struct {
	client paho.Client
	prefix string
	log    zerolog.Logger

	mu     sync.Mutex
	buffer *ringBuffer
}

// Options configures a RealPublisher.
type Options struct {
	Broker      string
	TopicPrefix string // empty selects DefaultTopicPrefix
	ClientID    string // a random suffix is always appended
	BufferSize  int    // zero selects DefaultBufferSize
	Log         zerolog.Logger
}

// NewRealPublisher creates a publisher connected to the given broker.
// The broker holds a retained SHUTDOWN will so subscribers learn when the
// monitor disappears without a clean shutdown.
func NewRealPublisher(opts Options) (*RealPublisher, error) {
	prefix := opts.TopicPrefix
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	size := opts.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	clientID := opts.ClientID
	if clientID == "" {
		clientID = "temp-monitor"
	}
	log := opts.Log.With().Str("component", "publisher").Logger()

	p := &RealPublisher{
		prefix: prefix,
		log:    log,
		buffer: newRingBuffer(size, log),
	}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: EventShutdown, Reason: "MQTT_DISCONNECT"})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	pahoOpts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(clientID + "-" + uuid.NewString()).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(systemTopic(prefix), will, 1, true).
		SetOnConnectHandler(func(paho.Client) { p.flush() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Err(err).Msg("publisher connection lost")
		})

	p.client = paho.NewClient(pahoOpts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		p.client.Disconnect(0)
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		p.client.Disconnect(0)
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// PublishReading sends a reading, QoS 0, not retained.
func (p *RealPublisher) PublishReading(event ReadingEvent) error {
	payload, err := FormatReadingPayload(event)
	if err != nil {
		return fmt.Errorf("format reading payload: %w", err)
	}
	return p.send(bufferedMsg{topic: readingsTopic(p.prefix), payload: payload})
}

// PublishSystem sends a lifecycle event, QoS 1.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.send(bufferedMsg{topic: systemTopic(p.prefix), payload: payload, qos: 1, retained: event.Retained})
}

// send publishes without waiting for the broker; the event loop must not
// stall on a slow connection. Offline messages go to the buffer.
func (p *RealPublisher) send(msg bufferedMsg) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.client.IsConnectionOpen() {
		p.buffer.push(msg)
		return nil
	}
	p.publish(msg)
	return nil
}

func (p *RealPublisher) publish(msg bufferedMsg) {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	go func() {
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			p.log.Warn().Err(token.Error()).Str("topic", msg.topic).Msg("publish failed")
		}
	}()
}

// flush replays buffered messages after (re)connecting.
func (p *RealPublisher) flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	dropped := p.buffer.dropped
	msgs := p.buffer.drainAll()
	if len(msgs) > 0 {
		p.log.Info().Int("messages", len(msgs)).Int("dropped", dropped).Msg("replaying buffered messages")
	}
	for _, msg := range msgs {
		p.publish(msg)
	}
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
