// Package mqtt republishes derived temperature readings and monitor lifecycle
// events to an MQTT broker, with an abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/temp-monitor/internal/average"
)

// DefaultTopicPrefix is the topic root used when none is configured.
const DefaultTopicPrefix = "temp-monitor"

// Topics derived from a prefix.
func readingsTopic(prefix string) string { return prefix + "/readings" }
func systemTopic(prefix string) string   { return prefix + "/system" }

// System event names.
const (
	EventStartup       = "STARTUP"
	EventShutdown      = "SHUTDOWN"
	EventConnected     = "CONNECTED"
	EventConnectFailed = "CONNECT_FAILED"
	EventDisconnected  = "DISCONNECTED"
	EventReconnecting  = "RECONNECTING"
)

// Publisher publishes monitor output to MQTT.
type Publisher interface {
	// PublishReading sends the reading derived from one accepted record.
	// Returns error if publishing fails (should not crash the process).
	PublishReading(event ReadingEvent) error

	// PublishSystem sends a lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// ReadingEvent is one accepted record with the running statistics it produced.
type ReadingEvent struct {
	Timestamp time.Time
	Device    string
	Reading   average.Reading
}

// SystemEvent represents a lifecycle event (startup, shutdown, stream state).
type SystemEvent struct {
	Timestamp time.Time
	Event     string
	Reason    string // e.g. "SIGTERM", transport error text
	Endpoint  string
	Retained  bool // Whether the message should be retained by the broker
}

// ReadingPayload is the MQTT message payload for a reading.
type ReadingPayload struct {
	Reading ReadingPayloadInner `json:"reading"`
}

// ReadingPayloadInner contains the reading details.
type ReadingPayloadInner struct {
	Timestamp string  `json:"timestamp"`
	Device    string  `json:"device"`
	Value     float64 `json:"value"`
	Average   float64 `json:"average"`
	Trend     string  `json:"trend"`
	Samples   int     `json:"samples"`
}

// FormatReadingPayload creates the JSON payload for a reading.
func FormatReadingPayload(event ReadingEvent) ([]byte, error) {
	payload := ReadingPayload{
		Reading: ReadingPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Device:    event.Device,
			Value:     event.Reading.Last,
			Average:   event.Reading.Average,
			Trend:     string(event.Reading.Trend),
			Samples:   event.Reading.Samples,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload is the MQTT message payload for system events.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
			Endpoint:  event.Endpoint,
		},
	}
	return json.Marshal(payload)
}
