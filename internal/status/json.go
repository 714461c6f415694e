package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/temp-monitor/internal/telemetry"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	State         string         `json:"state"`
	Endpoint      string         `json:"endpoint"`
	Schema        string         `json:"schema"`
	LastError     string         `json:"last_error,omitempty"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	StartTime     string         `json:"start_time"`
	Timestamp     string         `json:"timestamp"`
	Counts        CountsJSON     `json:"counts"`
	Reading       *ReadingJSON   `json:"reading,omitempty"`
	Series        int            `json:"series"`
	Points        int            `json:"points"`
	Publisher     *PublisherJSON `json:"publisher,omitempty"`
	Config        ConfigJSON     `json:"config"`
}

// CountsJSON is the JSON representation of the session counters.
type CountsJSON struct {
	Received        int            `json:"received"`
	Accepted        int            `json:"accepted"`
	Rejected        map[string]int `json:"rejected"`
	TransportErrors int            `json:"transport_errors"`
}

// ReadingJSON is the single-series reading over all accepted values.
type ReadingJSON struct {
	Last    float64 `json:"last"`
	Average float64 `json:"average"`
	Trend   string  `json:"trend"`
	Samples int     `json:"samples"`
}

// PublisherJSON describes the MQTT broker readings are republished to.
type PublisherJSON struct {
	Broker    string `json:"broker"`
	Connected bool   `json:"connected"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Capacity       int    `json:"capacity"`
	AverageWindow  int    `json:"average_window"`
	ColorStrategy  string `json:"color_strategy"`
	Reconnect      bool   `json:"reconnect"`
	ReconnectMinMs int64  `json:"reconnect_min_ms"`
	ReconnectMaxMs int64  `json:"reconnect_max_ms"`
	MQTTTopic      string `json:"mqtt_topic,omitempty"`
	HTTPAddr       string `json:"http_addr"`
}

// Build converts a snapshot into its JSON shape.
func Build(snap Snapshot) StatusJSON {
	st := snap.Session

	rejected := make(map[string]int, len(telemetry.Reasons))
	for _, r := range telemetry.Reasons {
		rejected[string(r)] = st.Counts.Rejected[r]
	}

	points := 0
	for _, s := range snap.Dataset.Series {
		points += len(s.Points)
	}

	inner := StatusInner{
		State:         string(st.State),
		Endpoint:      st.Endpoint,
		Schema:        st.Schema,
		LastError:     st.LastError,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Counts: CountsJSON{
			Received:        st.Counts.Received,
			Accepted:        st.Counts.Accepted,
			Rejected:        rejected,
			TransportErrors: st.Counts.TransportErrors,
		},
		Series: st.Series,
		Points: points,
		Config: ConfigJSON{
			Capacity:       st.Capacity,
			AverageWindow:  st.Window,
			ColorStrategy:  snap.Config.ColorStrategy,
			Reconnect:      st.Reconnect,
			ReconnectMinMs: snap.Config.ReconnectMin.Milliseconds(),
			ReconnectMaxMs: snap.Config.ReconnectMax.Milliseconds(),
			MQTTTopic:      snap.Config.MQTTTopic,
			HTTPAddr:       snap.Config.HTTPAddr,
		},
	}
	if st.Reading.Samples > 0 {
		inner.Reading = &ReadingJSON{
			Last:    st.Reading.Last,
			Average: st.Reading.Average,
			Trend:   string(st.Reading.Trend),
			Samples: st.Reading.Samples,
		}
	}
	if snap.Config.PublishBroker != "" {
		inner.Publisher = &PublisherJSON{
			Broker:    snap.Config.PublishBroker,
			Connected: snap.PublisherConnected,
		}
	}
	return StatusJSON{Status: inner}
}

// FormatJSON returns the indented JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(Build(snap), "", "  ")
	return data
}
