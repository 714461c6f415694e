// Package status provides a thread-safe read model of the temperature monitor.
// The event loop publishes into it; HTTP handlers read snapshots from it.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/temp-monitor/internal/chart"
	"github.com/sweeney/temp-monitor/internal/session"
)

// Config contains daemon configuration for display.
type Config struct {
	HTTPAddr      string
	ColorStrategy string
	MQTTTopic     string
	ReconnectMin  time.Duration
	ReconnectMax  time.Duration
	PublishBroker string // empty when readings are not republished
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Session            session.Status
	Dataset            chart.Dataset
	PublisherConnected bool
	StartTime          time.Time
	Now                time.Time
	Config             Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds the latest published state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
			Session:   session.Status{State: session.Disconnected},
		},
	}
}

// Publish replaces the session status and dataset.
// The caller must not mutate either afterwards; the loop hands over fresh
// copies from Session.Status and Session.Project.
func (t *Tracker) Publish(st session.Status, ds chart.Dataset) {
	t.mu.Lock()
	t.snap.Session = st
	t.snap.Dataset = ds
	t.mu.Unlock()
}

// SetStatus replaces only the session status, keeping the last dataset.
func (t *Tracker) SetStatus(st session.Status) {
	t.mu.Lock()
	t.snap.Session = st
	t.mu.Unlock()
}

// SetPublisherConnected records whether the republishing broker is reachable.
func (t *Tracker) SetPublisherConnected(connected bool) {
	t.mu.Lock()
	t.snap.PublisherConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
