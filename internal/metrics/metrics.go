// Package metrics holds the Prometheus collectors for the temperature monitor.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sweeney/temp-monitor/internal/session"
	"github.com/sweeney/temp-monitor/internal/telemetry"
)

const namespace = "temp_monitor"

// Metrics groups every collector. Build one per registry with New.
type Metrics struct {
	RecordsReceived    prometheus.Counter
	RecordsAccepted    prometheus.Counter
	RecordsRejected    *prometheus.CounterVec
	SeriesActive       prometheus.Gauge
	ConnectionState    *prometheus.GaugeVec
	Reconnects         prometheus.Counter
	TransportErrors    prometheus.Counter
	ProjectionDuration prometheus.Histogram

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		RecordsReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_received_total",
			Help:      "Messages whose schema matched the configured schema",
		}),
		RecordsAccepted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_accepted_total",
			Help:      "Records inserted into a device series",
		}),
		RecordsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_rejected_total",
			Help:      "Messages dropped by the extractor, by reason",
		}, []string{"reason"}),
		SeriesActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "series_active",
			Help:      "Devices currently holding a series",
		}),
		ConnectionState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "1 for the current session state, 0 otherwise",
		}, []string{"state"}),
		Reconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Automatic reconnect attempts after the stream closed",
		}),
		TransportErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_errors_total",
			Help:      "Dial and stream errors",
		}),
		ProjectionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "projection_duration_seconds",
			Help:      "Time spent projecting the store into a chart dataset",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}

	for _, r := range telemetry.Reasons {
		m.RecordsRejected.WithLabelValues(string(r))
	}
	m.SetState(session.Disconnected)
	return m
}

// SetState marks state as the current connection state.
func (m *Metrics) SetState(state session.State) {
	for _, s := range session.States {
		v := 0.0
		if s == state {
			v = 1
		}
		m.ConnectionState.WithLabelValues(string(s)).Set(v)
	}
}

// ObserveOutcome counts one HandleData result.
func (m *Metrics) ObserveOutcome(out session.Outcome) {
	if out.Accepted {
		m.RecordsReceived.Inc()
		m.RecordsAccepted.Inc()
		return
	}
	reason := telemetry.ReasonOf(out.Err)
	if reason == "" {
		return
	}
	if reason != telemetry.ErrSchemaMismatch && reason != telemetry.ErrMalformed {
		m.RecordsReceived.Inc()
	}
	m.RecordsRejected.WithLabelValues(string(reason)).Inc()
}

// ObserveProjection records how long a projection took.
func (m *Metrics) ObserveProjection(d time.Duration) {
	m.ProjectionDuration.Observe(d.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware counts requests by route template. Install it with
// mux.Router.Use so the matched route is known.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tmpl
			}
		}
		m.HTTPRequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
		m.HTTPRequests.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
	})
}
