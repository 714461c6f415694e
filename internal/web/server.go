// Package web provides the HTTP surface of the temperature monitor: a status
// page, JSON views, chart images, session control and Prometheus metrics.
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sweeney/temp-monitor/internal/chart"
	"github.com/sweeney/temp-monitor/internal/metrics"
	"github.com/sweeney/temp-monitor/internal/session"
	"github.com/sweeney/temp-monitor/internal/status"
)

// ErrUnavailable is wrapped by a Controller that can no longer accept
// commands, for example after shutdown.
var ErrUnavailable = errors.New("controller unavailable")

// Controller forwards session commands to the event loop. Do returns once
// the loop has applied the command.
type Controller interface {
	Do(ctx context.Context, cmd session.Command) error
}

// Options configures optional parts of the server.
type Options struct {
	Metrics  *metrics.Metrics    // nil disables request metrics
	Gatherer prometheus.Gatherer // nil disables /metrics
	Render   chart.RenderOptions
	Log      zerolog.Logger
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	ctrl       Controller
	render     chart.RenderOptions
	log        zerolog.Logger
}

// New creates a Server that reads state from tracker and sends commands to ctrl.
func New(addr string, tracker *status.Tracker, ctrl Controller, opts Options) *Server {
	s := &Server{
		tracker: tracker,
		ctrl:    ctrl,
		render:  opts.Render,
		log:     opts.Log.With().Str("component", "web").Logger(),
	}
	if s.render.Width == 0 {
		s.render = chart.DefaultRenderOptions()
	}

	r := mux.NewRouter()
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
	}
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.html", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.json", s.handleJSON).Methods(http.MethodGet)
	r.HandleFunc("/chart.json", s.handleChartJSON).Methods(http.MethodGet)
	r.HandleFunc("/chart.{format:png|svg}", s.handleChartImage).Methods(http.MethodGet)
	r.HandleFunc("/connect", s.handleCommand(session.CmdConnect)).Methods(http.MethodPost)
	r.HandleFunc("/disconnect", s.handleCommand(session.CmdDisconnect)).Methods(http.MethodPost)
	r.HandleFunc("/endpoint", s.handleEndpoint).Methods(http.MethodPut)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

// Handler returns the root handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		s.log.Error().Err(err).Msg("render index")
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleChartJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(chart.FormatJSON(snap.Dataset))
}

func (s *Server) handleChartImage(w http.ResponseWriter, r *http.Request) {
	format := chart.Format(mux.Vars(r)["format"])
	snap := s.tracker.Snapshot()

	var buf bytes.Buffer
	err := chart.Render(&buf, snap.Dataset, format, s.render)
	if errors.Is(err, chart.ErrNothingToDraw) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("format", string(format)).Msg("render chart")
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

func (s *Server) handleCommand(kind session.CommandKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.apply(w, r, session.Command{Kind: kind})
	}
}

type endpointRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleEndpoint(w http.ResponseWriter, r *http.Request) {
	var req endpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	s.apply(w, r, session.Command{Kind: session.CmdSetEndpoint, Endpoint: req.URL})
}

// apply runs cmd through the controller and answers with the fresh status.
func (s *Server) apply(w http.ResponseWriter, r *http.Request, cmd session.Command) {
	if err := s.ctrl.Do(r.Context(), cmd); err != nil {
		code := http.StatusUnprocessableEntity
		switch {
		case errors.Is(err, session.ErrInvalidTransition):
			code = http.StatusConflict
		case errors.Is(err, ErrUnavailable),
			errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			code = http.StatusServiceUnavailable
		}
		s.log.Debug().Err(err).Str("command", string(cmd.Kind)).Msg("command refused")
		writeError(w, code, err.Error())
		return
	}
	s.log.Info().Str("command", string(cmd.Kind)).Msg("command applied")
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.tracker.Snapshot()))
}

type errorJSON struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(errorJSON{Error: msg})
}
