package main

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/sweeney/temp-monitor/internal/metrics"
	"github.com/sweeney/temp-monitor/internal/mqtt"
	"github.com/sweeney/temp-monitor/internal/session"
	"github.com/sweeney/temp-monitor/internal/status"
	"github.com/sweeney/temp-monitor/internal/stream"
	"github.com/sweeney/temp-monitor/internal/web"
)

// errStopped is returned to callers whose command arrives after shutdown.
var errStopped = fmt.Errorf("event loop stopped: %w", web.ErrUnavailable)

type request struct {
	cmd   session.Command
	reply chan error
}

type dialResult struct {
	gen  int
	conn stream.Conn
	err  error
}

// loop owns the session. Every event is handled on the goroutine running
// run, so the session itself needs no locking.
type loop struct {
	sess        *session.Session
	dialer      stream.Dialer
	tracker     *status.Tracker
	metrics     *metrics.Metrics
	publisher   mqtt.Publisher
	pubStatus   mqtt.ConnectionStatus
	log         zerolog.Logger
	backoff     backoff.BackOff
	dialTimeout time.Duration
	after       func(time.Duration) <-chan time.Time

	requests chan request
	dialed   chan dialResult
	done     chan struct{}

	gen        int // incremented whenever a pending dial becomes stale
	cancelDial context.CancelFunc
	conn       stream.Conn
	msgs       <-chan []byte
	retry      <-chan time.Time
}

type loopConfig struct {
	Session      *session.Session
	Dialer       stream.Dialer
	Tracker      *status.Tracker
	Metrics      *metrics.Metrics
	Publisher    mqtt.Publisher        // nil disables republishing
	PubStatus    mqtt.ConnectionStatus // nil when not republishing
	Log          zerolog.Logger
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	DialTimeout  time.Duration
	After        func(time.Duration) <-chan time.Time // nil selects time.After
}

func newLoop(cfg loopConfig) *loop {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.ReconnectMin
	b.MaxInterval = cfg.ReconnectMax
	b.MaxElapsedTime = 0
	b.Reset()

	after := cfg.After
	if after == nil {
		after = time.After
	}
	return &loop{
		sess:        cfg.Session,
		dialer:      cfg.Dialer,
		tracker:     cfg.Tracker,
		metrics:     cfg.Metrics,
		publisher:   cfg.Publisher,
		pubStatus:   cfg.PubStatus,
		log:         cfg.Log.With().Str("component", "loop").Logger(),
		backoff:     b,
		dialTimeout: cfg.DialTimeout,
		after:       after,
		requests:    make(chan request),
		dialed:      make(chan dialResult, 1),
		done:        make(chan struct{}),
	}
}

// Do hands cmd to the loop and waits for the result.
func (l *loop) Do(ctx context.Context, cmd session.Command) error {
	req := request{cmd: cmd, reply: make(chan error, 1)}
	select {
	case l.requests <- req:
	case <-l.done:
		return errStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-l.done:
		select {
		case err := <-req.reply:
			return err
		default:
			return errStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run processes events until a signal arrives or ctx is done.
func (l *loop) run(ctx context.Context, sig <-chan os.Signal) error {
	defer close(l.done)
	defer l.teardown()

	l.publish(true)
	l.announce(mqtt.EventStartup, "")
	for {
		select {
		case s := <-sig:
			l.log.Info().Str("signal", s.String()).Msg("shutting down")
			l.announce(mqtt.EventShutdown, signalName(s))
			return nil

		case <-ctx.Done():
			l.announce(mqtt.EventShutdown, "CONTEXT_DONE")
			return nil

		case req := <-l.requests:
			req.reply <- l.handle(req.cmd)

		case res := <-l.dialed:
			l.handleDial(res)

		case raw, ok := <-l.msgs:
			if !ok {
				l.handleClosed()
				continue
			}
			l.handleData(raw)

		case <-l.retry:
			l.retry = nil
			if l.sess.State() == session.Connecting {
				l.metrics.Reconnects.Inc()
				l.dial()
			}
		}
	}
}

func (l *loop) handle(cmd session.Command) error {
	if err := l.sess.Apply(cmd); err != nil {
		return err
	}
	switch cmd.Kind {
	case session.CmdConnect:
		l.log.Info().Str("endpoint", l.sess.Endpoint()).Msg("connecting")
		l.backoff.Reset()
		l.dial()
		l.publish(true)
	case session.CmdDisconnect:
		l.log.Info().Msg("disconnected")
		l.teardown()
		l.publish(false)
		l.announce(mqtt.EventDisconnected, "requested")
	case session.CmdSetEndpoint:
		l.log.Info().Str("endpoint", cmd.Endpoint).Msg("endpoint updated")
		l.publish(false)
	}
	return nil
}

// dial starts a handshake in the background; the result comes back on
// l.dialed tagged with the current generation.
func (l *loop) dial() {
	l.gen++
	gen := l.gen
	ctx, cancel := context.WithTimeout(context.Background(), l.dialTimeout)
	l.cancelDial = cancel
	endpoint := l.sess.Endpoint()

	go func() {
		defer cancel()
		conn, err := l.dialer.Dial(ctx, endpoint)
		res := dialResult{gen: gen, conn: conn, err: err}
		select {
		case l.dialed <- res:
		case <-l.done:
			if conn != nil {
				conn.Close()
			}
		}
	}()
}

func (l *loop) handleDial(res dialResult) {
	if res.gen != l.gen || l.sess.State() != session.Connecting {
		if res.conn != nil {
			res.conn.Close()
		}
		return
	}
	l.cancelDial = nil

	if res.err != nil {
		l.log.Warn().Err(res.err).Str("endpoint", l.sess.Endpoint()).Msg("connect failed")
		l.metrics.TransportErrors.Inc()
		l.sess.ConnectFailed(res.err)
		l.publish(false)
		l.announce(mqtt.EventConnectFailed, res.err.Error())
		return
	}

	l.sess.Established()
	l.conn = res.conn
	l.msgs = res.conn.Messages()
	l.backoff.Reset()
	l.log.Info().Str("endpoint", l.sess.Endpoint()).Msg("connected")
	l.publish(false)
	l.announce(mqtt.EventConnected, "")
}

func (l *loop) handleClosed() {
	cause := l.conn.Err()
	l.conn.Close()
	l.conn, l.msgs = nil, nil

	if cause != nil {
		l.log.Warn().Err(cause).Msg("stream closed")
		l.metrics.TransportErrors.Inc()
	} else {
		l.log.Info().Msg("stream closed")
	}

	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	retry, _ := l.sess.Closed(cause)
	if retry {
		delay := l.backoff.NextBackOff()
		if delay == backoff.Stop {
			l.sess.Disconnect()
		} else {
			l.log.Info().Dur("delay", delay).Msg("reconnecting")
			l.retry = l.after(delay)
		}
	}
	l.publish(true)
	if l.sess.State() == session.Connecting {
		l.announce(mqtt.EventReconnecting, reason)
	} else {
		l.announce(mqtt.EventDisconnected, reason)
	}
}

func (l *loop) handleData(raw []byte) {
	out := l.sess.HandleData(raw)
	l.metrics.ObserveOutcome(out)
	if !out.Accepted {
		l.log.Debug().Err(out.Err).Msg("record rejected")
		l.publish(false)
		return
	}
	l.publish(true)

	if l.publisher != nil {
		err := l.publisher.PublishReading(mqtt.ReadingEvent{
			Timestamp: out.Record.Timestamp,
			Device:    out.Record.Device,
			Reading:   out.Reading,
		})
		if err != nil {
			l.log.Warn().Err(err).Msg("publish reading")
		}
	}
}

// teardown drops the connection, any pending dial and any pending retry.
func (l *loop) teardown() {
	l.gen++
	if l.cancelDial != nil {
		l.cancelDial()
		l.cancelDial = nil
	}
	if l.conn != nil {
		if err := l.conn.Close(); err != nil {
			l.log.Warn().Err(err).Msg("close stream")
			l.sess.TransportFailed(err)
		}
		l.conn, l.msgs = nil, nil
	}
	l.retry = nil
}

// publish pushes the session state and publisher connectivity to the
// tracker and metrics. The dataset
// is re-projected only when withData is set.
func (l *loop) publish(withData bool) {
	st := l.sess.Status()
	l.metrics.SetState(st.State)
	l.metrics.SeriesActive.Set(float64(st.Series))
	if l.pubStatus != nil {
		l.tracker.SetPublisherConnected(l.pubStatus.IsConnected())
	}
	if !withData {
		l.tracker.SetStatus(st)
		return
	}
	start := time.Now()
	ds := l.sess.Project()
	l.metrics.ObserveProjection(time.Since(start))
	l.tracker.Publish(st, ds)
}

// announce publishes a lifecycle event when a publisher is set. STARTUP and
// SHUTDOWN are retained.
func (l *loop) announce(event, reason string) {
	if l.publisher == nil {
		return
	}
	err := l.publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp: time.Now(),
		Event:     event,
		Reason:    reason,
		Endpoint:  l.sess.Endpoint(),
		Retained:  event == mqtt.EventStartup || event == mqtt.EventShutdown,
	})
	if err != nil {
		l.log.Warn().Err(err).Str("event", event).Msg("publish system event")
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
