// Command temp-monitor subscribes to a device temperature stream and serves a
// live per-device chart with running statistics over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/sweeney/temp-monitor/internal/chart"
	"github.com/sweeney/temp-monitor/internal/config"
	"github.com/sweeney/temp-monitor/internal/logger"
	"github.com/sweeney/temp-monitor/internal/metrics"
	"github.com/sweeney/temp-monitor/internal/mqtt"
	"github.com/sweeney/temp-monitor/internal/series"
	"github.com/sweeney/temp-monitor/internal/session"
	"github.com/sweeney/temp-monitor/internal/status"
	"github.com/sweeney/temp-monitor/internal/stream"
	"github.com/sweeney/temp-monitor/internal/web"
)

func main() {
	configFile := flag.String("config", "", "YAML config file")
	envFile := flag.String("env-file", ".env", "dotenv file (ignored if missing)")
	endpoint := flag.String("endpoint", "", "stream URL (ws://, wss://, mqtt://, mqtts://, tcp://, ssl://)")
	schema := flag.String("schema", "", "accepted dataschema")
	capacity := flag.Int("capacity", 0, "points kept per device")
	window := flag.Int("window", 0, "moving average window")
	colors := flag.String("colors", "", "color strategy: deterministic or random")
	autoConnect := flag.Bool("connect", true, "connect on startup")
	reconnect := flag.Bool("reconnect", true, "reconnect when the stream closes")
	topic := flag.String("mqtt-topic", "", "MQTT topic filter")
	httpAddr := flag.String("http", "", "HTTP status address")
	logLevel := flag.String("log-level", "", "debug, info, warn or error")
	publishBroker := flag.String("publish-broker", "", "MQTT broker to republish readings to (empty to disable)")

	flag.Parse()

	cfg, err := config.Load(config.Sources{ConfigFile: *configFile, EnvFile: *envFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	// Flags win over every other source, but only when given explicitly.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "endpoint":
			cfg.Endpoint = *endpoint
		case "schema":
			cfg.Schema = *schema
		case "capacity":
			cfg.Capacity = *capacity
		case "window":
			cfg.AverageWindow = *window
		case "colors":
			cfg.ColorStrategy = *colors
		case "connect":
			cfg.AutoConnect = *autoConnect
		case "reconnect":
			cfg.Reconnect = *reconnect
		case "mqtt-topic":
			cfg.MQTTTopic = *topic
		case "http":
			cfg.HTTPAddr = *httpAddr
		case "log-level":
			cfg.Log.Level = *logLevel
		case "publish-broker":
			cfg.PublishBroker = *publishBroker
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: invalid config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("fatal")
	}
}

func run(cfg config.Config, log zerolog.Logger) error {
	strategy, err := series.ParseStrategy(cfg.ColorStrategy)
	if err != nil {
		return err
	}
	colors, err := series.NewColorAssigner(strategy, len(chart.DefaultPalette))
	if err != nil {
		return err
	}

	sess := session.New(session.Config{
		Endpoint:         cfg.Endpoint,
		Schema:           cfg.Schema,
		Capacity:         cfg.Capacity,
		AverageWindow:    cfg.AverageWindow,
		Colors:           colors,
		Palette:          chart.DefaultPalette,
		Reconnect:        cfg.Reconnect,
		ValidateEndpoint: stream.ValidateEndpoint,
	})

	dialer := &stream.Router{
		Websocket: stream.NewWebsocketDialer(cfg.DialTimeout, log),
		MQTT:      stream.NewMQTTDialer(cfg.MQTTTopic, cfg.MQTTClientID, log),
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	tracker := status.NewTracker(time.Now(), status.Config{
		HTTPAddr:      cfg.HTTPAddr,
		ColorStrategy: string(strategy),
		MQTTTopic:     cfg.MQTTTopic,
		ReconnectMin:  cfg.ReconnectMin,
		ReconnectMax:  cfg.ReconnectMax,
		PublishBroker: cfg.PublishBroker,
	})

	var publisher mqtt.Publisher
	var pubStatus mqtt.ConnectionStatus
	if cfg.PublishBroker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:      cfg.PublishBroker,
			TopicPrefix: cfg.PublishTopicPrefix,
			ClientID:    cfg.MQTTClientID,
			Log:         log,
		})
		if err != nil {
			// Republishing is optional; the monitor runs without it.
			log.Error().Err(err).Str("broker", cfg.PublishBroker).Msg("publisher disabled")
		} else {
			defer p.Close()
			publisher = p
			pubStatus = p
			log.Info().Str("broker", cfg.PublishBroker).Msg("republishing readings")
		}
	}

	l := newLoop(loopConfig{
		Session:      sess,
		Dialer:       dialer,
		Tracker:      tracker,
		Metrics:      m,
		Publisher:    publisher,
		PubStatus:    pubStatus,
		Log:          log,
		ReconnectMin: cfg.ReconnectMin,
		ReconnectMax: cfg.ReconnectMax,
		DialTimeout:  cfg.DialTimeout,
	})

	// Start HTTP status server
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, l, web.Options{
			Metrics:  m,
			Gatherer: reg,
			Render:   chart.DefaultRenderOptions(),
			Log:      log,
		})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("http server error")
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http status server listening")
	}

	log.Info().
		Str("endpoint", cfg.Endpoint).
		Int("capacity", cfg.Capacity).
		Int("window", cfg.AverageWindow).
		Str("colors", string(strategy)).
		Bool("reconnect", cfg.Reconnect).
		Msg("started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.AutoConnect {
		go func() {
			if err := l.Do(ctx, session.Command{Kind: session.CmdConnect}); err != nil {
				log.Warn().Err(err).Msg("auto-connect")
			}
		}()
	}

	return l.run(ctx, sigCh)
}
