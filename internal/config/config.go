// Package config loads the temperature monitor configuration.
//
// Sources, lowest precedence first: built-in defaults, a YAML file, the
// process environment (TEMPMON_*, with a .env file filling in unset
// variables), and finally command-line flags applied by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/temp-monitor/internal/average"
	"github.com/sweeney/temp-monitor/internal/mqtt"
	"github.com/sweeney/temp-monitor/internal/series"
	"github.com/sweeney/temp-monitor/internal/stream"
	"github.com/sweeney/temp-monitor/internal/telemetry"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "TEMPMON"

// DefaultEndpoint is the public sandbox temperature stream.
const DefaultEndpoint = "wss://ws-integration.sandbox.drogue.cloud/drogue-public-temperature"

// Log configures the logger.
type Log struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" envconfig:"FORMAT"` // json, console
	Output string `yaml:"output" envconfig:"OUTPUT"` // stdout, stderr, file
	File   string `yaml:"file" envconfig:"FILE"`
}

// Config is the full daemon configuration.
type Config struct {
	Endpoint      string        `yaml:"endpoint" envconfig:"ENDPOINT"`
	Schema        string        `yaml:"schema" envconfig:"SCHEMA"`
	Capacity      int           `yaml:"capacity" envconfig:"CAPACITY"`
	AverageWindow int           `yaml:"average_window" envconfig:"AVERAGE_WINDOW"`
	ColorStrategy string        `yaml:"color_strategy" envconfig:"COLOR_STRATEGY"`
	AutoConnect   bool          `yaml:"auto_connect" envconfig:"AUTO_CONNECT"`
	Reconnect     bool          `yaml:"reconnect" envconfig:"RECONNECT"`
	ReconnectMin  time.Duration `yaml:"reconnect_min" envconfig:"RECONNECT_MIN"`
	ReconnectMax  time.Duration `yaml:"reconnect_max" envconfig:"RECONNECT_MAX"`
	DialTimeout   time.Duration `yaml:"dial_timeout" envconfig:"DIAL_TIMEOUT"`
	MQTTTopic     string        `yaml:"mqtt_topic" envconfig:"MQTT_TOPIC"`
	MQTTClientID  string        `yaml:"mqtt_client_id" envconfig:"MQTT_CLIENT_ID"`
	HTTPAddr      string        `yaml:"http_addr" envconfig:"HTTP_ADDR"`
	Log           Log           `yaml:"log" envconfig:"LOG"`

	// PublishBroker republishes readings and lifecycle events; empty disables.
	PublishBroker      string `yaml:"publish_broker" envconfig:"PUBLISH_BROKER"`
	PublishTopicPrefix string `yaml:"publish_topic_prefix" envconfig:"PUBLISH_TOPIC_PREFIX"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Endpoint:      DefaultEndpoint,
		Schema:        telemetry.Schema,
		Capacity:      series.DefaultCapacity,
		AverageWindow: average.DefaultWindow,
		ColorStrategy: string(series.StrategyDeterministic),
		AutoConnect:   true,
		Reconnect:     true,
		ReconnectMin:  time.Second,
		ReconnectMax:  30 * time.Second,
		DialTimeout:   10 * time.Second,
		MQTTTopic:     stream.DefaultTopic,
		MQTTClientID:  "temp-monitor",
		HTTPAddr:      ":8080",
		Log: Log{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		PublishTopicPrefix: mqtt.DefaultTopicPrefix,
	}
}

// Sources names the optional files Load reads.
type Sources struct {
	ConfigFile string // YAML; empty skips
	EnvFile    string // dotenv; a missing file is ignored
}

// Load applies defaults, the YAML file and the environment, in that order.
func Load(src Sources) (Config, error) {
	cfg := Default()

	if src.ConfigFile != "" {
		data, err := os.ReadFile(src.ConfigFile)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", src.ConfigFile, err)
		}
	}

	if src.EnvFile != "" {
		// godotenv never overrides variables already set in the environment.
		if err := godotenv.Load(src.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", src.EnvFile, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("environment: %w", err)
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks the configuration for values the daemon cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Capacity < 1 {
		errs = append(errs, fmt.Errorf("capacity must be at least 1, got %d", c.Capacity))
	}
	if c.AverageWindow < 1 {
		errs = append(errs, fmt.Errorf("average_window must be at least 1, got %d", c.AverageWindow))
	}
	if _, err := series.ParseStrategy(c.ColorStrategy); err != nil {
		errs = append(errs, err)
	}
	if err := stream.ValidateEndpoint(c.Endpoint); err != nil {
		errs = append(errs, err)
	}
	if c.Reconnect && (c.ReconnectMin <= 0 || c.ReconnectMax < c.ReconnectMin) {
		errs = append(errs, fmt.Errorf("reconnect delays must satisfy 0 < min <= max, got %s..%s", c.ReconnectMin, c.ReconnectMax))
	}
	if c.DialTimeout <= 0 {
		errs = append(errs, fmt.Errorf("dial_timeout must be positive, got %s", c.DialTimeout))
	}
	if c.PublishBroker != "" {
		if u, err := url.Parse(c.PublishBroker); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("invalid publish_broker %q", c.PublishBroker))
		}
	}
	switch c.Log.Output {
	case "stdout", "stderr":
	case "file":
		if c.Log.File == "" {
			errs = append(errs, errors.New("log.file is required when log.output is file"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown log output %q", c.Log.Output))
	}
	return errors.Join(errs...)
}
