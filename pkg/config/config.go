package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/rangelink/internal/client"
	"github.com/srg/rangelink/internal/device"
	goble "github.com/srg/rangelink/internal/device/go-ble"
	"github.com/srg/rangelink/internal/forward"
	"github.com/srg/rangelink/internal/server"
	"github.com/srg/rangelink/internal/wire"
	"gopkg.in/yaml.v3"
)

// Sensor modes
const (
	SensorHCSR04    = "hcsr04"
	SensorSimulated = "simulated"
)

// Config holds application configuration
type Config struct {
	LogLevel string `yaml:"log_level" default:"info"`

	Link   LinkConfig   `yaml:"link"`
	Sensor SensorConfig `yaml:"sensor"`
	Filter FilterConfig `yaml:"filter"`
	Server ServerConfig `yaml:"server"`
	Client ClientConfig `yaml:"client"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
}

// LinkConfig identifies the GATT service both nodes agree on
type LinkConfig struct {
	Service        string `yaml:"service" default:"d4d8b28b-8928-4044-b3b2-fbed8f587fd0"`
	Characteristic string `yaml:"characteristic" default:"c8e44563-c8f3-4822-8a41-9f4df10fa9ac"`
	Name           string `yaml:"name" default:"welcome"`
}

type SensorConfig struct {
	Mode        string        `yaml:"mode" default:"hcsr04"`
	TriggerPin  string        `yaml:"trigger_pin" default:"GPIO1"`
	EchoPin     string        `yaml:"echo_pin" default:"GPIO2"`
	EchoTimeout time.Duration `yaml:"echo_timeout" default:"1s"`

	// simulated mode only
	SimulatedBase   float64 `yaml:"simulated_base" default:"25"`
	SimulatedJitter float64 `yaml:"simulated_jitter" default:"3"`
	SimulatedSeed   uint64  `yaml:"simulated_seed" default:"1"`
}

type FilterConfig struct {
	Window           int  `yaml:"window" default:"10"`
	WarmupCorrection bool `yaml:"warmup_correction" default:"false"`
}

type ServerConfig struct {
	Period       time.Duration `yaml:"period" default:"1s"`
	SendInterval time.Duration `yaml:"send_interval" default:"1s"`
	Threshold    float64       `yaml:"threshold" default:"30"`
	SettleDelay  time.Duration `yaml:"settle_delay" default:"500ms"`

	// Preferred connection interval range advertised to centrals, zero to leave it out
	ConnIntervalMin time.Duration `yaml:"conn_interval_min" default:"7500us"`
	ConnIntervalMax time.Duration `yaml:"conn_interval_max" default:"22500us"`
}

// Connection interval bounds allowed in advertising data
const (
	minConnInterval = 7500 * time.Microsecond
	maxConnInterval = 4 * time.Second
)

type ClientConfig struct {
	// ScanInterval and ScanWindow are in controller units of 0.625 ms
	ScanInterval     uint16        `yaml:"scan_interval" default:"1349"`
	ScanWindow       uint16        `yaml:"scan_window" default:"449"`
	ActiveScan       bool          `yaml:"active_scan" default:"true"`
	ScanDuration     time.Duration `yaml:"scan_duration" default:"5s"`
	Period           time.Duration `yaml:"period" default:"1s"`
	MTU              int           `yaml:"mtu" default:"517"`
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout" default:"0s"`
	MalformedPolicy  string        `yaml:"malformed_policy" default:"zero"`
	QueueCapacity    int           `yaml:"queue_capacity" default:"64"`
	OutputFormat     string        `yaml:"output_format" default:"text"`

	HeartbeatWithResponse bool `yaml:"heartbeat_with_response" default:"false"`
}

// MQTTConfig enables snapshot forwarding when Broker is set
type MQTTConfig struct {
	Broker         string        `yaml:"broker"`
	ClientID       string        `yaml:"client_id" default:"rangelink"`
	Topic          string        `yaml:"topic" default:"rangelink/distance"`
	QoS            uint8         `yaml:"qos" default:"0"`
	PublishTimeout time.Duration `yaml:"publish_timeout" default:"5s"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads the YAML file at path over the defaults. An empty path returns the defaults.
// The result is validated.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if _, err := uuid.Parse(c.Link.Service); err != nil {
		errs = append(errs, fmt.Errorf("link.service %q: %w", c.Link.Service, err))
	}
	if _, err := uuid.Parse(c.Link.Characteristic); err != nil {
		errs = append(errs, fmt.Errorf("link.characteristic %q: %w", c.Link.Characteristic, err))
	}
	check(strings.TrimSpace(c.Link.Name) != "", "link.name must not be empty")

	check(c.Sensor.Mode == SensorHCSR04 || c.Sensor.Mode == SensorSimulated,
		"sensor.mode %q must be %s or %s", c.Sensor.Mode, SensorHCSR04, SensorSimulated)
	if c.Sensor.Mode == SensorHCSR04 {
		check(c.Sensor.TriggerPin != "" && c.Sensor.EchoPin != "", "sensor.trigger_pin and sensor.echo_pin are required")
	}
	check(c.Sensor.EchoTimeout >= 0, "sensor.echo_timeout must not be negative")

	check(c.Filter.Window > 0, "filter.window must be positive, got %d", c.Filter.Window)

	check(c.Server.Period > 0, "server.period must be positive")
	check(c.Server.SendInterval > 0, "server.send_interval must be positive")
	check(c.Server.Threshold > 0, "server.threshold must be positive")
	check(c.Server.SettleDelay >= 0, "server.settle_delay must not be negative")
	if c.Server.ConnIntervalMin != 0 || c.Server.ConnIntervalMax != 0 {
		check(c.Server.ConnIntervalMin >= minConnInterval && c.Server.ConnIntervalMax <= maxConnInterval &&
			c.Server.ConnIntervalMin <= c.Server.ConnIntervalMax,
			"server.conn_interval_min/max must satisfy %s <= min <= max <= %s, got %s..%s",
			minConnInterval, maxConnInterval, c.Server.ConnIntervalMin, c.Server.ConnIntervalMax)
	}

	check(c.Client.ScanWindow <= c.Client.ScanInterval,
		"client.scan_window (%d) must not exceed client.scan_interval (%d)", c.Client.ScanWindow, c.Client.ScanInterval)
	check(c.Client.ScanDuration >= 0, "client.scan_duration must not be negative")
	check(c.Client.Period > 0, "client.period must be positive")
	check(c.Client.MTU >= 23 && c.Client.MTU <= 517, "client.mtu must be within 23..517, got %d", c.Client.MTU)
	check(c.Client.DiscoveryTimeout >= 0, "client.discovery_timeout must not be negative")
	if _, err := wire.ParseMalformedPolicy(c.Client.MalformedPolicy); err != nil {
		errs = append(errs, fmt.Errorf("client.malformed_policy: %w", err))
	}
	check(c.Client.QueueCapacity > 0, "client.queue_capacity must be positive")
	check(c.Client.OutputFormat == client.FormatText || c.Client.OutputFormat == client.FormatJSON,
		"client.output_format %q must be %s or %s", c.Client.OutputFormat, client.FormatText, client.FormatJSON)

	if c.MQTT.Broker != "" {
		check(c.MQTT.Topic != "", "mqtt.topic is required when mqtt.broker is set")
		check(c.MQTT.QoS <= 2, "mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}

	return errors.Join(errs...)
}

// Level returns the configured log level, falling back to info
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

func (c *Config) ServerOptions() server.Options {
	return server.Options{
		Name:             c.Link.Name,
		Service:          c.Link.Service,
		Characteristic:   c.Link.Characteristic,
		Period:           c.Server.Period,
		SettleDelay:      c.Server.SettleDelay,
		Window:           c.Filter.Window,
		WarmupCorrection: c.Filter.WarmupCorrection,
		SendInterval:     c.Server.SendInterval,
		Threshold:        c.Server.Threshold,
	}
}

func (c *Config) PeripheralOptions() goble.PeripheralOptions {
	return goble.PeripheralOptions{
		ConnIntervalMin: c.Server.ConnIntervalMin,
		ConnIntervalMax: c.Server.ConnIntervalMax,
	}
}

// ClientOptions assumes a validated config; an unknown malformed policy maps to zero
func (c *Config) ClientOptions() client.Options {
	policy, _ := wire.ParseMalformedPolicy(c.Client.MalformedPolicy)
	return client.Options{
		Service:          c.Link.Service,
		Characteristic:   c.Link.Characteristic,
		ScanDuration:     c.Client.ScanDuration,
		Period:           c.Client.Period,
		MTU:              c.Client.MTU,
		DiscoveryTimeout: c.Client.DiscoveryTimeout,
		MalformedPolicy:  policy,
		QueueCapacity:    c.Client.QueueCapacity,

		HeartbeatWithResponse: c.Client.HeartbeatWithResponse,
	}
}

func (c *Config) ScanOptions() device.ScanOptions {
	return device.ScanOptions{
		Active:   c.Client.ActiveScan,
		Interval: c.Client.ScanInterval,
		Window:   c.Client.ScanWindow,
	}
}

func (c *Config) MQTTOptions() forward.Options {
	return forward.Options{
		Broker:         c.MQTT.Broker,
		ClientID:       c.MQTT.ClientID,
		Topic:          c.MQTT.Topic,
		QoS:            c.MQTT.QoS,
		PublishTimeout: c.MQTT.PublishTimeout,
	}
}
