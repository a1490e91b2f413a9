package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for tuyatrace.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Tuya      TuyaConfig      `yaml:"tuya"`
	Database  DatabaseConfig  `yaml:"database"`
	Pulsar    PulsarConfig    `yaml:"pulsar"`
	Collector CollectorConfig `yaml:"collector"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// TuyaConfig contains the cloud project credentials and region selection.
type TuyaConfig struct {
	// AccessID is the cloud project's client identifier.
	AccessID string `yaml:"access_id"`

	// AccessSecret is the cloud project's signing secret.
	// Never log this value; see the logging package guidelines.
	AccessSecret string `yaml:"access_secret"`

	// Region selects the API and message-bus endpoints.
	// One of: cn, us, us-e, eu, in.
	Region string `yaml:"region"`

	// RequestTimeout is the per-request HTTP timeout.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// BaseURL returns the OpenAPI endpoint for the configured region.
func (c TuyaConfig) BaseURL() (string, error) {
	url, ok := apiEndpoints[c.Region]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRegion, c.Region)
	}
	return url, nil
}

// PulsarURL returns the message-bus WebSocket endpoint for the configured region.
func (c TuyaConfig) PulsarURL() (string, error) {
	url, ok := pulsarEndpoints[c.Region]
	if !ok {
		return "", fmt.Errorf("%w: no message-bus endpoint for %q", ErrUnknownRegion, c.Region)
	}
	return url, nil
}

// apiEndpoints maps region selectors to OpenAPI base URLs.
var apiEndpoints = map[string]string{
	"cn":   "https://openapi.tuyacn.com",
	"us":   "https://openapi.tuyaus.com",
	"us-e": "https://openapi-us-e.tuyaus.com",
	"eu":   "https://openapi.tuyaeu.com",
	"in":   "https://openapi.tuyain.com",
}

// pulsarEndpoints maps region selectors to message-bus WebSocket URLs.
// The us-e data centre shares the us message bus.
var pulsarEndpoints = map[string]string{
	"cn":   "wss://mqe.tuyacn.com:8285/",
	"us":   "wss://mqe.tuyaus.com:8285/",
	"us-e": "wss://mqe.tuyaus.com:8285/",
	"eu":   "wss://mqe.tuyaeu.com:8285/",
	"in":   "wss://mqe.tuyain.com:8285/",
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// PulsarConfig contains event stream subscriber settings.
type PulsarConfig struct {
	// AckTimeout is the broker-side redelivery timeout for unacknowledged messages.
	AckTimeout time.Duration `yaml:"ack_timeout"`

	// Encrypted marks projects whose event payloads arrive AES-encrypted
	// under a key derived from the access secret.
	Encrypted bool `yaml:"encrypted"`

	// Reconnect controls the backoff applied between connection attempts.
	Reconnect ReconnectConfig `yaml:"reconnect"`

	// Buffer is the number of decoded events held between the reader and NextEvent.
	Buffer int `yaml:"buffer"`
}

// ReconnectConfig contains reconnection backoff settings.
type ReconnectConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// CollectorConfig contains periodic log collection settings.
type CollectorConfig struct {
	// Interval between collection cycles.
	Interval time.Duration `yaml:"interval"`

	// RequestDelay is the pause between consecutive API calls within a cycle.
	RequestDelay time.Duration `yaml:"request_delay"`

	// PageSize is the number of log entries requested per page.
	PageSize int `yaml:"page_size"`

	// MaxPages caps pagination per device per cycle.
	MaxPages int `yaml:"max_pages"`

	// LookbackDays is how far back the first cycle reaches for a device
	// with no cursor. The vendor free tier retains seven days of history.
	LookbackDays int `yaml:"lookback_days"`

	// EventTypes is the comma-separated vendor event type filter.
	// Common types: 1=online, 2=offline, 3=activate, 7=upgrade.
	EventTypes string `yaml:"event_types"`
}

// BridgeConfig contains the optional MQTT live-record bridge settings.
type BridgeConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      int    `yaml:"qos"`
}

// InfluxDBConfig contains the optional time-series mirror settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: TUYATRACE_SECTION_KEY
// For example: TUYATRACE_TUYA_ACCESS_ID, TUYATRACE_DATABASE_PATH
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv builds a configuration from defaults and environment variables
// only. Used when no config file is present: the credentials are the only
// required settings and can be supplied entirely through the environment.
func LoadFromEnv() (*Config, error) {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Tuya: TuyaConfig{
			Region:         "us",
			RequestTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:        "./data/tuyatrace.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Pulsar: PulsarConfig{
			AckTimeout: 3 * time.Second,
			Reconnect: ReconnectConfig{
				InitialDelay: time.Second,
				MaxDelay:     60 * time.Second,
			},
			Buffer: 64,
		},
		Collector: CollectorConfig{
			Interval:     6 * time.Hour,
			RequestDelay: 2500 * time.Millisecond,
			PageSize:     50,
			MaxPages:     100,
			LookbackDays: 7,
			EventTypes:   "1,2,3,4,5,6,7,8,9,10",
		},
		Bridge: BridgeConfig{
			Host:     "localhost",
			Port:     1883,
			ClientID: "tuyatrace",
			QoS:      1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: TUYATRACE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Credentials
	if v := os.Getenv("TUYATRACE_TUYA_ACCESS_ID"); v != "" {
		cfg.Tuya.AccessID = v
	}
	if v := os.Getenv("TUYATRACE_TUYA_ACCESS_SECRET"); v != "" {
		cfg.Tuya.AccessSecret = v
	}
	if v := os.Getenv("TUYATRACE_TUYA_REGION"); v != "" {
		cfg.Tuya.Region = v
	}

	// Database
	if v := os.Getenv("TUYATRACE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Collector
	if v := os.Getenv("TUYATRACE_COLLECTOR_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Collector.Interval = d
		}
	}

	// Bridge
	if v := os.Getenv("TUYATRACE_BRIDGE_HOST"); v != "" {
		cfg.Bridge.Host = v
	}
	if v := os.Getenv("TUYATRACE_BRIDGE_USERNAME"); v != "" {
		cfg.Bridge.Username = v
	}
	if v := os.Getenv("TUYATRACE_BRIDGE_PASSWORD"); v != "" {
		cfg.Bridge.Password = v
	}

	// InfluxDB
	if v := os.Getenv("TUYATRACE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("TUYATRACE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TUYATRACE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

// Validate checks the configuration for required values and consistency.
func (c *Config) Validate() error {
	if c.Tuya.AccessID == "" {
		return fmt.Errorf("%w: tuya.access_id", ErrMissingRequired)
	}
	if c.Tuya.AccessSecret == "" {
		return fmt.Errorf("%w: tuya.access_secret", ErrMissingRequired)
	}
	if _, err := c.Tuya.BaseURL(); err != nil {
		return err
	}
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path", ErrMissingRequired)
	}
	if c.Collector.Interval <= 0 {
		return fmt.Errorf("%w: collector.interval must be positive, got %s",
			ErrInvalidValue, c.Collector.Interval)
	}
	if c.Collector.PageSize <= 0 {
		return fmt.Errorf("%w: collector.page_size must be positive, got %d",
			ErrInvalidValue, c.Collector.PageSize)
	}
	if c.Collector.LookbackDays <= 0 {
		return fmt.Errorf("%w: collector.lookback_days must be positive, got %d",
			ErrInvalidValue, c.Collector.LookbackDays)
	}
	if c.Bridge.Enabled {
		if c.Bridge.Host == "" {
			return fmt.Errorf("%w: bridge.host", ErrMissingRequired)
		}
		if c.Bridge.QoS < 0 || c.Bridge.QoS > 2 {
			return fmt.Errorf("%w: bridge.qos must be 0, 1 or 2, got %d",
				ErrInvalidValue, c.Bridge.QoS)
		}
	}
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			return fmt.Errorf("%w: influxdb.url", ErrMissingRequired)
		}
		if c.InfluxDB.Token == "" {
			return fmt.Errorf("%w: influxdb.token", ErrMissingRequired)
		}
	}
	return nil
}
