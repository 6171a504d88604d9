package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Zigbee Explorer core.
// Values come from defaults, an optional YAML file, an optional .env file,
// and environment variables, in that order of precedence (lowest first).
type Config struct {
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Ingest    IngestConfig    `yaml:"ingest"`
	History   HistoryConfig   `yaml:"history"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	// URL is the broker address, e.g. "mqtt://192.168.1.10:1883".
	// A bare host:port is treated as tcp://host:port.
	URL string `yaml:"url"`

	// Topic is the single topic the ingestor subscribes to.
	Topic string `yaml:"topic"`

	ClientID string         `yaml:"client_id"`
	Auth     MQTTAuthConfig `yaml:"auth"`
	QoS      int            `yaml:"qos"`

	// ConnectTimeout bounds each connection attempt made by the MQTT library.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
// The retry interval is fixed: Interval is used both as the connect retry
// interval and as the maximum reconnect interval.
type MQTTReconnectConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// IngestConfig controls how broker payloads are turned into readings.
type IngestConfig struct {
	// ContainerField is the payload field whose values are per-device readings.
	ContainerField string `yaml:"container_field"`

	// QueueSize is the capacity of the queue between the MQTT handler and
	// the single ingest goroutine.
	QueueSize int `yaml:"queue_size"`
}

// HistoryConfig controls per-device history retention.
type HistoryConfig struct {
	// MaxEntries caps each device history. 0 keeps every entry.
	MaxEntries int `yaml:"max_entries"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
	SendBuffer     int    `yaml:"send_buffer"`
}

// LifecycleConfig contains supervisor signalling settings.
type LifecycleConfig struct {
	// ConnectDeadline is how long the core waits for the first broker
	// connection before exiting with a fatal status. 0 disables the deadline.
	ConnectDeadline time.Duration `yaml:"connect_deadline"`

	// Notify selects where lifecycle events are written: "stdout", "stderr" or "none".
	Notify string `yaml:"notify"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`

	// Measurement names the series readings are written to.
	Measurement string `yaml:"measurement"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings, used when Output is "file".
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Load builds the configuration.
//
// The loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values, if path is non-empty and the file exists
//  3. .env file in the working directory, if present
//  4. Environment variables
//
// Only the variables read by applyEnvOverrides are honoured: the launcher's
// MQTT_SERVER, MQTT_TOPIC and LISTEN_PORT, plus a short ZBEXPLORER_ list
// (see configs/config.yaml).
//
// Parameters:
//   - path: Path to the YAML configuration file (may be empty)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If the file cannot be parsed or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
			// The launcher normally supplies everything through the environment.
		default:
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// godotenv never overwrites variables that are already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			URL:            "mqtt://localhost:1883",
			Topic:          "tele/tasmota/SENSOR",
			ClientID:       "zbexplorer",
			QoS:            0,
			ConnectTimeout: 30 * time.Second,
			Reconnect: MQTTReconnectConfig{
				Interval: 5 * time.Second,
			},
		},
		Ingest: IngestConfig{
			ContainerField: "ZbReceived",
			QueueSize:      1024,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 3000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
			SendBuffer:     256,
		},
		Lifecycle: LifecycleConfig{
			ConnectDeadline: 2 * time.Second,
			Notify:          "stdout",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
			File: FileLoggingConfig{
				Path:       "./logs/zbexplorer.log",
				MaxSize:    10,
				MaxBackups: 3,
				MaxAge:     28,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) error {
	// Variables set by the launching collaborator.
	if v := os.Getenv("MQTT_SERVER"); v != "" {
		cfg.MQTT.URL = v
	}
	if v := os.Getenv("MQTT_TOPIC"); v != "" {
		cfg.MQTT.Topic = v
	}
	if v := os.Getenv("LISTEN_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LISTEN_PORT: %w", err)
		}
		cfg.API.Port = port
	}

	// MQTT
	if v := os.Getenv("ZBEXPLORER_MQTT_URL"); v != "" {
		cfg.MQTT.URL = v
	}
	if v := os.Getenv("ZBEXPLORER_MQTT_TOPIC"); v != "" {
		cfg.MQTT.Topic = v
	}
	if v := os.Getenv("ZBEXPLORER_MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.ClientID = v
	}
	if v := os.Getenv("ZBEXPLORER_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ZBEXPLORER_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("ZBEXPLORER_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// Lifecycle
	if v := os.Getenv("ZBEXPLORER_CONNECT_DEADLINE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ZBEXPLORER_CONNECT_DEADLINE: %w", err)
		}
		cfg.Lifecycle.ConnectDeadline = d
	}

	// InfluxDB
	if v := os.Getenv("ZBEXPLORER_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("ZBEXPLORER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.MQTT.URL == "" {
		errs = append(errs, "mqtt.url is required")
	}
	if c.MQTT.Topic == "" {
		errs = append(errs, "mqtt.topic is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.ConnectTimeout <= 0 {
		errs = append(errs, "mqtt.connect_timeout must be positive")
	}
	if c.MQTT.Reconnect.Interval <= 0 {
		errs = append(errs, "mqtt.reconnect.interval must be positive")
	}

	if c.Ingest.ContainerField == "" {
		errs = append(errs, "ingest.container_field is required")
	}
	if c.Ingest.QueueSize < 1 {
		errs = append(errs, "ingest.queue_size must be at least 1")
	}

	if c.History.MaxEntries < 0 {
		errs = append(errs, "history.max_entries must not be negative")
	}

	// Port 0 lets the OS pick a free port.
	if c.API.Port < 0 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 0 and 65535")
	}

	if c.WebSocket.PingInterval < 1 || c.WebSocket.PongTimeout < 1 {
		errs = append(errs, "websocket.ping_interval and websocket.pong_timeout must be at least 1")
	}
	if c.WebSocket.SendBuffer < 1 {
		errs = append(errs, "websocket.send_buffer must be at least 1")
	}

	if c.Lifecycle.ConnectDeadline < 0 {
		errs = append(errs, "lifecycle.connect_deadline must not be negative")
	}
	switch strings.ToLower(c.Lifecycle.Notify) {
	case "stdout", "stderr", "none", "":
	default:
		errs = append(errs, "lifecycle.notify must be stdout, stderr or none")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if strings.EqualFold(c.Logging.Output, "file") && c.Logging.File.Path == "" {
		errs = append(errs, "logging.file.path is required when logging.output is file")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the read timeout as a Duration.
func (t APITimeoutConfig) GetReadTimeout() time.Duration {
	return time.Duration(t.Read) * time.Second
}

// GetWriteTimeout returns the write timeout as a Duration.
func (t APITimeoutConfig) GetWriteTimeout() time.Duration {
	return time.Duration(t.Write) * time.Second
}

// GetIdleTimeout returns the keep-alive idle timeout as a Duration.
func (t APITimeoutConfig) GetIdleTimeout() time.Duration {
	return time.Duration(t.Idle) * time.Second
}
