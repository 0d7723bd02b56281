package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Sparkedge client.
// All configuration is loaded from YAML and can be overridden by environment variables.
//
// The connection manager re-reads this file on every connect() and reload(),
// so edits made through the admin API take effect on the next reconnect
// without a process restart.
type Config struct {
	Node      NodeConfig      `yaml:"node"`
	Broker    BrokerConfig    `yaml:"broker"`
	Security  SecurityConfig  `yaml:"security"`
	Database  DatabaseConfig  `yaml:"database"`
	Buffer    BufferConfig    `yaml:"buffer"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Watchdog  WatchdogConfig  `yaml:"watchdog"`
	Location  LocationConfig  `yaml:"location"`
	Tags      []TagConfig     `yaml:"tags"`
	History   HistoryConfig   `yaml:"history"`
	API       APIConfig       `yaml:"api"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// NodeConfig contains the Sparkplug identity of this edge node.
type NodeConfig struct {
	GroupID  string `yaml:"group_id"`
	NodeID   string `yaml:"node_id"`
	DeviceID string `yaml:"device_id"`
	ClientID string `yaml:"client_id"`
}

// BrokerConfig contains MQTT broker connection details.
type BrokerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	KeepAlive int    `yaml:"keep_alive"`
}

// SecurityMode selects the transport security applied to the broker connection.
type SecurityMode string

// Supported security modes, mutually exclusive.
const (
	// SecurityNone uses plaintext TCP.
	SecurityNone SecurityMode = "none"

	// SecurityTLSInsecure uses TLS without certificate validation.
	// Activation is logged as a warning.
	SecurityTLSInsecure SecurityMode = "tls-insecure"

	// SecurityTLSWithCA validates the server certificate against a CA bundle.
	SecurityTLSWithCA SecurityMode = "tls-with-ca"

	// SecurityTLSWithCert is mutual TLS with a client certificate and key.
	SecurityTLSWithCert SecurityMode = "tls-with-cert"
)

// SecurityConfig contains transport security and authentication settings.
type SecurityConfig struct {
	Mode     SecurityMode `yaml:"mode"`
	CAFile   string       `yaml:"ca_file"`
	CertFile string       `yaml:"cert_file"`
	KeyFile  string       `yaml:"key_file"`
	Username string       `yaml:"username"`
	Password string       `yaml:"password"`
}

// DatabaseConfig contains SQLite settings for the store-and-forward buffer.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// BufferConfig contains store-and-forward buffer settings.
type BufferConfig struct {
	// CeilingBytes is the maximum total payload occupancy. When an enqueue
	// would exceed it, the oldest records are evicted first.
	CeilingBytes int64 `yaml:"ceiling_bytes"`
}

// SchedulerConfig contains publish scheduler settings.
type SchedulerConfig struct {
	// Interval is the sampling/publish period in seconds.
	Interval int `yaml:"interval"`
}

// WatchdogConfig contains connection watchdog settings.
type WatchdogConfig struct {
	// Interval is the probe period in seconds.
	Interval int `yaml:"interval"`

	// ProbeTimeout bounds each TCP latency probe, in seconds.
	ProbeTimeout int `yaml:"probe_timeout"`

	// FullReconnectAfter is the number of consecutive failed probes before
	// the watchdog abandons the simple transport reconnect and falls back
	// to the full connect path with refreshed configuration.
	FullReconnectAfter int `yaml:"full_reconnect_after"`
}

// LocationConfig contains the static location reported in birth and
// minute-boundary location messages.
type LocationConfig struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Source    string  `yaml:"source"`
}

// TagConfig defines a single published metric.
type TagConfig struct {
	// Name is the Sparkplug metric name, unique within the registry.
	Name string `yaml:"name"`

	// Alias is the compact numeric identifier used on the wire.
	// Zero means "assign at registry load time".
	Alias uint64 `yaml:"alias"`

	// Type is the Sparkplug data type name: "float", "double", "int",
	// "long", "boolean" or "string".
	Type string `yaml:"type"`

	// Unit is the engineering unit reported as the engUnit property.
	Unit string `yaml:"unit"`

	// Desc is a free-text description reported as the desc property.
	Desc string `yaml:"desc"`

	// Deadband is the minimum change magnitude required before a new
	// sample is transmitted. Zero disables deadband filtering for the tag.
	Deadband float64 `yaml:"deadband"`
}

// HistoryConfig contains the optional InfluxDB mirror settings.
type HistoryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains admin HTTP server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
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
// Environment variables follow the pattern: SPARKEDGE_SECTION_KEY
// For example: SPARKEDGE_BROKER_HOST, SPARKEDGE_SECURITY_PASSWORD
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
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

// DefaultBufferCeiling is the default store-and-forward occupancy cap.
const DefaultBufferCeiling = 2 * 1024 * 1024 // 2 MiB

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Node: NodeConfig{
			GroupID:  "sparkedge",
			NodeID:   "edge-node-01",
			DeviceID: "dev1",
			ClientID: "sparkedge-client",
		},
		Broker: BrokerConfig{
			Host:      "localhost",
			Port:      1883,
			KeepAlive: 60,
		},
		Security: SecurityConfig{
			Mode: SecurityNone,
		},
		Database: DatabaseConfig{
			Path:        "./data/sparkedge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Buffer: BufferConfig{
			CeilingBytes: DefaultBufferCeiling,
		},
		Scheduler: SchedulerConfig{
			Interval: 5,
		},
		Watchdog: WatchdogConfig{
			Interval:           5,
			ProbeTimeout:       3,
			FullReconnectAfter: 3,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SPARKEDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Broker
	if v := os.Getenv("SPARKEDGE_BROKER_HOST"); v != "" {
		cfg.Broker.Host = v
	}
	if v := os.Getenv("SPARKEDGE_BROKER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Broker.Port = port
		}
	}

	// Identity
	if v := os.Getenv("SPARKEDGE_NODE_GROUP_ID"); v != "" {
		cfg.Node.GroupID = v
	}
	if v := os.Getenv("SPARKEDGE_NODE_NODE_ID"); v != "" {
		cfg.Node.NodeID = v
	}
	if v := os.Getenv("SPARKEDGE_NODE_CLIENT_ID"); v != "" {
		cfg.Node.ClientID = v
	}

	// Security - credentials should come from the environment in production
	if v := os.Getenv("SPARKEDGE_SECURITY_USERNAME"); v != "" {
		cfg.Security.Username = v
	}
	if v := os.Getenv("SPARKEDGE_SECURITY_PASSWORD"); v != "" {
		cfg.Security.Password = v
	}

	// Database
	if v := os.Getenv("SPARKEDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// History
	if v := os.Getenv("SPARKEDGE_HISTORY_TOKEN"); v != "" {
		cfg.History.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Node.GroupID == "" {
		errs = append(errs, "node.group_id is required")
	}
	if c.Node.NodeID == "" {
		errs = append(errs, "node.node_id is required")
	}
	if c.Node.ClientID == "" {
		errs = append(errs, "node.client_id is required")
	}

	if c.Broker.Host == "" {
		errs = append(errs, "broker.host is required")
	}
	if c.Broker.Port < 1 || c.Broker.Port > 65535 {
		errs = append(errs, "broker.port must be between 1 and 65535")
	}

	switch c.Security.Mode {
	case SecurityNone, SecurityTLSInsecure, SecurityTLSWithCA, SecurityTLSWithCert:
	default:
		errs = append(errs, fmt.Sprintf("security.mode %q is not one of none, tls-insecure, tls-with-ca, tls-with-cert", c.Security.Mode))
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Buffer.CeilingBytes <= 0 {
		errs = append(errs, "buffer.ceiling_bytes must be positive")
	}
	if c.Scheduler.Interval <= 0 {
		errs = append(errs, "scheduler.interval must be positive")
	}
	if c.Watchdog.Interval <= 0 {
		errs = append(errs, "watchdog.interval must be positive")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// SchedulerInterval returns the publish scheduler period as a Duration.
func (c *Config) SchedulerInterval() time.Duration {
	return time.Duration(c.Scheduler.Interval) * time.Second
}

// WatchdogInterval returns the watchdog probe period as a Duration.
func (c *Config) WatchdogInterval() time.Duration {
	return time.Duration(c.Watchdog.Interval) * time.Second
}

// ProbeTimeout returns the watchdog probe timeout as a Duration.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Watchdog.ProbeTimeout) * time.Second
}

// KeepAlive returns the MQTT keepalive interval as a Duration.
func (c *Config) KeepAlive() time.Duration {
	return time.Duration(c.Broker.KeepAlive) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
