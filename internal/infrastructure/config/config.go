package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Signal source modes.
const (
	SignalSourceMQTT   = "mqtt"
	SignalSourceValkey = "valkey"
	SignalSourceNone   = "none"
)

// Config is the root configuration structure for the tag registry service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Valkey    ValkeyConfig    `yaml:"valkey"`
	Signals   SignalsConfig   `yaml:"signals"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// SiteConfig identifies the installation the registry serves.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
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
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for tag value history.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// ValkeyConfig contains Valkey/Redis settings for the signal snapshot hash.
type ValkeyConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Address   string `yaml:"address"` // host:port
	Password  string `yaml:"password"`
	Database  int    `yaml:"database"`
	UseTLS    bool   `yaml:"use_tls"`
	SignalKey string `yaml:"signal_key"` // hash holding "<device>#<tag>" fields
}

// SignalsConfig controls the live value overlay.
type SignalsConfig struct {
	// Source is one of "mqtt", "valkey" or "none".
	Source          string        `yaml:"source"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains bearer token settings for mutating API routes.
type JWTConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: TAGREGISTRY_SECTION_KEY
// For example: TAGREGISTRY_DATABASE_PATH, TAGREGISTRY_API_PORT
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

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Tag Registry",
		},
		Database: DatabaseConfig{
			Path:        "./data/tagregistry.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "tagregistry",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
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
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     500,
			FlushInterval: 10,
		},
		Valkey: ValkeyConfig{
			Address:   "localhost:6379",
			SignalKey: "tagregistry:signals",
		},
		Signals: SignalsConfig{
			Source:          SignalSourceMQTT,
			RefreshInterval: time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				Enabled:        true,
				AccessTokenTTL: 60,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: TAGREGISTRY_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("TAGREGISTRY_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("TAGREGISTRY_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("TAGREGISTRY_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("TAGREGISTRY_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("TAGREGISTRY_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("TAGREGISTRY_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("TAGREGISTRY_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Valkey
	if v := os.Getenv("TAGREGISTRY_VALKEY_ADDRESS"); v != "" {
		cfg.Valkey.Address = v
	}
	if v := os.Getenv("TAGREGISTRY_VALKEY_PASSWORD"); v != "" {
		cfg.Valkey.Password = v
	}

	// Signals
	if v := os.Getenv("TAGREGISTRY_SIGNALS_SOURCE"); v != "" {
		cfg.Signals.Source = v
	}

	// Logging
	if v := os.Getenv("TAGREGISTRY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Security - JWT secret (always override in production)
	if v := os.Getenv("TAGREGISTRY_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	switch c.Signals.Source {
	case SignalSourceMQTT:
		if !c.MQTT.Enabled {
			errs = append(errs, "signals.source mqtt requires mqtt.enabled")
		}
	case SignalSourceValkey:
		if !c.Valkey.Enabled {
			errs = append(errs, "signals.source valkey requires valkey.enabled")
		}
		if c.Valkey.Address == "" || c.Valkey.SignalKey == "" {
			errs = append(errs, "signals.source valkey requires valkey.address and valkey.signal_key")
		}
	case SignalSourceNone:
	default:
		errs = append(errs, fmt.Sprintf("signals.source must be %q, %q or %q",
			SignalSourceMQTT, SignalSourceValkey, SignalSourceNone))
	}
	if c.Signals.Source != SignalSourceNone && c.Signals.RefreshInterval < 100*time.Millisecond {
		errs = append(errs, "signals.refresh_interval must be at least 100ms")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	// JWT secret is required whenever token auth is on; weak secrets allow
	// forged tokens to rewrite tag configuration.
	const minJWTSecretLength = 32
	if c.Security.JWT.Enabled {
		if c.Security.JWT.Secret == "" {
			errs = append(errs, "security.jwt.secret is required (set TAGREGISTRY_JWT_SECRET environment variable)")
		} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
			errs = append(errs, "security.jwt.secret must be at least 32 characters")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
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

// GetAccessTokenTTL returns the lifetime of issued access tokens.
func (c *Config) GetAccessTokenTTL() time.Duration {
	return time.Duration(c.Security.JWT.AccessTokenTTL) * time.Minute
}
