package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const validJWTSecret = "test-secret-key-at-least-32-chars!"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
mqtt:
  broker:
    host: "broker.local"
    port: 1883
  qos: 1
api:
  port: 9000
signals:
  source: valkey
  refresh_interval: 250ms
valkey:
  enabled: true
  address: "cache:6379"
  signal_key: "plant:signals"
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q", cfg.MQTT.Broker.Host)
	}
	if cfg.API.Port != 9000 {
		t.Errorf("API.Port = %d, want 9000", cfg.API.Port)
	}
	if cfg.Signals.Source != SignalSourceValkey {
		t.Errorf("Signals.Source = %q", cfg.Signals.Source)
	}
	if cfg.Signals.RefreshInterval != 250*time.Millisecond {
		t.Errorf("Signals.RefreshInterval = %v, want 250ms", cfg.Signals.RefreshInterval)
	}
	if cfg.Valkey.SignalKey != "plant:signals" {
		t.Errorf("Valkey.SignalKey = %q", cfg.Valkey.SignalKey)
	}
	// Defaults survive for keys not in the file.
	if cfg.WebSocket.Path != "/ws" {
		t.Errorf("WebSocket.Path = %q, want default /ws", cfg.WebSocket.Path)
	}
	if cfg.Database.BusyTimeout != 5 {
		t.Errorf("Database.BusyTimeout = %d, want default 5", cfg.Database.BusyTimeout)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "invalid: [yaml: content")); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
site:
  id: ""
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`)
	if _, err := Load(configPath); err == nil {
		t.Error("Load() expected validation error for empty site.id, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	configPath := writeConfig(t, `
site:
  id: "test-site"
security:
  jwt:
    secret: "file-secret-that-is-long-enough-000"
`)

	t.Setenv("TAGREGISTRY_DATABASE_PATH", "/env/db.sqlite")
	t.Setenv("TAGREGISTRY_API_PORT", "9100")
	t.Setenv("TAGREGISTRY_SIGNALS_SOURCE", "none")
	t.Setenv("TAGREGISTRY_JWT_SECRET", validJWTSecret)
	t.Setenv("TAGREGISTRY_VALKEY_ADDRESS", "valkey:6380")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "/env/db.sqlite" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.API.Port != 9100 {
		t.Errorf("API.Port = %d, want 9100", cfg.API.Port)
	}
	if cfg.Signals.Source != SignalSourceNone {
		t.Errorf("Signals.Source = %q", cfg.Signals.Source)
	}
	if cfg.Security.JWT.Secret != validJWTSecret {
		t.Error("JWT secret not overridden from environment")
	}
	if cfg.Valkey.Address != "valkey:6380" {
		t.Errorf("Valkey.Address = %q", cfg.Valkey.Address)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults with secret", mutate: func(*Config) {}},
		{name: "missing site ID", mutate: func(c *Config) { c.Site.ID = "" }, wantErr: true},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: true},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: true},
		{name: "missing JWT secret", mutate: func(c *Config) { c.Security.JWT.Secret = "" }, wantErr: true},
		{name: "JWT secret too short", mutate: func(c *Config) { c.Security.JWT.Secret = "short" }, wantErr: true},
		{
			name: "JWT disabled needs no secret",
			mutate: func(c *Config) {
				c.Security.JWT.Enabled = false
				c.Security.JWT.Secret = ""
			},
		},
		{name: "unknown signal source", mutate: func(c *Config) { c.Signals.Source = "kafka" }, wantErr: true},
		{name: "mqtt source without mqtt", mutate: func(c *Config) { c.MQTT.Enabled = false }, wantErr: true},
		{
			name: "valkey source without key",
			mutate: func(c *Config) {
				c.Signals.Source = SignalSourceValkey
				c.Valkey.SignalKey = ""
			},
			wantErr: true,
		},
		{
			name: "valkey source disabled",
			mutate: func(c *Config) {
				c.Signals.Source = SignalSourceValkey
				c.Valkey.Enabled = false
			},
			wantErr: true,
		},
		{
			name:    "refresh too fast",
			mutate:  func(c *Config) { c.Signals.RefreshInterval = time.Millisecond },
			wantErr: true,
		},
		{
			name: "no source ignores interval",
			mutate: func(c *Config) {
				c.Signals.Source = SignalSourceNone
				c.Signals.RefreshInterval = 0
			},
		},
		{
			name:    "influxdb enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Security.JWT.Secret = validJWTSecret
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Timeouts(t *testing.T) {
	cfg := defaultConfig()

	if got := cfg.GetReadTimeout(); got != 30*time.Second {
		t.Errorf("GetReadTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetWriteTimeout(); got != 30*time.Second {
		t.Errorf("GetWriteTimeout() = %v, want 30s", got)
	}
	if got := cfg.GetIdleTimeout(); got != 60*time.Second {
		t.Errorf("GetIdleTimeout() = %v, want 60s", got)
	}
	if got := cfg.GetAccessTokenTTL(); got != time.Hour {
		t.Errorf("GetAccessTokenTTL() = %v, want 1h", got)
	}
}
