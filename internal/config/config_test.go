package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "modbus:\n  endpoint: 10.0.0.5:502\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.HTTPPort != 8080 || cfg.Server.GRPCPort != 50051 {
		t.Errorf("unexpected ports: %+v", cfg.Server)
	}
	if cfg.Modbus.UnitID != 1 || cfg.Modbus.Timeout != 2*time.Second || cfg.Modbus.Backend != "native" {
		t.Errorf("unexpected modbus config: %+v", cfg.Modbus)
	}
	if cfg.Driver.RetryDelay != 9*time.Second {
		t.Errorf("expected retry delay 9s, got %v", cfg.Driver.RetryDelay)
	}
	if cfg.Driver.SelectTimeout != time.Second || cfg.Driver.VerifyTimeout != 100*time.Millisecond {
		t.Errorf("unexpected driver timing: %+v", cfg.Driver)
	}
	if !cfg.Driver.VerifyWrites {
		t.Error("verify_writes should default to true")
	}
	if cfg.Channels.Source != ChannelSourceFile {
		t.Errorf("expected file source, got %q", cfg.Channels.Source)
	}
	if cfg.Database.Enabled || cfg.MQTT.Enabled {
		t.Error("database and mqtt should be disabled by default")
	}
}

func TestLoadValues(t *testing.T) {
	path := writeConfig(t, `
server:
  http_port: 9090
modbus:
  endpoint: plc:502
  unit_id: 3
  backend: goburrow
driver:
  poll_interval: 250ms
  verify_writes: false
mqtt:
  enabled: true
  broker: tcp://broker:1883
auth:
  users:
    - username: alice
      password_hash: "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA"
      role: admin
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPPort != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.HTTPPort)
	}
	if cfg.Modbus.UnitID != 3 || cfg.Modbus.Backend != "goburrow" {
		t.Errorf("unexpected modbus config: %+v", cfg.Modbus)
	}
	if cfg.Driver.PollInterval != 250*time.Millisecond || cfg.Driver.VerifyWrites {
		t.Errorf("unexpected driver config: %+v", cfg.Driver)
	}
	if cfg.MQTT.Topic != "correctors/supply" {
		t.Errorf("expected default topic, got %q", cfg.MQTT.Topic)
	}
	if len(cfg.Auth.Users) != 1 || cfg.Auth.Users[0].Role != "admin" {
		t.Errorf("unexpected users: %+v", cfg.Auth.Users)
	}
}

func TestLoadEnvironmentOverride(t *testing.T) {
	path := writeConfig(t, "modbus:\n  endpoint: 10.0.0.5:502\n")
	t.Setenv("CMUX_MODBUS_ENDPOINT", "192.168.1.20:502")
	t.Setenv("CMUX_DRIVER_RETRY_DELAY", "3s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Modbus.Endpoint != "192.168.1.20:502" {
		t.Errorf("expected endpoint from env, got %q", cfg.Modbus.Endpoint)
	}
	if cfg.Driver.RetryDelay != 3*time.Second {
		t.Errorf("expected retry delay from env, got %v", cfg.Driver.RetryDelay)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Modbus:   ModbusConfig{Endpoint: "plc:502", Backend: "native", Timeout: time.Second},
			Driver:   DriverConfig{PollInterval: time.Second},
			Channels: ChannelsConfig{Source: ChannelSourceFile, File: "channels.yaml"},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"valid", func(c *Config) {}, ""},
		{"endpoint", func(c *Config) { c.Modbus.Endpoint = "" }, "modbus.endpoint"},
		{"backend", func(c *Config) { c.Modbus.Backend = "rtu" }, "modbus.backend"},
		{"poll interval", func(c *Config) { c.Driver.PollInterval = 0 }, "poll_interval"},
		{"channel source", func(c *Config) { c.Channels.Source = "ldap" }, "channels.source"},
		{"database source", func(c *Config) { c.Channels.Source = ChannelSourceDatabase }, "database.enabled"},
		{"mqtt broker", func(c *Config) { c.MQTT.Enabled = true }, "mqtt.broker"},
		{"user role", func(c *Config) {
			c.Auth.Users = []UserConfig{{Username: "bob", PasswordHash: "x", Role: "root"}}
		}, "invalid role"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.want == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestJWTSecret(t *testing.T) {
	a := AuthConfig{JWTSecretEnv: "CMUX_TEST_SECRET"}
	t.Setenv("CMUX_TEST_SECRET", "")
	if a.IsProductionReady() {
		t.Error("development secret must not be production ready")
	}
	t.Setenv("CMUX_TEST_SECRET", strings.Repeat("s", 32))
	if a.GetJWTSecret() != strings.Repeat("s", 32) || !a.IsProductionReady() {
		t.Error("expected secret from environment")
	}
}
