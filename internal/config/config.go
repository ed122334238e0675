package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Modbus   ModbusConfig   `mapstructure:"modbus"`
	Driver   DriverConfig   `mapstructure:"driver"`
	Channels ChannelsConfig `mapstructure:"channels"`
	Database DatabaseConfig `mapstructure:"database"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	GRPCPort        int           `mapstructure:"grpc_port"`
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Gateway der Netzteilsteuerung
type ModbusConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	UnitID   uint8         `mapstructure:"unit_id"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Backend  string        `mapstructure:"backend"`
}

type DriverConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	SettleDelay    time.Duration `mapstructure:"settle_delay"`
	SelectDelay    time.Duration `mapstructure:"select_delay"`
	SelectTimeout  time.Duration `mapstructure:"select_timeout"`
	SelectInterval time.Duration `mapstructure:"select_interval"`
	VerifyInterval time.Duration `mapstructure:"verify_interval"`
	VerifyTimeout  time.Duration `mapstructure:"verify_timeout"`
	VerifyWrites   bool          `mapstructure:"verify_writes"`
}

const (
	ChannelSourceFile     = "file"
	ChannelSourceDatabase = "database"
)

type ChannelsConfig struct {
	File   string `mapstructure:"file"`
	Source string `mapstructure:"source"`
}

type DatabaseConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client_id"`
}

// Auth Configuration
type AuthConfig struct {
	JWTSecretEnv   string        `mapstructure:"jwt_secret_env"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
	Users          []UserConfig  `mapstructure:"users"`
}

// UserConfig ist ein statischer Benutzer; PasswordHash kommt aus cmd/hashpw
type UserConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
	Role         string `mapstructure:"role"`
}

type LogConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Defaults setzen
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("modbus.endpoint", "")
	v.SetDefault("modbus.unit_id", 1)
	v.SetDefault("modbus.timeout", "2s")
	v.SetDefault("modbus.backend", "native")

	// Zeiten der Steuerung
	v.SetDefault("driver.poll_interval", "500ms")
	v.SetDefault("driver.retry_delay", "9s")
	v.SetDefault("driver.settle_delay", "100ms")
	v.SetDefault("driver.select_delay", "10ms")
	v.SetDefault("driver.select_timeout", "1s")
	v.SetDefault("driver.select_interval", "0s")
	v.SetDefault("driver.verify_interval", "10ms")
	v.SetDefault("driver.verify_timeout", "100ms")
	v.SetDefault("driver.verify_writes", true)

	v.SetDefault("channels.file", "configs/channels.yaml")
	v.SetDefault("channels.source", ChannelSourceFile)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.max_connections", 4)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.topic", "correctors/supply")
	v.SetDefault("mqtt.client_id", "corrector-mux")

	// Auth Defaults
	v.SetDefault("auth.jwt_secret_env", "JWT_SECRET")
	v.SetDefault("auth.access_token_ttl", "60m")

	v.SetDefault("log.development", false)
	v.SetDefault("log.level", "info")

	// Environment Variables mit Prefix CMUX_, z.B. CMUX_MODBUS_ENDPOINT
	v.SetEnvPrefix("CMUX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate prüft Pflichtfelder und Wertebereiche
func (c *Config) Validate() error {
	if c.Modbus.Endpoint == "" {
		return fmt.Errorf("modbus.endpoint is required")
	}
	switch c.Modbus.Backend {
	case "native", "goburrow":
	default:
		return fmt.Errorf("modbus.backend must be native or goburrow, got %q", c.Modbus.Backend)
	}
	if c.Modbus.Timeout <= 0 {
		return fmt.Errorf("modbus.timeout must be positive")
	}
	if c.Driver.PollInterval <= 0 {
		return fmt.Errorf("driver.poll_interval must be positive")
	}

	switch c.Channels.Source {
	case ChannelSourceFile:
		if c.Channels.File == "" {
			return fmt.Errorf("channels.file is required for source %q", ChannelSourceFile)
		}
	case ChannelSourceDatabase:
		if !c.Database.Enabled {
			return fmt.Errorf("channels.source %q needs database.enabled", ChannelSourceDatabase)
		}
	default:
		return fmt.Errorf("channels.source must be file or database, got %q", c.Channels.Source)
	}

	if c.MQTT.Enabled && (c.MQTT.Broker == "" || c.MQTT.Topic == "") {
		return fmt.Errorf("mqtt.broker and mqtt.topic are required when mqtt is enabled")
	}

	for _, u := range c.Auth.Users {
		if u.Username == "" || u.PasswordHash == "" {
			return fmt.Errorf("auth.users: username and password_hash are required")
		}
		switch u.Role {
		case "operator", "admin":
		default:
			return fmt.Errorf("auth.users: invalid role %q for %s", u.Role, u.Username)
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

const devJWTSecret = "dev-secret-change-in-production-min-32-chars"

// JWT Secret aus Environment Variable laden
func (a *AuthConfig) GetJWTSecret() string {
	envVar := a.JWTSecretEnv
	if envVar == "" {
		envVar = "JWT_SECRET" // Fallback
	}

	secret := os.Getenv(envVar)
	if secret == "" {
		// Development Fallback (MIT WARNING!)
		return devJWTSecret
	}
	return secret
}

// Helper um zu prüfen ob Production-Ready
func (a *AuthConfig) IsProductionReady() bool {
	secret := a.GetJWTSecret()
	return secret != devJWTSecret && len(secret) >= 32
}
