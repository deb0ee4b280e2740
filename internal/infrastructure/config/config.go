package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Vessel sources.
const (
	SourceSim  = "sim"
	SourceMQTT = "mqtt"
)

// Config is the root configuration structure for the macro autopilot.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Vessel    VesselConfig    `yaml:"vessel"`
	Engine    EngineConfig    `yaml:"engine"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// VesselConfig selects the vessel the engine controls.
type VesselConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	// Source is "sim" for the built-in kinematic model or "mqtt" for a
	// vessel bridged over MQTT.
	Source string `yaml:"source"`

	// BodyRadius in metres of the body the vessel is on.
	BodyRadius float64 `yaml:"body_radius"`

	Sim SimConfig `yaml:"sim"`
}

// SimConfig is the initial state of a simulated vessel.
type SimConfig struct {
	Latitude     float64           `yaml:"latitude"`
	Longitude    float64           `yaml:"longitude"`
	Altitude     float64           `yaml:"altitude"`
	Heading      float64           `yaml:"heading"`
	MaxSpeed     float64           `yaml:"max_speed"`
	TurnRate     float64           `yaml:"turn_rate"`
	Charge       float64           `yaml:"charge"`
	ChargeDrain  float64           `yaml:"charge_drain"`
	ActionGroups []string          `yaml:"action_groups"`
	Parts        map[string]string `yaml:"parts"`
}

// EngineConfig contains macro engine settings.
type EngineConfig struct {
	// TickHz is the number of ticks per second.
	TickHz float64 `yaml:"tick_hz"`

	// MaxTicks fails a run after this many ticks. 0 means unlimited.
	MaxTicks int `yaml:"max_ticks"`

	// Intervention is what a run does while the pilot steers: "pause" or "abort".
	Intervention string `yaml:"intervention"`

	// Smoothing are the default PI gains for smoothing actions.
	Smoothing SmoothingConfig `yaml:"smoothing"`

	// AutoLoad is the name of a library macro loaded at startup.
	AutoLoad string `yaml:"auto_load"`

	// ImportFile is an optional library file imported at startup.
	ImportFile string `yaml:"import_file"`
}

// SmoothingConfig contains PI controller gains.
type SmoothingConfig struct {
	P float64 `yaml:"p"`
	I float64 `yaml:"i"`
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

// APITimeoutConfig contains HTTP timeout settings.
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
// Environment variables follow the pattern: MACROPILOT_SECTION_KEY
// For example: MACROPILOT_DATABASE_PATH, MACROPILOT_VESSEL_ID
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

// Default returns the default configuration, with environment overrides
// applied. It is used when no config file exists.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Vessel: VesselConfig{
			ID:         "vessel-1",
			Name:       "Vessel 1",
			Source:     SourceSim,
			BodyRadius: 600000,
			Sim: SimConfig{
				MaxSpeed: 50,
				TurnRate: 30,
				Charge:   100,
			},
		},
		Engine: EngineConfig{
			TickHz:       10,
			Intervention: "pause",
			Smoothing: SmoothingConfig{
				P: 0.8,
				I: 0.3,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/macropilot.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "macropilot",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
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
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MACROPILOT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Vessel
	if v := os.Getenv("MACROPILOT_VESSEL_ID"); v != "" {
		cfg.Vessel.ID = v
	}
	if v := os.Getenv("MACROPILOT_VESSEL_SOURCE"); v != "" {
		cfg.Vessel.Source = v
	}

	// Engine
	if v := os.Getenv("MACROPILOT_ENGINE_TICK_HZ"); v != "" {
		if hz, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Engine.TickHz = hz
		}
	}
	if v := os.Getenv("MACROPILOT_ENGINE_AUTO_LOAD"); v != "" {
		cfg.Engine.AutoLoad = v
	}

	// Database
	if v := os.Getenv("MACROPILOT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("MACROPILOT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("MACROPILOT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MACROPILOT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("MACROPILOT_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("MACROPILOT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("MACROPILOT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// All problems are reported together in a single error.
func (c *Config) Validate() error {
	var errs []string

	// Vessel validation
	if c.Vessel.ID == "" {
		errs = append(errs, "vessel.id is required")
	}
	switch c.Vessel.Source {
	case SourceSim:
	case SourceMQTT:
		if !c.MQTT.Enabled {
			errs = append(errs, "vessel.source mqtt requires mqtt.enabled")
		}
	default:
		errs = append(errs, fmt.Sprintf("vessel.source must be %q or %q", SourceSim, SourceMQTT))
	}
	if c.Vessel.BodyRadius <= 0 {
		errs = append(errs, "vessel.body_radius must be positive")
	}

	// Engine validation
	if c.Engine.TickHz <= 0 {
		errs = append(errs, "engine.tick_hz must be positive")
	}
	if c.Engine.MaxTicks < 0 {
		errs = append(errs, "engine.max_ticks must not be negative")
	}
	if c.Engine.Intervention != "pause" && c.Engine.Intervention != "abort" {
		errs = append(errs, "engine.intervention must be pause or abort")
	}
	if c.Engine.Smoothing.P <= 0 || c.Engine.Smoothing.P > 1 {
		errs = append(errs, "engine.smoothing.p must be in (0, 1]")
	}
	if c.Engine.Smoothing.I < 0 {
		errs = append(errs, "engine.smoothing.i must not be negative")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetTickInterval returns the engine tick interval as a Duration.
func (c *Config) GetTickInterval() time.Duration {
	if c.Engine.TickHz <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / c.Engine.TickHz)
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
