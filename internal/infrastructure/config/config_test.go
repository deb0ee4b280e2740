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
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// validConfig returns a config that passes validation.
func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Database.Path = "/data/macropilot.db"
	return cfg
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
vessel:
  id: "lander-1"
  name: "Lander"
  source: "sim"
  sim:
    latitude: -0.1
    longitude: 74.5
    heading: 90
    action_groups: ["gear", "lights"]
engine:
  tick_hz: 20
  max_ticks: 5000
  intervention: "abort"
  smoothing:
    p: 0.6
    i: 0.2
database:
  path: "/tmp/test.db"
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  port: 8080
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Vessel.ID != "lander-1" {
		t.Errorf("Vessel.ID = %q, want %q", cfg.Vessel.ID, "lander-1")
	}
	if cfg.Vessel.Sim.Longitude != 74.5 {
		t.Errorf("Vessel.Sim.Longitude = %v, want 74.5", cfg.Vessel.Sim.Longitude)
	}
	if len(cfg.Vessel.Sim.ActionGroups) != 2 {
		t.Errorf("Vessel.Sim.ActionGroups = %v, want 2 groups", cfg.Vessel.Sim.ActionGroups)
	}
	if cfg.Engine.MaxTicks != 5000 {
		t.Errorf("Engine.MaxTicks = %d, want 5000", cfg.Engine.MaxTicks)
	}
	if cfg.Engine.Intervention != "abort" {
		t.Errorf("Engine.Intervention = %q, want abort", cfg.Engine.Intervention)
	}
	if cfg.Engine.Smoothing.P != 0.6 || cfg.Engine.Smoothing.I != 0.2 {
		t.Errorf("Engine.Smoothing = %+v, want {0.6 0.2}", cfg.Engine.Smoothing)
	}
	if got := cfg.GetTickInterval(); got != 50*time.Millisecond {
		t.Errorf("GetTickInterval() = %v, want 50ms", got)
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	// Unset sections keep their defaults.
	if cfg.Vessel.BodyRadius != 600000 {
		t.Errorf("Vessel.BodyRadius = %v, want default 600000", cfg.Vessel.BodyRadius)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
vessel:
  id: ""
engine:
  tick_hz: 0
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	// Every problem is reported, not just the first.
	for _, want := range []string{"vessel.id", "engine.tick_hz"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "valid config", modify: func(*Config) {}},
		{name: "missing vessel ID", modify: func(c *Config) { c.Vessel.ID = "" }, wantErr: true},
		{name: "unknown source", modify: func(c *Config) { c.Vessel.Source = "serial" }, wantErr: true},
		{name: "mqtt source without mqtt", modify: func(c *Config) { c.Vessel.Source = SourceMQTT }, wantErr: true},
		{
			name: "mqtt source with mqtt",
			modify: func(c *Config) {
				c.Vessel.Source = SourceMQTT
				c.MQTT.Enabled = true
			},
		},
		{name: "zero body radius", modify: func(c *Config) { c.Vessel.BodyRadius = 0 }, wantErr: true},
		{name: "zero tick rate", modify: func(c *Config) { c.Engine.TickHz = 0 }, wantErr: true},
		{name: "negative max ticks", modify: func(c *Config) { c.Engine.MaxTicks = -1 }, wantErr: true},
		{name: "unknown intervention policy", modify: func(c *Config) { c.Engine.Intervention = "ignore" }, wantErr: true},
		{name: "proportional gain above one", modify: func(c *Config) { c.Engine.Smoothing.P = 1.5 }, wantErr: true},
		{name: "zero proportional gain", modify: func(c *Config) { c.Engine.Smoothing.P = 0 }, wantErr: true},
		{name: "negative integral gain", modify: func(c *Config) { c.Engine.Smoothing.I = -0.1 }, wantErr: true},
		{name: "missing database path", modify: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "invalid QoS", modify: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "invalid port low", modify: func(c *Config) { c.API.Port = 0 }, wantErr: true},
		{name: "invalid port high", modify: func(c *Config) { c.API.Port = 70000 }, wantErr: true},
		{name: "influxdb without url", modify: func(c *Config) { c.InfluxDB.Enabled = true }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestConfig_GetTickInterval(t *testing.T) {
	tests := []struct {
		hz   float64
		want time.Duration
	}{
		{hz: 10, want: 100 * time.Millisecond},
		{hz: 4, want: 250 * time.Millisecond},
		{hz: 0, want: 0},
	}
	for _, tt := range tests {
		cfg := &Config{Engine: EngineConfig{TickHz: tt.hz}}
		if got := cfg.GetTickInterval(); got != tt.want {
			t.Errorf("GetTickInterval() at %v Hz = %v, want %v", tt.hz, got, tt.want)
		}
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("MACROPILOT_VESSEL_ID", "rover-7")
	t.Setenv("MACROPILOT_VESSEL_SOURCE", "mqtt")
	t.Setenv("MACROPILOT_ENGINE_TICK_HZ", "25")
	t.Setenv("MACROPILOT_ENGINE_AUTO_LOAD", "Landing")
	t.Setenv("MACROPILOT_DATABASE_PATH", "/custom/path.db")
	t.Setenv("MACROPILOT_MQTT_HOST", "mqtt.example.com")
	t.Setenv("MACROPILOT_MQTT_USERNAME", "testuser")
	t.Setenv("MACROPILOT_MQTT_PASSWORD", "testpass")
	t.Setenv("MACROPILOT_API_HOST", "192.168.1.1")
	t.Setenv("MACROPILOT_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("MACROPILOT_LOG_LEVEL", "debug")

	applyEnvOverrides(cfg)

	checks := []struct {
		field, got, want string
	}{
		{"Vessel.ID", cfg.Vessel.ID, "rover-7"},
		{"Vessel.Source", cfg.Vessel.Source, "mqtt"},
		{"Engine.AutoLoad", cfg.Engine.AutoLoad, "Landing"},
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Logging.Level", cfg.Logging.Level, "debug"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.field, c.got, c.want)
		}
	}
	if cfg.Engine.TickHz != 25 {
		t.Errorf("Engine.TickHz = %v, want 25", cfg.Engine.TickHz)
	}
}

func TestApplyEnvOverrides_IgnoresBadTickRate(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("MACROPILOT_ENGINE_TICK_HZ", "fast")

	applyEnvOverrides(cfg)

	if cfg.Engine.TickHz != 10 {
		t.Errorf("Engine.TickHz = %v, want default 10", cfg.Engine.TickHz)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Vessel.ID == "" {
		t.Error("defaultConfig should have non-empty Vessel.ID")
	}
	if cfg.Vessel.Source != SourceSim {
		t.Errorf("defaultConfig Vessel.Source = %q, want %q", cfg.Vessel.Source, SourceSim)
	}
	if cfg.Engine.Smoothing.P != 0.8 || cfg.Engine.Smoothing.I != 0.3 {
		t.Errorf("defaultConfig Engine.Smoothing = %+v, want {0.8 0.3}", cfg.Engine.Smoothing)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaultConfig does not validate: %v", err)
	}
}
