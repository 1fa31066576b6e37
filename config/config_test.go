package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/loadshed-mqtt/core/status"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, "config.yaml", `mqtt:
  broker: "tcp://broker:1883"
  client_id: "esp_mqtt"
  username: "user"
  password: "pass"
  qos: 0
esp:
  token: "abc"
  area_id: "capetown-7-gardens"
  test: "future"
homie:
  max_events: 3
schedule:
  timezone: "UTC"
  next_end_policy: "upcoming"
metrics:
  prometheus_enabled: true
cache:
  path: "/var/lib/loadshed/cache.db"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"broker", cfg.MQTT.Broker, "tcp://broker:1883"},
		{"client_id", cfg.MQTT.ClientID, "esp_mqtt"},
		{"username", cfg.MQTT.Username, "user"},
		{"qos", cfg.MQTT.QoS, byte(0)},
		{"retain default", cfg.MQTT.Retain, true},
		{"token", cfg.ESP.Token, "abc"},
		{"area", cfg.ESP.AreaID, "capetown-7-gardens"},
		{"test", cfg.ESP.Test, "future"},
		{"api_url default", cfg.ESP.APIURL, "https://developer.sepush.co.za/business/2.0"},
		{"base_topic", cfg.Homie.BaseTopic, "homie"},
		{"device_id", cfg.Homie.DeviceID, "eskomsepush"},
		{"max_events", cfg.Homie.MaxEvents, 3},
		{"init", cfg.Schedule.InitSeconds, 86400},
		{"publish_all", cfg.Schedule.PublishAllSeconds, 60},
		{"allowance", cfg.Schedule.AllowanceRefreshSeconds, 600},
		{"prometheus", cfg.Metrics.PrometheusEnabled, true},
		{"prometheus_addr", cfg.Metrics.PrometheusAddr, ":2112"},
		{"cache", cfg.Cache.Enabled(), true},
		{"level", cfg.Logging.Level, "info"},
	}
	for _, c := range checks {
		assert.Equal(t, c.want, c.got, c.name)
	}

	pc, err := cfg.Schedule.PollerConfig(cfg.ESP.AreaID)
	require.NoError(t, err)
	assert.Equal(t, "capetown-7-gardens", pc.AreaID)
	assert.Equal(t, 5*time.Second, pc.Tick)
	assert.Equal(t, 24*time.Hour, pc.InitInterval)
	assert.Equal(t, time.UTC, pc.Location)
	assert.Equal(t, status.NextEndUpcoming, pc.Status.NextEnd)
	assert.Equal(t, 15*time.Minute, pc.Status.Warn15Min)
}

func TestLoadJSONWithEnvOverride(t *testing.T) {
	path := writeFile(t, "config.json", `{"esp":{"token":"file","area_id":"a"}}`)
	t.Setenv("LS_ESP__TOKEN", "env")
	t.Setenv("LS_MQTT__RETAIN", "false")
	t.Setenv("LS_HOMIE__DEVICE_ID", "esp-2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env", cfg.ESP.Token)
	assert.False(t, cfg.MQTT.Retain)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.Equal(t, "esp-2", cfg.Homie.DeviceID)
	assert.Equal(t, "Africa/Johannesburg", cfg.Schedule.Timezone)
}

func TestLoadEnvOnly(t *testing.T) {
	t.Setenv("LS_ESP__TOKEN", "t")
	t.Setenv("LS_ESP__AREA_ID", "a")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "a", cfg.ESP.AreaID)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(writeFile(t, "config.toml", ""))
	assert.ErrorContains(t, err, "unsupported config format")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "c.yaml", "esp:\n  area_id: a\n"))
	assert.ErrorContains(t, err, "token is required")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		var c Config
		c.ESP.Token, c.ESP.AreaID = "t", "a"
		c.SetDefaults()
		return c
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(*Config){
		"timezone":      func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" },
		"policy":        func(c *Config) { c.Schedule.NextEndPolicy = "sometimes" },
		"warn order":    func(c *Config) { c.Schedule.Warn5MinSeconds = 3600 },
		"device id":     func(c *Config) { c.Homie.DeviceID = "Eskom/Push" },
		"base topic":    func(c *Config) { c.Homie.BaseTopic = "homie/#" },
		"max events":    func(c *Config) { c.Homie.MaxEvents = -1 },
		"level":         func(c *Config) { c.Logging.Level = "loud" },
		"qos":           func(c *Config) { c.MQTT.QoS = 5 },
		"influx":        func(c *Config) { c.Metrics.InfluxEnabled = true },
		"sentry sample": func(c *Config) { c.Sentry.TracesSampleRate = 2 },
		"esp test":      func(c *Config) { c.ESP.Test = "past" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestDeviceInfo(t *testing.T) {
	var h HomieConfig
	h.SetDefaults()
	info := h.DeviceInfo()
	assert.Equal(t, "eskomsepush", info.ID)
	assert.Equal(t, "Eskom Loadshedding Schedule", info.Name)
	assert.Equal(t, "esp_mqtt", info.Implementation)
}
