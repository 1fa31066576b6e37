package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/loadshed-mqtt/infra/esp"
	"github.com/kilianp07/loadshed-mqtt/infra/metrics"
	"github.com/kilianp07/loadshed-mqtt/infra/mqtt"
)

// EnvPrefix prefixes environment overrides, e.g. LS_ESP__TOKEN sets esp.token.
const EnvPrefix = "LS_"

type Config struct {
	MQTT     mqtt.Config    `json:"mqtt"`
	ESP      esp.Config     `json:"esp"`
	Homie    HomieConfig    `json:"homie"`
	Schedule ScheduleConfig `json:"schedule"`
	Metrics  metrics.Config `json:"metrics"`
	Cache    CacheConfig    `json:"cache"`
	Logging  LoggingConfig  `json:"logging"`
	Sentry   SentryConfig   `json:"sentry"`
}

// defaults covers keys whose zero value is meaningful and therefore cannot
// be filled in by SetDefaults.
var defaults = map[string]any{
	"mqtt.qos":    1,
	"mqtt.retain": true,
}

// Load reads the yaml or json file at path, applies LS_ environment
// overrides and validates the result. An empty path loads defaults and the
// environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	for key, v := range defaults {
		if err := k.Set(key, v); err != nil {
			return nil, err
		}
	}
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies the defaults of every section.
func (c *Config) SetDefaults() {
	c.MQTT.SetDefaults()
	c.ESP.SetDefaults()
	c.Homie.SetDefaults()
	c.Schedule.SetDefaults()
	c.Metrics.SetDefaults()
	c.Logging.SetDefaults()
}

// Validate checks every section and reports all problems at once.
func (c Config) Validate() error {
	return errors.Join(
		c.MQTT.Validate(),
		c.ESP.Validate(),
		c.Homie.Validate(),
		c.Schedule.Validate(),
		c.Metrics.Validate(),
		c.Logging.Validate(),
		c.Sentry.Validate(),
	)
}
