package metrics

import "fmt"

// Config selects the enabled metrics sinks.
type Config struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusAddr    string `json:"prometheus_addr"`
	InfluxEnabled     bool   `json:"influx_enabled"`
	InfluxURL         string `json:"influx_url"`
	InfluxToken       string `json:"influx_token"`
	InfluxOrg         string `json:"influx_org"`
	InfluxBucket      string `json:"influx_bucket"`
}

func (c *Config) SetDefaults() {
	if c.PrometheusAddr == "" {
		c.PrometheusAddr = ":2112"
	}
}

func (c Config) Validate() error {
	if c.InfluxEnabled && (c.InfluxURL == "" || c.InfluxOrg == "" || c.InfluxBucket == "") {
		return fmt.Errorf("metrics: influx_enabled requires influx_url, influx_org and influx_bucket")
	}
	return nil
}
