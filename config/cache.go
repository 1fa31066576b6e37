package config

// CacheConfig enables the SQLite schedule cache when Path is set.
type CacheConfig struct {
	Path string `json:"path"`
}

func (c CacheConfig) Enabled() bool { return c.Path != "" }
