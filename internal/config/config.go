package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/quotevault/")
	v.AddConfigPath("$HOME/.quotevault")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("QUOTEVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Remote backend defaults
	v.SetDefault("gateway.base_url", "http://localhost:54321")
	v.SetDefault("gateway.api_key", "")
	v.SetDefault("gateway.timeout", "10s")

	// Server defaults
	v.SetDefault("server.listen_address", "0.0.0.0:8080")
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.rate_burst", 40)

	// Local store defaults
	v.SetDefault("store.type", "memory")
	v.SetDefault("store.sqlite_path", "/data/quotevault_cache.db")
	v.SetDefault("store.mysql_dsn", "user:password@tcp(localhost:3306)/quotevault")

	// Query cache defaults
	v.SetDefault("cache.stale_time", "5m")
	v.SetDefault("cache.gc_time", "10m")
	v.SetDefault("cache.persist_throttle", "1s")
	v.SetDefault("cache.read_retries", 2)
	v.SetDefault("cache.mutation_retries", 1)

	// Pre-warm defaults
	v.SetDefault("prewarm.quotes_per_category", 10)
	v.SetDefault("prewarm.validity", "24h")

	// Offline quote pool defaults
	v.SetDefault("pool.max_quotes", 500)
	v.SetDefault("pool.validity", "24h")

	// Connectivity probe defaults
	v.SetDefault("netcheck.probe_url", "")
	v.SetDefault("netcheck.timeout", "3s")
	v.SetDefault("netcheck.cache_ttl", "5s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
