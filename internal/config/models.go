package config

// GatewayConfig represents the configuration for the remote backend
type GatewayConfig struct {
	BaseURL string
	APIKey  string
}

// ServerConfig represents the configuration for the HTTP server
type ServerConfig struct {
	ListenAddress string
	RateLimit     float64
	RateBurst     int
}

// StoreConfig represents the configuration for the local store
type StoreConfig struct {
	Type       string
	SQLitePath string
	MySQLDSN   string
}

// PrewarmConfig represents the configuration for cache pre-warming
type PrewarmConfig struct {
	QuotesPerCategory int
}

// PoolConfig represents the configuration for the offline quote pool
type PoolConfig struct {
	MaxQuotes int
}

// GetGateway returns the backend configuration
func (c *Config) GetGateway() GatewayConfig {
	return GatewayConfig{
		BaseURL: c.GetString("gateway.base_url"),
		APIKey:  c.GetString("gateway.api_key"),
	}
}

// GetServer returns the HTTP server configuration
func (c *Config) GetServer() ServerConfig {
	return ServerConfig{
		ListenAddress: c.GetString("server.listen_address"),
		RateLimit:     c.GetFloat64("server.rate_limit"),
		RateBurst:     c.GetInt("server.rate_burst"),
	}
}

// GetStore returns the local store configuration
func (c *Config) GetStore() StoreConfig {
	return StoreConfig{
		Type:       c.GetString("store.type"),
		SQLitePath: c.GetString("store.sqlite_path"),
		MySQLDSN:   c.GetString("store.mysql_dsn"),
	}
}

// GetPrewarm returns the pre-warm configuration
func (c *Config) GetPrewarm() PrewarmConfig {
	return PrewarmConfig{
		QuotesPerCategory: c.GetInt("prewarm.quotes_per_category"),
	}
}

// GetPool returns the quote pool configuration
func (c *Config) GetPool() PoolConfig {
	return PoolConfig{
		MaxQuotes: c.GetInt("pool.max_quotes"),
	}
}
