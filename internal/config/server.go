package config

import "strconv"

// ServerConfig holds settings for serving the application under test
type ServerConfig struct {
	Port string
	// ShutdownGrace is the number of seconds outstanding requests get on SIGTERM.
	ShutdownGrace int
}

// LoadServerConfig reads PORT and SITETEST_SHUTDOWN_GRACE. Unparseable or
// negative grace periods fall back to 30 seconds.
func LoadServerConfig(getenv func(string) string) ServerConfig {
	cfg := ServerConfig{Port: getenv("PORT"), ShutdownGrace: 30}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if grace, err := strconv.Atoi(getenv("SITETEST_SHUTDOWN_GRACE")); err == nil && grace >= 0 {
		cfg.ShutdownGrace = grace
	}
	return cfg
}
