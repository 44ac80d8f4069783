package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Defaults applied before the optional config file and the environment.
const (
	DefaultSandboxRoot  = "sites/simpletest"
	DefaultOriginalSite = "sites/default"
	DefaultProfile      = "testing"
	DefaultTimeLimit    = 500 * time.Second
	DefaultBrowser      = "http"
	DefaultDriver       = "sqlite"
)

// ErrDomainRequired is returned when no target domain is configured.
var ErrDomainRequired = errors.New("DOMAIN is required: provide a DOMAIN environment variable to run functional tests")

// StorageConfig selects the storage engine shared by the test runner and the
// served application.
type StorageConfig struct {
	Driver    string `mapstructure:"driver"`
	DSN       string `mapstructure:"dsn"`
	RunnerDSN string `mapstructure:"runner_dsn"`
}

// HarnessConfig holds everything a test run needs to know about its
// surroundings.
type HarnessConfig struct {
	Domain       string        `mapstructure:"domain"`
	Scheme       string        `mapstructure:"scheme"`
	BasePath     string        `mapstructure:"base_path"`
	SandboxRoot  string        `mapstructure:"sandbox_root"`
	OriginalSite string        `mapstructure:"original_site"`
	Profile      string        `mapstructure:"profile"`
	TimeLimit    time.Duration `mapstructure:"time_limit"`
	Browser      string        `mapstructure:"browser"`
	Headless     bool          `mapstructure:"headless"`
	LogLevel     string        `mapstructure:"log_level"`
	DebugSession string        `mapstructure:"debug_session"`
	DebugConfig  string        `mapstructure:"debug_config"`
	Storage      StorageConfig `mapstructure:"storage"`
}

// harnessEnv maps config keys to the environment variables overriding them.
var harnessEnv = map[string]string{
	"domain":             "DOMAIN",
	"scheme":             "SITETEST_SCHEME",
	"base_path":          "SITETEST_BASE_PATH",
	"sandbox_root":       "SITETEST_SANDBOX_ROOT",
	"original_site":      "SITETEST_ORIGINAL_SITE",
	"profile":            "SITETEST_PROFILE",
	"time_limit":         "SITETEST_TIME_LIMIT",
	"browser":            "SITETEST_BROWSER",
	"headless":           "SITETEST_HEADLESS",
	"log_level":          "SITETEST_LOG_LEVEL",
	"debug_session":      "XDEBUG_SESSION",
	"debug_config":       "XDEBUG_CONFIG",
	"storage.driver":     "SITETEST_DB_DRIVER",
	"storage.dsn":        "SITETEST_DB_DSN",
	"storage.runner_dsn": "SITETEST_RUNNER_DSN",
}

// LoadHarnessConfig returns the effective configuration after applying
// precedence: defaults < config file (SITETEST_CONFIG) < environment.
//
// The target domain is not validated here; callers that drive a served
// application call RequireDomain before allocating anything.
func LoadHarnessConfig(getenv func(string) string) (*HarnessConfig, error) {
	v := viper.New()
	setHarnessDefaults(v)

	if path := getenv("SITETEST_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	for key, env := range harnessEnv {
		if value := getenv(env); value != "" {
			v.Set(key, value)
		}
	}

	var cfg HarnessConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.resolveStorage(getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setHarnessDefaults(v *viper.Viper) {
	v.SetDefault("scheme", "http")
	v.SetDefault("base_path", "")
	v.SetDefault("sandbox_root", DefaultSandboxRoot)
	v.SetDefault("original_site", DefaultOriginalSite)
	v.SetDefault("profile", DefaultProfile)
	v.SetDefault("time_limit", DefaultTimeLimit)
	v.SetDefault("browser", DefaultBrowser)
	v.SetDefault("headless", true)
	v.SetDefault("log_level", "info")
	v.SetDefault("storage.driver", DefaultDriver)
}

func (c *HarnessConfig) resolveStorage(getenv func(string) string) error {
	if c.Storage.DSN != "" {
		return nil
	}
	switch c.Storage.Driver {
	case "postgres":
		pg, err := LoadPostgresConfig(getenv)
		if err != nil {
			return fmt.Errorf("missing postgres configuration: %w", err)
		}
		c.Storage.DSN = pg.ConnectionString()
	case "sqlite":
		c.Storage.DSN = SQLiteDSN(filepath.Join(filepath.Dir(c.SandboxRoot), "sitetest.sqlite"))
	}
	return nil
}

// Validate checks the values that have no sensible fallback.
func (c *HarnessConfig) Validate() error {
	switch c.Browser {
	case "http", "playwright":
	default:
		return fmt.Errorf("SITETEST_BROWSER must be http or playwright, got %q", c.Browser)
	}
	switch c.Storage.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("SITETEST_DB_DRIVER must be sqlite or postgres, got %q", c.Storage.Driver)
	}
	if c.SandboxRoot == "" {
		return fmt.Errorf("SITETEST_SANDBOX_ROOT is required")
	}
	if c.TimeLimit <= 0 {
		return fmt.Errorf("SITETEST_TIME_LIMIT must be positive, got %s", c.TimeLimit)
	}
	return nil
}

// RequireDomain fails when no target domain was configured.
func (c *HarnessConfig) RequireDomain() error {
	if strings.TrimSpace(c.Domain) == "" {
		return ErrDomainRequired
	}
	return nil
}

// BaseURL is the absolute URL of the served application, without a trailing
// slash.
func (c *HarnessConfig) BaseURL() string {
	return strings.TrimRight(c.Scheme+"://"+c.Domain+c.NormalizedBasePath(), "/")
}

// NormalizedBasePath returns the base path with a leading slash and no
// trailing slash, or "" when the application is served from the root.
func (c *HarnessConfig) NormalizedBasePath() string {
	p := strings.Trim(c.BasePath, "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

// DebugIDEKey returns the debugger session key that should be forwarded to
// the served application, if any. An explicit session wins over the idekey
// inside XDEBUG_CONFIG.
func (c *HarnessConfig) DebugIDEKey() string {
	if c.DebugSession != "" {
		return c.DebugSession
	}
	// XDEBUG_CONFIG has the form "key1=value1 key2=value2 ...".
	for _, pair := range strings.Fields(c.DebugConfig) {
		key, value, ok := strings.Cut(pair, "=")
		if ok && strings.TrimSpace(key) == "idekey" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

// SQLiteDSN builds a modernc.org/sqlite DSN for a database file shared
// between processes.
func SQLiteDSN(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
}
