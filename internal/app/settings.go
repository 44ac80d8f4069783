package app

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Site file names.
const (
	SettingsFile        = "settings.toml"
	TestingSettingsFile = "settings.testing.toml"
	ServicesFile        = "services.yml"
	TestingServicesFile = "testing.services.yml"
	// ErrorLogFile receives errors of requests served for a test run.
	ErrorLogFile = "error.log"
)

// DatabaseSettings selects the table namespace a site lives in. The DSN is
// never written to disk; the served application gets it from its own
// configuration.
type DatabaseSettings struct {
	Driver string `toml:"driver"`
	Prefix string `toml:"prefix"`
}

// Settings is the per-site settings file.
type Settings struct {
	HashSalt            string                    `toml:"hash_salt"`
	Database            DatabaseSettings          `toml:"database"`
	FilePublicPath      string                    `toml:"file_public_path"`
	FilePrivatePath     string                    `toml:"file_private_path"`
	FileTempPath        string                    `toml:"file_temp_path"`
	TranslationPath     string                    `toml:"translation_path"`
	ConfigSyncDirectory string                    `toml:"config_sync_directory,omitempty"`
	PasswordCost        int                       `toml:"password_cost,omitempty"`
	ContainerYAMLs      []string                  `toml:"container_yamls,omitempty"`
	Config              map[string]map[string]any `toml:"config,omitempty"`
}

// ErrSiteNotInstalled is returned when a site directory has no settings file.
var ErrSiteNotInstalled = errors.New("site is not installed")

// LoadSettings reads {sitePath}/settings.toml and layers
// {sitePath}/settings.testing.toml on top when present.
func LoadSettings(sitePath string) (*Settings, error) {
	s := &Settings{}
	path := filepath.Join(sitePath, SettingsFile)
	if _, err := toml.DecodeFile(path, s); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSiteNotInstalled, sitePath)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	testing := filepath.Join(sitePath, TestingSettingsFile)
	if _, err := os.Stat(testing); err == nil {
		if _, err := toml.DecodeFile(testing, s); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", testing, err)
		}
	}
	return s, nil
}

// WriteSettings writes s to {sitePath}/settings.toml.
func WriteSettings(sitePath string, s *Settings) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(s); err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	path := filepath.Join(sitePath, SettingsFile)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

type servicesFile struct {
	Parameters map[string]any `yaml:"parameters"`
}

// LoadServiceParameters merges the parameters of every services file in
// order; later files win.
func LoadServiceParameters(paths []string) (map[string]any, error) {
	params := map[string]any{}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		var f servicesFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		for k, v := range f.Parameters {
			params[k] = v
		}
	}
	return params, nil
}
