// Package settings manages the persistent configuration of the
// driftwatch daemon and CLI.
package settings

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Settings holds the file-backed configuration. Environment variables
// override the file; see ApplyEnv.
type Settings struct {
	// DataDir is the base directory for the database, vault, baselines
	// and reports when their paths are not set explicitly.
	DataDir string `yaml:"data_dir,omitempty"`

	// DatabasePath is the SQLite file.
	DatabasePath string `yaml:"database_path,omitempty"`

	// VaultPath is the encrypted credential file.
	VaultPath string `yaml:"vault_path,omitempty"`

	// BaselineDir holds the per-device baseline JSON files.
	BaselineDir string `yaml:"baseline_dir,omitempty"`

	// ReportDir holds the audit report archive.
	ReportDir string `yaml:"report_dir,omitempty"`

	// OUIPath is the vendor prefix database.
	OUIPath string `yaml:"oui_path,omitempty"`

	// Listen is the HTTP bind address.
	Listen string `yaml:"listen,omitempty"`

	// APIToken protects the API when set; empty allows everything
	// (development mode).
	APIToken string `yaml:"api_token,omitempty"`

	// APITokenHeader names the header carrying the token.
	APITokenHeader string `yaml:"api_token_header,omitempty"`

	// AdminToken gates the admin purge surface.
	AdminToken string `yaml:"admin_token,omitempty"`

	// Workers bounds the audit and topology pools.
	Workers int `yaml:"workers,omitempty"`

	// SSEInterval is the default stream interval in seconds.
	SSEInterval int `yaml:"sse_interval,omitempty"`

	// RedisAddr enables the overview cache when set.
	RedisAddr string `yaml:"redis_addr,omitempty"`

	// LogLevel and LogJSON configure the logger.
	LogLevel string `yaml:"log_level,omitempty"`
	LogJSON  bool   `yaml:"log_json,omitempty"`
}

// DefaultSettingsPath returns the default config file location.
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "driftwatch.yaml"
	}
	return filepath.Join(home, ".driftwatch", "settings.yaml")
}

// Load reads settings from the default location.
func Load() (*Settings, error) {
	return LoadFrom(DefaultSettingsPath())
}

// LoadFrom reads settings from a specific path. A missing file yields
// defaults, not an error.
func LoadFrom(path string) (*Settings, error) {
	s := &Settings{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.applyDefaults()
			s.ApplyEnv()
			return s, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, err
	}
	s.applyDefaults()
	s.ApplyEnv()
	return s, nil
}

// Save writes settings to the default location.
func (s *Settings) Save() error {
	return s.SaveTo(DefaultSettingsPath())
}

// SaveTo writes settings to a specific path.
func (s *Settings) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *Settings) applyDefaults() {
	if s.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			s.DataDir = "driftwatch-data"
		} else {
			s.DataDir = filepath.Join(home, ".driftwatch")
		}
	}
	if s.DatabasePath == "" {
		s.DatabasePath = filepath.Join(s.DataDir, "driftwatch.db")
	}
	if s.VaultPath == "" {
		s.VaultPath = filepath.Join(s.DataDir, "vault")
	}
	if s.BaselineDir == "" {
		s.BaselineDir = filepath.Join(s.DataDir, "baselines")
	}
	if s.ReportDir == "" {
		s.ReportDir = filepath.Join(s.DataDir, "reports")
	}
	if s.OUIPath == "" {
		s.OUIPath = filepath.Join(s.DataDir, "oui.txt")
	}
	if s.Listen == "" {
		s.Listen = "127.0.0.1:8080"
	}
	if s.APITokenHeader == "" {
		s.APITokenHeader = "X-API-Token"
	}
	if s.Workers == 0 {
		s.Workers = 16
	}
	if s.SSEInterval == 0 {
		s.SSEInterval = 30
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
}

// ApplyEnv overrides file values with environment variables.
func (s *Settings) ApplyEnv() {
	if v := os.Getenv("DRIFTWATCH_DB"); v != "" {
		s.DatabasePath = v
	}
	if v := os.Getenv("DRIFTWATCH_LISTEN"); v != "" {
		s.Listen = v
	}
	if v := os.Getenv("DRIFTWATCH_API_TOKEN"); v != "" {
		s.APIToken = v
	}
	if v := os.Getenv("DRIFTWATCH_ADMIN_TOKEN"); v != "" {
		s.AdminToken = v
	}
	if v := os.Getenv("DRIFTWATCH_REDIS"); v != "" {
		s.RedisAddr = v
	}
	if v := os.Getenv("DRIFTWATCH_LOG_LEVEL"); v != "" {
		s.LogLevel = v
	}
}
