// Package config loads sharkbox settings. Sources are layered: built-in
// defaults, then ~/.sharkbox/config.yaml, then .env and SHARKBOX_* environment
// variables. Command-line flags are applied by the caller on top.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the persistent application configuration
type Config struct {
	APIBaseURL    string `yaml:"api_base_url"`
	OIDCAuthority string `yaml:"oidc_authority"`
	OIDCClientID  string `yaml:"oidc_client_id"`
	AppBaseURL    string `yaml:"app_base_url"`

	// PageSize is sent as ?size= on every paged request.
	PageSize int `yaml:"page_size"`

	// Outgoing request budget.
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	Timeout           time.Duration `yaml:"timeout"`

	// DataDir holds the session, marks database, logs and event log.
	DataDir string `yaml:"data_dir"`

	UI UIConfig `yaml:"ui"`
}

// UIConfig holds UI preferences
type UIConfig struct {
	Theme string `yaml:"theme"` // "dark", "light" or "auto"

	// Lookahead is how many rows before the end of a list start the next page.
	Lookahead int `yaml:"lookahead"`
}

// Environment variables read by Load.
const (
	EnvAPIBaseURL    = "SHARKBOX_API_BASE_URL"
	EnvOIDCAuthority = "SHARKBOX_OIDC_AUTHORITY"
	EnvOIDCClientID  = "SHARKBOX_OIDC_CLIENT_ID"
	EnvAppBaseURL    = "SHARKBOX_APP_BASE_URL"
	EnvPageSize      = "SHARKBOX_PAGE_SIZE"
	EnvDataDir       = "SHARKBOX_DATA_DIR"
)

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		APIBaseURL:        "http://localhost:8080/api",
		OIDCAuthority:     "http://localhost:9080/realms/sharkbox",
		OIDCClientID:      "sharkbox-client",
		AppBaseURL:        "http://localhost:5173",
		PageSize:          20,
		RequestsPerSecond: 10,
		Burst:             5,
		Timeout:           30 * time.Second,
		DataDir:           DefaultDataDir(),
		UI: UIConfig{
			Theme:     "auto",
			Lookahead: 5,
		},
	}
}

// DefaultDataDir is ~/.sharkbox, or ./.sharkbox when the home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sharkbox"
	}
	return filepath.Join(home, ".sharkbox")
}

// ConfigPath returns the path to the config file
func ConfigPath() string {
	return filepath.Join(DefaultDataDir(), "config.yaml")
}

// Load reads the YAML file at path (ConfigPath when empty), then applies
// .env and the environment. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	// .env never overrides variables already set in the process.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from SHARKBOX_* variables looked up with getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str(EnvAPIBaseURL, &c.APIBaseURL)
	str(EnvOIDCAuthority, &c.OIDCAuthority)
	str(EnvOIDCClientID, &c.OIDCClientID)
	str(EnvAppBaseURL, &c.AppBaseURL)
	str(EnvDataDir, &c.DataDir)

	if v := strings.TrimSpace(getenv(EnvPageSize)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPageSize, err)
		}
		c.PageSize = n
	}
	return nil
}

// Validate rejects settings the client cannot work with.
func (c *Config) Validate() error {
	for name, raw := range map[string]string{"api_base_url": c.APIBaseURL, "oidc_authority": c.OIDCAuthority} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config: %s %q is not an absolute URL", name, raw)
		}
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("config: page_size must be positive, got %d", c.PageSize)
	}
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("config: requests_per_second must be positive, got %v", c.RequestsPerSecond)
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.UI.Lookahead < 0 {
		c.UI.Lookahead = 0
	}
	return nil
}

// Path helpers under DataDir.
func (c *Config) SessionPath() string { return filepath.Join(c.DataDir, "session.json") }
func (c *Config) DBPath() string      { return filepath.Join(c.DataDir, "sharkbox.db") }
func (c *Config) EventsPath() string  { return filepath.Join(c.DataDir, "events.jsonl") }

// Save writes config to path as YAML (ConfigPath when empty).
func (c *Config) Save(path string) error {
	if path == "" {
		path = ConfigPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}
