// Package config loads and manages the bridge configuration.
// Settings come from an optional YAML file, overlaid by environment
// variables, overlaid by CLI flags parsed in main.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// AuthModeServiceAccount and AuthModeAPIKey identify the two upstream
// authentication modes. The mode is derived, not configured directly:
// a configured API key selects express mode, everything else uses
// application default credentials.
const (
	AuthModeServiceAccount = "service_account"
	AuthModeAPIKey         = "api_key"
)

// Config holds the complete bridge configuration.
type Config struct {
	// Bind is the local address the HTTP server listens on.
	Bind string `yaml:"bind"`

	// Port is the local port the HTTP server listens on.
	Port int `yaml:"port"`

	// ProxyKey is the shared secret required from inbound callers.
	// Empty means open access.
	ProxyKey string `yaml:"proxy-key"`

	// APIKey is the Vertex express-mode API key. When set, the bridge
	// runs in api_key mode and never touches service-account credentials.
	APIKey string `yaml:"api-key"`

	// ProjectID is the Google Cloud project used in service-account mode.
	// When empty it is resolved from application default credentials.
	ProjectID string `yaml:"project-id"`

	// Location is the Vertex region. The special value "global" selects
	// the global endpoint host.
	Location string `yaml:"location"`

	// AutoRefresh enables the background token refresh ticker.
	AutoRefresh bool `yaml:"auto-refresh"`

	// FilterModelNames enables the model listing allow-list filter.
	FilterModelNames bool `yaml:"filter-model-names"`

	// Publishers are the model catalog namespaces queried by /v1/models.
	Publishers []string `yaml:"publishers"`

	// ExtraModels are appended verbatim to the model listing.
	ExtraModels []string `yaml:"extra-models"`

	// ModelNameFilters are the id prefixes kept when FilterModelNames is on.
	ModelNameFilters []string `yaml:"model-name-filters"`

	// ProxyURL routes upstream traffic through a SOCKS5/HTTP/HTTPS proxy.
	ProxyURL string `yaml:"proxy-url"`

	// Debug enables debug-level logging and gin debug mode.
	Debug bool `yaml:"debug"`

	// LoggingToFile redirects application logs to rotating files.
	LoggingToFile bool `yaml:"logging-to-file"`

	// RequestLog enables per-request log files under logs/.
	RequestLog bool `yaml:"request-log"`

	// Store selects and configures the state persistence backend.
	Store StoreConfig `yaml:"store"`
}

// StoreConfig selects the state persistence backend. The zero value
// selects the local file backend.
type StoreConfig struct {
	// Type is one of "file", "postgres", "object", "git". Empty means file.
	Type string `yaml:"type"`

	Postgres PostgresStoreConfig `yaml:"postgres"`
	Object   ObjectStoreConfig   `yaml:"object"`
	Git      GitStoreConfig      `yaml:"git"`
}

// PostgresStoreConfig configures the PostgreSQL state backend.
type PostgresStoreConfig struct {
	DSN    string `yaml:"dsn"`
	Schema string `yaml:"schema"`
	Table  string `yaml:"table"`
}

// ObjectStoreConfig configures the S3-compatible object storage backend.
type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access-key"`
	SecretKey string `yaml:"secret-key"`
	Region    string `yaml:"region"`
	ObjectKey string `yaml:"object-key"`
	UseSSL    bool   `yaml:"use-ssl"`
	PathStyle bool   `yaml:"path-style"`
}

// GitStoreConfig configures the git-backed state backend.
type GitStoreConfig struct {
	RemoteURL string `yaml:"remote-url"`
	Branch    string `yaml:"branch"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	LocalPath string `yaml:"local-path"`
}

// Default returns a configuration populated with the built-in defaults.
func Default() *Config {
	return &Config{
		Bind:             "localhost",
		Port:             8086,
		Location:         "us-central1",
		AutoRefresh:      true,
		FilterModelNames: true,
		Publishers:       []string{"google", "anthropic", "meta"},
		ModelNameFilters: []string{"google/gemini-", "anthropic/claude-", "meta/llama"},
	}
}

// LoadConfig reads the YAML config file at path (if it exists), applies
// environment variable overrides, and returns the merged configuration.
// A missing file is not an error; defaults plus environment apply.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if errUnmarshal := yaml.Unmarshal(data, cfg); errUnmarshal != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// AuthMode reports the derived upstream authentication mode.
func (c *Config) AuthMode() string {
	if strings.TrimSpace(c.APIKey) != "" {
		return AuthModeAPIKey
	}
	return AuthModeServiceAccount
}

// applyEnv overlays environment variables onto the configuration.
func (c *Config) applyEnv() {
	if v := os.Getenv("VERTEX_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("VERTEX_LOCATION"); v != "" {
		c.Location = v
	}
	if v := os.Getenv("PROXY_KEY"); v != "" {
		c.ProxyKey = v
	}
	if v := os.Getenv("BIND"); v != "" {
		c.Bind = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv("AUTO_REFRESH"); v != "" {
		c.AutoRefresh = !strings.EqualFold(v, "false")
	}
	if v := os.Getenv("FILTER_MODEL_NAMES"); v != "" {
		c.FilterModelNames = !strings.EqualFold(v, "false")
	}
	if v := os.Getenv("PUBLISHERS"); v != "" {
		if list := splitList(v); len(list) > 0 {
			c.Publishers = list
		}
	}
	if v := os.Getenv("EXTRA_MODELS"); v != "" {
		c.ExtraModels = splitList(v)
	}
}

// splitList splits a comma-separated list, trimming whitespace and
// dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
