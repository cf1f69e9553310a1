// Package config loads and validates incidentd configuration from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"incidentd/internal/correlate"
	"incidentd/internal/graph"
	"incidentd/internal/router"
)

// DefaultPath is the conventional config location relative to the working
// directory.
var DefaultPath = filepath.Join(".incidentd", "config.yaml")

// ===== CONFIG =====

// Config is the full incidentd configuration.
type Config struct {
	// Model is the generative model used for agent turns.
	Model string `yaml:"model"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`
	// AlertmanagerURL is the Alertmanager base URL alerts are fetched from.
	AlertmanagerURL string `yaml:"alertmanager_url"`
	// MaxTurns caps user-visible conversation turns per session.
	MaxTurns int `yaml:"max_turns"`
	// AgentMaxSteps caps model/tool iterations within one agent turn.
	AgentMaxSteps int `yaml:"agent_max_steps"`

	Correlation correlate.Config `yaml:"correlation"`
	Router      RouterConfig     `yaml:"router"`
	Graph       graph.Spec       `yaml:"graph"`
	Providers   []ProviderConfig `yaml:"providers"`
	Store       StoreConfig      `yaml:"store"`
	Logging     LoggingConfig    `yaml:"logging"`
}

// RouterConfig configures specialist keyword routing.
type RouterConfig struct {
	// Baseline is the specialist recommended for every alert.
	Baseline string `yaml:"baseline"`
	// Keywords maps specialist name to selection keywords. Empty uses the
	// built-in table.
	Keywords map[string][]string `yaml:"keywords"`
}

// ProviderConfig configures one diagnostic tool provider endpoint.
type ProviderConfig struct {
	Name    string        `yaml:"name"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	Enabled bool          `yaml:"enabled"`
}

// StoreConfig configures session persistence.
type StoreConfig struct {
	// Path is the SQLite database file. Empty disables persistence.
	Path string `yaml:"path"`
}

// LoggingConfig configures category file logging.
type LoggingConfig struct {
	Dir        string            `yaml:"dir"`
	Level      string            `yaml:"level"`
	Categories map[string]string `yaml:"categories"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Model:           "gemini-2.5-flash",
		APIKeyEnv:       "GEMINI_API_KEY",
		AlertmanagerURL: "http://localhost:9093",
		MaxTurns:        50,
		AgentMaxSteps:   30,
		Correlation:     correlate.DefaultConfig(),
		Router:          RouterConfig{Baseline: router.DefaultBaseline},
		Graph:           graph.DefaultSpec(),
		Store:           StoreConfig{Path: filepath.Join(".incidentd", "sessions.db")},
		Logging:         LoggingConfig{Dir: filepath.Join(".incidentd", "logs"), Level: "info"},
	}
}

// Load reads the config file at path, layering it over defaults. A missing
// file returns defaults without error; a malformed file is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints and fills zero values.
func (c *Config) Validate() error {
	if c.MaxTurns <= 0 {
		c.MaxTurns = 50
	}
	if c.AgentMaxSteps <= 0 {
		c.AgentMaxSteps = 30
	}
	if c.Model == "" {
		c.Model = "gemini-2.5-flash"
	}
	if c.Router.Baseline == "" {
		c.Router.Baseline = router.DefaultBaseline
	}
	if len(c.Graph.Edges) == 0 {
		c.Graph = graph.DefaultSpec()
	}
	// Fail fast on an unusable topology rather than at session start.
	if _, err := graph.New(c.Graph); err != nil {
		return fmt.Errorf("invalid handoff graph: %w", err)
	}
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider %d has no name", i)
		}
		if p.Enabled && p.BaseURL == "" {
			return fmt.Errorf("provider %s enabled without base_url", p.Name)
		}
	}
	return nil
}

// RouterTable resolves the effective keyword table.
func (c *Config) RouterTable() router.Table {
	if len(c.Router.Keywords) == 0 {
		return router.DefaultTable()
	}
	return router.Table(c.Router.Keywords)
}

// APIKey resolves the model API key from the configured environment
// variable.
func (c *Config) APIKey() string {
	env := c.APIKeyEnv
	if env == "" {
		env = "GEMINI_API_KEY"
	}
	return os.Getenv(env)
}
