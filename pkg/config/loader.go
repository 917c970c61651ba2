package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when neither a path nor DILEMMA_CONFIG is given.
const DefaultPath = "dilemma.yaml"

// Loader handles loading the configuration file
type Loader struct {
	configPath string
}

// NewLoader creates a new configuration loader
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Path returns the file the loader reads.
func (l *Loader) Path() string {
	if configPath := os.Getenv("DILEMMA_CONFIG"); configPath != "" && l.configPath == "" {
		return configPath
	}
	if l.configPath == "" {
		return DefaultPath
	}
	return l.configPath
}

// Load reads the file over the defaults, applies environment overrides and
// validates the result. A missing default file is not an error; a missing
// file that was asked for explicitly is.
func (l *Loader) Load() (*Config, error) {
	path := l.Path()
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Parse decodes a YAML document over the defaults without consulting the
// environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg as YAML to the loader's path
func (l *Loader) Save(cfg *Config) error {
	path := l.Path()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ApplyEnv overrides settings from environment variables.
func (c *Config) ApplyEnv() {
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok && v != "" {
		c.Observability.Logging.Level = v
	}
	if v, ok := os.LookupEnv("LOG_FORMAT"); ok && v != "" {
		c.Observability.Logging.Format = v
	}
	if v, ok := os.LookupEnv("JAEGER_ENDPOINT"); ok {
		c.Observability.JaegerEndpoint = v
	}
	if v, ok := os.LookupEnv("DILEMMA_DB"); ok && v != "" {
		c.Store.Driver = "sqlite"
		c.Store.DSN = v
	}
	if v, ok := os.LookupEnv("DILEMMA_CATALOG"); ok {
		c.Catalog.Dir = v
	}
	if v, ok := os.LookupEnv("POLICY_ALLOW_RULES"); ok {
		c.Catalog.AllowRules = splitList(v)
	}
	if v, ok := os.LookupEnv("DECIDER_PORT"); ok && v != "" {
		c.Server.Port = v
	}
	if v, ok := os.LookupEnv("DECIDER_RPS"); ok {
		if rps, err := strconv.ParseFloat(v, 64); err == nil {
			c.Server.Rate.RPS = rps
		}
	}
	if v, ok := os.LookupEnv("LLM_MODE"); ok && v != "" {
		c.LLM.Mode = strings.ToLower(v)
	}
	if v, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
		c.LLM.OpenAI.APIKey = v
	}
	if v, ok := os.LookupEnv("OPENAI_BASE_URL"); ok && v != "" {
		c.LLM.OpenAI.BaseURL = v
	}
	if v, ok := os.LookupEnv("OPENAI_MODEL"); ok && v != "" {
		c.LLM.OpenAI.Model = v
	}
	c.Worker.ApplyEnv()
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
