package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime configuration parameters
type Config struct {
	ListenAddr              string   `json:"listen_addr" yaml:"listen_addr"`
	SelfURL                 string   `json:"self_url" yaml:"self_url"`
	Seeds                   []string `json:"seeds" yaml:"seeds"`
	NotifyURLs              []string `json:"notify_urls" yaml:"notify_urls"`
	RefreshIntervalMs       int      `json:"refresh_interval_ms" yaml:"refresh_interval_ms"`
	RegistryCheckIntervalMs int      `json:"registry_check_interval_ms" yaml:"registry_check_interval_ms"`
	RequestTimeoutMs        int      `json:"request_timeout_ms" yaml:"request_timeout_ms"`
	ProbeWorkers            int      `json:"probe_workers" yaml:"probe_workers"`
	OutputDir               string   `json:"output_dir" yaml:"output_dir"`
	LayoutCommand           string   `json:"layout_command" yaml:"layout_command"`
	LayoutFormat            string   `json:"layout_format" yaml:"layout_format"`
	LabelSuffixes           []string `json:"label_suffixes" yaml:"label_suffixes"`
	DBPath                  string   `json:"db_path" yaml:"db_path"`
	MetricsPath             string   `json:"metrics_path" yaml:"metrics_path"`
	ProfileImage            string   `json:"profile_image" yaml:"profile_image"`
	Name                    string   `json:"name" yaml:"name"`
	Owner                   string   `json:"owner" yaml:"owner"`
	Description             string   `json:"description" yaml:"description"`
}

// LoadConfig reads and validates configuration from a JSON or YAML file.
// An empty path yields the defaults plus environment overrides.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config YAML: %w", err)
			}
		default:
			if err := json.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config JSON: %w", err)
			}
		}
	}

	applyEnv(&cfg, os.Getenv)
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnv overrides file values with the process environment
func applyEnv(cfg *Config, getenv func(string) string) {
	if port := strings.TrimSpace(getenv("PORT")); port != "" {
		cfg.ListenAddr = ":" + port
	}
	if self := strings.TrimSpace(getenv("SELF_URL")); self != "" {
		cfg.SelfURL = self
	}
	if notify := getenv("NOTIFY_URLS"); notify != "" {
		cfg.NotifyURLs = splitList(notify)
	}
	if seeds := getenv("SEEDS"); seeds != "" {
		cfg.Seeds = splitList(seeds)
	}
}

// applyDefaults sets default values for unspecified fields
func applyDefaults(cfg *Config) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":4000"
	}
	if cfg.SelfURL == "" {
		cfg.SelfURL = "http://localhost:" + portOf(cfg.ListenAddr)
	}
	if len(cfg.Seeds) == 0 {
		cfg.Seeds = []string{cfg.SelfURL}
	}
	if cfg.RefreshIntervalMs == 0 {
		cfg.RefreshIntervalMs = 60000
	}
	if cfg.RegistryCheckIntervalMs == 0 {
		cfg.RegistryCheckIntervalMs = 60000
	}
	if cfg.RequestTimeoutMs == 0 {
		cfg.RequestTimeoutMs = 5000
	}
	if cfg.ProbeWorkers == 0 {
		cfg.ProbeWorkers = 4
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "public"
	}
	if cfg.LayoutCommand == "" {
		cfg.LayoutCommand = "dot"
	}
	if cfg.LayoutFormat == "" {
		cfg.LayoutFormat = "png"
	}
	if cfg.LabelSuffixes == nil {
		cfg.LabelSuffixes = []string{".dossiercloud.gq", ".herokuapp.com", ".web.app"}
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "peerweaver.db"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "metrics.json"
	}
	if cfg.Name == "" {
		cfg.Name = "peer-weaver node"
	}
}

// validate checks that required fields are present and values are sensible
func validate(cfg *Config) error {
	if cfg.SelfURL == "" {
		return fmt.Errorf("self_url is required")
	}
	if cfg.RefreshIntervalMs < 0 {
		return fmt.Errorf("refresh_interval_ms must be >= 0")
	}
	if cfg.RegistryCheckIntervalMs < 1000 {
		return fmt.Errorf("registry_check_interval_ms must be >= 1000")
	}
	if cfg.RequestTimeoutMs < 1000 {
		return fmt.Errorf("request_timeout_ms must be >= 1000")
	}
	if cfg.ProbeWorkers < 1 {
		return fmt.Errorf("probe_workers must be >= 1")
	}
	switch cfg.LayoutFormat {
	case "png", "svg":
	default:
		return fmt.Errorf("layout_format must be png or svg, got %q", cfg.LayoutFormat)
	}
	return nil
}

// RequestTimeout is the per-request budget for outbound peer calls
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// RefreshInterval is the minimum age of a graph before it is regenerated
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMs) * time.Millisecond
}

// RegistryCheckInterval is the period of the registry health sweep
func (c *Config) RegistryCheckInterval() time.Duration {
	return time.Duration(c.RegistryCheckIntervalMs) * time.Millisecond
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func portOf(addr string) string {
	if i := strings.LastIndex(addr, ":"); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "4000"
}
