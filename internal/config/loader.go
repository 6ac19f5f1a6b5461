package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a YAML file. ${VAR} references in
// the file are replaced with the corresponding environment variable before
// parsing; an unset variable expands to the empty string and is caught by
// validation where the value is required.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	expanded := expandEnvVars(string(data))

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", absPath, err)
	}

	cfg = applyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// expandEnvVars substitutes ${VAR} references with environment values.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}

// applyDefaults fills zero values that yaml left behind (e.g. a section that
// was present but partially specified).
func applyDefaults(cfg *Config) *Config {
	def := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = def.Service.Name
	}
	if cfg.Service.Listen == "" {
		cfg.Service.Listen = def.Service.Listen
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = def.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = def.Service.LogFormat
	}
	if cfg.Webhook.AllowedOrigins == "" {
		cfg.Webhook.AllowedOrigins = def.Webhook.AllowedOrigins
	}
	if cfg.Webhook.MaxBodySize <= 0 {
		cfg.Webhook.MaxBodySize = def.Webhook.MaxBodySize
	}
	if cfg.Webhook.FreshnessMaxAge <= 0 {
		cfg.Webhook.FreshnessMaxAge = def.Webhook.FreshnessMaxAge
	}
	if cfg.Webhook.DedupeCapacity <= 0 {
		cfg.Webhook.DedupeCapacity = def.Webhook.DedupeCapacity
	}
	if cfg.RateLimit.MaxRequests <= 0 {
		cfg.RateLimit.MaxRequests = def.RateLimit.MaxRequests
	}
	if cfg.RateLimit.Window <= 0 {
		cfg.RateLimit.Window = def.RateLimit.Window
	}
	if cfg.Marketplace.BaseURL == "" {
		cfg.Marketplace.BaseURL = def.Marketplace.BaseURL
	}
	if cfg.Marketplace.AuthURL == "" {
		cfg.Marketplace.AuthURL = def.Marketplace.AuthURL
	}
	if cfg.State.Path == "" {
		cfg.State.Path = def.State.Path
	}
	if cfg.Monitor.Interval <= 0 {
		cfg.Monitor.Interval = def.Monitor.Interval
	}
	if cfg.Monitor.MaxPolls <= 0 {
		cfg.Monitor.MaxPolls = def.Monitor.MaxPolls
	}

	return cfg
}

// Validate checks the configuration for missing or malformed values.
// It collects every problem it finds so operators fix them in one pass.
func Validate(cfg *Config) error {
	var problems []string

	if cfg.Webhook.Secret == "" {
		problems = append(problems, "webhook.secret is required (set WEBHOOK_SECRET)")
	}
	if len(cfg.Webhook.Origins()) == 0 {
		problems = append(problems, "webhook.allowed_origins must contain at least one pattern")
	}
	if cfg.Marketplace.ClientID == "" {
		problems = append(problems, "marketplace.client_id is required")
	}
	if cfg.Marketplace.ClientSecret == "" {
		problems = append(problems, "marketplace.client_secret is required")
	}
	for _, u := range []struct{ name, value string }{
		{"marketplace.base_url", cfg.Marketplace.BaseURL},
		{"marketplace.auth_url", cfg.Marketplace.AuthURL},
	} {
		parsed, err := url.Parse(u.value)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			problems = append(problems, fmt.Sprintf("%s is not an absolute URL: %q", u.name, u.value))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

// Origins splits AllowedOrigins into trimmed, non-empty patterns.
func (w WebhookConfig) Origins() []string {
	var out []string
	for _, p := range strings.Split(w.AllowedOrigins, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
