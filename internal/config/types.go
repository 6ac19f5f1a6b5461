package config

import "time"

// Config represents the complete agentgw configuration.
type Config struct {
	Service     ServiceConfig     `yaml:"service"`
	Webhook     WebhookConfig     `yaml:"webhook"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Guards      GuardsConfig      `yaml:"guards,omitempty"`
	Marketplace MarketplaceConfig `yaml:"marketplace"`
	State       StateConfig       `yaml:"state"`
	Monitor     MonitorConfig     `yaml:"monitor"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	Listen    string `yaml:"listen"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	Debug     bool   `yaml:"debug"`
}

// WebhookConfig defines the inbound trust boundary settings.
type WebhookConfig struct {
	// Secret is the shared HMAC secret. Usually supplied as ${WEBHOOK_SECRET}.
	Secret string `yaml:"secret"`

	// AllowedOrigins is a comma-separated list of origin patterns.
	// A pattern may contain "*" as a glob wildcard; "*" alone allows everything.
	AllowedOrigins string `yaml:"allowed_origins"`

	// MaxBodySize is the maximum allowed request body size in bytes.
	MaxBodySize int64 `yaml:"max_body_size,omitempty"`

	// FreshnessMaxAge is how old a webhook timestamp may be before rejection.
	FreshnessMaxAge time.Duration `yaml:"freshness_max_age,omitempty"`

	// DedupeCapacity bounds the replay guard's remembered request ids.
	DedupeCapacity int `yaml:"dedupe_capacity,omitempty"`
}

// RateLimitConfig defines the fixed-window rate limiter settings.
type RateLimitConfig struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// GuardsConfig selects the backing store for the replay guard and rate
// limiter. Empty RedisAddr means in-process memory (single instance only).
type GuardsConfig struct {
	RedisAddr string `yaml:"redis_addr,omitempty"`
}

// MarketplaceConfig defines the outbound marketplace API settings.
type MarketplaceConfig struct {
	BaseURL      string `yaml:"base_url"`
	AuthURL      string `yaml:"auth_url"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// StateConfig defines state storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// MonitorConfig defines post-completion feedback polling.
type MonitorConfig struct {
	Interval time.Duration `yaml:"interval"`
	MaxPolls int           `yaml:"max_polls"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "agentgw",
			Listen:    ":8080",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Webhook: WebhookConfig{
			AllowedOrigins:  "*",
			MaxBodySize:     1 << 20,
			FreshnessMaxAge: 2 * time.Minute,
			DedupeCapacity:  1000,
		},
		RateLimit: RateLimitConfig{
			MaxRequests: 100,
			Window:      time.Minute,
		},
		Marketplace: MarketplaceConfig{
			BaseURL: "https://www.upwork.com/api/v3/aap/api",
			AuthURL: "https://www.upwork.com/api/v3/oauth2/token",
		},
		State: StateConfig{
			Path: "./data/agentgw.db",
		},
		Monitor: MonitorConfig{
			Interval: 30 * time.Second,
			MaxPolls: 20,
		},
	}
}
