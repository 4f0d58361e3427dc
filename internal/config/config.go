package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/elabx-org/partscout/internal/catalog"
	"gopkg.in/yaml.v3"
)

// Auth types understood by the provider factory.
const (
	AuthNone   = "none"
	AuthAPIKey = "api_key"
	AuthOAuth  = "oauth"
)

// Provider capabilities.
const (
	CapabilitySearch         = "search"
	CapabilityOrder          = "order"
	CapabilityProductDetails = "product_details"
)

type Config struct {
	APIToken string `yaml:"-"` // from PARTSCOUT_API_TOKEN env

	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`

	Fetch struct {
		MaxConcurrency int           `yaml:"max_concurrency"`
		DefaultTimeout time.Duration `yaml:"default_timeout"`
	} `yaml:"fetch"`

	Credentials struct {
		Path          string `yaml:"path"`
		EncryptionKey string `yaml:"encryption_key"`
	} `yaml:"credentials"`

	// ServiceAccountToken resolves op:// references in provider secrets.
	ServiceAccountToken string `yaml:"-"` // from OP_SERVICE_ACCOUNT_TOKEN env

	Audit struct {
		Enabled       bool   `yaml:"enabled"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"audit"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"metrics"`

	// PartTypes are used for queries that do not carry their own.
	PartTypes []catalog.PartType `yaml:"part_types"`

	Providers []ProviderConfig `yaml:"providers"`
}

type AuthConfig struct {
	Type         string   `yaml:"type"`
	Header       string   `yaml:"header"`
	QueryParam   string   `yaml:"query_param"`
	APIKey       string   `yaml:"api_key"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	TokenURL     string   `yaml:"token_url"`
	Scopes       []string `yaml:"scopes"`
}

type RateLimitConfig struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

type ProviderConfig struct {
	Name         string          `yaml:"name"`
	Kind         string          `yaml:"kind"`
	Enabled      *bool           `yaml:"enabled"`
	Priority     int             `yaml:"priority"`
	URL          string          `yaml:"url"`
	SearchPath   string          `yaml:"search_path"`
	OrderPath    string          `yaml:"order_path"`
	DetailsPath  string          `yaml:"details_path"`
	Auth         AuthConfig      `yaml:"auth"`
	Timeout      time.Duration   `yaml:"timeout"`
	MaxRetries   int             `yaml:"max_retries"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
	Capabilities []string        `yaml:"capabilities"`
}

// IsEnabled reports whether the provider takes part in fetches. Providers
// are enabled unless explicitly disabled.
func (p ProviderConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// IsConfigured reports whether the provider has everything it needs to be
// called.
func (p ProviderConfig) IsConfigured() bool {
	if p.URL == "" {
		return false
	}
	switch p.Auth.Type {
	case AuthAPIKey:
		return p.Auth.APIKey != ""
	case AuthOAuth:
		return p.Auth.ClientID != "" && p.Auth.TokenURL != ""
	default:
		return true
	}
}

// Has reports whether the provider declares capability.
func (p ProviderConfig) Has(capability string) bool {
	for _, c := range p.Capabilities {
		if strings.EqualFold(c, capability) {
			return true
		}
	}
	return false
}

func Load(path string) (*Config, error) {
	cfg := &Config{}

	// Defaults
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8766
	cfg.Fetch.MaxConcurrency = 4
	cfg.Fetch.DefaultTimeout = 15 * time.Second
	cfg.Credentials.Path = "/data/credentials.db"
	cfg.Audit.RetentionDays = 30
	cfg.Metrics.Enabled = true

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	// Env overrides
	if v := os.Getenv("PARTSCOUT_API_TOKEN"); v != "" {
		cfg.APIToken = v
	}
	if v := os.Getenv("PARTSCOUT_CREDENTIALS_KEY"); v != "" {
		cfg.Credentials.EncryptionKey = v
	}
	if v := os.Getenv("PARTSCOUT_CREDENTIALS_PATH"); v != "" {
		cfg.Credentials.Path = v
	}
	if v := os.Getenv("OP_SERVICE_ACCOUNT_TOKEN"); v != "" {
		cfg.ServiceAccountToken = v
	}
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		if v := os.Getenv(envName(p.Name, "API_KEY")); v != "" {
			p.Auth.APIKey = v
		}
		if v := os.Getenv(envName(p.Name, "CLIENT_SECRET")); v != "" {
			p.Auth.ClientSecret = v
		}
		applyProviderDefaults(p)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks provider entries for problems that would make the
// registry inconsistent.
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Providers))
	for _, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider without name")
		}
		key := strings.ToLower(p.Name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate provider name %q", p.Name)
		}
		seen[key] = struct{}{}
		if p.Kind == "" {
			return fmt.Errorf("provider %q: kind is required", p.Name)
		}
		switch p.Auth.Type {
		case AuthNone, AuthAPIKey, AuthOAuth:
		default:
			return fmt.Errorf("provider %q: unknown auth type %q", p.Name, p.Auth.Type)
		}
	}
	if c.Fetch.MaxConcurrency < 1 {
		return fmt.Errorf("fetch.max_concurrency must be at least 1")
	}
	return nil
}

func applyProviderDefaults(p *ProviderConfig) {
	if p.Auth.Type == "" {
		p.Auth.Type = AuthNone
	}
	if p.Auth.Type == AuthAPIKey && p.Auth.Header == "" && p.Auth.QueryParam == "" {
		p.Auth.Header = "X-Api-Key"
	}
	if p.SearchPath == "" {
		p.SearchPath = "/search"
	}
	if p.DetailsPath == "" {
		p.DetailsPath = "/products/{partNumber}"
	}
	if p.OrderPath == "" {
		p.OrderPath = "/orders/{orderId}"
	}
	if len(p.Capabilities) == 0 {
		p.Capabilities = []string{CapabilitySearch}
	}
	if p.MaxRetries == 0 {
		p.MaxRetries = 2
	}
}

// envName builds PARTSCOUT_<PROVIDER>_<SUFFIX> with non-alphanumerics
// replaced by underscores.
func envName(provider, suffix string) string {
	var b strings.Builder
	b.WriteString("PARTSCOUT_")
	for _, r := range strings.ToUpper(provider) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	b.WriteByte('_')
	b.WriteString(suffix)
	return b.String()
}
