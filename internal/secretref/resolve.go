package secretref

import (
	"context"
	"errors"
	"fmt"
	"time"

	onepassword "github.com/1password/onepassword-sdk-go"
	"github.com/elabx-org/partscout/internal/config"
	"github.com/rs/zerolog/log"
)

// ErrNoResolver is returned when the configuration holds references but no
// service account token was provided.
var ErrNoResolver = errors.New("secretref: op:// reference found but no service account is configured")

// Resolver looks up the value behind a reference.
type Resolver interface {
	Resolve(ctx context.Context, ref Ref) (string, error)
}

// OnePassword resolves references with the 1Password SDK.
type OnePassword struct {
	client *onepassword.Client
}

func NewOnePassword(ctx context.Context, token, version string) (*OnePassword, error) {
	if token == "" {
		return nil, fmt.Errorf("service account token is required")
	}
	client, err := onepassword.NewClient(ctx,
		onepassword.WithServiceAccountToken(token),
		onepassword.WithIntegrationInfo("partscout", version),
	)
	if err != nil {
		return nil, fmt.Errorf("create 1password client: %w", err)
	}
	return &OnePassword{client: client}, nil
}

func (p *OnePassword) Resolve(ctx context.Context, ref Ref) (string, error) {
	val, err := p.client.Secrets().Resolve(ctx, ref.Raw)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", ref, err)
	}
	return val, nil
}

// Healthy lists vaults to check that the service account works and returns
// the round trip latency.
func (p *OnePassword) Healthy(ctx context.Context) (bool, time.Duration, error) {
	start := time.Now()
	_, err := p.client.Vaults().List(ctx)
	latency := time.Since(start)
	if err != nil {
		return false, latency, err
	}
	return true, latency, nil
}

type setting struct {
	name string
	val  *string
}

// ResolveConfig replaces every op:// reference among the secret settings of
// cfg with its value. Identical references are looked up once. r may be nil
// when no reference is present.
func ResolveConfig(ctx context.Context, r Resolver, cfg *config.Config) error {
	fields := []setting{
		{"api token", &cfg.APIToken},
		{"credentials.encryption_key", &cfg.Credentials.EncryptionKey},
	}
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		fields = append(fields,
			setting{p.Name + ".auth.api_key", &p.Auth.APIKey},
			setting{p.Name + ".auth.client_id", &p.Auth.ClientID},
			setting{p.Name + ".auth.client_secret", &p.Auth.ClientSecret},
		)
	}

	seen := make(map[string]string)
	resolved := 0
	for _, f := range fields {
		if !IsRef(*f.val) {
			continue
		}
		ref, err := Parse(*f.val)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		if v, ok := seen[ref.Raw]; ok {
			*f.val = v
			continue
		}
		if r == nil {
			return fmt.Errorf("%s: %w", f.name, ErrNoResolver)
		}
		v, err := r.Resolve(ctx, ref)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		seen[ref.Raw] = v
		*f.val = v
		resolved++
	}
	if resolved > 0 {
		log.Info().Int("count", resolved).Msg("secretref: resolved secret references")
	}
	return nil
}
