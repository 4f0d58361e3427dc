package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/elabx-org/partscout/internal/config"
	"github.com/elabx-org/partscout/internal/credential"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// LoaderSource hands out credential loaders per user.
type LoaderSource interface {
	Loader(key credential.Key) credential.Loader
}

// Factory creates integration clients for a provider on behalf of a user.
type Factory struct {
	providers map[string]config.ProviderConfig
	store     *credential.Store
	source    LoaderSource
	refresher *credential.Refresher
	http      *http.Client

	limiters map[string]*rate.Limiter
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewFactory prepares per-provider rate limiters and circuit breakers and
// registers OAuth providers with the refresher.
func NewFactory(providers []config.ProviderConfig, store *credential.Store, source LoaderSource, refresher *credential.Refresher) *Factory {
	f := &Factory{
		providers: make(map[string]config.ProviderConfig, len(providers)),
		store:     store,
		source:    source,
		refresher: refresher,
		http:      &http.Client{Timeout: 30 * time.Second},
		limiters:  make(map[string]*rate.Limiter),
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
	}
	for _, pc := range providers {
		key := strings.ToLower(pc.Name)
		f.providers[key] = pc
		if pc.RateLimit.PerSecond > 0 {
			burst := pc.RateLimit.Burst
			if burst <= 0 {
				burst = 1
			}
			f.limiters[key] = rate.NewLimiter(rate.Limit(pc.RateLimit.PerSecond), burst)
		}
		f.breakers[key] = newBreaker(pc.Name)
		if pc.Auth.Type == config.AuthOAuth && refresher != nil {
			refresher.Register(pc.Name, credential.OAuthConfig{
				ClientID:     pc.Auth.ClientID,
				ClientSecret: pc.Auth.ClientSecret,
				TokenURL:     pc.Auth.TokenURL,
				Scopes:       pc.Auth.Scopes,
			})
		}
	}
	return f
}

// SetHTTPClient replaces the transport used by created clients.
func (f *Factory) SetHTTPClient(c *http.Client) {
	f.http = c
}

// Create returns a client for the provider described by d acting for user.
func (f *Factory) Create(ctx context.Context, d Descriptor, user string) (Client, error) {
	key := strings.ToLower(d.Name)
	pc, ok := f.providers[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, d.Name)
	}

	var auth Authenticator = NoAuth{}
	switch pc.Auth.Type {
	case config.AuthAPIKey:
		auth = APIKeyAuth{Header: pc.Auth.Header, QueryParam: pc.Auth.QueryParam, Key: pc.Auth.APIKey}
	case config.AuthOAuth:
		if f.store == nil || f.source == nil {
			return nil, fmt.Errorf("provider %q uses token auth but no credential store is wired", pc.Name)
		}
		auth = TokenAuth{
			Provider:       pc.Name,
			User:           credential.Key(user),
			Store:          f.store,
			Loader:         f.source.Loader(credential.Key(user)),
			Refresher:      f.refresher,
			ClientIDHeader: pc.Auth.Header,
			ClientID:       pc.Auth.ClientID,
		}
	}

	return NewRESTClient(RESTConfig{
		Name:         pc.Name,
		BaseURL:      pc.URL,
		SearchPath:   pc.SearchPath,
		OrderPath:    pc.OrderPath,
		DetailsPath:  pc.DetailsPath,
		Enabled:      d.Enabled,
		Configured:   d.IsConfigured(),
		Capabilities: d.Capabilities,
		Auth:         auth,
		HTTPClient:   f.http,
		Limiter:      f.limiters[key],
		Breaker:      f.breakers[key],
		MaxRetries:   pc.MaxRetries,
	}), nil
}

// DescriptorFor builds the static descriptor of a configured provider.
func DescriptorFor(pc config.ProviderConfig) Descriptor {
	d := Descriptor{
		Name:       pc.Name,
		Kind:       pc.Kind,
		Enabled:    pc.IsEnabled(),
		Configured: pc.IsConfigured,
		Priority:   pc.Priority,
		Timeout:    pc.Timeout,
		Capabilities: Capabilities{
			Search:         pc.Has(config.CapabilitySearch),
			Order:          pc.Has(config.CapabilityOrder),
			ProductDetails: pc.Has(config.CapabilityProductDetails),
		},
	}
	switch pc.Auth.Type {
	case config.AuthAPIKey:
		d.Auth = AuthAPIKey
	case config.AuthOAuth:
		d.Auth = AuthToken
	}
	return d
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("provider", name).Str("from", from.String()).Str("to", to.String()).Msg("provider: circuit breaker state changed")
		},
	})
}
