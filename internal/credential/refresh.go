package credential

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// OAuthConfig describes the token endpoint of a provider that issues
// refreshable access tokens.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// RecordWriter persists a refreshed record.
type RecordWriter interface {
	Upsert(key Key, rec Record) error
}

// Refresher exchanges refresh tokens for new access tokens. Concurrent
// refreshes of the same (key, provider) share one token request.
type Refresher struct {
	store  *Store
	writer RecordWriter

	mu      sync.RWMutex
	configs map[string]*oauth2.Config
	group   singleflight.Group
}

func NewRefresher(store *Store, writer RecordWriter) *Refresher {
	return &Refresher{
		store:   store,
		writer:  writer,
		configs: make(map[string]*oauth2.Config),
	}
}

// Register installs the token endpoint for provider.
func (r *Refresher) Register(provider string, cfg OAuthConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[strings.ToLower(provider)] = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL},
		Scopes:       cfg.Scopes,
	}
}

// RefreshTimeout bounds one token exchange, independent of the callers
// waiting on it.
const RefreshTimeout = 30 * time.Second

// Refresh obtains a new access token for rec, persists it and invalidates
// key in the store so the next GetOrLoad sees the new record.
func (r *Refresher) Refresh(ctx context.Context, key Key, rec Record) (Record, error) {
	r.mu.RLock()
	cfg := r.configs[strings.ToLower(rec.Provider)]
	r.mu.RUnlock()
	if cfg == nil {
		return Record{}, ErrNotRefreshable
	}
	if rec.RefreshToken == "" {
		return Record{}, ErrNoRefresh
	}

	// The exchange outlives any single caller: waiters share it, and each
	// stops waiting when its own context ends.
	ch := r.group.DoChan(string(key)+"\x00"+strings.ToLower(rec.Provider), func() (interface{}, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), RefreshTimeout)
		defer cancel()

		// An already-expired token forces the source to hit the endpoint.
		src := cfg.TokenSource(rctx, &oauth2.Token{
			AccessToken:  rec.AccessToken,
			RefreshToken: rec.RefreshToken,
			Expiry:       time.Now().Add(-time.Minute),
		})
		tok, err := src.Token()
		if err != nil {
			return nil, fmt.Errorf("refresh %s token: %w", rec.Provider, err)
		}

		next := rec.Clone()
		next.AccessToken = tok.AccessToken
		if tok.RefreshToken != "" {
			next.RefreshToken = tok.RefreshToken
		}
		next.Expiry = tok.Expiry

		if r.writer != nil {
			if err := r.writer.Upsert(key, next); err != nil {
				return nil, fmt.Errorf("persist refreshed %s token: %w", rec.Provider, err)
			}
		}
		if r.store != nil {
			r.store.Invalidate(key)
		}
		log.Info().
			Str("user", string(key)).
			Str("provider", rec.Provider).
			Time("expiry", next.ExpiresAt()).
			Msg("credentials: token refreshed")
		return next, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Record{}, res.Err
		}
		if res.Shared {
			log.Debug().Str("user", string(key)).Str("provider", rec.Provider).Msg("credentials: shared refresh result")
		}
		return res.Val.(Record).Clone(), nil
	case <-ctx.Done():
		return Record{}, ctx.Err()
	}
}
