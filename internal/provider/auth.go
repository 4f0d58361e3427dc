package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/elabx-org/partscout/internal/credential"
)

// Authenticator decorates outgoing vendor requests with credentials.
type Authenticator interface {
	Apply(ctx context.Context, req *http.Request) error
}

// NoAuth leaves requests untouched.
type NoAuth struct{}

func (NoAuth) Apply(context.Context, *http.Request) error { return nil }

// APIKeyAuth sends a static key in a header, a query parameter, or both.
type APIKeyAuth struct {
	Header     string
	QueryParam string
	Key        string
}

func (a APIKeyAuth) Apply(_ context.Context, req *http.Request) error {
	if a.Header != "" {
		req.Header.Set(a.Header, a.Key)
	}
	if a.QueryParam != "" {
		q := req.URL.Query()
		q.Set(a.QueryParam, a.Key)
		req.URL.RawQuery = q.Encode()
	}
	return nil
}

// TokenAuth sends the requesting user's bearer token for a provider. Tokens
// come from the credential store; expired ones are refreshed when possible.
type TokenAuth struct {
	Provider  string
	User      credential.Key
	Store     *credential.Store
	Loader    credential.Loader
	Refresher *credential.Refresher
	// ClientIDHeader, when set, carries ClientID alongside the token.
	ClientIDHeader string
	ClientID       string
}

func (a TokenAuth) Apply(ctx context.Context, req *http.Request) error {
	rec, err := a.Store.GetOrLoad(ctx, a.User, a.Provider, a.Loader)
	if err != nil {
		return err
	}
	if rec.Expired(time.Now()) {
		if a.Refresher == nil || rec.RefreshToken == "" {
			return fmt.Errorf("%w: %s token expired at %s", ErrUnauthorized, a.Provider, rec.ExpiresAt().Format(time.RFC3339))
		}
		rec, err = a.Refresher.Refresh(ctx, a.User, rec)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
	}
	req.Header.Set("Authorization", "Bearer "+rec.AccessToken)
	if a.ClientIDHeader != "" {
		req.Header.Set(a.ClientIDHeader, a.ClientID)
	}
	return nil
}
