package credential

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpiry extracts the exp claim from a JWT access token without
// verifying its signature. ok is false when the token is not a JWT or has no
// exp claim.
func TokenExpiry(token string) (exp time.Time, ok bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	nd, err := parsed.Claims.GetExpirationTime()
	if err != nil || nd == nil {
		return time.Time{}, false
	}
	return nd.Time, true
}

// ExpiresAt returns the record's expiry, falling back to the access token's
// exp claim when no explicit expiry was stored.
func (r Record) ExpiresAt() time.Time {
	if !r.Expiry.IsZero() {
		return r.Expiry
	}
	if exp, ok := TokenExpiry(r.AccessToken); ok {
		return exp
	}
	return time.Time{}
}
