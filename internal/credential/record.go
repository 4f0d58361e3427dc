package credential

import (
	"fmt"
	"strings"
	"time"
)

// Key identifies the tenant that owns a credential set.
type Key string

// Record is the authentication material for one provider.
type Record struct {
	Provider     string            `json:"provider"`
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token,omitempty"`
	Expiry       time.Time         `json:"expiry,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// Expired reports whether the record has a known expiry at or before now.
// Records without an expiry never expire.
func (r Record) Expired(now time.Time) bool {
	exp := r.ExpiresAt()
	return !exp.IsZero() && !now.Before(exp)
}

// Clone returns a deep copy so that callers cannot mutate cached state.
func (r Record) Clone() Record {
	c := r
	if r.Extra != nil {
		c.Extra = make(map[string]string, len(r.Extra))
		for k, v := range r.Extra {
			c.Extra[k] = v
		}
	}
	return c
}

// Set is all credentials of one key, at most one record per provider.
type Set struct {
	Records []Record `json:"records"`
}

// Get returns the record for provider. Provider names compare case-insensitively.
func (s Set) Get(provider string) (Record, bool) {
	for _, r := range s.Records {
		if strings.EqualFold(r.Provider, provider) {
			return r, true
		}
	}
	return Record{}, false
}

func (s Set) Len() int { return len(s.Records) }

// Validate checks that the set is non-empty and holds at most one record per
// provider.
func (s Set) Validate() error {
	if len(s.Records) == 0 {
		return fmt.Errorf("credential set is empty")
	}
	seen := make(map[string]struct{}, len(s.Records))
	for _, r := range s.Records {
		name := strings.ToLower(r.Provider)
		if name == "" {
			return fmt.Errorf("credential record without provider name")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate credentials for provider %q", r.Provider)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// With returns a copy of s where rec replaces any record for the same provider.
func (s Set) With(rec Record) Set {
	out := Set{Records: make([]Record, 0, len(s.Records)+1)}
	replaced := false
	for _, r := range s.Records {
		if strings.EqualFold(r.Provider, rec.Provider) {
			out.Records = append(out.Records, rec.Clone())
			replaced = true
			continue
		}
		out.Records = append(out.Records, r.Clone())
	}
	if !replaced {
		out.Records = append(out.Records, rec.Clone())
	}
	return out
}

func (s Set) clone() Set {
	out := Set{Records: make([]Record, len(s.Records))}
	for i, r := range s.Records {
		out.Records[i] = r.Clone()
	}
	return out
}
