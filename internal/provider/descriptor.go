package provider

import "time"

// AuthKind is how a provider authenticates its requests.
type AuthKind int

const (
	AuthNone AuthKind = iota
	AuthAPIKey
	AuthToken
)

func (k AuthKind) String() string {
	switch k {
	case AuthAPIKey:
		return "api_key"
	case AuthToken:
		return "token"
	default:
		return "none"
	}
}

type Capabilities struct {
	Search         bool
	Order          bool
	ProductDetails bool
}

// Descriptor is the static description of one provider.
type Descriptor struct {
	Name    string
	Kind    string
	Enabled bool
	// Configured reports whether required settings are present. A nil
	// predicate means the provider needs no configuration.
	Configured   func() bool
	Priority     int
	Capabilities Capabilities
	Auth         AuthKind
	Timeout      time.Duration
}

func (d Descriptor) IsConfigured() bool {
	return d.Configured == nil || d.Configured()
}
