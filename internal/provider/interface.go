package provider

import (
	"context"
	"net/http"
	"time"
)

// Options carries optional, vendor-neutral request parameters.
type Options map[string]string

// SearchRequest is the generic shape of a keyword search.
type SearchRequest struct {
	Keyword      string
	PartType     string
	MountingType string
	RecordCount  int
	Options      Options
}

// Response is a raw vendor response. Decoding the body is the job of the
// provider's response processor.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// Ref identifies the request for later inspection (method and URL).
	Ref      string
	Duration time.Duration
}

// Client is the uniform capability contract every vendor integration
// exposes.
type Client interface {
	// Name returns the unique provider name.
	Name() string
	IsEnabled() bool
	IsConfigured() bool
	Search(ctx context.Context, req SearchRequest) (*Response, error)
	GetOrder(ctx context.Context, orderID string, opts Options) (*Response, error)
	GetProductDetails(ctx context.Context, partNumber string, opts Options) (*Response, error)
}
