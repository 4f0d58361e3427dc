package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// maxResponseSize caps how much of a vendor response body is read (10MB).
const maxResponseSize = 10 * 1024 * 1024

// RESTConfig describes a JSON-over-HTTP vendor endpoint.
type RESTConfig struct {
	Name         string
	BaseURL      string
	SearchPath   string
	OrderPath    string
	DetailsPath  string
	Enabled      bool
	Configured   bool
	Capabilities Capabilities

	Auth       Authenticator
	HTTPClient *http.Client
	// Limiter and Breaker are shared by every client of the same provider.
	Limiter *rate.Limiter
	Breaker *gobreaker.CircuitBreaker

	MaxRetries    int
	RetryInterval time.Duration
}

// RESTClient implements Client for vendors exposing a JSON REST API.
type RESTClient struct {
	cfg  RESTConfig
	http *http.Client
}

func NewRESTClient(cfg RESTConfig) *RESTClient {
	if cfg.Auth == nil {
		cfg.Auth = NoAuth{}
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 200 * time.Millisecond
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &RESTClient{cfg: cfg, http: hc}
}

func (c *RESTClient) Name() string       { return c.cfg.Name }
func (c *RESTClient) IsEnabled() bool    { return c.cfg.Enabled }
func (c *RESTClient) IsConfigured() bool { return c.cfg.Configured }

func (c *RESTClient) Search(ctx context.Context, req SearchRequest) (*Response, error) {
	if !c.cfg.Capabilities.Search {
		return nil, ErrNotSupported
	}
	q := url.Values{}
	q.Set("q", req.Keyword)
	if req.PartType != "" {
		q.Set("part_type", req.PartType)
	}
	if req.MountingType != "" {
		q.Set("mounting_type", req.MountingType)
	}
	if req.RecordCount > 0 {
		q.Set("limit", strconv.Itoa(req.RecordCount))
	}
	for k, v := range req.Options {
		q.Set(k, v)
	}
	return c.get(ctx, c.cfg.SearchPath, q)
}

func (c *RESTClient) GetOrder(ctx context.Context, orderID string, opts Options) (*Response, error) {
	if !c.cfg.Capabilities.Order {
		return nil, ErrNotSupported
	}
	path := strings.ReplaceAll(c.cfg.OrderPath, "{orderId}", url.PathEscape(orderID))
	return c.get(ctx, path, optionValues(opts))
}

func (c *RESTClient) GetProductDetails(ctx context.Context, partNumber string, opts Options) (*Response, error) {
	if !c.cfg.Capabilities.ProductDetails {
		return nil, ErrNotSupported
	}
	path := strings.ReplaceAll(c.cfg.DetailsPath, "{partNumber}", url.PathEscape(partNumber))
	return c.get(ctx, path, optionValues(opts))
}

func (c *RESTClient) get(ctx context.Context, path string, query url.Values) (*Response, error) {
	if c.cfg.Limiter != nil {
		r := c.cfg.Limiter.Reserve()
		if d := r.Delay(); d > 0 {
			r.Cancel()
			return nil, &ThrottledError{Provider: c.cfg.Name, RetryAfter: d}
		}
	}

	var resp *Response
	var callErr error
	call := func() {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = c.cfg.RetryInterval
		b.MaxInterval = 10 * c.cfg.RetryInterval
		b.MaxElapsedTime = 0
		callErr = backoff.Retry(func() error {
			r, err := c.attempt(ctx, path, query)
			if err != nil {
				return err
			}
			resp = r
			return nil
		}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.MaxRetries)), ctx))
	}

	if c.cfg.Breaker == nil {
		call()
		return resp, callErr
	}

	// Only infrastructure failures count against the breaker.
	_, err := c.cfg.Breaker.Execute(func() (interface{}, error) {
		call()
		if errors.Is(callErr, ErrUnavailable) || errors.Is(callErr, ErrTimeout) {
			return nil, callErr
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: circuit open for %s", ErrUnavailable, c.cfg.Name)
	}
	return resp, callErr
}

// attempt performs a single request. Errors that must not be retried are
// wrapped with backoff.Permanent.
func (c *RESTClient) attempt(ctx context.Context, path string, query url.Values) (*Response, error) {
	target := strings.TrimRight(c.cfg.BaseURL, "/") + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if err := c.cfg.Auth.Apply(ctx, req); err != nil {
		return nil, backoff.Permanent(err)
	}

	start := time.Now()
	hr, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	defer hr.Body.Close()

	body, err := io.ReadAll(io.LimitReader(hr.Body, maxResponseSize))
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	resp := &Response{
		StatusCode: hr.StatusCode,
		Header:     hr.Header,
		Body:       body,
		Ref:        http.MethodGet + " " + c.cfg.BaseURL + path,
		Duration:   time.Since(start),
	}

	switch code := hr.StatusCode; {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return nil, backoff.Permanent(fmt.Errorf("%w: %s returned HTTP %d", ErrUnauthorized, c.cfg.Name, code))
	case code == http.StatusTooManyRequests:
		return nil, backoff.Permanent(&ThrottledError{
			Provider:   c.cfg.Name,
			RetryAfter: ParseRetryAfter(hr.Header.Get("Retry-After"), time.Now()),
		})
	case code >= 500:
		log.Debug().Str("provider", c.cfg.Name).Int("status", code).Msg("provider: transient server error")
		return nil, &StatusError{Provider: c.cfg.Name, Code: code, Body: snippet(body)}
	case code >= 400 && code != http.StatusNotFound:
		return nil, backoff.Permanent(&StatusError{Provider: c.cfg.Name, Code: code, Body: snippet(body)})
	}
	return resp, nil
}

func (c *RESTClient) transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return backoff.Permanent(fmt.Errorf("%w: %s: %v", ErrTimeout, c.cfg.Name, ctxErr))
		}
		return backoff.Permanent(ctxErr)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return backoff.Permanent(fmt.Errorf("%w: %s: %v", ErrTimeout, c.cfg.Name, err))
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, c.cfg.Name, err)
}

func optionValues(opts Options) url.Values {
	q := url.Values{}
	for k, v := range opts {
		q.Set(k, v)
	}
	return q
}

func snippet(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
