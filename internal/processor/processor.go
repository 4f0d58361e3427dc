// Package processor turns raw vendor responses into catalog parts and a
// classified outcome. There is one processor per configured provider.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/elabx-org/partscout/internal/catalog"
	"github.com/elabx-org/partscout/internal/credential"
	"github.com/elabx-org/partscout/internal/provider"
)

// Processor queries one provider through its client and normalizes the
// answer.
type Processor interface {
	Name() string
	Priority() int
	// Execute returns the provider's parts and outcome. The error is only
	// set for failures that must abort the whole fetch, such as broken
	// credential data; every vendor failure is reported in the outcome.
	Execute(ctx context.Context, client provider.Client, q catalog.Query) ([]catalog.Part, catalog.Outcome, error)
}

// Classify maps a client error to an outcome for provider.
func Classify(name string, err error) catalog.Outcome {
	var te *provider.ThrottledError
	switch {
	case err == nil:
		return catalog.NewOutcome(name, catalog.StatusSuccess, "")
	case errors.Is(err, provider.ErrUnauthorized):
		return catalog.NewOutcome(name, catalog.StatusUnauthorized, "%v", err)
	case errors.As(err, &te):
		o := catalog.NewOutcome(name, catalog.StatusThrottled, "%v", err)
		o.RetryAfter = te.RetryAfter
		return o
	case errors.Is(err, provider.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return catalog.NewOutcome(name, catalog.StatusWarning, "timed out: %v", err)
	case errors.Is(err, provider.ErrUnavailable):
		return catalog.NewOutcome(name, catalog.StatusWarning, "%v", err)
	default:
		return catalog.NewOutcome(name, catalog.StatusError, "%v", err)
	}
}

// fail reports err as an outcome unless it is fatal for the fetch.
func fail(name string, err error) ([]catalog.Part, catalog.Outcome, error) {
	if credential.IsIntegrity(err) {
		return nil, catalog.Outcome{Provider: name}, err
	}
	return nil, Classify(name, err), nil
}

// succeed builds the success outcome for a decoded response.
func succeed(name string, resp *provider.Response, parts []catalog.Part) ([]catalog.Part, catalog.Outcome, error) {
	o := catalog.NewOutcome(name, catalog.StatusSuccess, "")
	if len(parts) == 0 {
		o.Message = "no matching parts"
	}
	o.Records = len(parts)
	if resp != nil {
		o.RawRef = resp.Ref
	}
	return parts, o, nil
}

func searchRequest(q catalog.Query) provider.SearchRequest {
	opts := make(provider.Options, len(q.Options))
	for k, v := range q.Options {
		opts[k] = v
	}
	return provider.SearchRequest{
		Keyword:      q.PartNumber,
		PartType:     q.PartType,
		MountingType: q.MountingType,
		RecordCount:  q.RecordCount,
		Options:      opts,
	}
}

func decode(name string, resp *provider.Response, v any) error {
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return fmt.Errorf("%s: decode response: %w", name, err)
	}
	return nil
}

func notFound(resp *provider.Response) bool {
	return resp != nil && resp.StatusCode == http.StatusNotFound
}

// base carries the descriptor every processor is bound to.
type base struct {
	desc provider.Descriptor
}

func (b base) Name() string  { return b.desc.Name }
func (b base) Priority() int { return b.desc.Priority }

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// reportedError is an error a vendor returns inside an otherwise successful
// response body.
type reportedError struct {
	Code    string
	Message string
}

// reportedRetryAfter is assumed for throttling errors reported in a body,
// which carry no Retry-After header.
const reportedRetryAfter = time.Minute

// classifyReported picks the most severe status among errs. Severity follows
// the catalog.Status order.
func classifyReported(name string, errs []reportedError) catalog.Outcome {
	status := catalog.StatusWarning
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, firstNonEmpty(e.Message, e.Code))
		if s := reportedStatus(e.Code + " " + e.Message); s > status {
			status = s
		}
	}
	o := catalog.NewOutcome(name, status, "%s", strings.Join(msgs, "; "))
	if status == catalog.StatusThrottled {
		o.RetryAfter = reportedRetryAfter
	}
	return o
}

var reportedKeywords = []struct {
	status   catalog.Status
	keywords []string
}{
	{catalog.StatusUnauthorized, []string{"auth", "apikey", "forbidden", "invalidkey"}},
	{catalog.StatusThrottled, []string{"toomanyrequests", "ratelimit", "quota", "throttl"}},
	{catalog.StatusWarning, []string{"timeout", "timedout", "unavailable"}},
}

// reportedStatus classifies a vendor error code or message by keyword,
// ignoring case, spaces, hyphens and underscores.
func reportedStatus(text string) catalog.Status {
	t := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '_':
			return -1
		}
		return r
	}, strings.ToLower(text))
	for _, k := range reportedKeywords {
		for _, kw := range k.keywords {
			if strings.Contains(t, kw) {
				return k.status
			}
		}
	}
	return catalog.StatusError
}
