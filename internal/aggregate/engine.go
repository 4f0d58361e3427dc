// Package aggregate fans a part query out to every registered provider and
// folds the answers into one result.
package aggregate

import (
	"context"
	"fmt"
	"time"

	"github.com/elabx-org/partscout/internal/catalog"
	"github.com/elabx-org/partscout/internal/credential"
	"github.com/elabx-org/partscout/internal/processor"
	"github.com/elabx-org/partscout/internal/provider"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ClientFactory creates the integration client of a provider for a user.
type ClientFactory interface {
	Create(ctx context.Context, d provider.Descriptor, user string) (provider.Client, error)
}

// Invalidator drops a user's cached credentials.
type Invalidator interface {
	Invalidate(key credential.Key)
}

// Observer is notified after every completed fetch.
type Observer interface {
	ObserveFetch(res *catalog.Result, elapsed time.Duration)
}

type Options struct {
	// MaxConcurrency bounds how many providers are queried at once.
	MaxConcurrency int
	// DefaultTimeout applies to providers without their own timeout.
	DefaultTimeout time.Duration
}

// Engine runs fetches against a fixed provider registry.
type Engine struct {
	registry  *processor.Registry
	factory   ClientFactory
	creds     Invalidator
	opts      Options
	observers []Observer
}

// New creates an engine. creds may be nil when no provider uses token auth.
func New(registry *processor.Registry, factory ClientFactory, creds Invalidator, opts Options, observers ...Observer) *Engine {
	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = 1
	}
	return &Engine{
		registry:  registry,
		factory:   factory,
		creds:     creds,
		opts:      opts,
		observers: observers,
	}
}

// Registry returns the providers this engine queries.
func (e *Engine) Registry() *processor.Registry { return e.registry }

// slot is the result of one provider.
type slot struct {
	attempted bool
	parts     []catalog.Part
	outcome   catalog.Outcome
}

// Fetch queries every enabled provider in registry order and merges their
// records. Provider failures are reported as outcomes; the returned error is
// set only for invalid queries, unknown providers in the query's filter, and
// credential integrity failures.
func (e *Engine) Fetch(ctx context.Context, q catalog.Query) (*catalog.Result, error) {
	q = q.Normalize()
	if err := q.Validate(); err != nil {
		return nil, err
	}
	for _, name := range q.Providers {
		if _, ok := e.registry.Lookup(name); !ok {
			return nil, fmt.Errorf("%w: %q", provider.ErrUnknownProvider, name)
		}
	}

	id := uuid.NewString()
	start := time.Now()
	logger := log.With().Str("fetch_id", id).Str("user", q.User).Str("part_number", q.PartNumber).Logger()

	entries := e.registry.Entries()
	slots := make([]slot, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.MaxConcurrency)
	for i, entry := range entries {
		d := entry.Descriptor
		if !d.Enabled || !q.Wants(d.Name) {
			continue
		}
		if !d.IsConfigured() {
			slots[i] = slot{attempted: true, outcome: catalog.NewOutcome(d.Name, catalog.StatusNotConfigured, "provider is not configured")}
			continue
		}
		g.Go(func() error {
			s, err := e.run(gctx, entry, q, logger)
			slots[i] = s
			return err
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("fetch aborted")
		return nil, err
	}

	res := &catalog.Result{
		ID:       id,
		Query:    q,
		Outcomes: make(map[string]catalog.Outcome),
	}
	sets := make([]catalog.ProviderParts, 0, len(entries))
	for i, s := range slots {
		if !s.attempted {
			continue
		}
		entry := entries[i]
		res.Outcomes[entry.Descriptor.Name] = s.outcome
		if len(s.parts) > 0 {
			sets = append(sets, catalog.ProviderParts{
				Provider: entry.Descriptor.Name,
				Priority: entry.Processor.Priority(),
				Parts:    s.parts,
			})
		}
	}
	res.Parts = catalog.Merge(sets)
	if res.Parts == nil {
		res.Parts = []catalog.Part{}
	}

	elapsed := time.Since(start)
	logger.Info().
		Int("providers", len(res.Outcomes)).
		Int("parts", len(res.Parts)).
		Int64("duration_ms", elapsed.Milliseconds()).
		Msg("fetch completed")
	for _, o := range e.observers {
		o.ObserveFetch(res, elapsed)
	}
	return res, nil
}

type attempt struct {
	parts   []catalog.Part
	outcome catalog.Outcome
	err     error
}

// run queries one provider. The engine stops waiting when the provider's
// context ends, even if the client ignores cancellation.
func (e *Engine) run(ctx context.Context, entry processor.Entry, q catalog.Query, logger zerolog.Logger) (slot, error) {
	d := entry.Descriptor
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = e.opts.DefaultTimeout
	}
	pctx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		pctx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	start := time.Now()
	done := make(chan attempt, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- attempt{outcome: catalog.NewOutcome(d.Name, catalog.StatusError, "panic: %v", r)}
			}
		}()
		client, err := e.factory.Create(pctx, d, q.User)
		if err != nil {
			if credential.IsIntegrity(err) {
				done <- attempt{err: err}
				return
			}
			done <- attempt{outcome: catalog.NewOutcome(d.Name, catalog.StatusError, "create client: %v", err)}
			return
		}
		parts, out, err := entry.Processor.Execute(pctx, client, q)
		done <- attempt{parts: parts, outcome: out, err: err}
	}()

	var a attempt
	select {
	case a = <-done:
	case <-pctx.Done():
		if ctx.Err() != nil {
			a.outcome = catalog.NewOutcome(d.Name, catalog.StatusError, "cancelled: %v", ctx.Err())
		} else {
			a.outcome = catalog.NewOutcome(d.Name, catalog.StatusWarning, "timed out after %s", timeout)
		}
	}

	if a.err != nil {
		if credential.IsIntegrity(a.err) {
			return slot{}, a.err
		}
		a.parts = nil
		a.outcome = catalog.NewOutcome(d.Name, catalog.StatusError, "%v", a.err)
	}

	out := a.outcome
	out.Provider = d.Name
	if !out.Status.Terminal() {
		out.Status = catalog.StatusError
		out.Message = "processor reported no status"
	}
	if out.Status.Failed() {
		a.parts = nil
	}
	out.Records = len(a.parts)
	out.Duration = time.Since(start)

	if out.Status == catalog.StatusUnauthorized && d.Auth == provider.AuthToken && e.creds != nil {
		e.creds.Invalidate(credential.Key(q.User))
		logger.Info().Str("provider", d.Name).Msg("credentials rejected, cached set invalidated")
	}

	ev := logger.Debug()
	if out.Status.Failed() || out.Status == catalog.StatusWarning {
		ev = logger.Warn()
	}
	ev.Str("provider", d.Name).
		Str("status", out.Status.String()).
		Int("records", out.Records).
		Int64("duration_ms", out.Duration.Milliseconds()).
		Msg(out.Message)

	return slot{attempted: true, parts: a.parts, outcome: out}, nil
}
