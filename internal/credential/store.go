package credential

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Loader produces the complete credential set of one key. Bootstrapping
// vendor credentials is usually a single operation for all providers of a
// tenant, so a loader always returns every provider's record at once.
type Loader func(ctx context.Context) (Set, error)

// LoadHook observes every loader invocation.
type LoadHook func(key Key, d time.Duration, err error)

// Store caches credential sets per key for the life of the process.
//
// Each key has its own lock so tenants do not contend with each other. While
// a key's set is being loaded, other callers for that key wait and then share
// the stored result: the loader runs at most once per uncached window.
type Store struct {
	mu      sync.Mutex
	entries map[Key]*entry

	loads atomic.Int64
	hits  atomic.Int64
	hook  LoadHook
}

type entry struct {
	lock chan struct{}
	set  atomic.Pointer[Set]
	refs int
}

func NewStore() *Store {
	return &Store{entries: make(map[Key]*entry)}
}

// SetLoadHook registers fn to be called after each loader invocation.
func (s *Store) SetLoadHook(fn LoadHook) {
	s.hook = fn
}

// Has reports whether any credentials are cached for key.
func (s *Store) Has(key Key) bool {
	s.mu.Lock()
	e := s.entries[key]
	s.mu.Unlock()
	return e != nil && e.set.Load() != nil
}

// Invalidate drops the whole cached set for key. It waits for an in-flight
// load of the same key so the next GetOrLoad always reloads.
func (s *Store) Invalidate(key Key) {
	e := s.acquire(key)
	defer s.release(key, e)
	e.lock <- struct{}{}
	e.set.Store(nil)
	<-e.lock
	log.Debug().Str("user", string(key)).Msg("credentials: invalidated")
}

// GetOrLoad returns a copy of the record for provider, invoking loader when
// the key has nothing cached. A cached set that lacks provider is considered
// stale and reloaded as a whole.
func (s *Store) GetOrLoad(ctx context.Context, key Key, provider string, loader Loader) (Record, error) {
	e := s.acquire(key)
	defer s.release(key, e)

	select {
	case e.lock <- struct{}{}:
	case <-ctx.Done():
		return Record{}, ctx.Err()
	}
	defer func() { <-e.lock }()

	if cached := e.set.Load(); cached != nil {
		if rec, ok := cached.Get(provider); ok {
			s.hits.Add(1)
			return rec.Clone(), nil
		}
		log.Warn().
			Str("user", string(key)).
			Str("provider", provider).
			Msg("credentials: cached set has no record for provider, reloading")
		e.set.Store(nil)
	}

	set, err := s.load(ctx, key, loader)
	if err != nil {
		return Record{}, err
	}
	if err := set.Validate(); err != nil {
		return Record{}, &DataIntegrityError{Key: key, Reason: err.Error()}
	}

	stored := set.clone()
	e.set.Store(&stored)

	rec, ok := stored.Get(provider)
	if !ok {
		return Record{}, &DataIntegrityError{Key: key, Provider: provider, Reason: "loaded set has no record for provider"}
	}
	return rec.Clone(), nil
}

// Stats returns the number of loader invocations and cache hits so far.
func (s *Store) Stats() (loads, hits int64) {
	return s.loads.Load(), s.hits.Load()
}

func (s *Store) load(ctx context.Context, key Key, loader Loader) (Set, error) {
	start := time.Now()
	s.loads.Add(1)
	set, err := loader(ctx)
	if s.hook != nil {
		s.hook(key, time.Since(start), err)
	}
	if err != nil {
		return Set{}, fmt.Errorf("load credentials for %q: %w", key, err)
	}
	log.Debug().
		Str("user", string(key)).
		Int("records", set.Len()).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("credentials: loaded")
	return set, nil
}

func (s *Store) acquire(key Key) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		e = &entry{lock: make(chan struct{}, 1)}
		s.entries[key] = e
	}
	e.refs++
	return e
}

func (s *Store) release(key Key, e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.refs--
	if e.refs == 0 && e.set.Load() == nil {
		delete(s.entries, key)
	}
}
