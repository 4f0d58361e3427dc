package aggregate_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/elabx-org/partscout/internal/aggregate"
	"github.com/elabx-org/partscout/internal/catalog"
	"github.com/elabx-org/partscout/internal/credential"
	"github.com/elabx-org/partscout/internal/processor"
	"github.com/elabx-org/partscout/internal/provider"
)

type stubClient struct{ name string }

func (c stubClient) Name() string       { return c.name }
func (c stubClient) IsEnabled() bool    { return true }
func (c stubClient) IsConfigured() bool { return true }
func (c stubClient) Search(context.Context, provider.SearchRequest) (*provider.Response, error) {
	return nil, provider.ErrNotSupported
}
func (c stubClient) GetOrder(context.Context, string, provider.Options) (*provider.Response, error) {
	return nil, provider.ErrNotSupported
}
func (c stubClient) GetProductDetails(context.Context, string, provider.Options) (*provider.Response, error) {
	return nil, provider.ErrNotSupported
}

type fakeFactory struct {
	mu      sync.Mutex
	created []string
	errs    map[string]error
}

func (f *fakeFactory) Create(_ context.Context, d provider.Descriptor, _ string) (provider.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, d.Name)
	if err := f.errs[d.Name]; err != nil {
		return nil, err
	}
	return stubClient{name: d.Name}, nil
}

func (f *fakeFactory) wasCreated(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.created {
		if n == name {
			return true
		}
	}
	return false
}

type execFunc func(ctx context.Context, q catalog.Query) ([]catalog.Part, catalog.Outcome, error)

type fakeProcessor struct {
	name     string
	priority int
	exec     execFunc
}

func (p fakeProcessor) Name() string  { return p.name }
func (p fakeProcessor) Priority() int { return p.priority }
func (p fakeProcessor) Execute(ctx context.Context, _ provider.Client, q catalog.Query) ([]catalog.Part, catalog.Outcome, error) {
	return p.exec(ctx, q)
}

func returning(name string, parts ...catalog.Part) execFunc {
	return func(context.Context, catalog.Query) ([]catalog.Part, catalog.Outcome, error) {
		return parts, catalog.NewOutcome(name, catalog.StatusSuccess, ""), nil
	}
}

func entry(name string, priority int, exec execFunc) processor.Entry {
	return processor.Entry{
		Descriptor: provider.Descriptor{Name: name, Enabled: true, Priority: priority},
		Processor:  fakeProcessor{name: name, priority: priority, exec: exec},
	}
}

type invalidations struct {
	mu   sync.Mutex
	keys []credential.Key
}

func (i *invalidations) Invalidate(key credential.Key) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.keys = append(i.keys, key)
}

var testQuery = catalog.Query{PartNumber: "LM7805", User: "alice"}

func newEngine(f aggregate.ClientFactory, entries ...processor.Entry) *aggregate.Engine {
	return aggregate.New(processor.NewRegistry(entries...), f, nil, aggregate.Options{MaxConcurrency: 4, DefaultTimeout: time.Second})
}

func TestFetchRecordsOneOutcomePerProvider(t *testing.T) {
	disabled := entry("off", 1, returning("off"))
	disabled.Descriptor.Enabled = false
	unconfigured := entry("bare", 1, returning("bare"))
	unconfigured.Descriptor.Configured = func() bool { return false }

	f := &fakeFactory{}
	e := newEngine(f,
		entry("a", 10, returning("a", catalog.Part{Manufacturer: "X", ManufacturerPartNumber: "1"})),
		disabled,
		unconfigured,
		entry("b", 20, func(context.Context, catalog.Query) ([]catalog.Part, catalog.Outcome, error) {
			return nil, processor.Classify("b", provider.ErrUnavailable), nil
		}),
	)

	res, err := e.Fetch(context.Background(), testQuery)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(res.Outcomes) != 3 {
		t.Fatalf("outcomes = %v, want a, b and bare", res.Outcomes)
	}
	if _, ok := res.Outcome("off"); ok {
		t.Error("disabled provider has an outcome")
	}
	if o, _ := res.Outcome("bare"); o.Status != catalog.StatusNotConfigured {
		t.Errorf("bare = %v, want not_configured", o.Status)
	}
	if f.wasCreated("bare") || f.wasCreated("off") {
		t.Errorf("factory called for %v", f.created)
	}
	if o, _ := res.Outcome("a"); o.Status != catalog.StatusSuccess || o.Records != 1 {
		t.Errorf("a = %+v", o)
	}
	if o, _ := res.Outcome("b"); o.Status != catalog.StatusWarning {
		t.Errorf("b = %v, want warning", o.Status)
	}
	if res.ID == "" {
		t.Error("result has no id")
	}
	if res.Query.RecordCount != catalog.DefaultRecordCount {
		t.Errorf("RecordCount = %d, want default", res.Query.RecordCount)
	}
}

func TestFetchMergesByPriorityNotRegistryOrder(t *testing.T) {
	e := newEngine(&fakeFactory{},
		entry("aggregator", 30, returning("aggregator", catalog.Part{Manufacturer: "X", ManufacturerPartNumber: "Y", Description: "5 Volt regulator", DatasheetURL: "http://b"})),
		entry("distributor", 10, returning("distributor", catalog.Part{Manufacturer: "X", ManufacturerPartNumber: "Y", Description: "5V regulator"})),
	)
	res, err := e.Fetch(context.Background(), testQuery)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(res.Parts) != 1 {
		t.Fatalf("parts = %d, want 1", len(res.Parts))
	}
	p := res.Parts[0]
	if p.Description != "5V regulator" || p.DatasheetURL != "http://b" {
		t.Errorf("merged = %q %q", p.Description, p.DatasheetURL)
	}
}

func TestFetchTimeoutIsolation(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	slow := entry("b", 20, func(context.Context, catalog.Query) ([]catalog.Part, catalog.Outcome, error) {
		<-block // ignores cancellation
		return nil, catalog.Outcome{}, nil
	})
	slow.Descriptor.Timeout = 30 * time.Millisecond

	e := newEngine(&fakeFactory{},
		entry("a", 10, returning("a", catalog.Part{Manufacturer: "A", ManufacturerPartNumber: "1"})),
		slow,
		entry("c", 30, returning("c", catalog.Part{Manufacturer: "C", ManufacturerPartNumber: "3"})),
	)

	start := time.Now()
	res, err := e.Fetch(context.Background(), testQuery)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("Fetch() took %v, slow provider was not abandoned", time.Since(start))
	}
	for _, name := range []string{"a", "c"} {
		if o, _ := res.Outcome(name); o.Status != catalog.StatusSuccess {
			t.Errorf("%s = %v, want success", name, o.Status)
		}
	}
	if o, _ := res.Outcome("b"); o.Status != catalog.StatusWarning {
		t.Errorf("b = %+v, want warning", o)
	}
	if len(res.Parts) != 2 {
		t.Errorf("parts = %d, want 2", len(res.Parts))
	}
}

func TestFetchParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := newEngine(&fakeFactory{},
		entry("a", 10, func(ctx context.Context, _ catalog.Query) ([]catalog.Part, catalog.Outcome, error) {
			cancel()
			<-ctx.Done()
			return nil, processor.Classify("a", ctx.Err()), nil
		}),
	)
	res, err := e.Fetch(ctx, testQuery)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if o, _ := res.Outcome("a"); o.Status != catalog.StatusError {
		t.Errorf("a = %v, want error", o.Status)
	}
}

func TestFetchRecoversProviderFailures(t *testing.T) {
	f := &fakeFactory{errs: map[string]error{"broken": errors.New("no such endpoint")}}
	e := newEngine(f,
		entry("panics", 1, func(context.Context, catalog.Query) ([]catalog.Part, catalog.Outcome, error) {
			panic("vendor sdk exploded")
		}),
		entry("broken", 2, returning("broken")),
		entry("misbehaves", 3, func(context.Context, catalog.Query) ([]catalog.Part, catalog.Outcome, error) {
			return []catalog.Part{{Manufacturer: "M"}}, catalog.Outcome{}, errors.New("not an integrity error")
		}),
		entry("silent", 4, func(context.Context, catalog.Query) ([]catalog.Part, catalog.Outcome, error) {
			return nil, catalog.Outcome{}, nil
		}),
		entry("ok", 5, returning("ok", catalog.Part{Manufacturer: "O", ManufacturerPartNumber: "K"})),
	)
	res, err := e.Fetch(context.Background(), testQuery)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	for _, name := range []string{"panics", "broken", "misbehaves", "silent"} {
		o, ok := res.Outcome(name)
		if !ok || o.Status != catalog.StatusError || o.Message == "" {
			t.Errorf("%s = %+v, want error with message", name, o)
		}
	}
	if o, _ := res.Outcome("ok"); o.Status != catalog.StatusSuccess {
		t.Errorf("ok = %v", o.Status)
	}
	if len(res.Parts) != 1 {
		t.Errorf("parts = %d, want only the ok provider's part", len(res.Parts))
	}
}

func TestFetchIntegrityErrorAborts(t *testing.T) {
	integrity := &credential.DataIntegrityError{Key: "alice", Provider: "tok", Reason: "loader returned empty set"}
	tests := []struct {
		name    string
		factory *fakeFactory
		exec    execFunc
	}{
		{"from factory", &fakeFactory{errs: map[string]error{"tok": integrity}}, returning("tok")},
		{"from processor", &fakeFactory{}, func(context.Context, catalog.Query) ([]catalog.Part, catalog.Outcome, error) {
			return nil, catalog.Outcome{}, integrity
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(tt.factory, entry("ok", 1, returning("ok")), entry("tok", 2, tt.exec))
			res, err := e.Fetch(context.Background(), testQuery)
			if !credential.IsIntegrity(err) {
				t.Fatalf("Fetch() error = %v, want integrity error", err)
			}
			if res != nil {
				t.Error("result returned alongside integrity error")
			}
		})
	}
}

func TestFetchUnauthorizedInvalidatesTokenCredentials(t *testing.T) {
	tok := entry("tok", 1, func(context.Context, catalog.Query) ([]catalog.Part, catalog.Outcome, error) {
		return nil, processor.Classify("tok", provider.ErrUnauthorized), nil
	})
	tok.Descriptor.Auth = provider.AuthToken
	key := entry("key", 2, func(context.Context, catalog.Query) ([]catalog.Part, catalog.Outcome, error) {
		return nil, processor.Classify("key", provider.ErrUnauthorized), nil
	})
	key.Descriptor.Auth = provider.AuthAPIKey

	inv := &invalidations{}
	e := aggregate.New(processor.NewRegistry(entry("ok", 0, returning("ok")), tok, key), &fakeFactory{}, inv, aggregate.Options{MaxConcurrency: 1})
	res, err := e.Fetch(context.Background(), testQuery)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(inv.keys) != 1 || inv.keys[0] != "alice" {
		t.Errorf("invalidated = %v, want [alice]", inv.keys)
	}
	if len(res.Outcomes) != 3 {
		t.Errorf("outcomes = %v", res.Outcomes)
	}
	if o, _ := res.Outcome("ok"); o.Status != catalog.StatusSuccess {
		t.Errorf("ok = %v, want success", o.Status)
	}
}

func TestFetchProviderFilter(t *testing.T) {
	f := &fakeFactory{}
	e := newEngine(f, entry("a", 1, returning("a")), entry("b", 2, returning("b")))

	q := testQuery
	q.Providers = []string{"B"}
	res, err := e.Fetch(context.Background(), q)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if _, ok := res.Outcome("a"); ok || len(res.Outcomes) != 1 {
		t.Errorf("outcomes = %v, want only b", res.Outcomes)
	}

	q.Providers = []string{"zzz"}
	if _, err := e.Fetch(context.Background(), q); !errors.Is(err, provider.ErrUnknownProvider) {
		t.Errorf("Fetch() error = %v, want ErrUnknownProvider", err)
	}
}

func TestFetchRejectsInvalidQuery(t *testing.T) {
	e := newEngine(&fakeFactory{})
	if _, err := e.Fetch(context.Background(), catalog.Query{User: "u"}); !errors.Is(err, catalog.ErrEmptyPartNumber) {
		t.Errorf("Fetch() error = %v, want ErrEmptyPartNumber", err)
	}
}

func TestFetchBoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	exec := func(context.Context, catalog.Query) ([]catalog.Part, catalog.Outcome, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return nil, catalog.NewOutcome("", catalog.StatusSuccess, ""), nil
	}
	var entries []processor.Entry
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		entries = append(entries, entry(name, 1, exec))
	}
	e := aggregate.New(processor.NewRegistry(entries...), &fakeFactory{}, nil, aggregate.Options{MaxConcurrency: 2, DefaultTimeout: time.Second})
	res, err := e.Fetch(context.Background(), testQuery)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if peak.Load() > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak.Load())
	}
	if len(res.Outcomes) != 6 {
		t.Errorf("outcomes = %d, want 6", len(res.Outcomes))
	}
	for name, o := range res.Outcomes {
		if o.Provider != name {
			t.Errorf("outcome keyed %q names provider %q", name, o.Provider)
		}
	}
}

type recorder struct {
	results []*catalog.Result
}

func (r *recorder) ObserveFetch(res *catalog.Result, _ time.Duration) {
	r.results = append(r.results, res)
}

func TestFetchNotifiesObservers(t *testing.T) {
	rec := &recorder{}
	e := aggregate.New(processor.NewRegistry(entry("a", 1, returning("a"))), &fakeFactory{}, nil, aggregate.Options{}, rec)
	res, err := e.Fetch(context.Background(), testQuery)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(rec.results) != 1 || rec.results[0] != res {
		t.Errorf("observer saw %d results", len(rec.results))
	}
	if res.Parts == nil {
		t.Error("Parts is nil, want empty slice")
	}
}
