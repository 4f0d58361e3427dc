package credential_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/elabx-org/partscout/internal/credential"
)

func fullSet() credential.Set {
	return credential.Set{Records: []credential.Record{
		{Provider: "distributor", AccessToken: "tok-d", RefreshToken: "ref-d"},
		{Provider: "aggregator", AccessToken: "tok-a"},
	}}
}

func countingLoader(n *atomic.Int32, set credential.Set, delay time.Duration) credential.Loader {
	return func(ctx context.Context) (credential.Set, error) {
		n.Add(1)
		time.Sleep(delay)
		return set, nil
	}
}

func TestStoreSingleFlight(t *testing.T) {
	store := credential.NewStore()
	var calls atomic.Int32
	loader := countingLoader(&calls, fullSet(), 20*time.Millisecond)

	const n = 50
	var wg sync.WaitGroup
	start := make(chan struct{})
	results := make([]credential.Record, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = store.GetOrLoad(context.Background(), "user-1", "distributor", loader)
		}(i)
	}
	close(start)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("loader calls = %d, want 1", got)
	}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("GetOrLoad() #%d error = %v", i, errs[i])
		}
		if results[i].AccessToken != "tok-d" || results[i].RefreshToken != "ref-d" {
			t.Errorf("result #%d = %+v, want distributor record", i, results[i])
		}
	}
}

func TestStoreDifferentKeysLoadIndependently(t *testing.T) {
	store := credential.NewStore()
	var calls atomic.Int32
	loader := countingLoader(&calls, fullSet(), 0)

	for _, user := range []credential.Key{"a", "b", "a", "b"} {
		if _, err := store.GetOrLoad(context.Background(), user, "aggregator", loader); err != nil {
			t.Fatalf("GetOrLoad(%s) error = %v", user, err)
		}
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("loader calls = %d, want 2", got)
	}
	if !store.Has("a") || !store.Has("b") {
		t.Error("Has() = false after load")
	}
	if store.Has("c") {
		t.Error("Has(c) = true, want false")
	}
}

func TestStoreInvalidateReloads(t *testing.T) {
	store := credential.NewStore()
	var calls atomic.Int32
	loader := countingLoader(&calls, fullSet(), 0)
	ctx := context.Background()

	store.GetOrLoad(ctx, "u", "distributor", loader)
	store.Invalidate("u")
	if store.Has("u") {
		t.Fatal("Has() = true after Invalidate()")
	}
	store.Invalidate("u") // idempotent
	if _, err := store.GetOrLoad(ctx, "u", "distributor", loader); err != nil {
		t.Fatalf("GetOrLoad() error = %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("loader calls = %d, want 2", got)
	}
}

func TestStoreMissingProviderReloadsWholeSet(t *testing.T) {
	store := credential.NewStore()
	ctx := context.Background()
	partial := credential.Set{Records: []credential.Record{{Provider: "aggregator", AccessToken: "old"}}}

	var calls atomic.Int32
	store.GetOrLoad(ctx, "u", "aggregator", countingLoader(&calls, partial, 0))

	rec, err := store.GetOrLoad(ctx, "u", "distributor", countingLoader(&calls, fullSet(), 0))
	if err != nil {
		t.Fatalf("GetOrLoad() error = %v", err)
	}
	if rec.AccessToken != "tok-d" {
		t.Errorf("AccessToken = %q, want tok-d", rec.AccessToken)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("loader calls = %d, want 2", got)
	}
	agg, _ := store.GetOrLoad(ctx, "u", "aggregator", countingLoader(&calls, fullSet(), 0))
	if agg.AccessToken != "tok-a" {
		t.Errorf("aggregator AccessToken = %q, want tok-a from the reloaded set", agg.AccessToken)
	}
}

func TestStoreIntegrityErrors(t *testing.T) {
	ctx := context.Background()
	empty := func(context.Context) (credential.Set, error) { return credential.Set{}, nil }

	_, err := credential.NewStore().GetOrLoad(ctx, "u", "distributor", empty)
	var de *credential.DataIntegrityError
	if !errors.As(err, &de) {
		t.Fatalf("GetOrLoad() error = %v, want DataIntegrityError", err)
	}

	partial := func(context.Context) (credential.Set, error) {
		return credential.Set{Records: []credential.Record{{Provider: "aggregator"}}}, nil
	}
	_, err = credential.NewStore().GetOrLoad(ctx, "u", "distributor", partial)
	if !credential.IsIntegrity(err) {
		t.Fatalf("GetOrLoad() error = %v, want DataIntegrityError", err)
	}
}

func TestStoreLoaderErrorNotCached(t *testing.T) {
	store := credential.NewStore()
	ctx := context.Background()
	boom := errors.New("boom")
	_, err := store.GetOrLoad(ctx, "u", "distributor", func(context.Context) (credential.Set, error) {
		return credential.Set{}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("GetOrLoad() error = %v, want boom", err)
	}
	if credential.IsIntegrity(err) {
		t.Error("loader failure must not be reported as integrity error")
	}
	if store.Has("u") {
		t.Error("Has() = true after failed load")
	}
}

func TestStoreReturnsCopies(t *testing.T) {
	store := credential.NewStore()
	set := credential.Set{Records: []credential.Record{{Provider: "p", AccessToken: "t", Extra: map[string]string{"k": "v"}}}}
	loader := func(context.Context) (credential.Set, error) { return set, nil }

	rec, _ := store.GetOrLoad(context.Background(), "u", "p", loader)
	rec.Extra["k"] = "mutated"
	again, _ := store.GetOrLoad(context.Background(), "u", "p", loader)
	if again.Extra["k"] != "v" {
		t.Errorf("Extra[k] = %q, cached record was mutated by caller", again.Extra["k"])
	}
}

func TestStoreWaitHonoursContext(t *testing.T) {
	store := credential.NewStore()
	release := make(chan struct{})
	slow := func(context.Context) (credential.Set, error) {
		<-release
		return fullSet(), nil
	}
	go store.GetOrLoad(context.Background(), "u", "distributor", slow)
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := store.GetOrLoad(ctx, "u", "distributor", slow)
	close(release)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("GetOrLoad() error = %v, want deadline exceeded", err)
	}
}

func TestStoreLoadHook(t *testing.T) {
	store := credential.NewStore()
	var hooked atomic.Int32
	store.SetLoadHook(func(key credential.Key, d time.Duration, err error) { hooked.Add(1) })
	store.GetOrLoad(context.Background(), "u", "distributor", func(context.Context) (credential.Set, error) { return fullSet(), nil })
	store.GetOrLoad(context.Background(), "u", "distributor", func(context.Context) (credential.Set, error) { return fullSet(), nil })
	if hooked.Load() != 1 {
		t.Errorf("hook calls = %d, want 1", hooked.Load())
	}
	loads, hits := store.Stats()
	if loads != 1 || hits != 1 {
		t.Errorf("Stats() = %d, %d; want 1, 1", loads, hits)
	}
}
