package audit_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/elabx-org/partscout/internal/audit"
	"github.com/elabx-org/partscout/internal/catalog"
)

func newLogger(t *testing.T) *audit.Logger {
	t.Helper()
	logger, err := audit.New(filepath.Join(t.TempDir(), "audit.log"))
	if err != nil {
		t.Fatalf("audit.New() error = %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger
}

func TestAuditLog(t *testing.T) {
	logger := newLogger(t)
	logger.Log(audit.Entry{Action: audit.ActionCredentialsPut, User: "alice", Records: 2})
	logger.Log(audit.Entry{Action: audit.ActionCredentialsDelete, User: "bob"})

	entries, err := logger.Query(audit.QueryOptions{User: "ALICE"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Action != audit.ActionCredentialsPut || entries[0].Timestamp.IsZero() {
		t.Errorf("entry = %+v", entries[0])
	}
}

func TestObserveFetch(t *testing.T) {
	logger := newLogger(t)
	logger.ObserveFetch(&catalog.Result{
		ID:    "f-1",
		Query: catalog.Query{PartNumber: "LM358", User: "alice"},
		Outcomes: map[string]catalog.Outcome{
			"dist": {Provider: "dist", Status: catalog.StatusSuccess, Records: 3, Duration: 40 * time.Millisecond},
			"agg":  {Provider: "agg", Status: catalog.StatusThrottled, Message: "rate limited"},
		},
		Parts: make([]catalog.Part, 3),
	}, 45*time.Millisecond)

	all, err := logger.Query(audit.QueryOptions{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d entries, want 3", len(all))
	}

	agg, _ := logger.Query(audit.QueryOptions{Provider: "agg"})
	if len(agg) != 1 || agg[0].Status != "throttled" || agg[0].FetchID != "f-1" || agg[0].Message != "rate limited" {
		t.Errorf("agg entries = %+v", agg)
	}

	fetches, _ := logger.Query(audit.QueryOptions{Action: audit.ActionFetch})
	if len(fetches) != 1 || fetches[0].Records != 3 || fetches[0].DurationMs != 45 {
		t.Errorf("fetch entries = %+v", fetches)
	}
}

func TestPrune(t *testing.T) {
	logger := newLogger(t)
	logger.Log(audit.Entry{Action: audit.ActionFetch, User: "old", Timestamp: time.Now().AddDate(0, 0, -40)})
	logger.Log(audit.Entry{Action: audit.ActionFetch, User: "new"})

	if err := logger.Prune(30); err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	entries, _ := logger.Query(audit.QueryOptions{})
	if len(entries) != 1 || entries[0].User != "new" {
		t.Fatalf("entries after prune = %+v", entries)
	}

	logger.Log(audit.Entry{Action: audit.ActionFetch, User: "after"})
	entries, _ = logger.Query(audit.QueryOptions{})
	if len(entries) != 2 {
		t.Errorf("entries after append = %d, want 2", len(entries))
	}
}
