package processor_test

import (
	"strings"
	"testing"

	"github.com/elabx-org/partscout/internal/config"
	"github.com/elabx-org/partscout/internal/processor"
	"github.com/elabx-org/partscout/internal/provider"
)

func TestKindsMatchConstructors(t *testing.T) {
	want := []string{processor.KindAggregator, processor.KindCatalog, processor.KindDistributor}
	got := processor.Kinds()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("Kinds() = %v, want %v", got, want)
	}
	for _, k := range got {
		p, err := processor.New(k, provider.Descriptor{Name: "n", Priority: 7})
		if err != nil {
			t.Errorf("New(%q) error = %v", k, err)
			continue
		}
		if p.Name() != "n" || p.Priority() != 7 {
			t.Errorf("New(%q) = %s/%d", k, p.Name(), p.Priority())
		}
	}
	if _, err := processor.New("telepathy", provider.Descriptor{Name: "n"}); err == nil {
		t.Error("New(unknown) error = nil")
	}
}

func TestBuildKeepsConfigOrder(t *testing.T) {
	providers := []config.ProviderConfig{
		{Name: "cat", Kind: "catalog", Priority: 20},
		{Name: "dist", Kind: "Distributor", Priority: 10},
		{Name: "agg", Kind: "aggregator", Priority: 30},
	}
	r, err := processor.Build(providers)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	entries := r.Entries()
	if len(entries) != 3 || r.Len() != 3 {
		t.Fatalf("len = %d", len(entries))
	}
	for i, pc := range providers {
		if entries[i].Descriptor.Name != pc.Name || entries[i].Processor.Priority() != pc.Priority {
			t.Errorf("entry %d = %s/%d, want %s/%d", i, entries[i].Descriptor.Name, entries[i].Processor.Priority(), pc.Name, pc.Priority)
		}
	}
	e, ok := r.Lookup("DIST")
	if !ok || e.Descriptor.Name != "dist" {
		t.Errorf("Lookup(DIST) = %v, %v", e.Descriptor.Name, ok)
	}
	if _, ok := r.Lookup("nope"); ok {
		t.Error("Lookup(nope) found an entry")
	}
}

func TestBuildRejectsUnknownKind(t *testing.T) {
	_, err := processor.Build([]config.ProviderConfig{{Name: "x", Kind: "fax"}})
	if err == nil {
		t.Fatal("Build() error = nil")
	}
}

func TestRegistryValidate(t *testing.T) {
	d := provider.Descriptor{Name: "a"}
	pa := processor.NewCatalog(d)
	pb := processor.NewCatalog(provider.Descriptor{Name: "b"})

	tests := []struct {
		name     string
		entries  []processor.Entry
		expected int
		wantErr  bool
	}{
		{"ok", []processor.Entry{{Descriptor: d, Processor: pa}}, 1, false},
		{"size mismatch", []processor.Entry{{Descriptor: d, Processor: pa}}, 2, true},
		{"duplicate", []processor.Entry{{Descriptor: d, Processor: pa}, {Descriptor: provider.Descriptor{Name: "A"}, Processor: pa}}, 2, true},
		{"missing processor", []processor.Entry{{Descriptor: d}}, 1, true},
		{"mismatched processor", []processor.Entry{{Descriptor: d, Processor: pb}}, 1, true},
		{"unnamed", []processor.Entry{{Processor: pa}}, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := processor.NewRegistry(tt.entries...).Validate(tt.expected)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEntriesReturnsCopy(t *testing.T) {
	r := processor.NewRegistry(processor.Entry{Descriptor: provider.Descriptor{Name: "a"}, Processor: processor.NewCatalog(provider.Descriptor{Name: "a"})})
	e := r.Entries()
	e[0].Descriptor.Name = "changed"
	if got, _ := r.Lookup("a"); got.Descriptor.Name != "a" {
		t.Errorf("registry mutated through Entries(): %q", got.Descriptor.Name)
	}
}
