package processor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/elabx-org/partscout/internal/config"
	"github.com/elabx-org/partscout/internal/provider"
)

// Processor kinds selectable with the provider "kind" setting.
const (
	KindDistributor = "distributor"
	KindAggregator  = "aggregator"
	KindCatalog     = "catalog"
)

var constructors = map[string]func(provider.Descriptor) Processor{
	KindDistributor: func(d provider.Descriptor) Processor { return NewDistributor(d) },
	KindAggregator:  func(d provider.Descriptor) Processor { return NewAggregator(d) },
	KindCatalog:     func(d provider.Descriptor) Processor { return NewCatalog(d) },
}

// Kinds lists the processor kinds, sorted.
func Kinds() []string {
	kinds := make([]string, 0, len(constructors))
	for k := range constructors {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// New returns the processor of the given kind bound to d.
func New(kind string, d provider.Descriptor) (Processor, error) {
	ctor, ok := constructors[strings.ToLower(kind)]
	if !ok {
		return nil, fmt.Errorf("unknown processor kind %q for provider %q (known: %s)", kind, d.Name, strings.Join(Kinds(), ", "))
	}
	return ctor(d), nil
}

// Entry pairs a provider with the processor that handles its responses.
type Entry struct {
	Descriptor provider.Descriptor
	Processor  Processor
}

// Registry is the ordered, immutable list of providers a fetch walks.
type Registry struct {
	entries []Entry
	index   map[string]int
}

// NewRegistry keeps entries in the given order.
func NewRegistry(entries ...Entry) *Registry {
	r := &Registry{
		entries: append([]Entry(nil), entries...),
		index:   make(map[string]int, len(entries)),
	}
	for i, e := range r.entries {
		key := strings.ToLower(e.Descriptor.Name)
		if _, dup := r.index[key]; !dup {
			r.index[key] = i
		}
	}
	return r
}

// Entries returns a copy of the entries in registry order.
func (r *Registry) Entries() []Entry {
	return append([]Entry(nil), r.entries...)
}

func (r *Registry) Len() int { return len(r.entries) }

// Lookup finds an entry by provider name, case-insensitively.
func (r *Registry) Lookup(name string) (Entry, bool) {
	i, ok := r.index[strings.ToLower(name)]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i], true
}

// Validate checks that the registry holds exactly expected providers, each
// with a unique name and a processor bound to it.
func (r *Registry) Validate(expected int) error {
	if len(r.entries) != expected {
		return fmt.Errorf("registry has %d providers, expected %d", len(r.entries), expected)
	}
	seen := make(map[string]struct{}, len(r.entries))
	for _, e := range r.entries {
		name := e.Descriptor.Name
		if name == "" {
			return fmt.Errorf("registry entry without provider name")
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("provider %q registered twice", name)
		}
		seen[key] = struct{}{}
		if e.Processor == nil {
			return fmt.Errorf("provider %q has no processor", name)
		}
		if !strings.EqualFold(e.Processor.Name(), name) {
			return fmt.Errorf("provider %q is bound to processor for %q", name, e.Processor.Name())
		}
	}
	return nil
}

// Build creates the registry for the configured providers in config order.
func Build(providers []config.ProviderConfig) (*Registry, error) {
	entries := make([]Entry, 0, len(providers))
	for _, pc := range providers {
		d := provider.DescriptorFor(pc)
		p, err := New(pc.Kind, d)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Descriptor: d, Processor: p})
	}
	r := NewRegistry(entries...)
	if err := r.Validate(len(providers)); err != nil {
		return nil, err
	}
	return r, nil
}
