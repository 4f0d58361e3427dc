package catalog

import (
	"sort"
	"strings"
)

// ProviderParts is one provider's normalized records together with the
// provider's merge priority (lower wins).
type ProviderParts struct {
	Provider string
	Priority int
	Parts    []Part
}

// Result is the aggregate of one fetch.
type Result struct {
	ID       string             `json:"id"`
	Query    Query              `json:"query"`
	Outcomes map[string]Outcome `json:"outcomes"`
	Parts    []Part             `json:"parts"`
}

// Outcome returns the recorded outcome for provider.
func (r *Result) Outcome(provider string) (Outcome, bool) {
	o, ok := r.Outcomes[provider]
	return o, ok
}

// Merge folds the parts of all providers into one set keyed by canonical
// identity. Sets are visited in ascending priority; sets with equal priority
// keep their input order. A field set by an earlier set is never overwritten
// by a later one; empty fields take the later value.
//
// Pricing is treated as a single field. Parametrics merge per key and stock
// levels per supplier, with the same first-wins rule. Parts without any
// identity are kept as separate records.
func Merge(sets []ProviderParts) []Part {
	ordered := make([]ProviderParts, len(sets))
	copy(ordered, sets)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	var merged []Part
	index := make(map[Identity]int)
	for _, set := range ordered {
		for i := range set.Parts {
			in := set.Parts[i].clone()
			addSource(&in, set.Provider)
			id := in.Identity()
			if id.IsZero() {
				merged = append(merged, in)
				continue
			}
			if at, ok := index[id]; ok {
				mergeInto(&merged[at], &in)
				continue
			}
			index[id] = len(merged)
			merged = append(merged, in)
		}
	}
	return merged
}

func mergeInto(dst, src *Part) {
	fill(&dst.Manufacturer, src.Manufacturer)
	fill(&dst.ManufacturerPartNumber, src.ManufacturerPartNumber)
	fill(&dst.Description, src.Description)
	fill(&dst.DatasheetURL, src.DatasheetURL)
	fill(&dst.ImageURL, src.ImageURL)
	fill(&dst.ProductURL, src.ProductURL)
	fill(&dst.PartType, src.PartType)
	fill(&dst.MountingType, src.MountingType)
	fill(&dst.Package, src.Package)

	if len(dst.Pricing) == 0 {
		dst.Pricing = src.Pricing
	}

	for k, v := range src.Parametrics {
		if dst.Parametrics == nil {
			dst.Parametrics = make(map[string]string)
		}
		if strings.TrimSpace(dst.Parametrics[k]) == "" {
			dst.Parametrics[k] = v
		}
	}

	for _, s := range src.Stock {
		if !hasSupplier(dst.Stock, s.Supplier) {
			dst.Stock = append(dst.Stock, s)
		}
	}

	for _, name := range src.Sources {
		addSource(dst, name)
	}
}

func fill(dst *string, v string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = v
	}
}

func hasSupplier(levels []StockLevel, supplier string) bool {
	for _, l := range levels {
		if strings.EqualFold(l.Supplier, supplier) {
			return true
		}
	}
	return false
}

func addSource(p *Part, name string) {
	if name == "" {
		return
	}
	for _, s := range p.Sources {
		if s == name {
			return
		}
	}
	p.Sources = append(p.Sources, name)
}
