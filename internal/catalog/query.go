package catalog

import (
	"errors"
	"strings"
)

// DefaultRecordCount is used when a query does not ask for a specific number
// of records per provider.
const DefaultRecordCount = 25

var (
	ErrEmptyPartNumber = errors.New("catalog: part number is required")
	ErrEmptyUser       = errors.New("catalog: requesting user is required")
)

// PartType is a user-defined category of parts (e.g. "Resistor").
type PartType struct {
	Name   string `json:"name" yaml:"name"`
	Parent string `json:"parent,omitempty" yaml:"parent,omitempty"`
}

// InventoryRecord is the caller's existing record for the part being looked
// up. Processors may use it to query a vendor by its own part number.
type InventoryRecord struct {
	PartNumber             string            `json:"part_number"`
	Manufacturer           string            `json:"manufacturer,omitempty"`
	ManufacturerPartNumber string            `json:"manufacturer_part_number,omitempty"`
	SupplierPartNumbers    map[string]string `json:"supplier_part_numbers,omitempty"`
}

// SupplierPartNumber returns the vendor-specific part number for provider.
func (r *InventoryRecord) SupplierPartNumber(provider string) string {
	if r == nil {
		return ""
	}
	return r.SupplierPartNumbers[provider]
}

// Query is the input of one fetch. It must not be modified once a fetch has
// started.
type Query struct {
	PartNumber     string            `json:"part_number"`
	PartType       string            `json:"part_type,omitempty"`
	MountingType   string            `json:"mounting_type,omitempty"`
	RecordCount    int               `json:"record_count,omitempty"`
	User           string            `json:"user"`
	KnownPartTypes []PartType        `json:"known_part_types,omitempty"`
	Existing       *InventoryRecord  `json:"existing,omitempty"`
	Options        map[string]string `json:"options,omitempty"`
	// Providers restricts the fetch to the named providers. Empty means all.
	Providers []string `json:"providers,omitempty"`
}

// Normalize returns a copy of q with defaults applied.
func (q Query) Normalize() Query {
	q.PartNumber = strings.TrimSpace(q.PartNumber)
	q.PartType = strings.TrimSpace(q.PartType)
	q.MountingType = strings.TrimSpace(q.MountingType)
	if q.RecordCount <= 0 {
		q.RecordCount = DefaultRecordCount
	}
	return q
}

func (q Query) Validate() error {
	if strings.TrimSpace(q.PartNumber) == "" {
		return ErrEmptyPartNumber
	}
	if strings.TrimSpace(q.User) == "" {
		return ErrEmptyUser
	}
	return nil
}

// Option returns the free-form option value for key.
func (q Query) Option(key string) string {
	return q.Options[key]
}

// Wants reports whether the query includes provider.
func (q Query) Wants(provider string) bool {
	if len(q.Providers) == 0 {
		return true
	}
	for _, p := range q.Providers {
		if strings.EqualFold(p, provider) {
			return true
		}
	}
	return false
}
