package catalog

import (
	"strings"

	"github.com/shopspring/decimal"
)

// PriceBreak is the unit price that applies from Quantity units upward.
type PriceBreak struct {
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Currency  string          `json:"currency,omitempty"`
}

// StockLevel is one supplier's availability for a part.
type StockLevel struct {
	Supplier           string `json:"supplier"`
	SupplierPartNumber string `json:"supplier_part_number,omitempty"`
	Quantity           int64  `json:"quantity"`
	ProductURL         string `json:"product_url,omitempty"`
}

// Identity is the canonical key used to deduplicate parts across providers.
type Identity struct {
	Manufacturer           string
	ManufacturerPartNumber string
}

// IsZero reports whether no identity could be derived.
func (id Identity) IsZero() bool {
	return id.Manufacturer == "" && id.ManufacturerPartNumber == ""
}

func (id Identity) String() string {
	return id.Manufacturer + "/" + id.ManufacturerPartNumber
}

// Part is a provider-independent part record.
type Part struct {
	Manufacturer           string            `json:"manufacturer"`
	ManufacturerPartNumber string            `json:"manufacturer_part_number"`
	Description            string            `json:"description,omitempty"`
	DatasheetURL           string            `json:"datasheet_url,omitempty"`
	ImageURL               string            `json:"image_url,omitempty"`
	ProductURL             string            `json:"product_url,omitempty"`
	PartType               string            `json:"part_type,omitempty"`
	MountingType           string            `json:"mounting_type,omitempty"`
	Package                string            `json:"package,omitempty"`
	Pricing                []PriceBreak      `json:"pricing,omitempty"`
	Stock                  []StockLevel      `json:"stock,omitempty"`
	Parametrics            map[string]string `json:"parametrics,omitempty"`
	Sources                []string          `json:"sources,omitempty"`
}

// Identity returns the canonical identity of p: manufacturer and
// manufacturer part number, trimmed and lowercased.
func (p *Part) Identity() Identity {
	return Identity{
		Manufacturer:           canonical(p.Manufacturer),
		ManufacturerPartNumber: canonical(p.ManufacturerPartNumber),
	}
}

// TotalStock sums the quantities of all stock levels.
func (p *Part) TotalStock() int64 {
	var n int64
	for _, s := range p.Stock {
		n += s.Quantity
	}
	return n
}

func (p *Part) clone() Part {
	c := *p
	c.Pricing = append([]PriceBreak(nil), p.Pricing...)
	c.Stock = append([]StockLevel(nil), p.Stock...)
	c.Sources = append([]string(nil), p.Sources...)
	if p.Parametrics != nil {
		c.Parametrics = make(map[string]string, len(p.Parametrics))
		for k, v := range p.Parametrics {
			c.Parametrics[k] = v
		}
	}
	return c
}

func canonical(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
