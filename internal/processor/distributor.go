package processor

import (
	"context"
	"strings"

	"github.com/elabx-org/partscout/internal/catalog"
	"github.com/elabx-org/partscout/internal/provider"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// distributorSearch is the keyword search response of an OAuth distributor.
type distributorSearch struct {
	Products []distributorProduct `json:"products"`
	Locale   struct {
		Currency string `json:"currency"`
	} `json:"search_locale_used"`
}

type distributorDetails struct {
	Product distributorProduct `json:"product"`
	Locale  struct {
		Currency string `json:"currency"`
	} `json:"search_locale_used"`
}

type distributorProduct struct {
	Manufacturer struct {
		Name string `json:"name"`
	} `json:"manufacturer"`
	ManufacturerProductNumber string `json:"manufacturer_product_number"`
	SupplierPartNumber        string `json:"supplier_part_number"`
	Description               struct {
		Product  string `json:"product_description"`
		Detailed string `json:"detailed_description"`
	} `json:"description"`
	ProductURL        string `json:"product_url"`
	DatasheetURL      string `json:"datasheet_url"`
	PhotoURL          string `json:"photo_url"`
	QuantityAvailable int64  `json:"quantity_available"`
	Category          struct {
		Name string `json:"name"`
	} `json:"category"`
	Package struct {
		Name string `json:"name"`
	} `json:"package_type"`
	StandardPricing []struct {
		BreakQuantity int             `json:"break_quantity"`
		UnitPrice     decimal.Decimal `json:"unit_price"`
	} `json:"standard_pricing"`
	Parameters []struct {
		Name  string `json:"parameter_text"`
		Value string `json:"value_text"`
	} `json:"parameters"`
}

// Distributor handles distributors that authenticate with per-user OAuth
// tokens. When the caller's inventory record already holds this
// distributor's part number, the product is looked up directly.
type Distributor struct {
	base
}

func NewDistributor(d provider.Descriptor) *Distributor {
	return &Distributor{base{desc: d}}
}

func (p *Distributor) Execute(ctx context.Context, client provider.Client, q catalog.Query) ([]catalog.Part, catalog.Outcome, error) {
	name := p.Name()

	if spn := q.Existing.SupplierPartNumber(name); spn != "" && p.desc.Capabilities.ProductDetails {
		parts, out, found, err := p.details(ctx, client, q, spn)
		if found || err != nil {
			return parts, out, err
		}
		log.Debug().Str("provider", name).Str("supplier_part_number", spn).Msg("processor: product not found by supplier number, searching")
	}

	resp, err := client.Search(ctx, searchRequest(q))
	if err != nil {
		return fail(name, err)
	}
	if notFound(resp) {
		return succeed(name, resp, nil)
	}
	var body distributorSearch
	if err := decode(name, resp, &body); err != nil {
		return fail(name, err)
	}
	currency := firstNonEmpty(body.Locale.Currency, q.Option("currency"), "USD")
	parts := make([]catalog.Part, 0, len(body.Products))
	for _, prod := range body.Products {
		parts = append(parts, p.normalize(prod, currency, q))
	}
	if q.RecordCount > 0 && len(parts) > q.RecordCount {
		parts = parts[:q.RecordCount]
	}
	return succeed(name, resp, parts)
}

// details looks the product up by supplier part number. found is false
// when the vendor does not know the number and a search should be tried
// instead.
func (p *Distributor) details(ctx context.Context, client provider.Client, q catalog.Query, spn string) ([]catalog.Part, catalog.Outcome, bool, error) {
	name := p.Name()
	resp, err := client.GetProductDetails(ctx, spn, provider.Options(q.Options))
	if err != nil {
		parts, out, ferr := fail(name, err)
		return parts, out, true, ferr
	}
	if notFound(resp) {
		return nil, catalog.Outcome{}, false, nil
	}
	var body distributorDetails
	if err := decode(name, resp, &body); err != nil {
		parts, out, ferr := fail(name, err)
		return parts, out, true, ferr
	}
	currency := firstNonEmpty(body.Locale.Currency, q.Option("currency"), "USD")
	parts, out, _ := succeed(name, resp, []catalog.Part{p.normalize(body.Product, currency, q)})
	return parts, out, true, nil
}

func (p *Distributor) normalize(prod distributorProduct, currency string, q catalog.Query) catalog.Part {
	part := catalog.Part{
		Manufacturer:           strings.TrimSpace(prod.Manufacturer.Name),
		ManufacturerPartNumber: strings.TrimSpace(prod.ManufacturerProductNumber),
		Description:            firstNonEmpty(prod.Description.Product, prod.Description.Detailed),
		DatasheetURL:           prod.DatasheetURL,
		ImageURL:               prod.PhotoURL,
		ProductURL:             prod.ProductURL,
		PartType:               InferPartType(prod.Category.Name, q.KnownPartTypes),
		Package:                prod.Package.Name,
	}
	for _, pb := range prod.StandardPricing {
		part.Pricing = append(part.Pricing, catalog.PriceBreak{
			Quantity:  pb.BreakQuantity,
			UnitPrice: pb.UnitPrice,
			Currency:  currency,
		})
	}
	if len(prod.Parameters) > 0 {
		part.Parametrics = make(map[string]string, len(prod.Parameters))
		for _, param := range prod.Parameters {
			if param.Name != "" && param.Value != "" {
				part.Parametrics[param.Name] = param.Value
			}
		}
	}
	part.MountingType = MountingType(part.Parametrics)
	part.Stock = []catalog.StockLevel{{
		Supplier:           p.Name(),
		SupplierPartNumber: prod.SupplierPartNumber,
		Quantity:           prod.QuantityAvailable,
		ProductURL:         prod.ProductURL,
	}}
	return part
}
