package processor

import (
	"context"
	"strings"

	"github.com/elabx-org/partscout/internal/catalog"
	"github.com/elabx-org/partscout/internal/provider"
	"github.com/shopspring/decimal"
)

type aggregatorSearch struct {
	Hits    int `json:"hits"`
	Results []struct {
		Part aggregatorPart `json:"part"`
	} `json:"results"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type aggregatorPart struct {
	MPN          string `json:"mpn"`
	Manufacturer struct {
		Name string `json:"name"`
	} `json:"manufacturer"`
	ShortDescription string `json:"short_description"`
	Category         struct {
		Name string `json:"name"`
	} `json:"category"`
	BestDatasheet struct {
		URL string `json:"url"`
	} `json:"best_datasheet"`
	BestImage struct {
		URL string `json:"url"`
	} `json:"best_image"`
	URL   string `json:"url"`
	Specs []struct {
		Attribute struct {
			Name string `json:"name"`
		} `json:"attribute"`
		DisplayValue string `json:"display_value"`
	} `json:"specs"`
	Sellers []struct {
		Company struct {
			Name string `json:"name"`
		} `json:"company"`
		Offers []struct {
			SKU            string `json:"sku"`
			InventoryLevel int64  `json:"inventory_level"`
			ClickURL       string `json:"click_url"`
			Prices         []struct {
				Quantity int             `json:"quantity"`
				Price    decimal.Decimal `json:"price"`
				Currency string          `json:"currency"`
			} `json:"prices"`
		} `json:"offers"`
	} `json:"sellers"`
}

// Aggregator handles API-key market aggregators that list offers from many
// sellers. Stock is reported per seller; pricing comes from the first offer
// quoted in the requested currency.
type Aggregator struct {
	base
}

func NewAggregator(d provider.Descriptor) *Aggregator {
	return &Aggregator{base{desc: d}}
}

func (p *Aggregator) Execute(ctx context.Context, client provider.Client, q catalog.Query) ([]catalog.Part, catalog.Outcome, error) {
	name := p.Name()
	resp, err := client.Search(ctx, searchRequest(q))
	if err != nil {
		return fail(name, err)
	}
	if notFound(resp) {
		return succeed(name, resp, nil)
	}
	var body aggregatorSearch
	if err := decode(name, resp, &body); err != nil {
		return fail(name, err)
	}
	if len(body.Results) == 0 && len(body.Errors) > 0 {
		reports := make([]reportedError, 0, len(body.Errors))
		for _, e := range body.Errors {
			reports = append(reports, reportedError{Message: e.Message})
		}
		out := classifyReported(name, reports)
		out.RawRef = resp.Ref
		return nil, out, nil
	}

	currency := firstNonEmpty(q.Option("currency"), "USD")
	parts := make([]catalog.Part, 0, len(body.Results))
	for _, r := range body.Results {
		parts = append(parts, p.normalize(r.Part, currency, q))
	}
	if q.RecordCount > 0 && len(parts) > q.RecordCount {
		parts = parts[:q.RecordCount]
	}
	return succeed(name, resp, parts)
}

func (p *Aggregator) normalize(ap aggregatorPart, currency string, q catalog.Query) catalog.Part {
	part := catalog.Part{
		Manufacturer:           strings.TrimSpace(ap.Manufacturer.Name),
		ManufacturerPartNumber: strings.TrimSpace(ap.MPN),
		Description:            ap.ShortDescription,
		DatasheetURL:           ap.BestDatasheet.URL,
		ImageURL:               ap.BestImage.URL,
		ProductURL:             ap.URL,
		PartType:               InferPartType(ap.Category.Name, q.KnownPartTypes),
	}
	if len(ap.Specs) > 0 {
		part.Parametrics = make(map[string]string, len(ap.Specs))
		for _, s := range ap.Specs {
			if s.Attribute.Name != "" && s.DisplayValue != "" {
				part.Parametrics[s.Attribute.Name] = s.DisplayValue
			}
		}
		part.Package = firstNonEmpty(part.Parametrics["Case/Package"], part.Parametrics["Package"])
	}
	part.MountingType = MountingType(part.Parametrics)

	for _, seller := range ap.Sellers {
		level := catalog.StockLevel{Supplier: seller.Company.Name}
		for _, offer := range seller.Offers {
			level.Quantity += offer.InventoryLevel
			if level.SupplierPartNumber == "" {
				level.SupplierPartNumber = offer.SKU
				level.ProductURL = offer.ClickURL
			}
			if len(part.Pricing) > 0 {
				continue
			}
			for _, pr := range offer.Prices {
				if strings.EqualFold(pr.Currency, currency) {
					part.Pricing = append(part.Pricing, catalog.PriceBreak{
						Quantity:  pr.Quantity,
						UnitPrice: pr.Price,
						Currency:  strings.ToUpper(pr.Currency),
					})
				}
			}
		}
		if level.Supplier != "" {
			part.Stock = append(part.Stock, level)
		}
	}
	return part
}
