package processor

import (
	"context"
	"fmt"
	"strings"

	"github.com/elabx-org/partscout/internal/catalog"
	"github.com/elabx-org/partscout/internal/provider"
	"github.com/rs/zerolog/log"
)

type catalogSearch struct {
	Errors        []catalogError `json:"Errors"`
	SearchResults struct {
		NumberOfResult int           `json:"NumberOfResult"`
		Parts          []catalogPart `json:"Parts"`
	} `json:"SearchResults"`
}

type catalogError struct {
	ID      int    `json:"Id"`
	Code    string `json:"Code"`
	Message string `json:"Message"`
}

type catalogPart struct {
	Availability           string `json:"Availability"`
	DataSheetURL           string `json:"DataSheetUrl"`
	Description            string `json:"Description"`
	ImagePath              string `json:"ImagePath"`
	Category               string `json:"Category"`
	Manufacturer           string `json:"Manufacturer"`
	ManufacturerPartNumber string `json:"ManufacturerPartNumber"`
	SupplierPartNumber     string `json:"SupplierPartNumber"`
	ProductDetailURL       string `json:"ProductDetailUrl"`
	PriceBreaks            []struct {
		Quantity int    `json:"Quantity"`
		Price    string `json:"Price"`
		Currency string `json:"Currency"`
	} `json:"PriceBreaks"`
	ProductAttributes []struct {
		Name  string `json:"AttributeName"`
		Value string `json:"AttributeValue"`
	} `json:"ProductAttributes"`
}

// Catalog handles API-key catalogs that answer with string prices and
// availability and report failures in an Errors array instead of HTTP
// status codes.
type Catalog struct {
	base
}

func NewCatalog(d provider.Descriptor) *Catalog {
	return &Catalog{base{desc: d}}
}

func (p *Catalog) Execute(ctx context.Context, client provider.Client, q catalog.Query) ([]catalog.Part, catalog.Outcome, error) {
	name := p.Name()
	resp, err := client.Search(ctx, searchRequest(q))
	if err != nil {
		return fail(name, err)
	}
	if notFound(resp) {
		return succeed(name, resp, nil)
	}
	var body catalogSearch
	if err := decode(name, resp, &body); err != nil {
		return fail(name, err)
	}
	if len(body.Errors) > 0 {
		reports := make([]reportedError, 0, len(body.Errors))
		for _, e := range body.Errors {
			reports = append(reports, reportedError{Code: e.Code, Message: e.Message})
		}
		out := classifyReported(name, reports)
		out.RawRef = resp.Ref
		return nil, out, nil
	}

	parts := make([]catalog.Part, 0, len(body.SearchResults.Parts))
	for _, cp := range body.SearchResults.Parts {
		parts = append(parts, p.normalize(cp, q))
	}
	if q.RecordCount > 0 && len(parts) > q.RecordCount {
		parts = parts[:q.RecordCount]
	}
	return succeed(name, resp, parts)
}

func (p *Catalog) normalize(cp catalogPart, q catalog.Query) catalog.Part {
	part := catalog.Part{
		Manufacturer:           strings.TrimSpace(cp.Manufacturer),
		ManufacturerPartNumber: strings.TrimSpace(cp.ManufacturerPartNumber),
		Description:            cp.Description,
		DatasheetURL:           cp.DataSheetURL,
		ImageURL:               cp.ImagePath,
		ProductURL:             cp.ProductDetailURL,
		PartType:               InferPartType(cp.Category, q.KnownPartTypes),
	}
	for _, pb := range cp.PriceBreaks {
		price, cur, err := ParsePriceIn(pb.Price, pb.Currency)
		if err != nil {
			log.Debug().Err(err).Str("provider", p.Name()).Str("mpn", cp.ManufacturerPartNumber).Msg("processor: skipping price break")
			continue
		}
		part.Pricing = append(part.Pricing, catalog.PriceBreak{
			Quantity:  pb.Quantity,
			UnitPrice: price,
			Currency:  firstNonEmpty(pb.Currency, cur),
		})
	}
	if len(cp.ProductAttributes) > 0 {
		part.Parametrics = make(map[string]string, len(cp.ProductAttributes))
		for _, a := range cp.ProductAttributes {
			if a.Name == "" || a.Value == "" {
				continue
			}
			if prev, ok := part.Parametrics[a.Name]; ok {
				part.Parametrics[a.Name] = fmt.Sprintf("%s, %s", prev, a.Value)
				continue
			}
			part.Parametrics[a.Name] = a.Value
		}
		part.Package = firstNonEmpty(part.Parametrics["Package / Case"], part.Parametrics["Package"])
	}
	part.MountingType = MountingType(part.Parametrics)
	part.Stock = []catalog.StockLevel{{
		Supplier:           p.Name(),
		SupplierPartNumber: cp.SupplierPartNumber,
		Quantity:           ParseQuantity(cp.Availability),
		ProductURL:         cp.ProductDetailURL,
	}}
	return part
}
