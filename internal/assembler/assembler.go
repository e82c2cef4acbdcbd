// Package assembler turns enriched product data into output records.
package assembler

import (
	"log/slog"
	"strings"

	"github.com/maltedev/product-sourcing/internal/models"
)

// Config carries the business defaults applied to every record.
type Config struct {
	MarginRate     float64
	SplitOptions   bool
	StockCap       int
	ShippingType   string
	ShippingFee    int64
	Bundling       bool
	RemoteArea     bool
	RemoteAreaFee  int64
	DeliveryDays   int
	DetailTemplate string
	DefaultOrigin  string
	TaxType        string
}

func DefaultConfig() Config {
	return Config{
		MarginRate:     20,
		SplitOptions:   true,
		StockCap:       9999,
		ShippingType:   "paid",
		ShippingFee:    3000,
		RemoteArea:     true,
		RemoteAreaFee:  5000,
		DeliveryDays:   3,
		DetailTemplate: "default",
		DefaultOrigin:  "중국",
		TaxType:        "taxable",
	}
}

// Input is everything known about one product once enrichment is done.
type Input struct {
	Raw           *models.RawCrawlData
	Enriched      *models.EnrichedPayload
	Certification models.CertificationResolution
	Category      models.CategoryMapping
	MainImages    []string
	DetailImage   string
}

var domesticMarkers = []string{"국산", "국내", "대한민국", "한국", "korea"}

type Assembler struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Assembler {
	if cfg.StockCap < 1 {
		cfg.StockCap = models.SentinelQuantity
	}
	return &Assembler{
		cfg:    cfg,
		logger: logger.With("component", "assembler"),
	}
}

type option struct {
	name  string
	delta int64
	qty   int
}

// Assemble emits one record per option in split mode, one collapsed record in
// single mode, and one base-cost record when the product has no options.
func (a *Assembler) Assemble(in Input) []models.OutputRecord {
	base := a.baseRecord(in)
	options := a.options(in)
	baseSpec := base.Spec

	if len(options) == 0 {
		rec := base
		rec.BaseCost = in.Raw.Price
		rec.Price = Price(in.Raw.Price, 0, a.cfg.MarginRate)
		rec.Stock = a.capStock(models.SentinelQuantity)
		return []models.OutputRecord{rec}
	}

	if a.cfg.SplitOptions {
		records := make([]models.OutputRecord, 0, len(options))
		for _, opt := range options {
			rec := base
			rec.OptionName = opt.name
			rec.Spec = joinSpec(opt.name, baseSpec)
			rec.BaseCost = in.Raw.Price + opt.delta
			rec.Price = Price(in.Raw.Price, opt.delta, a.cfg.MarginRate)
			rec.Stock = a.capStock(opt.qty)
			records = append(records, rec)
		}
		a.logger.Debug("assembled split records", "url", in.Raw.URL, "count", len(records))
		return records
	}

	var maxDelta int64
	names := make([]string, 0, len(options))
	for _, opt := range options {
		if opt.delta > maxDelta {
			maxDelta = opt.delta
		}
		names = append(names, opt.name)
	}

	rec := base
	rec.OptionName = strings.Join(names, " / ")
	rec.Spec = joinSpec(rec.OptionName, baseSpec)
	rec.BaseCost = in.Raw.Price + maxDelta
	rec.Price = Price(in.Raw.Price, maxDelta, a.cfg.MarginRate)
	rec.Stock = a.capStock(models.SentinelQuantity)
	return []models.OutputRecord{rec}
}

// options prefers the enriched options and falls back to the raw ones.
func (a *Assembler) options(in Input) []option {
	var out []option
	if in.Enriched != nil && len(in.Enriched.Options) > 0 {
		for _, o := range in.Enriched.Options {
			qty := models.SentinelQuantity
			if o.Qty != nil {
				qty = *o.Qty
			}
			out = append(out, option{name: strings.TrimSpace(o.Name), delta: nonNegative(o.PriceDelta), qty: qty})
		}
		return out
	}
	for _, o := range in.Raw.FlattenOptions() {
		out = append(out, option{name: o.Name, delta: nonNegative(o.PriceDelta), qty: o.Qty})
	}
	return out
}

func (a *Assembler) baseRecord(in Input) models.OutputRecord {
	raw := in.Raw
	enriched := in.Enriched
	if enriched == nil {
		enriched = &models.EnrichedPayload{}
	}

	rec := models.OutputRecord{
		SourceURL:      raw.URL,
		VendorKey:      raw.VendorKey,
		ProductCode:    raw.ProductCode,
		Name:           firstNonEmpty(enriched.ItemName, raw.Name),
		Model:          enriched.Model,
		Material:       enriched.Material,
		Manufacturer:   firstNonEmpty(enriched.Manufacturer, raw.Manufacturer),
		MinPurchase:    raw.MinPurchase,
		ShippingType:   a.cfg.ShippingType,
		ShippingFee:    raw.ShippingFee,
		Bundling:       a.cfg.Bundling,
		RemoteArea:     a.cfg.RemoteArea,
		RemoteAreaFee:  a.cfg.RemoteAreaFee,
		DeliveryDays:   a.cfg.DeliveryDays,
		DetailTemplate: a.cfg.DetailTemplate,
		TaxType:        a.cfg.TaxType,
		OriginPlace:    firstNonEmpty(enriched.OriginPlace, raw.Origin, a.cfg.DefaultOrigin),
		ImageUsage:     firstNonEmpty(enriched.ImageUsage, raw.ImageUsage),
		Tags:           enriched.Tags,
		MainImages:     in.MainImages,
		DetailImage:    in.DetailImage,
		Certification:  in.Certification,
		Category:       in.Category,
	}

	rec.Spec = firstNonEmpty(enriched.Model, raw.ProductCode)
	if rec.MinPurchase < 1 {
		rec.MinPurchase = 1
	}
	switch {
	case raw.FreeShipping:
		rec.ShippingType = models.ShippingFree
		rec.ShippingFee = 0
	case rec.ShippingFee <= 0:
		rec.ShippingFee = a.cfg.ShippingFee
	}
	rec.OriginClass = enriched.OriginClass
	if rec.OriginClass == "" {
		rec.OriginClass = classifyOrigin(rec.OriginPlace)
	}
	return rec
}

func (a *Assembler) capStock(qty int) int {
	if qty < 0 {
		return 0
	}
	if qty > a.cfg.StockCap {
		return a.cfg.StockCap
	}
	return qty
}

func classifyOrigin(place string) models.OriginClass {
	lower := strings.ToLower(place)
	for _, m := range domesticMarkers {
		if strings.Contains(lower, m) {
			return models.OriginDomestic
		}
	}
	return models.OriginForeign
}

func joinSpec(option, base string) string {
	if base == "" {
		return option
	}
	if option == "" {
		return base
	}
	return option + ", " + base
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
