package models

import (
	"time"
)

// SentinelQuantity is the stock figure used when a page exposes no quantity.
const SentinelQuantity = 99999

// MaxMainImages bounds the main images kept per product.
const MaxMainImages = 4

// ListEntry is one product found on a listing page.
type ListEntry struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	Price     *int64 `json:"price,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// Option is a single selectable variant. PriceDelta is never negative once normalized.
type Option struct {
	Name       string `json:"name"`
	PriceDelta int64  `json:"price_delta"`
	Qty        int    `json:"qty"`
}

// OptionAxis is one selector level (color, size, ...). Axes cascade in order.
type OptionAxis struct {
	Label   string   `json:"label,omitempty"`
	Options []Option `json:"options"`
}

type AttributePair struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// RawBasicInfo is what an adapter resolves from the product page itself.
type RawBasicInfo struct {
	Name           string       `json:"name"`
	ProductCode    string       `json:"product_code"`
	Categories     []string     `json:"categories"`
	Price          int64        `json:"price"`
	ShippingFee    int64        `json:"shipping_fee"`
	// FreeShipping is set when the page states free shipping. A zero fee
	// without it means the fee was not found.
	FreeShipping   bool         `json:"free_shipping"`
	MinPurchase    int          `json:"min_purchase"`
	ImageUsage     string       `json:"image_usage"`
	Certifications []string     `json:"certifications"`
	Origin         string       `json:"origin"`
	Manufacturer   string       `json:"manufacturer"`
	Options        []OptionAxis `json:"options"`
}

// RawCrawlData is the unrefined extraction output for one source URL.
type RawCrawlData struct {
	URL       string `json:"url"`
	VendorKey string `json:"vendor_key"`
	RawBasicInfo
	MainImages     []string        `json:"main_images"`
	DetailImages   []string        `json:"detail_images"`
	AttributePairs []AttributePair `json:"attribute_pairs"`
	ImageDir       string          `json:"image_dir"`
	CrawledAt      time.Time       `json:"crawled_at"`
}

// FlattenOptions lists every option across all axes in axis order.
func (r *RawBasicInfo) FlattenOptions() []Option {
	var out []Option
	for _, axis := range r.Options {
		out = append(out, axis.Options...)
	}
	return out
}

// Validate returns the first missing required field, or nil.
func (r *RawCrawlData) Validate() error {
	if r.Name == "" {
		return &FieldError{Field: "product name", URL: r.URL}
	}
	if r.Price <= 0 {
		return &FieldError{Field: "price", URL: r.URL}
	}
	return nil
}

// OriginClass separates domestic from imported goods.
type OriginClass string

const (
	OriginDomestic OriginClass = "domestic"
	OriginForeign  OriginClass = "foreign"
)

// EnrichedOption is an option as refined by the enrichment service.
type EnrichedOption struct {
	Name       string `json:"name"`
	PriceDelta int64  `json:"priceDelta"`
	Qty        *int   `json:"qty,omitempty"`
}

// EnrichedPayload holds the canonical fields produced by the enrichment service.
type EnrichedPayload struct {
	ItemName       string           `json:"itemName"`
	Model          string           `json:"model"`
	Material       string           `json:"material"`
	OriginClass    OriginClass      `json:"originClass"`
	OriginPlace    string           `json:"originPlace"`
	Manufacturer   string           `json:"manufacturer"`
	Certifications []string         `json:"certifications"`
	ImageUsage     string           `json:"imageUsage"`
	Options        []EnrichedOption `json:"options"`
	Tags           []string         `json:"tags"`
}
