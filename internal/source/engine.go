package source

import (
	"context"
	"log/slog"
	"strings"

	"github.com/maltedev/product-sourcing/internal/document"
	"github.com/maltedev/product-sourcing/internal/models"
	"github.com/maltedev/product-sourcing/internal/vendor"
)

var placeholderMarkers = []string{"선택", "select", "---"}

// Engine implements the shared extraction flow over a vendor descriptor.
// Vendor adapters embed it and override the steps their pages deviate on.
type Engine struct {
	desc   *vendor.Descriptor
	logger *slog.Logger
}

func NewEngine(desc *vendor.Descriptor, logger *slog.Logger) *Engine {
	return &Engine{
		desc:   desc,
		logger: logger.With("component", "source", "vendor", string(desc.Key)),
	}
}

func (e *Engine) Descriptor() *vendor.Descriptor {
	return e.desc
}

// CollectList reads listing-page entries, skipping sponsored items and duplicates.
func (e *Engine) CollectList(ctx context.Context, doc document.Document) ([]models.ListEntry, error) {
	loc := e.desc.List
	seen := make(map[string]bool)
	var entries []models.ListEntry

	for _, item := range doc.Find(loc.Item) {
		if loc.AdMarker != "" && len(item.Find(loc.AdMarker)) > 0 {
			continue
		}

		entry := models.ListEntry{Name: CleanText(firstText(item, loc.Name))}
		if link := firstNode(item, loc.Link); link != nil {
			href, _ := link.Attr("href")
			entry.URL = e.desc.Absolute(href)
		}
		if entry.URL == "" || seen[entry.URL] {
			continue
		}
		seen[entry.URL] = true

		if loc.Price != "" {
			if price, ok := ParseRangeMin(firstText(item, loc.Price)); ok {
				entry.Price = &price
			}
		}
		if thumb := firstNode(item, loc.Thumbnail); thumb != nil {
			entry.Thumbnail = e.desc.Absolute(attrOf(thumb, "data-src", "src"))
		}
		entries = append(entries, entry)
	}

	e.logger.Info("collected listing entries", "url", doc.URL(), "count", len(entries))
	return entries, nil
}

// ExtractBasicInfo resolves the product-page fields. A missing name is fatal.
func (e *Engine) ExtractBasicInfo(ctx context.Context, doc document.Document) (*models.RawBasicInfo, error) {
	info := &models.RawBasicInfo{}

	info.Name = e.extractName(doc)
	if info.Name == "" {
		return nil, &models.FieldError{Field: "product name", URL: doc.URL()}
	}

	info.ProductCode = e.extractProductCode(doc)
	info.Categories = e.extractCategories(doc)
	info.Price = e.ResolvePrice(doc)
	info.ShippingFee, info.FreeShipping = parseShippingFee(textAt(doc, e.desc.ShippingFee))
	info.MinPurchase = parseMinPurchase(textAt(doc, e.desc.MinPurchase))
	info.ImageUsage = CleanText(textAt(doc, e.desc.ImageUsage))
	info.Certifications = e.extractCertifications(doc)
	info.Origin = valueAfterLabel(textAt(doc, e.desc.Origin))
	info.Manufacturer = valueAfterLabel(textAt(doc, e.desc.Manufacturer))
	info.Options = e.ExtractOptions(ctx, doc, info.Price)

	e.logger.Info("extracted basic info",
		"url", doc.URL(),
		"code", info.ProductCode,
		"price", info.Price,
		"axes", len(info.Options),
	)
	return info, nil
}

func (e *Engine) extractName(doc document.Document) string {
	for _, selector := range e.desc.Name {
		node, ok := document.First(doc, selector)
		if !ok {
			continue
		}
		name := CleanText(node.Text())
		if name == "" {
			name, _ = node.Attr("content")
			name = CleanText(name)
		}
		if name != "" {
			return name
		}
	}
	return ""
}

func (e *Engine) extractProductCode(doc document.Document) string {
	for _, selector := range e.desc.ProductCode {
		node, ok := document.First(doc, selector)
		if !ok {
			continue
		}
		raw := node.Text()
		if e.desc.CodeAttr != "" {
			raw, _ = node.Attr(e.desc.CodeAttr)
		}
		if code := parseProductCode(raw); code != "" {
			return code
		}
	}
	return ""
}

func (e *Engine) extractCategories(doc document.Document) []string {
	var out []string
	for _, node := range doc.Find(e.desc.Categories) {
		text := CleanText(node.Text())
		if text == "" || text == ">" || text == "홈" || strings.EqualFold(text, "home") {
			continue
		}
		out = append(out, text)
		if len(out) == 4 {
			break
		}
	}
	return out
}

func (e *Engine) extractCertifications(doc document.Document) []string {
	seen := make(map[string]bool)
	var out []string
	for _, node := range doc.Find(e.desc.Certificates) {
		number := valueAfterLabel(node.Text())
		if number == "" || seen[number] {
			continue
		}
		seen[number] = true
		out = append(out, number)
	}
	return out
}

// ResolvePrice walks the price chain in order. The first candidate yielding a
// positive amount wins; later candidates are never consulted.
func (e *Engine) ResolvePrice(doc document.Document) int64 {
	for _, candidate := range e.desc.PriceChain {
		node, ok := document.First(doc, candidate.Selector)
		if !ok {
			continue
		}
		text := node.Text()
		if candidate.Attr != "" {
			text, _ = node.Attr(candidate.Attr)
		}

		var price int64
		switch candidate.Mode {
		case vendor.PriceRangeMin:
			price, ok = ParseRangeMin(text)
		case vendor.PriceFirstTier:
			price, ok = ParseFirstTier(text)
		default:
			price, ok = ParseAmount(text)
		}
		if ok && price > 0 {
			e.logger.Debug("price resolved", "candidate", candidate.Name, "price", price)
			return price
		}
	}
	return 0
}

// ExtractOptions reads select-style axes first, falling back to button groups.
func (e *Engine) ExtractOptions(ctx context.Context, doc document.Document, base int64) []models.OptionAxis {
	if axes := e.selectOptions(ctx, doc, base); len(axes) > 0 {
		return axes
	}
	return e.buttonOptions(doc)
}

func (e *Engine) selectOptions(ctx context.Context, doc document.Document, base int64) []models.OptionAxis {
	loc := e.desc.Options
	var axes []models.OptionAxis
	var prevValue string

	for i, selector := range loc.SelectAxes {
		if i > 0 {
			if prevValue == "" {
				break
			}
			if err := doc.SelectOption(ctx, loc.SelectAxes[i-1], prevValue); err != nil {
				e.logger.Warn("failed to select option", "selector", loc.SelectAxes[i-1], "error", err)
				break
			}
			if err := doc.WaitFor(ctx, selector+" option"); err != nil {
				e.logger.Warn("dependent option axis did not load", "selector", selector, "error", err)
				break
			}
		}

		axis := models.OptionAxis{}
		prevValue = ""
		for _, node := range doc.Find(selector + " option") {
			value, _ := node.Attr("value")
			text := CleanText(node.Text())
			if isPlaceholder(value, text) || isDisabled(node, nil) {
				continue
			}
			if prevValue == "" {
				prevValue = value
			}

			opt := models.Option{Name: text, Qty: models.SentinelQuantity}
			if loc.TotalPriceAttr != "" {
				if raw, ok := node.Attr(loc.TotalPriceAttr); ok {
					if total, ok := ParseAmount(raw); ok {
						opt.PriceDelta = NormalizeDelta(total, base)
					}
				}
			}
			axis.Options = append(axis.Options, opt)
		}
		if len(axis.Options) == 0 {
			break
		}
		axes = append(axes, axis)
	}
	return axes
}

func (e *Engine) buttonOptions(doc document.Document) []models.OptionAxis {
	loc := e.desc.Options
	if loc.ButtonGroups == "" {
		return nil
	}

	var axes []models.OptionAxis
	for _, group := range doc.Find(loc.ButtonGroups) {
		axis := models.OptionAxis{Label: CleanText(firstText(group, loc.AxisLabel))}
		for _, button := range group.Find(loc.ButtonLabel) {
			if isDisabled(button, loc.DisabledClasses) {
				continue
			}
			opt := ParseOptionLabel(button.Text())
			if opt.Name == "" {
				continue
			}
			axis.Options = append(axis.Options, opt)
		}
		if len(axis.Options) > 0 {
			axes = append(axes, axis)
		}
	}
	return axes
}

func isPlaceholder(value, text string) bool {
	if strings.TrimSpace(value) == "" || text == "" {
		return true
	}
	lower := strings.ToLower(text)
	for _, marker := range placeholderMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func isDisabled(node document.Node, classes []string) bool {
	if _, ok := node.Attr("disabled"); ok {
		return true
	}
	if v, ok := node.Attr("aria-disabled"); ok && v == "true" {
		return true
	}
	class, _ := node.Attr("class")
	for _, c := range strings.Fields(class) {
		for _, disabled := range classes {
			if c == disabled {
				return true
			}
		}
	}
	return false
}

// ThumbnailURLs returns up to MaxMainImages absolute, de-duplicated image URLs.
func (e *Engine) ThumbnailURLs(doc document.Document) []string {
	seen := make(map[string]bool)
	var out []string
	for _, selector := range e.desc.Thumbnails {
		for _, node := range doc.Find(selector) {
			url := e.desc.Absolute(attrOf(node, e.desc.ThumbnailAttrs...))
			if url == "" || seen[url] {
				continue
			}
			seen[url] = true
			out = append(out, url)
			if len(out) == models.MaxMainImages {
				return out
			}
		}
	}
	return out
}

// DetailImageURL returns the last image inside the detail panel.
func (e *Engine) DetailImageURL(doc document.Document) (string, bool) {
	images := doc.Find(e.desc.DetailPanel + " img")
	for i := len(images) - 1; i >= 0; i-- {
		if url := e.desc.Absolute(attrOf(images[i], "data-src", "src")); url != "" {
			return url, true
		}
	}
	return "", false
}

// CollectAdditionalInfo reads label/value pairs from every attribute region.
// Markup residue is stripped, noise labels dropped and duplicates removed.
func (e *Engine) CollectAdditionalInfo(doc document.Document) []models.AttributePair {
	seen := make(map[string]bool)
	var pairs []models.AttributePair

	for _, region := range e.desc.AttributeRegions {
		for _, row := range doc.Find(region.Row) {
			labels := row.Find(region.Label)
			values := row.Find(region.Value)
			for i := 0; i < len(labels) && i < len(values); i++ {
				pair := models.AttributePair{
					Label: CleanText(labels[i].Text()),
					Value: CleanText(values[i].Text()),
				}
				if pair.Label == "" || pair.Value == "" || e.isNoise(pair.Label) {
					continue
				}
				key := pair.Label + "\x00" + pair.Value
				if seen[key] {
					continue
				}
				seen[key] = true
				pairs = append(pairs, pair)
			}
		}
	}
	return pairs
}

func (e *Engine) isNoise(label string) bool {
	lower := strings.ToLower(label)
	for _, noise := range e.desc.NoiseLabels {
		if strings.Contains(lower, strings.ToLower(noise)) {
			return true
		}
	}
	return false
}

// CheckLoginRequired reports whether the shared session landed on a login wall.
func (e *Engine) CheckLoginRequired(doc document.Document) bool {
	for _, marker := range e.desc.LoginURLMarkers {
		if strings.Contains(doc.URL(), marker) {
			return true
		}
	}
	return len(doc.Find(`input[type="password"]`)) > 0
}

func firstNode(n document.Node, selector string) document.Node {
	if selector == "" {
		return nil
	}
	nodes := n.Find(selector)
	if len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}

func firstText(n document.Node, selector string) string {
	if node := firstNode(n, selector); node != nil {
		return node.Text()
	}
	return ""
}

func textAt(doc document.Document, selector string) string {
	if selector == "" {
		return ""
	}
	if node, ok := document.First(doc, selector); ok {
		return node.Text()
	}
	return ""
}

func attrOf(n document.Node, names ...string) string {
	for _, name := range names {
		if v, ok := n.Attr(name); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
