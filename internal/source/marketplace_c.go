package source

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/maltedev/product-sourcing/internal/document"
	"github.com/maltedev/product-sourcing/internal/models"
	"github.com/maltedev/product-sourcing/internal/vendor"
)

var productsPathPattern = regexp.MustCompile(`/products/(\d+)`)

// MarketplaceC is an open marketplace. Its listings interleave sponsored
// entries that are marked either by a badge or by an ad-redirect link.
type MarketplaceC struct {
	*Engine
}

func NewMarketplaceC(desc *vendor.Descriptor, logger *slog.Logger) *MarketplaceC {
	return &MarketplaceC{Engine: NewEngine(desc, logger)}
}

func (m *MarketplaceC) CollectList(ctx context.Context, doc document.Document) ([]models.ListEntry, error) {
	entries, err := m.Engine.CollectList(ctx, doc)
	if err != nil {
		return nil, err
	}
	out := entries[:0]
	for _, entry := range entries {
		if strings.Contains(entry.URL, "adcr.naver.com") {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (m *MarketplaceC) ExtractBasicInfo(ctx context.Context, doc document.Document) (*models.RawBasicInfo, error) {
	info, err := m.Engine.ExtractBasicInfo(ctx, doc)
	if err != nil {
		return nil, err
	}
	if info.ProductCode == "" {
		if match := productsPathPattern.FindStringSubmatch(doc.URL()); match != nil {
			info.ProductCode = match[1]
		}
	}
	return info, nil
}
