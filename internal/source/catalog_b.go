package source

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/maltedev/product-sourcing/internal/document"
	"github.com/maltedev/product-sourcing/internal/models"
	"github.com/maltedev/product-sourcing/internal/vendor"
)

// CatalogB is a dropshipping catalog keyed by the selfcode query parameter.
type CatalogB struct {
	*Engine
}

func NewCatalogB(desc *vendor.Descriptor, logger *slog.Logger) *CatalogB {
	return &CatalogB{Engine: NewEngine(desc, logger)}
}

func (b *CatalogB) ExtractBasicInfo(ctx context.Context, doc document.Document) (*models.RawBasicInfo, error) {
	info, err := b.Engine.ExtractBasicInfo(ctx, doc)
	if err != nil {
		return nil, err
	}
	if info.ProductCode == "" {
		if u, err := url.Parse(doc.URL()); err == nil {
			info.ProductCode = u.Query().Get("selfcode")
		}
	}
	// Minimum order is printed inside the tier table on some pages.
	if info.MinPurchase <= 1 {
		if row, ok := document.First(doc, "table.qty_price tbody tr td"); ok {
			if min := parseMinPurchase(row.Text()); min > 1 {
				info.MinPurchase = min
			}
		}
	}
	return info, nil
}
