package source

import (
	"context"
	"log/slog"
	"net/url"
	"path"
	"regexp"

	"github.com/maltedev/product-sourcing/internal/document"
	"github.com/maltedev/product-sourcing/internal/models"
	"github.com/maltedev/product-sourcing/internal/vendor"
)

var numericPathPattern = regexp.MustCompile(`^\d+$`)

// CatalogA is a wholesale catalog whose item number is also the URL path.
type CatalogA struct {
	*Engine
}

func NewCatalogA(desc *vendor.Descriptor, logger *slog.Logger) *CatalogA {
	return &CatalogA{Engine: NewEngine(desc, logger)}
}

func (a *CatalogA) ExtractBasicInfo(ctx context.Context, doc document.Document) (*models.RawBasicInfo, error) {
	info, err := a.Engine.ExtractBasicInfo(ctx, doc)
	if err != nil {
		return nil, err
	}
	if info.ProductCode == "" {
		info.ProductCode = codeFromPath(doc.URL())
	}
	return info, nil
}

func codeFromPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	last := path.Base(u.Path)
	if numericPathPattern.MatchString(last) {
		return last
	}
	return ""
}
