// Package source implements the per-vendor extraction adapters. Every adapter
// shares the Engine flow and overrides only what its vendor's pages require.
package source

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maltedev/product-sourcing/internal/document"
	"github.com/maltedev/product-sourcing/internal/models"
	"github.com/maltedev/product-sourcing/internal/vendor"
)

// Adapter extracts raw product data from one vendor's pages.
type Adapter interface {
	Descriptor() *vendor.Descriptor
	CollectList(ctx context.Context, doc document.Document) ([]models.ListEntry, error)
	ExtractBasicInfo(ctx context.Context, doc document.Document) (*models.RawBasicInfo, error)
	ThumbnailURLs(doc document.Document) []string
	DetailImageURL(doc document.Document) (string, bool)
	CollectAdditionalInfo(doc document.Document) []models.AttributePair
	CheckLoginRequired(doc document.Document) bool
}

// Set resolves the adapter responsible for a URL.
type Set struct {
	registry *vendor.Registry
	adapters map[vendor.Key]Adapter
}

// NewSet builds one adapter per descriptor in registry.
func NewSet(registry *vendor.Registry, logger *slog.Logger) *Set {
	s := &Set{
		registry: registry,
		adapters: make(map[vendor.Key]Adapter),
	}
	for _, desc := range registry.All() {
		s.adapters[desc.Key] = newAdapter(desc, logger)
	}
	return s
}

func newAdapter(desc *vendor.Descriptor, logger *slog.Logger) Adapter {
	switch desc.Key {
	case vendor.CatalogA:
		return NewCatalogA(desc, logger)
	case vendor.CatalogB:
		return NewCatalogB(desc, logger)
	case vendor.MarketplaceC:
		return NewMarketplaceC(desc, logger)
	case vendor.GovMarketD:
		return NewGovMarketD(desc, logger)
	default:
		return NewEngine(desc, logger)
	}
}

// ForURL returns the adapter whose vendor hosts rawURL.
func (s *Set) ForURL(rawURL string) (Adapter, error) {
	desc, err := s.registry.Match(rawURL)
	if err != nil {
		return nil, err
	}
	adapter, ok := s.adapters[desc.Key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnsupportedSource, desc.Key)
	}
	return adapter, nil
}

func (s *Set) Get(key vendor.Key) (Adapter, bool) {
	a, ok := s.adapters[key]
	return a, ok
}
