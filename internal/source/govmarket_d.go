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

var digitsPattern = regexp.MustCompile(`\d+`)

// GovMarketD is the public procurement mall. Item identifiers carry
// separators and the breadcrumb is rendered as a single joined string.
type GovMarketD struct {
	*Engine
}

func NewGovMarketD(desc *vendor.Descriptor, logger *slog.Logger) *GovMarketD {
	return &GovMarketD{Engine: NewEngine(desc, logger)}
}

func (g *GovMarketD) ExtractBasicInfo(ctx context.Context, doc document.Document) (*models.RawBasicInfo, error) {
	info, err := g.Engine.ExtractBasicInfo(ctx, doc)
	if err != nil {
		return nil, err
	}
	if node, ok := document.First(doc, "td.goods_id"); ok {
		if digits := strings.Join(digitsPattern.FindAllString(node.Text(), -1), ""); digits != "" {
			info.ProductCode = digits
		}
	}
	if len(info.Categories) == 1 && strings.Contains(info.Categories[0], ">") {
		info.Categories = splitBreadcrumb(info.Categories[0])
	}
	return info, nil
}

func splitBreadcrumb(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ">") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
		if len(out) == 4 {
			break
		}
	}
	return out
}
