package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/maltedev/product-sourcing/internal/document"
	"github.com/playwright-community/playwright-go"
)

// PageDocument exposes a live page through the document interfaces.
type PageDocument struct {
	page           playwright.Page
	viewportHeight int
}

var (
	_ document.Document       = (*PageDocument)(nil)
	_ document.RegionCapturer = (*PageDocument)(nil)
	_ document.Navigator      = (*Browser)(nil)
)

func (d *PageDocument) URL() string {
	return d.page.URL()
}

func (d *PageDocument) Find(selector string) []document.Node {
	handles, err := d.page.QuerySelectorAll(selector)
	if err != nil {
		return nil
	}
	return wrapHandles(handles)
}

func (d *PageDocument) SelectOption(ctx context.Context, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := d.page.Locator(selector).First().SelectOption(playwright.SelectOptionValues{
		Values: &[]string{value},
	}); err != nil {
		return fmt.Errorf("failed to select %q in %s: %w", value, selector, err)
	}
	return nil
}

func (d *PageDocument) WaitFor(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State: playwright.WaitForSelectorStateAttached,
	}); err != nil {
		return fmt.Errorf("element not found with selector: %s: %w", selector, err)
	}
	return nil
}

func (d *PageDocument) ViewportHeight() int {
	return d.viewportHeight
}

func (d *PageDocument) RegionSize(ctx context.Context, selector string) (float64, float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	handle, err := d.page.QuerySelector(selector)
	if err != nil || handle == nil {
		return 0, 0, fmt.Errorf("element not found with selector: %s", selector)
	}
	box, err := handle.BoundingBox()
	if err != nil || box == nil {
		return 0, 0, fmt.Errorf("failed to measure %s: %w", selector, err)
	}
	return box.Width, box.Height, nil
}

const regionOriginScript = `(sel) => {
	const el = document.querySelector(sel);
	if (!el) return null;
	const r = el.getBoundingClientRect();
	return [r.left + window.scrollX, r.top + window.scrollY, r.width];
}`

func (d *PageDocument) CaptureRegion(ctx context.Context, selector string, offset, height float64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := d.page.Evaluate(regionOriginScript, selector)
	if err != nil {
		return nil, fmt.Errorf("failed to locate %s: %w", selector, err)
	}
	origin, ok := raw.([]interface{})
	if !ok || len(origin) != 3 {
		return nil, fmt.Errorf("element not found with selector: %s", selector)
	}
	left, top, width := toFloat(origin[0]), toFloat(origin[1]), toFloat(origin[2])

	// Scrolling the pass into view triggers lazy loading before the shot.
	if _, err := d.page.Evaluate(`(y) => window.scrollTo(0, y)`, top+offset); err != nil {
		return nil, fmt.Errorf("failed to scroll: %w", err)
	}

	png, err := d.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
		Type:     playwright.ScreenshotTypePng,
		Clip: &playwright.Rect{
			X:      left,
			Y:      top + offset,
			Width:  width,
			Height: height,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to capture %s at %.0f: %w", selector, offset, err)
	}
	return png, nil
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

type handleNode struct {
	handle playwright.ElementHandle
}

func wrapHandles(handles []playwright.ElementHandle) []document.Node {
	nodes := make([]document.Node, 0, len(handles))
	for _, h := range handles {
		nodes = append(nodes, handleNode{handle: h})
	}
	return nodes
}

func (n handleNode) Text() string {
	text, err := n.handle.TextContent()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

func (n handleNode) Attr(name string) (string, bool) {
	has, err := n.handle.Evaluate(`(el, name) => el.hasAttribute(name)`, name)
	if err != nil {
		return "", false
	}
	if present, _ := has.(bool); !present {
		return "", false
	}
	value, err := n.handle.GetAttribute(name)
	if err != nil {
		return "", false
	}
	return value, true
}

func (n handleNode) Find(selector string) []document.Node {
	handles, err := n.handle.QuerySelectorAll(selector)
	if err != nil {
		return nil
	}
	return wrapHandles(handles)
}
