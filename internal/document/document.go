// Package document defines the locator-query capability that source adapters
// extract from. Implementations exist for live browser pages and static HTML.
package document

import (
	"context"
	"errors"
)

var ErrCaptureUnsupported = errors.New("region capture not supported by document")

// Node is one element matched by a locator.
type Node interface {
	Text() string
	Attr(name string) (string, bool)
	Find(selector string) []Node
}

// Document is a loaded page that locators can be evaluated against.
type Document interface {
	URL() string
	Find(selector string) []Node
	// SelectOption picks value in the select control matched by selector.
	SelectOption(ctx context.Context, selector, value string) error
	// WaitFor blocks until selector matches at least one element.
	WaitFor(ctx context.Context, selector string) error
}

// Navigator loads a URL into the shared document context.
type Navigator interface {
	Navigate(ctx context.Context, url string) (Document, error)
}

// RegionCapturer renders parts of the current page as images.
type RegionCapturer interface {
	ViewportHeight() int
	// RegionSize returns the rendered width and height of the first element matching selector.
	RegionSize(ctx context.Context, selector string) (width, height float64, err error)
	// CaptureRegion scrolls to offset within the element and returns a PNG of height pixels.
	CaptureRegion(ctx context.Context, selector string, offset, height float64) ([]byte, error)
}

// First returns the first node matching selector.
func First(doc Document, selector string) (Node, bool) {
	nodes := doc.Find(selector)
	if len(nodes) == 0 {
		return nil, false
	}
	return nodes[0], true
}
