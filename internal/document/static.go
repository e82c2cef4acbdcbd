package document

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// StaticDocument evaluates locators against already-fetched HTML.
type StaticDocument struct {
	url string
	doc *goquery.Document
}

// FromHTML parses html loaded from url.
func FromHTML(url, html string) (*StaticDocument, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return &StaticDocument{url: url, doc: doc}, nil
}

func (d *StaticDocument) URL() string {
	return d.url
}

func (d *StaticDocument) Find(selector string) []Node {
	return wrapSelection(d.doc.Find(selector))
}

// SelectOption is a no-op: static markup already carries every option.
func (d *StaticDocument) SelectOption(ctx context.Context, selector, value string) error {
	return nil
}

func (d *StaticDocument) WaitFor(ctx context.Context, selector string) error {
	if d.doc.Find(selector).Length() == 0 {
		return fmt.Errorf("element not found with selector: %s", selector)
	}
	return nil
}

type selectionNode struct {
	sel *goquery.Selection
}

func wrapSelection(sel *goquery.Selection) []Node {
	nodes := make([]Node, 0, sel.Length())
	sel.Each(func(i int, s *goquery.Selection) {
		nodes = append(nodes, selectionNode{sel: s})
	})
	return nodes
}

func (n selectionNode) Text() string {
	return strings.TrimSpace(n.sel.Text())
}

func (n selectionNode) Attr(name string) (string, bool) {
	return n.sel.Attr(name)
}

func (n selectionNode) Find(selector string) []Node {
	return wrapSelection(n.sel.Find(selector))
}

// StaticNavigator serves fixed HTML per URL. Useful for fixtures and replays.
type StaticNavigator struct {
	Pages map[string]string
}

func (n *StaticNavigator) Navigate(ctx context.Context, url string) (Document, error) {
	html, ok := n.Pages[url]
	if !ok {
		return nil, fmt.Errorf("failed to navigate: no page for %s", url)
	}
	return FromHTML(url, html)
}
