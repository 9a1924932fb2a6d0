// Package dom adapts a parsed HTML tree to the operations the selector
// engine needs: CSS and XPath queries scoped to a node, a visibility model
// and rendered text.
//
// A Document is immutable once built; visibility is computed up front, so a
// Document may be shared by concurrent resolutions.
package dom

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Document is an HTML tree with precomputed layout flags.
type Document struct {
	root  *html.Node
	doc   *goquery.Document
	flags map[*html.Node]uint8
}

// Parse reads HTML and builds a Document using static visibility rules.
func Parse(r io.Reader) (*Document, error) {
	gq, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	if len(gq.Nodes) == 0 {
		return nil, fmt.Errorf("dom: parse: empty document")
	}
	root := gq.Nodes[0]
	return &Document{
		root:  root,
		doc:   gq,
		flags: computeLayout(root, nil),
	}, nil
}

// ParseString is Parse over a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// NewDocument wraps an existing tree. overrides maps elements to a visibility
// measured elsewhere (e.g. a live browser); elements missing from it use the
// static rules.
func NewDocument(root *html.Node, overrides map[*html.Node]bool) *Document {
	return &Document{
		root:  root,
		doc:   goquery.NewDocumentFromNode(root),
		flags: computeLayout(root, overrides),
	}
}

// Root returns the document node.
func (d *Document) Root() *html.Node {
	return d.root
}

// Find returns the first element matching a CSS selector, or nil. Invalid
// selectors match nothing.
func (d *Document) Find(css string) *html.Node {
	sel := d.doc.Find(css).First()
	if sel.Length() == 0 {
		return nil
	}
	return sel.Nodes[0]
}

// FindAll returns every element matching a CSS selector.
func (d *Document) FindAll(css string) []*html.Node {
	return d.doc.Find(css).Nodes
}

// Visible reports whether n has a non-empty box and non-zero opacity. Text
// nodes inherit the visibility of their parent element; any other node
// type is invisible.
func (d *Document) Visible(n *html.Node) bool {
	if n == nil {
		return false
	}
	if n.Type == html.TextNode {
		return d.Visible(ParentElement(n))
	}
	return d.flags[n]&flagVisible != 0
}

// Displayed reports whether an element takes part in layout, ignoring
// opacity. Rendered text follows this rule.
func (d *Document) Displayed(n *html.Node) bool {
	if n == nil {
		return false
	}
	if n.Type == html.TextNode {
		return d.Displayed(ParentElement(n))
	}
	return d.flags[n]&flagDisplayed != 0
}

// OuterHTML renders n.
func OuterHTML(n *html.Node) string {
	var b strings.Builder
	if err := html.Render(&b, n); err != nil {
		return ""
	}
	return b.String()
}
