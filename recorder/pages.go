package recorder

import (
	"context"
	"fmt"

	"golang.org/x/net/html"

	"github.com/hazyhaar/locator/browser"
	"github.com/hazyhaar/locator/dom"
	"github.com/hazyhaar/locator/selector"
	"github.com/hazyhaar/locator/urlguard"
)

// PageSource captures live pages. *browser.Manager implements it and
// launches Chrome on the first snapshot.
type PageSource interface {
	Snapshot(ctx context.Context, url string) (*dom.Document, error)
}

var _ PageSource = (*browser.Manager)(nil)

// Page names a document and the element to resolve in it. Target and
// Scope are selector text (CSS, xpath=..., text=...). HTML takes
// precedence over URL.
type Page struct {
	HTML   string `json:"html,omitempty"`
	URL    string `json:"url,omitempty"`
	Target string `json:"target"`
	Scope  string `json:"scope,omitempty"`
}

// Located is a loaded page with its target and scope elements.
type Located struct {
	Doc   *dom.Document
	Node  *html.Node
	Scope *html.Node // nil for the whole document
}

// Load fetches or parses the page and finds the first visible match of
// Target inside Scope.
func (r *Recorder) Load(ctx context.Context, p Page) (*Located, error) {
	if p.Target == "" {
		return nil, fmt.Errorf("%w: target is required", ErrInvalid)
	}
	doc, err := r.Document(ctx, p.HTML, p.URL)
	if err != nil {
		return nil, err
	}
	m := selector.NewMatcher(doc)

	var scope *html.Node
	if p.Scope != "" {
		scope, err = findFirst(m, p.Scope, nil)
		if err != nil {
			return nil, fmt.Errorf("scope: %w", err)
		}
	}
	target, err := findFirst(m, p.Target, scope)
	if err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}
	return &Located{Doc: doc, Node: target, Scope: scope}, nil
}

// Document parses src, or snapshots url when src is empty.
func (r *Recorder) Document(ctx context.Context, src, url string) (*dom.Document, error) {
	switch {
	case src != "":
		doc, err := dom.ParseString(src)
		if err != nil {
			return nil, fmt.Errorf("%w: parse html: %w", ErrInvalid, err)
		}
		return doc, nil
	case url != "":
		if r.pages == nil {
			return nil, ErrNoBrowser
		}
		if err := urlguard.Check(ctx, url, r.config.Browser.AllowPrivate); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
		doc, err := r.pages.Snapshot(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("recorder: snapshot %s: %w", url, err)
		}
		return doc, nil
	}
	return nil, fmt.Errorf("%w: html or url is required", ErrInvalid)
}

func findFirst(m *selector.Matcher, text string, scope *html.Node) (*html.Node, error) {
	p, err := selector.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	nodes := m.Find(p, scope, 1)
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w %q", ErrNoTarget, text)
	}
	return nodes[0], nil
}
