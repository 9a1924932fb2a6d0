package selector

import (
	"golang.org/x/net/html"

	"github.com/hazyhaar/locator/dom"
)

// DOM is what the engine needs from a document. *dom.Document implements
// it for parsed HTML and for live browser snapshots.
type DOM interface {
	Root() *html.Node
	Visible(n *html.Node) bool
	QueryCSS(scope *html.Node, sel string, visit func(*html.Node) bool) error
	QueryXPath(scope *html.Node, expr string, visit func(*html.Node) bool) error
	RenderedText(n *html.Node) string
}

var _ DOM = (*dom.Document)(nil)

// CountOptions bounds a Count call. MaxCount <= 0 means no cap.
type CountOptions struct {
	MaxCount int
}

// Count is a match count. Clamped means counting stopped at the cap and
// the real number is at least N.
type Count struct {
	N       int  `json:"n"`
	Clamped bool `json:"clamped"`
}

// Unique reports an exact count of one.
func (c Count) Unique() bool { return c.N == 1 && !c.Clamped }

// Matcher counts visible matches of parsed selectors.
type Matcher struct {
	dom DOM
}

// NewMatcher returns a Matcher over d.
func NewMatcher(d DOM) *Matcher {
	return &Matcher{dom: d}
}

// Count returns how many visible nodes under scope (nil for the whole
// document) match p. It never fails: malformed selectors, evaluator errors
// and panics all count as zero.
func (m *Matcher) Count(p Parsed, scope *html.Node, opts CountOptions) (c Count) {
	if m == nil || m.dom == nil || p.Value == "" {
		return Count{}
	}
	if scope == nil {
		scope = m.dom.Root()
	}
	defer func() {
		if r := recover(); r != nil {
			c = Count{}
		}
	}()

	var err error
	switch p.Syntax {
	case SyntaxCSS:
		err = m.dom.QueryCSS(scope, p.Value, m.counter(&c, opts, nil))
	case SyntaxXPath:
		err = m.dom.QueryXPath(scope, p.Value, m.counter(&c, opts, nil))
	case SyntaxText:
		var kept []*html.Node
		err = m.dom.QueryXPath(scope, textExpr(p), m.counter(&c, opts, &kept))
	default:
		return Count{}
	}
	if err != nil {
		return Count{}
	}
	return c
}

// Find returns up to limit visible nodes under scope matching p in
// document order; limit <= 0 returns all of them. Text matches are the
// innermost elements, as in Count. Errors yield nil.
func (m *Matcher) Find(p Parsed, scope *html.Node, limit int) (nodes []*html.Node) {
	if m == nil || m.dom == nil || p.Value == "" {
		return nil
	}
	if scope == nil {
		scope = m.dom.Root()
	}
	defer func() {
		if r := recover(); r != nil {
			nodes = nil
		}
	}()

	visit := func(n *html.Node) bool {
		if !m.dom.Visible(n) {
			return true
		}
		nodes = append(nodes, n)
		return limit <= 0 || len(nodes) < limit
	}
	var err error
	switch p.Syntax {
	case SyntaxCSS:
		err = m.dom.QueryCSS(scope, p.Value, visit)
	case SyntaxXPath:
		err = m.dom.QueryXPath(scope, p.Value, visit)
	case SyntaxText:
		// Uncapped: a later descendant may still replace a kept ancestor.
		var c Count
		err = m.dom.QueryXPath(scope, textExpr(p), m.counter(&c, CountOptions{}, &nodes))
		if limit > 0 && len(nodes) > limit {
			nodes = nodes[:limit]
		}
	}
	if err != nil {
		return nil
	}
	return nodes
}

// counter builds a visit callback that filters invisible nodes and stops
// at the cap. When kept is non-nil, nested matches count once: a match
// inside an earlier one replaces it, so the innermost element is kept.
// Document order guarantees an ancestor is seen before its descendants.
func (m *Matcher) counter(c *Count, opts CountOptions, kept *[]*html.Node) func(*html.Node) bool {
	return func(n *html.Node) bool {
		if !m.dom.Visible(n) {
			return true
		}
		if kept != nil {
			for i, k := range *kept {
				if dom.Contains(k, n) {
					(*kept)[i] = n
					return true
				}
			}
			*kept = append(*kept, n)
		}
		c.N++
		if opts.MaxCount > 0 && c.N >= opts.MaxCount {
			c.Clamped = true
			return false
		}
		return true
	}
}

// TextXPath renders a text selector as an XPath over the whole document.
func TextXPath(p Parsed) string {
	lit := xpathLiteral(dom.NormalizeSpace(p.Value))
	if p.Mode == ModeContains {
		return "//*[contains(normalize-space(.), " + lit + ")]"
	}
	return "//*[normalize-space(.)=" + lit + "]"
}

// textExpr is TextXPath relative to the scope.
func textExpr(p Parsed) string {
	return "." + TextXPath(p)
}
