package dom

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
)

// QueryCSS visits, in document order, every descendant of scope matching
// sel, the way scope.querySelectorAll(sel) would. A leading ":scope"
// anchors the selector at scope. visit returns false to stop early.
func (d *Document) QueryCSS(scope *html.Node, sel string, visit func(*html.Node) bool) error {
	if scope == nil {
		scope = d.root
	}
	m, anchor, err := compileScoped(sel)
	if err != nil {
		return err
	}
	walkDescendants(scope, func(n *html.Node) bool {
		if n.Type != html.ElementNode || !m.Match(n) {
			return true
		}
		if anchor != nil && !anchor.inScope(scope, n) {
			return true
		}
		return visit(n)
	})
	return nil
}

// QueryXPath evaluates expr with scope as the context node and visits the
// resulting nodes in iterator order.
func (d *Document) QueryXPath(scope *html.Node, expr string, visit func(*html.Node) bool) (err error) {
	if scope == nil {
		scope = d.root
	}
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return fmt.Errorf("dom: xpath: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dom: xpath %q: %v", expr, r)
		}
	}()
	it := compiled.Select(htmlquery.CreateXPathNavigator(scope))
	for it.MoveNext() {
		nav, ok := it.Current().(*htmlquery.NodeNavigator)
		if !ok {
			continue
		}
		if !visit(nav.Current()) {
			break
		}
	}
	return nil
}

func walkDescendants(root *html.Node, fn func(*html.Node) bool) bool {
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if !fn(c) {
			return false
		}
		if !walkDescendants(c, fn) {
			return false
		}
	}
	return true
}

// scopeAnchor restricts matches of a ":scope"-prefixed selector to those
// whose leftmost compound lies inside the scope.
type scopeAnchor struct {
	child bool // ":scope > ..."
	depth int  // number of ">" steps between the leftmost compound and the match; -1 if not a pure child chain
}

func (a *scopeAnchor) inScope(scope, n *html.Node) bool {
	if a.depth < 0 {
		return true
	}
	left := n
	for i := 0; i < a.depth && left != nil; i++ {
		left = left.Parent
	}
	if left == nil || left == scope {
		return false
	}
	if a.child {
		return left.Parent == scope
	}
	return Contains(scope, left)
}

func compileScoped(sel string) (cascadia.Matcher, *scopeAnchor, error) {
	trimmed := strings.TrimSpace(sel)
	if !strings.HasPrefix(trimmed, ":scope") {
		g, err := cascadia.ParseGroup(trimmed)
		if err != nil {
			return nil, nil, fmt.Errorf("dom: css %q: %w", sel, err)
		}
		return g, nil, nil
	}

	rest := strings.TrimSpace(strings.TrimPrefix(trimmed, ":scope"))
	anchor := &scopeAnchor{}
	if strings.HasPrefix(rest, ">") {
		anchor.child = true
		rest = strings.TrimSpace(rest[1:])
	}
	if rest == "" {
		return nil, nil, fmt.Errorf("dom: css %q: empty selector after :scope", sel)
	}
	compounds, pureChild := SplitCompounds(rest)
	anchor.depth = len(compounds) - 1
	if !pureChild {
		anchor.depth = -1
	}

	g, err := cascadia.ParseGroup(rest)
	if err != nil {
		return nil, nil, fmt.Errorf("dom: css %q: %w", sel, err)
	}
	return g, anchor, nil
}

// SplitCompounds splits a selector into compound selectors at top-level
// combinators. pureChild is true when every combinator is ">". Brackets,
// parentheses, quotes and escapes are respected.
func SplitCompounds(sel string) (compounds []string, pureChild bool) {
	pureChild = true
	var cur strings.Builder
	depth := 0
	var quote rune
	pendingSpace := false

	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			compounds = append(compounds, s)
		}
		cur.Reset()
	}

	runes := []rune(sel)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if quote != 0 {
			cur.WriteRune(r)
			if r == '\\' && i+1 < len(runes) {
				i++
				cur.WriteRune(runes[i])
			} else if r == quote {
				quote = 0
			}
			continue
		}
		if depth == 0 {
			switch r {
			case ' ', '\t', '\n':
				if cur.Len() > 0 {
					pendingSpace = true
				}
				continue
			case '>', '+', '~':
				if r != '>' {
					pureChild = false
				}
				flush()
				pendingSpace = false
				continue
			}
			if pendingSpace {
				flush()
				pureChild = false
				pendingSpace = false
			}
		}
		switch r {
		case '\\':
			i = writeEscape(&cur, runes, i)
			continue
		case '"', '\'':
			quote = r
		case '[', '(':
			depth++
		case ']', ')':
			if depth > 0 {
				depth--
			}
		}
		cur.WriteRune(r)
	}
	flush()
	return compounds, pureChild
}

// writeEscape copies a CSS escape starting at runes[i] (the backslash) and
// returns the index of its last rune. Hex escapes swallow one trailing
// whitespace character.
func writeEscape(cur *strings.Builder, runes []rune, i int) int {
	cur.WriteRune(runes[i])
	if i+1 >= len(runes) {
		return i
	}
	j := i + 1
	hex := 0
	for j < len(runes) && hex < 6 && isHex(runes[j]) {
		cur.WriteRune(runes[j])
		j++
		hex++
	}
	if hex == 0 {
		cur.WriteRune(runes[j])
		return j
	}
	if j < len(runes) && (runes[j] == ' ' || runes[j] == '\t' || runes[j] == '\n') {
		cur.WriteRune(runes[j])
		return j
	}
	return j - 1
}

func isHex(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}
