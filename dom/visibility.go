package dom

import (
	"strconv"
	"strings"

	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"
)

// layout flags for an element.
const (
	flagDisplayed uint8 = 1 << iota // has a layout box (non-zero area approximation)
	flagVisible                     // displayed and opacity != 0
)

// nonRendered elements never produce a box.
var nonRendered = map[string]bool{
	"head": true, "script": true, "style": true, "template": true,
	"noscript": true, "title": true, "meta": true, "link": true, "base": true,
}

// computeLayout walks the tree once and records the static visibility of
// every element. Overrides, when present, win over the static rules.
func computeLayout(root *html.Node, overrides map[*html.Node]bool) map[*html.Node]uint8 {
	flags := make(map[*html.Node]uint8)
	var walk func(n *html.Node, parentDisplayed bool)
	walk = func(n *html.Node, parentDisplayed bool) {
		displayed := parentDisplayed
		if n.Type == html.ElementNode {
			st := inlineStyle(n)
			displayed = parentDisplayed && !hiddenByMarkup(n) && st.display != "none"

			var f uint8
			if displayed {
				f |= flagDisplayed
				if st.opacity != 0 {
					f |= flagVisible
				}
			}
			if v, ok := overrides[n]; ok {
				f = 0
				if v {
					f = flagDisplayed | flagVisible
				}
			}
			flags[n] = f
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, displayed)
		}
	}
	walk(root, true)
	return flags
}

func hiddenByMarkup(n *html.Node) bool {
	if nonRendered[Tag(n)] {
		return true
	}
	if _, ok := Attr(n, "hidden"); ok {
		return true
	}
	if Tag(n) == "input" {
		if t, _ := Attr(n, "type"); strings.EqualFold(t, "hidden") {
			return true
		}
	}
	return false
}

type styleInfo struct {
	display string
	opacity float64
}

// inlineStyle extracts display and opacity from the style attribute.
// Unparseable declarations leave the defaults (displayed, opaque).
func inlineStyle(n *html.Node) styleInfo {
	st := styleInfo{opacity: 1}
	raw, ok := Attr(n, "style")
	if !ok || strings.TrimSpace(raw) == "" {
		return st
	}
	decls, err := parser.ParseDeclarations(raw)
	if err != nil {
		return st
	}
	for _, d := range decls {
		val := strings.ToLower(strings.TrimSpace(d.Value))
		switch strings.ToLower(d.Property) {
		case "display":
			st.display = val
		case "opacity":
			if strings.HasSuffix(val, "%") {
				if f, err := strconv.ParseFloat(strings.TrimSuffix(val, "%"), 64); err == nil {
					st.opacity = f / 100
				}
			} else if f, err := strconv.ParseFloat(val, 64); err == nil {
				st.opacity = f
			}
		}
	}
	return st
}
