package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// Position locates an element among its same-tag siblings. It is attached
// to recorded events and drives :nth-of-type derivation.
type Position struct {
	Tag       string `json:"tag"`
	NthOfType int    `json:"nth_of_type"` // 1-based
	Total     int    `json:"total"`
	Repeats   bool   `json:"repeats"`
}

// IsElement reports whether n is an element node.
func IsElement(n *html.Node) bool {
	return n != nil && n.Type == html.ElementNode
}

// Tag returns the lower-case tag name of an element, or "".
func Tag(n *html.Node) string {
	if !IsElement(n) {
		return ""
	}
	return strings.ToLower(n.Data)
}

// Attr returns the value of attribute key and whether it is present.
func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

// Classes returns the element's class list, deduplicated, order preserved.
func Classes(n *html.Node) []string {
	v, ok := Attr(n, "class")
	if !ok {
		return nil
	}
	fields := strings.Fields(v)
	out := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, c := range fields {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// HasClasses reports whether n carries every class in want.
func HasClasses(n *html.Node, want []string) bool {
	have := Classes(n)
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// ParentElement returns the closest element ancestor of n, or nil.
func ParentElement(n *html.Node) *html.Node {
	if n == nil {
		return nil
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode {
			return p
		}
	}
	return nil
}

// SiblingsOfType returns the element children of n's parent sharing n's tag,
// in document order. n itself is included.
func SiblingsOfType(n *html.Node) []*html.Node {
	if !IsElement(n) {
		return nil
	}
	if n.Parent == nil {
		return []*html.Node{n}
	}
	tag := Tag(n)
	var out []*html.Node
	for c := n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if Tag(c) == tag {
			out = append(out, c)
		}
	}
	return out
}

// NthOfType returns the 1-based index of n among same-tag siblings and the
// number of such siblings.
func NthOfType(n *html.Node) (idx, total int) {
	sibs := SiblingsOfType(n)
	for i, s := range sibs {
		if s == n {
			idx = i + 1
		}
	}
	return idx, len(sibs)
}

// PositionOf computes the Position of an element.
func PositionOf(n *html.Node) Position {
	idx, total := NthOfType(n)
	return Position{
		Tag:       Tag(n),
		NthOfType: idx,
		Total:     total,
		Repeats:   total > 1,
	}
}

// Contains reports whether descendant lies in the subtree rooted at ancestor
// (ancestor itself included).
func Contains(ancestor, descendant *html.Node) bool {
	for n := descendant; n != nil; n = n.Parent {
		if n == ancestor {
			return true
		}
	}
	return false
}

// RootElement returns the document element (<html>) under a document node,
// or n itself when it is already an element.
func RootElement(n *html.Node) *html.Node {
	if n == nil || n.Type == html.ElementNode {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return c
		}
	}
	return nil
}
