package selector

import (
	"testing"

	"golang.org/x/net/html"

	"github.com/hazyhaar/locator/dom"
)

func mustDoc(t *testing.T, src string) *dom.Document {
	t.Helper()
	d, err := dom.ParseString(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return d
}

func mustFind(t *testing.T, d *dom.Document, css string) *html.Node {
	t.Helper()
	n := d.Find(css)
	if n == nil {
		t.Fatalf("no element for %q", css)
	}
	return n
}

func bySelector(cands []Candidate, sel string) (Candidate, bool) {
	for _, c := range cands {
		if c.Selector == sel {
			return c, true
		}
	}
	return Candidate{}, false
}

func byKind(cands []Candidate, k Kind) []Candidate {
	var out []Candidate
	for _, c := range cands {
		if c.Kind == k {
			out = append(out, c)
		}
	}
	return out
}
