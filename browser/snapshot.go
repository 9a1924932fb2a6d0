package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/locator/dom"
)

// snapshotJS serialises the page and measures every element in document
// order: a box with area and a computed opacity other than zero.
const snapshotJS = `() => {
	const tags = [], visible = [];
	for (const el of document.querySelectorAll('*')) {
		const r = el.getBoundingClientRect();
		const op = getComputedStyle(el).opacity;
		tags.push(el.tagName.toLowerCase());
		visible.push(r.width > 0 && r.height > 0 && op !== '0');
	}
	return JSON.stringify({html: document.documentElement.outerHTML, tags, visible});
}`

// pageSnapshot is what snapshotJS returns.
type pageSnapshot struct {
	HTML    string   `json:"html"`
	Tags    []string `json:"tags"`
	Visible []bool   `json:"visible"`
}

// Snapshot captures the tab as a dom.Document whose visibility is the one
// the browser measured.
func (t *Tab) Snapshot(ctx context.Context) (*dom.Document, error) {
	res, err := t.Page.Context(ctx).Eval(snapshotJS)
	if err != nil {
		return nil, fmt.Errorf("browser: snapshot: %w", err)
	}
	var snap pageSnapshot
	if err := json.Unmarshal([]byte(res.Value.Str()), &snap); err != nil {
		return nil, fmt.Errorf("browser: snapshot: decode: %w", err)
	}
	doc, aligned, err := buildDocument(snap)
	if err != nil {
		return nil, err
	}
	if !aligned {
		t.manager.cfg.Logger.Warn("browser: snapshot tree does not align, using static visibility",
			"url", t.PageURL, "elements", len(snap.Tags))
	}
	return doc, nil
}

// buildDocument reparses the serialised page and pairs its elements with
// the measured visibility. When the reparsed tree differs from the live
// one (parser fix-ups, template content) it falls back to static rules
// and reports aligned=false.
func buildDocument(snap pageSnapshot) (*dom.Document, bool, error) {
	parsed, err := dom.ParseString(snap.HTML)
	if err != nil {
		return nil, false, fmt.Errorf("browser: snapshot: %w", err)
	}
	root := parsed.Root()
	if len(snap.Tags) != len(snap.Visible) {
		return parsed, false, nil
	}

	elems := documentElements(root)
	if len(elems) != len(snap.Tags) {
		return parsed, false, nil
	}
	overrides := make(map[*html.Node]bool, len(elems))
	for i, n := range elems {
		if dom.Tag(n) != strings.ToLower(snap.Tags[i]) {
			return parsed, false, nil
		}
		overrides[n] = snap.Visible[i]
	}
	return dom.NewDocument(root, overrides), true, nil
}

// documentElements lists elements in document order the way
// querySelectorAll('*') does: template contents are not part of the tree.
func documentElements(root *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			out = append(out, c)
			if dom.Tag(c) != "template" {
				walk(c)
			}
		}
	}
	walk(root)
	return out
}
