package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/hazyhaar/locator/selector"
)

// highlightJS finds the matches of a selector, outlines the first one and
// returns the match count. Invalid selectors count zero.
const highlightJS = `(syntax, value, ms) => {
	let nodes = [];
	try {
		if (syntax === 'css') {
			nodes = Array.from(document.querySelectorAll(value));
		} else {
			const snap = document.evaluate(value, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
			for (let i = 0; i < snap.snapshotLength; i++) nodes.push(snap.snapshotItem(i));
		}
	} catch (e) {
		return 0;
	}
	const el = nodes.find(n => n.nodeType === 1);
	if (el) {
		const prev = el.style.outline;
		el.scrollIntoView({block: 'center'});
		el.style.outline = '3px solid #ff3b30';
		setTimeout(() => { el.style.outline = prev; }, ms);
	}
	return nodes.length;
}`

// HighlightDuration is how long the outline stays on.
const HighlightDuration = 1500 * time.Millisecond

// highlightArgs maps a parsed selector to the script's syntax and value.
// Text selectors run as their XPath form.
func highlightArgs(p selector.Parsed) (syntax, value string) {
	switch p.Syntax {
	case selector.SyntaxXPath:
		return "xpath", p.Value
	case selector.SyntaxText:
		return "xpath", selector.TextXPath(p)
	}
	return "css", p.Value
}

// Highlight flashes the first element p matches and returns how many
// nodes matched. Counting here is the browser's own, without the
// visibility filter the engine applies.
func (t *Tab) Highlight(ctx context.Context, p selector.Parsed) (int, error) {
	syntax, value := highlightArgs(p)
	res, err := t.Page.Context(ctx).Eval(highlightJS, syntax, value, HighlightDuration.Milliseconds())
	if err != nil {
		return 0, fmt.Errorf("browser: highlight: %w", err)
	}
	return res.Value.Int(), nil
}
