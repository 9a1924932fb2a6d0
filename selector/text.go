package selector

import (
	"slices"

	"golang.org/x/net/html"

	"github.com/hazyhaar/locator/dom"
)

// buildText emits an exact text candidate from the first rendered line,
// measured across the whole document. A repeated text records which of
// its matches el is.
func (e *Engine) buildText(el *html.Node) ([]Candidate, error) {
	line := dom.FirstLine(e.dom.RenderedText(el))
	n := len([]rune(line))
	if n == 0 || n > e.opts.TextMaxLen {
		return nil, nil
	}
	p := Parsed{Syntax: SyntaxText, Value: line, Mode: ModeExact}
	count := e.matcher.Count(p, nil, CountOptions{MaxCount: e.opts.TextCountCap})
	c := Candidate{
		Kind:      KindText,
		Selector:  Format(p),
		Score:     textScore(count),
		Reason:    "visible text",
		TextValue: line,
		MatchMode: ModeExact,
	}
	c.setCount(count)
	if count.N > 1 {
		if i := slices.Index(e.matcher.Find(p, nil, 0), el); i >= 0 {
			c.Instance = i + 1
		}
	}
	return []Candidate{c}, nil
}
