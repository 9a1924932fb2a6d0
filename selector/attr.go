package selector

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/locator/dom"
)

const maxPartialTokens = 2

// buildAttributes walks attrPriority and emits an exact candidate per
// present attribute, plus partial variants where allowed.
func buildAttributes(el *html.Node) []Candidate {
	var out []Candidate
	for _, rule := range attrPriority {
		val, ok := dom.Attr(el, rule.name)
		if !ok || strings.TrimSpace(val) == "" {
			continue
		}
		if rule.name == "id" {
			out = append(out, Candidate{
				Kind:     KindID,
				Selector: "#" + cssIdent(val),
				Score:    rule.score,
				Reason:   "id attribute",
				IsUnique: true,
			})
			continue
		}
		out = append(out, Candidate{
			Kind:     rule.kind,
			Selector: fmt.Sprintf("[%s=%s]", rule.name, cssString(val)),
			Score:    rule.score,
			Reason:   rule.name + " attribute",
		})
		if !rule.partial {
			continue
		}
		for i, tok := range partialTokens(val) {
			out = append(out, Candidate{
				Kind:     rule.kind,
				Selector: fmt.Sprintf("[%s*=%s]", rule.name, cssString(tok)),
				Score:    partialScore(rule.score, i),
				Reason:   fmt.Sprintf("%s contains %q", rule.name, tok),
			})
		}
	}
	return out
}

// partialTokens splits an attribute value on whitespace, commas and
// semicolons and keeps up to two tokens longer than two characters. A
// token equal to the whole value would duplicate the exact candidate.
func partialTokens(val string) []string {
	fields := strings.FieldsFunc(val, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f'
	})
	full := strings.TrimSpace(val)
	var out []string
	seen := make(map[string]bool)
	for _, f := range fields {
		if len([]rune(f)) <= 2 || f == full || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
		if len(out) == maxPartialTokens {
			break
		}
	}
	return out
}
