package selector

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/hazyhaar/locator/dom"
)

// countFragments match reason text that states a match count, which a
// derivation makes stale.
var countFragments = regexp.MustCompile(`(?i)\(?\b(\d+\+?\s+(matches|match|elements|nodes|hits)|matches?\s*[:=]\s*\d+\+?|not unique|unique|repeated)\b\)?`)

// positional pseudo-classes already pin an instance.
var positional = []string{":nth-of-type(", ":nth-child(", ":nth-last-of-type(", ":nth-last-child("}

// derivationNeeded reports whether cand must be pinned to an instance:
// it matches several elements, a supplier marked it non-unique without a
// count, or it identifies by shape while the target repeats.
func derivationNeeded(cand Candidate, pos *dom.Position, supplied bool) bool {
	if cand.Count() > 1 {
		return true
	}
	if supplied && cand.MatchCount == nil && !cand.IsUnique && cand.Kind != KindID {
		return true
	}
	return pos != nil && pos.Repeats && unstableSelector(cand)
}

// unstableSelector reports selectors that identify by shape rather than by
// an id or attribute.
func unstableSelector(cand Candidate) bool {
	if cand.Kind.unstable() {
		return true
	}
	if cand.Kind.Syntax() != SyntaxCSS {
		return false
	}
	return !strings.ContainsAny(cand.Selector, "#[")
}

// derive pins cand to the target's instance. CSS candidates get
// :nth-of-type(n) on their last compound, n taken from pos. Text
// candidates keep their selector and record in Nth which of the text's
// matches the target is; without that index they are not derived. XPath
// is never derived.
func (c *Classifier) derive(cand Candidate, raw RawIdentity, pos *dom.Position, supplied bool) (Candidate, bool) {
	if pos == nil || pos.NthOfType < 1 || !derivationNeeded(cand, pos, supplied) {
		return Candidate{}, false
	}
	n := pos.NthOfType
	note := fmt.Sprintf("nth-of-type(%d) applied", n)
	if cand.Kind.Syntax() == SyntaxText {
		if cand.Nth > 0 {
			return Candidate{}, false
		}
		n = cand.Instance
		if n < 1 {
			n = c.textInstance(cand)
		}
		if n < 1 {
			return Candidate{}, false
		}
		note = fmt.Sprintf("match %d applied", n)
	}
	d := cand
	d.Raw = &RawIdentity{
		Selector:   raw.Selector,
		Kind:       raw.Kind,
		MatchCount: raw.MatchCount,
		Unique:     raw.Unique,
	}
	d.Provenance = Provenance{Derived: true, From: raw.Selector}
	d.Reason = annotate(cand.Reason, note)
	d.MatchCountClamped = false

	switch cand.Kind.Syntax() {
	case SyntaxText:
		d.Nth = n
		d.Instance = n
		d.MatchCount = intPtr(1)
		d.IsUnique = true
		return d, true

	case SyntaxCSS:
		sel, ok := appendNthOfType(cand.Selector, n)
		if !ok {
			return Candidate{}, false
		}
		d.Selector = sel
		if c != nil && c.matcher != nil {
			got := c.matcher.Count(Parsed{Syntax: SyntaxCSS, Value: sel}, c.scope, CountOptions{MaxCount: uniquenessCap})
			if !got.Unique() {
				return Candidate{}, false
			}
		}
		d.MatchCount = intPtr(1)
		d.IsUnique = true
		return d, true
	}
	return Candidate{}, false
}

// appendNthOfType qualifies the last compound of a CSS selector. Selector
// lists and already positional selectors are left alone.
func appendNthOfType(sel string, n int) (string, bool) {
	sel = strings.TrimSpace(sel)
	if sel == "" || isSelectorList(sel) {
		return "", false
	}
	for _, p := range positional {
		if strings.Contains(sel, p) {
			return "", false
		}
	}
	return fmt.Sprintf("%s:nth-of-type(%d)", sel, n), true
}

// isSelectorList reports a comma outside quotes, brackets and parentheses.
func isSelectorList(sel string) bool {
	depth := 0
	var quote byte
	for i := 0; i < len(sel); i++ {
		ch := sel[i]
		switch {
		case ch == '\\':
			i++
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '"' || ch == '\'':
			quote = ch
		case ch == '[' || ch == '(':
			depth++
		case ch == ']' || ch == ')':
			depth--
		case ch == ',' && depth == 0:
			return true
		}
	}
	return false
}

// textInstance finds the target among the matches of a text candidate,
// counted where the classifier measures it. 0 when unknown.
func (c *Classifier) textInstance(cand Candidate) int {
	if c == nil || c.matcher == nil || c.target == nil {
		return 0
	}
	p, err := cand.Parsed()
	if err != nil {
		return 0
	}
	return slices.Index(c.matcher.Find(p, measureScope(cand.Kind, c.scope), 0), c.target) + 1
}

// annotate drops stale count statements from a reason and appends note.
func annotate(reason, note string) string {
	r := countFragments.ReplaceAllString(reason, "")
	r = strings.Join(strings.Fields(r), " ")
	r = strings.Trim(r, " ,;:-")
	if r == "" {
		return note
	}
	return r + "; " + note
}
