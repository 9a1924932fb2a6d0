package selector

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/locator/dom"
)

const (
	rootPrefix      = "html:nth-of-type(1) > "
	scopePrefix     = ":scope "
	uniquenessCap   = 2
)

var errDetached = errors.New("element is not attached to the scope")

// isBoundary reports whether climbing must stop before n.
func isBoundary(n, ctx *html.Node) bool {
	return n == nil || n == ctx || !dom.IsElement(n)
}

// cssSegment describes one element relative to its siblings.
func cssSegment(n *html.Node) string {
	tag := dom.Tag(n)
	if id, ok := dom.Attr(n, "id"); ok && strings.TrimSpace(id) != "" {
		return tag + "#" + cssIdent(id)
	}
	idx, _ := dom.NthOfType(n)
	classes := dom.Classes(n)
	if len(classes) == 0 {
		return tag + ":nth-of-type(" + strconv.Itoa(idx) + ")"
	}
	chosen := classes[:min(2, len(classes))]
	seg := tag + classSelector(chosen)
	for _, sib := range dom.SiblingsOfType(n) {
		if sib != n && dom.HasClasses(sib, chosen) {
			return seg + ":nth-of-type(" + strconv.Itoa(idx) + ")"
		}
	}
	return seg
}

// buildCSSPath climbs from el towards ctx (or the document root), prepending
// a segment per level until the partial path is unique in scope.
func (e *Engine) buildCSSPath(el, ctx *html.Node) ([]Candidate, error) {
	if ctx != nil && !dom.Contains(ctx, el) {
		return nil, errDetached
	}
	var segs []string
	var sel string
	for n := el; !isBoundary(n, ctx); n = n.Parent {
		segs = append([]string{cssSegment(n)}, segs...)
		sel = strings.Join(segs, " > ")
		if ctx != nil {
			sel = scopePrefix + sel
		}
		p := Parsed{Syntax: SyntaxCSS, Value: sel}
		if e.matcher.Count(p, ctx, CountOptions{MaxCount: uniquenessCap}).Unique() {
			break
		}
	}
	if sel == "" {
		return nil, nil
	}
	reason := "css path"
	if ctx == nil {
		if trimmed := strings.TrimPrefix(sel, rootPrefix); trimmed != "" {
			sel = trimmed
		}
	} else {
		reason = "css path scoped to ancestor"
	}
	return []Candidate{{
		Kind:     KindCSS,
		Selector: sel,
		Score:    ScoreCSSPath,
		Reason:   reason,
	}}, nil
}

// xpathSegment returns the step for n and whether it is an id anchor.
func xpathSegment(n *html.Node) (string, bool) {
	tag := dom.Tag(n)
	if id, ok := dom.Attr(n, "id"); ok && strings.TrimSpace(id) != "" {
		return fmt.Sprintf("%s[@id=%s]", tag, xpathLiteral(id)), true
	}
	for _, rule := range attrPriority[1:] {
		v, ok := dom.Attr(n, rule.name)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		step := fmt.Sprintf("%s[@%s=%s]", tag, rule.name, xpathLiteral(v))
		return step + siblingIndex(n, func(s *html.Node) bool {
			sv, ok := dom.Attr(s, rule.name)
			return ok && sv == v
		}), false
	}
	if classes := dom.Classes(n); len(classes) > 0 {
		c := classes[0]
		step := fmt.Sprintf("%s[contains(normalize-space(@class), %s)]", tag, xpathLiteral(c))
		return step + siblingIndex(n, func(s *html.Node) bool {
			cls, _ := dom.Attr(s, "class")
			return strings.Contains(dom.NormalizeSpace(cls), c)
		}), false
	}
	idx, _ := dom.NthOfType(n)
	return tag + "[" + strconv.Itoa(idx) + "]", false
}

// siblingIndex returns "[k]" when other same-tag siblings satisfy the
// step's predicate, k being n's position among them.
func siblingIndex(n *html.Node, pred func(*html.Node) bool) string {
	k, hits := 0, 0
	for _, s := range dom.SiblingsOfType(n) {
		if !pred(s) {
			continue
		}
		hits++
		if s == n {
			k = hits
		}
	}
	if hits <= 1 || k == 0 {
		return ""
	}
	return "[" + strconv.Itoa(k) + "]"
}

// buildXPath builds the attribute/class guided XPath. An id step anchors
// the path; otherwise climbing stops once the partial path is unique.
func (e *Engine) buildXPath(el, ctx *html.Node) ([]Candidate, error) {
	if ctx != nil && !dom.Contains(ctx, el) {
		return nil, errDetached
	}
	var steps []string
	expr := ""
	for n := el; !isBoundary(n, ctx); n = n.Parent {
		step, anchor := xpathSegment(n)
		steps = append([]string{step}, steps...)
		path := strings.Join(steps, "/")
		rel := "//" + path
		if ctx != nil {
			rel = ".//" + path
		}
		if anchor {
			expr = rel
			break
		}
		p := Parsed{Syntax: SyntaxXPath, Value: rel}
		if e.matcher.Count(p, ctx, CountOptions{MaxCount: uniquenessCap}).Unique() {
			expr = rel
			break
		}
		expr = "/" + path
		if ctx != nil {
			expr = "./" + path
		}
	}
	if expr == "" {
		return nil, nil
	}
	return []Candidate{xpathCandidate(KindXPath, expr, ScoreXPath, "attribute guided xpath path")}, nil
}

// buildFullXPath builds the absolute index path, or the id shortcut.
func buildFullXPath(el *html.Node) ([]Candidate, error) {
	if id, ok := dom.Attr(el, "id"); ok && strings.TrimSpace(id) != "" {
		expr := "//*[@id=" + xpathLiteral(id) + "]"
		return []Candidate{xpathCandidate(KindXPathFull, expr, ScoreXPathFull, "id xpath")}, nil
	}
	var steps []string
	n := el
	for ; dom.IsElement(n); n = n.Parent {
		idx, _ := dom.NthOfType(n)
		steps = append([]string{dom.Tag(n) + "[" + strconv.Itoa(idx) + "]"}, steps...)
	}
	if n == nil || n.Type != html.DocumentNode {
		return nil, errDetached
	}
	expr := "/" + strings.Join(steps, "/")
	return []Candidate{xpathCandidate(KindXPathFull, expr, ScoreXPathFull, "absolute indexed path")}, nil
}

func xpathCandidate(kind Kind, expr string, score int, reason string) Candidate {
	return Candidate{
		Kind:       kind,
		Selector:   Format(Parsed{Syntax: SyntaxXPath, Value: expr}),
		XPathValue: expr,
		Score:      score,
		Reason:     reason,
	}
}

func buildTag(el *html.Node) []Candidate {
	return []Candidate{{
		Kind:     KindTag,
		Selector: dom.Tag(el),
		Score:    ScoreTag,
		Reason:   "tag name",
	}}
}
