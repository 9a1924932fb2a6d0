package selector

import (
	"slices"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/locator/dom"
)

// BucketName names a partition of a candidate set.
type BucketName string

const (
	BucketUnique BucketName = "unique"
	BucketRepeat BucketName = "repeat"
)

// Source names where a candidate list came from.
type Source string

const (
	SourceBase Source = "base"
	SourceAI   Source = "ai"
)

// Entries points into a source list. List is the source list extended
// with the entries classification created; it is shared by both buckets.
type Entries struct {
	List    []Candidate `json:"list"`
	Indices []int       `json:"indices"`
}

// Candidates returns the referenced candidates in bucket order.
func (e Entries) Candidates() []Candidate {
	out := make([]Candidate, 0, len(e.Indices))
	for _, i := range e.Indices {
		out = append(out, e.List[i])
	}
	return out
}

// Bucket holds one partition for both sources.
type Bucket struct {
	Name BucketName `json:"name"`
	Base Entries    `json:"base"`
	AI   Entries    `json:"ai"`
}

// Entries returns the bucket's entries for src.
func (b Bucket) Entries(src Source) Entries {
	if src == SourceAI {
		return b.AI
	}
	return b.Base
}

// Buckets is the output of Classify.
type Buckets struct {
	Unique Bucket `json:"unique"`
	Repeat Bucket `json:"repeat"`
}

// Bucket returns the bucket called name, or false.
func (b Buckets) Bucket(name BucketName) (Bucket, bool) {
	switch name {
	case BucketUnique:
		return b.Unique, true
	case BucketRepeat:
		return b.Repeat, true
	}
	return Bucket{}, false
}

// Classifier sorts candidates into buckets. The zero value works on data
// alone: candidates without a count are dropped and derivations are
// trusted. With a matcher it measures missing counts and verifies CSS
// derivations within scope.
type Classifier struct {
	matcher    *Matcher
	scope      *html.Node
	target     *html.Node // locates text instances; nil when unknown
	measureCap int
}

// NewClassifier returns a Classifier that measures against scope (nil for
// the whole document) with m.
func NewClassifier(m *Matcher, scope *html.Node) *Classifier {
	return &Classifier{matcher: m, scope: scope, measureCap: defaultMeasureCap}
}

// WithTarget sets the element the candidates were resolved for, so text
// derivations can find its instance among the matches.
func (c *Classifier) WithTarget(n *html.Node) *Classifier {
	c.target = n
	return c
}

func (c *Classifier) measureLimit() int {
	if c.measureCap <= 0 {
		return defaultMeasureCap
	}
	return c.measureCap
}

// processedKeywords in a reason mark candidates assembled from ancestors
// or combined parts.
var processedKeywords = []string{"ancestor", "path", "combined", "scoped"}

// Classify partitions base and ai candidates. pos is the target's position
// among its siblings; without it nothing is derived.
func (c *Classifier) Classify(base, ai []Candidate, pos *dom.Position) Buckets {
	out := Buckets{
		Unique: Bucket{Name: BucketUnique},
		Repeat: Bucket{Name: BucketRepeat},
	}
	baseList, baseU, baseR := c.classifySource(base, pos, false)
	aiList, aiU, aiR := c.classifySource(ai, pos, true)
	out.Unique.Base = Entries{List: baseList, Indices: baseU}
	out.Repeat.Base = Entries{List: baseList, Indices: baseR}
	out.Unique.AI = Entries{List: aiList, Indices: aiU}
	out.Repeat.AI = Entries{List: aiList, Indices: aiR}
	return out
}

// partition collects indices into one bucket, one entry per selector.
type partition struct {
	indices []int
	seen    map[string]bool
}

func (p *partition) add(list []Candidate, i int) {
	if p.seen == nil {
		p.seen = make(map[string]bool)
	}
	sel := list[i].Selector
	if p.seen[sel] {
		return
	}
	p.seen[sel] = true
	p.indices = append(p.indices, i)
}

// supplied marks candidates that came from outside the engine; their
// is_unique=false is taken as a statement even without a count.
func (c *Classifier) classifySource(src []Candidate, pos *dom.Position, supplied bool) (list []Candidate, unique, repeat []int) {
	list = slices.Clone(src)
	var u, r partition

	for i := range src {
		cand := &list[i]
		if cand.Selector == "" {
			continue
		}
		c.measure(cand)
		raw := cand.rawIdentity()
		if raw.MatchCount == nil && !raw.Unique && raw.Selector != cand.Selector {
			raw.MatchCount = c.count(raw.Selector, raw.Kind)
		}
		rawCount := -1
		if raw.MatchCount != nil {
			rawCount = *raw.MatchCount
		}
		rawUnique := raw.Unique || rawCount == 1
		processed := raw.Selector != cand.Selector || cand.Provenance.Derived || reasonProcessed(cand.Reason)
		procUnique := cand.Count() == 1 || (cand.IsUnique && cand.MatchCount == nil)

		switch {
		case rawUnique:
			u.add(list, i)
			if d, ok := c.derive(*cand, raw, pos, supplied || cand.Raw != nil); ok && d.Selector != cand.Selector {
				list = append(list, d)
				u.add(list, len(list)-1)
			}
		case procUnique && processed:
			u.add(list, i)
			if rawCount > 1 {
				list = append(list, rawCandidate(*cand, raw))
				r.add(list, len(list)-1)
			}
		case rawCount > 1 && !processed:
			r.add(list, i)
			if d, ok := c.derive(*cand, raw, pos, supplied || cand.Raw != nil); ok {
				list = append(list, d)
				u.add(list, len(list)-1)
			}
		}
		// Anything else carries no count and no repetition to report.
	}
	return list, u.indices, r.indices
}

// measure fills a missing count when a matcher is available.
func (c *Classifier) measure(cand *Candidate) {
	if c == nil || c.matcher == nil || cand.MatchCount != nil || cand.Kind == KindID {
		return
	}
	p, err := cand.Parsed()
	if err != nil {
		return
	}
	cand.setCount(c.matcher.Count(p, measureScope(cand.Kind, c.scope), CountOptions{MaxCount: c.measureLimit()}))
}

// count measures selector text of the given kind, or returns nil.
func (c *Classifier) count(sel string, k Kind) *int {
	if c == nil || c.matcher == nil {
		return nil
	}
	p, err := Parse(sel)
	if err != nil {
		return nil
	}
	n := c.matcher.Count(p, measureScope(k, c.scope), CountOptions{MaxCount: c.measureLimit()})
	return intPtr(n.N)
}

// defaultMeasureCap bounds classifier measurements when no engine cap
// is given.
const defaultMeasureCap = 100

func reasonProcessed(reason string) bool {
	r := strings.ToLower(reason)
	for _, k := range processedKeywords {
		if strings.Contains(r, k) {
			return true
		}
	}
	return false
}

// rawCandidate turns a raw identity back into a listable candidate.
func rawCandidate(from Candidate, raw RawIdentity) Candidate {
	out := Candidate{
		Kind:       raw.Kind,
		Selector:   raw.Selector,
		Score:      from.Score,
		Reason:     "raw selector before rewrite",
		MatchCount: raw.MatchCount,
	}
	if p, err := Parse(raw.Selector); err == nil {
		switch p.Syntax {
		case SyntaxXPath:
			out.XPathValue = p.Value
		case SyntaxText:
			out.TextValue, out.MatchMode = p.Value, p.Mode
		}
	}
	return out
}
