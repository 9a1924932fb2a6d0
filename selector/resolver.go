// Package selector computes ranked locator candidates for a DOM element and
// sorts candidate sets into unique and repeat buckets.
//
// An Engine is bound to one document. Resolve runs every strategy against
// the target, measures what was not measured at build time and returns the
// candidates best first. Classify groups a candidate set (including
// externally supplied ones) for presentation, deriving :nth-of-type
// variants where the element's position allows it.
package selector

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/net/html"

	"github.com/hazyhaar/locator/dom"
)

var (
	// ErrNotElement is returned when the target is not an element node.
	ErrNotElement = errors.New("selector: target is not an element")
	// ErrOutOfScope is returned when the context does not strictly contain
	// the target.
	ErrOutOfScope = errors.New("selector: target is outside the context element")
)

// Options bounds the work done per resolution. Zero fields take defaults.
type Options struct {
	MaxClassCombinationSize int // default 3
	MaxClassCombinations    int // default 24
	TextMaxLen              int // default 60
	TextCountCap            int // default 6
	MeasureCap              int // default 100

	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.MaxClassCombinationSize <= 0 {
		o.MaxClassCombinationSize = 3
	}
	if o.MaxClassCombinations <= 0 {
		o.MaxClassCombinations = 24
	}
	if o.TextMaxLen <= 0 {
		o.TextMaxLen = 60
	}
	if o.TextCountCap <= 0 {
		o.TextCountCap = 6
	}
	if o.MeasureCap <= 0 {
		o.MeasureCap = 100
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Engine resolves elements of a single document. It holds no per-call
// state and may be used concurrently when the DOM is immutable.
type Engine struct {
	dom     DOM
	matcher *Matcher
	opts    Options
	logger  *slog.Logger
}

// NewEngine creates an Engine over d.
func NewEngine(d DOM, opts Options) *Engine {
	opts.defaults()
	return &Engine{
		dom:     d,
		matcher: NewMatcher(d),
		opts:    opts,
		logger:  opts.Logger,
	}
}

// Matcher returns the engine's matcher.
func (e *Engine) Matcher() *Matcher { return e.matcher }

// Strategy names reported in outcomes.
const (
	StrategyAttributes = "attributes"
	StrategyClasses    = "classes"
	StrategyCSSPath    = "css-path"
	StrategyXPath      = "xpath"
	StrategyXPathFull  = "xpath-full"
	StrategyText       = "text"
	StrategyTag        = "tag"
)

// Outcome is what one strategy contributed. Skip is set when it
// contributed nothing, with the reason.
type Outcome struct {
	Strategy   string
	Candidates []Candidate
	Skip       string
}

// Skip records a strategy that produced no candidates.
type Skip struct {
	Strategy string `json:"strategy"`
	Reason   string `json:"reason"`
}

// Resolution is the result of Resolve.
type Resolution struct {
	Candidates []Candidate  `json:"candidates"`
	Position   dom.Position `json:"position"`
	Skipped    []Skip       `json:"skipped,omitempty"`

	target *html.Node
}

// run executes a strategy, turning errors and panics into a skip.
func run(strategy string, build func() ([]Candidate, error)) (out Outcome) {
	out.Strategy = strategy
	defer func() {
		if r := recover(); r != nil {
			out.Candidates = nil
			out.Skip = fmt.Sprintf("panic: %v", r)
		}
	}()
	cands, err := build()
	switch {
	case err != nil:
		out.Skip = err.Error()
	case len(cands) == 0:
		out.Skip = "no candidates"
	default:
		out.Candidates = cands
	}
	return out
}

// Outcomes runs every strategy for target under ctx (nil for the whole
// document) without measuring or ranking.
func (e *Engine) Outcomes(target, ctx *html.Node) []Outcome {
	return []Outcome{
		run(StrategyAttributes, func() ([]Candidate, error) { return buildAttributes(target), nil }),
		run(StrategyClasses, func() ([]Candidate, error) {
			return buildClasses(target, e.opts.MaxClassCombinationSize, e.opts.MaxClassCombinations), nil
		}),
		run(StrategyCSSPath, func() ([]Candidate, error) { return e.buildCSSPath(target, ctx) }),
		run(StrategyXPath, func() ([]Candidate, error) { return e.buildXPath(target, ctx) }),
		run(StrategyXPathFull, func() ([]Candidate, error) { return buildFullXPath(target) }),
		run(StrategyText, func() ([]Candidate, error) { return e.buildText(target) }),
		run(StrategyTag, func() ([]Candidate, error) { return buildTag(target), nil }),
	}
}

// Resolve returns target's candidates ranked by score. ctx, when non-nil,
// is the ancestor uniqueness is measured against.
func (e *Engine) Resolve(target, ctx *html.Node) (Resolution, error) {
	if !dom.IsElement(target) {
		return Resolution{}, ErrNotElement
	}
	if ctx != nil && (ctx == target || !dom.Contains(ctx, target)) {
		return Resolution{}, ErrOutOfScope
	}

	res := Resolution{Position: dom.PositionOf(target), target: target}
	var all []Candidate
	for _, o := range e.Outcomes(target, ctx) {
		if o.Skip != "" {
			e.logger.Debug("selector: strategy skipped", "strategy", o.Strategy, "reason", o.Skip)
			res.Skipped = append(res.Skipped, Skip{Strategy: o.Strategy, Reason: o.Skip})
			continue
		}
		all = append(all, o.Candidates...)
	}

	for i := range all {
		e.measure(&all[i], ctx)
	}

	slices.SortStableFunc(all, func(a, b Candidate) int { return cmp.Compare(b.Score, a.Score) })
	res.Candidates = dedupe(all)
	return res, nil
}

// measure fills in the match count of an unmeasured candidate. Id
// candidates are trusted and left alone.
func (e *Engine) measure(c *Candidate, ctx *html.Node) {
	if c.MatchCount != nil || c.Kind == KindID {
		return
	}
	p, err := c.Parsed()
	if err != nil {
		c.setCount(Count{})
		return
	}
	c.setCount(e.matcher.Count(p, measureScope(c.Kind, ctx), CountOptions{MaxCount: e.opts.MeasureCap}))
}

// measureScope returns the node a candidate of kind k is counted under.
// Full XPaths are absolute and always count against the document.
func measureScope(k Kind, ctx *html.Node) *html.Node {
	if k == KindXPathFull {
		return nil
	}
	return ctx
}

// dedupe keeps the first candidate per selector text.
func dedupe(cands []Candidate) []Candidate {
	seen := make(map[string]bool, len(cands))
	out := cands[:0]
	for _, c := range cands {
		if c.Selector == "" || seen[c.Selector] {
			continue
		}
		seen[c.Selector] = true
		out = append(out, c)
	}
	return out
}

// Classify buckets a resolution plus extra candidates, measuring and
// verifying against ctx. Measurements use the engine's MeasureCap.
func (e *Engine) Classify(res Resolution, extra []Candidate, ctx *html.Node) Buckets {
	pos := res.Position
	c := NewClassifier(e.matcher, ctx)
	c.measureCap = e.opts.MeasureCap
	c.target = res.target
	return c.Classify(res.Candidates, extra, &pos)
}
