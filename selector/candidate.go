package selector

import "strings"

// Candidate is one proposed locator for an element. It is plain data and
// survives JSON round trips inside recorded events.
type Candidate struct {
	Kind     Kind   `json:"kind"`
	Selector string `json:"selector"`
	Score    int    `json:"score"`
	Reason   string `json:"reason,omitempty"`

	// MatchCount is nil when the candidate was never measured.
	MatchCount        *int `json:"match_count"`
	MatchCountClamped bool `json:"match_count_clamped,omitempty"`
	IsUnique          bool `json:"is_unique"`

	TextValue  string    `json:"text_value,omitempty"`
	XPathValue string    `json:"xpath_value,omitempty"`
	MatchMode  MatchMode `json:"match_mode,omitempty"`

	// Nth is the 1-based instance to act on when the selector itself
	// matches several elements (set by text derivation).
	Nth int `json:"nth,omitempty"`
	// Instance is the 1-based index of the resolved element among the
	// selector's matches, when it was known at build time. Text
	// derivation copies it into Nth.
	Instance int `json:"instance,omitempty"`

	Provenance Provenance   `json:"provenance"`
	Raw        *RawIdentity `json:"raw,omitempty"`
}

// Provenance tells raw candidates from derived ones.
type Provenance struct {
	Derived bool   `json:"derived,omitempty"`
	From    string `json:"from,omitempty"` // raw selector text a derivation started from
}

// RawIdentity is the candidate as first measured, before any rewrite.
// External suppliers set it explicitly; for builder output it is implied.
type RawIdentity struct {
	Selector   string `json:"selector"`
	Kind       Kind   `json:"kind,omitempty"`
	MatchCount *int   `json:"match_count,omitempty"`
	Unique     bool   `json:"unique,omitempty"`
}

// Parsed returns the matcher-ready form of c. Builder output carries its
// values in dedicated fields; anything else goes through Parse.
func (c Candidate) Parsed() (Parsed, error) {
	switch c.Kind.Syntax() {
	case SyntaxXPath:
		if c.XPathValue != "" {
			return Parsed{Syntax: SyntaxXPath, Value: c.XPathValue}, nil
		}
	case SyntaxText:
		if c.TextValue != "" {
			mode := c.MatchMode
			if mode == "" {
				mode = ModeExact
			}
			return Parsed{Syntax: SyntaxText, Value: c.TextValue, Mode: mode}, nil
		}
	default:
		if c.Kind.Known() && c.Selector != "" && !hasScheme(c.Selector) {
			return Parsed{Syntax: SyntaxCSS, Value: strings.TrimSpace(c.Selector)}, nil
		}
	}
	return Parse(c.Selector)
}

func hasScheme(s string) bool {
	return strings.HasPrefix(s, prefixXPath) || strings.HasPrefix(s, prefixText) ||
		strings.HasPrefix(s, prefixCSS)
}

// Count returns MatchCount or -1 when unmeasured.
func (c Candidate) Count() int {
	if c.MatchCount == nil {
		return -1
	}
	return *c.MatchCount
}

func (c *Candidate) setCount(n Count) {
	v := n.N
	c.MatchCount = &v
	c.MatchCountClamped = n.Clamped
	c.IsUnique = n.N == 1 && !n.Clamped
}

// rawIdentity returns the explicit raw identity or the candidate itself.
func (c Candidate) rawIdentity() RawIdentity {
	if c.Raw != nil && c.Raw.Selector != "" {
		r := *c.Raw
		if r.Kind == "" {
			r.Kind = c.Kind
		}
		return r
	}
	return RawIdentity{
		Selector:   c.Selector,
		Kind:       c.Kind,
		MatchCount: c.MatchCount,
		Unique:     c.IsUnique && (c.MatchCount == nil || *c.MatchCount == 1),
	}
}

func intPtr(n int) *int { return &n }
