package selector

import (
	"errors"
	"fmt"
	"strings"
)

// Syntax is the grammar of a parsed selector.
type Syntax string

const (
	SyntaxCSS   Syntax = "css"
	SyntaxXPath Syntax = "xpath"
	SyntaxText  Syntax = "text"
)

// MatchMode applies to text selectors.
type MatchMode string

const (
	ModeExact    MatchMode = "exact"
	ModeContains MatchMode = "contains"
)

// Parsed is the matcher-ready form of a selector.
type Parsed struct {
	Syntax Syntax    `json:"syntax"`
	Value  string    `json:"value"`
	Mode   MatchMode `json:"mode,omitempty"`
}

// ErrEmpty is returned by Parse for blank selector text.
var ErrEmpty = errors.New("selector: empty")

// Selector text prefixes. CSS needs none; "css=" is accepted on input.
const (
	prefixCSS   = "css="
	prefixXPath = "xpath="
	prefixText  = "text="
)

// Parse reads selector text as written by Format:
//
//	div.card > a          CSS
//	xpath=//div[@id='x']  XPath (a bare leading "/", "./" or "(" also means XPath)
//	text="Sign in"        exact text
//	text=Sign             contained text
func Parse(s string) (Parsed, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Parsed{}, ErrEmpty
	}
	switch {
	case strings.HasPrefix(s, prefixXPath):
		v := strings.TrimSpace(s[len(prefixXPath):])
		if v == "" {
			return Parsed{}, fmt.Errorf("selector: parse %q: %w", s, ErrEmpty)
		}
		return Parsed{Syntax: SyntaxXPath, Value: v}, nil
	case strings.HasPrefix(s, prefixCSS):
		v := strings.TrimSpace(s[len(prefixCSS):])
		if v == "" {
			return Parsed{}, fmt.Errorf("selector: parse %q: %w", s, ErrEmpty)
		}
		return Parsed{Syntax: SyntaxCSS, Value: v}, nil
	case strings.HasPrefix(s, prefixText):
		v := s[len(prefixText):]
		if v == "" {
			return Parsed{}, fmt.Errorf("selector: parse %q: %w", s, ErrEmpty)
		}
		if t, ok := unquoteText(v); ok {
			return Parsed{Syntax: SyntaxText, Value: t, Mode: ModeExact}, nil
		}
		return Parsed{Syntax: SyntaxText, Value: v, Mode: ModeContains}, nil
	case strings.HasPrefix(s, "/"), strings.HasPrefix(s, "./"), strings.HasPrefix(s, "("):
		return Parsed{Syntax: SyntaxXPath, Value: s}, nil
	}
	return Parsed{Syntax: SyntaxCSS, Value: s}, nil
}

// Format renders p as selector text. Parse(Format(p)) == p for every p a
// builder produces.
func Format(p Parsed) string {
	switch p.Syntax {
	case SyntaxXPath:
		return prefixXPath + p.Value
	case SyntaxText:
		if p.Mode == ModeContains {
			return prefixText + p.Value
		}
		return prefixText + quoteText(p.Value)
	default:
		return p.Value
	}
}

func (p Parsed) String() string { return Format(p) }
