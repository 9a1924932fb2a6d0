package selector

// Kind records which strategy produced a candidate.
type Kind string

const (
	KindID        Kind = "id"
	KindDataAttr  Kind = "data-attr"
	KindAriaLabel Kind = "aria-label"
	KindRole      Kind = "role"
	KindName      Kind = "name"
	KindTitle     Kind = "title"
	KindType      Kind = "type"
	KindClass     Kind = "class"
	KindClassTag  Kind = "class-tag"
	KindCSS       Kind = "css"
	KindXPath     Kind = "xpath"
	KindXPathFull Kind = "xpath-full"
	KindText      Kind = "text"
	KindTag       Kind = "tag"
)

var knownKinds = map[Kind]bool{
	KindID: true, KindDataAttr: true, KindAriaLabel: true, KindRole: true,
	KindName: true, KindTitle: true, KindType: true, KindClass: true,
	KindClassTag: true, KindCSS: true, KindXPath: true, KindXPathFull: true,
	KindText: true, KindTag: true,
}

// Known reports whether k is one of the kinds above.
func (k Kind) Known() bool { return knownKinds[k] }

// Syntax is the query language a kind's selector text is written in.
func (k Kind) Syntax() Syntax {
	switch k {
	case KindXPath, KindXPathFull:
		return SyntaxXPath
	case KindText:
		return SyntaxText
	default:
		return SyntaxCSS
	}
}

// KindFor picks the generic kind for a parsed selector of unknown origin.
func KindFor(p Parsed) Kind {
	switch p.Syntax {
	case SyntaxXPath:
		return KindXPath
	case SyntaxText:
		return KindText
	default:
		return KindCSS
	}
}

// unstable kinds identify elements by shape rather than by a stable
// attribute, so a repeated position makes them ambiguous.
func (k Kind) unstable() bool {
	switch k {
	case KindClass, KindClassTag, KindTag, KindText:
		return true
	}
	return false
}
