package selector

import (
	"testing"

	"github.com/hazyhaar/locator/dom"
)

func repeatedPos() *dom.Position {
	return &dom.Position{Tag: "div", NthOfType: 4, Total: 10, Repeats: true}
}

func TestClassify_DerivationPromotes(t *testing.T) {
	base := []Candidate{{Kind: KindClass, Selector: ".card", Score: 60, Reason: "1-class combination", MatchCount: intPtr(10)}}
	b := (&Classifier{}).Classify(base, nil, repeatedPos())

	repeat := b.Repeat.Base.Candidates()
	if len(repeat) != 1 || repeat[0].Selector != ".card" || repeat[0].Count() != 10 {
		t.Fatalf("repeat: %+v", repeat)
	}
	unique := b.Unique.Base.Candidates()
	if len(unique) != 1 {
		t.Fatalf("unique: %+v", unique)
	}
	d := unique[0]
	if d.Selector != ".card:nth-of-type(4)" || d.Count() != 1 || !d.IsUnique {
		t.Fatalf("derived: %+v", d)
	}
	if d.Reason != "1-class combination; nth-of-type(4) applied" {
		t.Fatalf("reason: %q", d.Reason)
	}
	if len(b.Unique.Base.List) != 2 || len(b.Repeat.Base.List) != 2 {
		t.Fatalf("list should be extended with the derivation and shared: %d/%d",
			len(b.Unique.Base.List), len(b.Repeat.Base.List))
	}
}

func TestClassify_RawUniqueKeepsStableSelector(t *testing.T) {
	base := []Candidate{
		{Kind: KindID, Selector: "#go", Score: 90, IsUnique: true},
		{Kind: KindClass, Selector: ".active", Score: 60, MatchCount: intPtr(1), IsUnique: true},
		{Kind: KindDataAttr, Selector: `[data-testid="go"]`, Score: 88, MatchCount: intPtr(1), IsUnique: true},
	}
	b := (&Classifier{}).Classify(base, nil, repeatedPos())

	unique := b.Unique.Base.Candidates()
	for _, sel := range []string{"#go", ".active", `[data-testid="go"]`, ".active:nth-of-type(4)"} {
		if _, ok := bySelector(unique, sel); !ok {
			t.Errorf("%s missing from unique: %+v", sel, unique)
		}
	}
	if len(unique) != 4 {
		t.Fatalf("stable selectors should not be derived: %+v", unique)
	}
	if len(b.Repeat.Base.Indices) != 0 {
		t.Fatalf("repeat: %+v", b.Repeat.Base.Candidates())
	}
}

func TestClassify_ProcessedInjectsRaw(t *testing.T) {
	ai := []Candidate{{
		Kind:       KindCSS,
		Selector:   "#results li.row:nth-of-type(2)",
		Score:      75,
		MatchCount: intPtr(1),
		IsUnique:   true,
		Raw:        &RawIdentity{Selector: "li.row", MatchCount: intPtr(3)},
	}}
	b := (&Classifier{}).Classify(nil, ai, nil)

	if got := b.Unique.AI.Candidates(); len(got) != 1 || got[0].Selector != ai[0].Selector {
		t.Fatalf("unique ai: %+v", got)
	}
	got := b.Repeat.AI.Candidates()
	if len(got) != 1 || got[0].Selector != "li.row" || got[0].Count() != 3 || got[0].Kind != KindCSS {
		t.Fatalf("repeat ai: %+v", got)
	}
	if len(b.Unique.Base.Indices) != 0 || len(b.Repeat.Base.Indices) != 0 {
		t.Fatal("base buckets should be empty")
	}
}

func TestClassify_ProcessedRepeatedIsDropped(t *testing.T) {
	base := []Candidate{{Kind: KindCSS, Selector: "main > div", Reason: "css path", MatchCount: intPtr(10)}}
	b := (&Classifier{}).Classify(base, nil, repeatedPos())
	if len(b.Unique.Base.Indices)+len(b.Repeat.Base.Indices) != 0 {
		t.Fatalf("processed, repeated candidate should be dropped: %+v", b)
	}
}

func TestClassify_DropsUnmeasured(t *testing.T) {
	base := []Candidate{
		{Kind: KindClass, Selector: ".x"},
		{Kind: KindClass, Selector: ".y", MatchCount: intPtr(0)},
		{Kind: KindClass, Selector: ""},
	}
	b := (&Classifier{}).Classify(base, nil, repeatedPos())
	if len(b.Unique.Base.Indices)+len(b.Repeat.Base.Indices) != 0 {
		t.Fatalf("got %+v", b)
	}
}

func TestClassify_Dedup(t *testing.T) {
	c := Candidate{Kind: KindClass, Selector: ".card", MatchCount: intPtr(10)}
	tag := Candidate{Kind: KindClassTag, Selector: "div.card", MatchCount: intPtr(10)}
	path := Candidate{Kind: KindCSS, Selector: "div.card:nth-of-type(4)", Reason: "css path", MatchCount: intPtr(1), IsUnique: true}
	base := []Candidate{path, c, tag, c, tag}
	ai := []Candidate{c, c}
	b := (&Classifier{}).Classify(base, ai, repeatedPos())

	for name, e := range map[string]Entries{
		"unique/base": b.Unique.Base, "repeat/base": b.Repeat.Base,
		"unique/ai": b.Unique.AI, "repeat/ai": b.Repeat.AI,
	} {
		seen := make(map[string]bool)
		for _, cand := range e.Candidates() {
			if seen[cand.Selector] {
				t.Errorf("%s: duplicate %q", name, cand.Selector)
			}
			seen[cand.Selector] = true
		}
	}
	if got := len(b.Unique.Base.Indices); got != 2 {
		t.Fatalf("unique/base: got %d entries, want 2 (path and .card derivation)", got)
	}
	if got := len(b.Repeat.AI.Indices); got != 1 {
		t.Fatalf("repeat/ai: got %d, want 1", got)
	}
	if got := len(b.Unique.AI.Indices); got != 1 {
		t.Fatalf("unique/ai: got %d, want 1", got)
	}
}

func TestClassify_Text(t *testing.T) {
	base := []Candidate{{
		Kind: KindText, Selector: `text="Card"`, TextValue: "Card", MatchMode: ModeExact,
		Score: 50, Reason: "visible text; 6 matches", MatchCount: intPtr(6), MatchCountClamped: true,
		Instance: 4,
	}}
	b := (&Classifier{}).Classify(base, nil, repeatedPos())

	if got := b.Repeat.Base.Candidates(); len(got) != 1 || got[0].Nth != 0 {
		t.Fatalf("repeat: %+v", got)
	}
	got := b.Unique.Base.Candidates()
	if len(got) != 1 {
		t.Fatalf("unique: %+v", got)
	}
	d := got[0]
	if d.Selector != `text="Card"` || d.Nth != 4 || d.Count() != 1 || !d.IsUnique || d.MatchCountClamped {
		t.Fatalf("derived text: %+v", d)
	}
	if d.Reason != "visible text; match 4 applied" {
		t.Fatalf("reason: %q", d.Reason)
	}
}

func TestClassify_TextWithoutInstanceNotDerived(t *testing.T) {
	base := []Candidate{{
		Kind: KindText, Selector: `text="Card"`, TextValue: "Card", MatchMode: ModeExact,
		Score: 50, MatchCount: intPtr(6), MatchCountClamped: true,
	}}
	b := (&Classifier{}).Classify(base, nil, repeatedPos())

	if len(b.Repeat.Base.Indices) != 1 {
		t.Fatalf("repeat: %+v", b.Repeat.Base.Candidates())
	}
	if got := b.Unique.Base.Candidates(); len(got) != 0 {
		t.Fatalf("text derived without a known instance: %+v", got)
	}
}

func TestClassify_TextInstanceAcrossParents(t *testing.T) {
	d := mustDoc(t, `<html><body><ul>
		<li><a href="/1">Open</a></li>
		<li><a href="/2">Open</a></li>
		<li><a href="/3">Open</a></li>
		<li><a href="/4">Open</a></li>
	</ul></body></html>`)
	target := mustFind(t, d, "li:nth-of-type(4) > a")
	e := NewEngine(d, Options{})

	res, err := e.Resolve(target, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Position.NthOfType != 1 {
		t.Fatalf("position: %+v", res.Position)
	}
	text := byKind(res.Candidates, KindText)
	if len(text) != 1 || text[0].Instance != 4 {
		t.Fatalf("text candidate: %+v", text)
	}

	b := e.Classify(res, nil, nil)
	var derived *Candidate
	for _, c := range b.Unique.Base.Candidates() {
		if c.Kind == KindText {
			derived = &c
		}
	}
	if derived == nil {
		t.Fatal("no derived text candidate")
	}
	if derived.Nth != 4 {
		t.Fatalf("nth: got %d, want 4", derived.Nth)
	}
	p, _ := derived.Parsed()
	matches := e.Matcher().Find(p, nil, 0)
	if len(matches) != 4 || matches[derived.Nth-1] != target {
		t.Fatalf("nth %d does not pick the target among %d matches", derived.Nth, len(matches))
	}

	// A supplied text candidate is located through the classifier's target.
	ai := []Candidate{{Kind: KindText, Selector: `text="Open"`}}
	b = e.Classify(res, ai, nil)
	var aiNth int
	for _, c := range b.Unique.AI.Candidates() {
		if c.Kind == KindText {
			aiNth = c.Nth
		}
	}
	if aiNth != 4 {
		t.Fatalf("ai text nth: got %d, want 4", aiNth)
	}
}

func TestClassify_SuppliedNonUniqueIsDerived(t *testing.T) {
	ai := []Candidate{{
		Kind:     KindDataAttr,
		Selector: `[data-testid="row"]`,
		Score:    70,
		Raw:      &RawIdentity{Selector: "#row-3", Kind: KindID, Unique: true},
	}}
	pos := &dom.Position{Tag: "tr", NthOfType: 3, Total: 5, Repeats: true}
	b := (&Classifier{}).Classify(nil, ai, pos)

	unique := b.Unique.AI.Candidates()
	if _, ok := bySelector(unique, `[data-testid="row"]`); !ok {
		t.Errorf("supplied selector missing from unique: %+v", unique)
	}
	d, ok := bySelector(unique, `[data-testid="row"]:nth-of-type(3)`)
	if !ok {
		t.Fatalf("explicitly non-unique candidate not derived: %+v", unique)
	}
	if !d.Provenance.Derived || d.Provenance.From != "#row-3" || !d.IsUnique {
		t.Errorf("derived: %+v", d)
	}

	// The same candidate marked unique stays as is.
	ai[0].IsUnique = true
	b = (&Classifier{}).Classify(nil, ai, pos)
	if got := b.Unique.AI.Candidates(); len(got) != 1 {
		t.Errorf("unique supplied candidate derived: %+v", got)
	}
}

func TestEngineClassify_MeasureCap(t *testing.T) {
	d := mustDoc(t, `<html><body><main>`+repeatDivs(10)+`</main></body></html>`)
	e := NewEngine(d, Options{MeasureCap: 5})
	res, err := e.Resolve(mustFind(t, d, "div:nth-of-type(4)"), nil)
	if err != nil {
		t.Fatal(err)
	}

	b := e.Classify(res, []Candidate{{Kind: KindCSS, Selector: "main div"}}, nil)
	repeat := b.Repeat.AI.Candidates()
	if len(repeat) != 1 {
		t.Fatalf("repeat ai: %+v", repeat)
	}
	if repeat[0].Count() != 5 || !repeat[0].MatchCountClamped {
		t.Fatalf("count: got %d clamped=%v, want 5 clamped", repeat[0].Count(), repeat[0].MatchCountClamped)
	}
}

func TestClassify_XPathNeverDerived(t *testing.T) {
	base := []Candidate{{Kind: KindXPath, Selector: "xpath=//div", XPathValue: "//div", MatchCount: intPtr(10)}}
	b := (&Classifier{}).Classify(base, nil, repeatedPos())
	if len(b.Repeat.Base.Indices) != 1 || len(b.Unique.Base.Indices) != 0 {
		t.Fatalf("got %+v", b)
	}
}

func TestClassify_NoPositionNoDerivation(t *testing.T) {
	base := []Candidate{{Kind: KindClass, Selector: ".card", MatchCount: intPtr(10)}}
	b := (&Classifier{}).Classify(base, nil, nil)
	if len(b.Repeat.Base.Indices) != 1 || len(b.Unique.Base.Indices) != 0 {
		t.Fatalf("got %+v", b)
	}
}

func TestClassify_WithDOM(t *testing.T) {
	d := mustDoc(t, `<html><body>
		<section>`+repeatDivs(10)+`</section>
		<section>`+repeatDivs(10)+`</section>
	</body></html>`)
	m := NewMatcher(d)

	// Unmeasured candidates are measured; a derivation that still matches
	// twice (one per section) is not promoted.
	base := []Candidate{{Kind: KindClass, Selector: ".card"}}
	b := NewClassifier(m, nil).Classify(base, nil, repeatedPos())
	repeat := b.Repeat.Base.Candidates()
	if len(repeat) != 1 || repeat[0].Count() != 20 {
		t.Fatalf("repeat: %+v", repeat)
	}
	if len(b.Unique.Base.Indices) != 0 {
		t.Fatalf("ambiguous derivation promoted: %+v", b.Unique.Base.Candidates())
	}

	// Scoped to one section the derivation is unique.
	scope := d.FindAll("section")[1]
	b = NewClassifier(m, scope).Classify([]Candidate{{Kind: KindClass, Selector: ".card"}}, nil, repeatedPos())
	unique := b.Unique.Base.Candidates()
	if len(unique) != 1 || unique[0].Selector != ".card:nth-of-type(4)" {
		t.Fatalf("scoped unique: %+v", unique)
	}
}

func repeatDivs(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		s += `<div class="card">c</div>`
	}
	return s
}

func TestAppendNthOfType(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{".card", ".card:nth-of-type(3)", true},
		{"ul > li.row", "ul > li.row:nth-of-type(3)", true},
		{`[aria-label="a, b"]`, `[aria-label="a, b"]:nth-of-type(3)`, true},
		{"a, b", "", false},
		{"li:nth-child(2) > a", "", false},
		{"div:nth-of-type(1)", "", false},
	}
	for _, tt := range tests {
		got, ok := appendNthOfType(tt.in, 3)
		if got != tt.want || ok != tt.ok {
			t.Errorf("appendNthOfType(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestAnnotate(t *testing.T) {
	tests := map[string]string{
		"":                           "nth-of-type(2) applied",
		"1-class combination":        "1-class combination; nth-of-type(2) applied",
		"visible text (3 matches)":   "visible text; nth-of-type(2) applied",
		"data-testid, not unique":    "data-testid; nth-of-type(2) applied",
		"suggested; matches: 12":     "suggested; nth-of-type(2) applied",
	}
	for in, want := range tests {
		if got := annotate(in, "nth-of-type(2) applied"); got != want {
			t.Errorf("annotate(%q) = %q, want %q", in, got, want)
		}
	}
}
