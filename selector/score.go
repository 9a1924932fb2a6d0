package selector

// Base scores. Higher means more stable.
const (
	ScoreID        = 90
	ScoreCSSPath   = 70
	ScoreXPath     = 56
	ScoreXPathFull = 42
	ScoreTag       = 30
	ScoreTextUniq  = 80
	ScoreText      = 50

	scorePartialFloor = 60
)

// attrRule is one entry of the attribute priority list.
type attrRule struct {
	name    string
	kind    Kind
	score   int
	partial bool // emit *= variants on value tokens
}

// attrPriority is ordered from most to least stable.
var attrPriority = []attrRule{
	{"id", KindID, ScoreID, false},
	{"data-testid", KindDataAttr, 88, true},
	{"data-test", KindDataAttr, 86, true},
	{"data-qa", KindDataAttr, 84, true},
	{"data-cy", KindDataAttr, 84, true},
	{"data-id", KindDataAttr, 82, true},
	{"aria-label", KindAriaLabel, 80, true},
	{"role", KindRole, 78, false},
	{"name", KindName, 78, false},
	{"title", KindTitle, 72, true},
	{"type", KindType, 68, false},
}

// partialScore is the score of the i-th (0-based) partial variant.
func partialScore(base, i int) int {
	return max(scorePartialFloor, base-(8+2*i))
}

// classScore scores a class-only combination of the given size.
func classScore(size int) int {
	return 62 - min(10, size*2)
}

// classTagScore scores a tag-qualified class combination.
func classTagScore(size int) int {
	return 68 - min(10, size)
}

func textScore(n Count) int {
	if n.Unique() {
		return ScoreTextUniq
	}
	return ScoreText
}
