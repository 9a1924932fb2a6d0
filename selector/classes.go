package selector

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/locator/dom"
)

// classCombinations enumerates non-empty subsets of classes with at most
// maxSize members, stopping after maxTotal subsets. Sizes are searched in
// increasing order so the cap cuts large subsets first. The result is
// sorted by size, then lexically.
func classCombinations(classes []string, maxSize, maxTotal int) [][]string {
	if maxSize <= 0 || maxTotal <= 0 {
		return nil
	}
	var out [][]string
	cur := make([]string, 0, maxSize)
	var walk func(start, size int) bool
	walk = func(start, size int) bool {
		if len(cur) == size {
			out = append(out, slices.Clone(cur))
			return len(out) < maxTotal
		}
		for i := start; i <= len(classes)-(size-len(cur)); i++ {
			cur = append(cur, classes[i])
			ok := walk(i+1, size)
			cur = cur[:len(cur)-1]
			if !ok {
				return false
			}
		}
		return true
	}
	for size := 1; size <= min(maxSize, len(classes)); size++ {
		if !walk(0, size) {
			break
		}
	}

	slices.SortStableFunc(out, func(a, b []string) int {
		if len(a) != len(b) {
			return len(a) - len(b)
		}
		return slices.Compare(a, b)
	})
	return out
}

func classSelector(combo []string) string {
	var b strings.Builder
	for _, c := range combo {
		b.WriteByte('.')
		b.WriteString(cssIdent(c))
	}
	return b.String()
}

// buildClasses emits a class-only and a tag-qualified candidate for every
// combination.
func buildClasses(el *html.Node, maxSize, maxTotal int) []Candidate {
	classes := dom.Classes(el)
	if len(classes) == 0 {
		return nil
	}
	tag := dom.Tag(el)
	combos := classCombinations(classes, maxSize, maxTotal)
	out := make([]Candidate, 0, 2*len(combos))
	for _, combo := range combos {
		sel := classSelector(combo)
		out = append(out,
			Candidate{
				Kind:     KindClass,
				Selector: sel,
				Score:    classScore(len(combo)),
				Reason:   fmt.Sprintf("%d-class combination", len(combo)),
			},
			Candidate{
				Kind:     KindClassTag,
				Selector: tag + sel,
				Score:    classTagScore(len(combo)),
				Reason:   fmt.Sprintf("tag with %d-class combination", len(combo)),
			})
	}
	return out
}
