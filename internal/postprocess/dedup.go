package postprocess

import (
	"strings"

	"onboardline/internal/domain"
)

// TitleKey is the deduplication key.
func TitleKey(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// Deduplicate keeps the first item for every title key. Dependency indices are
// rewritten to the surviving positions; a reference to a dropped duplicate
// follows it to its first occurrence when that is still earlier.
func Deduplicate(items []domain.Item) []domain.Item {
	firstAt := map[string]int{}
	newIndex := make([]int, len(items))
	out := make([]domain.Item, 0, len(items))
	for i, it := range items {
		key := TitleKey(it.Title)
		if pos, dup := firstAt[key]; dup {
			newIndex[i] = pos
			continue
		}
		firstAt[key] = len(out)
		newIndex[i] = len(out)
		kept := it.Clone()
		kept.Title = strings.TrimSpace(kept.Title)
		out = append(out, kept)
	}
	for pos := range out {
		out[pos].Dependencies = remap(out[pos].Dependencies, newIndex, pos)
	}
	return out
}

// remap translates dependency indices through index and drops anything that
// would not point strictly backwards from self.
func remap(deps []int, index []int, self int) []int {
	if len(deps) == 0 {
		return nil
	}
	var out []int
	seen := map[int]bool{}
	for _, d := range deps {
		if d < 0 || d >= len(index) {
			continue
		}
		nd := index[d]
		if nd < 0 || nd >= self || seen[nd] {
			continue
		}
		seen[nd] = true
		out = append(out, nd)
	}
	return out
}
