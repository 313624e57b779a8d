package postprocess

import (
	"sort"
	"strings"

	"onboardline/internal/domain"
)

// Rank orders priorities; a missing or unknown priority ranks as medium.
func Rank(priority string) int {
	switch strings.ToLower(strings.TrimSpace(priority)) {
	case domain.PriorityHigh:
		return 1
	case domain.PriorityLow:
		return 3
	}
	return 2
}

// Prioritize stable-sorts by rank. A prerequisite is ranked at least as urgent
// as anything depending on it, so dependencies keep pointing backwards; the
// indices are rewritten to the new positions.
func Prioritize(items []domain.Item) []domain.Item {
	n := len(items)
	eff := make([]int, n)
	for i, it := range items {
		eff[i] = Rank(it.Priority)
	}
	for i := n - 1; i >= 0; i-- {
		for _, d := range items[i].Dependencies {
			if d >= 0 && d < i && eff[i] < eff[d] {
				eff[d] = eff[i]
			}
		}
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return eff[order[a]] < eff[order[b]] })

	newIndex := make([]int, n)
	for pos, old := range order {
		newIndex[old] = pos
	}
	out := make([]domain.Item, n)
	for pos, old := range order {
		it := items[old].Clone()
		it.Priority = normalizePriority(it.Priority)
		it.Dependencies = remap(it.Dependencies, newIndex, pos)
		out[pos] = it
	}
	return out
}

func normalizePriority(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" {
		return domain.PriorityMedium
	}
	return p
}
