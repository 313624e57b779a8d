package postprocess

import (
	"fmt"
	"sort"
	"strings"

	"onboardline/internal/domain"
)

const (
	CategorySetup       = "setup"
	CategoryIntegration = "integration"
	CategoryReview      = "review"
	CategoryContent     = "content"
)

// DetectDependencies annotates integration items with the nearest earlier
// setup item, and review items with the nearest earlier content item from the
// same rule. Only earlier indices are ever recorded.
func DetectDependencies(items []domain.Item) []domain.Item {
	out := make([]domain.Item, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	for i := range out {
		var dep = -1
		switch normalizeCategory(out[i].Category) {
		case CategoryIntegration:
			dep = nearestBefore(out, i, func(c domain.Item) bool {
				return normalizeCategory(c.Category) == CategorySetup
			})
		case CategoryReview:
			group := ruleGroup(out[i])
			dep = nearestBefore(out, i, func(c domain.Item) bool {
				return normalizeCategory(c.Category) == CategoryContent && ruleGroup(c) == group
			})
		}
		if dep >= 0 {
			out[i].Dependencies = addDependency(out[i].Dependencies, dep)
		}
	}
	return out
}

func nearestBefore(items []domain.Item, i int, match func(domain.Item) bool) int {
	for j := i - 1; j >= 0; j-- {
		if match(items[j]) {
			return j
		}
	}
	return -1
}

// ruleGroup is the triggering rule id; items without one share a group.
func ruleGroup(it domain.Item) string {
	if it.SourceMetadata == nil {
		return ""
	}
	if id, ok := it.SourceMetadata["ruleId"]; ok {
		return fmt.Sprint(id)
	}
	return ""
}

func addDependency(deps []int, d int) []int {
	for _, x := range deps {
		if x == d {
			return deps
		}
	}
	deps = append(deps, d)
	sort.Ints(deps)
	return deps
}

func normalizeCategory(c string) string {
	return strings.ToLower(strings.TrimSpace(c))
}
