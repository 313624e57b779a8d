package postprocess

import (
	"time"

	"onboardline/internal/domain"
)

// Run applies the full pipeline to one batch. The report describes the
// candidates as they arrived.
func Run(items []domain.Item, completion time.Time) ([]domain.Item, Report) {
	report := Validate(items, completion)
	out := Deduplicate(items)
	out = DetectDependencies(out)
	out = Categorize(out)
	out = Prioritize(out)
	if out == nil {
		out = []domain.Item{}
	}
	return out, report
}

// Summarize computes batch statistics.
func Summarize(items ...[]domain.Item) domain.Stats {
	s := domain.Stats{
		ByPriority: map[string]int{},
		ByCategory: map[string]int{},
		BySource:   map[string]int{},
	}
	for _, batch := range items {
		for _, it := range batch {
			s.Total++
			s.ByPriority[normalizePriority(it.Priority)]++
			cat := it.Category
			if cat == "" {
				cat = CategoryOther
			}
			s.ByCategory[cat]++
			s.BySource[it.SourceType]++
			if it.EstimatedMinutes != nil {
				s.EstimatedMinutes += *it.EstimatedMinutes
			}
			if len(it.Dependencies) > 0 {
				s.WithDependencies++
			}
		}
	}
	return s
}
