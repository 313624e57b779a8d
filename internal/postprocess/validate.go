// Package postprocess is applied to every candidate batch before it leaves the
// synthesis core: validate, deduplicate, detect dependencies, categorize and
// prioritize, in that order.
package postprocess

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"onboardline/internal/domain"
)

// Report lists invariant violations. The pipeline never drops or corrects
// an item because of a finding; enforcement is the caller's decision.
type Report struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

var (
	statuses   = map[string]bool{domain.StatusTodo: true, domain.StatusInProgress: true, domain.StatusDone: true}
	priorities = map[string]bool{domain.PriorityLow: true, domain.PriorityMedium: true, domain.PriorityHigh: true}
)

// Validate checks every item against the data model invariants without mutating them.
func Validate(items []domain.Item, completion time.Time) Report {
	var errs []string
	for i, it := range items {
		n := utf8.RuneCountInString(strings.TrimSpace(it.Title))
		switch {
		case n == 0:
			errs = append(errs, fmt.Sprintf("item %d: title is required", i))
		case utf8.RuneCountInString(it.Title) > domain.MaxTitleLength:
			errs = append(errs, fmt.Sprintf("item %d: title exceeds %d characters", i, domain.MaxTitleLength))
		}
		if it.DueDate != nil && it.DueDate.Before(completion) {
			errs = append(errs, fmt.Sprintf("item %d: due date %s is before completion %s",
				i, it.DueDate.UTC().Format(time.RFC3339), completion.UTC().Format(time.RFC3339)))
		}
		if it.Status != "" && !statuses[it.Status] {
			errs = append(errs, fmt.Sprintf("item %d: invalid status %q", i, it.Status))
		}
		if it.Priority != "" && !priorities[it.Priority] {
			errs = append(errs, fmt.Sprintf("item %d: invalid priority %q", i, it.Priority))
		}
		for _, d := range it.Dependencies {
			if d < 0 || d >= i {
				errs = append(errs, fmt.Sprintf("item %d: dependency %d must reference an earlier item", i, d))
			}
		}
	}
	return Report{Valid: len(errs) == 0, Errors: errs}
}
