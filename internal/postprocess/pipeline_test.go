package postprocess

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboardline/internal/domain"
)

var completion = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func at(days int) *time.Time {
	t := completion.AddDate(0, 0, days)
	return &t
}

func fromRule(id string, it domain.Item) domain.Item {
	it.SourceType = domain.SourceRule
	it.SourceMetadata = map[string]any{"ruleId": id}
	return it
}

func titles(items []domain.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Title
	}
	return out
}

func assertBackwardDependencies(t *testing.T, items []domain.Item) {
	t.Helper()
	for i, it := range items {
		for _, d := range it.Dependencies {
			assert.True(t, d >= 0 && d < i, "item %d (%s) depends on %d", i, it.Title, d)
		}
	}
}

func TestValidateFlagsInvariantViolations(t *testing.T) {
	items := []domain.Item{
		{Title: strings.Repeat("x", 201)},
		{Title: "late", DueDate: at(-1)},
		{Title: "bad status", Status: "blocked"},
		{Title: "bad priority", Priority: "urgent"},
		{Title: "forward", Dependencies: []int{4}},
		{Title: "   "},
		{Title: strings.Repeat("é", 200), Status: domain.StatusDone, Priority: domain.PriorityLow, DueDate: at(0), Dependencies: []int{0}},
	}
	before := items[4].Dependencies[0]
	rep := Validate(items, completion)
	require.False(t, rep.Valid)
	require.Len(t, rep.Errors, 6)
	assert.Contains(t, rep.Errors[0], "item 0: title exceeds 200")
	assert.Contains(t, rep.Errors[1], "item 1: due date")
	assert.Contains(t, rep.Errors[2], `item 2: invalid status "blocked"`)
	assert.Contains(t, rep.Errors[3], `item 3: invalid priority "urgent"`)
	assert.Contains(t, rep.Errors[4], "item 4: dependency 4")
	assert.Contains(t, rep.Errors[5], "item 5: title is required")
	assert.Equal(t, before, items[4].Dependencies[0], "validate must not mutate")

	ok := Validate([]domain.Item{{Title: "fine", DueDate: at(0)}}, completion)
	assert.True(t, ok.Valid)
	assert.Empty(t, ok.Errors)
}

func TestDeduplicateFirstWinsAndIsIdempotent(t *testing.T) {
	items := []domain.Item{
		fromRule("web-kickoff", domain.Item{Title: "Schedule project kickoff meeting", Description: "first", DueDate: at(2)}),
		fromRule("a", domain.Item{Title: "Other"}),
		fromRule("generic-kickoff", domain.Item{Title: "  schedule PROJECT kickoff meeting ", Description: "second", DueDate: at(1)}),
		fromRule("b", domain.Item{Title: "Depends on second kickoff", Dependencies: []int{2}}),
	}
	once := Deduplicate(items)
	require.Equal(t, []string{"Schedule project kickoff meeting", "Other", "Depends on second kickoff"}, titles(once))
	assert.Equal(t, "first", once[0].Description)
	assert.True(t, once[0].DueDate.Equal(*at(2)))
	assert.Equal(t, []int{0}, once[2].Dependencies)

	twice := Deduplicate(once)
	assert.Empty(t, cmp.Diff(once, twice))
}

func TestDetectDependencies(t *testing.T) {
	items := []domain.Item{
		fromRule("r1", domain.Item{Title: "Draft home copy", Category: "content"}),
		fromRule("r2", domain.Item{Title: "Configure DNS", Category: "setup"}),
		fromRule("r3", domain.Item{Title: "Draft about copy", Category: "content"}),
		fromRule("r2", domain.Item{Title: "Install analytics", Category: "integration"}),
		fromRule("r1", domain.Item{Title: "Review copy", Category: "review"}),
		fromRule("r9", domain.Item{Title: "Review unrelated", Category: "review"}),
		fromRule("r4", domain.Item{Title: "Integrate CRM", Category: "Integration", Dependencies: []int{1}}),
	}
	out := DetectDependencies(items)
	assert.Nil(t, out[0].Dependencies)
	assert.Equal(t, []int{1}, out[3].Dependencies, "integration -> nearest setup")
	assert.Equal(t, []int{0}, out[4].Dependencies, "review -> content of same rule")
	assert.Nil(t, out[5].Dependencies, "no content from the same rule")
	assert.Equal(t, []int{1}, out[6].Dependencies, "no duplicate dependency")
	assert.Nil(t, items[3].Dependencies, "input must not be mutated")
	assertBackwardDependencies(t, out)
}

func TestCategorize(t *testing.T) {
	items := []domain.Item{
		{Title: "Review and optimize logo files"},
		{Title: "Build booking API"},
		{Title: "Write blog posts"},
		{Title: "Plan SEO strategy"},
		{Title: "Call the accountant"},
		{Title: "Keep me", Category: " Setup "},
		{Title: "Plan website redesign"},
		{Title: "Rework the homepage"},
		{Title: "Fix logout flow on the landing screen"},
		{Title: "Collect project details", Description: "See description"},
	}
	out := Categorize(items)
	got := make([]string, len(out))
	for i, it := range out {
		got[i] = it.Category
	}
	assert.Equal(t, []string{"design", "development", "content", "marketing", "other", "setup", "design", "content", "other", "other"}, got)
	assert.Equal(t, []string{"design", "development", "content", "marketing", "other"}, Categories())
}

func TestCategorizeRecordsTaxonomyForGeneratorCategories(t *testing.T) {
	items := []domain.Item{
		{Title: "Connect CRM via API", Category: "integration", SourceMetadata: map[string]any{"orderIndex": 0}},
		{Title: "Pick a colour palette", Category: "Design"},
		{Title: "Call the accountant", Category: "review"},
	}
	out := Categorize(items)

	assert.Equal(t, "integration", out[0].Category)
	assert.Equal(t, "development", out[0].SourceMetadata[TaxonomyKey])
	assert.Equal(t, 0, out[0].SourceMetadata["orderIndex"])
	assert.NotContains(t, items[0].SourceMetadata, TaxonomyKey)

	assert.Equal(t, "design", out[1].Category)
	assert.Nil(t, out[1].SourceMetadata)

	assert.Equal(t, "review", out[2].Category)
	assert.Equal(t, CategoryOther, out[2].SourceMetadata[TaxonomyKey])
}

func TestPrioritizeIsStable(t *testing.T) {
	items := []domain.Item{
		{Title: "m1", Priority: "medium"},
		{Title: "l1", Priority: "low"},
		{Title: "h1", Priority: "high"},
		{Title: "none"},
		{Title: "h2", Priority: "High"},
		{Title: "m2", Priority: "medium"},
	}
	out := Prioritize(items)
	assert.Equal(t, []string{"h1", "h2", "m1", "none", "m2", "l1"}, titles(out))
	assert.Equal(t, domain.PriorityMedium, out[3].Priority)
	assert.Equal(t, domain.PriorityHigh, out[1].Priority)
}

func TestPrioritizeKeepsDependenciesBackward(t *testing.T) {
	items := []domain.Item{
		{Title: "setup", Priority: "low"},
		{Title: "other", Priority: "medium"},
		{Title: "integration", Priority: "high", Dependencies: []int{0}},
	}
	out := Prioritize(items)
	assert.Equal(t, []string{"setup", "integration", "other"}, titles(out))
	assert.Equal(t, []int{0}, out[1].Dependencies)
	assert.Equal(t, domain.PriorityLow, out[0].Priority, "priority value itself is not promoted")
	assertBackwardDependencies(t, out)
}

func TestRunScenarioDuplicateKickoff(t *testing.T) {
	items := []domain.Item{
		fromRule("web-kickoff", domain.Item{Title: "Schedule project kickoff meeting", Description: "web", Priority: "high", DueDate: at(2)}),
		fromRule("web-domain", domain.Item{Title: "Configure domain and DNS", Priority: "high", Category: "setup"}),
		fromRule("web-domain", domain.Item{Title: "Install analytics tracking", Priority: "medium", Category: "integration"}),
		fromRule("web-page-copy", domain.Item{Title: "Draft copy for Home page", Priority: "medium", Category: "content"}),
		fromRule("web-page-copy", domain.Item{Title: "Review page copy with client", Priority: "high", Category: "review"}),
		fromRule("generic-kickoff", domain.Item{Title: "Schedule project kickoff meeting", Description: "generic", Priority: "high", DueDate: at(1)}),
	}
	out, rep := Run(items, completion)
	assert.True(t, rep.Valid)

	var kickoffs []domain.Item
	for _, it := range out {
		if TitleKey(it.Title) == "schedule project kickoff meeting" {
			kickoffs = append(kickoffs, it)
		}
	}
	require.Len(t, kickoffs, 1)
	assert.Equal(t, "web", kickoffs[0].Description)
	assert.True(t, kickoffs[0].DueDate.Equal(*at(2)))
	assertBackwardDependencies(t, out)

	again, _ := Run(out, completion)
	assert.Equal(t, len(out), len(again))
	assertBackwardDependencies(t, again)

	stats := Summarize(out)
	assert.Equal(t, len(out), stats.Total)
	assert.Equal(t, 2, stats.WithDependencies)
}

func TestRunEmptyBatch(t *testing.T) {
	out, rep := Run(nil, completion)
	assert.NotNil(t, out)
	assert.Empty(t, out)
	assert.True(t, rep.Valid)
}
