package rules

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboardline/internal/domain"
	"onboardline/internal/responses"
)

var completed = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testContext() domain.GenerationContext {
	return domain.GenerationContext{
		ProjectID:           "proj-1",
		ProjectName:         "Acme",
		ProjectTypeLabel:    "web_design",
		OrganizationID:      "org-1",
		SessionID:           "sess-1",
		CompletionTimestamp: completed,
	}
}

func parse(t *testing.T, raw string) responses.Responses {
	t.Helper()
	var r responses.Responses
	require.NoError(t, json.Unmarshal([]byte(raw), &r))
	return r
}

func titles(items []domain.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Title
	}
	return out
}

func findTitle(items []domain.Item, title string) (domain.Item, bool) {
	for _, it := range items {
		if it.Title == title {
			return it, true
		}
	}
	return domain.Item{}, false
}

func TestDefaultRegistryHasUniqueIDs(t *testing.T) {
	reg := Default()
	seen := map[string]bool{}
	for _, set := range reg.Sets() {
		for _, r := range set.Rules {
			require.False(t, seen[r.ID], "duplicate id %s", r.ID)
			seen[r.ID] = true
		}
	}
	assert.NotEmpty(t, seen)
}

func TestNewRejectsDuplicateIDs(t *testing.T) {
	dup := RuleSet{Name: "a", Rules: []Rule{{ID: "x"}}}
	_, err := New(RuleSet{Name: SetGeneric, Rules: []Rule{{ID: "x"}}}, dup)
	require.Error(t, err)
}

func TestForProjectTypeRouting(t *testing.T) {
	reg := Default()
	cases := []struct {
		label string
		want  []string
	}{
		{"web_design", []string{SetWebDesign, SetGeneric}},
		{"Web Site", []string{SetWebDesign, SetGeneric}},
		{"outbound_calling", []string{SetVoiceAI, SetGeneric}},
		{"Voice-Campaign", []string{SetVoiceAI, SetGeneric}},
		{"SaaS Development", []string{SetSoftwareDev, SetGeneric}},
		{"bookkeeping", []string{SetGeneric}},
		{"", []string{SetGeneric}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, reg.MatchSets(tc.label), tc.label)
	}
	generic := reg.ForProjectType("bookkeeping")
	for _, r := range generic {
		assert.Contains(t, r.ID, "generic-")
	}
}

func TestSortByPriorityIsStable(t *testing.T) {
	in := []Rule{
		{ID: "a", Priority: 1},
		{ID: "b", Priority: 5},
		{ID: "c", Priority: 1},
		{ID: "d", Priority: 5},
		{ID: "e", Priority: 3},
	}
	out := SortByPriority(in)
	var ids []string
	for _, r := range out {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"b", "d", "e", "a", "c"}, ids)
	assert.Equal(t, "a", in[0].ID, "input must not be reordered")
}

func TestPanickingConditionIsIsolated(t *testing.T) {
	set := []Rule{
		{ID: "boom", Priority: 10, Condition: func(responses.Responses) bool { panic("bad rule") }},
		{ID: "ok", Priority: 1, Condition: always, Generate: func(r responses.Responses, c domain.GenerationContext) []domain.Item {
			return []domain.Item{{Title: "still here"}}
		}},
	}
	matched, err := Evaluate(set[0], nil)
	assert.False(t, matched)
	var pf *PredicateFailure
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, "boom", pf.RuleID)

	items := Synthesizer{}.Synthesize(set, nil, testContext())
	assert.Equal(t, []string{"still here"}, titles(items))
}

func TestSynthesizeStampsSource(t *testing.T) {
	items := Synthesizer{}.Synthesize(Default().ForProjectType("web"), responses.Responses{}, testContext())
	require.NotEmpty(t, items)
	for _, it := range items {
		assert.Equal(t, domain.SourceRule, it.SourceType)
		assert.Equal(t, "sess-1", it.SourceID)
		assert.NotEmpty(t, it.SourceMetadata["ruleId"])
		assert.Equal(t, completed.Format(time.RFC3339), it.SourceMetadata["triggeredAt"])
	}
}

func TestScenarioLogoUpload(t *testing.T) {
	r := parse(t, `{"step1":{"logo_upload":[{"url":"logo.png"}]}}`)
	items := Synthesizer{}.Synthesize(Default().ForProjectType("web_design"), r, testContext())

	logo, ok := findTitle(items, "Review and optimize logo files")
	require.True(t, ok, "got %v", titles(items))
	assert.Equal(t, domain.PriorityHigh, logo.Priority)
	require.NotNil(t, logo.DueDate)
	assert.True(t, logo.DueDate.Equal(completed.AddDate(0, 0, 2)))
	assert.Equal(t, "web-logo-review", logo.SourceMetadata["ruleId"])
}

func TestScenarioCalendarIntegration(t *testing.T) {
	with := parse(t, `{"step2":{"primary_goal":"appointment_setting","calendar_system":"Calendly"}}`)
	items := Synthesizer{}.Synthesize(Default().ForProjectType("outbound_calling"), with, testContext())
	cal, ok := findTitle(items, "Integrate Calendly calendar for appointment booking")
	require.True(t, ok, "got %v", titles(items))
	assert.Equal(t, "integration", cal.Category)

	without := parse(t, `{"step2":{"primary_goal":"appointment_setting"}}`)
	items = Synthesizer{}.Synthesize(Default().ForProjectType("outbound_calling"), without, testContext())
	for _, it := range items {
		assert.NotEqual(t, "integration", it.Category, it.Title)
	}
}

func TestScenarioEmptyResponsesOnlyUnconditionalRules(t *testing.T) {
	for _, label := range []string{"web_design", "outbound_calling", "saas app", "unknown"} {
		items := Synthesizer{}.Synthesize(Default().ForProjectType(label), responses.Responses{}, testContext())
		assert.Equal(t, []string{KickoffTitle, "Send welcome packet to client"}, titles(items), label)
	}
}

func TestKickoffProducedByTwoRules(t *testing.T) {
	r := parse(t, `{"step4":{"preferred_meeting_times":["Mon 10am","Tue 2pm"]}}`)
	items := Synthesizer{}.Synthesize(Default().ForProjectType("web"), r, testContext())
	var kickoffs []domain.Item
	for _, it := range items {
		if it.Title == KickoffTitle {
			kickoffs = append(kickoffs, it)
		}
	}
	require.Len(t, kickoffs, 2)
	assert.Equal(t, "web-kickoff", kickoffs[0].SourceMetadata["ruleId"])
}
