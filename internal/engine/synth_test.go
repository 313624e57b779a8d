package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"onboardline/internal/domain"
	"onboardline/internal/postprocess"
	"onboardline/internal/responses"
	"onboardline/internal/rules"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

var completedAt = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func synthContext() domain.GenerationContext {
	return domain.GenerationContext{
		ProjectID:           "proj-1",
		ProjectName:         "Acme",
		ProjectTypeLabel:    "web_design",
		OrganizationID:      "org-1",
		SessionID:           "sess-1",
		CompletionTimestamp: completedAt,
	}
}

type stubModel struct {
	reply string
	err   error
	block bool
	calls int
}

func (m *stubModel) Complete(ctx context.Context, _, _ string) (string, error) {
	m.calls++
	if m.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return m.reply, m.err
}

func webResponses() responses.Responses {
	return responses.Responses{
		"step1": map[string]any{
			"business_name": "Acme",
			"logo_upload":   []any{map[string]any{"url": "https://cdn.example.com/logo.png"}},
		},
		"step4": map[string]any{"preferred_meeting_times": "Mon 10am, Wed 2pm"},
	}
}

func TestSynthesizeTasksIsDeterministic(t *testing.T) {
	s := NewSynthesizer(nil, 0, nil)
	first, err := s.SynthesizeTasks("web_design", webResponses(), synthContext())
	require.NoError(t, err)
	second, err := s.SynthesizeTasks("web_design", webResponses(), synthContext())
	require.NoError(t, err)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("task synthesis not deterministic (-first +second):\n%s", diff)
	}
	require.NotEmpty(t, first.Items)
	assert.Equal(t, len(first.Items), first.Stats.Total)
}

func TestSynthesizeTasksKeepsFirstKickoff(t *testing.T) {
	s := NewSynthesizer(nil, 0, nil)
	batch, err := s.SynthesizeTasks("web_design", webResponses(), synthContext())
	require.NoError(t, err)
	var kickoffs []domain.Item
	for _, it := range batch.Items {
		if it.Title == rules.KickoffTitle {
			kickoffs = append(kickoffs, it)
		}
	}
	require.Len(t, kickoffs, 1)
	assert.Contains(t, kickoffs[0].Description, "preferred slots")
	require.NotNil(t, kickoffs[0].DueDate)
	assert.Equal(t, completedAt.AddDate(0, 0, 2), *kickoffs[0].DueDate)
	assert.Equal(t, "web-kickoff", kickoffs[0].SourceMetadata["ruleId"])
}

func TestSynthesizeTasksDependenciesPointBackwards(t *testing.T) {
	s := NewSynthesizer(nil, 0, nil)
	r := responses.Responses{
		"step2": map[string]any{"pages": []any{"Home", "About"}, "features": []any{"ecommerce"}},
		"step3": map[string]any{"domain_name": "acme.com", "analytics_id": "G-123"},
	}
	batch, err := s.SynthesizeTasks("web_design", r, synthContext())
	require.NoError(t, err)
	for i, it := range batch.Items {
		for _, d := range it.Dependencies {
			assert.True(t, d >= 0 && d < i, "item %d depends on %d", i, d)
		}
	}
	assert.True(t, postprocess.Validate(batch.Items, completedAt).Valid)
}

func TestSynthesizeRejectsInvalidContext(t *testing.T) {
	s := NewSynthesizer(nil, 0, nil)
	c := synthContext()
	c.SessionID = ""
	_, err := s.SynthesizeTasks("web_design", nil, c)
	require.ErrorIs(t, err, domain.ErrInvalidContext)

	c = synthContext()
	c.CompletionTimestamp = time.Time{}
	_, err = s.SynthesizeTodos(context.Background(), "web_design", nil, c)
	require.ErrorIs(t, err, domain.ErrInvalidContext)
}

func TestSynthesizeTodosWithoutModelUsesFallback(t *testing.T) {
	s := NewSynthesizer(nil, 0, nil)
	res, err := s.SynthesizeTodos(context.Background(), "web_design", webResponses(), synthContext())
	require.NoError(t, err)
	assert.Equal(t, domain.SourceFallback, res.Path)
	assert.NotEmpty(t, res.AdminTodos)
	assert.NotEmpty(t, res.ClientTodos)
	require.NotNil(t, res.Analysis)
	assert.Equal(t, len(res.AdminTodos)+len(res.ClientTodos), res.Stats.Total)
}

func TestSynthesizeTodosMasksEveryModelFailure(t *testing.T) {
	cases := map[string]*stubModel{
		"call error":     {err: errors.New("boom")},
		"not json":       {reply: "sure, here you go"},
		"missing keys":   {reply: `{"adminTodos": []}`},
		"empty admin":    {reply: `{"adminTodos": [], "clientTodos": [], "analysis": {"complexity": "low"}}`},
		"wrong typings":  {reply: `{"adminTodos": "x", "clientTodos": [], "analysis": {}}`},
		"bad complexity": {reply: `{"adminTodos": [{"title": "Do it"}], "clientTodos": [], "analysis": {"complexity": "extreme"}}`},
		"bad priority":   {reply: `{"adminTodos": [{"title": "Call client", "priority": "urgent"}], "clientTodos": [], "analysis": {"complexity": "low"}}`},
	}
	for name, m := range cases {
		t.Run(name, func(t *testing.T) {
			s := NewSynthesizer(m, time.Second, nil)
			res, err := s.SynthesizeTodos(context.Background(), "voice_ai", nil, synthContext())
			require.NoError(t, err)
			assert.Equal(t, 1, m.calls)
			assert.Equal(t, domain.SourceFallback, res.Path)
			assert.NotEmpty(t, res.AdminTodos)
			assert.NotEmpty(t, res.ClientTodos)
		})
	}
}

func TestSynthesizeTodosTimeoutFallsBack(t *testing.T) {
	m := &stubModel{block: true}
	s := NewSynthesizer(m, 20*time.Millisecond, nil)
	start := time.Now()
	res, err := s.SynthesizeTodos(context.Background(), "software_dev", nil, synthContext())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, domain.SourceFallback, res.Path)
}

func TestSynthesizeTodosUsesModelReply(t *testing.T) {
	m := &stubModel{reply: "```json\n" + `{
  "adminTodos": [
    {"title": "Provision hosting", "priority": "high", "category": "setup"},
    {"title": "Connect CRM", "priority": "high", "category": "integration"},
    {"title": "provision hosting ", "priority": "low"}
  ],
  "clientTodos": [{"title": "Send brand assets", "priority": "medium", "dueInDays": 3}],
  "analysis": {"complexity": "high", "estimatedSetupTime": "3-4 weeks", "criticalIssues": ["No budget"], "recommendations": []}
}` + "\n```"}
	s := NewSynthesizer(m, time.Second, nil)
	res, err := s.SynthesizeTodos(context.Background(), "software_dev", nil, synthContext())
	require.NoError(t, err)
	assert.Equal(t, domain.SourceAI, res.Path)
	require.Len(t, res.AdminTodos, 2)
	assert.Equal(t, "Provision hosting", res.AdminTodos[0].Title)
	assert.Equal(t, []int{0}, res.AdminTodos[1].Dependencies)
	require.Len(t, res.ClientTodos, 1)
	require.NotNil(t, res.ClientTodos[0].DueDate)
	assert.Equal(t, completedAt.AddDate(0, 0, 3), *res.ClientTodos[0].DueDate)
	assert.Equal(t, "high", res.Analysis.Complexity)
}
