package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboardline/internal/domain"
	"onboardline/internal/responses"
)

type fakeModel struct {
	reply   string
	err     error
	calls   int
	prompts []string
}

func (f *fakeModel) Complete(_ context.Context, _ string, prompt string) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

var completed = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func genCtx() domain.GenerationContext {
	return domain.GenerationContext{
		ProjectID:           "proj-1",
		ProjectName:         "Acme Site",
		SessionID:           "sess-1",
		CompletionTimestamp: completed,
	}
}

const goodReply = `{
  "adminTodos": [
    {"title": "Set up hosting", "description": "d", "priority": "High", "category": "setup", "estimatedMinutes": 60, "dueInDays": 2},
    {"title": "Integrate CRM", "description": "d", "priority": "medium", "category": "integration", "dependencies": [0]}
  ],
  "clientTodos": [
    {"title": "Send logo files", "description": "d", "priority": "high"}
  ],
  "analysis": {"complexity": "Medium", "estimatedSetupTime": "1-2 weeks", "criticalIssues": [], "recommendations": ["Start with hosting"]}
}`

func TestGenerateWithoutModelIsConfigurationAbsent(t *testing.T) {
	_, err := Adapter{}.Generate(context.Background(), "web", nil, genCtx())
	require.ErrorIs(t, err, ErrConfigurationAbsent)
	assert.False(t, Adapter{}.Configured())
}

func TestGenerateMapsReply(t *testing.T) {
	m := &fakeModel{reply: goodReply}
	r := responses.Responses{"step1": map[string]any{"business_name": "Acme"}}
	res, err := Adapter{Model: m}.Generate(context.Background(), "web_design", r, genCtx())
	require.NoError(t, err)
	assert.Equal(t, 1, m.calls)
	assert.Contains(t, m.prompts[0], "business_name: Acme")
	assert.Contains(t, m.prompts[0], "Project type: web_design")

	require.Len(t, res.AdminTodos, 2)
	require.Len(t, res.ClientTodos, 1)
	first := res.AdminTodos[0]
	assert.Equal(t, domain.SourceAI, first.SourceType)
	assert.Equal(t, "sess-1", first.SourceID)
	assert.Equal(t, "high", first.Priority)
	assert.Equal(t, 0, first.SourceMetadata["orderIndex"])
	assert.Equal(t, domain.AudienceAdmin, first.SourceMetadata["audience"])
	require.NotNil(t, first.DueDate)
	assert.True(t, first.DueDate.Equal(completed.AddDate(0, 0, 2)))
	assert.Equal(t, 1, res.AdminTodos[1].SourceMetadata["orderIndex"])
	assert.Equal(t, []int{0}, res.AdminTodos[1].Dependencies)
	assert.Equal(t, domain.AudienceClient, res.ClientTodos[0].SourceMetadata["audience"])
	require.NotNil(t, res.Analysis)
	assert.Equal(t, "medium", res.Analysis.Complexity)
	assert.Equal(t, domain.SourceAI, res.Path)
}

func TestGenerateAcceptsFencedJSON(t *testing.T) {
	m := &fakeModel{reply: "```json\n" + goodReply + "\n```"}
	res, err := Adapter{Model: m}.Generate(context.Background(), "web", nil, genCtx())
	require.NoError(t, err)
	assert.Len(t, res.AdminTodos, 2)
}

func TestGenerateFailures(t *testing.T) {
	cases := []struct {
		name  string
		model *fakeModel
		stage string
	}{
		{"call error", &fakeModel{err: errors.New("timeout")}, StageCall},
		{"not json", &fakeModel{reply: "Here are your todos: ..."}, StageParse},
		{"empty", &fakeModel{reply: "  "}, StageParse},
		{"json array", &fakeModel{reply: `[]`}, StageParse},
		{"missing analysis", &fakeModel{reply: `{"adminTodos":[],"clientTodos":[]}`}, StageShape},
		{"null client todos", &fakeModel{reply: `{"adminTodos":[],"clientTodos":null,"analysis":{}}`}, StageShape},
		{"wrong type", &fakeModel{reply: `{"adminTodos":{},"clientTodos":[],"analysis":{}}`}, StageShape},
		{"empty complexity", &fakeModel{reply: `{"adminTodos":[{"title":"Do it"}],"clientTodos":[],"analysis":{}}`}, StageShape},
		{"unknown complexity", &fakeModel{reply: `{"adminTodos":[{"title":"Do it"}],"clientTodos":[],"analysis":{"complexity":"extreme"}}`}, StageShape},
		{"unknown admin priority", &fakeModel{reply: `{"adminTodos":[{"title":"Do it","priority":"urgent"}],"clientTodos":[],"analysis":{"complexity":"low"}}`}, StageShape},
		{"unknown client priority", &fakeModel{reply: `{"adminTodos":[{"title":"Do it"}],"clientTodos":[{"title":"Call us","priority":"asap"}],"analysis":{"complexity":"low"}}`}, StageShape},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := Adapter{Model: tc.model}.Generate(context.Background(), "web", nil, genCtx())
			var gf *GenerationFailure
			require.ErrorAs(t, err, &gf)
			assert.Equal(t, tc.stage, gf.Stage)
			assert.Empty(t, res.AdminTodos)
			assert.Equal(t, 1, tc.model.calls)
		})
	}
}

func TestBuildPromptHandlesEmptyResponses(t *testing.T) {
	p, err := BuildPrompt("", responses.Responses{}, domain.GenerationContext{ProjectID: "p", CompletionTimestamp: completed})
	require.NoError(t, err)
	assert.True(t, strings.Contains(p, "Project: p"))
	assert.Contains(t, p, "Project type: unspecified")
	assert.Contains(t, p, "Completed at: 2024-03-01")
}
