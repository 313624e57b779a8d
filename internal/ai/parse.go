package ai

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"onboardline/internal/domain"
)

type wireTodo struct {
	Title            string `json:"title"`
	Description      string `json:"description"`
	Priority         string `json:"priority"`
	Category         string `json:"category"`
	EstimatedMinutes *int   `json:"estimatedMinutes"`
	DueInDays        *int   `json:"dueInDays"`
	Dependencies     []int  `json:"dependencies"`
}

type wireAnalysis struct {
	Complexity         string   `json:"complexity"`
	EstimatedSetupTime string   `json:"estimatedSetupTime"`
	CriticalIssues     []string `json:"criticalIssues"`
	Recommendations    []string `json:"recommendations"`
}

var requiredKeys = []string{"adminTodos", "clientTodos", "analysis"}

// levels is shared by analysis complexity and item priority.
var levels = map[string]bool{
	domain.PriorityLow:    true,
	domain.PriorityMedium: true,
	domain.PriorityHigh:   true,
}

// checkPriorities allows an omitted priority, which later ranks as medium.
func checkPriorities(key string, todos []wireTodo) error {
	for i, w := range todos {
		p := strings.ToLower(strings.TrimSpace(w.Priority))
		if p != "" && !levels[p] {
			return fmt.Errorf("%s[%d]: invalid priority %q", key, i, w.Priority)
		}
	}
	return nil
}

// Parse strictly decodes a model reply. A single surrounding markdown code
// fence is tolerated; anything else that is not the expected object fails.
func Parse(text string, c domain.GenerationContext) (domain.SynthesisResult, error) {
	payload := stripFence(text)
	if payload == "" {
		return domain.SynthesisResult{}, &GenerationFailure{Stage: StageParse, Err: errors.New("empty reply")}
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &top); err != nil {
		return domain.SynthesisResult{}, &GenerationFailure{Stage: StageParse, Err: err}
	}
	for _, key := range requiredKeys {
		raw, ok := top[key]
		if !ok || isNull(raw) {
			return domain.SynthesisResult{}, &GenerationFailure{Stage: StageShape, Err: fmt.Errorf("missing %s", key)}
		}
	}
	var admin, client []wireTodo
	if err := json.Unmarshal(top["adminTodos"], &admin); err != nil {
		return domain.SynthesisResult{}, &GenerationFailure{Stage: StageShape, Err: fmt.Errorf("adminTodos: %w", err)}
	}
	if err := json.Unmarshal(top["clientTodos"], &client); err != nil {
		return domain.SynthesisResult{}, &GenerationFailure{Stage: StageShape, Err: fmt.Errorf("clientTodos: %w", err)}
	}
	var analysis wireAnalysis
	if err := json.Unmarshal(top["analysis"], &analysis); err != nil {
		return domain.SynthesisResult{}, &GenerationFailure{Stage: StageShape, Err: fmt.Errorf("analysis: %w", err)}
	}
	complexity := strings.ToLower(strings.TrimSpace(analysis.Complexity))
	if !levels[complexity] {
		return domain.SynthesisResult{}, &GenerationFailure{Stage: StageShape, Err: fmt.Errorf("analysis: invalid complexity %q", analysis.Complexity)}
	}
	if err := checkPriorities("adminTodos", admin); err != nil {
		return domain.SynthesisResult{}, &GenerationFailure{Stage: StageShape, Err: err}
	}
	if err := checkPriorities("clientTodos", client); err != nil {
		return domain.SynthesisResult{}, &GenerationFailure{Stage: StageShape, Err: err}
	}
	return domain.SynthesisResult{
		AdminTodos:  toItems(admin, domain.AudienceAdmin, c),
		ClientTodos: toItems(client, domain.AudienceClient, c),
		Analysis: &domain.Analysis{
			Complexity:         complexity,
			EstimatedSetupTime: analysis.EstimatedSetupTime,
			CriticalIssues:     nonNil(analysis.CriticalIssues),
			Recommendations:    nonNil(analysis.Recommendations),
		},
		Path: domain.SourceAI,
	}, nil
}

func toItems(in []wireTodo, audience string, c domain.GenerationContext) []domain.Item {
	out := make([]domain.Item, 0, len(in))
	for i, w := range in {
		it := domain.Item{
			Title:            w.Title,
			Description:      w.Description,
			Status:           domain.StatusTodo,
			Priority:         strings.ToLower(strings.TrimSpace(w.Priority)),
			Category:         w.Category,
			EstimatedMinutes: w.EstimatedMinutes,
			Dependencies:     w.Dependencies,
			SourceType:       domain.SourceAI,
			SourceID:         c.SessionID,
			SourceMetadata: map[string]any{
				"orderIndex": i,
				"audience":   audience,
			},
		}
		if w.DueInDays != nil {
			it.DueDate = c.DaysAfter(*w.DueInDays)
		}
		out = append(out, it)
	}
	return out
}

func stripFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
