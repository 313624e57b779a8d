package ai

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"onboardline/internal/domain"
	"onboardline/internal/responses"
)

// SystemInstruction pins the reply format.
const SystemInstruction = `You are an onboarding specialist for a digital agency. You turn completed client onboarding questionnaires into concrete, actionable todo lists. Respond ONLY with valid JSON. Do not include any markdown formatting or explanations.`

const promptTemplate = `A client just completed the onboarding questionnaire.

Project: %s
Project type: %s
Completed at: %s

Questionnaire responses (YAML):
%s
Produce two todo lists and an analysis as a JSON object with exactly this structure:
{
  "adminTodos": [
    {
      "title": "short imperative title (max 200 characters)",
      "description": "what to do and why, referencing the responses",
      "priority": "high|medium|low",
      "category": "design|development|content|marketing|setup|integration|review|other",
      "estimatedMinutes": 60,
      "dueInDays": 3,
      "dependencies": [0]
    }
  ],
  "clientTodos": [ same shape as adminTodos ],
  "analysis": {
    "complexity": "low|medium|high",
    "estimatedSetupTime": "e.g. 1-2 weeks",
    "criticalIssues": ["missing or contradictory information that blocks work"],
    "recommendations": ["suggestions for the servicing team"]
  }
}

Guidelines:
- adminTodos are for the servicing team, clientTodos are things the client must do or provide
- Order each list in the sequence the work should happen
- dependencies are zero-based indices of EARLIER items in the same list; omit when none
- dueInDays counts from the completion date and is never negative
- Do not invent facts that are not in the responses; put gaps in criticalIssues
- Avoid duplicate titles`

// BuildPrompt renders the user prompt for one questionnaire.
func BuildPrompt(label string, r responses.Responses, c domain.GenerationContext) (string, error) {
	body := "{}\n"
	if r.Len() > 0 {
		b, err := yaml.Marshal(map[string]any(r))
		if err != nil {
			return "", fmt.Errorf("render responses: %w", err)
		}
		body = string(b)
	}
	name := strings.TrimSpace(c.ProjectName)
	if name == "" {
		name = c.ProjectID
	}
	if strings.TrimSpace(label) == "" {
		label = "unspecified"
	}
	return fmt.Sprintf(promptTemplate, name, label, c.CompletionTimestamp.UTC().Format("2006-01-02"), body), nil
}
