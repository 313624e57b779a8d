package rules

import (
	"fmt"
	"strings"

	"onboardline/internal/domain"
	"onboardline/internal/responses"
)

// KickoffTitle is produced by several sets; deduplication keeps the first.
const KickoffTitle = "Schedule project kickoff meeting"

func always(responses.Responses) bool { return true }

func answered(r responses.Responses) bool { return r.Len() > 0 }

// IsDeadlineKey reports whether a response key looks like a date the client committed to.
func IsDeadlineKey(key string) bool {
	for _, kw := range []string{"deadline", "timeline", "launch", "go_live", "due_date"} {
		if strings.Contains(key, kw) {
			return true
		}
	}
	return false
}

func todo(title, description, priority, category string, minutes int) domain.Item {
	it := domain.Item{
		Title:       title,
		Description: description,
		Status:      domain.StatusTodo,
		Priority:    priority,
		Category:    category,
	}
	if minutes > 0 {
		it.EstimatedMinutes = domain.Minutes(minutes)
	}
	return it
}

func due(it domain.Item, c domain.GenerationContext, days int) domain.Item {
	it.DueDate = c.DaysAfter(days)
	return it
}

func genericSet() RuleSet {
	return RuleSet{
		Name: SetGeneric,
		Rules: []Rule{
			{
				ID:          "generic-kickoff",
				Name:        "Project kickoff",
				Description: "Every onboarded project starts with a kickoff meeting.",
				Priority:    10,
				Condition:   always,
				Generate: func(r responses.Responses, c domain.GenerationContext) []domain.Item {
					desc := "Book a kickoff call with the client to walk through goals, scope and next steps."
					if c.ProjectName != "" {
						desc = fmt.Sprintf("Book a kickoff call with the client for %s to walk through goals, scope and next steps.", c.ProjectName)
					}
					return []domain.Item{due(todo(KickoffTitle, desc, domain.PriorityHigh, "", 30), c, 1)}
				},
			},
			{
				ID:          "generic-welcome",
				Name:        "Welcome packet",
				Description: "Send the standard welcome packet.",
				Priority:    9,
				Condition:   always,
				Generate: func(r responses.Responses, c domain.GenerationContext) []domain.Item {
					return []domain.Item{due(todo(
						"Send welcome packet to client",
						"Share the welcome packet with communication channels, points of contact and the onboarding checklist.",
						domain.PriorityMedium, "", 15), c, 1)}
				},
			},
			{
				ID:          "generic-review-responses",
				Name:        "Review questionnaire",
				Description: "Review the submitted onboarding answers.",
				Priority:    8,
				Condition:   answered,
				Generate: func(r responses.Responses, c domain.GenerationContext) []domain.Item {
					n := responses.CountAnswered(r)
					return []domain.Item{due(todo(
						"Review onboarding questionnaire responses",
						fmt.Sprintf("Read through the %d answered questionnaire fields and flag anything unclear before kickoff.", n),
						domain.PriorityHigh, "review", 45), c, 1)}
				},
			},
			{
				ID:           "generic-timeline",
				Name:         "Timeline confirmation",
				Description:  "Confirm deadlines the client mentioned.",
				ResponseKeys: []string{"*deadline*", "*timeline*", "*launch*"},
				Priority:     7,
				Condition: func(r responses.Responses) bool {
					_, ok := responses.FindKey(r, IsDeadlineKey)
					return ok
				},
				Generate: func(r responses.Responses, c domain.GenerationContext) []domain.Item {
					leaf, _ := responses.FindKey(r, IsDeadlineKey)
					return []domain.Item{due(todo(
						"Confirm project timeline and milestones",
						fmt.Sprintf("Client provided %s = %v. Build a milestone plan that meets it.", leaf.Path, leaf.Value),
						domain.PriorityHigh, "", 60), c, 3)}
				},
			},
			{
				ID:           "generic-client-notes",
				Name:         "Client notes follow-up",
				Description:  "Follow up on free-form notes left by the client.",
				ResponseKeys: []string{"notes.additional_notes"},
				Priority:     5,
				Condition: func(r responses.Responses) bool {
					return responses.HasText(r, "notes.additional_notes")
				},
				Generate: func(r responses.Responses, c domain.GenerationContext) []domain.Item {
					return []domain.Item{due(todo(
						"Follow up on client notes",
						"Client left additional notes: "+responses.String(r, "notes.additional_notes", ""),
						domain.PriorityMedium, "", 20), c, 2)}
				},
			},
		},
	}
}
