// Package fallback produces a conservative todo result without any external
// dependency. It is used whenever the AI path is unavailable or fails, and it
// always returns at least one admin todo and a complete analysis.
package fallback

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"onboardline/internal/domain"
	"onboardline/internal/responses"
	"onboardline/internal/rules"
)

const (
	highComplexityFields = 25
	lowComplexityFields  = 5
	sparseFields         = 3

	complexityLow    = "low"
	complexityMedium = "medium"
	complexityHigh   = "high"
)

// Generate derives admin and client todos from whatever fields are present.
func Generate(label string, r responses.Responses, c domain.GenerationContext) domain.SynthesisResult {
	answered := responses.CountAnswered(r)
	deadline, hasDeadline := responses.FindKey(r, rules.IsDeadlineKey)
	hasFiles := anyFiles(r)
	typeName := strings.TrimSpace(label)
	if typeName == "" {
		typeName = "client"
	}

	var admin []domain.Item
	admin = append(admin, item(rules.KickoffTitle,
		"Book a kickoff call to confirm goals, scope and communication channels.",
		domain.PriorityHigh, 30, c, 1))
	if answered > 0 {
		admin = append(admin, item("Review onboarding questionnaire responses",
			fmt.Sprintf("Read the %d answered fields and list open questions for the kickoff.", answered),
			domain.PriorityHigh, 45, c, 1))
	}
	if hasDeadline {
		admin = append(admin, item("Confirm project timeline and milestones",
			fmt.Sprintf("Client provided %s = %v; plan milestones against it.", deadline.Path, deadline.Value),
			domain.PriorityHigh, 60, c, 3))
	}
	if hasFiles {
		admin = append(admin, item("Catalog uploaded client assets",
			"Download, rename and file every asset uploaded during onboarding.",
			domain.PriorityMedium, 30, c, 2))
	}
	admin = append(admin, item(planTitle(typeName),
		"Outline phases, owners and deliverables for the project.",
		domain.PriorityMedium, 90, c, 5))

	client := []domain.Item{
		item("Confirm availability for kickoff meeting", "Reply with two or three time slots that work for the kickoff.", domain.PriorityHigh, 5, c, 1),
		item("Share brand assets and account access", "Provide logos, brand guidelines and logins the team will need.", domain.PriorityMedium, 20, c, 3),
	}
	if answered < sparseFields {
		client = append(client, item("Complete missing onboarding details",
			"Several questionnaire sections were left empty; fill them in so work can start.",
			domain.PriorityHigh, 20, c, 2))
	}

	return domain.SynthesisResult{
		AdminTodos:  stamp(admin, domain.AudienceAdmin, c),
		ClientTodos: stamp(client, domain.AudienceClient, c),
		Analysis:    analyze(answered, hasDeadline),
		Path:        domain.SourceFallback,
	}
}

const planTitleFormat = "Prepare %s project plan"

// planTitle trims the project type label so the title stays within
// domain.MaxTitleLength runes.
func planTitle(typeName string) string {
	room := domain.MaxTitleLength - utf8.RuneCountInString(fmt.Sprintf(planTitleFormat, ""))
	if r := []rune(typeName); len(r) > room {
		typeName = strings.TrimSpace(string(r[:room]))
	}
	return fmt.Sprintf(planTitleFormat, typeName)
}

func analyze(answered int, hasDeadline bool) *domain.Analysis {
	a := &domain.Analysis{
		Complexity:      complexityMedium,
		CriticalIssues:  []string{},
		Recommendations: []string{"Confirm scope and priorities during the kickoff meeting."},
	}
	switch {
	case answered >= highComplexityFields:
		a.Complexity = complexityHigh
	case hasDeadline && answered < lowComplexityFields:
		a.Complexity = complexityLow
	}
	if answered == 0 {
		a.CriticalIssues = append(a.CriticalIssues, "Onboarding questionnaire has no answers.")
	}
	if !hasDeadline {
		a.CriticalIssues = append(a.CriticalIssues, "No target launch date or deadline provided.")
		a.Recommendations = append(a.Recommendations, "Agree on a target launch date before planning milestones.")
	}
	switch a.Complexity {
	case complexityLow:
		a.EstimatedSetupTime = "3-5 days"
	case complexityHigh:
		a.EstimatedSetupTime = "3-4 weeks"
	default:
		a.EstimatedSetupTime = "1-2 weeks"
	}
	return a
}

func anyFiles(r responses.Responses) bool {
	found := false
	responses.Walk(r, func(l responses.Leaf) bool {
		if responses.HasFiles(responses.Responses{"v": l.Value}, "v") && looksLikeUpload(l.Key) {
			found = true
			return false
		}
		return true
	})
	return found
}

func looksLikeUpload(key string) bool {
	k := strings.ToLower(key)
	for _, kw := range []string{"upload", "file", "logo", "asset", "image", "document", "attachment"} {
		if strings.Contains(k, kw) {
			return true
		}
	}
	return false
}

func item(title, description, priority string, minutes int, c domain.GenerationContext, days int) domain.Item {
	return domain.Item{
		Title:            title,
		Description:      description,
		Status:           domain.StatusTodo,
		Priority:         priority,
		EstimatedMinutes: domain.Minutes(minutes),
		DueDate:          c.DaysAfter(days),
	}
}

func stamp(items []domain.Item, audience string, c domain.GenerationContext) []domain.Item {
	for i := range items {
		items[i].SourceType = domain.SourceFallback
		items[i].SourceID = c.SessionID
		items[i].SourceMetadata = map[string]any{
			"orderIndex": i,
			"audience":   audience,
		}
	}
	return items
}
