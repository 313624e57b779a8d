package rules

import (
	"strings"

	"onboardline/internal/domain"
	"onboardline/internal/responses"
)

func softwareDevSet() RuleSet {
	return RuleSet{
		Name:     SetSoftwareDev,
		Keywords: []string{"software", "app", "development", "saas"},
		Rules: []Rule{
			{
				ID:           "software-spec",
				Name:         "Functional specification",
				Description:  "Turn stated requirements into a specification the client signs off.",
				ResponseKeys: []string{"step2.requirements", "step2.requirements_doc"},
				Priority:     100,
				Condition: func(r responses.Responses) bool {
					return responses.HasText(r, "step2.requirements") || responses.HasFiles(r, "step2.requirements_doc")
				},
				Generate: func(r responses.Responses, c domain.GenerationContext) []domain.Item {
					return []domain.Item{
						due(todo("Draft functional specification", "Write user stories and acceptance criteria from the stated requirements.", domain.PriorityHigh, "content", 240), c, 5),
						due(todo("Review specification with client", "Walk through the specification with the client and record sign-off.", domain.PriorityHigh, "review", 60), c, 7),
					}
				},
			},
			{
				ID:          "software-repo",
				Name:        "Repository and CI",
				Description: "Every build project gets a repository and pipeline.",
				Priority:    90,
				Condition:   answered,
				Generate: func(r responses.Responses, c domain.GenerationContext) []domain.Item {
					desc := "Create the repository, branch protections and a CI pipeline with lint and test stages."
					if stack := responses.Strings(r, "step3.tech_stack"); len(stack) > 0 {
						desc += " Stack: " + strings.Join(stack, ", ") + "."
					}
					return []domain.Item{due(todo("Set up code repository and CI pipeline", desc, domain.PriorityHigh, "setup", 120), c, 3)}
				},
			},
			{
				ID:           "software-hosting",
				Name:         "Hosting environment",
				Description:  "Provision the hosting the client prefers.",
				ResponseKeys: []string{"step3.hosting_preference"},
				Priority:     85,
				Condition: func(r responses.Responses) bool {
					return responses.HasText(r, "step3.hosting_preference")
				},
				Generate: func(r responses.Responses, c domain.GenerationContext) []domain.Item {
					host := responses.String(r, "step3.hosting_preference", "")
					return []domain.Item{due(todo(
						"Provision "+host+" environments",
						"Create staging and production environments on "+host+" with secrets management.",
						domain.PriorityMedium, "setup", 180), c, 5)}
				},
			},
			{
				ID:           "software-integrations",
				Name:         "Third-party integrations",
				Description:  "One item per integration the client needs.",
				ResponseKeys: []string{"step3.integrations"},
				Priority:     80,
				Condition: func(r responses.Responses) bool {
					return len(responses.Strings(r, "step3.integrations")) > 0
				},
				Generate: func(r responses.Responses, c domain.GenerationContext) []domain.Item {
					var items []domain.Item
					for _, name := range responses.Strings(r, "step3.integrations") {
						items = append(items, due(todo(
							"Integrate "+name+" API",
							"Obtain credentials and implement the "+name+" integration with retries and error reporting.",
							domain.PriorityMedium, "integration", 240), c, 14))
					}
					return items
				},
			},
			{
				ID:           "software-ui-design",
				Name:         "UI design",
				Description:  "Client asked for interface design.",
				ResponseKeys: []string{"step2.deliverables"},
				Priority:     70,
				Condition: func(r responses.Responses) bool {
					return responses.ArrayIncludes(r, "step2.deliverables", "ui_design")
				},
				Generate: func(r responses.Responses, c domain.GenerationContext) []domain.Item {
					return []domain.Item{due(todo("Create UI wireframes and mockups", "Produce wireframes for the core flows, then high-fidelity mockups.", domain.PriorityMedium, "design", 360), c, 10)}
				},
			},
			{
				ID:           "software-mobile",
				Name:         "App store accounts",
				Description:  "Mobile platforms need developer accounts early.",
				ResponseKeys: []string{"step2.platforms"},
				Priority:     60,
				Condition: func(r responses.Responses) bool {
					return responses.ArrayIncludes(r, "step2.platforms", "ios") || responses.ArrayIncludes(r, "step2.platforms", "android")
				},
				Generate: func(r responses.Responses, c domain.GenerationContext) []domain.Item {
					return []domain.Item{due(todo(
						"Register app store developer accounts",
						"Have the client enroll in the Apple and Google developer programs and invite the team.",
						domain.PriorityMedium, "setup", 30), c, 3)}
				},
			},
		},
	}
}
