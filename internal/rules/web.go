package rules

import (
	"fmt"
	"strings"

	"onboardline/internal/domain"
	"onboardline/internal/responses"
)

func webDesignSet() RuleSet {
	return RuleSet{
		Name:     SetWebDesign,
		Keywords: []string{"web", "website", "design"},
		Rules: []Rule{
			{
				ID:           "web-logo-review",
				Name:         "Logo files review",
				Description:  "Client uploaded logo files that need checking before use.",
				ResponseKeys: []string{"step1.logo_upload"},
				Priority:     100,
				Condition: func(r responses.Responses) bool {
					return responses.HasFiles(r, "step1.logo_upload")
				},
				Generate: func(r responses.Responses, c domain.GenerationContext) []domain.Item {
					files := responses.FileNames(r, "step1.logo_upload")
					return []domain.Item{due(todo(
						"Review and optimize logo files",
						fmt.Sprintf("Check resolution, formats and transparency of %s; export web-ready SVG and PNG variants.", strings.Join(files, ", ")),
						domain.PriorityHigh, "design", 60), c, 2)}
				},
			},
			{
				ID:           "web-logo-design",
				Name:         "Logo design",
				Description:  "Client has no logo and asked for one.",
				ResponseKeys: []string{"step1.logo_upload", "step1.services_needed"},
				Priority:     95,
				Condition: func(r responses.Responses) bool {
					return !responses.HasFiles(r, "step1.logo_upload") && responses.ArrayIncludes(r, "step1.services_needed", "logo_design")
				},
				Generate: func(r responses.Responses, c domain.GenerationContext) []domain.Item {
					return []domain.Item{due(todo(
						"Design logo concepts",
						"Prepare three logo concepts based on the brand questionnaire answers.",
						domain.PriorityHigh, "design", 240), c, 5)}
				},
			},
			{
				ID:           "web-brand-guidelines",
				Name:         "Brand guidelines",
				Description:  "Apply the client's brand guide to the design system.",
				ResponseKeys: []string{"step1.brand_guidelines", "step1.brand_colors"},
				Priority:     90,
				Condition: func(r responses.Responses) bool {
					return responses.HasFiles(r, "step1.brand_guidelines") || responses.HasText(r, "step1.brand_colors")
				},
				Generate: func(r responses.Responses, c domain.GenerationContext) []domain.Item {
					desc := "Translate the brand guide into typography, color and spacing tokens."
					if colors := responses.Strings(r, "step1.brand_colors"); len(colors) > 0 {
						desc += " Brand colors: " + strings.Join(colors, ", ") + "."
					}
					return []domain.Item{due(todo("Apply brand guidelines to design system", desc, domain.PriorityMedium, "design", 120), c, 4)}
				},
			},
			{
				ID:           "web-domain",
				Name:         "Domain and analytics",
				Description:  "Set up the client domain, then connect analytics.",
				ResponseKeys: []string{"step3.domain_name", "step3.analytics_id"},
				Priority:     80,
				Condition: func(r responses.Responses) bool {
					return responses.HasText(r, "step3.domain_name")
				},
				Generate: func(r responses.Responses, c domain.GenerationContext) []domain.Item {
					domainName := responses.String(r, "step3.domain_name", "")
					items := []domain.Item{due(todo(
						"Configure domain and DNS for "+domainName,
						"Point DNS records at hosting, enable TLS and set up redirects for "+domainName+".",
						domain.PriorityHigh, "setup", 45), c, 3)}
					if responses.HasText(r, "step3.analytics_id") {
						items = append(items, due(todo(
							"Install analytics tracking",
							"Connect analytics property "+responses.String(r, "step3.analytics_id", "")+" to "+domainName+".",
							domain.PriorityMedium, "integration", 30), c, 7))
					}
					return items
				},
			},
			{
				ID:           "web-ecommerce",
				Name:         "Online store",
				Description:  "Client needs e-commerce features.",
				ResponseKeys: []string{"step2.features", "step2.payment_provider"},
				Priority:     75,
				Condition: func(r responses.Responses) bool {
					return responses.ArrayIncludes(r, "step2.features", "ecommerce")
				},
				Generate: func(r responses.Responses, c domain.GenerationContext) []domain.Item {
					provider := responses.String(r, "step2.payment_provider", "the payment provider")
					return []domain.Item{
						due(todo("Set up product catalog structure", "Define product types, variants and collections for the store.", domain.PriorityMedium, "setup", 120), c, 7),
						due(todo("Integrate "+provider+" checkout", "Connect checkout and webhooks for "+provider+".", domain.PriorityHigh, "integration", 180), c, 10),
					}
				},
			},
			{
				ID:           "web-page-copy",
				Name:         "Page copy",
				Description:  "Draft copy for each requested page, then review it with the client.",
				ResponseKeys: []string{"step2.pages"},
				Priority:     70,
				Condition: func(r responses.Responses) bool {
					return len(responses.Strings(r, "step2.pages")) > 0
				},
				Generate: func(r responses.Responses, c domain.GenerationContext) []domain.Item {
					var items []domain.Item
					for _, page := range responses.Strings(r, "step2.pages") {
						items = append(items, due(todo(
							fmt.Sprintf("Draft copy for %s page", page),
							fmt.Sprintf("Write headline, body and call to action for the %s page.", page),
							domain.PriorityMedium, "content", 90), c, 7))
					}
					items = append(items, due(todo(
						"Review page copy with client",
						"Walk the client through the drafted page copy and collect revisions.",
						domain.PriorityMedium, "review", 60), c, 10))
					return items
				},
			},
			{
				ID:           "web-competitors",
				Name:         "Competitor research",
				Description:  "Client listed competitor sites.",
				ResponseKeys: []string{"step2.competitor_sites"},
				Priority:     60,
				Condition: func(r responses.Responses) bool {
					return responses.HasText(r, "step2.competitor_sites")
				},
				Generate: func(r responses.Responses, c domain.GenerationContext) []domain.Item {
					sites := responses.Strings(r, "step2.competitor_sites")
					return []domain.Item{due(todo(
						"Analyze competitor websites",
						"Compare positioning, SEO and layout of: "+strings.Join(sites, ", ")+".",
						domain.PriorityLow, "", 90), c, 5)}
				},
			},
			{
				ID:           "web-kickoff",
				Name:         "Design kickoff",
				Description:  "Kickoff scheduled around the client's preferred meeting times.",
				ResponseKeys: []string{"step4.preferred_meeting_times"},
				Priority:     50,
				Condition: func(r responses.Responses) bool {
					return responses.HasText(r, "step4.preferred_meeting_times")
				},
				Generate: func(r responses.Responses, c domain.GenerationContext) []domain.Item {
					times := strings.Join(responses.Strings(r, "step4.preferred_meeting_times"), ", ")
					return []domain.Item{due(todo(
						KickoffTitle,
						"Book the design kickoff in one of the client's preferred slots: "+times+".",
						domain.PriorityHigh, "", 30), c, 2)}
				},
			},
		},
	}
}
