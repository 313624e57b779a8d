package rules

import (
	"fmt"

	"onboardline/internal/domain"
	"onboardline/internal/responses"
)

func voiceAISet() RuleSet {
	return RuleSet{
		Name:     SetVoiceAI,
		Keywords: []string{"voice", "ai", "campaign", "calling", "outbound"},
		Rules: []Rule{
			{
				ID:           "voice-calendar-integration",
				Name:         "Calendar integration",
				Description:  "Appointment-setting campaigns book into the client's calendar.",
				ResponseKeys: []string{"step2.primary_goal", "step2.calendar_system"},
				Priority:     100,
				Condition: func(r responses.Responses) bool {
					return responses.Equals(r, "step2.primary_goal", "appointment_setting") &&
						responses.HasText(r, "step2.calendar_system")
				},
				Generate: func(r responses.Responses, c domain.GenerationContext) []domain.Item {
					cal := responses.String(r, "step2.calendar_system", "")
					return []domain.Item{due(todo(
						fmt.Sprintf("Integrate %s calendar for appointment booking", cal),
						fmt.Sprintf("Connect the voice agent to %s so qualified calls can book appointments directly.", cal),
						domain.PriorityHigh, "integration", 120), c, 3)}
				},
			},
			{
				ID:           "voice-caller-id",
				Name:         "Caller ID provisioning",
				Description:  "Provision the outbound number the campaign calls from.",
				ResponseKeys: []string{"step1.phone_number", "step1.area_codes"},
				Priority:     95,
				Condition: func(r responses.Responses) bool {
					return responses.HasText(r, "step1.phone_number") || responses.HasText(r, "step1.area_codes")
				},
				Generate: func(r responses.Responses, c domain.GenerationContext) []domain.Item {
					return []domain.Item{due(todo(
						"Provision outbound caller ID",
						"Register and verify the outbound number; configure CNAM and spam labeling checks.",
						domain.PriorityHigh, "setup", 45), c, 2)}
				},
			},
			{
				ID:           "voice-compliance",
				Name:         "Calling compliance",
				Description:  "Any outbound campaign needs consent and do-not-call checks.",
				ResponseKeys: []string{"step2.primary_goal"},
				Priority:     90,
				Condition: func(r responses.Responses) bool {
					return responses.HasText(r, "step2.primary_goal")
				},
				Generate: func(r responses.Responses, c domain.GenerationContext) []domain.Item {
					return []domain.Item{due(todo(
						"Verify calling compliance and DNC scrubbing",
						"Confirm consent records, calling windows and do-not-call list scrubbing before any dial.",
						domain.PriorityHigh, "", 60), c, 2)}
				},
			},
			{
				ID:           "voice-script",
				Name:         "Call script",
				Description:  "Draft the agent script, then review it with the client.",
				ResponseKeys: []string{"step3.call_script", "step3.talking_points"},
				Priority:     85,
				Condition: func(r responses.Responses) bool {
					return responses.HasText(r, "step3.call_script") || responses.HasText(r, "step3.talking_points")
				},
				Generate: func(r responses.Responses, c domain.GenerationContext) []domain.Item {
					draft := "Turn the client's talking points into a conversational agent script with objection handling."
					if responses.HasText(r, "step3.call_script") {
						draft = "Adapt the client-provided call script for the voice agent, adding objection handling and fallbacks."
					}
					return []domain.Item{
						due(todo("Draft voice agent call script", draft, domain.PriorityHigh, "content", 120), c, 3),
						due(todo("Review call script with client", "Run through the script with the client and capture approval.", domain.PriorityMedium, "review", 45), c, 5),
					}
				},
			},
			{
				ID:           "voice-lead-list",
				Name:         "Lead list import",
				Description:  "Import the uploaded lead list and sync it with the CRM.",
				ResponseKeys: []string{"step3.lead_list", "step2.crm_system"},
				Priority:     80,
				Condition: func(r responses.Responses) bool {
					return responses.HasFiles(r, "step3.lead_list")
				},
				Generate: func(r responses.Responses, c domain.GenerationContext) []domain.Item {
					items := []domain.Item{due(todo(
						"Import and validate lead list",
						"Normalize phone numbers, remove duplicates and flag invalid rows in the uploaded lead list.",
						domain.PriorityHigh, "setup", 60), c, 2)}
					if crm := responses.String(r, "step2.crm_system", ""); crm != "" {
						items = append(items, due(todo(
							"Sync lead list with "+crm,
							"Map lead fields to "+crm+" and push call outcomes back after each dial.",
							domain.PriorityMedium, "integration", 90), c, 4))
					}
					return items
				},
			},
			{
				ID:           "voice-profile",
				Name:         "Voice profile",
				Description:  "Configure the agent voice the client picked.",
				ResponseKeys: []string{"step3.voice_preference"},
				Priority:     60,
				Condition: func(r responses.Responses) bool {
					return responses.HasText(r, "step3.voice_preference")
				},
				Generate: func(r responses.Responses, c domain.GenerationContext) []domain.Item {
					return []domain.Item{due(todo(
						"Configure AI voice profile",
						"Set up the "+responses.String(r, "step3.voice_preference", "")+" voice and tune pacing for the campaign.",
						domain.PriorityMedium, "setup", 30), c, 4)}
				},
			},
			{
				ID:           "voice-daily-volume",
				Name:         "Dialing capacity",
				Description:  "Size concurrency for the requested daily call volume.",
				ResponseKeys: []string{"step2.daily_call_volume"},
				Priority:     55,
				Condition: func(r responses.Responses) bool {
					return responses.Int(r, "step2.daily_call_volume", 0) > 0
				},
				Generate: func(r responses.Responses, c domain.GenerationContext) []domain.Item {
					n := responses.Int(r, "step2.daily_call_volume", 0)
					prio := domain.PriorityMedium
					if n >= 1000 {
						prio = domain.PriorityHigh
					}
					return []domain.Item{due(todo(
						"Plan dialing capacity",
						fmt.Sprintf("Size concurrent lines and calling windows for %d calls per day.", n),
						prio, "", 30), c, 4)}
				},
			},
		},
	}
}
