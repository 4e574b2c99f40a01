package app

import "strings"

const maxFollowUps = 3

type followUpRule struct {
	keywords []string
	question string
}

// Rules are matched against the assistant reply; first hit per rule wins.
var followUpRules = []followUpRule{
	{
		keywords: []string{"symptom", "pain", "fever", "cough", "fatigue"},
		question: "How long have you been experiencing these symptoms?",
	},
	{
		keywords: []string{"medication", "medicine", "prescription", "dose", "tablet"},
		question: "Are you currently taking any other medications?",
	},
	{
		keywords: []string{"report", "test", "result", "lab", "scan"},
		question: "Would you like me to explain any part of the report in more detail?",
	},
	{
		keywords: []string{"doctor", "clinician", "specialist", "appointment", "hospital"},
		question: "Would you like help preparing questions for your doctor?",
	},
	{
		keywords: []string{"diet", "exercise", "sleep", "lifestyle", "weight"},
		question: "Could you describe your typical daily routine?",
	},
}

var genericFollowUps = []string{
	"Can you tell me more about what's concerning you?",
	"Is there anything else you'd like to know?",
}

// SuggestFollowUps derives up to three candidate next questions from the
// latest assistant reply. The output is ephemeral and never persisted.
func SuggestFollowUps(assistantReply string) []string {
	reply := strings.ToLower(assistantReply)
	if strings.TrimSpace(reply) == "" {
		return nil
	}

	var suggestions []string
	for _, rule := range followUpRules {
		if len(suggestions) == maxFollowUps {
			return suggestions
		}
		for _, kw := range rule.keywords {
			if strings.Contains(reply, kw) {
				suggestions = append(suggestions, rule.question)
				break
			}
		}
	}

	if len(suggestions) == 0 {
		return append([]string(nil), genericFollowUps...)
	}
	return suggestions
}
