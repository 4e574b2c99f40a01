package app_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"medichat/internal/app"
)

func TestSuggestFollowUpsKeywordMatch(t *testing.T) {
	suggestions := app.SuggestFollowUps("Your symptoms could relate to the medication you mentioned.")
	assert.Contains(t, suggestions, "How long have you been experiencing these symptoms?")
	assert.Contains(t, suggestions, "Are you currently taking any other medications?")
}

func TestSuggestFollowUpsCapped(t *testing.T) {
	reply := "The report shows your symptoms may respond to medication; your doctor can adjust your diet plan."
	suggestions := app.SuggestFollowUps(reply)
	assert.Len(t, suggestions, 3)
}

func TestSuggestFollowUpsGenericFallback(t *testing.T) {
	suggestions := app.SuggestFollowUps("Glad to help.")
	assert.NotEmpty(t, suggestions)
	assert.Contains(t, suggestions, "Is there anything else you'd like to know?")
}

func TestSuggestFollowUpsEmptyReply(t *testing.T) {
	assert.Empty(t, app.SuggestFollowUps("   "))
}
