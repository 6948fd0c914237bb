package usecases

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wa_relay/internal/entities"
)

func fullBusiness() *entities.Business {
	return &entities.Business{
		ID:             "biz-1",
		Name:           "Bean There",
		Description:    "Small-batch coffee roasters in Austin.",
		Tone:           entities.TonePlayful,
		WelcomeMessage: "Hey there, coffee friend!",
		Products: []entities.Product{
			{Name: "Latte", Description: "Espresso with steamed milk", Price: "4.50"},
			{Name: "Gift card"},
		},
		FAQs:               []entities.FAQ{{Question: "Do you deliver?", Answer: "Yes, within 5 miles."}},
		CustomInstructions: "Always mention the loyalty card.",
	}
}

func TestBuildSystemPromptIncludesPopulatedSections(t *testing.T) {
	prompt := BuildSystemPrompt(fullBusiness())

	assert.Contains(t, prompt, "Bean There")
	assert.Contains(t, prompt, "Small-batch coffee roasters in Austin.")
	assert.Contains(t, prompt, ToneInstruction(entities.TonePlayful))
	assert.Contains(t, prompt, `"Hey there, coffee friend!"`)
	assert.Contains(t, prompt, "- Latte: Espresso with steamed milk (price: 4.50)")
	assert.Contains(t, prompt, "- Gift card\n")
	assert.Contains(t, prompt, "Q: Do you deliver?\nA: Yes, within 5 miles.")
	assert.Contains(t, prompt, "Always mention the loyalty card.")
	assert.True(t, strings.HasSuffix(prompt, closingGuidance))
}

func TestBuildSystemPromptOmitsAbsentSections(t *testing.T) {
	prompt := BuildSystemPrompt(&entities.Business{Name: "Bare Shop"})

	assert.NotContains(t, prompt, "About the business")
	assert.NotContains(t, prompt, "welcome them")
	assert.NotContains(t, prompt, "Products and services")
	assert.NotContains(t, prompt, "Frequently asked questions")
	assert.NotContains(t, prompt, "Additional instructions")
	assert.NotContains(t, prompt, "\n\n\n")
	assert.Contains(t, prompt, ToneInstruction(entities.ToneFriendly))
}

func TestBuildSystemPromptFAQBlockIffFAQs(t *testing.T) {
	b := fullBusiness()
	assert.Contains(t, BuildSystemPrompt(b), "Frequently asked questions")

	b.FAQs = []entities.FAQ{{Question: "Do you open on Sundays?"}}
	prompt := BuildSystemPrompt(b)
	assert.Contains(t, prompt, "Frequently asked questions")
	assert.Contains(t, prompt, "Q: Do you open on Sundays?")
	assert.NotContains(t, prompt, "Q: Do you open on Sundays?\nA:")

	b.FAQs = nil
	assert.NotContains(t, BuildSystemPrompt(b), "Frequently asked questions")
}

func TestBuildSystemPromptWelcomeLineIffWelcome(t *testing.T) {
	b := fullBusiness()
	assert.Contains(t, BuildSystemPrompt(b), "welcome them with")

	b.WelcomeMessage = "   "
	assert.NotContains(t, BuildSystemPrompt(b), "welcome them with")
}

func TestToneInstructionDefaultsToFriendly(t *testing.T) {
	friendly := ToneInstruction(entities.ToneFriendly)
	assert.Equal(t, friendly, ToneInstruction(""))
	assert.Equal(t, friendly, ToneInstruction("sarcastic"))
	assert.Equal(t, ToneInstruction(entities.ToneFormal), ToneInstruction("FORMAL"))
	assert.NotEqual(t, friendly, ToneInstruction(entities.ToneProfessional))
}

func TestBuildSystemPromptIsDeterministic(t *testing.T) {
	assert.Equal(t, BuildSystemPrompt(fullBusiness()), BuildSystemPrompt(fullBusiness()))
}

func TestAssembleRequestOrder(t *testing.T) {
	history := []entities.ChatMessage{
		{Role: entities.RoleUser, Content: "Hi"},
		{Role: entities.RoleAssistant, Content: "Hello!"},
	}
	req := AssembleRequest("system text", history, "Are you open?")

	require.Len(t, req, 4)
	assert.Equal(t, entities.ChatMessage{Role: entities.RoleSystem, Content: "system text"}, req[0])
	assert.Equal(t, history, req[1:3])
	assert.Equal(t, entities.ChatMessage{Role: entities.RoleUser, Content: "Are you open?"}, req[3])
}
