package usecases

import (
	"fmt"
	"strings"

	"wa_relay/internal/entities"
)

var toneInstructions = map[entities.Tone]string{
	entities.ToneFriendly:     "Use a warm, friendly and approachable tone, like a helpful neighbour.",
	entities.ToneProfessional: "Use a professional and courteous tone. Be precise and businesslike.",
	entities.TonePlayful:      "Use a playful, upbeat tone. Light humour and emojis are welcome.",
	entities.ToneFormal:       "Use a formal, respectful tone. Avoid slang, contractions and emojis.",
}

// ToneInstruction returns the tone sentence for t, defaulting to friendly.
func ToneInstruction(t entities.Tone) string {
	if s, ok := toneInstructions[entities.Tone(strings.ToLower(strings.TrimSpace(string(t))))]; ok {
		return s
	}
	return toneInstructions[entities.ToneFriendly]
}

const closingGuidance = `Guidelines:
- Keep replies short and easy to read on a phone.
- If you are not sure about something, say so honestly.
- Never invent prices, products, policies or opening hours that are not listed above.
- If the customer needs something you cannot help with, offer to connect them with a member of the team.`

// BuildSystemPrompt renders the system instruction for a business. Sections
// whose source field is empty are left out entirely.
func BuildSystemPrompt(b *entities.Business) string {
	var sections []string

	intro := fmt.Sprintf("You are the customer support assistant for %s, replying to customers on WhatsApp.", strings.TrimSpace(b.Name))
	if desc := strings.TrimSpace(b.Description); desc != "" {
		intro += " About the business: " + desc
	}
	sections = append(sections, intro, ToneInstruction(b.Tone))

	if welcome := strings.TrimSpace(b.WelcomeMessage); welcome != "" {
		sections = append(sections, fmt.Sprintf("When a customer greets you for the first time, welcome them with: %q", welcome))
	}

	if lines := productLines(b.Products); len(lines) > 0 {
		sections = append(sections, "Products and services:\n"+strings.Join(lines, "\n"))
	}

	if len(b.FAQs) > 0 {
		sections = append(sections, strings.Join(append([]string{"Frequently asked questions:"}, faqLines(b.FAQs)...), "\n"))
	}

	if custom := strings.TrimSpace(b.CustomInstructions); custom != "" {
		sections = append(sections, "Additional instructions from the business:\n"+custom)
	}

	sections = append(sections, closingGuidance)
	return strings.Join(sections, "\n\n")
}

func productLines(products []entities.Product) []string {
	var lines []string
	for _, p := range products {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			continue
		}
		line := "- " + name
		if desc := strings.TrimSpace(p.Description); desc != "" {
			line += ": " + desc
		}
		if price := strings.TrimSpace(string(p.Price)); price != "" {
			line += " (price: " + price + ")"
		}
		lines = append(lines, line)
	}
	return lines
}

func faqLines(faqs []entities.FAQ) []string {
	var lines []string
	for _, f := range faqs {
		if q := strings.TrimSpace(f.Question); q != "" {
			lines = append(lines, "Q: "+q)
		}
		if a := strings.TrimSpace(f.Answer); a != "" {
			lines = append(lines, "A: "+a)
		}
	}
	return lines
}

// AssembleRequest orders the completion payload: system prompt, history
// oldest first, then the new customer message.
func AssembleRequest(systemPrompt string, history []entities.ChatMessage, newMessage string) []entities.ChatMessage {
	out := make([]entities.ChatMessage, 0, len(history)+2)
	out = append(out, entities.ChatMessage{Role: entities.RoleSystem, Content: systemPrompt})
	out = append(out, history...)
	out = append(out, entities.ChatMessage{Role: entities.RoleUser, Content: newMessage})
	return out
}
