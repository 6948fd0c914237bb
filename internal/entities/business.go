package entities

import (
	"encoding/json"
	"strconv"
	"strings"
)

type Tone string

const (
	ToneFriendly     Tone = "friendly"
	ToneProfessional Tone = "professional"
	TonePlayful      Tone = "playful"
	ToneFormal       Tone = "formal"
)

// Business is a tenant configuration. It is provisioned by the admin surface
// and read-only here.
type Business struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Description        string    `json:"description"`
	Tone               Tone      `json:"tone"`
	WelcomeMessage     string    `json:"welcome_message"`
	Products           []Product `json:"products"`
	FAQs               []FAQ     `json:"faqs"`
	CustomInstructions string    `json:"custom_instructions"`
	IsActive           bool      `json:"is_active"`
}

type Product struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       Price  `json:"price"`
}

type FAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Price keeps whatever the admin typed. Stored rows carry either a JSON
// number or a string such as "$12 / month".
type Price string

func (p *Price) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == "" {
		*p = ""
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = Price(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if f, err := strconv.ParseFloat(n.String(), 64); err == nil {
		*p = Price(strconv.FormatFloat(f, 'f', -1, 64))
		return nil
	}
	*p = Price(n.String())
	return nil
}

type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
)
