package entities

import "time"

type SenderType string

const (
	SenderCustomer SenderType = "customer"
	SenderBot      SenderType = "bot"
)

// Message is an append-only transcript row.
type Message struct {
	ID                string     `json:"id"`
	ConversationID    string     `json:"conversation_id"`
	Content           string     `json:"content"`
	SenderType        SenderType `json:"sender_type"`
	WhatsAppMessageID string     `json:"whatsapp_message_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// Chat roles understood by the completion endpoint.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRole maps a transcript sender to the role tag sent to the model.
func (s SenderType) ChatRole() string {
	if s == SenderBot {
		return RoleAssistant
	}
	return RoleUser
}
