package entities

import "time"

type ConversationStatus string

const (
	ConversationActive ConversationStatus = "active"
	ConversationClosed ConversationStatus = "closed"
)

type Conversation struct {
	ID            string             `json:"id"`
	BusinessID    string             `json:"business_id"`
	CustomerPhone string             `json:"customer_phone"`
	Status        ConversationStatus `json:"status"`
	LastMessageAt time.Time          `json:"last_message_at"`
	CreatedAt     time.Time          `json:"created_at"`
}
