package interfaces

import (
	"context"
	"time"

	"wa_relay/internal/entities"
)

// AIClient returns a reply for an assembled chat. Implementations never fail:
// errors are turned into a fallback reply.
type AIClient interface {
	Complete(ctx context.Context, messages []entities.ChatMessage) string
}

// Messenger is the send capability handed to the message pipeline.
type Messenger interface {
	SendMessage(ctx context.Context, to, content string) (string, error)
}

// Transport is one WhatsApp session. It is replaced wholesale on reconnect.
type Transport interface {
	Messenger
	Connect(ctx context.Context) error
	Disconnect()
	SetTyping(ctx context.Context, to string, typing bool)
	PhoneNumber() string
}

// TransportFactory builds a fresh transport from whatever credentials are
// currently stored.
type TransportFactory func(ctx context.Context) (Transport, error)

// SessionStore persists transport credentials across reconnects.
type SessionStore interface {
	Persist(ctx context.Context) error
	Discard(ctx context.Context) error
}

type BusinessStore interface {
	// FindConnectedBusiness returns the business bound to a connected
	// whatsapp_connections row matching any of the phone forms.
	FindConnectedBusiness(ctx context.Context, phones []string) (*entities.Business, error)
	ListActiveBusinesses(ctx context.Context, limit int) ([]entities.Business, error)
	MarkConnected(ctx context.Context, phones []string, at time.Time) error
}

type ConversationStore interface {
	FindActiveConversation(ctx context.Context, businessID, customerPhone string) (*entities.Conversation, error)
	// InsertConversation returns entities.ErrDuplicateActiveConversation when
	// another active conversation for the pair already exists.
	InsertConversation(ctx context.Context, conv *entities.Conversation) error
	// InsertMessage returns entities.ErrDuplicateMessage when the external
	// message id was already recorded.
	InsertMessage(ctx context.Context, msg *entities.Message) error
	TouchConversation(ctx context.Context, conversationID string, at time.Time) error
	// RecentMessages returns up to limit messages, newest first.
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]entities.Message, error)
}

// Deduper claims inbound message ids. Claim reports false when the id was
// already claimed.
type Deduper interface {
	Claim(ctx context.Context, messageID string) (bool, error)
}

// Scheduler runs f after d. The returned func cancels it.
type Scheduler func(d time.Duration, f func()) (cancel func())
