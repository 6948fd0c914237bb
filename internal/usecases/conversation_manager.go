package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"wa_relay/internal/entities"
	"wa_relay/internal/interfaces"
)

// DefaultHistoryLimit is the history window used when none is given.
const DefaultHistoryLimit = 10

// ConversationManager owns the single active conversation per
// (business, customer) and its append-only transcript.
type ConversationManager struct {
	store interfaces.ConversationStore
	log   zerolog.Logger
	now   func() time.Time
}

func NewConversationManager(store interfaces.ConversationStore, log zerolog.Logger) *ConversationManager {
	return &ConversationManager{
		store: store,
		log:   log.With().Str("component", "conversation").Logger(),
		now:   time.Now,
	}
}

// GetOrCreateActive returns the active conversation for the pair, creating it
// if needed. A concurrent creator that loses the insert re-reads the winner.
func (m *ConversationManager) GetOrCreateActive(ctx context.Context, businessID, customerPhone string) (*entities.Conversation, error) {
	conv, err := m.store.FindActiveConversation(ctx, businessID, customerPhone)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, entities.ErrNotFound) {
		return nil, err
	}

	now := m.now().UTC()
	conv = &entities.Conversation{
		ID:            uuid.NewString(),
		BusinessID:    businessID,
		CustomerPhone: customerPhone,
		Status:        entities.ConversationActive,
		LastMessageAt: now,
		CreatedAt:     now,
	}
	err = m.store.InsertConversation(ctx, conv)
	if err == nil {
		m.log.Info().Str("conversation_id", conv.ID).Str("business_id", businessID).Msg("conversation created")
		return conv, nil
	}
	if !errors.Is(err, entities.ErrDuplicateActiveConversation) {
		return nil, err
	}

	winner, err := m.store.FindActiveConversation(ctx, businessID, customerPhone)
	if err != nil {
		return nil, fmt.Errorf("re-read active conversation after conflict: %w", err)
	}
	return winner, nil
}

// AppendMessage inserts a transcript row and bumps the conversation's
// last-activity time. A failed bump is logged; the message stays saved.
func (m *ConversationManager) AppendMessage(ctx context.Context, conversationID, content string, sender entities.SenderType, externalID string) (*entities.Message, error) {
	msg := &entities.Message{
		ID:                uuid.NewString(),
		ConversationID:    conversationID,
		Content:           content,
		SenderType:        sender,
		WhatsAppMessageID: externalID,
		CreatedAt:         m.now().UTC(),
	}
	if err := m.store.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}
	if err := m.store.TouchConversation(ctx, conversationID, msg.CreatedAt); err != nil {
		m.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("failed to update last_message_at")
	}
	return msg, nil
}

// GetRecentHistory returns up to limit messages oldest first, mapped to chat
// roles. Messages whose ids are in exclude are skipped. A non-positive limit
// means DefaultHistoryLimit.
func (m *ConversationManager) GetRecentHistory(ctx context.Context, conversationID string, limit int, exclude ...string) ([]entities.ChatMessage, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := m.store.RecentMessages(ctx, conversationID, limit+len(exclude))
	if err != nil {
		return nil, err
	}

	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}

	// rows are newest first
	picked := make([]entities.Message, 0, limit)
	for _, row := range rows {
		if _, ok := skip[row.ID]; ok {
			continue
		}
		picked = append(picked, row)
		if len(picked) == limit {
			break
		}
	}

	history := make([]entities.ChatMessage, 0, len(picked))
	for i := len(picked) - 1; i >= 0; i-- {
		history = append(history, entities.ChatMessage{
			Role:    picked[i].SenderType.ChatRole(),
			Content: picked[i].Content,
		})
	}
	return history, nil
}
