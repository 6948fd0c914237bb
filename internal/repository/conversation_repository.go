package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"wa_relay/internal/entities"
)

// ConversationRepository stores conversations and their transcript.
type ConversationRepository struct {
	db dbtx
}

func NewConversationRepository(db dbtx) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func (r *ConversationRepository) FindActiveConversation(ctx context.Context, businessID, customerPhone string) (*entities.Conversation, error) {
	var (
		c      entities.Conversation
		status string
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, business_id, customer_phone, status, last_message_at, created_at
		FROM conversations
		WHERE business_id = $1 AND customer_phone = $2 AND status = 'active'
		LIMIT 1`, businessID, customerPhone).
		Scan(&c.ID, &c.BusinessID, &c.CustomerPhone, &status, &c.LastMessageAt, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entities.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find active conversation: %w", err)
	}
	c.Status = entities.ConversationStatus(status)
	return &c, nil
}

// InsertConversation relies on the partial unique index over active
// conversations: a conflict inserts nothing and returns no row.
func (r *ConversationRepository) InsertConversation(ctx context.Context, conv *entities.Conversation) error {
	var id string
	err := r.db.QueryRow(ctx, `
		INSERT INTO conversations (id, business_id, customer_phone, status, last_message_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (business_id, customer_phone) WHERE status = 'active' DO NOTHING
		RETURNING id`,
		conv.ID, conv.BusinessID, conv.CustomerPhone, string(conv.Status), conv.LastMessageAt, conv.CreatedAt).
		Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
		return entities.ErrDuplicateActiveConversation
	}
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (r *ConversationRepository) InsertMessage(ctx context.Context, msg *entities.Message) error {
	var externalID any
	if msg.WhatsAppMessageID != "" {
		externalID = msg.WhatsAppMessageID
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, content, sender_type, whatsapp_message_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.ConversationID, msg.Content, string(msg.SenderType), externalID, msg.CreatedAt)
	if isUniqueViolation(err) {
		return entities.ErrDuplicateMessage
	}
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *ConversationRepository) TouchConversation(ctx context.Context, conversationID string, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE conversations SET last_message_at = $2 WHERE id = $1`, conversationID, at)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

func (r *ConversationRepository) RecentMessages(ctx context.Context, conversationID string, limit int) ([]entities.Message, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, conversation_id, content, sender_type, COALESCE(whatsapp_message_id, ''), created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT $2`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var out []entities.Message
	for rows.Next() {
		var (
			m      entities.Message
			sender string
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Content, &sender, &m.WhatsAppMessageID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.SenderType = entities.SenderType(sender)
		out = append(out, m)
	}
	return out, rows.Err()
}
