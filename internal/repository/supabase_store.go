package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"

	"wa_relay/internal/entities"
)

// SupabaseStore implements the business and conversation stores on top of the
// Supabase REST API. It expects the same tables and indexes as the Postgres
// migrations.
type SupabaseStore struct {
	client *supabase.Client
}

func NewSupabaseStore(url, serviceRoleKey string) (*SupabaseStore, error) {
	if url == "" {
		return nil, errors.New("supabase url is required")
	}
	if serviceRoleKey == "" {
		return nil, errors.New("supabase service role key is required")
	}
	client, err := supabase.NewClient(url, serviceRoleKey, nil)
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &SupabaseStore{client: client}, nil
}

type businessRow struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	Description        *string            `json:"description"`
	Tone               *string            `json:"tone"`
	WelcomeMessage     *string            `json:"welcome_message"`
	Products           []entities.Product `json:"products"`
	FAQs               []entities.FAQ     `json:"faqs"`
	CustomInstructions *string            `json:"custom_instructions"`
	IsActive           bool               `json:"is_active"`
}

func (r businessRow) toEntity() entities.Business {
	return entities.Business{
		ID:                 r.ID,
		Name:               r.Name,
		Description:        deref(r.Description),
		Tone:               entities.Tone(deref(r.Tone)),
		WelcomeMessage:     deref(r.WelcomeMessage),
		Products:           r.Products,
		FAQs:               r.FAQs,
		CustomInstructions: deref(r.CustomInstructions),
		IsActive:           r.IsActive,
	}
}

type connectionRow struct {
	ID         string        `json:"id"`
	Businesses []businessRow `json:"businesses"`
}

func (s *SupabaseStore) FindConnectedBusiness(ctx context.Context, phones []string) (*entities.Business, error) {
	var rows []connectionRow
	_, err := s.client.From("whatsapp_connections").
		Select("id, businesses!businesses_whatsapp_connection_id_fkey(*)", "", false).
		In("phone_number", phones).
		Eq("status", string(entities.StatusConnected)).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("find connected business: %w", err)
	}
	for _, row := range rows {
		if len(row.Businesses) > 0 {
			b := row.Businesses[0].toEntity()
			return &b, nil
		}
	}
	return nil, entities.ErrNotFound
}

func (s *SupabaseStore) ListActiveBusinesses(ctx context.Context, limit int) ([]entities.Business, error) {
	var rows []businessRow
	_, err := s.client.From("businesses").
		Select("*", "", false).
		Eq("is_active", "true").
		Order("created_at", &postgrest.OrderOpts{Ascending: true}).
		Limit(limit, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("list active businesses: %w", err)
	}
	out := make([]entities.Business, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toEntity())
	}
	return out, nil
}

func (s *SupabaseStore) MarkConnected(ctx context.Context, phones []string, at time.Time) error {
	_, _, err := s.client.From("whatsapp_connections").
		Update(map[string]any{
			"status":       string(entities.StatusConnected),
			"connected_at": at.UTC().Format(time.RFC3339Nano),
		}, "minimal", "").
		In("phone_number", phones).
		Execute()
	if err != nil {
		return fmt.Errorf("mark connected: %w", err)
	}
	return nil
}

func (s *SupabaseStore) FindActiveConversation(ctx context.Context, businessID, customerPhone string) (*entities.Conversation, error) {
	var rows []entities.Conversation
	_, err := s.client.From("conversations").
		Select("*", "", false).
		Eq("business_id", businessID).
		Eq("customer_phone", customerPhone).
		Eq("status", string(entities.ConversationActive)).
		Order("created_at", &postgrest.OrderOpts{Ascending: true}).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("find active conversation: %w", err)
	}
	if len(rows) == 0 {
		return nil, entities.ErrNotFound
	}
	return &rows[0], nil
}

func (s *SupabaseStore) InsertConversation(ctx context.Context, conv *entities.Conversation) error {
	_, _, err := s.client.From("conversations").
		Insert(conv, false, "", "minimal", "").
		Execute()
	if isDuplicateKey(err) {
		return entities.ErrDuplicateActiveConversation
	}
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

type messageRow struct {
	ID                string    `json:"id"`
	ConversationID    string    `json:"conversation_id"`
	Content           string    `json:"content"`
	SenderType        string    `json:"sender_type"`
	WhatsAppMessageID *string   `json:"whatsapp_message_id"`
	CreatedAt         time.Time `json:"created_at"`
}

func (s *SupabaseStore) InsertMessage(ctx context.Context, msg *entities.Message) error {
	row := messageRow{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Content:        msg.Content,
		SenderType:     string(msg.SenderType),
		CreatedAt:      msg.CreatedAt,
	}
	if msg.WhatsAppMessageID != "" {
		row.WhatsAppMessageID = &msg.WhatsAppMessageID
	}
	_, _, err := s.client.From("messages").
		Insert(row, false, "", "minimal", "").
		Execute()
	if isDuplicateKey(err) {
		return entities.ErrDuplicateMessage
	}
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *SupabaseStore) TouchConversation(ctx context.Context, conversationID string, at time.Time) error {
	_, _, err := s.client.From("conversations").
		Update(map[string]any{"last_message_at": at.UTC().Format(time.RFC3339Nano)}, "minimal", "").
		Eq("id", conversationID).
		Execute()
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

func (s *SupabaseStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]entities.Message, error) {
	var rows []messageRow
	_, err := s.client.From("messages").
		Select("id, conversation_id, content, sender_type, whatsapp_message_id, created_at", "", false).
		Eq("conversation_id", conversationID).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(limit, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	out := make([]entities.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, entities.Message{
			ID:                r.ID,
			ConversationID:    r.ConversationID,
			Content:           r.Content,
			SenderType:        entities.SenderType(r.SenderType),
			WhatsAppMessageID: deref(r.WhatsAppMessageID),
			CreatedAt:         r.CreatedAt,
		})
	}
	return out, nil
}

// PostgREST reports constraint violations with the Postgres error code in
// the message text.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, uniqueViolation) || strings.Contains(msg, "duplicate key")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
