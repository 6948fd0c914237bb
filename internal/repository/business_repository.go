package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"wa_relay/internal/entities"
)

// BusinessRepository reads tenant configuration and WhatsApp bindings.
type BusinessRepository struct {
	db dbtx
}

func NewBusinessRepository(db dbtx) *BusinessRepository {
	return &BusinessRepository{db: db}
}

const businessColumns = `b.id, b.name, COALESCE(b.description, ''), COALESCE(b.tone, ''),
	COALESCE(b.welcome_message, ''), b.products, b.faqs, COALESCE(b.custom_instructions, ''), b.is_active`

func (r *BusinessRepository) FindConnectedBusiness(ctx context.Context, phones []string) (*entities.Business, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+businessColumns+`
		FROM whatsapp_connections c
		JOIN businesses b ON b.whatsapp_connection_id = c.id
		WHERE c.phone_number = ANY($1) AND c.status = 'connected'
		ORDER BY c.connected_at DESC NULLS LAST
		LIMIT 1`, phones)

	b, err := scanBusiness(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, entities.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find connected business: %w", err)
	}
	return b, nil
}

func (r *BusinessRepository) ListActiveBusinesses(ctx context.Context, limit int) ([]entities.Business, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+businessColumns+`
		FROM businesses b
		WHERE b.is_active
		ORDER BY b.created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list active businesses: %w", err)
	}
	defer rows.Close()

	var out []entities.Business
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, fmt.Errorf("scan business: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (r *BusinessRepository) MarkConnected(ctx context.Context, phones []string, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE whatsapp_connections
		SET status = 'connected', connected_at = $2
		WHERE phone_number = ANY($1)`, phones, at)
	if err != nil {
		return fmt.Errorf("mark connected: %w", err)
	}
	return nil
}

func scanBusiness(row pgx.Row) (*entities.Business, error) {
	var (
		b             entities.Business
		tone          string
		products, faq []byte
	)
	if err := row.Scan(&b.ID, &b.Name, &b.Description, &tone, &b.WelcomeMessage,
		&products, &faq, &b.CustomInstructions, &b.IsActive); err != nil {
		return nil, err
	}
	b.Tone = entities.Tone(tone)
	if len(products) > 0 {
		if err := json.Unmarshal(products, &b.Products); err != nil {
			return nil, fmt.Errorf("decode products: %w", err)
		}
	}
	if len(faq) > 0 {
		if err := json.Unmarshal(faq, &b.FAQs); err != nil {
			return nil, fmt.Errorf("decode faqs: %w", err)
		}
	}
	return &b, nil
}
