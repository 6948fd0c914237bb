package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresClient struct {
	Pool *pgxpool.Pool
}

func NewPostgresClient(ctx context.Context, connString string) (*PostgresClient, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	client := &PostgresClient{Pool: pool}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return client, nil
}

func (p *PostgresClient) Close() {
	p.Pool.Close()
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var migrations = []struct {
	name string
	sql  string
}{
	{"whatsapp_connections", `
		CREATE TABLE IF NOT EXISTS whatsapp_connections (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			phone_number TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL DEFAULT 'disconnected',
			connected_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`},
	{"businesses", `
		CREATE TABLE IF NOT EXISTS businesses (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			tone TEXT NOT NULL DEFAULT 'friendly',
			welcome_message TEXT,
			products JSONB NOT NULL DEFAULT '[]'::jsonb,
			faqs JSONB NOT NULL DEFAULT '[]'::jsonb,
			custom_instructions TEXT,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			whatsapp_connection_id UUID REFERENCES whatsapp_connections(id) ON DELETE SET NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`},
	{"conversations", `
		CREATE TABLE IF NOT EXISTS conversations (
			id UUID PRIMARY KEY,
			business_id UUID NOT NULL REFERENCES businesses(id) ON DELETE CASCADE,
			customer_phone TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			last_message_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`},
	{"conversations_one_active", `
		CREATE UNIQUE INDEX IF NOT EXISTS conversations_one_active_idx
			ON conversations (business_id, customer_phone)
			WHERE status = 'active';`},
	{"messages", `
		CREATE TABLE IF NOT EXISTS messages (
			id UUID PRIMARY KEY,
			seq BIGINT GENERATED ALWAYS AS IDENTITY,
			conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			content TEXT NOT NULL,
			sender_type TEXT NOT NULL,
			whatsapp_message_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`},
	{"messages_conversation_order", `
		CREATE INDEX IF NOT EXISTS messages_conversation_created_idx
			ON messages (conversation_id, created_at DESC, seq DESC);`},
	{"messages_inbound_unique", `
		CREATE UNIQUE INDEX IF NOT EXISTS messages_inbound_wa_id_idx
			ON messages (whatsapp_message_id)
			WHERE whatsapp_message_id IS NOT NULL AND sender_type = 'customer';`},
}

// Migrate creates the relay tables and indexes if they do not exist.
func Migrate(ctx context.Context, db execer) error {
	for _, m := range migrations {
		if _, err := db.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("create %s: %w", m.name, err)
		}
	}
	return nil
}
