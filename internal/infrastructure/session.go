package infrastructure

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"

	_ "modernc.org/sqlite"
)

// SessionStore keeps the WhatsApp device credentials in a local SQLite file
// so a restart or reconnect can skip pairing.
type SessionStore struct {
	container *sqlstore.Container
	log       zerolog.Logger

	mu     sync.Mutex
	device *store.Device
}

func NewSessionStore(ctx context.Context, dbPath string, log zerolog.Logger) (*SessionStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create session directory: %w", err)
		}
	}

	container, err := sqlstore.New(ctx, "sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)", WALogger(log, "wa-store"))
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return &SessionStore{container: container, log: log.With().Str("component", "session").Logger()}, nil
}

// Load returns the stored device, or a blank one that needs pairing.
func (s *SessionStore) Load(ctx context.Context) (*store.Device, error) {
	device, err := s.container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("load device: %w", err)
	}
	s.mu.Lock()
	s.device = device
	s.mu.Unlock()

	if device.ID == nil {
		s.log.Info().Msg("no stored credentials, pairing required")
	} else {
		s.log.Info().Str("jid", device.ID.String()).Msg("loaded stored credentials")
	}
	return device, nil
}

// Persist writes the current device credentials.
func (s *SessionStore) Persist(ctx context.Context) error {
	s.mu.Lock()
	device := s.device
	s.mu.Unlock()
	if device == nil || device.ID == nil {
		return nil
	}
	if err := device.Save(ctx); err != nil {
		return fmt.Errorf("save device: %w", err)
	}
	return nil
}

// Discard deletes the stored credentials after a logout.
func (s *SessionStore) Discard(ctx context.Context) error {
	s.mu.Lock()
	device := s.device
	s.device = nil
	s.mu.Unlock()
	if device == nil || device.ID == nil {
		return nil
	}
	if err := device.Delete(ctx); err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	s.log.Warn().Msg("stored credentials discarded")
	return nil
}

func (s *SessionStore) Close() error {
	return s.container.Close()
}
