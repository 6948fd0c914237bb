package usecases

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"wa_relay/internal/entities"
)

type fakeBusinessStore struct {
	mu        sync.Mutex
	bindings  map[string]*entities.Business // phone -> business of a connected binding
	active    []entities.Business
	findErr   error
	marked    [][]string
	markErr   error
	findCalls int
}

func (f *fakeBusinessStore) FindConnectedBusiness(ctx context.Context, phones []string) (*entities.Business, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findCalls++
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, p := range phones {
		if b, ok := f.bindings[p]; ok {
			return b, nil
		}
	}
	return nil, entities.ErrNotFound
}

func (f *fakeBusinessStore) ListActiveBusinesses(ctx context.Context, limit int) ([]entities.Business, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.active) > limit {
		return f.active[:limit], nil
	}
	return f.active, nil
}

func (f *fakeBusinessStore) MarkConnected(ctx context.Context, phones []string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, phones)
	return f.markErr
}

// fakeConversationStore enforces the same uniqueness rules as the database.
type fakeConversationStore struct {
	mu            sync.Mutex
	conversations []entities.Conversation
	messages      []entities.Message
	seq           int

	insertMsgErr error
	touchErr     error
	historyErr   error
	// release, when set, holds every lookup until it is closed so that
	// concurrent first contacts race on the insert.
	release chan struct{}
}

func (f *fakeConversationStore) FindActiveConversation(ctx context.Context, businessID, customerPhone string) (*entities.Conversation, error) {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conversations {
		if c.BusinessID == businessID && c.CustomerPhone == customerPhone && c.Status == entities.ConversationActive {
			cp := c
			return &cp, nil
		}
	}
	return nil, entities.ErrNotFound
}

func (f *fakeConversationStore) InsertConversation(ctx context.Context, conv *entities.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conversations {
		if c.BusinessID == conv.BusinessID && c.CustomerPhone == conv.CustomerPhone && c.Status == entities.ConversationActive {
			return entities.ErrDuplicateActiveConversation
		}
	}
	f.conversations = append(f.conversations, *conv)
	return nil
}

func (f *fakeConversationStore) InsertMessage(ctx context.Context, msg *entities.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertMsgErr != nil {
		return f.insertMsgErr
	}
	if msg.WhatsAppMessageID != "" && msg.SenderType == entities.SenderCustomer {
		for _, m := range f.messages {
			if m.WhatsAppMessageID == msg.WhatsAppMessageID && m.SenderType == entities.SenderCustomer {
				return entities.ErrDuplicateMessage
			}
		}
	}
	f.seq++
	// distinct, increasing timestamps keep ordering deterministic
	stored := *msg
	stored.CreatedAt = time.Unix(int64(f.seq), 0).UTC()
	f.messages = append(f.messages, stored)
	return nil
}

func (f *fakeConversationStore) TouchConversation(ctx context.Context, conversationID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.touchErr != nil {
		return f.touchErr
	}
	for i := range f.conversations {
		if f.conversations[i].ID == conversationID {
			f.conversations[i].LastMessageAt = at
			return nil
		}
	}
	return errors.New("no such conversation")
}

func (f *fakeConversationStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]entities.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	var out []entities.Message
	for _, m := range f.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeConversationStore) messagesBy(sender entities.SenderType) []entities.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []entities.Message
	for _, m := range f.messages {
		if m.SenderType == sender {
			out = append(out, m)
		}
	}
	return out
}

type sentMessage struct {
	to, content string
}

type fakeMessenger struct {
	mu      sync.Mutex
	sent    []sentMessage
	sendErr error
	typing  []bool
}

func (f *fakeMessenger) SendMessage(ctx context.Context, to, content string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, sentMessage{to: to, content: content})
	return "OUT-" + string(rune('0'+len(f.sent))), nil
}

func (f *fakeMessenger) SetTyping(ctx context.Context, to string, typing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, typing)
}

type fakeAI struct {
	mu       sync.Mutex
	requests [][]entities.ChatMessage
	reply    string
}

func (f *fakeAI) Complete(ctx context.Context, messages []entities.ChatMessage) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, messages)
	return f.reply
}

type fakeDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (f *fakeDeduper) Claim(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	if f.seen[id] {
		return false, nil
	}
	f.seen[id] = true
	return true, nil
}
