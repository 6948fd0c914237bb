package infrastructure

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"wa_relay/internal/interfaces"
)

type typingSetter interface {
	SetTyping(ctx context.Context, to string, typing bool)
}

type chatLimiter struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// MessageRateLimiter paces outbound sends per chat. Sends wait for a token
// instead of being dropped, so a burst of replies to one customer is spread
// out rather than lost.
type MessageRateLimiter struct {
	next        interfaces.Messenger
	rate        rate.Limit
	burst       int
	idleTimeout time.Duration

	mu          sync.Mutex
	chats       map[string]*chatLimiter
	lastCleanup time.Time
}

func NewMessageRateLimiter(next interfaces.Messenger, perSecond float64, burst int) *MessageRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &MessageRateLimiter{
		next:        next,
		rate:        rate.Limit(perSecond),
		burst:       burst,
		idleTimeout: 10 * time.Minute,
		chats:       make(map[string]*chatLimiter),
		lastCleanup: time.Now(),
	}
}

func (rl *MessageRateLimiter) SendMessage(ctx context.Context, to, content string) (string, error) {
	if err := rl.limiterFor(to).Wait(ctx); err != nil {
		return "", err
	}
	return rl.next.SendMessage(ctx, to, content)
}

// SetTyping passes through when the wrapped messenger supports it.
func (rl *MessageRateLimiter) SetTyping(ctx context.Context, to string, typing bool) {
	if t, ok := rl.next.(typingSetter); ok {
		t.SetTyping(ctx, to, typing)
	}
}

func (rl *MessageRateLimiter) limiterFor(chat string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastCleanup) > rl.idleTimeout {
		for key, c := range rl.chats {
			if now.Sub(c.lastUsed) > rl.idleTimeout {
				delete(rl.chats, key)
			}
		}
		rl.lastCleanup = now
	}

	c, ok := rl.chats[chat]
	if !ok {
		c = &chatLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.chats[chat] = c
	}
	c.lastUsed = now
	return c.limiter
}
