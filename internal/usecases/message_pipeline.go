package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"wa_relay/internal/entities"
	"wa_relay/internal/interfaces"
)

// UnavailableReply is sent when no business answers through this number.
const UnavailableReply = "Sorry, this service is not currently available."

// Pipeline outcomes, used for logs and metrics.
const (
	OutcomeIgnored     = "ignored"
	OutcomeDuplicate   = "duplicate"
	OutcomeUnavailable = "unavailable"
	OutcomeReplied     = "replied"
	OutcomeFailed      = "failed"
)

type MessageObserver interface {
	ObserveMessage(outcome string)
}

type typingIndicator interface {
	SetTyping(ctx context.Context, to string, typing bool)
}

type PipelineConfig struct {
	HistoryLimit int
	QueueSize    int
}

// MessagePipeline turns inbound WhatsApp messages into AI replies. Batches
// are queued and handled one message at a time by Run.
type MessagePipeline struct {
	resolver      *TenantResolver
	conversations *ConversationManager
	ai            interfaces.AIClient
	messenger     interfaces.Messenger
	dedupe        interfaces.Deduper
	observer      MessageObserver
	log           zerolog.Logger

	historyLimit int
	queue        chan []entities.InboundMessage
	stopped      chan struct{}
}

func NewMessagePipeline(
	resolver *TenantResolver,
	conversations *ConversationManager,
	ai interfaces.AIClient,
	messenger interfaces.Messenger,
	cfg PipelineConfig,
	log zerolog.Logger,
) *MessagePipeline {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	return &MessagePipeline{
		resolver:      resolver,
		conversations: conversations,
		ai:            ai,
		messenger:     messenger,
		log:           log.With().Str("component", "pipeline").Logger(),
		historyLimit:  cfg.HistoryLimit,
		queue:         make(chan []entities.InboundMessage, cfg.QueueSize),
		stopped:       make(chan struct{}),
	}
}

// WithDeduper enables claiming inbound message ids before handling.
func (p *MessagePipeline) WithDeduper(d interfaces.Deduper) *MessagePipeline {
	p.dedupe = d
	return p
}

func (p *MessagePipeline) WithObserver(o MessageObserver) *MessagePipeline {
	p.observer = o
	return p
}

// OnMessages queues a batch. It blocks while the queue is full and drops the
// batch only once Run has returned.
func (p *MessagePipeline) OnMessages(batch []entities.InboundMessage) {
	if len(batch) == 0 {
		return
	}
	select {
	case p.queue <- batch:
	case <-p.stopped:
		p.log.Warn().Int("messages", len(batch)).Msg("pipeline stopped, batch dropped")
	}
}

// Run drains the queue until ctx is done. A message already in flight is
// finished before Run returns.
func (p *MessagePipeline) Run(ctx context.Context) {
	defer close(p.stopped)
	work := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-p.queue:
			for _, msg := range batch {
				p.Handle(work, msg)
			}
		}
	}
}

// Handle runs one message through the pipeline and returns its outcome.
// It never panics or returns an error; failures are logged.
func (p *MessagePipeline) Handle(ctx context.Context, msg entities.InboundMessage) (outcome string) {
	log := p.log.With().Str("message_id", msg.ID).Str("customer", msg.SenderPhone).Logger()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("message handling panicked")
			outcome = OutcomeFailed
		}
		if p.observer != nil {
			p.observer.ObserveMessage(outcome)
		}
	}()

	if msg.IsFromMe || msg.IsGroup || msg.IsBroadcast {
		return OutcomeIgnored
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return OutcomeIgnored
	}

	if p.dedupe != nil && msg.ID != "" {
		fresh, err := p.dedupe.Claim(ctx, msg.ID)
		if err != nil {
			log.Warn().Err(err).Msg("dedupe unavailable, continuing")
		} else if !fresh {
			log.Info().Msg("duplicate delivery skipped")
			return OutcomeDuplicate
		}
	}

	business, err := p.resolver.Resolve(ctx, msg.ChannelPhone)
	if err != nil {
		if !errors.Is(err, entities.ErrBusinessNotFound) {
			log.Error().Err(err).Msg("business lookup failed")
		}
		if _, sendErr := p.messenger.SendMessage(ctx, msg.ChatID, UnavailableReply); sendErr != nil {
			log.Error().Err(sendErr).Msg("failed to send unavailable reply")
		}
		log.Info().Str("outcome", OutcomeUnavailable).Msg("no business for channel")
		return OutcomeUnavailable
	}
	log = log.With().Str("business_id", business.ID).Logger()

	conv, err := p.conversations.GetOrCreateActive(ctx, business.ID, msg.SenderPhone)
	if err != nil {
		log.Error().Err(err).Msg("failed to get or create conversation")
		return OutcomeFailed
	}
	log = log.With().Str("conversation_id", conv.ID).Logger()

	inbound, err := p.conversations.AppendMessage(ctx, conv.ID, text, entities.SenderCustomer, msg.ID)
	if errors.Is(err, entities.ErrDuplicateMessage) {
		log.Info().Msg("message already recorded, skipped")
		return OutcomeDuplicate
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to save customer message")
		return OutcomeFailed
	}

	if err := p.reply(ctx, msg, business, conv, inbound, text); err != nil {
		log.Error().Err(err).Msg("reply failed")
		return OutcomeFailed
	}
	log.Info().Str("outcome", OutcomeReplied).Msg("message handled")
	return OutcomeReplied
}

func (p *MessagePipeline) reply(ctx context.Context, msg entities.InboundMessage, business *entities.Business, conv *entities.Conversation, inbound *entities.Message, text string) error {
	history, err := p.conversations.GetRecentHistory(ctx, conv.ID, p.historyLimit, inbound.ID)
	if err != nil {
		p.log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("history unavailable, replying without it")
		history = nil
	}
	request := AssembleRequest(BuildSystemPrompt(business), history, text)

	typing, _ := p.messenger.(typingIndicator)
	if typing != nil {
		typing.SetTyping(ctx, msg.ChatID, true)
	}
	answer := p.ai.Complete(ctx, request)
	if typing != nil {
		typing.SetTyping(ctx, msg.ChatID, false)
	}

	outboundID, err := p.messenger.SendMessage(ctx, msg.ChatID, answer)
	if err != nil {
		return fmt.Errorf("send reply: %w", err)
	}

	if _, err := p.conversations.AppendMessage(ctx, conv.ID, answer, entities.SenderBot, outboundID); err != nil {
		return fmt.Errorf("save bot reply %s: %w", outboundID, err)
	}
	return nil
}
