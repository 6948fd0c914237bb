package infrastructure

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"wa_relay/internal/entities"
	"wa_relay/internal/interfaces"
)

// LifecycleSink receives session state changes.
type LifecycleSink interface {
	OnConnectionUpdate(update entities.ConnectionUpdate)
	OnCredentialsUpdate()
}

// MessageSink receives inbound message batches.
type MessageSink interface {
	OnMessages(batch []entities.InboundMessage)
}

// WhatsAppClient is one whatsmeow session exposed as an interfaces.Transport.
type WhatsAppClient struct {
	Client   *whatsmeow.Client
	sink     LifecycleSink
	messages MessageSink
	log      zerolog.Logger

	stopQR context.CancelFunc
	mu     sync.Mutex
}

// NewWhatsAppFactory returns a factory that builds a fresh client from the
// credentials currently held by the session store.
func NewWhatsAppFactory(sessions *SessionStore, sink LifecycleSink, messages MessageSink, log zerolog.Logger) interfaces.TransportFactory {
	return func(ctx context.Context) (interfaces.Transport, error) {
		device, err := sessions.Load(ctx)
		if err != nil {
			return nil, err
		}
		client := whatsmeow.NewClient(device, WALogger(log, "wa-client"))
		// Reconnects are owned by the lifecycle controller.
		client.EnableAutoReconnect = false

		w := &WhatsAppClient{
			Client:   client,
			sink:     sink,
			messages: messages,
			log:      log.With().Str("component", "whatsapp").Logger(),
		}
		client.AddEventHandler(w.handleEvent)
		return w, nil
	}
}

func (w *WhatsAppClient) Connect(ctx context.Context) error {
	if w.Client.Store.ID != nil {
		return w.Client.Connect()
	}

	qrCtx, cancel := context.WithCancel(ctx)
	qrChan, err := w.Client.GetQRChannel(qrCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("get qr channel: %w", err)
	}
	w.mu.Lock()
	w.stopQR = cancel
	w.mu.Unlock()

	if err := w.Client.Connect(); err != nil {
		cancel()
		return err
	}

	go func() {
		for evt := range qrChan {
			switch evt.Event {
			case whatsmeow.QRChannelEventCode:
				w.sink.OnConnectionUpdate(entities.ConnectionUpdate{
					State:            entities.StatusConnecting,
					PairingChallenge: evt.Code,
				})
			case whatsmeow.QRChannelSuccess.Event:
				w.log.Info().Msg("pairing succeeded")
			case whatsmeow.QRChannelTimeout.Event:
				w.log.Warn().Msg("pairing timed out")
				w.sink.OnConnectionUpdate(entities.ConnectionUpdate{
					State:       entities.StatusDisconnected,
					CloseReason: entities.CloseTransient,
				})
			default:
				w.log.Debug().Str("event", evt.Event).Msg("login event")
			}
		}
	}()
	return nil
}

func (w *WhatsAppClient) Disconnect() {
	w.mu.Lock()
	if w.stopQR != nil {
		w.stopQR()
		w.stopQR = nil
	}
	w.mu.Unlock()
	w.Client.RemoveEventHandlers()
	w.Client.Disconnect()
}

// PhoneNumber is the number of the paired account, empty before pairing.
func (w *WhatsAppClient) PhoneNumber() string {
	if w.Client == nil || w.Client.Store == nil || w.Client.Store.ID == nil {
		return ""
	}
	return w.Client.Store.ID.User
}

func (w *WhatsAppClient) SendMessage(ctx context.Context, to, content string) (string, error) {
	jid, err := parseJID(to)
	if err != nil {
		return "", err
	}
	resp, err := w.Client.SendMessage(ctx, jid, &waProto.Message{
		Conversation: &content,
	})
	if err != nil {
		return "", err
	}
	return string(resp.ID), nil
}

// SetTyping toggles the composing indicator. Failures are ignored.
func (w *WhatsAppClient) SetTyping(ctx context.Context, to string, typing bool) {
	jid, err := parseJID(to)
	if err != nil {
		return
	}
	state := types.ChatPresencePaused
	if typing {
		state = types.ChatPresenceComposing
	}
	if err := w.Client.SendChatPresence(ctx, jid, state, types.ChatPresenceMediaText); err != nil {
		w.log.Debug().Err(err).Msg("chat presence failed")
	}
}

func (w *WhatsAppClient) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		if msg, ok := w.parseMessage(v); ok {
			w.messages.OnMessages([]entities.InboundMessage{msg})
		}
	case *events.Connected:
		w.sink.OnConnectionUpdate(entities.ConnectionUpdate{State: entities.StatusConnected})
	case *events.PairSuccess:
		w.sink.OnCredentialsUpdate()
	case *events.LoggedOut:
		w.sink.OnConnectionUpdate(entities.ConnectionUpdate{
			State:       entities.StatusDisconnected,
			CloseReason: entities.CloseLoggedOut,
		})
	case *events.ConnectFailure:
		// Logged-out failures are followed by a LoggedOut event.
		if v.Reason.IsLoggedOut() {
			return
		}
		w.sink.OnConnectionUpdate(entities.ConnectionUpdate{
			State:       entities.StatusDisconnected,
			CloseReason: entities.CloseTransient,
		})
	case *events.Disconnected, *events.StreamReplaced, *events.TemporaryBan:
		w.sink.OnConnectionUpdate(entities.ConnectionUpdate{
			State:       entities.StatusDisconnected,
			CloseReason: entities.CloseTransient,
		})
	}
}

func (w *WhatsAppClient) parseMessage(evt *events.Message) (entities.InboundMessage, bool) {
	if evt.Message == nil {
		return entities.InboundMessage{}, false
	}
	chat := evt.Info.Chat
	return entities.InboundMessage{
		ID:           string(evt.Info.ID),
		ChatID:       chat.String(),
		SenderPhone:  w.senderPhone(evt.Info.MessageSource),
		ChannelPhone: w.PhoneNumber(),
		Text:         extractText(evt.Message),
		IsFromMe:     evt.Info.IsFromMe,
		IsGroup:      evt.Info.IsGroup || chat.Server == types.GroupServer,
		IsBroadcast:  chat.Server == types.BroadcastServer || chat.Server == types.NewsletterServer,
	}, true
}

// senderPhone resolves the customer's phone number. Chats addressed by a
// hidden user id carry the phone JID in SenderAlt, or in the LID mapping store.
func (w *WhatsAppClient) senderPhone(src types.MessageSource) string {
	if src.Chat.Server != types.HiddenUserServer {
		return src.Chat.User
	}
	if src.SenderAlt.Server == types.DefaultUserServer {
		return src.SenderAlt.User
	}
	if w.Client != nil && w.Client.Store != nil && w.Client.Store.LIDs != nil {
		pn, err := w.Client.Store.LIDs.GetPNForLID(context.Background(), src.Chat)
		if err == nil && !pn.IsEmpty() {
			return pn.User
		}
		w.log.Debug().Err(err).Str("lid", src.Chat.String()).Msg("no phone mapping for hidden user")
	}
	return src.Chat.User
}

func extractText(msg *waProto.Message) string {
	if text := msg.GetConversation(); text != "" {
		return text
	}
	return msg.GetExtendedTextMessage().GetText()
}

// parseJID accepts either a full JID or a bare phone number.
func parseJID(to string) (types.JID, error) {
	if !strings.Contains(to, "@") {
		to += "@" + types.DefaultUserServer
	}
	jid, err := types.ParseJID(to)
	if err != nil {
		return types.JID{}, fmt.Errorf("invalid destination %q: %w", to, err)
	}
	return jid, nil
}
