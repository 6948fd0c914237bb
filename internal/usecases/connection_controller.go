package usecases

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"wa_relay/internal/entities"
	"wa_relay/internal/interfaces"
)

type Effect int

const (
	EffectScheduleReconnect Effect = iota + 1
	EffectDiscardCredentials
	EffectMarkBindingConnected
)

// LifecycleState is the session state owned by the ConnectionController.
type LifecycleState struct {
	Status           entities.ConnectionStatus
	PairingChallenge string
	ReconnectPending bool
}

// Transition applies a transport update to the current state. It has no side
// effects; the returned effects are executed by the controller.
func Transition(s LifecycleState, u entities.ConnectionUpdate) (LifecycleState, []Effect) {
	switch u.State {
	case entities.StatusConnecting:
		s.Status = entities.StatusConnecting
		if u.PairingChallenge != "" {
			s.PairingChallenge = u.PairingChallenge
		}
		return s, nil

	case entities.StatusConnected:
		s.Status = entities.StatusConnected
		s.PairingChallenge = ""
		s.ReconnectPending = false
		return s, []Effect{EffectMarkBindingConnected}

	case entities.StatusDisconnected:
		s.Status = entities.StatusDisconnected
		s.PairingChallenge = ""
		if s.ReconnectPending {
			// A reconnect is already scheduled for this drop.
			if u.CloseReason == entities.CloseLoggedOut {
				return s, []Effect{EffectDiscardCredentials}
			}
			return s, nil
		}
		s.ReconnectPending = true
		if u.CloseReason == entities.CloseLoggedOut {
			return s, []Effect{EffectDiscardCredentials, EffectScheduleReconnect}
		}
		return s, []Effect{EffectScheduleReconnect}
	}
	return s, nil
}

type ConnectionObserver interface {
	SetConnectionState(state entities.ConnectionStatus)
	ObserveReconnect(reason entities.CloseReason)
}

// AfterFunc is the default interfaces.Scheduler.
func AfterFunc(d time.Duration, f func()) func() {
	t := time.AfterFunc(d, f)
	return func() { t.Stop() }
}

type ControllerConfig struct {
	BusinessPhone  string
	ReconnectDelay time.Duration
}

// ConnectionController owns the WhatsApp session: it connects, reacts to
// open/close updates, reconnects and publishes status. It is the only writer
// of the session and pairing state.
type ConnectionController struct {
	factory    interfaces.TransportFactory
	sessions   interfaces.SessionStore
	businesses interfaces.BusinessStore
	schedule   interfaces.Scheduler
	observer   ConnectionObserver
	log        zerolog.Logger
	now        func() time.Time

	phone string
	delay time.Duration

	mu        sync.RWMutex
	ctx       context.Context
	state     LifecycleState
	transport interfaces.Transport
	cancel    func()
	stopped   bool
}

func NewConnectionController(
	factory interfaces.TransportFactory,
	sessions interfaces.SessionStore,
	businesses interfaces.BusinessStore,
	cfg ControllerConfig,
	log zerolog.Logger,
) *ConnectionController {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	return &ConnectionController{
		factory:    factory,
		sessions:   sessions,
		businesses: businesses,
		schedule:   AfterFunc,
		log:        log.With().Str("component", "connection").Logger(),
		now:        time.Now,
		phone:      cfg.BusinessPhone,
		delay:      cfg.ReconnectDelay,
		ctx:        context.Background(),
		state:      LifecycleState{Status: entities.StatusDisconnected},
	}
}

func (c *ConnectionController) WithScheduler(s interfaces.Scheduler) *ConnectionController {
	c.schedule = s
	return c
}

func (c *ConnectionController) WithObserver(o ConnectionObserver) *ConnectionController {
	c.observer = o
	return c
}

// Start opens the first session. Connection failures are retried in the
// background after the reconnect delay.
func (c *ConnectionController) Start(ctx context.Context) {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()
	c.connect()
}

// Stop cancels any pending reconnect and closes the session.
func (c *ConnectionController) Stop() {
	c.mu.Lock()
	c.stopped = true
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	t := c.transport
	c.transport = nil
	c.state = LifecycleState{Status: entities.StatusDisconnected}
	c.mu.Unlock()

	if t != nil {
		t.Disconnect()
	}
	c.observe(entities.StatusDisconnected)
}

func (c *ConnectionController) connect() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	ctx := c.ctx
	old := c.transport
	c.transport = nil
	c.cancel = nil
	c.state.ReconnectPending = false
	c.state.Status = entities.StatusConnecting
	c.mu.Unlock()
	c.observe(entities.StatusConnecting)

	if old != nil {
		old.Disconnect()
	}

	t, err := c.factory(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to create session")
		c.OnConnectionUpdate(entities.ConnectionUpdate{State: entities.StatusDisconnected, CloseReason: entities.CloseTransient})
		return
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		t.Disconnect()
		return
	}
	c.transport = t
	c.mu.Unlock()

	c.log.Info().Msg("connecting to WhatsApp")
	if err := t.Connect(ctx); err != nil {
		c.log.Error().Err(err).Msg("connect failed")
		c.OnConnectionUpdate(entities.ConnectionUpdate{State: entities.StatusDisconnected, CloseReason: entities.CloseTransient})
	}
}

func (c *ConnectionController) OnConnectionUpdate(u entities.ConnectionUpdate) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	next, effects := Transition(c.state, u)
	c.state = next
	ctx := c.ctx
	c.mu.Unlock()

	c.observe(next.Status)
	if u.PairingChallenge != "" {
		c.log.Info().Msg("new pairing QR code available")
	}

	for _, e := range effects {
		switch e {
		case EffectDiscardCredentials:
			c.log.Warn().Msg("session logged out, discarding credentials")
			if err := c.sessions.Discard(ctx); err != nil {
				c.log.Error().Err(err).Msg("failed to discard credentials")
			}
		case EffectScheduleReconnect:
			c.log.Warn().Str("reason", u.CloseReason.String()).Dur("delay", c.delay).Msg("connection closed, reconnecting")
			if c.observer != nil {
				c.observer.ObserveReconnect(u.CloseReason)
			}
			cancel := c.schedule(c.delay, c.connect)
			c.mu.Lock()
			c.cancel = cancel
			c.mu.Unlock()
		case EffectMarkBindingConnected:
			c.mu.Lock()
			pending := c.cancel
			c.cancel = nil
			c.mu.Unlock()
			if pending != nil {
				pending()
			}
			c.log.Info().Msg("WhatsApp connection opened")
			c.markConnected(ctx)
		}
	}
}

// OnCredentialsUpdate persists credentials handed out by the transport.
func (c *ConnectionController) OnCredentialsUpdate() {
	c.mu.RLock()
	ctx := c.ctx
	c.mu.RUnlock()
	if err := c.sessions.Persist(ctx); err != nil {
		c.log.Error().Err(err).Msg("failed to persist credentials")
	}
}

func (c *ConnectionController) markConnected(ctx context.Context) {
	phone := c.phone
	if phone == "" {
		c.mu.RLock()
		if c.transport != nil {
			phone = c.transport.PhoneNumber()
		}
		c.mu.RUnlock()
	}
	phones := PhoneVariants(phone)
	if len(phones) == 0 {
		return
	}
	if err := c.businesses.MarkConnected(ctx, phones, c.now().UTC()); err != nil {
		c.log.Warn().Err(err).Msg("failed to update connection status")
	}
}

func (c *ConnectionController) observe(s entities.ConnectionStatus) {
	if c.observer != nil {
		c.observer.SetConnectionState(s)
	}
}

// SendMessage sends through the current session.
func (c *ConnectionController) SendMessage(ctx context.Context, to, content string) (string, error) {
	t, ok := c.connected()
	if !ok {
		return "", entities.ErrNotConnected
	}
	return t.SendMessage(ctx, to, content)
}

func (c *ConnectionController) SetTyping(ctx context.Context, to string, typing bool) {
	if t, ok := c.connected(); ok {
		t.SetTyping(ctx, to, typing)
	}
}

func (c *ConnectionController) connected() (interfaces.Transport, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.transport, c.transport != nil && c.state.Status == entities.StatusConnected
}

func (c *ConnectionController) Status() entities.ConnectionStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Status
}

func (c *ConnectionController) IsConnected() bool {
	return c.Status() == entities.StatusConnected
}

// PairingChallenge is the QR payload waiting to be scanned, if any.
func (c *ConnectionController) PairingChallenge() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.PairingChallenge
}
