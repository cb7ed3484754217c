package transport

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shannonnonshan/streamland-messaging/internal/chat"
)

// RestBackend is the slice of the REST collaborator the polling strategy
// needs. Satisfied by rest.Client.
type RestBackend interface {
	Snapshot(ctx context.Context) ([]chat.ConversationSummary, error)
	SendMessage(ctx context.Context, to, content string, kind chat.MessageKind, clientRef string) (*chat.Message, error)
	MarkRead(ctx context.Context, messageID string) error
}

// PollingChannel is the fallback Channel strategy: it diffs periodic
// snapshot re-fetches into message/echo events and routes outbound frames
// through REST. Typing and presence are advisory and not carried by this
// strategy; consumers tolerate their absence. Only the newest message per
// partner is observed each tick, which matches the coarse polling the
// conversation list tolerates.
type PollingChannel struct {
	backend  RestBackend
	selfID   string
	interval time.Duration
	logger   zerolog.Logger

	mu        sync.Mutex
	state     State
	stop      chan struct{}
	lastSeen  map[string]string // partnerID -> last observed message id
	onMessage func(*chat.Message)
	onEcho    func(*chat.Message, string)
	onState   []func(State)
}

func NewPollingChannel(backend RestBackend, selfID string, interval time.Duration) *PollingChannel {
	return &PollingChannel{
		backend:  backend,
		selfID:   selfID,
		interval: interval,
		state:    StateClosed,
		lastSeen: map[string]string{},
		logger:   log.With().Str("component", "polling_channel").Logger(),
	}
}

func (c *PollingChannel) OnMessage(fn func(*chat.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = fn
}

func (c *PollingChannel) OnMessageEcho(fn func(*chat.Message, string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEcho = fn
}

func (c *PollingChannel) OnTyping(fn func(string, bool)) {}

func (c *PollingChannel) OnPresence(fn func(chat.Frame)) {}

func (c *PollingChannel) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = append(c.onState, fn)
}

func (c *PollingChannel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect primes the diff baseline from one snapshot, then polls. Messages
// already in the baseline are the store's business, not this channel's.
func (c *PollingChannel) Connect(ctx context.Context) error {
	summaries, err := c.backend.Snapshot(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	for _, s := range summaries {
		c.lastSeen[s.PartnerID] = s.LastMessage.ID
	}
	c.stop = make(chan struct{})
	stop := c.stop
	c.mu.Unlock()
	c.setState(StateOpen)
	go c.pollLoop(stop)
	return nil
}

func (c *PollingChannel) Close() error {
	c.mu.Lock()
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.mu.Unlock()
	c.setState(StateClosed)
	return nil
}

func (c *PollingChannel) Send(f chat.Frame) error {
	if c.State() != StateOpen {
		return chat.ErrChannelUnavailable
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch f.Type {
	case chat.FrameSend:
		msg, err := c.backend.SendMessage(ctx, f.To, f.Content, f.Kind, f.ClientRef)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.lastSeen[msg.ReceiverID] = msg.ID
		onEcho := c.onEcho
		c.mu.Unlock()
		if onEcho != nil {
			onEcho(msg, f.ClientRef)
		}
		return nil
	case chat.FrameRead:
		return c.backend.MarkRead(ctx, f.MessageID)
	case chat.FrameTyping, chat.FramePresenceSub:
		// advisory, not carried by the polling strategy
		return nil
	}
	return nil
}

func (c *PollingChannel) pollLoop(stop chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.pollOnce()
		}
	}
}

func (c *PollingChannel) pollOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), c.interval)
	defer cancel()
	summaries, err := c.backend.Snapshot(ctx)
	if err != nil {
		c.logger.Debug().Err(err).Msg("poll failed")
		return
	}
	for _, s := range summaries {
		msg := s.LastMessage
		c.mu.Lock()
		seen := c.lastSeen[s.PartnerID] == msg.ID
		if !seen {
			c.lastSeen[s.PartnerID] = msg.ID
		}
		onMessage, onEcho := c.onMessage, c.onEcho
		c.mu.Unlock()
		if seen {
			continue
		}
		m := msg
		if m.SenderID == c.selfID {
			if onEcho != nil {
				onEcho(&m, "")
			}
		} else if onMessage != nil {
			onMessage(&m)
		}
	}
}

func (c *PollingChannel) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	subs := make([]func(State), len(c.onState))
	copy(subs, c.onState)
	c.mu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
}

var _ Channel = (*PollingChannel)(nil)
