package typing

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shannonnonshan/streamland-messaging/internal/chat"
)

type Sender interface {
	Send(f chat.Frame) error
}

// Coordinator debounces the outgoing typing state for the open conversation
// and expires incoming typing signals. Outgoing: idle -> typing on the
// first keystroke, at most one broadcast per debounce window, back to idle
// on explicit stop (send fired, input emptied) or after one quiet window.
// Incoming typers are a set with per-typer expiry at twice the debounce
// window, so a lost "stopped typing" frame cannot pin the indicator.
type Coordinator struct {
	sender   Sender
	debounce time.Duration
	logger   zerolog.Logger

	mu            sync.Mutex
	partner       string
	outTyping     bool
	lastBroadcast time.Time
	idleTimer     *time.Timer
	typers        map[string]*time.Timer
	onChange      func()
}

func NewCoordinator(sender Sender, debounce time.Duration) *Coordinator {
	return &Coordinator{
		sender:   sender,
		debounce: debounce,
		typers:   map[string]*time.Timer{},
		logger:   log.With().Str("component", "typing").Logger(),
	}
}

func (c *Coordinator) OnChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// SetPartner switches the outgoing direction to a new conversation. A stale
// typing signal toward the previous partner is force-stopped so it cannot
// leak.
func (c *Coordinator) SetPartner(partnerID string) {
	c.mu.Lock()
	prev := c.partner
	wasTyping := c.outTyping
	c.partner = partnerID
	c.outTyping = false
	c.stopIdleTimer()
	c.mu.Unlock()
	if wasTyping && prev != "" {
		c.sendTyping(prev, false)
	}
}

// NotifyKeystroke records local typing activity. Broadcasts at most once
// per debounce window; every keystroke pushes the inactivity stop out.
func (c *Coordinator) NotifyKeystroke() {
	c.mu.Lock()
	partner := c.partner
	if partner == "" {
		c.mu.Unlock()
		return
	}
	now := time.Now()
	broadcast := !c.outTyping || now.Sub(c.lastBroadcast) >= c.debounce
	if broadcast {
		c.lastBroadcast = now
	}
	c.outTyping = true
	c.stopIdleTimer()
	c.idleTimer = time.AfterFunc(c.debounce, c.idleTimeout)
	c.mu.Unlock()
	if broadcast {
		c.sendTyping(partner, true)
	}
}

// NotifyStop is the explicit idle transition: the send action fired or the
// input emptied.
func (c *Coordinator) NotifyStop() {
	c.mu.Lock()
	partner := c.partner
	wasTyping := c.outTyping
	c.outTyping = false
	c.stopIdleTimer()
	c.mu.Unlock()
	if wasTyping && partner != "" {
		c.sendTyping(partner, false)
	}
}

// Reset drops outgoing state without signaling the wire. Used when the
// channel drops: the state is no longer trusted and the next keystroke
// republishes it.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.outTyping = false
	c.stopIdleTimer()
	c.mu.Unlock()
}

// HandleTyping applies one incoming typing frame. A positive signal
// (re)arms that typer's expiry; staleness is tolerated, duplication is
// idempotent.
func (c *Coordinator) HandleTyping(from string, typing bool) {
	c.mu.Lock()
	if t, ok := c.typers[from]; ok {
		t.Stop()
		delete(c.typers, from)
	}
	if typing {
		from := from
		c.typers[from] = time.AfterFunc(2*c.debounce, func() { c.expire(from) })
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Coordinator) IsTyping(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.typers[id]
	return ok
}

func (c *Coordinator) Typers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.typers))
	for id := range c.typers {
		out = append(out, id)
	}
	return out
}

func (c *Coordinator) expire(id string) {
	c.mu.Lock()
	if _, ok := c.typers[id]; !ok {
		c.mu.Unlock()
		return
	}
	delete(c.typers, id)
	c.mu.Unlock()
	c.logger.Debug().Str("partner_id", id).Msg("typing signal expired")
	c.notify()
}

func (c *Coordinator) idleTimeout() {
	c.mu.Lock()
	partner := c.partner
	wasTyping := c.outTyping
	c.outTyping = false
	c.idleTimer = nil
	c.mu.Unlock()
	if wasTyping && partner != "" {
		c.sendTyping(partner, false)
	}
}

func (c *Coordinator) stopIdleTimer() {
	if c.idleTimer != nil {
		c.idleTimer.Stop()
		c.idleTimer = nil
	}
}

func (c *Coordinator) sendTyping(to string, typing bool) {
	if err := c.sender.Send(chat.Frame{Type: chat.FrameTyping, To: to, Typing: typing}); err != nil {
		c.logger.Debug().Err(err).Bool("typing", typing).Msg("typing frame dropped")
	}
}

func (c *Coordinator) notify() {
	c.mu.Lock()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}
