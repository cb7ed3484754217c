package presence

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shannonnonshan/streamland-messaging/internal/chat"
)

type Sender interface {
	Send(f chat.Frame) error
}

// Tracker maintains the set of currently-online partner ids. Presence is
// advisory UI state: best-effort, eventually consistent, rebuilt from
// scratch on every (re)subscription rather than assumed durable across
// reconnects.
type Tracker struct {
	sender Sender
	logger zerolog.Logger

	mu         sync.RWMutex
	subscribed []string
	online     map[string]bool
	onChange   func()
}

func NewTracker(sender Sender) *Tracker {
	return &Tracker{
		sender: sender,
		online: map[string]bool{},
		logger: log.With().Str("component", "presence").Logger(),
	}
}

func (t *Tracker) OnChange(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = fn
}

// Subscribe requests presence for a batch of partner ids. Called once after
// the contact list loads; the id set is retained so Resubscribe can replay
// it after a reconnect.
func (t *Tracker) Subscribe(ids []string) error {
	t.mu.Lock()
	t.subscribed = append([]string(nil), ids...)
	t.mu.Unlock()
	return t.sender.Send(chat.Frame{Type: chat.FramePresenceSub, IDs: ids})
}

// Resubscribe invalidates the known set and re-issues the subscription.
// Wired to the channel's state observable: fires on every transition to
// open after the first.
func (t *Tracker) Resubscribe() {
	t.mu.Lock()
	ids := append([]string(nil), t.subscribed...)
	t.online = map[string]bool{}
	t.mu.Unlock()
	if len(ids) == 0 {
		return
	}
	if err := t.sender.Send(chat.Frame{Type: chat.FramePresenceSub, IDs: ids}); err != nil {
		t.logger.Warn().Err(err).Msg("resubscribe failed")
	}
	t.notify()
}

// HandlePresence applies one push event: a snapshot reply replaces the set
// wholesale, a delta toggles one id. Both are idempotent.
func (t *Tracker) HandlePresence(f chat.Frame) {
	t.mu.Lock()
	if f.OnlineIDs != nil {
		t.online = make(map[string]bool, len(f.OnlineIDs))
		for _, id := range f.OnlineIDs {
			t.online[id] = true
		}
	} else if f.UserID != "" {
		if f.Online {
			t.online[f.UserID] = true
		} else {
			delete(t.online, f.UserID)
		}
	}
	t.mu.Unlock()
	t.notify()
}

func (t *Tracker) IsOnline(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.online[id]
}

func (t *Tracker) Online() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.online))
	for id := range t.online {
		out = append(out, id)
	}
	return out
}

func (t *Tracker) notify() {
	t.mu.RLock()
	fn := t.onChange
	t.mu.RUnlock()
	if fn != nil {
		fn()
	}
}
