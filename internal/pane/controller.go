package pane

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shannonnonshan/streamland-messaging/internal/chat"
)

type State string

const (
	StateClosed  State = "closed"
	StateLoading State = "loading"
	StateReady   State = "ready"
)

type SendState string

const (
	SendPending   SendState = "pending"
	SendConfirmed SendState = "confirmed"
	SendFailed    SendState = "failed"
)

type HistoryFetcher interface {
	History(ctx context.Context, partnerID string) ([]chat.Message, error)
}

type Sender interface {
	Send(f chat.Frame) error
}

// Opener is the slice of the conversation store the pane writes to: the
// open marker that zeroes the unread badge.
type Opener interface {
	SetOpen(partnerID string)
}

// Controller holds the ordered message history for the one currently-open
// conversation and mediates sends and receives. History is discarded on
// close and re-fetched on reopen.
type Controller struct {
	selfID  string
	fetcher HistoryFetcher
	sender  Sender
	store   Opener
	logger  zerolog.Logger

	mu       sync.Mutex
	state    State
	partner  string
	gen      uint64
	history  []chat.Message
	backlog  []chat.Message // pushes received while the history fetch is in flight
	seen     map[string]bool
	pending  map[string]*pendingSend // clientRef -> send state machine
	read     map[string]bool         // message ids already read-marked
	onChange func()
}

type pendingSend struct {
	provisionalID string
	state         SendState
}

func NewController(selfID string, fetcher HistoryFetcher, sender Sender, store Opener) *Controller {
	return &Controller{
		selfID:  selfID,
		fetcher: fetcher,
		sender:  sender,
		store:   store,
		state:   StateClosed,
		seen:    map[string]bool{},
		pending: map[string]*pendingSend{},
		read:    map[string]bool{},
		logger:  log.With().Str("component", "pane").Logger(),
	}
}

func (c *Controller) OnChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// Open loads the full history for partnerID and replaces the in-memory
// state atomically. The store's unread count for the partner is zeroed
// immediately, before the fetch resolves. A fetch that completes after the
// pane moved on to another partner is discarded by generation check.
// Pushes from the partner that land while the fetch is in flight are held
// back and folded into the loaded history, so a message the server
// appended after generating the history response is never lost.
func (c *Controller) Open(ctx context.Context, partnerID string) error {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.partner = partnerID
	c.state = StateLoading
	c.history = nil
	c.backlog = nil
	c.seen = map[string]bool{}
	c.mu.Unlock()

	c.store.SetOpen(partnerID)

	msgs, err := c.fetcher.History(ctx, partnerID)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		c.logger.Debug().Str("partner_id", partnerID).Msg("stale history fetch discarded")
		return nil
	}
	if err != nil {
		c.state = StateClosed
		c.backlog = nil
		c.mu.Unlock()
		return errors.Wrapf(chat.ErrHistoryFetch, "open %s: %v", partnerID, err)
	}

	history := append([]chat.Message(nil), msgs...)
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].CreatedAt.Before(history[j].CreatedAt)
	})
	deduped := history[:0]
	for _, m := range history {
		if c.seen[m.ID] {
			continue
		}
		c.seen[m.ID] = true
		deduped = append(deduped, m)
	}
	c.history = deduped
	c.state = StateReady

	for _, m := range c.backlog {
		if c.seen[m.ID] {
			continue
		}
		c.seen[m.ID] = true
		c.insertOrderedLocked(m)
	}
	c.backlog = nil

	var toRead []string
	for i := range c.history {
		m := &c.history[i]
		if m.SenderID == partnerID && m.ReadAt == nil {
			toRead = append(toRead, m.ID)
			now := time.Now()
			m.ReadAt = &now
		}
	}
	c.mu.Unlock()

	for _, id := range toRead {
		c.MarkRead(id)
	}
	c.notify()
	return nil
}

// Close discards history; reopening re-fetches.
func (c *Controller) Close() {
	c.mu.Lock()
	c.gen++
	c.state = StateClosed
	c.partner = ""
	c.history = nil
	c.backlog = nil
	c.seen = map[string]bool{}
	c.mu.Unlock()
	c.store.SetOpen("")
	c.notify()
}

// Send appends a provisional message optimistically and transmits it with a
// client-generated correlation ref. The echo bearing the authoritative id
// replaces the provisional entry; the same logical send is never shown
// twice. A transport failure removes the optimistic entry and surfaces the
// error so the caller decides about retrying.
func (c *Controller) Send(content string) (string, error) {
	c.mu.Lock()
	if c.state != StateReady {
		c.mu.Unlock()
		return "", errors.New("no open conversation")
	}
	partner := c.partner
	ref := uuid.NewString()
	provisional := chat.Message{
		ID:         "local-" + ref,
		SenderID:   c.selfID,
		ReceiverID: partner,
		Content:    content,
		Kind:       chat.KindText,
		CreatedAt:  time.Now(),
	}
	c.history = append(c.history, provisional)
	c.seen[provisional.ID] = true
	c.pending[ref] = &pendingSend{provisionalID: provisional.ID, state: SendPending}
	c.mu.Unlock()

	err := c.sender.Send(chat.Frame{
		Type:      chat.FrameSend,
		To:        partner,
		Content:   content,
		Kind:      chat.KindText,
		ClientRef: ref,
	})
	if err != nil {
		c.mu.Lock()
		if p, ok := c.pending[ref]; ok {
			p.state = SendFailed
			c.removeLocked(p.provisionalID)
		}
		c.mu.Unlock()
		c.notify()
		return ref, err
	}
	c.notify()
	return ref, nil
}

// HandleEcho reconciles a server echo. If the ref matches a pending send
// the provisional entry is replaced rather than appended; an unknown echo
// (another tab in a past session, poll replay) inserts normally with id
// de-duplication.
func (c *Controller) HandleEcho(msg *chat.Message, clientRef string) {
	c.mu.Lock()
	if c.state != StateReady || msg.ReceiverID != c.partner {
		if p, ok := c.pending[clientRef]; ok {
			p.state = SendConfirmed
		}
		c.mu.Unlock()
		return
	}
	if p, ok := c.pending[clientRef]; ok && p.state == SendPending {
		p.state = SendConfirmed
		if i := c.indexOfLocked(p.provisionalID); i >= 0 {
			delete(c.seen, p.provisionalID)
			c.history = append(c.history[:i], c.history[i+1:]...)
		}
	}
	if c.seen[msg.ID] {
		c.mu.Unlock()
		c.logger.Debug().Str("message_id", msg.ID).Msg("duplicate echo ignored")
		return
	}
	c.seen[msg.ID] = true
	c.insertOrderedLocked(*msg)
	c.mu.Unlock()
	c.notify()
}

// HandleIncoming applies a "message received" event. Only messages from the
// open partner touch history; they are inserted in createdAt order and
// immediately marked read since the user is actively viewing. While the
// history fetch is still in flight the message is held back for Open to
// replay. Returns whether the message belonged to the open conversation.
func (c *Controller) HandleIncoming(msg *chat.Message) bool {
	c.mu.Lock()
	if c.state == StateLoading && msg.SenderID == c.partner {
		c.backlog = append(c.backlog, *msg)
		c.mu.Unlock()
		return true
	}
	if c.state != StateReady || msg.SenderID != c.partner {
		c.mu.Unlock()
		return false
	}
	if c.seen[msg.ID] {
		c.mu.Unlock()
		c.logger.Debug().Str("message_id", msg.ID).Msg("duplicate message ignored")
		return true
	}
	c.seen[msg.ID] = true
	m := *msg
	now := time.Now()
	m.ReadAt = &now
	c.insertOrderedLocked(m)
	c.mu.Unlock()

	c.MarkRead(msg.ID)
	c.notify()
	return true
}

// MarkRead issues one read receipt, fire-and-forget. Re-marking an
// already-read id is a no-op, never an error.
func (c *Controller) MarkRead(messageID string) {
	c.mu.Lock()
	if c.read[messageID] {
		c.mu.Unlock()
		return
	}
	c.read[messageID] = true
	c.mu.Unlock()
	if err := c.sender.Send(chat.Frame{Type: chat.FrameRead, MessageID: messageID}); err != nil {
		c.logger.Debug().Err(err).Str("message_id", messageID).Msg("read receipt dropped")
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Partner() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.partner
}

// History returns a copy of the rendered message list, chronological.
func (c *Controller) History() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]chat.Message(nil), c.history...)
}

// SendStateOf reports the per-send state machine for a correlation ref.
func (c *Controller) SendStateOf(ref string) (SendState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.pending[ref]; ok {
		return p.state, true
	}
	return "", false
}

// insertOrderedLocked keeps history in non-decreasing createdAt order even
// when an event arrives late after a reconnect replay.
func (c *Controller) insertOrderedLocked(m chat.Message) {
	i := sort.Search(len(c.history), func(i int) bool {
		return c.history[i].CreatedAt.After(m.CreatedAt)
	})
	c.history = append(c.history, chat.Message{})
	copy(c.history[i+1:], c.history[i:])
	c.history[i] = m
}

func (c *Controller) indexOfLocked(id string) int {
	for i := range c.history {
		if c.history[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Controller) removeLocked(id string) {
	if i := c.indexOfLocked(id); i >= 0 {
		delete(c.seen, id)
		c.history = append(c.history[:i], c.history[i+1:]...)
	}
}

func (c *Controller) notify() {
	c.mu.Lock()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}
