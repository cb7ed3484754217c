package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shannonnonshan/streamland-messaging/internal/chat"
)

// Hub routes frames between connected sessions: message delivery with
// sender echoes, typing forwarding, presence subscriptions with
// connect/disconnect deltas. One active session per user; a new register
// for the same user replaces the previous connection.
type Hub struct {
	store  *Store
	logger zerolog.Logger

	register   chan *client
	unregister chan *client
	frames     chan inboundFrame

	mu       sync.RWMutex
	clients  map[string]*client
	watchers map[string]map[string]bool // watched userID -> watcher set
}

type inboundFrame struct {
	from  *client
	frame chat.Frame
}

func NewHub(store *Store) *Hub {
	return &Hub{
		store:      store,
		register:   make(chan *client),
		unregister: make(chan *client),
		frames:     make(chan inboundFrame, 16),
		clients:    map[string]*client{},
		watchers:   map[string]map[string]bool{},
		logger:     log.With().Str("component", "hub").Logger(),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			prev := h.clients[c.userID]
			h.clients[c.userID] = c
			h.mu.Unlock()
			if prev != nil && prev != c {
				prev.shutdown()
			}
			h.logger.Info().Str("user_id", c.userID).Msg("client connected")
			h.broadcastPresence(c.userID, true)

		case c := <-h.unregister:
			h.mu.Lock()
			removed := false
			if cur, ok := h.clients[c.userID]; ok && cur == c {
				delete(h.clients, c.userID)
				removed = true
			}
			h.mu.Unlock()
			c.shutdown()
			// a replaced connection unregisters after the new one took
			// its slot; the user is still online, say nothing
			if removed {
				h.logger.Info().Str("user_id", c.userID).Msg("client disconnected")
				h.broadcastPresence(c.userID, false)
			}

		case in := <-h.frames:
			h.handleFrame(in.from.userID, in.frame)
		}
	}
}

func (h *Hub) handleFrame(from string, f chat.Frame) {
	switch f.Type {
	case chat.FrameSend:
		h.Deliver(from, f)
	case chat.FrameTyping:
		h.sendTo(f.To, chat.Frame{Type: chat.FrameTyping, From: from, Typing: f.Typing})
	case chat.FramePresenceSub:
		h.subscribePresence(from, f.IDs)
	case chat.FrameRead:
		h.store.MarkRead(f.MessageID, from)
	default:
		h.logger.Debug().Str("frame_type", string(f.Type)).Msg("unknown inbound frame")
	}
}

// Deliver persists one message, pushes it to the receiver and echoes it
// back to the sender with the client's correlation ref. Also used by the
// REST send endpoint, so delivery is identical across strategies.
func (h *Hub) Deliver(from string, f chat.Frame) *chat.Message {
	kind := f.Kind
	if kind == "" {
		kind = chat.KindText
	}
	msg := &chat.Message{
		ID:         uuid.NewString(),
		SenderID:   from,
		ReceiverID: f.To,
		Content:    f.Content,
		Kind:       kind,
		CreatedAt:  time.Now(),
	}
	h.store.Append(msg)
	h.sendTo(f.To, chat.Frame{Type: chat.FrameMessage, Message: msg})
	h.sendTo(from, chat.Frame{Type: chat.FrameEcho, Message: msg, ClientRef: f.ClientRef})
	return msg
}

// subscribePresence records who watches whom and answers with the online
// subset. Presence is rebuilt from this reply on every (re)subscription.
func (h *Hub) subscribePresence(watcher string, ids []string) {
	h.mu.Lock()
	online := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := h.watchers[id]; !ok {
			h.watchers[id] = map[string]bool{}
		}
		h.watchers[id][watcher] = true
		if _, ok := h.clients[id]; ok {
			online = append(online, id)
		}
	}
	h.mu.Unlock()
	h.sendTo(watcher, chat.Frame{Type: chat.FramePresence, OnlineIDs: online})
}

func (h *Hub) broadcastPresence(userID string, onlineNow bool) {
	h.mu.RLock()
	watchers := make([]string, 0, len(h.watchers[userID]))
	for w := range h.watchers[userID] {
		watchers = append(watchers, w)
	}
	h.mu.RUnlock()
	for _, w := range watchers {
		h.sendTo(w, chat.Frame{Type: chat.FramePresence, UserID: userID, Online: onlineNow})
	}
}

// sendTo pushes one frame to a user if connected, dropping it when the
// client's buffer is full (slow consumers never block the hub). Deliver
// runs on fiber handler goroutines too, so the push goes through the
// client's guarded enqueue rather than a bare channel send.
func (h *Hub) sendTo(userID string, f chat.Frame) {
	h.mu.RLock()
	c := h.clients[userID]
	h.mu.RUnlock()
	if c == nil {
		return
	}
	data, err := json.Marshal(&f)
	if err != nil {
		return
	}
	if !c.enqueue(data) {
		h.logger.Warn().Str("user_id", userID).Str("frame_type", string(f.Type)).Msg("frame dropped")
	}
}
