package server

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shannonnonshan/streamland-messaging/internal/chat"
)

// Store keeps every message in memory, chronological per conversation
// pair. It backs the snapshot, history and read-receipt endpoints of the
// reference server.
type Store struct {
	mu       sync.RWMutex
	pairs    map[string][]*chat.Message // pair key -> messages in append order
	byID     map[string]*chat.Message
	partners map[string]map[string]bool // userID -> set of partner ids
}

func NewStore() *Store {
	return &Store{
		pairs:    map[string][]*chat.Message{},
		byID:     map[string]*chat.Message{},
		partners: map[string]map[string]bool{},
	}
}

func pairKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + "|" + b
}

func (s *Store) Append(m *chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey(m.SenderID, m.ReceiverID)
	s.pairs[key] = append(s.pairs[key], m)
	s.byID[m.ID] = m
	s.ensurePartner(m.SenderID, m.ReceiverID)
	s.ensurePartner(m.ReceiverID, m.SenderID)
}

func (s *Store) ensurePartner(user, partner string) {
	if _, ok := s.partners[user]; !ok {
		s.partners[user] = map[string]bool{}
	}
	s.partners[user][partner] = true
}

// History returns the full conversation between user and partner, oldest
// first.
func (s *Store) History(user, partner string) []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.pairs[pairKey(user, partner)]
	out := make([]chat.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, *m)
	}
	return out
}

// Snapshot computes {lastMessage, unreadCount} for every partner the user
// has at least one message with, most recent first.
func (s *Store) Snapshot(user string) []chat.ConversationSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]chat.ConversationSummary, 0, len(s.partners[user]))
	for partner := range s.partners[user] {
		msgs := s.pairs[pairKey(user, partner)]
		if len(msgs) == 0 {
			continue
		}
		sum := chat.ConversationSummary{
			PartnerID:   partner,
			LastMessage: *msgs[len(msgs)-1],
		}
		for _, m := range msgs {
			if m.SenderID == partner && m.ReadAt == nil {
				sum.UnreadCount++
			}
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessage.CreatedAt.After(out[j].LastMessage.CreatedAt)
	})
	return out
}

// MarkRead sets ReadAt once. Only the receiver may mark, and re-marking is
// a no-op; both cases report success to keep the receipt path idempotent.
func (s *Store) MarkRead(messageID, reader string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[messageID]
	if !ok || m.ReceiverID != reader {
		return false
	}
	if m.ReadAt == nil {
		now := time.Now()
		m.ReadAt = &now
	}
	return true
}
