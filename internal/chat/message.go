package chat

import "time"

type MessageKind string

const (
	KindText MessageKind = "text"
)

// Message is the unit of conversation. ReadAt is the only mutable field and
// transitions unset -> timestamp exactly once.
type Message struct {
	ID         string      `json:"id"`
	SenderID   string      `json:"sender_id"`
	ReceiverID string      `json:"receiver_id"`
	Content    string      `json:"content"`
	Kind       MessageKind `json:"kind"`
	CreatedAt  time.Time   `json:"created_at"`
	ReadAt     *time.Time  `json:"read_at,omitempty"`
}

// PartnerOf returns the other participant of the message relative to userID.
func (m *Message) PartnerOf(userID string) string {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// ConversationSummary is the per-partner seed returned by the snapshot
// endpoint: the newest message plus how many of the partner's messages the
// local user has not read yet.
type ConversationSummary struct {
	PartnerID   string  `json:"partner_id"`
	LastMessage Message `json:"last_message"`
	UnreadCount int     `json:"unread_count"`
}
