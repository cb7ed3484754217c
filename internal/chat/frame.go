package chat

type FrameType string

const (
	// client -> server
	FrameSend        FrameType = "send"
	FrameTyping      FrameType = "typing"
	FramePresenceSub FrameType = "presence_subscribe"
	FrameRead        FrameType = "read"
	// server -> client
	FrameMessage  FrameType = "message"
	FrameEcho     FrameType = "echo"
	FramePresence FrameType = "presence"
)

// Frame is the single JSON envelope exchanged over the channel. Fields are
// populated per frame type and omitted otherwise.
type Frame struct {
	Type FrameType `json:"type"`

	// send / typing
	To      string      `json:"to,omitempty"`
	Content string      `json:"content,omitempty"`
	Kind    MessageKind `json:"kind,omitempty"`
	Typing  bool        `json:"typing,omitempty"`

	// send: client-generated correlation ref, echoed back by the server so
	// the sender can replace its provisional entry.
	ClientRef string `json:"client_ref,omitempty"`

	// message / echo
	Message *Message `json:"message,omitempty"`
	From    string   `json:"from,omitempty"`

	// presence_subscribe request, presence snapshot reply, presence delta
	IDs       []string `json:"ids,omitempty"`
	OnlineIDs []string `json:"online_ids,omitempty"`
	UserID    string   `json:"user_id,omitempty"`
	Online    bool     `json:"online,omitempty"`

	// read
	MessageID string `json:"message_id,omitempty"`
}
