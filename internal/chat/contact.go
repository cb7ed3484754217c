package chat

type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Contact comes from the friends collaborator, loaded once per session and
// never mutated here.
type Contact struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarRef   string `json:"avatar_ref,omitempty"`
	Role        Role   `json:"role"`
}

// ConversationView is the read projection consumed by list-rendering UI:
// contact identity merged with presence and conversation state.
type ConversationView struct {
	PartnerID   string   `json:"partner_id"`
	DisplayName string   `json:"display_name"`
	AvatarRef   string   `json:"avatar_ref,omitempty"`
	Role        Role     `json:"role"`
	Online      bool     `json:"online"`
	LastMessage *Message `json:"last_message,omitempty"`
	UnreadCount int      `json:"unread_count"`
}
