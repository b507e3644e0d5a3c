package chat

import "time"

// ---------------------------------------------
// Database & API Models
// ---------------------------------------------

// Participant is the display data of one side of a conversation.
type Participant struct {
	ID        string  `json:"id"`
	FullName  string  `json:"full_name"`
	AvatarURL *string `json:"avatar_url"`
}

type LastMessage struct {
	Content string `json:"content"`
	IsRead  bool   `json:"is_read"`
}

// Conversation is a one-to-one thread. OtherParticipant and LastMessage are
// computed per read for the viewing identity and never stored.
type Conversation struct {
	ID               string       `json:"id"`
	ParticipantOne   string       `json:"participant_one"`
	ParticipantTwo   string       `json:"participant_two"`
	LastMessageAt    time.Time    `json:"last_message_at"`
	CreatedAt        time.Time    `json:"created_at"`
	OtherParticipant *Participant `json:"other_participant,omitempty"`
	LastMessage      *LastMessage `json:"last_message"`
}

// ConversationRow is a stored conversation joined with both participant profiles.
type ConversationRow struct {
	ID             string
	ParticipantOne string
	ParticipantTwo string
	LastMessageAt  time.Time
	CreatedAt      time.Time
	ProfileOne     *Participant
	ProfileTwo     *Participant
}

func (r ConversationRow) HasParticipant(identity string) bool {
	return identity != "" && (r.ParticipantOne == identity || r.ParticipantTwo == identity)
}

type Sender struct {
	FullName  string  `json:"full_name"`
	AvatarURL *string `json:"avatar_url"`
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	IsRead         bool      `json:"is_read"`
	CreatedAt      time.Time `json:"created_at"`
	Sender         *Sender   `json:"sender,omitempty"` // joined from profiles
}

type NewMessage struct {
	ConversationID string
	SenderID       string
	Content        string
}

// ---------------------------------------------
// Websocket frames
// ---------------------------------------------

const (
	ActionWatch   = "watch"
	ActionUnwatch = "unwatch"
	ActionSend    = "send"

	ViewConversations = "conversations"
	ViewMessages      = "messages"
)

// ClientFrame is what the browser sends over the socket.
type ClientFrame struct {
	Action         string `json:"action"`
	View           string `json:"view"`
	ConversationID string `json:"conversation_id,omitempty"`
	// Filter may stand in for ConversationID as "conversation_id=eq.<id>".
	Filter         string `json:"filter,omitempty"`
	Content        string `json:"content,omitempty"`
}

// ServerFrame carries a view snapshot or an error back to the browser.
type ServerFrame struct {
	View           string `json:"view,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Data           any    `json:"data"`
	Error          string `json:"error,omitempty"`
}
