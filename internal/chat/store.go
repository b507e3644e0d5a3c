package chat

import (
	"context"
	"time"
)

// Store is the remote data store as seen by the repositories. PostgresStore
// is the production implementation; tests substitute an in-memory fake.
type Store interface {
	// ListConversations returns every conversation where identity is a
	// participant, most recent activity first.
	ListConversations(ctx context.Context, identity string) ([]ConversationRow, error)
	// GetConversation returns apperror.ErrNotFound when id does not exist.
	GetConversation(ctx context.Context, id string) (*ConversationRow, error)
	// LatestMessage returns nil when the conversation has no messages.
	LatestMessage(ctx context.Context, conversationID string) (*LastMessage, error)
	// FindConversationBetween matches the unordered pair; nil when absent.
	FindConversationBetween(ctx context.Context, a, b string) (*Conversation, error)
	// CreateConversation inserts a conversation for the pair. If a row for
	// the pair already exists it is returned instead.
	CreateConversation(ctx context.Context, one, two string, at time.Time) (*Conversation, error)

	// ListMessages returns the full history, oldest first.
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
	InsertMessage(ctx context.Context, msg NewMessage) (*Message, error)
	// TouchConversation moves last_message_at forward to at; it never moves
	// it back. It returns the updated conversation.
	TouchConversation(ctx context.Context, conversationID string, at time.Time) (*Conversation, error)
}
