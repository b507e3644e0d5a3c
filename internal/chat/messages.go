package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go-dalil/internal/apperror"
	"go-dalil/internal/query"
)

// MaxContentLength bounds a single message, in bytes.
const MaxContentLength = 4096

type MessageRepository struct {
	store  Store
	cache  *query.Client
	now    func() time.Time
	logger *slog.Logger
}

func NewMessageRepository(store Store, cache *query.Client) *MessageRepository {
	return &MessageRepository{
		store:  store,
		cache:  cache,
		now:    time.Now,
		logger: slog.Default(),
	}
}

// History returns every message of the conversation, oldest first. With an
// empty conversationID nothing runs and ok is false.
func (r *MessageRepository) History(ctx context.Context, conversationID string) (msgs []Message, ok bool, err error) {
	if conversationID == "" {
		return nil, false, nil
	}
	msgs, err = query.Fetch(ctx, r.cache, query.MessagesKey(conversationID), func(ctx context.Context) ([]Message, error) {
		msgs, err := r.store.ListMessages(ctx, conversationID)
		if err != nil {
			return nil, apperror.Remote(err)
		}
		if msgs == nil {
			msgs = []Message{}
		}
		return msgs, nil
	})
	if err != nil {
		return nil, true, err
	}
	return msgs, true, nil
}

// Send stores the message, then moves the conversation's last_message_at.
// The two writes are separate; if the second fails the message still stands
// and is returned. The history and both participants' conversation lists are
// invalidated before Send returns.
func (r *MessageRepository) Send(ctx context.Context, msg NewMessage) (*Message, error) {
	if msg.SenderID == "" {
		return nil, apperror.ErrUnauthenticated
	}
	if msg.ConversationID == "" {
		return nil, apperror.ErrInvalidParams.WithMessage("conversation_id is required")
	}
	msg.Content = strings.TrimSpace(msg.Content)
	if msg.Content == "" {
		return nil, apperror.ErrInvalidParams.WithMessage("message content is empty")
	}
	if len(msg.Content) > MaxContentLength {
		return nil, apperror.ErrInvalidParams.WithMessage("message content is too long")
	}

	created, err := r.store.InsertMessage(ctx, msg)
	if err != nil {
		return nil, apperror.Remote(err)
	}

	r.cache.Invalidate(query.MessagesKey(msg.ConversationID))

	conv, err := r.store.TouchConversation(ctx, msg.ConversationID, r.now())
	if err != nil {
		r.logger.Warn("Failed to bump last_message_at",
			"conversation_id", msg.ConversationID,
			"message_id", created.ID,
			"error", err,
		)
		// The participants are unknown without the row; every list's preview may be affected.
		r.cache.InvalidateKind(query.KindConversations)
		return created, nil
	}

	r.cache.Invalidate(query.ConversationsKey(conv.ParticipantOne), query.ConversationsKey(conv.ParticipantTwo))
	return created, nil
}

// Watch signals whenever the history of conversationID is invalidated.
func (r *MessageRepository) Watch(conversationID string) *query.Watcher {
	return r.cache.Watch(query.MessagesKey(conversationID))
}
