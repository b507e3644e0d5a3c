package chat

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"go-dalil/internal/apperror"
	"go-dalil/internal/query"
)

// lastMessageFanout bounds the concurrent latest-message lookups of one list read.
const lastMessageFanout = 8

type ConversationRepository struct {
	store  Store
	cache  *query.Client
	now    func() time.Time
	logger *slog.Logger
}

func NewConversationRepository(store Store, cache *query.Client) *ConversationRepository {
	return &ConversationRepository{
		store:  store,
		cache:  cache,
		now:    time.Now,
		logger: slog.Default(),
	}
}

// List returns the conversations of identity, most recent first. An empty
// identity yields an empty list.
func (r *ConversationRepository) List(ctx context.Context, identity string) ([]Conversation, error) {
	if identity == "" {
		return []Conversation{}, nil
	}
	return query.Fetch(ctx, r.cache, query.ConversationsKey(identity), func(ctx context.Context) ([]Conversation, error) {
		return r.fetchList(ctx, identity)
	})
}

func (r *ConversationRepository) fetchList(ctx context.Context, identity string) ([]Conversation, error) {
	rows, err := r.store.ListConversations(ctx, identity)
	if err != nil {
		return nil, apperror.Remote(err)
	}

	out := make([]Conversation, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lastMessageFanout)
	for i, row := range rows {
		g.Go(func() error {
			last, err := r.store.LatestMessage(gctx, row.ID)
			if err != nil {
				// The list stays usable without the preview.
				r.logger.Warn("Failed to load last message", "conversation_id", row.ID, "error", err)
				last = nil
			}
			out[i] = Project(row, identity, last)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns one conversation as seen by identity. Callers that are not a
// participant get ErrNotFound.
func (r *ConversationRepository) Get(ctx context.Context, identity, id string) (*Conversation, error) {
	if identity == "" {
		return nil, apperror.ErrUnauthenticated
	}
	row, err := r.store.GetConversation(ctx, id)
	if err != nil {
		return nil, apperror.Remote(err)
	}
	if !row.HasParticipant(identity) {
		return nil, apperror.ErrNotFound.WithMessage("conversation not found")
	}
	conv := Project(*row, identity, nil)
	return &conv, nil
}

// FindOrCreate returns the conversation between identity and other, creating
// it on first contact. The conversation lists of both sides are invalidated
// before it returns.
func (r *ConversationRepository) FindOrCreate(ctx context.Context, identity, other string) (*Conversation, error) {
	if identity == "" {
		return nil, apperror.ErrUnauthenticated
	}
	if other == "" {
		return nil, apperror.ErrInvalidParams.WithMessage("other participant is required")
	}
	if other == identity {
		return nil, apperror.ErrInvalidParams.WithMessage("cannot start a conversation with yourself")
	}

	conv, err := r.store.FindConversationBetween(ctx, identity, other)
	if err != nil {
		return nil, apperror.Remote(err)
	}
	if conv == nil {
		conv, err = r.store.CreateConversation(ctx, identity, other, r.now())
		if err != nil {
			return nil, apperror.Remote(err)
		}
		r.logger.Info("Conversation created", "conversation_id", conv.ID)
	}

	r.cache.Invalidate(query.ConversationsKey(identity), query.ConversationsKey(other))
	return conv, nil
}

// Watch signals whenever identity's conversation list is invalidated.
func (r *ConversationRepository) Watch(identity string) *query.Watcher {
	return r.cache.Watch(query.ConversationsKey(identity))
}
