package chat

import (
	"context"
	"log/slog"
	"sync"

	"go-dalil/internal/query"
	"go-dalil/internal/realtime"
)

const (
	TableConversations = "conversations"
	TableMessages      = "messages"
)

// Subscriber is the subscribe half of a realtime.Feed.
type Subscriber interface {
	Subscribe(ctx context.Context, f realtime.Filter) (*realtime.Subscription, error)
}

// Synchronizer keeps cached reads consistent with writes made elsewhere. Each
// active view holds one feed subscription; every matching change invalidates
// the view's cache entries so the next read fetches again. Pushed rows are
// never merged into the cache.
type Synchronizer struct {
	feed   Subscriber
	cache  *query.Client
	logger *slog.Logger

	mu     sync.Mutex
	scopes map[string]*scope
}

// scope is one feed subscription shared by every view of the same scope.
type scope struct {
	sub  *realtime.Subscription
	refs int
	done chan struct{}
}

func NewSynchronizer(feed Subscriber, cache *query.Client) *Synchronizer {
	return &Synchronizer{
		feed:   feed,
		cache:  cache,
		logger: slog.Default(),
		scopes: make(map[string]*scope),
	}
}

// View is a handle on an open scope. Close it when the view goes inactive.
type View struct {
	s    *Synchronizer
	name string
	once sync.Once
}

func (v *View) Close() {
	v.once.Do(func() { v.s.release(v.name) })
}

// WatchConversations keeps identity's conversation list fresh. Any change to
// any conversation invalidates it; the re-fetch is scoped server-side.
func (s *Synchronizer) WatchConversations(ctx context.Context, identity string) (*View, error) {
	filter := realtime.Filter{
		Table:  TableConversations,
		Events: []realtime.EventType{realtime.EventAll},
	}
	key := query.ConversationsKey(identity)
	return s.open(ctx, "conversations:"+identity, filter, key, func(realtime.Change) {
		s.cache.Invalidate(key)
	})
}

// WatchMessages keeps one conversation's history fresh. A new message also
// changes every conversation list's preview, so those are invalidated too.
func (s *Synchronizer) WatchMessages(ctx context.Context, conversationID string) (*View, error) {
	filter := realtime.Filter{
		Table:  TableMessages,
		Events: []realtime.EventType{realtime.EventInsert},
		Column: "conversation_id",
		Value:  conversationID,
	}
	key := query.MessagesKey(conversationID)
	return s.open(ctx, "messages:"+conversationID, filter, key, func(realtime.Change) {
		s.cache.Invalidate(key)
		s.cache.InvalidateKind(query.KindConversations)
	})
}

// open joins the scope called name, subscribing on first use. A new scope
// invalidates key once its subscription is live: whatever was cached while
// nobody was subscribed may predate writes made elsewhere.
func (s *Synchronizer) open(ctx context.Context, name string, filter realtime.Filter, key query.Key, onChange func(realtime.Change)) (*View, error) {
	s.mu.Lock()
	if sc, ok := s.scopes[name]; ok {
		sc.refs++
		s.mu.Unlock()
		return &View{s: s, name: name}, nil
	}
	s.mu.Unlock()

	sub, err := s.feed.Subscribe(ctx, filter)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(key)

	s.mu.Lock()
	if sc, ok := s.scopes[name]; ok {
		// Another view opened the scope while we were subscribing.
		sc.refs++
		s.mu.Unlock()
		sub.Close()
		return &View{s: s, name: name}, nil
	}
	sc := &scope{sub: sub, refs: 1, done: make(chan struct{})}
	s.scopes[name] = sc
	s.mu.Unlock()

	go func() {
		defer close(sc.done)
		for change := range sub.Events() {
			onChange(change)
		}
	}()

	s.logger.Debug("Realtime scope opened", "scope", name, "filter", filter.String())
	return &View{s: s, name: name}, nil
}

// Follow invalidates cached chat reads on every conversation or message
// change, whether or not a live view is open, so plain HTTP reads also catch
// up with writes made on other instances. It blocks until ctx is done.
func (s *Synchronizer) Follow(ctx context.Context) error {
	conversations, err := s.feed.Subscribe(ctx, realtime.Filter{
		Table:  TableConversations,
		Events: []realtime.EventType{realtime.EventAll},
	})
	if err != nil {
		return err
	}
	defer conversations.Close()

	messages, err := s.feed.Subscribe(ctx, realtime.Filter{
		Table:  TableMessages,
		Events: []realtime.EventType{realtime.EventInsert},
	})
	if err != nil {
		return err
	}
	defer messages.Close()

	s.logger.Info("Following chat changes")
	for {
		select {
		case c, ok := <-conversations.Events():
			if !ok {
				return nil
			}
			one, two := recordString(c.Record, "participant_one"), recordString(c.Record, "participant_two")
			if one == "" || two == "" {
				s.cache.InvalidateKind(query.KindConversations)
				continue
			}
			s.cache.Invalidate(query.ConversationsKey(one), query.ConversationsKey(two))
		case c, ok := <-messages.Events():
			if !ok {
				return nil
			}
			if id := recordString(c.Record, "conversation_id"); id != "" {
				s.cache.Invalidate(query.MessagesKey(id))
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func recordString(record map[string]any, column string) string {
	v, _ := record[column].(string)
	return v
}

func (s *Synchronizer) release(name string) {
	s.mu.Lock()
	sc, ok := s.scopes[name]
	if !ok {
		s.mu.Unlock()
		return
	}
	sc.refs--
	if sc.refs > 0 {
		s.mu.Unlock()
		return
	}
	delete(s.scopes, name)
	s.mu.Unlock()

	if err := sc.sub.Close(); err != nil {
		s.logger.Warn("Failed to close realtime subscription", "scope", name, "error", err)
	}
	<-sc.done
	s.logger.Debug("Realtime scope closed", "scope", name)
}

// ActiveScopes reports how many feed subscriptions are open.
func (s *Synchronizer) ActiveScopes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.scopes)
}

// Close releases every scope regardless of outstanding views.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	scopes := s.scopes
	s.scopes = make(map[string]*scope)
	s.mu.Unlock()

	for _, sc := range scopes {
		sc.sub.Close()
		<-sc.done
	}
}
