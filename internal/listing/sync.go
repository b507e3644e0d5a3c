package listing

import (
	"context"

	"go-dalil/internal/realtime"
)

// Subscriber is the subscribe half of a realtime.Feed.
type Subscriber interface {
	Subscribe(ctx context.Context, f realtime.Filter) (*realtime.Subscription, error)
}

// Follow invalidates the cached listing reads whenever another instance
// writes listings, reviews or categories. It blocks until ctx is done.
func (s *Service) Follow(ctx context.Context, feed Subscriber) error {
	tables := []string{TableServices, TableReviews, TableCategories}
	subs := make([]*realtime.Subscription, 0, len(tables))
	defer func() {
		for _, sub := range subs {
			sub.Close()
		}
	}()

	merged := make(chan realtime.Change)
	for _, table := range tables {
		sub, err := feed.Subscribe(ctx, realtime.Filter{Table: table, Events: []realtime.EventType{realtime.EventAll}})
		if err != nil {
			return err
		}
		subs = append(subs, sub)
		go func() {
			for c := range sub.Events() {
				select {
				case merged <- c:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	s.logger.Info("Following listing changes")
	for {
		select {
		case c := <-merged:
			if c.Table == TableCategories {
				s.invalidateCategories()
			} else {
				s.invalidateListings()
			}
		case <-ctx.Done():
			return nil
		}
	}
}
