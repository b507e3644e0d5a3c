package realtime

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const subscriptionBuffer = 64

// Subscription delivers matching changes until closed. Delivery never blocks
// the feed: when the buffer is full the change is dropped and logged.
type Subscription struct {
	ID     string
	filter Filter
	events chan Change
	logger *slog.Logger

	mu      sync.Mutex
	closed  bool
	release func() error
}

func newSubscription(f Filter, logger *slog.Logger) *Subscription {
	return &Subscription{
		ID:     uuid.NewString(),
		filter: f,
		events: make(chan Change, subscriptionBuffer),
		logger: logger,
	}
}

func (s *Subscription) Events() <-chan Change {
	return s.events
}

func (s *Subscription) Filter() Filter {
	return s.filter
}

func (s *Subscription) deliver(c Change) {
	if !s.filter.Match(c) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- c:
	default:
		s.logger.Warn("Subscription buffer full, dropping change",
			"subscription", s.ID,
			"table", c.Table,
			"type", c.Type,
		)
	}
}

// Close releases the driver resources and closes Events. Later calls are no-ops.
func (s *Subscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.events)
	release := s.release
	s.mu.Unlock()

	if release != nil {
		return release()
	}
	return nil
}
