package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var ErrFeedClosed = errors.New("realtime: feed closed")

// MemoryFeed fans changes out inside one process. It backs single-node
// development and tests.
type MemoryFeed struct {
	logger *slog.Logger

	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool
}

func NewMemoryFeed(logger *slog.Logger) *MemoryFeed {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryFeed{
		logger: logger,
		subs:   make(map[string]*Subscription),
	}
}

func (m *MemoryFeed) Publish(_ context.Context, c Change) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrFeedClosed
	}
	for _, sub := range m.subs {
		sub.deliver(c)
	}
	return nil
}

func (m *MemoryFeed) Subscribe(_ context.Context, f Filter) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrFeedClosed
	}

	sub := newSubscription(f, m.logger)
	sub.release = func() error {
		m.mu.Lock()
		delete(m.subs, sub.ID)
		m.mu.Unlock()
		return nil
	}
	m.subs[sub.ID] = sub
	return sub, nil
}

// Subscribers reports the number of open subscriptions.
func (m *MemoryFeed) Subscribers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}

func (m *MemoryFeed) Close() error {
	m.mu.Lock()
	subs := make([]*Subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		subs = append(subs, sub)
	}
	m.closed = true
	m.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	return nil
}
