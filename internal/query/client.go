// Package query is the process-wide read cache shared by the repositories.
//
// Reads are keyed by Key. Concurrent reads of the same key share one fetch,
// successful results are retained, and invalidation marks entries stale so the
// next read fetches again and watchers of the key are notified.
package query

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const revalidateTimeout = 10 * time.Second

type Status int

const (
	// StatusEmpty means nothing is cached and no fetch is running.
	StatusEmpty Status = iota
	// StatusLoading means nothing is cached yet but a fetch is in flight.
	StatusLoading
	StatusFresh
	StatusStale
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusFresh:
		return "fresh"
	case StatusStale:
		return "stale"
	default:
		return "empty"
	}
}

type entry struct {
	value     any
	hasValue  bool
	updatedAt time.Time
	// gen is bumped on every invalidation. A fetch records the generation it
	// started under and its result is stored stale if gen moved meanwhile.
	gen          uint64
	invalid      bool
	fetching     int
	revalidating bool
}

type Client struct {
	mu       sync.Mutex
	entries  map[Key]*entry
	watchers map[*Watcher]struct{}
	group    singleflight.Group

	staleTime time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

type Option func(*Client)

// WithStaleTime sets the age after which a cached value is served once more
// and refreshed in the background. Zero disables age-based revalidation.
func WithStaleTime(d time.Duration) Option {
	return func(c *Client) { c.staleTime = d }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		entries:  make(map[Key]*entry),
		watchers: make(map[*Watcher]struct{}),
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch returns the cached value for key, or runs fn to load it.
func Fetch[T any](ctx context.Context, c *Client, key Key, fn func(context.Context) (T, error)) (T, error) {
	load := func(ctx context.Context) (any, error) {
		return fn(ctx)
	}

	c.mu.Lock()
	e := c.entry(key)
	if e.hasValue && !e.invalid {
		value, _ := e.value.(T)
		if c.staleTime > 0 && !e.revalidating && c.now().Sub(e.updatedAt) > c.staleTime {
			e.revalidating = true
			gen := e.gen
			c.mu.Unlock()
			go c.revalidate(key, gen, load)
			return value, nil
		}
		c.mu.Unlock()
		return value, nil
	}
	gen := e.gen
	c.mu.Unlock()

	v, err := c.load(ctx, key, gen, load, false)
	if err != nil {
		var zero T
		return zero, err
	}
	value, _ := v.(T)
	return value, nil
}

// load runs fetch once per (key, generation) no matter how many callers wait.
// The fetch itself is detached from the first caller's cancellation; each
// caller stops waiting when its own context ends.
func (c *Client) load(ctx context.Context, key Key, gen uint64, fetch func(context.Context) (any, error), background bool) (any, error) {
	ch := c.group.DoChan(flightKey(key, gen), func() (any, error) {
		c.beginFetch(key)
		value, err := fetch(context.WithoutCancel(ctx))
		c.endFetch(key, gen, value, err, background)
		return value, err
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) revalidate(key Key, gen uint64, fetch func(context.Context) (any, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), revalidateTimeout)
	defer cancel()

	if _, err := c.load(ctx, key, gen, fetch, true); err != nil {
		c.logger.Warn("Background revalidation failed", "key", key.String(), "error", err)
	}
}

func (c *Client) beginFetch(key Key) {
	c.mu.Lock()
	c.entry(key).fetching++
	c.mu.Unlock()
}

// endFetch stores a successful result. A background revalidation replaced a
// value nobody asked to re-read, so its watchers are told to read again.
func (c *Client) endFetch(key Key, gen uint64, value any, err error, background bool) {
	c.mu.Lock()
	e := c.entry(key)
	e.fetching--
	e.revalidating = false
	if err != nil {
		c.mu.Unlock()
		return
	}
	e.value = value
	e.hasValue = true
	e.updatedAt = c.now()
	e.invalid = e.gen != gen

	var notify []*Watcher
	if background && !e.invalid {
		for w := range c.watchers {
			if w.matches(key) {
				notify = append(notify, w)
			}
		}
	}
	c.mu.Unlock()

	for _, w := range notify {
		w.signal()
	}
}

// entry returns the entry for key, creating a placeholder so that
// invalidations issued while the first fetch is in flight are tracked.
// Callers hold c.mu.
func (c *Client) entry(key Key) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	return e
}

// Invalidate marks keys stale and notifies their watchers. It returns only
// after the entries are marked, so a read issued afterwards by the same
// caller always fetches again.
func (c *Client) Invalidate(keys ...Key) {
	c.mu.Lock()
	var notify []*Watcher
	for _, key := range keys {
		e := c.entry(key)
		e.gen++
		e.invalid = true
		for w := range c.watchers {
			if w.matches(key) {
				notify = append(notify, w)
			}
		}
	}
	c.mu.Unlock()

	for _, w := range notify {
		w.signal()
	}
}

// InvalidateKind marks every key of kind stale and notifies all watchers of kind.
func (c *Client) InvalidateKind(kinds ...Kind) {
	c.mu.Lock()
	var notify []*Watcher
	for _, kind := range kinds {
		for key, e := range c.entries {
			if key.Kind == kind {
				e.gen++
				e.invalid = true
			}
		}
		for w := range c.watchers {
			if w.key.Kind == kind {
				notify = append(notify, w)
			}
		}
	}
	c.mu.Unlock()

	for _, w := range notify {
		w.signal()
	}
}

func (c *Client) Status(key Key) Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	switch {
	case !ok:
		return StatusEmpty
	case !e.hasValue && e.fetching > 0:
		return StatusLoading
	case !e.hasValue:
		return StatusEmpty
	case e.invalid:
		return StatusStale
	case c.staleTime > 0 && c.now().Sub(e.updatedAt) > c.staleTime:
		return StatusStale
	default:
		return StatusFresh
	}
}

// Prune drops idle entries not refreshed within maxAge and returns how many
// were removed. Entries with a fetch in flight or an active watcher are kept.
func (c *Client) Prune(maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	watched := make(map[Key]bool, len(c.watchers))
	for w := range c.watchers {
		watched[w.key] = true
	}

	cutoff := c.now().Add(-maxAge)
	removed := 0
	for key, e := range c.entries {
		if e.fetching > 0 || watched[key] {
			continue
		}
		if e.updatedAt.Before(cutoff) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked keys.
func (c *Client) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func flightKey(key Key, gen uint64) string {
	return key.String() + "#" + strconv.FormatUint(gen, 10)
}
