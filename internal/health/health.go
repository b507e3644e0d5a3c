package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const (
	pingTimeout = 2 * time.Second

	StateConnected    = "connected"
	StateDisconnected = "disconnected"
)

// Pinger reports whether one dependency is reachable.
type Pinger func(ctx context.Context) error

type Status struct {
	Healthy    bool              `json:"healthy"`
	Components map[string]string `json:"components"`
}

type Checker struct {
	mu      sync.RWMutex
	pingers map[string]Pinger
}

// NewChecker pings each non-nil dependency.
func NewChecker(db *pgxpool.Pool, redisClient *redis.Client, nc *nats.Conn) *Checker {
	c := &Checker{pingers: make(map[string]Pinger)}
	if db != nil {
		c.Add("database", db.Ping)
	}
	if redisClient != nil {
		c.Add("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	if nc != nil {
		c.Add("nats", func(context.Context) error {
			if !nc.IsConnected() {
				return errors.New(nc.Status().String())
			}
			return nil
		})
	}
	return c
}

func (c *Checker) Add(name string, p Pinger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pingers[name] = p
}

// Check runs every ping concurrently, each bounded by pingTimeout.
func (c *Checker) Check(ctx context.Context) *Status {
	c.mu.RLock()
	names := make([]string, 0, len(c.pingers))
	for name := range c.pingers {
		names = append(names, name)
	}
	pingers := make([]Pinger, len(names))
	sort.Strings(names)
	for i, name := range names {
		pingers[i] = c.pingers[name]
	}
	c.mu.RUnlock()

	results := make([]string, len(names))
	var g errgroup.Group
	for i, ping := range pingers {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, pingTimeout)
			defer cancel()
			if err := ping(pctx); err != nil {
				results[i] = StateDisconnected
			} else {
				results[i] = StateConnected
			}
			return nil
		})
	}
	g.Wait()

	status := &Status{Healthy: true, Components: make(map[string]string, len(names))}
	for i, name := range names {
		status.Components[name] = results[i]
		if results[i] != StateConnected {
			status.Healthy = false
		}
	}
	return status
}

func (c *Checker) IsHealthy(ctx context.Context) bool {
	return c.Check(ctx).Healthy
}

// ServeHTTP reports component state; it always answers 200 while the process runs.
func (c *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, http.StatusOK, c.Check(r.Context()))
}

// Ready answers 503 until every dependency is reachable.
func (c *Checker) Ready(w http.ResponseWriter, r *http.Request) {
	status := c.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeStatus(w, code, status)
}

func writeStatus(w http.ResponseWriter, code int, status *Status) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(status)
}
