// Package realtime is the change feed: stores publish row changes after a
// successful write, and subscribers receive the changes matching a Filter.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
	EventAll    EventType = "*"
)

// Change describes one row write.
type Change struct {
	Table    string         `json:"table"`
	Type     EventType      `json:"type"`
	Record   map[string]any `json:"record"`
	CommitAt time.Time      `json:"commit_at"`
}

// Filter selects changes by table, event type and, optionally, one column
// equality. An empty Events list means every event type.
type Filter struct {
	Table  string
	Events []EventType
	Column string
	Value  string
}

var ErrInvalidFilter = errors.New("realtime: invalid row filter")

// ParseRowFilter parses the "column=eq.value" row filter form.
func ParseRowFilter(s string) (column, value string, err error) {
	column, rest, ok := strings.Cut(s, "=")
	if !ok || column == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidFilter, s)
	}
	value, ok = strings.CutPrefix(rest, "eq.")
	if !ok || value == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidFilter, s)
	}
	return column, value, nil
}

func (f Filter) Match(c Change) bool {
	if f.Table != c.Table {
		return false
	}
	if len(f.Events) > 0 && !slices.Contains(f.Events, EventAll) && !slices.Contains(f.Events, c.Type) {
		return false
	}
	if f.Column == "" {
		return true
	}
	v, ok := c.Record[f.Column]
	if !ok || v == nil {
		return false
	}
	return fmt.Sprint(v) == f.Value
}

func (f Filter) String() string {
	s := f.Table
	if f.Column != "" {
		s += "?" + f.Column + "=eq." + f.Value
	}
	return s
}

type Publisher interface {
	Publish(ctx context.Context, c Change) error
}

// Feed is implemented by every driver.
type Feed interface {
	Publisher
	Subscribe(ctx context.Context, f Filter) (*Subscription, error)
	Close() error
}
