package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

type NATSConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
}

// Connect dials NATS with reconnect handling that logs state transitions.
func Connect(cfg NATSConfig) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("Disconnected from NATS", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("Reconnected to NATS", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			slog.Info("NATS connection closed")
		}),
		nats.Timeout(10 * time.Second),
	}
	return nats.Connect(cfg.URL, opts...)
}

// NATSFeed carries changes over NATS subjects "<prefix>.changes.<table>".
type NATSFeed struct {
	nc     *nats.Conn
	prefix string
	logger *slog.Logger
}

func NewNATSFeed(nc *nats.Conn, prefix string, logger *slog.Logger) *NATSFeed {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSFeed{nc: nc, prefix: prefix, logger: logger}
}

func (n *NATSFeed) subject(table string) string {
	return fmt.Sprintf("%s.changes.%s", n.prefix, table)
}

func (n *NATSFeed) Publish(_ context.Context, c Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("realtime: encode change: %w", err)
	}
	return n.nc.Publish(n.subject(c.Table), payload)
}

func (n *NATSFeed) Subscribe(_ context.Context, f Filter) (*Subscription, error) {
	sub := newSubscription(f, n.logger)

	nsub, err := n.nc.Subscribe(n.subject(f.Table), func(msg *nats.Msg) {
		var c Change
		if err := json.Unmarshal(msg.Data, &c); err != nil {
			n.logger.Error("Failed to decode change", "subject", msg.Subject, "error", err)
			return
		}
		sub.deliver(c)
	})
	if err != nil {
		return nil, fmt.Errorf("realtime: subscribe %s: %w", f, err)
	}
	// Flush so the server registers interest before we report success.
	if err := n.nc.Flush(); err != nil {
		nsub.Unsubscribe()
		return nil, fmt.Errorf("realtime: subscribe %s: %w", f, err)
	}
	sub.release = nsub.Unsubscribe
	return sub, nil
}

// Close is a no-op: the connection is owned by the caller.
func (n *NATSFeed) Close() error {
	return nil
}
