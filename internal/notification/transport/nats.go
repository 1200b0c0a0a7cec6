package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/nats-io/nats.go"

	"rollback-guard/internal/notification"
)

// NATSConfig configures the dispatcher's connection for a plain
// publish-only client (no JetStream: notifications are fire-and-forget
// by design, so an at-most-once core NATS subject is enough).
type NATSConfig struct {
	URL           string
	ClientName    string
	Subject       string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		ClientName:    "rollback-guard",
		Subject:       "rollback.notifications",
		MaxReconnects: 10,
		ReconnectWait: 2 * time.Second,
		Timeout:       10 * time.Second,
	}
}

// NATSDispatcher publishes each notification.Request as a JSON payload
// to a configured subject.
type NATSDispatcher struct {
	cfg  NATSConfig
	log  logr.Logger
	conn *nats.Conn
}

func NewNATSDispatcher(log logr.Logger, cfg NATSConfig) (*NATSDispatcher, error) {
	if cfg.URL == "" {
		cfg = DefaultNATSConfig()
	}
	d := &NATSDispatcher{cfg: cfg, log: log.WithName("notification.nats")}

	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.ClientName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			d.log.Error(err, "nats error", "subject", subject)
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			d.log.Info("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			d.log.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	d.conn = conn
	return d, nil
}

func (d *NATSDispatcher) Dispatch(ctx context.Context, req notification.Request) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := d.conn.Publish(d.cfg.Subject, payload); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return d.conn.FlushWithContext(ctx)
}

func (d *NATSDispatcher) Close() {
	d.conn.Close()
}
