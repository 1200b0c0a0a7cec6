// Package transport hosts concrete notification.Dispatcher
// implementations. WebSocketDispatcher uses a dial-with-handshake-timeout
// pattern and a connMu-guarded write path to push NotificationRequest
// payloads to a connected operator console.
package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rollback-guard/internal/notification"
)

// WebSocketConfig configures the dispatcher's connection.
type WebSocketConfig struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReconnectDelay   time.Duration
}

func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReconnectDelay:   time.Second,
	}
}

// WebSocketDispatcher pushes each notification.Request as a JSON frame
// over a long-lived WebSocket connection, reconnecting lazily on the
// next dispatch if the connection has dropped.
type WebSocketDispatcher struct {
	endpoint string
	cfg      WebSocketConfig

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewWebSocketDispatcher(endpoint string, cfg WebSocketConfig) *WebSocketDispatcher {
	if cfg.HandshakeTimeout == 0 {
		cfg = DefaultWebSocketConfig()
	}
	return &WebSocketDispatcher{endpoint: endpoint, cfg: cfg}
}

func (d *WebSocketDispatcher) Dispatch(ctx context.Context, req notification.Request) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		if err := d.connectLocked(ctx); err != nil {
			return err
		}
	}

	d.conn.SetWriteDeadline(time.Now().Add(d.cfg.WriteTimeout))
	if err := d.conn.WriteJSON(req); err != nil {
		d.conn.Close()
		d.conn = nil
		return fmt.Errorf("notification websocket write: %w", err)
	}
	return nil
}

func (d *WebSocketDispatcher) connectLocked(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: d.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, d.endpoint, nil)
	if err != nil {
		return fmt.Errorf("notification websocket dial: %w", err)
	}
	d.conn = conn
	return nil
}

func (d *WebSocketDispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	d.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := d.conn.Close()
	d.conn = nil
	return err
}
