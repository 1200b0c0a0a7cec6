package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"rollback-guard/internal/notification"
)

// wsEcho upgrades each connection and forwards every received JSON
// frame to the messages channel.
func wsEcho(t *testing.T, messages chan<- notification.Request) http.HandlerFunc {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			var req notification.Request
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			messages <- req
		}
	}
}

func TestWebSocketDispatcherPushesFrames(t *testing.T) {
	messages := make(chan notification.Request, 1)
	server := httptest.NewServer(wsEcho(t, messages))
	defer server.Close()

	endpoint := "ws" + strings.TrimPrefix(server.URL, "http")
	d := NewWebSocketDispatcher(endpoint, DefaultWebSocketConfig())
	defer d.Close()

	req := notification.Request{
		Level:         notification.LevelWarning,
		Title:         "rollback started",
		Body:          "rollback exec-1 started for deployment dep-1",
		AudienceTags:  []string{"rollback", "URGENT"},
		CorrelationID: "dec-1",
	}
	if err := d.Dispatch(context.Background(), req); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	select {
	case got := <-messages:
		if got.Title != req.Title || got.CorrelationID != req.CorrelationID {
			t.Fatalf("frame did not round-trip: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the pushed frame")
	}
}

func TestWebSocketDispatcherReconnectsAfterDrop(t *testing.T) {
	messages := make(chan notification.Request, 4)
	server := httptest.NewServer(wsEcho(t, messages))

	endpoint := "ws" + strings.TrimPrefix(server.URL, "http")
	d := NewWebSocketDispatcher(endpoint, DefaultWebSocketConfig())
	defer d.Close()

	if err := d.Dispatch(context.Background(), notification.Request{Title: "first"}); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	<-messages

	// Drop the connection server-side; the next dispatch either fails
	// (detecting the dead connection) and the one after reconnects, or
	// reconnects immediately.
	server.CloseClientConnections()

	var delivered bool
	for attempt := 0; attempt < 5 && !delivered; attempt++ {
		if err := d.Dispatch(context.Background(), notification.Request{Title: "after-drop"}); err != nil {
			continue
		}
		select {
		case <-messages:
			delivered = true
		case <-time.After(time.Second):
		}
	}
	if !delivered {
		t.Fatalf("expected a dispatch to succeed after reconnecting")
	}
}

func TestWebSocketDispatcherFailsFastOnBadEndpoint(t *testing.T) {
	cfg := DefaultWebSocketConfig()
	cfg.HandshakeTimeout = 200 * time.Millisecond
	d := NewWebSocketDispatcher("ws://127.0.0.1:1/ws", cfg)

	if err := d.Dispatch(context.Background(), notification.Request{Title: "x"}); err == nil {
		t.Fatalf("expected a dial error for an unreachable endpoint")
	}
}
