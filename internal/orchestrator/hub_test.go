package orchestrator

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mailsift/mailsift/internal/protocol"
)

// startHub serves a hub over httptest and returns it with a submit log.
func startHub(t *testing.T, submit func(c *Conn, req protocol.Request)) (*Hub, *websocket.Conn) {
	t.Helper()
	hub := NewHub(submit)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return hub, conn
}

func writeFrame(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestHubRoundTrip(t *testing.T) {
	// Echo a fixed completion for every submitted request.
	_, conn := startHub(t, func(c *Conn, req protocol.Request) {
		c.Deliver(protocol.CompletionResponse(req.RequestID, protocol.Verdict{
			BriefAnalysis: "nothing suspicious",
			Category:      protocol.CategorySafe,
			Confidence:    0.85,
		}))
	})

	writeFrame(t, conn, protocol.Request{Type: protocol.RequestTypeAnalyze, RequestID: "r1", Prompt: "p"})

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var resp protocol.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.RequestID != "r1" || resp.Category != protocol.CategorySafe {
		t.Errorf("response = %+v", resp)
	}
}

func TestHubSkipsMalformedAndCancelFrames(t *testing.T) {
	var mu sync.Mutex
	var submitted []string
	hub, conn := startHub(t, func(c *Conn, req protocol.Request) {
		mu.Lock()
		submitted = append(submitted, req.RequestID)
		mu.Unlock()
		c.Deliver(protocol.CompletionResponse(req.RequestID, protocol.Verdict{Category: protocol.CategorySafe, Confidence: 0.5}))
	})

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	writeFrame(t, conn, protocol.Request{Type: protocol.RequestTypeCancel, RequestID: "c1"})
	writeFrame(t, conn, protocol.Request{Type: protocol.RequestTypeAnalyze, RequestID: "r1", Prompt: "p"})

	// The analyze frame's response proves the earlier frames were skipped
	// without killing the connection.
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(submitted) != 1 || submitted[0] != "r1" {
		t.Errorf("submitted = %v, want only r1", submitted)
	}
	if hub.ConnCount() != 1 {
		t.Errorf("ConnCount = %d, want 1", hub.ConnCount())
	}
}

func TestHubRemovesDisconnectedClients(t *testing.T) {
	hub, conn := startHub(t, func(c *Conn, req protocol.Request) {})

	if hub.ConnCount() != 1 {
		t.Fatalf("ConnCount = %d, want 1", hub.ConnCount())
	}
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ConnCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("ConnCount = %d after disconnect", hub.ConnCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDeliverAfterCloseDrops(t *testing.T) {
	c := &Conn{ID: "x", send: make(chan []byte, 1)}
	c.markClosed()
	c.Deliver(protocol.CompletionResponse("r1", protocol.Verdict{Category: protocol.CategorySafe}))
	select {
	case <-c.send:
		t.Fatal("frame buffered on a closed connection")
	default:
	}
}
