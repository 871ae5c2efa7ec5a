package orchestrator

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mailsift/mailsift/internal/logging"
	"github.com/mailsift/mailsift/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Prompts for very long
	// emails can get big.
	maxMessageSize = 4 << 20
)

// Conn is one connected scanning client. Responses are demultiplexed back
// to the connection that submitted the request; if it has gone away by
// then, the response is dropped and the client's reconnect logic owns the
// consequences.
type Conn struct {
	ID   string
	ws   *websocket.Conn
	send chan []byte

	closed   bool
	closedMu sync.RWMutex
}

// Deliver marshals a response frame onto the connection's send buffer.
// A closed connection or full buffer drops the frame; delivery to a
// departed client is not retried.
func (c *Conn) Deliver(resp protocol.Response) {
	c.closedMu.RLock()
	closed := c.closed
	c.closedMu.RUnlock()
	if closed {
		logging.Debugf("[Hub] Dropping response %s: connection %s closed", resp.RequestID, c.ID)
		return
	}

	data, err := json.Marshal(resp)
	if err != nil {
		logging.Errorf("[Hub] Marshal response %s: %v", resp.RequestID, err)
		return
	}

	select {
	case c.send <- data:
	default:
		logging.Warnf("[Hub] Dropping response %s: connection %s send buffer full", resp.RequestID, c.ID)
	}
}

func (c *Conn) markClosed() {
	c.closedMu.Lock()
	c.closed = true
	c.closedMu.Unlock()
}

// Hub accepts WebSocket connections from scanning clients and feeds their
// request frames to the orchestrator.
type Hub struct {
	upgrader websocket.Upgrader
	submit   func(c *Conn, req protocol.Request)

	mu    sync.RWMutex
	conns map[string]*Conn
}

// NewHub creates a hub that hands every request frame to submit.
func NewHub(submit func(c *Conn, req protocol.Request)) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The daemon binds to loopback; any local origin is fine.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		submit: submit,
		conns:  make(map[string]*Conn),
	}
}

// HandleWebSocket upgrades an incoming connection and starts its pumps.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Errorf("[Hub] Upgrade error: %v", err)
		return
	}

	conn := &Conn{
		ID:   uuid.New().String(),
		ws:   ws,
		send: make(chan []byte, 256),
	}

	h.mu.Lock()
	h.conns[conn.ID] = conn
	h.mu.Unlock()
	logging.Infof("[Hub] Client connected: %s", conn.ID)

	go h.writePump(conn)
	go h.readPump(conn)
}

// ConnCount returns the number of connected clients.
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close drops every connection, for daemon shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[string]*Conn)
	h.mu.Unlock()

	for _, c := range conns {
		c.markClosed()
		c.ws.Close()
	}
}

// readPump reads request frames from the client.
func (h *Hub) readPump(c *Conn) {
	defer func() {
		h.remove(c)
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPingHandler(func(appData string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return c.ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Warnf("[Hub] Read error from %s: %v", c.ID, err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(pongWait))

		var req protocol.Request
		if err := json.Unmarshal(message, &req); err != nil {
			logging.Warnf("[Hub] Invalid frame from %s: %v", c.ID, err)
			continue
		}

		switch req.Type {
		case protocol.RequestTypeAnalyze:
			h.submit(c, req)
		case protocol.RequestTypeCancel:
			// Reserved on the wire; in-flight inference runs to completion.
			logging.Debugf("[Hub] Ignoring cancel for %s from %s", req.RequestID, c.ID)
		default:
			logging.Warnf("[Hub] Unknown request type %q from %s", req.Type, c.ID)
		}
	}
}

// writePump writes buffered frames and keepalive pings to the client.
func (h *Hub) writePump(c *Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// remove unregisters a connection after its read pump exits.
func (h *Hub) remove(c *Conn) {
	h.mu.Lock()
	if existing, ok := h.conns[c.ID]; ok && existing == c {
		delete(h.conns, c.ID)
	}
	h.mu.Unlock()

	c.markClosed()
	c.ws.Close()
	logging.Infof("[Hub] Client disconnected: %s", c.ID)
}
