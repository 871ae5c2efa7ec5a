// Package client implements the scanning side of the wire: a request
// queue that serializes analysis requests onto one reconnecting WebSocket
// channel and correlates responses back to completion handlers.
package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mailsift/mailsift/internal/cache"
	"github.com/mailsift/mailsift/internal/config"
	"github.com/mailsift/mailsift/internal/logging"
	"github.com/mailsift/mailsift/internal/protocol"
)

// Handler receives the terminal response for one submitted request.
// It is invoked exactly once, then discarded.
type Handler func(resp protocol.Response)

// pendingRequest is a queued, not-yet-dispatched analysis request.
type pendingRequest struct {
	id          string
	fingerprint string
	prompt      string
	submittedAt time.Time
}

// Queue is the client request queue. Single-flight discipline: only one
// request is outstanding on the channel at a time; later submissions
// queue strictly FIFO and drain only after the prior handler fires.
type Queue struct {
	url   string
	store *cache.Store // optional; nil disables cache consultation

	mu           sync.Mutex
	handlers     map[string]Handler
	fingerprints map[string]string // request id -> fingerprint, for cache writes
	pending      []*pendingRequest
	inFlight     string // request id dispatched and unanswered; "" when idle
	conn         *websocket.Conn
	closed       bool

	wake chan struct{} // nudges the connect loop after Close
}

// New creates a queue that dials url. store may be nil.
func New(url string, store *cache.Store) *Queue {
	return &Queue{
		url:          url,
		store:        store,
		handlers:     make(map[string]Handler),
		fingerprints: make(map[string]string),
		wake:         make(chan struct{}, 1),
	}
}

// Start runs the channel maintenance loop until ctx is cancelled: dial,
// pump, and on disconnect retry forever on a fixed backoff. Blocking;
// callers run it in a goroutine.
func (q *Queue) Start(ctx context.Context) {
	for {
		if ctx.Err() != nil || q.isClosed() {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, q.url, nil)
		if err != nil {
			logging.Debugf("[Queue] Dial %s failed: %v", q.url, err)
			select {
			case <-ctx.Done():
				return
			case <-q.wake:
				return
			case <-time.After(config.ReconnectBackoff):
			}
			continue
		}

		logging.Infof("[Queue] Channel connected")
		q.mu.Lock()
		q.conn = conn
		q.dispatchLocked()
		q.mu.Unlock()

		q.readLoop(conn)

		// Channel went down. The dispatched-but-unanswered request, if
		// any, is abandoned: its handler stays registered but will never
		// fire. The queue marks itself idle so that, once reconnected,
		// draining resumes with the requests that were never dispatched.
		q.mu.Lock()
		q.conn = nil
		if q.inFlight != "" {
			logging.Warnf("[Queue] Channel lost with request %s in flight; abandoning it", q.inFlight)
			q.inFlight = ""
		}
		q.mu.Unlock()
	}
}

// Submit registers a completion handler for one email and enqueues an
// analysis request, dispatching immediately if nothing is in flight.
// A cache hit resolves synchronously without touching the channel.
// Returns the request id, or "" for a cache hit.
func (q *Queue) Submit(fingerprint, prompt string, handler Handler) string {
	if q.store != nil {
		verdict, ok, err := q.store.Get(fingerprint)
		if err != nil {
			logging.Warnf("[Queue] Cache lookup failed for %s: %v", fingerprint, err)
		} else if ok {
			handler(protocol.CompletionResponse("", verdict))
			return ""
		}
	}

	req := &pendingRequest{
		id:          uuid.New().String(),
		fingerprint: fingerprint,
		prompt:      prompt,
		submittedAt: time.Now(),
	}

	q.mu.Lock()
	q.handlers[req.id] = handler
	q.pending = append(q.pending, req)
	q.dispatchLocked()
	q.mu.Unlock()

	return req.id
}

// Outstanding returns the number of handlers still waiting for a response.
func (q *Queue) Outstanding() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.handlers)
}

// Close tears the channel down. Queued requests are dropped without
// firing their handlers.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	conn := q.conn
	q.conn = nil
	n := len(q.pending)
	q.pending = nil
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	if conn != nil {
		conn.Close()
	}
	if n > 0 {
		logging.Warnf("[Queue] Dropped %d queued requests on close", n)
	}
}

func (q *Queue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// dispatchLocked sends the head pending request if the channel is up and
// nothing is in flight. Caller holds mu.
func (q *Queue) dispatchLocked() {
	if q.inFlight != "" || q.conn == nil || len(q.pending) == 0 || q.closed {
		return
	}

	req := q.pending[0]
	q.pending = q.pending[1:]

	frame := protocol.Request{
		Type:      protocol.RequestTypeAnalyze,
		RequestID: req.id,
		Prompt:    req.prompt,
	}
	data, err := json.Marshal(frame)
	if err != nil {
		// Can't happen for these fields; treat as a hard programming error
		// but keep the loop alive.
		logging.Errorf("[Queue] Marshal request %s: %v", req.id, err)
		return
	}

	if err := q.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		logging.Warnf("[Queue] Write failed for %s: %v", req.id, err)
		// Requeue at the head: the request never reached the wire.
		q.pending = append([]*pendingRequest{req}, q.pending...)
		q.conn.Close()
		return
	}

	q.inFlight = req.id
	// Remember the fingerprint for the cache write on completion.
	q.fingerprints[req.id] = req.fingerprint
	logging.Debugf("[Queue] Dispatched %s", req.id)
}

// readLoop consumes response frames until the connection drops.
func (q *Queue) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var resp protocol.Response
		if err := json.Unmarshal(message, &resp); err != nil {
			logging.Warnf("[Queue] Invalid response frame: %v", err)
			continue
		}
		q.handleResponse(resp)
	}
}

// handleResponse fires and discards the handler correlated to a response,
// then drains the next pending request.
func (q *Queue) handleResponse(resp protocol.Response) {
	q.mu.Lock()
	handler, ok := q.handlers[resp.RequestID]
	if !ok {
		q.mu.Unlock()
		logging.Warnf("[Queue] Response for unknown request %s", resp.RequestID)
		return
	}
	delete(q.handlers, resp.RequestID)
	fingerprint := q.fingerprints[resp.RequestID]
	delete(q.fingerprints, resp.RequestID)
	if q.inFlight == resp.RequestID {
		q.inFlight = ""
	}
	q.dispatchLocked()
	q.mu.Unlock()

	q.maybeCache(fingerprint, resp)
	handler(resp)
}

// maybeCache persists genuine classifications. Error responses and
// synthesized unknowns (confidence 0) are transient and never cached.
func (q *Queue) maybeCache(fingerprint string, resp protocol.Response) {
	if q.store == nil || fingerprint == "" {
		return
	}
	if resp.Type != protocol.ResponseTypeCompletion {
		return
	}
	if resp.Category == protocol.CategoryUnknownThreat && resp.Confidence == 0 {
		return
	}

	verdict := protocol.Verdict{
		BriefAnalysis: resp.BriefAnalysis,
		Category:      resp.Category,
		Confidence:    resp.Confidence,
	}
	if err := q.store.Put(fingerprint, verdict, ""); err != nil {
		// Cache failure is non-fatal; the response was still delivered.
		logging.Warnf("[Queue] Cache write failed for %s: %v", fingerprint, err)
	}
}
