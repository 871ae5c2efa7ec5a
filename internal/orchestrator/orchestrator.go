// Package orchestrator is the scheduling core of the daemon. It accepts
// analysis requests from any number of client connections, enforces
// single-flight admission to the one shared worker, and demultiplexes
// terminal responses back to the originating connection by request id.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mailsift/mailsift/internal/config"
	"github.com/mailsift/mailsift/internal/logging"
	"github.com/mailsift/mailsift/internal/protocol"
	"github.com/mailsift/mailsift/internal/sysinfo"
	"github.com/mailsift/mailsift/internal/worker"
)

// Responder receives the terminal response for a request. Connections
// implement it; tests substitute recorders.
type Responder interface {
	Deliver(resp protocol.Response)
}

// item is an admitted request tagged with its originating connection.
type item struct {
	responder  Responder
	req        protocol.Request
	admittedAt time.Time
}

// Orchestrator owns the admission FIFO and the worker lifecycle manager.
// The FIFO is deliberately unbounded: unbounded submission simply grows
// it. Exactly one request is ever in flight to the worker.
type Orchestrator struct {
	life    *worker.Manager
	metrics *Metrics

	mu     sync.Mutex
	queue  []*item
	notify chan struct{}
}

// New wires an orchestrator to a lifecycle manager.
func New(life *worker.Manager, metrics *Metrics) *Orchestrator {
	o := &Orchestrator{
		life:    life,
		metrics: metrics,
		notify:  make(chan struct{}, 1),
	}

	life.OnStateChange(func(s worker.State) {
		metrics.workerState.Set(float64(s))
		if s == worker.StateCreating {
			metrics.workerLoads.Inc()
		}
	})
	return o
}

// Submit admits a request. Admission never blocks and never fails; every
// admitted request yields exactly one terminal response.
func (o *Orchestrator) Submit(r Responder, req protocol.Request) {
	o.mu.Lock()
	o.queue = append(o.queue, &item{responder: r, req: req, admittedAt: time.Now()})
	depth := len(o.queue)
	o.mu.Unlock()

	o.metrics.admitted.Inc()
	o.metrics.queueDepth.Set(float64(depth))
	logging.Debugf("[Orchestrator] Admitted %s (depth=%d)", req.RequestID, depth)

	select {
	case o.notify <- struct{}{}:
	default:
	}
}

// QueueDepth returns the number of requests waiting for admission.
func (o *Orchestrator) QueueDepth() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// Run is the scheduling loop. It pulls the head item only when nothing
// else is in flight, processes it to a terminal response, and re-enters.
// No failure path is fatal to the loop. On ctx cancellation remaining
// queued requests are dropped without responses; clients observe the
// connection close instead.
func (o *Orchestrator) Run(ctx context.Context) {
	for {
		it := o.pop()
		if it == nil {
			select {
			case <-ctx.Done():
				o.drain()
				return
			case <-o.notify:
				continue
			}
		}

		resp := o.process(ctx, it)
		it.responder.Deliver(resp)
		o.observe(resp)

		if o.QueueDepth() == 0 {
			o.life.ArmIdleTeardown()
		}

		select {
		case <-ctx.Done():
			o.drain()
			return
		default:
		}
	}
}

// pop removes and returns the head item, or nil when the queue is empty.
func (o *Orchestrator) pop() *item {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.queue) == 0 {
		return nil
	}
	it := o.queue[0]
	o.queue = o.queue[1:]
	o.metrics.queueDepth.Set(float64(len(o.queue)))
	return it
}

// drain discards queued requests on teardown without responding.
func (o *Orchestrator) drain() {
	o.mu.Lock()
	n := len(o.queue)
	o.queue = nil
	o.mu.Unlock()
	o.metrics.queueDepth.Set(0)
	if n > 0 {
		logging.Warnf("[Orchestrator] Drained %d queued requests on shutdown", n)
	}
}

// process runs one admitted request to a terminal response.
func (o *Orchestrator) process(ctx context.Context, it *item) protocol.Response {
	// New admission cancels any pending idle teardown and kicks off
	// worker creation if needed.
	o.life.EnsureStarted()

	if o.life.State() == worker.StateInsufficientResources {
		return o.insufficientResponse(it.req.RequestID)
	}

	proxy, resp := o.awaitReady(ctx, it.req.RequestID)
	if resp != nil {
		return *resp
	}

	verdict, err := proxy.Classify(ctx, it.req.Prompt)
	if err != nil {
		logging.Errorf("[Orchestrator] Inference failed for %s: %v", it.req.RequestID, err)
		return protocol.ErrorResponse(it.req.RequestID, fmt.Sprintf("inference failed: %v", err))
	}

	logging.Infof("[Orchestrator] %s classified as %s (%.2f) after %s",
		it.req.RequestID, verdict.Category, verdict.Confidence, time.Since(it.admittedAt).Round(time.Millisecond))
	return protocol.CompletionResponse(it.req.RequestID, verdict)
}

// awaitReady polls the lifecycle manager until the worker is Ready or a
// standing condition resolves the request without it.
func (o *Orchestrator) awaitReady(ctx context.Context, requestID string) (*worker.Proxy, *protocol.Response) {
	ticker := time.NewTicker(config.ReadyPollInterval)
	defer ticker.Stop()

	for {
		switch o.life.State() {
		case worker.StateReady:
			if proxy := o.life.Proxy(); proxy != nil {
				return proxy, nil
			}
		case worker.StateInsufficientResources:
			resp := o.insufficientResponse(requestID)
			return nil, &resp
		case worker.StateLoadError:
			err := o.life.LoadError()
			resp := protocol.ErrorResponse(requestID, fmt.Sprintf("model load failed: %v", err))
			return nil, &resp
		case worker.StateUnloaded, worker.StateUnloading:
			// Teardown raced the admission; restart creation.
			o.life.EnsureStarted()
		}

		select {
		case <-ctx.Done():
			resp := protocol.ErrorResponse(requestID, "daemon shutting down")
			return nil, &resp
		case <-ticker.C:
		}
	}
}

// insufficientResponse synthesizes the terminal unknown for resource
// pressure, carrying a human-readable please-wait reason.
func (o *Orchestrator) insufficientResponse(requestID string) protocol.Response {
	cond := o.life.Condition()
	o.metrics.synthesized.Inc()
	return protocol.UnknownResponse(requestID, fmt.Sprintf(
		"Not enough memory to run the model (need %s, have %s). Analysis will resume automatically once memory frees up.",
		sysinfo.FormatBytes(cond.RequiredMemory), sysinfo.FormatBytes(cond.AvailableMemory)))
}

// observe updates terminal-response counters.
func (o *Orchestrator) observe(resp protocol.Response) {
	if resp.Type == protocol.ResponseTypeError {
		o.metrics.errors.Inc()
		return
	}
	o.metrics.completions.WithLabelValues(resp.Category).Inc()
}
