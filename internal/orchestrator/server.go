package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/mailsift/mailsift/internal/logging"
	"github.com/mailsift/mailsift/internal/protocol"
	"github.com/mailsift/mailsift/internal/worker"
)

// Server binds the hub and metrics onto one loopback HTTP listener and
// runs the scheduling loop.
type Server struct {
	orch    *Orchestrator
	hub     *Hub
	metrics *Metrics
	httpSrv *http.Server
}

// NewServer assembles the daemon's serving surface around a lifecycle
// manager.
func NewServer(addr string, life *worker.Manager) *Server {
	metrics := NewMetrics()
	orch := New(life, metrics)
	hub := NewHub(func(c *Conn, req protocol.Request) {
		orch.Submit(c, req)
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.HandleWebSocket)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return &Server{
		orch:    orch,
		hub:     hub,
		metrics: metrics,
		httpSrv: &http.Server{Addr: addr, Handler: mux},
	}
}

// Run serves until ctx is cancelled, then shuts everything down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Infof("[Server] Listening on %s", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	loopDone := make(chan struct{})
	go func() {
		s.orch.Run(ctx)
		close(loopDone)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.httpSrv.Shutdown(shutdownCtx)
	s.hub.Close()
	<-loopDone
	return nil
}
