package publisher

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// Server exposes the latest snapshot over loopback HTTP. It binds to
// 127.0.0.1 only; the feed is for same-host consumers. Requests are not
// access-logged because consumers poll at sub-second intervals.
type Server struct {
	httpServer *http.Server
	logger     *logrus.Logger
	snapshot   func() []byte
}

// NewServer creates a server on 127.0.0.1:port serving snapshot().
func NewServer(port int, snapshot func() []byte, logger *logrus.Logger) *Server {
	s := &Server{
		logger:   logger,
		snapshot: snapshot,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", s.handleState)
	r.Get("/state", s.handleState)
	r.Get("/"+StateFilename, s.handleState)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start blocks serving requests until Shutdown is called. It returns nil on
// graceful shutdown.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("serving master state over HTTP")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("state server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	body := s.snapshot()
	if body == nil {
		// No successful poll yet; serve an empty object rather than an
		// error so consumers can treat the endpoint as always-JSON.
		body = []byte("{}")
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}
