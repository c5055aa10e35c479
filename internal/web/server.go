package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cjeanneret/SnapGo/internal/debug"
)

// Server wraps the HTTP server for the camera control interface.
type Server struct {
	httpServer *http.Server
	handlers   *Handlers
}

// NewServer creates a web server on the given port.
func NewServer(port int, handlers *Handlers) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		handlers.ServeIndex(w, r)
	})
	mux.HandleFunc("/capture", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handlers.HandleCapture(w, r)
	})
	mux.HandleFunc("/image/latest", handlers.HandleLatestImage)
	mux.HandleFunc("/config", handlers.HandleConfig)
	mux.HandleFunc("/status/stream", handlers.HandleStatusStream)

	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
		handlers: handlers,
	}
}

// Run starts the server and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		debug.Info("Web interface listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("web server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
