// Package server exposes text replacement over HTTP.
//
// Endpoints:
//
//	GET  /health                     service status
//	POST /process-pdf                multipart upload, field "file"
//	POST /api/process-pdf            raw PDF request body
//	GET  /api/process-pdf?health=1   service status
//
// The replacement mapping is a JSON object read from the Replacements
// header, or else from the "replacements" form field (multipart) or query
// parameter (raw body). The processed document is returned as an
// attachment and the report as JSON in the X-Replacement-Report header.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/tsawler/pdfreplace/internal/config"
	"golang.org/x/net/netutil"
)

// ReportHeader carries the JSON report of a processed document.
const ReportHeader = "X-Replacement-Report"

// shutdownTimeout bounds the wait for in-flight requests on shutdown.
const shutdownTimeout = 15 * time.Second

// Server serves the replacement endpoints.
type Server struct {
	cfg     *config.Config
	log     *slog.Logger
	version string
	handler http.Handler
}

// New creates a Server. cfg must be valid.
func New(cfg *config.Config, log *slog.Logger, version string) *Server {
	s := &Server{cfg: cfg, log: log, version: version}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /process-pdf", s.handleUpload)
	mux.HandleFunc("GET /api/process-pdf", s.handleAPIGet)
	mux.HandleFunc("POST /api/process-pdf", s.handleRaw)
	mux.HandleFunc("/", s.handleNotFound)

	s.handler = s.logRequests(cors(mux))
	return s
}

// Handler returns the HTTP handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe listens on the configured address and serves until ctx
// is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully. At most MaxConnections connections are served at once.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.log.Handler(), slog.LevelWarn),
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()
	s.log.Info("server started",
		"addr", ln.Addr().String(),
		"version", s.version,
		"max_upload", config.FormatBytes(s.cfg.UploadLimit()),
		"timeout", s.cfg.Timeout())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
