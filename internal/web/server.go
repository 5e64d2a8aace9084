// Package web serves the browser UI for an annotation session.
package web

import (
	"context"
	"embed"
	stderrors "errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/anno/internal/config"
	"github.com/hpungsan/anno/internal/logging"
	"github.com/hpungsan/anno/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 5 * time.Second

// NewHandler builds the routed handler for the annotation UI.
func NewHandler(ctl *session.Controller, cfg *config.Config, version string, logger *zap.Logger) (http.Handler, error) {
	logger = logging.OrNop(logger)

	// Create sub-FS for templates (strip "templates/" prefix)
	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("template sub-FS: %w", err)
	}

	// Create sub-FS for static files (strip "static/" prefix)
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("static sub-FS: %w", err)
	}

	renderer, err := NewRenderer(templateSub, version, logger)
	if err != nil {
		return nil, err
	}

	h := &Handlers{
		ctl:      ctl,
		cfg:      cfg,
		renderer: renderer,
		logger:   logger,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/annotate", http.StatusFound)
	})
	mux.HandleFunc("GET /annotate", h.HandleAnnotate)
	mux.HandleFunc("POST /annotate", h.HandleSubmit)
	mux.HandleFunc("POST /reload", h.HandleReload)
	mux.HandleFunc("GET /download", h.HandleDownload)
	mux.HandleFunc("GET /info", h.HandleInfo)
	mux.HandleFunc("GET /guidelines", h.HandleGuidelines)

	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticSub)))

	return securityHeaders(mux), nil
}

// NewServer creates the HTTP server for the annotation UI.
func NewServer(ctl *session.Controller, cfg *config.Config, version, bind string, port int, logger *zap.Logger) (*http.Server, error) {
	handler, err := NewHandler(ctl, cfg, version, logger)
	if err != nil {
		return nil, err
	}
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// Run serves until ctx is cancelled (the caller wires SIGINT/SIGTERM into ctx),
// then shuts down gracefully.
func Run(ctx context.Context, srv *http.Server, logger *zap.Logger) error {
	logger = logging.OrNop(logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("anno UI running", zap.String("url", "http://"+srv.Addr))
		if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
			logger.Warn("server is binding to all interfaces and may be accessible from the network")
		}
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
