// ABOUTME: Gateway orchestrator for the memory HTTP server
// ABOUTME: Owns the engine lifecycle manager and the HTTP server lifecycle

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/2389/memos-gateway/internal/config"
	"github.com/2389/memos-gateway/internal/lifecycle"
)

// Gateway serves the memory API over HTTP. Every request that needs the
// engine goes through the lifecycle manager, so the first such request
// triggers lazy engine construction.
type Gateway struct {
	config     *config.Config
	manager    *lifecycle.Manager
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// New creates a Gateway serving the memory API for the given manager.
func New(cfg *config.Config, manager *lifecycle.Manager, logger *slog.Logger) *Gateway {
	g := &Gateway{
		config:  cfg,
		manager: manager,
		logger:  logger.With("component", "gateway"),
	}

	g.mux = http.NewServeMux()
	g.registerRoutes(g.mux)

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           g.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g
}

// Handler exposes the gateway's routing for tests
func (g *Gateway) Handler() http.Handler {
	return g.mux
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is
// already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown gracefully stops the HTTP server and releases the engine.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	if err := g.manager.Close(); err != nil {
		errs = append(errs, fmt.Errorf("manager close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
