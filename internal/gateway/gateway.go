// ABOUTME: Gateway orchestrator that wires the store, presence registry, and relay
// ABOUTME: Manages the HTTP server lifecycle, routing, and health endpoints

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/tasklane/chat-relay/internal/auth"
	"github.com/tasklane/chat-relay/internal/config"
	"github.com/tasklane/chat-relay/internal/presence"
	"github.com/tasklane/chat-relay/internal/relay"
	"github.com/tasklane/chat-relay/internal/store"
)

// Gateway orchestrates the chat-relay server components.
// It owns the durable store, the presence registry, and the HTTP server
// that exposes the REST and SSE surface.
type Gateway struct {
	config     *config.Config
	store      store.Store
	registry   *presence.Registry
	relay      *relay.Service
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Gateway from the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	g := &Gateway{
		config:   cfg,
		store:    st,
		registry: presence.NewRegistry(cfg.Stream.Buffer, logger),
		logger:   logger.With("component", "gateway"),
	}
	g.relay = relay.New(st, g.registry, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/health/ready", g.handleReady)
	g.registerAPIRoutes(mux)

	g.httpServer = &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: mux,
	}

	return g, nil
}

// registerAPIRoutes mounts the authenticated API surface under /api/.
func (g *Gateway) registerAPIRoutes(mux *http.ServeMux) {
	api := http.NewServeMux()
	api.HandleFunc("/api/stream", g.handleStream)
	api.HandleFunc("/api/messages", g.handleSendMessage)
	api.HandleFunc("/api/typing", g.handleTyping)
	api.HandleFunc("/api/conversations", g.handleConversations)
	api.HandleFunc("/api/conversations/", g.handleConversationSubresource)

	var middleware func(http.Handler) http.Handler
	if g.config.Auth.JWTSecret != "" {
		verifier := auth.NewJWTVerifier([]byte(g.config.Auth.JWTSecret))
		middleware = auth.HTTPMiddleware(verifier, g.logger)
	} else {
		g.logger.Warn("auth.jwt_secret not set, trusting identity headers (development mode)")
		middleware = auth.DevMiddleware(g.logger)
	}

	mux.Handle("/api/", middleware(api))
}

// Run starts the HTTP server and blocks until the context is canceled or
// the server fails. A graceful shutdown is attempted on the way out.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.config.Server.HTTPAddr, err)
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
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), g.config.Server.ShutdownTimeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown gracefully stops the HTTP server, closes live streams, and
// releases the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	var errs []error

	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}

	// Closing the registry ends every SSE loop so handlers can return.
	g.registry.Close()

	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	g.logger.Info("shutdown complete")
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 once the server is accepting traffic, reporting
// how many users currently hold a live stream.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d connected)", g.registry.Connected())
}
