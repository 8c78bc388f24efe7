// ABOUTME: Gateway orchestrator wiring the store, supervisor, pipeline, and HTTP server
// ABOUTME: Owns startup order, background workers, and graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/mcp-router/internal/approval"
	"github.com/2389/mcp-router/internal/auth"
	"github.com/2389/mcp-router/internal/config"
	"github.com/2389/mcp-router/internal/events"
	"github.com/2389/mcp-router/internal/pipeline"
	"github.com/2389/mcp-router/internal/policy"
	"github.com/2389/mcp-router/internal/store"
	"github.com/2389/mcp-router/internal/supervisor"
	"github.com/2389/mcp-router/internal/token"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Gateway orchestrates the router components: persistence, the backend
// supervisor, the call pipeline, the aggregated MCP facade, and the admin
// HTTP API.
type Gateway struct {
	config     *config.Config
	store      *store.SQLiteStore
	bus        *events.Broadcaster
	tokens     *token.Authority
	policy     *policy.Engine
	approvals  *approval.Queue
	backends   *supervisor.Supervisor
	pipeline   *pipeline.Pipeline
	facade     *Facade
	sessions   *auth.SessionIssuer
	authn      *auth.Authenticator
	httpServer *http.Server
	logger     *slog.Logger
}

// New assembles a gateway from configuration. Nothing is listening or
// spawned until Run.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	bus := events.NewBroadcaster(logger)
	tokens := token.NewAuthority(st, cfg.Tokens.DefaultTTL, cfg.Tokens.MaxTTL, logger)
	pol := policy.NewEngine(st, logger)
	approvals := approval.NewQueue(st, bus, cfg.Approvals.TTL, logger)
	backends := supervisor.New(st, bus, logger, supervisor.Options{
		StartTimeout:   cfg.Backends.StartTimeout,
		StopGrace:      cfg.Backends.StopGrace,
		HealthInterval: cfg.Backends.HealthInterval,
		Version:        Version,
	})
	pipe := pipeline.New(tokens, pol, approvals, backends, st, logger, cfg.Backends.CallTimeout)
	sessions := auth.NewSessionIssuer([]byte(cfg.Auth.JWTSecret), 0)

	g := &Gateway{
		config:    cfg,
		store:     st,
		bus:       bus,
		tokens:    tokens,
		policy:    pol,
		approvals: approvals,
		backends:  backends,
		pipeline:  pipe,
		sessions:  sessions,
		authn:     auth.NewAuthenticator(cfg.Auth.AdminPasswordHash, sessions),
		logger:    logger.With("component", "gateway"),
	}
	g.facade = NewFacade(pipe, backends, st, bus, logger)
	return g, nil
}

// Run starts the gateway and blocks until the context is cancelled or the
// HTTP server fails. Backend servers stay stopped until started through
// the admin API.
func (g *Gateway) Run(ctx context.Context) error {
	if err := g.backends.ResetStatuses(ctx); err != nil {
		return fmt.Errorf("resetting server statuses: %w", err)
	}

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()
	go g.approvals.RunSweeper(workerCtx, g.config.Approvals.SweepInterval)
	go g.backends.RunHealthMonitor(workerCtx)
	go g.facade.Watch(workerCtx)

	mux := http.NewServeMux()
	g.registerRoutes(mux)

	g.httpServer = &http.Server{
		Addr:              g.config.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("listening", "addr", g.config.Server.HTTPAddr)
		if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		g.logger.Info("shutting down")
		return g.shutdown()
	case err := <-errCh:
		g.shutdown()
		return fmt.Errorf("http server: %w", err)
	}
}

// registerRoutes mounts the admin API, the aggregated MCP endpoints, and
// health checks.
func (g *Gateway) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/health/ready", g.handleReady)
	mux.HandleFunc("/api/login", g.handleLogin)

	requireSession := auth.RequireSession(g.sessions)
	admin := http.NewServeMux()
	admin.HandleFunc("/api/servers", g.handleServers)
	admin.HandleFunc("/api/servers/", g.handleServerRoutes)
	admin.HandleFunc("/api/policies", g.handlePolicies)
	admin.HandleFunc("/api/policies/", g.handlePolicyByID)
	admin.HandleFunc("/api/approvals", g.handleListApprovals)
	admin.HandleFunc("/api/approvals/", g.handleApprovalRoutes)
	admin.HandleFunc("/api/tokens", g.handleTokens)
	admin.HandleFunc("/api/tokens/", g.handleTokenRoutes)
	admin.HandleFunc("/api/audit", g.handleAudit)
	admin.HandleFunc("/api/events", g.handleEventStream)
	mux.Handle("/api/", requireSession(admin))

	// Aggregated MCP endpoints for clients; bearer tokens are checked in
	// the pipeline, not here.
	mux.Handle("/mcp", g.facade.StreamableHandler())
	mux.Handle("/mcp/", g.facade.StreamableHandler())
	sse := g.facade.SSEHandler()
	mux.Handle("/sse", sse)
	mux.Handle("/sse/", sse)
	mux.Handle("/message", sse)
}

// shutdown stops the HTTP server, running backends, and the store.
func (g *Gateway) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var firstErr error
	if g.httpServer != nil {
		if err := g.httpServer.Shutdown(shutdownCtx); err != nil {
			firstErr = err
		}
	}
	g.backends.StopAll(shutdownCtx)
	g.bus.Close()
	if err := g.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok","version":"` + Version + `"}`))
}

func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	// Ready once the store answers queries.
	if _, err := g.store.ListServers(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ready"}`))
}
