// ABOUTME: Lifecycle supervisor for backend MCP servers
// ABOUTME: Owns status transitions, health monitoring, and the live tool catalog

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/2389/mcp-router/internal/events"
	"github.com/2389/mcp-router/internal/ids"
	"github.com/2389/mcp-router/internal/store"
)

// ErrServerRunning is returned when removing a server that is not stopped.
var ErrServerRunning = errors.New("server must be stopped first")

// ErrNotRunning is returned when calling a tool on a server that has no
// live connection.
var ErrNotRunning = errors.New("server is not running")

// ValidationError reports an invalid server definition.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// Options configures supervisor timing. Zero values fall back to defaults.
type Options struct {
	StartTimeout   time.Duration
	StopGrace      time.Duration
	HealthInterval time.Duration
	Version        string // reported as client version in the MCP handshake
}

// handle is the live side of a running server: the connected client, the
// tools discovered during the handshake, and for stdio the child process.
type handle struct {
	client *client.Client
	proc   *os.Process // nil for remote transports
	tools  []mcp.Tool
}

// Supervisor manages backend server lifecycles. All status transitions for
// a given server are serialized through a per-server lock, so concurrent
// start/stop/remove calls cannot interleave.
type Supervisor struct {
	store  store.Store
	bus    *events.Broadcaster
	logger *slog.Logger
	opts   Options

	mu      sync.Mutex
	handles map[string]*handle
	locks   map[string]*sync.Mutex
}

// New creates a supervisor. On creation every persisted server is treated
// as stopped: any status left over from a previous process is stale.
func New(st store.Store, bus *events.Broadcaster, logger *slog.Logger, opts Options) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.StartTimeout == 0 {
		opts.StartTimeout = 30 * time.Second
	}
	if opts.StopGrace == 0 {
		opts.StopGrace = 5 * time.Second
	}
	if opts.HealthInterval == 0 {
		opts.HealthInterval = 30 * time.Second
	}
	return &Supervisor{
		store:   st,
		bus:     bus,
		logger:  logger.With("component", "supervisor"),
		opts:    opts,
		handles: make(map[string]*handle),
		locks:   make(map[string]*sync.Mutex),
	}
}

// ResetStatuses marks every persisted server stopped. Called once at daemon
// startup before any server is started, since no connections survive a
// process restart.
func (s *Supervisor) ResetStatuses(ctx context.Context) error {
	servers, err := s.store.ListServers(ctx)
	if err != nil {
		return fmt.Errorf("listing servers: %w", err)
	}
	for _, srv := range servers {
		if srv.Status == store.ServerStopped {
			continue
		}
		if err := s.store.UpdateServerStatus(ctx, srv.ID, store.ServerStopped, ""); err != nil {
			return fmt.Errorf("resetting %s: %w", srv.ID, err)
		}
	}
	return nil
}

// AddServer validates and persists a new backend server definition. The
// server starts in the stopped state; nothing is spawned here.
func (s *Supervisor) AddServer(ctx context.Context, srv *store.BackendServer) (*store.BackendServer, error) {
	if err := validateServer(srv); err != nil {
		return nil, err
	}
	srv.ID = ids.New()
	srv.Status = store.ServerStopped
	srv.LastError = ""
	if err := s.store.CreateServer(ctx, srv); err != nil {
		return nil, err
	}
	s.logger.Info("server added", "server_id", srv.ID, "name", srv.Name, "transport", srv.Transport)
	return srv, nil
}

// GetServer returns one server definition.
func (s *Supervisor) GetServer(ctx context.Context, id string) (*store.BackendServer, error) {
	return s.store.GetServer(ctx, id)
}

// ListServers returns all server definitions.
func (s *Supervisor) ListServers(ctx context.Context) ([]*store.BackendServer, error) {
	return s.store.ListServers(ctx)
}

// UpdateServer applies a changed definition for a stopped server. Changing
// the connection recipe of a live server would desynchronize it from its
// running process, so running servers must be stopped first.
func (s *Supervisor) UpdateServer(ctx context.Context, srv *store.BackendServer) error {
	lock := s.transitionLock(srv.ID)
	lock.Lock()
	defer lock.Unlock()

	current, err := s.store.GetServer(ctx, srv.ID)
	if err != nil {
		return err
	}
	if current.Status != store.ServerStopped && current.Status != store.ServerError {
		return ErrServerRunning
	}
	if err := validateServer(srv); err != nil {
		return err
	}
	srv.Status = current.Status
	srv.LastError = current.LastError
	srv.CreatedAt = current.CreatedAt
	return s.store.UpdateServer(ctx, srv)
}

// RemoveServer deletes a stopped server. Removing a live server is a
// conflict; callers stop it first.
func (s *Supervisor) RemoveServer(ctx context.Context, id string) error {
	lock := s.transitionLock(id)
	lock.Lock()
	defer lock.Unlock()

	srv, err := s.store.GetServer(ctx, id)
	if err != nil {
		return err
	}
	if srv.Status != store.ServerStopped && srv.Status != store.ServerError {
		return ErrServerRunning
	}
	if err := s.store.DeleteServer(ctx, id); err != nil {
		return err
	}
	s.logger.Info("server removed", "server_id", id, "name", srv.Name)
	return nil
}

// StartServer brings a server to running: spawn or connect, MCP handshake,
// tool discovery. A connection failure does not propagate as an error;
// the server lands in the error state with the cause recorded, and callers
// observe it through status. The returned error covers only unknown ids
// and store failures.
func (s *Supervisor) StartServer(ctx context.Context, id string) error {
	lock := s.transitionLock(id)
	lock.Lock()
	defer lock.Unlock()
	return s.startLocked(ctx, id)
}

func (s *Supervisor) startLocked(ctx context.Context, id string) error {
	srv, err := s.store.GetServer(ctx, id)
	if err != nil {
		return err
	}
	if srv.Status == store.ServerRunning || srv.Status == store.ServerStarting {
		return nil
	}

	if err := s.setStatus(ctx, id, store.ServerStarting, ""); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, s.opts.StartTimeout)
	defer cancel()

	c, proc, err := newBackendClient(srv)
	if err != nil {
		s.logger.Warn("server start failed", "server_id", id, "error", err)
		return s.setStatus(ctx, id, store.ServerError, err.Error())
	}
	tools, err := connect(startCtx, c, srv.Transport, s.opts.Version)
	if err != nil {
		s.closeClient(id, c, proc)
		s.logger.Warn("server start failed", "server_id", id, "error", err)
		return s.setStatus(ctx, id, store.ServerError, err.Error())
	}

	s.mu.Lock()
	s.handles[id] = &handle{client: c, proc: proc, tools: tools}
	s.mu.Unlock()

	s.logger.Info("server running", "server_id", id, "name", srv.Name, "tools", len(tools))
	s.audit(ctx, store.AuditServerStart, id, true, map[string]any{"tools": len(tools)})
	return s.setStatus(ctx, id, store.ServerRunning, "")
}

// StopServer brings a server to stopped, waiting at most the stop grace
// period for the connection to close before force-killing a stdio child.
// Stopping an already-stopped server is a no-op.
func (s *Supervisor) StopServer(ctx context.Context, id string) error {
	lock := s.transitionLock(id)
	lock.Lock()
	defer lock.Unlock()
	return s.stopLocked(ctx, id)
}

func (s *Supervisor) stopLocked(ctx context.Context, id string) error {
	srv, err := s.store.GetServer(ctx, id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	h := s.handles[id]
	delete(s.handles, id)
	s.mu.Unlock()

	if h == nil {
		if srv.Status != store.ServerStopped {
			return s.setStatus(ctx, id, store.ServerStopped, srv.LastError)
		}
		return nil
	}

	if err := s.setStatus(ctx, id, store.ServerStopping, ""); err != nil {
		return err
	}

	s.closeClient(id, h.client, h.proc)

	s.logger.Info("server stopped", "server_id", id, "name", srv.Name)
	s.audit(ctx, store.AuditServerStop, id, true, nil)
	return s.setStatus(ctx, id, store.ServerStopped, "")
}

// RestartServer stops then starts a server as one transition: the lock is
// held across both phases so no other lifecycle call can interleave. A stop
// failure does not cancel the start attempt.
func (s *Supervisor) RestartServer(ctx context.Context, id string) error {
	lock := s.transitionLock(id)
	lock.Lock()
	defer lock.Unlock()

	if err := s.stopLocked(ctx, id); err != nil {
		s.logger.Warn("restart: stop failed, starting anyway", "server_id", id, "error", err)
	}
	return s.startLocked(ctx, id)
}

// closeClient closes a backend connection, waiting at most the stop grace
// period. A stdio child still running after that is force-killed; Close's
// process wait then returns and the kernel reaps the child.
func (s *Supervisor) closeClient(id string, c *client.Client, proc *os.Process) {
	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()
	select {
	case <-done:
		return
	case <-time.After(s.opts.StopGrace):
	}

	if proc == nil {
		s.logger.Warn("server close exceeded grace period", "server_id", id, "grace", s.opts.StopGrace)
		return
	}
	s.logger.Warn("server did not exit within grace period, killing", "server_id", id, "pid", proc.Pid)
	if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.logger.Error("killing server process", "server_id", id, "pid", proc.Pid, "error", err)
		return
	}
	<-done
}

// Tools returns the tool catalog discovered from one running server.
func (s *Supervisor) Tools(id string) ([]mcp.Tool, error) {
	s.mu.Lock()
	h := s.handles[id]
	s.mu.Unlock()
	if h == nil {
		return nil, ErrNotRunning
	}
	out := make([]mcp.Tool, len(h.tools))
	copy(out, h.tools)
	return out, nil
}

// RunningServers returns the ids of servers with a live connection.
func (s *Supervisor) RunningServers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.handles))
	for id := range s.handles {
		out = append(out, id)
	}
	return out
}

// CallTool forwards one tool invocation to a running server.
func (s *Supervisor) CallTool(ctx context.Context, id, toolName string, args map[string]any) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	h := s.handles[id]
	s.mu.Unlock()
	if h == nil {
		return nil, ErrNotRunning
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = toolName
	req.Params.Arguments = args
	res, err := h.client.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("calling %s on %s: %w", toolName, id, err)
	}
	return res, nil
}

// RunHealthMonitor pings every running server at the configured interval
// until the context is cancelled. A server that fails its ping is torn
// down and moved to the error state.
func (s *Supervisor) RunHealthMonitor(ctx context.Context) {
	ticker := time.NewTicker(s.opts.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkHealth(ctx)
		}
	}
}

// StopAll stops every running server. Called during daemon shutdown.
func (s *Supervisor) StopAll(ctx context.Context) {
	for _, id := range s.RunningServers() {
		if err := s.StopServer(ctx, id); err != nil {
			s.logger.Warn("shutdown stop failed", "server_id", id, "error", err)
		}
	}
}

func (s *Supervisor) checkHealth(ctx context.Context) {
	for _, id := range s.RunningServers() {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		s.mu.Lock()
		h := s.handles[id]
		s.mu.Unlock()
		if h == nil {
			cancel()
			continue
		}
		err := h.client.Ping(pingCtx)
		cancel()
		if err == nil {
			continue
		}
		s.failServer(ctx, id, h, fmt.Errorf("health check: %w", err))
	}
}

// failServer tears down a server whose connection is no longer healthy.
// The handle identity is re-checked under the transition lock so a racing
// stop or restart is not clobbered.
func (s *Supervisor) failServer(ctx context.Context, id string, expected *handle, cause error) {
	lock := s.transitionLock(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	h := s.handles[id]
	if h != expected {
		s.mu.Unlock()
		return
	}
	delete(s.handles, id)
	s.mu.Unlock()

	s.closeClient(id, h.client, h.proc)
	s.logger.Warn("server unhealthy", "server_id", id, "error", cause)
	if err := s.setStatus(ctx, id, store.ServerError, cause.Error()); err != nil {
		s.logger.Error("recording server failure", "server_id", id, "error", err)
	}
}

// setStatus persists a status change and publishes it to observers.
func (s *Supervisor) setStatus(ctx context.Context, id string, status store.ServerStatus, lastError string) error {
	if err := s.store.UpdateServerStatus(ctx, id, status, lastError); err != nil {
		return fmt.Errorf("updating status for %s: %w", id, err)
	}
	if s.bus != nil {
		evt := events.Event{
			Type:      events.ServerStatusChanged,
			ServerID:  id,
			Status:    string(status),
			Timestamp: time.Now(),
		}
		if lastError != "" {
			evt.Detail = map[string]any{"error": lastError}
		}
		s.bus.Publish(evt)
	}
	return nil
}

// audit records a supervisor action. Audit failures are logged, never
// propagated; bookkeeping must not undo a lifecycle operation.
func (s *Supervisor) audit(ctx context.Context, action store.AuditAction, serverID string, success bool, detail map[string]any) {
	entry := &store.AuditEntry{
		Action:     action,
		TargetType: "server",
		TargetID:   serverID,
		Success:    success,
		Detail:     detail,
	}
	if err := s.store.AppendAudit(ctx, entry); err != nil {
		s.logger.Warn("audit append failed", "action", action, "server_id", serverID, "error", err)
	}
}

// transitionLock returns the per-server lock, creating it on first use.
func (s *Supervisor) transitionLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}

func validateServer(srv *store.BackendServer) error {
	if srv.Name == "" {
		return &ValidationError{Field: "name", Msg: "required"}
	}
	switch srv.Transport {
	case store.TransportStdio:
		if srv.Command == "" {
			return &ValidationError{Field: "command", Msg: "required for stdio transport"}
		}
	case store.TransportHTTP, store.TransportSSE:
		if srv.URL == "" {
			return &ValidationError{Field: "url", Msg: fmt.Sprintf("required for %s transport", srv.Transport)}
		}
	default:
		return &ValidationError{Field: "transport", Msg: fmt.Sprintf("must be stdio, http, or sse, got %q", srv.Transport)}
	}
	return nil
}
