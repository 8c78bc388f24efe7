// ABOUTME: Aggregated MCP facade exposing backend tools under namespaced names
// ABOUTME: Tools register as server__tool and route through the call pipeline

package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/2389/mcp-router/internal/events"
	"github.com/2389/mcp-router/internal/pipeline"
	"github.com/2389/mcp-router/internal/store"
	"github.com/2389/mcp-router/internal/supervisor"
)

// facadeSeparator joins the backend server name and tool name in the
// aggregated catalog.
const facadeSeparator = "__"

type bearerKey struct{}

// facadeOwner maps a namespaced catalog name back to its backend.
type facadeOwner struct {
	serverID string
	tool     string
}

// Facade is the MCP server clients connect to. It mirrors the tool
// catalogs of running backends under namespaced names and forwards calls
// through the pipeline, which enforces auth, policy, and approval.
type Facade struct {
	pipeline  *pipeline.Pipeline
	backends  *supervisor.Supervisor
	servers   store.ServerStore
	bus       *events.Broadcaster
	mcpServer *server.MCPServer
	logger    *slog.Logger

	mu         sync.Mutex
	registered map[string][]string    // serverID -> facade tool names
	owners     map[string]facadeOwner // facade tool name -> backend
}

// NewFacade creates the aggregated MCP server. The catalog starts empty
// and fills as backends come up.
func NewFacade(pipe *pipeline.Pipeline, backends *supervisor.Supervisor, servers store.ServerStore, bus *events.Broadcaster, logger *slog.Logger) *Facade {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Facade{
		pipeline:   pipe,
		backends:   backends,
		servers:    servers,
		bus:        bus,
		logger:     logger.With("component", "facade"),
		registered: make(map[string][]string),
		owners:     make(map[string]facadeOwner),
	}
	f.mcpServer = server.NewMCPServer("mcp-router", Version,
		server.WithToolCapabilities(true),
		server.WithToolFilter(f.filterCatalog),
	)
	return f
}

// FacadeToolName composes the namespaced catalog name for a backend tool.
func FacadeToolName(serverName, toolName string) string {
	return serverName + facadeSeparator + toolName
}

// SplitFacadeToolName splits a namespaced catalog name back into server
// and tool. Returns false when the name carries no namespace.
func SplitFacadeToolName(name string) (serverName, toolName string, ok bool) {
	idx := strings.Index(name, facadeSeparator)
	if idx <= 0 || idx+len(facadeSeparator) >= len(name) {
		return "", "", false
	}
	return name[:idx], name[idx+len(facadeSeparator):], true
}

// StreamableHandler returns the streamable HTTP transport for the facade.
// The Authorization header is carried into the handler context so the
// pipeline can validate the router token.
func (f *Facade) StreamableHandler() http.Handler {
	return server.NewStreamableHTTPServer(f.mcpServer,
		server.WithHTTPContextFunc(withBearerFromRequest),
	)
}

// SSEHandler returns the legacy SSE transport for the facade.
func (f *Facade) SSEHandler() http.Handler {
	return server.NewSSEServer(f.mcpServer,
		server.WithSSEContextFunc(withBearerFromRequest),
	)
}

func withBearerFromRequest(ctx context.Context, r *http.Request) context.Context {
	header := r.Header.Get("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header {
		token = ""
	}
	return context.WithValue(ctx, bearerKey{}, token)
}

func bearerFromContext(ctx context.Context) string {
	token, _ := ctx.Value(bearerKey{}).(string)
	return token
}

// Watch keeps the facade catalog in sync with backend status changes
// until the context is cancelled.
func (f *Facade) Watch(ctx context.Context) {
	ch, _ := f.bus.Subscribe(ctx, events.ServerStatusChanged)
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			switch store.ServerStatus(evt.Status) {
			case store.ServerRunning:
				f.RefreshServer(ctx, evt.ServerID)
			case store.ServerStopped, store.ServerError:
				f.UnregisterServer(evt.ServerID)
			}
		}
	}
}

// RefreshServer re-registers the catalog entries for one running backend.
func (f *Facade) RefreshServer(ctx context.Context, serverID string) {
	srv, err := f.servers.GetServer(ctx, serverID)
	if err != nil {
		f.logger.Warn("catalog refresh failed", "server_id", serverID, "error", err)
		return
	}
	tools, err := f.backends.Tools(serverID)
	if err != nil {
		f.UnregisterServer(serverID)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if old := f.registered[serverID]; len(old) > 0 {
		f.mcpServer.DeleteTools(old...)
	}

	for _, name := range f.registered[serverID] {
		delete(f.owners, name)
	}

	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		facadeTool := tool
		facadeTool.Name = FacadeToolName(srv.Name, tool.Name)
		f.mcpServer.AddTool(facadeTool, f.toolHandler(serverID, tool.Name))
		f.owners[facadeTool.Name] = facadeOwner{serverID: serverID, tool: tool.Name}
		names = append(names, facadeTool.Name)
	}
	f.registered[serverID] = names
	f.logger.Info("catalog updated", "server_id", serverID, "name", srv.Name, "tools", len(names))
}

// UnregisterServer removes a backend's entries from the catalog.
func (f *Facade) UnregisterServer(serverID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if names := f.registered[serverID]; len(names) > 0 {
		f.mcpServer.DeleteTools(names...)
		for _, name := range names {
			delete(f.owners, name)
		}
	}
	delete(f.registered, serverID)
}

// RegisteredTools returns the facade names currently exposed for a server.
func (f *Facade) RegisteredTools(serverID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.registered[serverID]))
	copy(out, f.registered[serverID])
	return out
}

// filterCatalog restricts tools/list to what the calling token may reach.
// An unauthenticated session sees an empty catalog; call-time enforcement
// in the pipeline still covers clients that guess tool names.
func (f *Facade) filterCatalog(ctx context.Context, tools []mcp.Tool) []mcp.Tool {
	tok, err := f.pipeline.Authorize(ctx, bearerFromContext(ctx))
	if err != nil {
		return nil
	}
	return f.filterVisible(tools, f.pipeline.VisibleTools(ctx, tok))
}

// filterVisible keeps the catalog entries whose backend tool appears in the
// visibility map. Entries with no recorded owner are dropped.
func (f *Facade) filterVisible(tools []mcp.Tool, visible map[string][]mcp.Tool) []mcp.Tool {
	byServer := make(map[string]map[string]bool, len(visible))
	for serverID, ts := range visible {
		set := make(map[string]bool, len(ts))
		for _, t := range ts {
			set[t.Name] = true
		}
		byServer[serverID] = set
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]mcp.Tool, 0, len(tools))
	for _, tool := range tools {
		owner, ok := f.owners[tool.Name]
		if !ok {
			continue
		}
		if !byServer[owner.serverID][owner.tool] {
			continue
		}
		out = append(out, tool)
	}
	return out
}

// toolHandler adapts one backend tool into the facade. Rejections come
// back as tool errors so MCP clients see a result, not a protocol fault.
func (f *Facade) toolHandler(serverID, toolName string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tokenID := bearerFromContext(ctx)
		res, err := f.pipeline.CallTool(ctx, tokenID, serverID, toolName, req.GetArguments())
		if err != nil {
			var rej *pipeline.CallRejection
			if errors.As(err, &rej) {
				return mcp.NewToolResultError(rej.Error()), nil
			}
			return nil, err
		}
		return res, nil
	}
}
