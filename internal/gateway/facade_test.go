// ABOUTME: Tests for the aggregated MCP facade
// ABOUTME: Covers catalog naming, registration bookkeeping, and bearer extraction

package gateway

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/mcp-router/internal/store"
)

func TestFacadeToolName(t *testing.T) {
	assert.Equal(t, "files__read_file", FacadeToolName("files", "read_file"))
}

func TestSplitFacadeToolName(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantServer string
		wantTool   string
		wantOK     bool
	}{
		{"simple", "files__read_file", "files", "read_file", true},
		{"tool with underscores", "files__read__file", "files", "read__file", true},
		{"no separator", "read_file", "", "", false},
		{"empty server", "__read_file", "", "", false},
		{"empty tool", "files__", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, tool, ok := SplitFacadeToolName(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantServer, server)
			assert.Equal(t, tt.wantTool, tool)
		})
	}
}

func TestBearerFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"bearer token", "Bearer mcpr_abc123", "mcpr_abc123"},
		{"missing header", "", ""},
		{"wrong scheme", "Basic abc", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/mcp", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			ctx := withBearerFromRequest(context.Background(), req)
			assert.Equal(t, tt.want, bearerFromContext(ctx))
		})
	}
}

func TestFacadeRegistrationBookkeeping(t *testing.T) {
	g, _ := newTestGateway(t)

	srv, err := g.backends.AddServer(t.Context(), &store.BackendServer{
		Name:      "files",
		Transport: store.TransportStdio,
		Command:   "files-mcp",
	})
	require.NoError(t, err)

	// Nothing registered for a stopped server.
	assert.Empty(t, g.facade.RegisteredTools(srv.ID))

	// Refresh for a server without a live connection clears the entry
	// instead of failing.
	g.facade.RefreshServer(t.Context(), srv.ID)
	assert.Empty(t, g.facade.RegisteredTools(srv.ID))

	g.facade.UnregisterServer(srv.ID)
	assert.Empty(t, g.facade.RegisteredTools(srv.ID))
}

func TestFilterCatalogRequiresToken(t *testing.T) {
	g, _ := newTestGateway(t)

	catalog := []mcp.Tool{{Name: "files__read_file"}}

	// No bearer in context: the session sees an empty catalog.
	assert.Empty(t, g.facade.filterCatalog(context.Background(), catalog))

	// A garbage bearer fares no better.
	ctx := context.WithValue(context.Background(), bearerKey{}, "not-a-token")
	assert.Empty(t, g.facade.filterCatalog(ctx, catalog))
}

func TestFilterVisibleRestrictsCatalog(t *testing.T) {
	g, _ := newTestGateway(t)
	f := g.facade

	f.mu.Lock()
	f.owners["files__read_file"] = facadeOwner{serverID: "srv-files", tool: "read_file"}
	f.owners["files__delete_file"] = facadeOwner{serverID: "srv-files", tool: "delete_file"}
	f.owners["calc__add"] = facadeOwner{serverID: "srv-calc", tool: "add"}
	f.mu.Unlock()

	catalog := []mcp.Tool{
		{Name: "files__read_file"},
		{Name: "files__delete_file"},
		{Name: "calc__add"},
		{Name: "orphan__tool"},
	}

	// The caller may reach files but not calc, and delete_file is not
	// visible on files. Entries with no recorded owner are dropped.
	visible := map[string][]mcp.Tool{
		"srv-files": {{Name: "read_file"}},
	}

	got := f.filterVisible(catalog, visible)
	require.Len(t, got, 1)
	assert.Equal(t, "files__read_file", got[0].Name)
}
