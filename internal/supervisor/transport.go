// ABOUTME: Backend MCP client construction and handshake for each transport
// ABOUTME: Wraps mark3labs/mcp-go stdio, streamable HTTP, and SSE clients

package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/2389/mcp-router/internal/store"
)

const clientName = "mcp-router"

// newBackendClient builds an MCP client for the server's transport. For
// stdio this spawns the child process and returns its os.Process so the
// supervisor can force-kill a child that ignores stdin close; for http/sse
// the process is nil and the connection opens in connect.
func newBackendClient(srv *store.BackendServer) (*client.Client, *os.Process, error) {
	switch srv.Transport {
	case store.TransportStdio:
		env := make([]string, 0, len(srv.Env))
		for k, v := range srv.Env {
			env = append(env, k+"="+v)
		}
		// The command factory mirrors the transport's default spawn but
		// keeps a reference to the cmd, whose Process outlives Close.
		var cmd *exec.Cmd
		capture := func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
			c := exec.CommandContext(ctx, command, args...)
			c.Env = append(os.Environ(), env...)
			cmd = c
			return c, nil
		}
		c, err := client.NewStdioMCPClientWithOptions(srv.Command, env, srv.Args,
			transport.WithCommandFunc(capture))
		if err != nil {
			return nil, nil, fmt.Errorf("spawning %q: %w", srv.Command, err)
		}
		var proc *os.Process
		if cmd != nil {
			proc = cmd.Process
		}
		return c, proc, nil

	case store.TransportHTTP:
		c, err := client.NewStreamableHttpClient(srv.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("creating http client for %q: %w", srv.URL, err)
		}
		return c, nil, nil

	case store.TransportSSE:
		c, err := client.NewSSEMCPClient(srv.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("creating sse client for %q: %w", srv.URL, err)
		}
		return c, nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown transport %q", srv.Transport)
	}
}

// connect opens the remote connection where needed, performs the MCP
// initialize handshake, and discovers the server's tools.
func connect(ctx context.Context, c *client.Client, tr store.Transport, version string) ([]mcp.Tool, error) {
	// Stdio clients start with the process; remote transports connect here.
	if tr != store.TransportStdio {
		if err := c.Start(ctx); err != nil {
			return nil, fmt.Errorf("connecting: %w", err)
		}
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    clientName,
		Version: version,
	}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		return nil, fmt.Errorf("initialize handshake: %w", err)
	}

	toolsRes, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("listing tools: %w", err)
	}
	return toolsRes.Tools, nil
}
