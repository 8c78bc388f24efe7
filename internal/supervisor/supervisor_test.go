// ABOUTME: Tests for backend server lifecycle management
// ABOUTME: Covers validation, status transitions, failure capture, and conflicts

package supervisor

import (
	"context"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/mcp-router/internal/events"
	"github.com/2389/mcp-router/internal/store"
)

func newTestSupervisor(t *testing.T) (*Supervisor, store.Store, *events.Broadcaster) {
	return newTestSupervisorWithOptions(t, Options{
		StartTimeout: 5 * time.Second,
		StopGrace:    time.Second,
	})
}

func newTestSupervisorWithOptions(t *testing.T, opts Options) (*Supervisor, store.Store, *events.Broadcaster) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "router.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	bus := events.NewBroadcaster(nil)
	t.Cleanup(bus.Close)

	return New(st, bus, nil, opts), st, bus
}

func stdioServer(name, command string) *store.BackendServer {
	return &store.BackendServer{
		Name:      name,
		Transport: store.TransportStdio,
		Command:   command,
	}
}

func TestAddServerValidation(t *testing.T) {
	sup, _, _ := newTestSupervisor(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		srv   *store.BackendServer
		field string
	}{
		{"missing name", &store.BackendServer{Transport: store.TransportStdio, Command: "echo"}, "name"},
		{"stdio without command", &store.BackendServer{Name: "a", Transport: store.TransportStdio}, "command"},
		{"http without url", &store.BackendServer{Name: "b", Transport: store.TransportHTTP}, "url"},
		{"sse without url", &store.BackendServer{Name: "c", Transport: store.TransportSSE}, "url"},
		{"unknown transport", &store.BackendServer{Name: "d", Transport: "pigeon"}, "transport"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sup.AddServer(ctx, tt.srv)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestAddServerStartsStopped(t *testing.T) {
	sup, st, _ := newTestSupervisor(t)
	ctx := context.Background()

	srv, err := sup.AddServer(ctx, stdioServer("calc", "calc-mcp"))
	require.NoError(t, err)
	require.NotEmpty(t, srv.ID)

	got, err := st.GetServer(ctx, srv.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ServerStopped, got.Status)
	assert.Empty(t, got.LastError)
}

func TestStartServerUnknownID(t *testing.T) {
	sup, _, _ := newTestSupervisor(t)
	err := sup.StartServer(context.Background(), "no-such-server")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStartServerSpawnFailureRecordsError(t *testing.T) {
	sup, st, bus := newTestSupervisor(t)
	ctx := context.Background()

	srv, err := sup.AddServer(ctx, stdioServer("broken", "/nonexistent/mcp-server-binary"))
	require.NoError(t, err)

	ch, _ := bus.Subscribe(ctx, events.ServerStatusChanged)

	// The spawn fails but StartServer itself must not error; the failure
	// is observable through status.
	require.NoError(t, sup.StartServer(ctx, srv.ID))

	got, err := st.GetServer(ctx, srv.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ServerError, got.Status)
	assert.NotEmpty(t, got.LastError)

	statuses := drainStatuses(t, ch, 2)
	assert.Contains(t, statuses, string(store.ServerStarting))
	assert.Contains(t, statuses, string(store.ServerError))
}

func TestStartServerHungChildDoesNotWedgeLock(t *testing.T) {
	// A child that never speaks MCP and ignores stdin close: the handshake
	// times out, the close stalls on process exit, and the grace period
	// triggers a force-kill. StartServer must come back instead of holding
	// the transition lock on an unbounded wait.
	sup, st, _ := newTestSupervisorWithOptions(t, Options{
		StartTimeout: 200 * time.Millisecond,
		StopGrace:    200 * time.Millisecond,
	})
	ctx := context.Background()

	srv, err := sup.AddServer(ctx, &store.BackendServer{
		Name:      "hung",
		Transport: store.TransportStdio,
		Command:   "sleep",
		Args:      []string{"300"},
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- sup.StartServer(ctx, srv.ID) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("StartServer blocked on a child that ignores stdin close")
	}

	got, err := st.GetServer(ctx, srv.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ServerError, got.Status)
	assert.NotEmpty(t, got.LastError)

	// The transition lock is free again for later lifecycle operations.
	require.NoError(t, sup.RemoveServer(ctx, srv.ID))
}

func TestCloseClientKillsStuckProcess(t *testing.T) {
	sup, _, _ := newTestSupervisorWithOptions(t, Options{StopGrace: 200 * time.Millisecond})

	c, proc, err := newBackendClient(&store.BackendServer{
		Name:      "hung",
		Transport: store.TransportStdio,
		Command:   "sleep",
		Args:      []string{"300"},
	})
	require.NoError(t, err)
	require.NotNil(t, proc)

	start := time.Now()
	sup.closeClient("hung", c, proc)
	assert.Less(t, time.Since(start), 3*time.Second)

	// Signal 0 probes liveness; once the child is killed and reaped it fails.
	require.Eventually(t, func() bool {
		return proc.Signal(syscall.Signal(0)) != nil
	}, 2*time.Second, 50*time.Millisecond)
}

func TestStopServerWhenStoppedIsNoop(t *testing.T) {
	sup, st, _ := newTestSupervisor(t)
	ctx := context.Background()

	srv, err := sup.AddServer(ctx, stdioServer("idle", "idle-mcp"))
	require.NoError(t, err)

	require.NoError(t, sup.StopServer(ctx, srv.ID))

	got, err := st.GetServer(ctx, srv.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ServerStopped, got.Status)
}

func TestStopServerClearsErrorState(t *testing.T) {
	sup, st, _ := newTestSupervisor(t)
	ctx := context.Background()

	srv, err := sup.AddServer(ctx, stdioServer("flaky", "flaky-mcp"))
	require.NoError(t, err)
	require.NoError(t, st.UpdateServerStatus(ctx, srv.ID, store.ServerError, "boom"))

	require.NoError(t, sup.StopServer(ctx, srv.ID))

	got, err := st.GetServer(ctx, srv.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ServerStopped, got.Status)
}

func TestRestartServerAttemptsStartAfterStop(t *testing.T) {
	sup, st, _ := newTestSupervisor(t)
	ctx := context.Background()

	srv, err := sup.AddServer(ctx, stdioServer("broken", "/nonexistent/mcp-server-binary"))
	require.NoError(t, err)
	require.NoError(t, st.UpdateServerStatus(ctx, srv.ID, store.ServerError, "crashed"))

	// The stop phase has nothing live to tear down; the start phase must
	// still run and record its own failure.
	require.NoError(t, sup.RestartServer(ctx, srv.ID))

	got, err := st.GetServer(ctx, srv.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ServerError, got.Status)
	assert.Contains(t, got.LastError, "mcp-server-binary")
}

func TestRestartServerUnknownID(t *testing.T) {
	sup, _, _ := newTestSupervisor(t)
	err := sup.RestartServer(context.Background(), "no-such-server")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRemoveServerRequiresStopped(t *testing.T) {
	sup, st, _ := newTestSupervisor(t)
	ctx := context.Background()

	srv, err := sup.AddServer(ctx, stdioServer("busy", "busy-mcp"))
	require.NoError(t, err)
	require.NoError(t, st.UpdateServerStatus(ctx, srv.ID, store.ServerRunning, ""))

	err = sup.RemoveServer(ctx, srv.ID)
	assert.ErrorIs(t, err, ErrServerRunning)

	require.NoError(t, st.UpdateServerStatus(ctx, srv.ID, store.ServerStopped, ""))
	require.NoError(t, sup.RemoveServer(ctx, srv.ID))

	_, err = st.GetServer(ctx, srv.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateServerRequiresStopped(t *testing.T) {
	sup, st, _ := newTestSupervisor(t)
	ctx := context.Background()

	srv, err := sup.AddServer(ctx, stdioServer("cfg", "cfg-mcp"))
	require.NoError(t, err)
	require.NoError(t, st.UpdateServerStatus(ctx, srv.ID, store.ServerRunning, ""))

	srv.Command = "cfg-mcp-v2"
	assert.ErrorIs(t, sup.UpdateServer(ctx, srv), ErrServerRunning)

	require.NoError(t, st.UpdateServerStatus(ctx, srv.ID, store.ServerStopped, ""))
	require.NoError(t, sup.UpdateServer(ctx, srv))

	got, err := st.GetServer(ctx, srv.ID)
	require.NoError(t, err)
	assert.Equal(t, "cfg-mcp-v2", got.Command)
}

func TestResetStatuses(t *testing.T) {
	sup, st, _ := newTestSupervisor(t)
	ctx := context.Background()

	a, err := sup.AddServer(ctx, stdioServer("a", "a-mcp"))
	require.NoError(t, err)
	b, err := sup.AddServer(ctx, stdioServer("b", "b-mcp"))
	require.NoError(t, err)
	require.NoError(t, st.UpdateServerStatus(ctx, a.ID, store.ServerRunning, ""))
	require.NoError(t, st.UpdateServerStatus(ctx, b.ID, store.ServerError, "crashed"))

	require.NoError(t, sup.ResetStatuses(ctx))

	for _, id := range []string{a.ID, b.ID} {
		got, err := st.GetServer(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, store.ServerStopped, got.Status)
	}
}

func TestToolsAndCallRequireLiveConnection(t *testing.T) {
	sup, _, _ := newTestSupervisor(t)
	ctx := context.Background()

	srv, err := sup.AddServer(ctx, stdioServer("offline", "offline-mcp"))
	require.NoError(t, err)

	_, err = sup.Tools(srv.ID)
	assert.ErrorIs(t, err, ErrNotRunning)

	_, err = sup.CallTool(ctx, srv.ID, "ping", nil)
	assert.ErrorIs(t, err, ErrNotRunning)

	assert.Empty(t, sup.RunningServers())
}

func drainStatuses(t *testing.T, ch <-chan events.Event, n int) []string {
	t.Helper()
	var out []string
	for i := 0; i < n; i++ {
		select {
		case evt := <-ch:
			out = append(out, evt.Status)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d of %d", i+1, n)
		}
	}
	return out
}
