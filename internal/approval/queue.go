// ABOUTME: Approval queue holding tool calls suspended pending a human decision
// ABOUTME: In-process waiters are released exactly once by respond or the expiry sweep

package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/mcp-router/internal/events"
	"github.com/2389/mcp-router/internal/ids"
	"github.com/2389/mcp-router/internal/store"
)

// ErrAlreadyResolved indicates the approval request had already left the pending state.
var ErrAlreadyResolved = errors.New("approval request already resolved")

// Queue manages approval requests and the pipeline goroutines waiting on them.
type Queue struct {
	store  store.ApprovalStore
	bus    *events.Broadcaster
	ttl    time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	waiters map[string]chan store.ApprovalStatus // request id -> waiter, released once
}

// NewQueue creates an approval queue. ttl is the lifetime of a new request
// before the sweep expires it.
func NewQueue(st store.ApprovalStore, bus *events.Broadcaster, ttl time.Duration, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		store:   st,
		bus:     bus,
		ttl:     ttl,
		logger:  logger.With("component", "approval"),
		waiters: make(map[string]chan store.ApprovalStatus),
	}
}

// Create opens a new pending approval request and returns it. ttlSeconds of
// zero uses the queue's configured default.
func (q *Queue) Create(ctx context.Context, clientID, serverID, toolName string, toolArguments map[string]any, policyRuleID string, ttlSeconds int) (*store.ApprovalRequest, error) {
	ttl := q.ttl
	if ttlSeconds > 0 {
		ttl = time.Duration(ttlSeconds) * time.Second
	}

	now := time.Now()
	req := &store.ApprovalRequest{
		ID:            ids.New(),
		ClientID:      clientID,
		ServerID:      serverID,
		ToolName:      toolName,
		ToolArguments: toolArguments,
		PolicyRuleID:  policyRuleID,
		Status:        store.ApprovalPending,
		RequestedAt:   now.UnixMilli(),
		ExpiresAt:     now.Add(ttl).UnixMilli(),
	}

	if err := q.store.CreateApproval(ctx, req); err != nil {
		return nil, fmt.Errorf("creating approval request: %w", err)
	}

	q.logger.Info("approval request created",
		"id", req.ID,
		"client_id", clientID,
		"server_id", serverID,
		"tool", toolName,
		"rule_id", policyRuleID)

	if q.bus != nil {
		q.bus.Publish(events.Event{
			Type:       events.ApprovalCreated,
			ApprovalID: req.ID,
			ServerID:   serverID,
			Status:     string(store.ApprovalPending),
		})
	}
	return req, nil
}

// Respond resolves a pending request to approved or rejected. Returns
// store.ErrNotFound for an unknown id and ErrAlreadyResolved when the
// request already left pending. Among concurrent responders exactly one
// wins; the losers observe ErrAlreadyResolved.
func (q *Queue) Respond(ctx context.Context, id string, approved bool, respondedBy, note string) error {
	status := store.ApprovalRejected
	if approved {
		status = store.ApprovalApproved
	}

	won, err := q.store.ResolveApproval(ctx, id, status, respondedBy, note, time.Now().UnixMilli())
	if err != nil {
		return err
	}
	if !won {
		// Distinguish unknown from already-resolved
		if _, err := q.store.GetApproval(ctx, id); err != nil {
			return err
		}
		return ErrAlreadyResolved
	}

	q.logger.Info("approval request resolved",
		"id", id,
		"status", status,
		"responded_by", respondedBy)

	q.release(id, status)
	if q.bus != nil {
		q.bus.Publish(events.Event{
			Type:       events.ApprovalResolved,
			ApprovalID: id,
			Status:     string(status),
		})
	}
	return nil
}

// Wait blocks until the request resolves or ctx is cancelled, returning the
// terminal status. The waiter is registered before the pending row is
// re-checked, so a resolution racing with this call is never missed.
func (q *Queue) Wait(ctx context.Context, id string) (store.ApprovalStatus, error) {
	ch := make(chan store.ApprovalStatus, 1)

	q.mu.Lock()
	q.waiters[id] = ch
	q.mu.Unlock()
	defer q.removeWaiter(id)

	// The request may have resolved before the waiter registered.
	req, err := q.store.GetApproval(ctx, id)
	if err != nil {
		return "", err
	}
	if req.Status != store.ApprovalPending {
		return req.Status, nil
	}

	select {
	case status := <-ch:
		return status, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// CleanupExpired sweeps pending requests past their expiry, transitions them
// to expired, releases their waiters, and returns how many were swept.
func (q *Queue) CleanupExpired(ctx context.Context) (int, error) {
	swept, err := q.store.ExpirePendingApprovals(ctx, time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sweeping expired approvals: %w", err)
	}

	for _, id := range swept {
		q.release(id, store.ApprovalExpired)
		if q.bus != nil {
			q.bus.Publish(events.Event{
				Type:       events.ApprovalResolved,
				ApprovalID: id,
				Status:     string(store.ApprovalExpired),
			})
		}
	}

	if len(swept) > 0 {
		q.logger.Info("expired approval requests swept", "count", len(swept))
	}
	return len(swept), nil
}

// RunSweeper runs CleanupExpired on the given interval until ctx is
// cancelled. Intended to run as a background goroutine.
func (q *Queue) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := q.CleanupExpired(ctx); err != nil {
				q.logger.Error("approval sweep failed", "error", err)
			}
		}
	}
}

// GetPendingRequests returns all pending approval requests.
func (q *Queue) GetPendingRequests(ctx context.Context) ([]*store.ApprovalRequest, error) {
	return q.store.ListPendingApprovals(ctx)
}

// GetRequest returns one approval request by id.
func (q *Queue) GetRequest(ctx context.Context, id string) (*store.ApprovalRequest, error) {
	return q.store.GetApproval(ctx, id)
}

// release wakes the waiter for id, if any. The buffered channel and the
// delete-before-send make a second release for the same id a no-op.
func (q *Queue) release(id string, status store.ApprovalStatus) {
	q.mu.Lock()
	ch, ok := q.waiters[id]
	if ok {
		delete(q.waiters, id)
	}
	q.mu.Unlock()

	if ok {
		ch <- status
	}
}

func (q *Queue) removeWaiter(id string) {
	q.mu.Lock()
	delete(q.waiters, id)
	q.mu.Unlock()
}
