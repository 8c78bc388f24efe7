// ABOUTME: SSE stream of router events for admin observers
// ABOUTME: GET /api/events pushes server status and approval lifecycle changes

package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/2389/mcp-router/internal/events"
)

// EventPayload is the JSON body of one SSE event.
type EventPayload struct {
	Type       string         `json:"type"`
	ServerID   string         `json:"serverId,omitempty"`
	ApprovalID string         `json:"approvalId,omitempty"`
	Status     string         `json:"status,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
	Timestamp  string         `json:"timestamp"`
}

// handleEventStream streams all router events to the admin client as
// server-sent events until the client disconnects.
func (g *Gateway) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		g.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	ch, _ := g.bus.Subscribe(r.Context(), "")

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case evt, ok := <-ch:
			if !ok {
				return
			}
			g.writeSSEEvent(w, evt)
			flusher.Flush()
		}
	}
}

func (g *Gateway) writeSSEEvent(w http.ResponseWriter, evt events.Event) {
	payload := EventPayload{
		Type:       string(evt.Type),
		ServerID:   evt.ServerID,
		ApprovalID: evt.ApprovalID,
		Status:     evt.Status,
		Detail:     evt.Detail,
		Timestamp:  evt.Timestamp.UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		g.logger.Error("marshaling sse event", "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\n", evt.Type)
	fmt.Fprintf(w, "data: %s\n\n", data)
}
