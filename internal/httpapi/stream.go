package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"moneta.app/internal/paging"
)

const streamHeartbeat = 15 * time.Second

func (a *API) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	req, err := paging.FromQuery(r.URL.Query())
	if err != nil {
		handleError(w, r, err)
		return
	}
	page, err := a.notify.List(r.Context(), caller(r), req)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := a.notify.MarkRead(r.Context(), caller(r), r.PathValue("id")); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleNotificationStream pushes the caller's new notifications as
// Server-Sent Events until the client disconnects.
func (a *API) handleNotificationStream(w http.ResponseWriter, r *http.Request) {
	hub := a.notify.Hub()
	if hub == nil {
		writeError(w, r, http.StatusServiceUnavailable, "streaming disabled")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	// the stream outlives the server write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := hub.Subscribe(ctx, caller(r))

	// Send an initial comment to establish the stream
	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(streamHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case n, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(n)
			if err != nil {
				continue
			}
			_, _ = w.Write([]byte("event: notification\nid: " + n.ID + "\ndata: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}
