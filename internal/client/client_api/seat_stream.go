package client_api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// StreamSeats pushes seat status changes of flight ?id= as Server-Sent Events.
func (h *Handler) StreamSeats(w http.ResponseWriter, r *http.Request) {
	flightID, err := positiveID(r.URL.Query().Get("id"))
	if err != nil {
		http.Error(w, "Flight ID is required", http.StatusBadRequest)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	setupSSEHeaders(w)

	ctx := r.Context()
	events := h.Emitter.Subscribe(ctx, flightID)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"flightId\":%d}\n\n", flightID)
	flusher.Flush()
	h.Logger.Info("SSE", fmt.Sprintf("Client connected to seat events for flight %d", flightID))

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize seat event: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: seat\ndata: %s\n\n", data)
			flusher.Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from seat events for flight %d", flightID))
			return
		}
	}
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
