package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"studycal/internal/bus"
	appLog "studycal/internal/log"
	"studycal/internal/metrics"
)

// handleStream pushes the caller's bus messages as server-sent events. Each
// message is an SSE event named after its topic; comment lines keep idle
// connections open.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok || s.bus == nil {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	userID := userFrom(r.Context())

	msgs := make(chan bus.Message, 16)
	unsubscribe := s.bus.Subscribe(bus.All, func(m bus.Message) {
		if m.UserID != userID {
			return
		}
		select {
		case msgs <- m:
		default:
			appLog.Warn("stream: client too slow, dropping message", "user", userID, "topic", m.Topic)
		}
	})
	defer unsubscribe()

	metrics.StreamClients.Inc()
	defer metrics.StreamClients.Dec()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case m := <-msgs:
			data, err := json.Marshal(m)
			if err != nil {
				appLog.Error("stream: encode message", err, "topic", m.Topic)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", m.Topic, data)
			flusher.Flush()
		}
	}
}
