package stream

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// MonitorHandler streams live peaks as newline-delimited JSON. The optional
// session query parameter restricts the stream to one recording session.
type MonitorHandler struct {
	broadcaster *Broadcaster
	logger      *slog.Logger
}

// NewMonitorHandler creates a monitor handler fed by b.
func NewMonitorHandler(b *Broadcaster, logger *slog.Logger) *MonitorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MonitorHandler{broadcaster: b, logger: logger}
}

func (h *MonitorHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	session := r.URL.Query().Get("session")

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	listener := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(listener)

	h.logger.Info("monitor connected", "session", session, "listeners", h.broadcaster.ListenerCount())
	defer h.logger.Info("monitor disconnected", "session", session)

	enc := json.NewEncoder(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case <-listener.done:
			return
		case peak := <-listener.C:
			if session != "" && peak.Session != session {
				continue
			}
			if err := enc.Encode(peak); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
