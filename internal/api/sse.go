package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tutu-network/tutu/internal/infra/logfanout"
)

// handleLogStream streams a model's captured process output as
// server-sent events: the retained buffer first (historical), then a
// historical_complete marker, then every new line as it is produced.
func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	model := chi.URLParam(r, "alias")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events, cancel := s.logs.Subscribe(model)
	defer cancel()

	for {
		select {
		case ev, open := <-events:
			if !open {
				return
			}
			writeSSEEvent(w, ev)
			flusher.Flush()
			if ev.Type == logfanout.EventError {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, ev logfanout.Event) {
	payload := map[string]any{"type": string(ev.Type)}
	if ev.Log != nil {
		payload["timestamp"] = ev.Log.Timestamp.UnixMilli()
		payload["text"] = ev.Log.Text
	}
	if ev.Err != "" {
		payload["error"] = ev.Err
	}
	data, _ := json.Marshal(payload)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
}
