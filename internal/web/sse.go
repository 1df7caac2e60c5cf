package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/user/portage/internal/model"
)

// handleEvents streams one job's events as server-sent events. The
// stream ends when the job reaches a terminal state, the client
// disconnects, or the job is deleted.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only GET is allowed")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "sse_not_supported", "streaming not supported")
		return
	}

	ch, unsubscribe, err := s.orch.Subscribe(id)
	if err != nil {
		s.jobError(w, err)
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Late subscribers get the current state first, in the same tagged
	// shape as live events: complete for terminal jobs, progress
	// otherwise.
	if j, err := s.orch.Get(id); err == nil {
		ev := model.Event{
			JobID:    j.ID,
			Status:   j.Status,
			Scan:     j.ScanProgress,
			Transfer: j.TransferProgress,
		}
		if j.Status.Terminal() {
			ev.Kind = model.EventComplete
		} else {
			ev.Kind = model.EventProgress
		}
		s.sendEvent(w, string(ev.Kind), ev)
		flusher.Flush()
		if ev.Kind == model.EventComplete {
			return
		}
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.sendEvent(w, string(ev.Kind), ev)
			flusher.Flush()
			if ev.Kind == model.EventComplete {
				return
			}
		}
	}
}

// sendEvent writes one SSE frame: event: <type>\ndata: <json>\n\n.
func (s *Server) sendEvent(w http.ResponseWriter, eventType string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		s.log.Warn("sse marshal failed", "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", payload)
}
