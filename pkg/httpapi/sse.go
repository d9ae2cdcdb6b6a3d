package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/yourusername/bgquiz/internal/crawlqueue"
)

// StreamAddLastMatches implements GET /addLastMatchesAndSave/stream?jobId=,
// relaying a crawlqueue.Job's event stream to the client as Server-Sent
// Events. Framing follows the teacher's pkg/api/sse.go RolloutSSE handler:
// manual "event:"/"data:" lines plus http.Flusher, no SSE library (none
// appears anywhere in the retrieved corpus).
func (h *Handlers) StreamAddLastMatches(w http.ResponseWriter, r *http.Request) {
	if _, ok := userFromContext(r.Context()); !ok {
		writeError(w, http.StatusUnauthorized, "missing credentials", "unauthorized")
		return
	}

	jobID := r.URL.Query().Get("jobId")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "jobId is required", "bad_request")
		return
	}
	job, ok := h.queue.Job(jobID)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found", "not_found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported", "storage_failure")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, unsubscribe := job.Subscribe()
	defer unsubscribe()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			writeSSEEvent(w, flusher, ev)
			if ev.Kind == crawlqueue.EventDone || ev.Kind == crawlqueue.EventError {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, ev crawlqueue.Event) {
	var payload interface{}
	switch ev.Kind {
	case crawlqueue.EventQueue:
		payload = ev.Queue
	case crawlqueue.EventProgress:
		payload = ev.Progress
	case crawlqueue.EventDone:
		payload = ev.Done
	case crawlqueue.EventError:
		payload = ev.Error
	}

	fmt.Fprintf(w, "event: %s\n", ev.Kind)
	if payload != nil {
		data, err := json.Marshal(payload)
		if err == nil {
			fmt.Fprintf(w, "data: %s\n", data)
		}
	}
	fmt.Fprint(w, "\n")
	flusher.Flush()
}
