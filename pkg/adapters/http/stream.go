package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/aretw0/stepwise/pkg/domain"
)

// SubscribeEvents handles the GET /sessions/{sessionId}/events request (SSE).
// The first event carries the full view; later events carry diffs. The
// optional watch query keeps only diffs touching files, checkpoints or status.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: streaming not supported")
		return
	}

	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var watchList []string
	if watch := r.URL.Query().Get("watch"); watch != "" {
		watchList = strings.Split(watch, ",")
	}

	diffs, stop := sess.Watch()
	defer stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s.logger.Info("SSE: subscribing to session updates", "session_id", sess.ID())
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE client disconnected", "session_id", sess.ID())
			return
		case diff, ok := <-diffs:
			if !ok {
				fmt.Fprintf(w, "event: closed\ndata: %s\n\n", sess.ID())
				flusher.Flush()
				return
			}
			if !matchesWatch(diff, watchList) {
				continue
			}
			data, err := json.Marshal(diff)
			if err != nil {
				s.logger.Error("SSE: diff encode failed", "err", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func matchesWatch(diff *domain.ViewDiff, watchList []string) bool {
	if len(watchList) == 0 {
		return true
	}
	for _, field := range watchList {
		switch strings.TrimSpace(field) {
		case "files":
			if len(diff.Files) > 0 || diff.Active != nil {
				return true
			}
		case "checkpoints":
			if diff.Checkpoints != nil || diff.Current != nil || diff.Complete != nil {
				return true
			}
		case "status":
			if diff.StepID != nil || diff.Loading != nil || diff.Grading != nil || diff.Ready != nil {
				return true
			}
		}
	}
	return false
}
