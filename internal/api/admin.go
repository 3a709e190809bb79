package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"tailscale.com/tsweb"

	"github.com/banshee-data/adcscope/internal/httputil"
)

// AttachAdminRoutes registers debug endpoints under /debug/. tsweb restricts
// them to loopback and tailnet clients.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.KVFunc("Acquisition state", func() any { return s.loop.State().String() })
	debug.KVFunc("Samples buffered", func() any { return s.loop.Buffer().Len() })

	debug.Handle("acquisition", "acquisition loop status (JSON)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !httputil.RequireMethod(w, r, http.MethodGet) {
			return
		}
		httputil.WriteJSONOK(w, s.loop.Status())
	}))

	// Server-Sent Events with one decoded sample per event.
	debug.Handle("tail", "live tail of decoded samples (SSE)", http.HandlerFunc(s.handleTail))
}

func (s *Server) handleTail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	id, c := s.loop.Subscribe()
	defer s.loop.Unsubscribe(id)

	// Send initial ping to establish connection
	_, _ = w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	for {
		select {
		case sample, ok := <-c:
			if !ok {
				return
			}
			payload, err := json.Marshal(sample)
			if err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
