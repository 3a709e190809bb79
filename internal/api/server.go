package api

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/banshee-data/adcscope/internal/acquisition"
	"github.com/banshee-data/adcscope/internal/httputil"
	"github.com/banshee-data/adcscope/internal/render"
	"github.com/banshee-data/adcscope/internal/serialmux"
	"github.com/banshee-data/adcscope/internal/version"
)

// Server exposes the acquisition status and the latest rendered frame.
type Server struct {
	loop   *acquisition.Loop
	latest *render.Latest
	hub    *render.Hub

	// listPorts is swapped out in tests.
	listPorts func() ([]string, error)
}

// NewServer creates a Server. hub may be nil, in which case /ws is not
// registered.
func NewServer(loop *acquisition.Loop, latest *render.Latest, hub *render.Hub) *Server {
	return &Server{
		loop:      loop,
		latest:    latest,
		hub:       hub,
		listPorts: serialmux.ListPorts,
	}
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/window", s.showWindow)
	mux.HandleFunc("/api/ports", s.listSerialPorts)
	mux.HandleFunc("/chart", s.showChart)
	mux.HandleFunc("/plot.png", s.showPlot)
	if s.hub != nil {
		mux.Handle("/ws", s.hub)
	}
	return mux
}

// StatusResponse is the body of /api/status.
type StatusResponse struct {
	Version     string             `json:"version"`
	Acquisition acquisition.Status `json:"acquisition"`
	Viewers     int                `json:"viewers"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	resp := StatusResponse{
		Version:     version.String(),
		Acquisition: s.loop.Status(),
	}
	if s.hub != nil {
		resp.Viewers = s.hub.Clients()
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) currentFrame(w http.ResponseWriter, r *http.Request) (render.Frame, bool) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return render.Frame{}, false
	}
	f, ok := s.latest.Frame()
	if !ok {
		httputil.NoData(w)
		return render.Frame{}, false
	}
	return f, true
}

func (s *Server) showWindow(w http.ResponseWriter, r *http.Request) {
	f, ok := s.currentFrame(w, r)
	if !ok {
		return
	}
	if p := r.URL.Query().Get("points"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 2 {
			httputil.WriteJSONError(w, http.StatusBadRequest, "points must be an integer >= 2")
			return
		}
		f = render.Decimate(f, n)
	}
	httputil.WriteJSONOK(w, f)
}

func (s *Server) showChart(w http.ResponseWriter, r *http.Request) {
	f, ok := s.currentFrame(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := render.RenderChart(&buf, render.Decimate(f, render.DefaultMaxPoints)); err != nil {
		httputil.InternalServerError(w, "render error: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) showPlot(w http.ResponseWriter, r *http.Request) {
	f, ok := s.currentFrame(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := render.WritePNG(&buf, f); err != nil {
		httputil.InternalServerError(w, "plot error: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) listSerialPorts(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	ports, err := s.listPorts()
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if ports == nil {
		ports = []string{}
	}
	httputil.WriteJSONOK(w, map[string][]string{"ports": ports})
}
