package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/pulsewave/internal/cue"
	"github.com/banshee-data/pulsewave/internal/httputil"
	"github.com/banshee-data/pulsewave/internal/insight"
	"github.com/banshee-data/pulsewave/internal/monitoring"
)

// Server exposes a Simulator over HTTP: an SSE stream, a WebSocket stream
// and control endpoints.
type Server struct {
	sim      *Simulator
	analyzer insight.Analyzer
	upgrader websocket.Upgrader
}

// NewServer creates a Server. analyzer may be nil, in which case
// /api/analyze answers 503.
func NewServer(sim *Simulator, analyzer insight.Analyzer) *Server {
	return &Server{
		sim:      sim,
		analyzer: analyzer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeMux returns the route table.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/stream", s.handleStream)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/api/condition", s.handleCondition)
	mux.HandleFunc("/api/scenario", s.handleScenario)
	mux.HandleFunc("/api/analyze", s.handleAnalyze)
	mux.HandleFunc("/api/state", s.handleState)
	return mux
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.InternalServerError(w, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	monitoring.Logf("[Sim] stream client connected: %s", r.RemoteAddr)
	err := s.sim.Stream(r.Context(), func(sample Sample) error {
		data, err := json.Marshal(sample)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	monitoring.Logf("[Sim] stream client gone: %s (%v)", r.RemoteAddr, err)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("[Sim] websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader goroutine notices client close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	monitoring.Logf("[Sim] websocket client connected: %s", r.RemoteAddr)
	err = s.sim.Stream(ctx, func(sample Sample) error {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		return conn.WriteJSON(sample)
	})
	monitoring.Logf("[Sim] websocket client gone: %s (%v)", r.RemoteAddr, err)
}

func (s *Server) handleCondition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req struct {
		Condition string `json:"condition"`
	}
	if err := httputil.DecodeJSONBody(r, &req); err != nil {
		httputil.BadRequest(w, "invalid JSON body")
		return
	}
	if req.Condition == "" {
		req.Condition = string(cue.Normal)
	}
	s.sim.SetCondition(cue.Condition(req.Condition))
	httputil.WriteJSONOK(w, map[string]string{"status": "updated", "condition": req.Condition})
}

func (s *Server) handleScenario(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	var req struct {
		Action string `json:"action"`
	}
	if err := httputil.DecodeJSONBody(r, &req); err != nil {
		httputil.BadRequest(w, "invalid JSON body")
		return
	}
	if req.Action == "start" {
		s.sim.StartScenario(DefaultScenario)
		httputil.WriteJSONOK(w, map[string]string{"status": "started", "message": "Pulse Scenario Active"})
		return
	}
	s.sim.StopScenario()
	httputil.WriteJSONOK(w, map[string]string{"status": "stopped", "message": "Pulse Scenario Stopped"})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.analyzer == nil {
		httputil.ServiceUnavailable(w, "analyzer not configured")
		return
	}
	st := s.sim.State()
	text := s.analyzer.Analyze(r.Context(), insight.Snapshot{
		BPM:         st.BPM,
		Condition:   st.Condition,
		Variability: st.Variability,
	})
	httputil.WriteJSONOK(w, map[string]string{"insight": text})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.sim.State())
}
