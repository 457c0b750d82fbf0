package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/banshee-data/pulsewave/internal/httputil"
	"github.com/banshee-data/pulsewave/internal/insight"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 1000
	// recentValues is how many trailing samples go into an analysis prompt.
	recentValues = 50
)

// listEvents returns the newest recorded transitions and cues.
func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	st := s.session.Store()
	if st == nil {
		httputil.ServiceUnavailable(w, "event store not configured")
		return
	}
	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxEventLimit)
	}
	events, err := st.RecentEvents(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list events: %v", err))
		return
	}
	httputil.WriteJSONOK(w, map[string]any{"events": events, "count": len(events)})
}

// analyze asks the insight analyzer for a reading of the live state.
func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.analyzer == nil {
		httputil.ServiceUnavailable(w, "insight analyzer not configured")
		return
	}
	snap := s.session.Buffer().Snapshot()
	stats := ComputeWindowStats(snap.Values, snap.Seq)
	in := insight.Snapshot{
		Condition:   string(s.session.Machine().Condition()),
		Variability: stats.Variability,
	}
	if m, ok := s.session.Board().Latest(); ok {
		in.BPM = m.BPM
	}
	if n := len(snap.Values); n > 0 {
		in.RecentValues = snap.Values[max(0, n-recentValues):]
	}
	httputil.WriteJSONOK(w, map[string]string{"insight": s.analyzer.Analyze(r.Context(), in)})
}

// report summarises the current session and asks the analyzer to write it up.
func (s *Server) report(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	st := s.session.Store()
	if st == nil || s.session.SessionID() == "" {
		httputil.ServiceUnavailable(w, "event store not configured")
		return
	}
	if s.analyzer == nil {
		httputil.ServiceUnavailable(w, "insight analyzer not configured")
		return
	}
	summary, err := st.Summarize(r.Context(), s.session.SessionID())
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to summarise session: %v", err))
		return
	}
	httputil.WriteJSONOK(w, map[string]any{
		"summary": summary,
		"report":  s.analyzer.Report(r.Context(), summary),
	})
}
