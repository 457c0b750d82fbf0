package api

import (
	"net/http"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/pulsewave/internal/cue"
	"github.com/banshee-data/pulsewave/internal/httputil"
	"github.com/banshee-data/pulsewave/internal/ingest"
	"github.com/banshee-data/pulsewave/internal/render"
	"github.com/banshee-data/pulsewave/internal/telemetry"
	"github.com/banshee-data/pulsewave/internal/version"
)

// WindowStats summarises the visible sample window.
type WindowStats struct {
	Count  int     `json:"count"`
	Seq    uint64  `json:"seq"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	// Variability is the coefficient of variation, zero for a zero mean.
	Variability float64 `json:"variability"`
}

// ComputeWindowStats summarises values. An empty window yields zeros.
func ComputeWindowStats(values []float64, seq uint64) WindowStats {
	ws := WindowStats{Count: len(values), Seq: seq}
	if len(values) == 0 {
		return ws
	}
	ws.Min = floats.Min(values)
	ws.Max = floats.Max(values)
	if len(values) == 1 {
		ws.Mean = values[0]
		return ws
	}
	ws.Mean, ws.StdDev = stat.MeanStdDev(values, nil)
	if ws.Mean != 0 {
		ws.Variability = ws.StdDev / ws.Mean
	}
	return ws
}

// AudioState reports cue playback.
type AudioState struct {
	Output   string `json:"output"`
	Played   uint64 `json:"played"`
	Silenced uint64 `json:"silenced"`
}

// State is the /api/state response.
type State struct {
	Version    string            `json:"version"`
	SessionID  string            `json:"session_id,omitempty"`
	Cue        cue.CueState      `json:"cue"`
	Thresholds cue.Thresholds    `json:"thresholds"`
	Metrics    ingest.Display    `json:"metrics"`
	Window     WindowStats       `json:"window"`
	Frames     render.FrameStats `json:"frames"`
	Ingest     ingest.Stats      `json:"ingest"`
	Source     telemetry.Stats   `json:"source"`
	Audio      AudioState        `json:"audio"`
}

func (s *Server) snapshotState() State {
	snap := s.session.Buffer().Snapshot()
	played, silenced := s.session.Cue().Stats()
	return State{
		Version:    version.String(),
		SessionID:  s.session.SessionID(),
		Cue:        s.session.Machine().State(),
		Thresholds: s.session.Machine().Thresholds(),
		Metrics:    s.session.Board().Display(),
		Window:     ComputeWindowStats(snap.Values, snap.Seq),
		Frames:     s.session.Loop().Stats(),
		Ingest:     s.session.Ingest().Stats(),
		Source:     s.session.Source().Stats(),
		Audio: AudioState{
			Output:   s.session.Cue().OutputState().String(),
			Played:   played,
			Silenced: silenced,
		},
	}
}

func (s *Server) showState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.snapshotState())
}
