package api

import (
	"fmt"
	"net/http"

	"github.com/banshee-data/pulsewave/internal/config"
	"github.com/banshee-data/pulsewave/internal/httputil"
	"github.com/banshee-data/pulsewave/internal/monitoring"
	"github.com/banshee-data/pulsewave/internal/render"
)

// ViewportRequest is the /api/viewport body.
type ViewportRequest struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// setViewport resizes the drawing container. The loop picks up the new size
// before its next frame.
func (s *Server) setViewport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.viewport == nil {
		httputil.ServiceUnavailable(w, "viewport is not resizable")
		return
	}
	var req ViewportRequest
	if err := httputil.DecodeJSONBody(r, &req); err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Width < 0 || req.Height < 0 {
		httputil.BadRequest(w, "width and height must not be negative")
		return
	}
	s.viewport.Resize(req.Width, req.Height)
	monitoring.Logf("[API] viewport resized to %dx%d", req.Width, req.Height)
	httputil.WriteJSONOK(w, req)
}

// handleTheme reads or updates the palette. Fields left empty in a POST keep
// their current value.
func (s *Server) handleTheme(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, s.session.Loop().Theme().Config())
	case http.MethodPost:
		var req config.Theme
		if err := httputil.DecodeJSONBody(r, &req); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid request body: %v", err))
			return
		}
		if err := req.Validate(); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		merged := mergeTheme(s.session.Loop().Theme().Config(), req)
		theme, err := render.ParseTheme(merged)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		s.session.Loop().SetTheme(theme)
		httputil.WriteJSONOK(w, theme.Config())
	default:
		httputil.MethodNotAllowed(w)
	}
}

func mergeTheme(cur, upd config.Theme) config.Theme {
	if upd.PulseColor != "" {
		cur.PulseColor = upd.PulseColor
	}
	if upd.DangerColor != "" {
		cur.DangerColor = upd.DangerColor
	}
	if upd.BorderColor != "" {
		cur.BorderColor = upd.BorderColor
	}
	if upd.Background != "" {
		cur.Background = upd.Background
	}
	return cur
}

// reset clears the waveform window and re-arms the cue machine.
func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.session.Reset()
	monitoring.Logf("[API] session reset")
	httputil.WriteJSONOK(w, map[string]any{"status": "reset", "cue": s.session.Machine().State()})
}
