package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/pulsewave/internal/httputil"
)

// showFrame serves the most recent encoded frame.
func (s *Server) showFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.frames == nil {
		httputil.ServiceUnavailable(w, "frame capture not enabled")
		return
	}
	frame := s.frames.Frame()
	if len(frame) == 0 {
		httputil.ServiceUnavailable(w, "no frame rendered yet")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(frame)))
	_, _ = w.Write(frame)
}

// showChart renders the current window as an interactive line chart with the
// cue thresholds marked.
func (s *Server) showChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	snap := s.session.Buffer().Snapshot()
	th := s.session.Machine().Thresholds()
	state := s.session.Machine().State()

	xs := make([]int, len(snap.Values))
	data := make([]opts.LineData, len(snap.Values))
	for i, v := range snap.Values {
		xs[i] = i
		data[i] = opts.LineData{Value: v}
	}

	theme := s.session.Loop().Theme().Config()
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Pulse Waveform", Theme: "dark", Width: "1000px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{Title: "Pulse Waveform", Subtitle: fmt.Sprintf("condition=%s armed=%t seq=%d", state.Condition, state.Armed, snap.Seq)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "sample", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "amplitude", NameLocation: "middle", NameGap: 30}),
		charts.WithColorsOpts(opts.Colors{theme.PulseColor}),
	)
	line.SetXAxis(xs).AddSeries("pulse", data,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithMarkLineNameYAxisItemOpts(
			opts.MarkLineNameYAxisItem{Name: "high", YAxis: th.High},
			opts.MarkLineNameYAxisItem{Name: "low", YAxis: th.Low},
		),
	)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
