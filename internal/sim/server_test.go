package sim

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pulsewave/internal/cue"
	"github.com/banshee-data/pulsewave/internal/insight"
	"github.com/banshee-data/pulsewave/internal/timeutil"
)

type stubAnalyzer struct {
	got insight.Snapshot
}

func (a *stubAnalyzer) Analyze(_ context.Context, s insight.Snapshot) string {
	a.got = s
	return "stable rhythm"
}

func (a *stubAnalyzer) Report(context.Context, any) string { return "" }

func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestServerCondition(t *testing.T) {
	s := newTestSim(timeutil.NewMockClock(epoch))
	h := NewServer(s, nil).ServeMux()

	rec, body := doJSON(t, h, http.MethodPost, "/api/condition", `{"condition":"Tachycardia"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "updated", body["status"])
	assert.Equal(t, "Tachycardia", body["condition"])
	assert.Equal(t, 130.0, s.State().BPM)

	// missing condition defaults to Normal
	_, body = doJSON(t, h, http.MethodPost, "/api/condition", `{}`)
	assert.Equal(t, "Normal", body["condition"])
	assert.Equal(t, 75.0, s.State().BPM)

	rec, _ = doJSON(t, h, http.MethodPost, "/api/condition", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, h, http.MethodGet, "/api/condition", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServerScenario(t *testing.T) {
	s := newTestSim(timeutil.NewMockClock(epoch))
	h := NewServer(s, nil).ServeMux()

	rec, body := doJSON(t, h, http.MethodPost, "/api/scenario", `{"action":"start"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "started", body["status"])
	assert.Equal(t, "Pulse Scenario Active", body["message"])
	assert.True(t, s.ScenarioActive())

	_, body = doJSON(t, h, http.MethodPost, "/api/scenario", `{"action":"stop"}`)
	assert.Equal(t, "stopped", body["status"])
	assert.Equal(t, "Pulse Scenario Stopped", body["message"])
	assert.False(t, s.ScenarioActive())
	assert.Equal(t, string(cue.Normal), s.State().Condition)
}

func TestServerAnalyze(t *testing.T) {
	s := newTestSim(timeutil.NewMockClock(epoch))
	s.SetCondition(cue.Arrhythmia)

	rec, _ := doJSON(t, NewServer(s, nil).ServeMux(), http.MethodGet, "/api/analyze", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	a := &stubAnalyzer{}
	rec, body := doJSON(t, NewServer(s, a).ServeMux(), http.MethodGet, "/api/analyze", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "stable rhythm", body["insight"])
	assert.Equal(t, insight.Snapshot{BPM: 80, Condition: "Arrhythmia", Variability: 0.4}, a.got)
}

func TestServerState(t *testing.T) {
	s := newTestSim(timeutil.NewMockClock(epoch))
	rec, body := doJSON(t, NewServer(s, nil).ServeMux(), http.MethodGet, "/api/state", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Normal", body["condition"])
	assert.Equal(t, false, body["scenario_active"])
}

func TestServerSSEStream(t *testing.T) {
	s := New(Options{SampleRate: 200})
	ts := httptest.NewServer(NewServer(s, nil).ServeMux())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scan := bufio.NewScanner(resp.Body)
	var line string
	for scan.Scan() {
		if strings.HasPrefix(scan.Text(), "data: ") {
			line = strings.TrimPrefix(scan.Text(), "data: ")
			break
		}
	}
	require.NotEmpty(t, line)

	var sample Sample
	require.NoError(t, json.Unmarshal([]byte(line), &sample))
	assert.Equal(t, "Normal", sample.Condition)
	assert.Equal(t, 75.0, sample.BPM)
	assert.Equal(t, "120/80", sample.BP)
}

func TestServerWebSocket(t *testing.T) {
	s := New(Options{SampleRate: 200})
	s.SetCondition(cue.Bradycardia)
	ts := httptest.NewServer(NewServer(s, nil).ServeMux())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var sample Sample
	require.NoError(t, conn.ReadJSON(&sample))
	assert.Equal(t, "Bradycardia", sample.Condition)
	assert.Equal(t, 45.0, sample.BPM)
}
