package store

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pulsewave/internal/cue"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenAppliesMigrations(t *testing.T) {
	s := openTestStore(t)
	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	// idempotent
	require.NoError(t, s.MigrateUp())

	for _, table := range []string{"sessions", "condition_transitions", "cue_events"} {
		var n int
		require.NoError(t, s.DB().QueryRow(
			`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n))
		assert.Equal(t, 1, n, table)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.StartSession(ctx, "sse:http://sim/stream", t0)
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err, "session ids are UUIDs")

	sess, err := s.GetSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "sse:http://sim/stream", sess.Source)
	assert.True(t, t0.Equal(sess.StartedAt))
	assert.Nil(t, sess.EndedAt)

	require.NoError(t, s.EndSession(ctx, id, t0.Add(time.Minute)))
	sess, err = s.GetSession(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, sess.EndedAt)
	assert.True(t, t0.Add(time.Minute).Equal(*sess.EndedAt))

	_, err = s.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, s.EndSession(ctx, "missing", t0), ErrSessionNotFound)
}

func TestRecentEventsAndSummary(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id, err := s.StartSession(ctx, "sim", t0)
	require.NoError(t, err)

	require.NoError(t, s.RecordTransition(ctx, id, cue.TransitionEvent{Previous: cue.Normal, Current: cue.Tachycardia, At: t0.Add(1 * time.Second)}))
	require.NoError(t, s.RecordCue(ctx, id, cue.CueEvent{Condition: cue.Tachycardia, Value: 1.6, At: t0.Add(2 * time.Second)}))
	require.NoError(t, s.RecordCue(ctx, id, cue.CueEvent{Condition: cue.Tachycardia, Value: 1.7, At: t0.Add(3 * time.Second)}))
	require.NoError(t, s.RecordTransition(ctx, id, cue.TransitionEvent{Previous: cue.Tachycardia, Current: cue.Arrhythmia, At: t0.Add(4 * time.Second)}))
	require.NoError(t, s.RecordCue(ctx, id, cue.CueEvent{Condition: cue.Arrhythmia, Value: 1.9, At: t0.Add(5 * time.Second)}))

	events, err := s.RecentEvents(ctx, 3)
	require.NoError(t, err)
	require.Len(t, events, 3)

	v19, v17 := 1.9, 1.7
	want := []Event{
		{Kind: KindCue, SessionID: id, Condition: "Arrhythmia", Value: &v19, At: t0.Add(5 * time.Second)},
		{Kind: KindTransition, SessionID: id, Previous: "Tachycardia", Condition: "Arrhythmia", At: t0.Add(4 * time.Second)},
		{Kind: KindCue, SessionID: id, Condition: "Tachycardia", Value: &v17, At: t0.Add(3 * time.Second)},
	}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("RecentEvents mismatch (-want +got):\n%s", diff)
	}

	sum, err := s.Summarize(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Transitions)
	assert.Equal(t, 3, sum.Cues)
	assert.Equal(t, map[string]int{"Tachycardia": 2, "Arrhythmia": 1}, sum.CuesBy)
	assert.Equal(t, []string{"Arrhythmia", "Tachycardia"}, sum.Conditions)

	_, err = s.Summarize(ctx, "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestParseTime(t *testing.T) {
	for _, s := range []string{
		"2026-03-01 12:00:00+00:00",
		"2026-03-01 12:00:00.5+00:00",
		"2026-03-01T12:00:00Z",
		"2026-03-01 12:00:00 +0000 UTC",
		"2026-03-01 12:00:00",
	} {
		got, err := parseTime(s)
		require.NoError(t, err, s)
		assert.Equal(t, t0, got.Truncate(time.Second), s)
	}
	_, err := parseTime("yesterday")
	assert.Error(t, err)
}

func TestRecorderWritesAsync(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id, err := s.StartSession(ctx, "sim", t0)
	require.NoError(t, err)

	hub := cue.NewHub()
	rec := NewRecorder(s, id, 16)
	hub.AddTransitionListener(rec)
	hub.AddCueListener(rec)

	hub.NotifyTransition(cue.TransitionEvent{Previous: cue.Normal, Current: cue.Bradycardia, At: t0})
	hub.NotifyCue(cue.CueEvent{Condition: cue.Bradycardia, Value: 1.55, At: t0.Add(time.Second)})
	rec.Close()
	rec.Close()

	assert.Equal(t, RecorderStats{Written: 2}, rec.Stats())
	events, err := s.RecentEvents(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	// after close events are ignored
	rec.OnCue(cue.CueEvent{Condition: cue.Bradycardia, At: t0})
	assert.Equal(t, uint64(2), rec.Stats().Written)
}

func TestRecorderDropsWhenFull(t *testing.T) {
	s := openTestStore(t)
	id, err := s.StartSession(context.Background(), "sim", t0)
	require.NoError(t, err)

	// hold the only connection so the worker blocks on its first write
	conn, err := s.DB().Conn(context.Background())
	require.NoError(t, err)

	rec := NewRecorder(s, id, 1)
	for i := 0; i < 10; i++ {
		rec.OnCue(cue.CueEvent{Condition: cue.Tachycardia, Value: float64(i), At: t0.Add(time.Duration(i) * time.Second)})
	}
	assert.Greater(t, rec.Stats().Dropped, uint64(0))

	conn.Close()
	rec.Close()
	st := rec.Stats()
	assert.Equal(t, uint64(10), st.Written+st.Dropped)
}

func TestAdminRoutes(t *testing.T) {
	s := openTestStore(t)
	mux := http.NewServeMux()
	require.NoError(t, s.AttachAdminRoutes(mux))

	req := httptest.NewRequest(http.MethodGet, "/debug/backup", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	gz, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, "SQLite format 3\x00", string(data[:16]))
}
