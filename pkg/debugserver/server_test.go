package debugserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"client-telemetry/pkg/baseline"
	"client-telemetry/pkg/clock"
	"client-telemetry/pkg/diagnostics"
	"client-telemetry/pkg/liveness"
	"client-telemetry/pkg/logging"
	"client-telemetry/pkg/telemetry"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *telemetry.Aggregator, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock(time.Unix(1700000000, 0))
	agg := telemetry.NewAggregator(clk, telemetry.DefaultConfig(), logging.Discard())
	agg.Start(context.Background())
	t.Cleanup(agg.Stop)

	s := New(agg, Config{StreamInterval: 10 * time.Millisecond}, logging.Discard())
	return s, agg, clk
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestDiagnostics(t *testing.T) {
	s, agg, _ := newTestServer(t)
	agg.Publish(telemetry.NewPipelineEventRecorded(diagnostics.Event{Kind: diagnostics.RefreshRequested}, ""))
	require.Eventually(t, func() bool { return agg.Snapshot().EventsReceived == 1 }, time.Second, time.Millisecond)

	w := do(t, s, http.MethodGet, "/diagnostics", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got diagnostics.Counters
	decode(t, w, &got)
	assert.Equal(t, uint64(1), got.RefreshRequested)

	w = do(t, s, http.MethodGet, "/telemetry", "")
	require.Equal(t, http.StatusOK, w.Code)
	var snap telemetry.Snapshot
	decode(t, w, &snap)
	assert.Equal(t, uint64(1), snap.EventsReceived)
}

func TestLiveness_ForceAndClear(t *testing.T) {
	s, _, _ := newTestServer(t)

	w := do(t, s, http.MethodGet, "/liveness", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"reason":"no-heartbeat"`)

	w = do(t, s, http.MethodPost, "/liveness/force", `{"durationMs":5000}`)
	require.Equal(t, http.StatusOK, w.Code)
	var status liveness.NetworkStatus
	decode(t, w, &status)
	assert.True(t, status.IsDesynced)
	assert.Equal(t, liveness.ReasonForced, status.Reason)

	w = do(t, s, http.MethodDelete, "/liveness/force", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &status)
	assert.False(t, status.IsDesynced)
}

func TestLiveness_ForceWithoutBody(t *testing.T) {
	s, agg, clk := newTestServer(t)

	w := do(t, s, http.MethodPost, "/liveness/force", "")
	require.Equal(t, http.StatusOK, w.Code)

	state := agg.LivenessState()
	require.NotNil(t, state.ForcedDesyncUntilMs)
	assert.Equal(t, clk.Now().UnixMilli()+2*liveness.DefaultThresholdMs, *state.ForcedDesyncUntilMs)
}

func TestLiveness_ForceRejectsNegative(t *testing.T) {
	s, _, _ := newTestServer(t)
	w := do(t, s, http.MethodPost, "/liveness/force", `{"durationMs":-1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLiveness_Threshold(t *testing.T) {
	s, agg, _ := newTestServer(t)

	w := do(t, s, http.MethodPut, "/liveness/threshold", `{"thresholdMs":2500}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(2500), agg.LivenessState().ThresholdMs)

	w = do(t, s, http.MethodPut, "/liveness/threshold", `{"thresholdMs":0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, s, http.MethodPut, "/liveness/threshold", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, int64(2500), agg.LivenessState().ThresholdMs)
}

func TestBaselinesAndRegression(t *testing.T) {
	s, agg, _ := newTestServer(t)

	w := do(t, s, http.MethodGet, "/regression", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, s, http.MethodPost, "/baselines", `{"label":"nightly"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var entry baseline.Entry
	decode(t, w, &entry)
	assert.Equal(t, "nightly", entry.Label)

	w = do(t, s, http.MethodPost, "/baselines", "")
	require.Equal(t, http.StatusCreated, w.Code)
	decode(t, w, &entry)
	assert.Equal(t, baseline.DefaultLabel, entry.Label)

	w = do(t, s, http.MethodGet, "/baselines", "")
	require.Equal(t, http.StatusOK, w.Code)
	var entries []baseline.Entry
	decode(t, w, &entries)
	assert.Len(t, entries, 2)
	assert.Len(t, agg.Baselines(), 2)

	w = do(t, s, http.MethodGet, "/regression?label=nightly", "")
	require.Equal(t, http.StatusOK, w.Code)
	var report map[string]any
	decode(t, w, &report)
	assert.Equal(t, "nightly", report["label"])
	assert.Equal(t, "pending", report["status"], "no switch samples on either side")

	w = do(t, s, http.MethodGet, "/regression?label=weekly", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStream(t *testing.T) {
	s, agg, _ := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first telemetry.Snapshot
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, uint64(0), first.EventsReceived)

	agg.Publish(telemetry.NewPipelineEventRecorded(diagnostics.Event{Kind: diagnostics.PrefetchExecuted}, ""))

	require.Eventually(t, func() bool {
		var snap telemetry.Snapshot
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		if err := conn.ReadJSON(&snap); err != nil {
			return false
		}
		return snap.Diagnostics.PrefetchExecuted == 1
	}, 2*time.Second, time.Millisecond)
}

func TestStartAndShutdown(t *testing.T) {
	clk := clock.NewMock(time.Unix(0, 0))
	agg := telemetry.NewAggregator(clk, telemetry.DefaultConfig(), nil)
	s := New(agg, Config{ListenAddr: "127.0.0.1:0"}, nil)

	addr, err := s.Start()
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr.String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
}

func TestShutdownClosesStreams(t *testing.T) {
	agg := telemetry.NewAggregator(clock.NewMock(time.Unix(0, 0)), telemetry.DefaultConfig(), nil)
	s := New(agg, Config{ListenAddr: "127.0.0.1:0", StreamInterval: 10 * time.Millisecond}, nil)

	addr, err := s.Start()
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr.String()+"/stream", nil)
	require.NoError(t, err)
	defer conn.Close()

	var snap telemetry.Snapshot
	require.NoError(t, conn.ReadJSON(&snap))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	// snapshots already in flight may arrive before the close frame
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err = conn.ReadMessage(); err != nil {
			break
		}
	}
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	assert.NotPanics(t, func() { _ = s.Shutdown(ctx) }, "shutdown twice")
}
