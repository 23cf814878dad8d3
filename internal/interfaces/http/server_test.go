package http

import (
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

	"github.com/regimed/regimed/internal/domain/history"
	"github.com/regimed/regimed/internal/domain/regime"
	"github.com/regimed/regimed/internal/notify"
	"github.com/regimed/regimed/internal/snapshot"
	"github.com/regimed/regimed/internal/telemetry"
)

func newTestServer() (*Server, *snapshot.Store, *history.Tracker) {
	store := snapshot.NewStore(30 * time.Minute)
	tracker := history.NewTracker(0)
	srv := NewServer(DefaultConfig(), store, tracker, telemetry.NewMetrics())
	return srv, store, tracker
}

func publishedSnapshot(ts time.Time) *regime.Snapshot {
	return &regime.Snapshot{
		ID: "test-snapshot",
		State: regime.State{
			CurrentLabel: regime.Uptrend,
			Confidence:   0.81,
			EnteredAt:    ts.Add(-2 * time.Hour),
			Timestamp:    ts,
		},
		Recommendation: regime.Recommendation{
			SizeMultiplier:     1.1,
			StopLossMultiplier: 1.0,
			MaxPositions:       8,
			PreferredDirection: regime.DirectionLong,
			RiskPerTrade:       0.009,
			Advice:             "normal",
		},
		Timestamp: ts,
	}
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestRegimeEndpointNoSnapshot(t *testing.T) {
	srv, _, _ := newTestServer()

	rec := get(t, srv, "/regime")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "no snapshot published yet")
}

func TestRegimeEndpoint(t *testing.T) {
	srv, store, _ := newTestServer()
	store.Publish(publishedSnapshot(time.Now()))

	rec := get(t, srv, "/regime")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Snapshot regime.Snapshot `json:"snapshot"`
		Stale    bool            `json:"stale"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, regime.Uptrend, body.Snapshot.State.CurrentLabel)
	assert.False(t, body.Stale)
}

func TestRegimeEndpointStale(t *testing.T) {
	srv, store, _ := newTestServer()
	store.Publish(publishedSnapshot(time.Now().Add(-2 * time.Hour)))

	rec := get(t, srv, "/regime")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"stale":true`)
}

func TestReportEndpoint(t *testing.T) {
	srv, store, _ := newTestServer()
	store.Publish(publishedSnapshot(time.Now()))

	rec := get(t, srv, "/regime/report")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
	assert.Contains(t, rec.Body.String(), "uptrend")
}

func TestHistoryEndpoint(t *testing.T) {
	srv, _, tracker := newTestServer()
	now := time.Now()
	for i := 0; i < 3; i++ {
		tracker.Append(history.Entry{
			Timestamp: now.Add(time.Duration(i) * time.Hour),
			From:      regime.Choppy,
			To:        regime.Uptrend,
		})
	}

	rec := get(t, srv, "/history?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Entries []history.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Entries, 2)

	rec = get(t, srv, "/history?limit=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatsEndpoint(t *testing.T) {
	srv, store, _ := newTestServer()
	store.Publish(publishedSnapshot(time.Now()))

	rec := get(t, srv, "/history/stats?window=6h")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats history.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, regime.Uptrend, stats.Current)

	rec = get(t, srv, "/history/stats?window=-1h")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	srv, store, _ := newTestServer()

	// No snapshot yet: unhealthy.
	rec := get(t, srv, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	store.Publish(publishedSnapshot(time.Now()))
	rec = get(t, srv, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"stale":false`)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer()

	rec := get(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "regimed_degraded_cycles_total")
	assert.Contains(t, rec.Body.String(), "regimed_cycle_duration_seconds")
}

func TestWebsocketBroadcast(t *testing.T) {
	srv, _, _ := newTestServer()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	defer srv.Hub().Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/changes"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	change := notify.NewChange(regime.Choppy, regime.Uptrend, 0.85, 1.8, time.Now())

	// Subscription registration races the dial; retry briefly.
	require.Eventually(t, func() bool {
		srv.Hub().RegimeChanged(context.Background(), change)
		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		var got notify.Change
		return conn.ReadJSON(&got) == nil && got.To == regime.Uptrend
	}, 2*time.Second, 50*time.Millisecond)
}
