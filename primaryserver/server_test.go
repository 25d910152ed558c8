package primaryserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacokyle01/live-analysis/analysis"
	"github.com/jacokyle01/live-analysis/board"
	"github.com/jacokyle01/live-analysis/config"
	"github.com/jacokyle01/live-analysis/internal/testutil"
	"github.com/jacokyle01/live-analysis/models"
	"github.com/jacokyle01/live-analysis/worker"
)

type testServer struct {
	srv      *Server
	analyzer *analysis.Analyzer
	http     *httptest.Server
}

func newTestServer(t *testing.T, open bool) *testServer {
	t.Helper()
	cfg := config.Default()
	cfg.Engine.HandshakeTimeout = time.Second
	cfg.Engine.StopTimeout = time.Second
	cfg.Engine.ShutdownGrace = time.Second
	cfg.Analysis.Depth = 4
	cfg.Analysis.Pacing = 0
	cfg.Analysis.EngineMoveDepth = 3

	factory := func() (*worker.Session, error) {
		fake := testutil.NewFakeEngine()
		return worker.NewSession(cfg.Engine, func(context.Context) (worker.Process, error) {
			return fake.Run(), nil
		})
	}

	b := board.New()
	a := analysis.New(cfg, factory, nil, b.Position())
	t.Cleanup(a.Shutdown)
	if open {
		require.NoError(t, a.Open(context.Background()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv := NewServer(ctx, a, b)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testServer{srv: srv, analyzer: a, http: ts}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.http.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestPositionAndMoves(t *testing.T) {
	ts := newTestServer(t, false)

	resp := ts.do(t, "GET", "/position", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view := decode[PositionView](t, resp)
	assert.Equal(t, models.StartFEN, view.FEN)
	assert.Empty(t, view.Moves)
	assert.Len(t, view.LegalMoves, 20)
	assert.Equal(t, "white", view.SideToMove)

	resp = ts.do(t, "POST", "/move", `{"move":"e2e4"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	view = decode[PositionView](t, resp)
	assert.Equal(t, []models.Move{"e2e4"}, view.Moves)
	assert.Equal(t, "black", view.SideToMove)
	assert.Equal(t, []models.Move{"e2e4"}, ts.analyzer.Position().Moves)

	resp = ts.do(t, "POST", "/undo", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[PositionView](t, resp).Moves)
	assert.Empty(t, ts.analyzer.Position().Moves)
}

func TestMoveErrors(t *testing.T) {
	ts := newTestServer(t, false)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"bad json", "POST", "/move", `{`, http.StatusBadRequest},
		{"malformed move", "POST", "/move", `{"move":"e4"}`, http.StatusBadRequest},
		{"illegal move", "POST", "/move", `{"move":"e2e5"}`, http.StatusUnprocessableEntity},
		{"nothing to undo", "POST", "/undo", "", http.StatusConflict},
		{"wrong method", "GET", "/move", "", http.StatusMethodNotAllowed},
		{"negative depth", "POST", "/engine-move", `{"depth":-1}`, http.StatusBadRequest},
		{"engine not open", "POST", "/engine-move", "", http.StatusServiceUnavailable},
		{"start without engine", "POST", "/scheduler/start", "", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestAnalysisEndpoint(t *testing.T) {
	ts := newTestServer(t, true)

	resp := ts.do(t, "GET", "/analysis", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, "POST", "/scheduler/start", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "running", decode[analysis.Status](t, resp).Scheduler)

	resp = ts.do(t, "POST", "/scheduler/start", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	require.Eventually(t, func() bool {
		snap, ok := ts.analyzer.Latest()
		return ok && snap.Final
	}, 3*time.Second, 2*time.Millisecond)

	resp = ts.do(t, "GET", "/analysis", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decode[models.AnalysisSnapshot](t, resp)
	assert.Len(t, snap.Lines, 3)
	assert.True(t, snap.Final)

	resp = ts.do(t, "GET", "/analysis?format=text", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))

	resp = ts.do(t, "POST", "/scheduler/stop", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "idle", decode[analysis.Status](t, resp).Scheduler)
}

func TestEngineMove(t *testing.T) {
	ts := newTestServer(t, true)

	resp := ts.do(t, "POST", "/engine-move", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[struct {
		Move     models.Move  `json:"move"`
		Position PositionView `json:"position"`
	}](t, resp)
	assert.Equal(t, models.Move("e2e4"), got.Move)
	assert.Equal(t, []models.Move{"e2e4"}, got.Position.Moves)
	assert.Equal(t, []models.Move{"e2e4"}, ts.analyzer.Position().Moves)

	// The fake engine always answers e2e4, which is illegal for black.
	resp = ts.do(t, "POST", "/engine-move", `{"depth":2}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestRestartAndStatus(t *testing.T) {
	ts := newTestServer(t, true)

	resp := ts.do(t, "POST", "/engine/restart", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "running", decode[analysis.Status](t, resp).Scheduler)

	resp = ts.do(t, "GET", "/status", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decode[struct {
		Analysis analysis.Status `json:"analysis"`
		Position PositionView    `json:"position"`
	}](t, resp)
	assert.Equal(t, "running", status.Analysis.Scheduler)
	assert.Equal(t, models.StartFEN, status.Position.FEN)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusFor(&worker.OpError{Op: "analyze", Err: worker.ErrSessionBusy}))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(&worker.OpError{Op: "analyze", Err: worker.ErrEngineTerminated}))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(analysis.ErrClosed))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(context.DeadlineExceeded))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}
