package analysis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacokyle01/live-analysis/config"
	"github.com/jacokyle01/live-analysis/internal/testutil"
	"github.com/jacokyle01/live-analysis/models"
	"github.com/jacokyle01/live-analysis/worker"
)

// engines hands out a fresh fake engine for every session the analyzer creates.
type engines struct {
	mu    sync.Mutex
	fakes []*testutil.FakeEngine
	hold  bool
}

func (e *engines) factory() (*worker.Session, error) {
	fake := testutil.NewFakeEngine()
	fake.Hold = e.hold
	e.mu.Lock()
	e.fakes = append(e.fakes, fake)
	e.mu.Unlock()
	return worker.NewSession(engineConfig(), launcher(fake))
}

func (e *engines) last() *testutil.FakeEngine {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fakes[len(e.fakes)-1]
}

func (e *engines) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.fakes)
}

func analyzerConfig() config.Config {
	cfg := config.Default()
	cfg.Engine = engineConfig()
	cfg.Analysis.Depth = 6
	cfg.Analysis.Pacing = 0
	cfg.Analysis.EngineMoveDepth = 4
	return cfg
}

func newAnalyzer(t *testing.T, e *engines) *Analyzer {
	t.Helper()
	a := New(analyzerConfig(), e.factory, nil, positionAfter(t))
	t.Cleanup(a.Shutdown)
	return a
}

func waitLatest(t *testing.T, a *Analyzer, cond func(models.AnalysisSnapshot) bool) models.AnalysisSnapshot {
	t.Helper()
	var snap models.AnalysisSnapshot
	require.Eventually(t, func() bool {
		var ok bool
		snap, ok = a.Latest()
		return ok && cond(snap)
	}, waitFor, 2*time.Millisecond)
	return snap
}

func TestAnalyzerNotOpen(t *testing.T) {
	a := newAnalyzer(t, &engines{})
	assert.ErrorIs(t, a.Start(context.Background()), worker.ErrEngineUnavailable)
	_, err := a.EngineMove(context.Background(), models.SearchLimit{})
	assert.ErrorIs(t, err, worker.ErrEngineUnavailable)

	st := a.Status()
	assert.Equal(t, "idle", st.Scheduler)
	assert.Equal(t, "none", st.Engine)
}

func TestAnalyzerOpenFailure(t *testing.T) {
	a := New(analyzerConfig(), func() (*worker.Session, error) {
		return nil, errors.New("no engine")
	}, nil, positionAfter(t))
	defer a.Shutdown()

	assert.ErrorIs(t, a.Open(context.Background()), worker.ErrEngineUnavailable)
}

func TestAnalyzerAnalyzesCurrentPosition(t *testing.T) {
	a := newAnalyzer(t, &engines{})
	require.NoError(t, a.Open(context.Background()))
	require.NoError(t, a.Start(context.Background()))

	waitLatest(t, a, func(s models.AnalysisSnapshot) bool { return s.Final })

	version := a.SetPosition(positionAfter(t, "e2e4", "e7e5"))
	snap := waitLatest(t, a, func(s models.AnalysisSnapshot) bool {
		return s.Final && s.Token == version
	})
	assert.Len(t, snap.Lines, 3)
	assert.Equal(t, 201, snap.Lines[0].Score.Value)
	assert.Equal(t, []models.Move{"e2e4", "e7e5"}, a.Position().Moves)

	st := a.Status()
	assert.Equal(t, "running", st.Scheduler)
	assert.Equal(t, "ready", st.Engine)
	assert.Empty(t, st.Error)
}

func TestAnalyzerEngineMoveResumesAnalysis(t *testing.T) {
	e := &engines{hold: true}
	a := newAnalyzer(t, e)
	require.NoError(t, a.Open(context.Background()))
	require.NoError(t, a.Start(context.Background()))
	waitLatest(t, a, func(s models.AnalysisSnapshot) bool { return len(s.Lines) == 3 })

	// Held searches end only on stop, so bound the engine move with a
	// deadline and expect the move it reports when stopped.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := a.EngineMove(ctx, models.SearchLimit{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	fake := e.last()
	assert.Contains(t, fake.Commands(), "go depth 4")
	require.Eventually(t, func() bool {
		return a.Status().Scheduler == "running" && fake.Searches() == 3
	}, waitFor, 2*time.Millisecond)
}

func TestAnalyzerEngineMove(t *testing.T) {
	e := &engines{}
	a := newAnalyzer(t, e)
	require.NoError(t, a.Open(context.Background()))

	move, err := a.EngineMove(context.Background(), models.SearchLimit{Depth: 2})
	require.NoError(t, err)
	assert.Equal(t, models.Move("e2e4"), move)
	assert.Contains(t, e.last().Commands(), "go depth 2")

	// Not running before, not running after.
	assert.Equal(t, "idle", a.Status().Scheduler)
}

func TestAnalyzerEngineMoveDoesNotBlockControl(t *testing.T) {
	e := &engines{hold: true}
	a := newAnalyzer(t, e)
	require.NoError(t, a.Open(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := a.EngineMove(ctx, models.SearchLimit{})
		done <- err
	}()
	require.Eventually(t, func() bool { return e.last().Searches() == 1 }, waitFor, 2*time.Millisecond)

	status := make(chan Status, 1)
	go func() { status <- a.Status() }()
	select {
	case st := <-status:
		assert.Equal(t, "busy", st.Engine)
	case <-time.After(time.Second):
		t.Fatal("Status blocked behind the engine move")
	}

	_, err := a.EngineMove(context.Background(), models.SearchLimit{})
	assert.ErrorIs(t, err, worker.ErrSessionBusy)

	// Starting during the move defers analysis until the move returns.
	require.NoError(t, a.Start(context.Background()))
	assert.Equal(t, "idle", a.Status().Scheduler)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(waitFor):
		t.Fatal("engine move did not return after cancel")
	}
	require.Eventually(t, func() bool {
		return a.Status().Scheduler == "running" && e.last().Searches() == 2
	}, waitFor, 2*time.Millisecond)
}

func TestAnalyzerRespawnAfterCrash(t *testing.T) {
	e := &engines{hold: true}
	a := newAnalyzer(t, e)
	require.NoError(t, a.Open(context.Background()))
	require.NoError(t, a.Start(context.Background()))
	waitLatest(t, a, func(s models.AnalysisSnapshot) bool { return true })

	e.last().Crash()

	select {
	case err := <-a.Failures():
		assert.ErrorIs(t, err, worker.ErrEngineTerminated)
	case <-time.After(waitFor):
		t.Fatal("no failure reported")
	}
	st := a.Status()
	assert.Equal(t, "halted", st.Scheduler)
	assert.Equal(t, "terminated", st.Engine)
	assert.NotEmpty(t, st.Error)

	before, _ := a.Latest()
	require.NoError(t, a.Respawn(context.Background()))
	assert.Equal(t, 2, e.count())

	waitLatest(t, a, func(s models.AnalysisSnapshot) bool { return s.Seq > before.Seq })
	assert.Equal(t, "running", a.Status().Scheduler)
}

func TestAnalyzerShutdown(t *testing.T) {
	e := &engines{}
	a := newAnalyzer(t, e)
	require.NoError(t, a.Open(context.Background()))
	require.NoError(t, a.Start(context.Background()))

	a.Shutdown()
	a.Shutdown()

	select {
	case <-e.last().Exited():
	case <-time.After(waitFor):
		t.Fatal("engine still running after shutdown")
	}
	assert.ErrorIs(t, a.Start(context.Background()), ErrClosed)
	assert.ErrorIs(t, a.Respawn(context.Background()), ErrClosed)
	assert.ErrorIs(t, a.Open(context.Background()), ErrClosed)

	// Reads keep working.
	a.SetPosition(positionAfter(t, "d2d4"))
	assert.Equal(t, []models.Move{"d2d4"}, a.Position().Moves)
}
