// Package analysis runs continuous engine analysis of a changing position
// and publishes the ranked lines for a presentation layer to read.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jacokyle01/live-analysis/config"
	"github.com/jacokyle01/live-analysis/models"
	"github.com/jacokyle01/live-analysis/store"
	"github.com/jacokyle01/live-analysis/worker"
)

// ErrClosed is returned after Shutdown.
var ErrClosed = errors.New("analyzer shut down")

// SessionFactory creates an engine session that has not been started.
type SessionFactory func() (*worker.Session, error)

// Status summarizes the analyzer for display.
type Status struct {
	Scheduler string `json:"scheduler"`
	Phase     string `json:"phase"`
	Engine    string `json:"engine"`
	Anomalies int64  `json:"anomalies"`
	Error     string `json:"error,omitempty"`
}

// Analyzer is the API the presentation layer uses. SetPosition and Latest
// never block on the engine; the remaining methods are control operations
// and are serialized.
type Analyzer struct {
	cfg      config.Config
	factory  SessionFactory
	cache    store.Cache
	cell     *PositionCell
	pub      *Publisher
	failures chan error
	logger   *slog.Logger

	mu      sync.Mutex
	session *worker.Session
	sched   *Scheduler
	runCtx  context.Context
	closed  bool

	// moving is set while EngineMove searches without holding mu;
	// resume records whether analysis continues once it returns.
	moving bool
	resume bool
}

// New returns an analyzer for initial. Call Open to start the engine.
// cache may be nil.
func New(cfg config.Config, factory SessionFactory, cache store.Cache, initial models.Position) *Analyzer {
	return &Analyzer{
		cfg:      cfg,
		factory:  factory,
		cache:    cache,
		cell:     NewPositionCell(initial),
		pub:      &Publisher{},
		failures: make(chan error, 1),
		logger:   slog.Default().With("component", "analyzer"),
		runCtx:   context.Background(),
	}
}

// Open creates and starts an engine session.
func (a *Analyzer) Open(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	if a.session != nil {
		return errors.New("analyzer already open")
	}
	return a.open(ctx)
}

func (a *Analyzer) open(ctx context.Context) error {
	session, err := a.factory()
	if err != nil {
		return fmt.Errorf("%w: %v", worker.ErrEngineUnavailable, err)
	}
	if err := session.Start(ctx); err != nil {
		session.Shutdown()
		return err
	}
	a.session = session
	a.sched = NewScheduler(session, a.cell, a.pub, Options{
		Lines:       a.cfg.Analysis.Lines,
		Limit:       models.SearchLimit{Depth: a.cfg.Analysis.Depth},
		Pacing:      a.cfg.Analysis.Pacing,
		StopTimeout: a.cfg.Engine.StopTimeout,
		Cache:       a.cache,
		OnHalt:      a.reportHalt,
	})
	return nil
}

func (a *Analyzer) reportHalt(err error) {
	select {
	case a.failures <- err:
	default:
	}
}

// Failures delivers the error that halted analysis. Analysis stays halted
// until Respawn.
func (a *Analyzer) Failures() <-chan error {
	return a.failures
}

// SetPosition makes pos the position to analyze.
func (a *Analyzer) SetPosition(pos models.Position) uint64 {
	return a.cell.Set(pos)
}

// Position returns the position being analyzed.
func (a *Analyzer) Position() models.Position {
	pos, _ := a.cell.Snapshot()
	return pos
}

// Latest returns the most recently published analysis.
func (a *Analyzer) Latest() (models.AnalysisSnapshot, bool) {
	return a.pub.Latest()
}

// Start begins continuous analysis. ctx bounds the analysis loop.
// During an engine move, analysis begins once the move is found.
func (a *Analyzer) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.usable(); err != nil {
		return err
	}
	a.runCtx = ctx
	if a.moving {
		a.resume = true
		return nil
	}
	return a.sched.Start(ctx)
}

// Stop ends continuous analysis.
func (a *Analyzer) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resume = false
	if a.sched != nil {
		a.sched.Stop()
	}
}

// EngineMove asks the engine for its move in the current position.
// Continuous analysis is paused for the search and resumed afterwards.
// The search runs without blocking Status and the other control operations;
// a second engine move meanwhile fails with worker.ErrSessionBusy.
func (a *Analyzer) EngineMove(ctx context.Context, limit models.SearchLimit) (models.Move, error) {
	a.mu.Lock()
	if err := a.usable(); err != nil {
		a.mu.Unlock()
		return "", err
	}
	if a.moving {
		a.mu.Unlock()
		return "", fmt.Errorf("%w: engine move in progress", worker.ErrSessionBusy)
	}
	if limit.Depth < 1 {
		limit.Depth = a.cfg.Analysis.EngineMoveDepth
	}

	session, sched := a.session, a.sched
	a.resume = sched.State() == StateRunning
	if a.resume {
		sched.Stop()
	}
	a.moving = true
	pos, _ := a.cell.Snapshot()
	a.mu.Unlock()

	move, err := session.BestMove(ctx, pos, limit)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.moving = false
	resume := a.resume
	a.resume = false
	// Respawn or Shutdown during the search replaced or retired sched.
	if resume && !a.closed && a.sched == sched && !worker.IsFatal(err) {
		if startErr := sched.Start(a.runCtx); startErr != nil {
			a.logger.Warn("resume analysis", "error", startErr)
		}
	}
	return move, err
}

// Respawn replaces the engine session, typically after a failure, and
// resumes analysis.
func (a *Analyzer) Respawn(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	if a.sched != nil {
		a.sched.Stop()
	}
	if a.session != nil {
		a.session.Shutdown()
	}
	a.session, a.sched = nil, nil

	select {
	case <-a.failures:
	default:
	}

	if err := a.open(ctx); err != nil {
		return err
	}
	a.logger.Info("engine respawned", "session", a.session.ID())
	return a.sched.Start(a.runCtx)
}

// Status reports the scheduler and engine state.
func (a *Analyzer) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := Status{Scheduler: StateIdle.String(), Phase: PhaseWaiting.String(), Engine: "none"}
	if a.sched != nil {
		st.Scheduler = a.sched.State().String()
		st.Phase = a.sched.Phase().String()
		if err := a.sched.Err(); err != nil {
			st.Error = err.Error()
		}
	}
	if a.session != nil {
		st.Engine = a.session.State().String()
		st.Anomalies = a.session.Anomalies()
	}
	return st
}

// Shutdown stops analysis and the engine. It is safe to call more than once.
func (a *Analyzer) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	if a.sched != nil {
		a.sched.Stop()
	}
	if a.session != nil {
		a.session.Shutdown()
	}
}

func (a *Analyzer) usable() error {
	if a.closed {
		return ErrClosed
	}
	if a.session == nil {
		return fmt.Errorf("%w: analyzer not open", worker.ErrEngineUnavailable)
	}
	return nil
}
