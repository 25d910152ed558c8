package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jacokyle01/live-analysis/models"
	"github.com/jacokyle01/live-analysis/store"
	"github.com/jacokyle01/live-analysis/uci"
	"github.com/jacokyle01/live-analysis/worker"
)

// ErrSchedulerRunning is returned by Start when the loop is already running.
var ErrSchedulerRunning = errors.New("scheduler already running")

// Engine is the part of a worker.Session the scheduler drives.
type Engine interface {
	RequestAnalysis(ctx context.Context, req models.EngineRequest) (*worker.Stream, error)
	StopCurrentRequest(ctx context.Context) error
	// Dead is closed when the engine process is gone.
	Dead() <-chan struct{}
}

// State is the scheduler's outer state.
type State int32

const (
	StateIdle State = iota
	StateRunning
	// StateHalted means the engine failed; Start again after replacing it.
	StateHalted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateHalted:
		return "halted"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Phase is the step of the inner cycle while running.
type Phase int32

const (
	PhaseWaiting Phase = iota
	PhaseRequesting
	PhasePublishing
)

func (p Phase) String() string {
	switch p {
	case PhaseWaiting:
		return "waiting"
	case PhaseRequesting:
		return "requesting"
	case PhasePublishing:
		return "publishing"
	}
	return fmt.Sprintf("Phase(%d)", int32(p))
}

// Options configures a Scheduler.
type Options struct {
	Lines int
	Limit models.SearchLimit
	// Pacing is the minimum interval between two published snapshots.
	Pacing time.Duration
	// StopTimeout bounds the wait for an outstanding request when stopping.
	StopTimeout time.Duration
	// Cache is optional.
	Cache store.Cache
	// OnHalt is called once, from the scheduler goroutine, when the engine fails.
	OnHalt func(error)
}

// Scheduler keeps a Publisher fresh for whatever position its cell holds.
type Scheduler struct {
	engine Engine
	cell   *PositionCell
	pub    *Publisher
	opts   Options
	logger *slog.Logger

	seq   atomic.Uint64
	phase atomic.Int32

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewScheduler returns an idle scheduler.
func NewScheduler(engine Engine, cell *PositionCell, pub *Publisher, opts Options) *Scheduler {
	if opts.Lines < 1 {
		opts.Lines = 3
	}
	if opts.Limit.Depth < 1 {
		opts.Limit.Depth = 12
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 2 * time.Second
	}
	done := make(chan struct{})
	close(done)
	return &Scheduler{
		engine: engine,
		cell:   cell,
		pub:    pub,
		opts:   opts,
		logger: slog.Default().With("component", "scheduler"),
		done:   done,
	}
}

// State returns the outer state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Phase returns the inner cycle step.
func (s *Scheduler) Phase() Phase {
	return Phase(s.phase.Load())
}

// Err returns the error that halted the scheduler, if any.
func (s *Scheduler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed when the current run ends, by Stop or by engine failure.
func (s *Scheduler) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Start runs the analysis loop in a new goroutine until Stop, ctx
// cancellation, or engine failure.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		return ErrSchedulerRunning
	}

	// Keep sequence numbers above anything already published.
	if seq := s.pub.Seq(); seq > s.seq.Load() {
		s.seq.Store(seq)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.state = StateRunning
	s.err = nil
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done

	go func() {
		err := s.run(runCtx)
		cancel()
		s.finish(err, done)
	}()
	return nil
}

// Stop cancels the loop and any outstanding request and waits for the
// loop to exit. Stopping an idle or halted scheduler does nothing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	<-done
}

func (s *Scheduler) finish(err error, done chan struct{}) {
	s.phase.Store(int32(PhaseWaiting))

	s.mu.Lock()
	s.cancel = nil
	if err != nil {
		s.state = StateHalted
		s.err = err
	} else {
		s.state = StateIdle
	}
	s.mu.Unlock()
	close(done)

	if err != nil {
		s.logger.Error("analysis halted", "error", err)
		if s.opts.OnHalt != nil {
			s.opts.OnHalt(err)
		}
		return
	}
	s.logger.Info("analysis stopped")
}

// cycle is the state of the request for one position version.
type cycle struct {
	token   uint64
	pos     models.Position
	stream  *worker.Stream
	lines   map[int]models.ScoredLine
	pending *models.AnalysisSnapshot
	pace    <-chan time.Time
}

func (s *Scheduler) run(ctx context.Context) (err error) {
	s.logger.Info("analysis started", "lines", s.opts.Lines, "depth", s.opts.Limit.Depth, "pacing", s.opts.Pacing)

	var (
		cur         *cycle
		lastPublish time.Time
		dead        = s.engine.Dead()
	)
	defer func() {
		if cur != nil && cur.stream != nil {
			if stopErr := s.stopRequest(); stopErr != nil && err == nil && !errors.Is(stopErr, worker.ErrEngineTerminated) {
				s.logger.Warn("stop outstanding request", "error", stopErr)
			}
		}
	}()

	publish := func(snap models.AnalysisSnapshot) {
		s.phase.Store(int32(PhasePublishing))
		if s.publish(snap) {
			lastPublish = time.Now()
		}
		cur.pending, cur.pace = nil, nil
		s.phase.Store(int32(PhaseWaiting))
	}

	for {
		pos, token, changed := s.cell.Watch()

		if cur == nil || cur.token != token {
			if cur != nil && cur.stream != nil {
				cur.stream = nil
				if err := s.stopRequest(); err != nil {
					return err
				}
			}
			cur = &cycle{token: token, pos: pos, lines: make(map[int]models.ScoredLine)}

			if snap, ok := s.cached(ctx, cur); ok {
				publish(snap)
			} else {
				s.phase.Store(int32(PhaseRequesting))
				stream, err := s.engine.RequestAnalysis(ctx, models.EngineRequest{
					Position:  pos,
					Limit:     s.opts.Limit,
					LineCount: s.opts.Lines,
				})
				s.phase.Store(int32(PhaseWaiting))
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				cur.stream = stream
			}
		}

		var msgs <-chan uci.Message
		if cur.stream != nil {
			msgs = cur.stream.C()
		}

		select {
		case <-ctx.Done():
			return nil

		case <-dead:
			return fmt.Errorf("%w: engine exited while analysis was running", worker.ErrEngineTerminated)

		case <-changed:

		case <-cur.pace:
			if cur.pending != nil {
				publish(*cur.pending)
			}

		case msg, ok := <-msgs:
			if !ok {
				err := cur.stream.Err()
				cur.stream = nil
				if err != nil {
					return err
				}
				continue
			}
			switch m := msg.(type) {
			case uci.InfoLine:
				if m.Rank > s.opts.Lines {
					continue
				}
				cur.lines[m.Rank] = m.Line()
				snap, ok := s.snapshot(cur, false)
				if !ok {
					continue
				}
				wait := s.opts.Pacing - time.Since(lastPublish)
				if wait <= 0 {
					publish(snap)
					continue
				}
				if cur.pending == nil {
					cur.pace = time.After(wait)
				}
				cur.pending = &snap

			case uci.BestMoveLine:
				snap, _ := s.snapshot(cur, true)
				publish(snap)
				s.store(ctx, snap)
			}
		}
	}
}

// snapshot builds a candidate from the dense prefix of ranks 1..k.
// A final snapshot is built even when it has no lines.
func (s *Scheduler) snapshot(c *cycle, final bool) (models.AnalysisSnapshot, bool) {
	lines := make([]models.ScoredLine, 0, s.opts.Lines)
	depth := 0
	for rank := 1; rank <= s.opts.Lines; rank++ {
		l, ok := c.lines[rank]
		if !ok {
			break
		}
		if depth == 0 || l.Depth < depth {
			depth = l.Depth
		}
		lines = append(lines, l)
	}
	if len(lines) == 0 && !final {
		return models.AnalysisSnapshot{}, false
	}
	return models.AnalysisSnapshot{
		Token:    c.token,
		Position: c.pos,
		Lines:    lines,
		Depth:    depth,
		Final:    final,
	}, true
}

// publish stamps snap with the next sequence number and publishes it,
// unless the position changed since it was requested.
func (s *Scheduler) publish(snap models.AnalysisSnapshot) bool {
	if s.cell.Version() != snap.Token {
		s.logger.Debug("discarding stale analysis", "token", snap.Token)
		return false
	}
	snap.Seq = s.seq.Add(1)
	return s.pub.Publish(snap)
}

func (s *Scheduler) stopRequest() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.StopTimeout)
	defer cancel()
	return s.engine.StopCurrentRequest(ctx)
}

func (s *Scheduler) cached(ctx context.Context, c *cycle) (models.AnalysisSnapshot, bool) {
	if s.opts.Cache == nil {
		return models.AnalysisSnapshot{}, false
	}
	e, ok, err := s.opts.Cache.Get(ctx, c.pos.Key())
	if err != nil {
		s.logger.Warn("analysis cache read failed", "error", err)
		return models.AnalysisSnapshot{}, false
	}
	if !ok || !e.Covers(s.opts.Limit.Depth, s.opts.Lines) {
		return models.AnalysisSnapshot{}, false
	}
	for _, l := range e.Lines {
		if l.Rank <= s.opts.Lines {
			c.lines[l.Rank] = l
		}
	}
	snap, _ := s.snapshot(c, true)
	s.logger.Debug("analysis served from cache", "fen", c.pos.FEN, "depth", e.Depth)
	return snap, true
}

func (s *Scheduler) store(ctx context.Context, snap models.AnalysisSnapshot) {
	if s.opts.Cache == nil || len(snap.Lines) == 0 {
		return
	}
	err := s.opts.Cache.Put(ctx, store.Entry{
		FEN:       snap.Position.Key(),
		Depth:     s.opts.Limit.Depth,
		LineCount: s.opts.Lines,
		Lines:     snap.Lines,
	})
	if err != nil {
		s.logger.Warn("analysis cache write failed", "error", err)
	}
}
