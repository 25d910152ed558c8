package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jacokyle01/live-analysis/config"
	"github.com/jacokyle01/live-analysis/models"
	"github.com/jacokyle01/live-analysis/uci"
)

// State is the lifecycle stage of a Session.
type State int32

const (
	StateCreated State = iota
	StateReady
	StateBusy
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	case StateTerminated:
		return "terminated"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Session owns one engine process and allows at most one request in flight.
type Session struct {
	id      string
	cfg     config.Engine
	launch  Launcher
	decoder uci.Decoder
	logger  *slog.Logger

	mu      sync.Mutex
	state   State
	proc    Process
	active  *request
	multiPV int
	started bool

	writeMu sync.Mutex
	stdin   *bufio.Writer

	acks   chan uci.ReadyAck
	dead   chan struct{}
	exited chan struct{}

	anomalies    atomic.Int64
	shutdownOnce sync.Once
}

// NewSession creates a session that will start its engine with launch.
func NewSession(cfg config.Engine, launch Launcher) (*Session, error) {
	pov, err := uci.ParsePOV(cfg.ScorePOV)
	if err != nil {
		return nil, err
	}
	id := uuid.Must(uuid.NewV7()).String()
	return &Session{
		id:      id,
		cfg:     cfg,
		launch:  launch,
		decoder: uci.Decoder{POV: pov},
		logger:  slog.Default().With("session", id),
		acks:    make(chan uci.ReadyAck, 4),
		dead:    make(chan struct{}),
		exited:  make(chan struct{}),
	}, nil
}

// ID identifies the session in logs and errors.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Anomalies returns how many engine lines looked like reports but failed to decode.
func (s *Session) Anomalies() int64 {
	return s.anomalies.Load()
}

// Dead is closed when the engine's output ends.
func (s *Session) Dead() <-chan struct{} {
	return s.dead
}

func (s *Session) opError(op string, err error) error {
	return &OpError{Op: op, Session: s.id, Err: err}
}

// Start launches the engine and performs the handshake within the
// configured timeout.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started || s.state != StateCreated {
		state := s.state
		s.mu.Unlock()
		return s.opError("start", fmt.Errorf("session already started (%s)", state))
	}
	s.started = true
	s.mu.Unlock()

	proc, err := s.launch(ctx)
	if err != nil {
		return s.opError("start", fmt.Errorf("%w: %v", ErrEngineUnavailable, err))
	}

	s.writeMu.Lock()
	s.stdin = bufio.NewWriter(proc.Stdin())
	s.writeMu.Unlock()
	s.mu.Lock()
	s.proc = proc
	s.mu.Unlock()

	go s.readLoop(proc.Stdout())
	go func() {
		<-s.dead
		if err := proc.Wait(); err != nil {
			s.logger.Debug("engine exited", "error", err)
		}
		close(s.exited)
	}()

	hctx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	defer cancel()
	if err := s.handshake(hctx); err != nil {
		_ = proc.Kill()
		return s.opError("start", fmt.Errorf("%w: handshake: %v", ErrEngineUnavailable, err))
	}

	s.mu.Lock()
	if s.state == StateCreated {
		s.state = StateReady
	}
	s.mu.Unlock()

	s.logger.Info("engine ready")
	return nil
}

func (s *Session) handshake(ctx context.Context) error {
	if err := s.write(uci.CmdUCI); err != nil {
		return err
	}
	if err := s.waitAck(ctx, "uciok"); err != nil {
		return err
	}

	names := make([]string, 0, len(s.cfg.Options))
	for name := range s.cfg.Options {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := s.write(uci.CmdSetOption{Name: name, Value: s.cfg.Options[name]}); err != nil {
			return err
		}
	}

	if err := s.write(uci.CmdIsReady); err != nil {
		return err
	}
	return s.waitAck(ctx, "readyok")
}

func (s *Session) waitAck(ctx context.Context, token string) error {
	for {
		select {
		case ack := <-s.acks:
			if ack.Token == token {
				return nil
			}
		case <-s.dead:
			return ErrEngineTerminated
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", token, ctx.Err())
		}
	}
}

// RequestAnalysis starts a search for req and returns its message stream.
// It fails with ErrSessionBusy while another request is in flight.
func (s *Session) RequestAnalysis(ctx context.Context, req models.EngineRequest) (*Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, s.opError("analyze", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	switch s.state {
	case StateCreated:
		s.mu.Unlock()
		return nil, s.opError("analyze", fmt.Errorf("%w: session not started", ErrEngineUnavailable))
	case StateTerminated:
		s.mu.Unlock()
		return nil, s.opError("analyze", ErrEngineTerminated)
	case StateBusy:
		s.mu.Unlock()
		return nil, s.opError("analyze", ErrSessionBusy)
	}
	r := newRequest(req.Position.SideToMove)
	s.active = r
	s.state = StateBusy
	cmds := uci.EncodeRequest(req, s.multiPV)
	s.multiPV = req.LineCount
	s.mu.Unlock()

	if err := s.write(cmds...); err != nil {
		s.mu.Lock()
		s.multiPV = 0
		if s.active == r {
			s.active = nil
			if s.state == StateBusy {
				s.state = StateReady
			}
		}
		s.mu.Unlock()
		return nil, s.opError("analyze", err)
	}

	s.logger.Debug("analysis requested",
		"fen", req.Position.FEN, "depth", req.Limit.Depth, "lines", req.LineCount)
	return &Stream{r: r}, nil
}

// StopCurrentRequest stops the search in flight and waits, bounded by the
// stop timeout and ctx, until the engine reports its best move. It does
// nothing when the session is idle. An engine that has not acknowledged
// stop when either bound expires is killed, so the session never stays busy.
func (s *Session) StopCurrentRequest(ctx context.Context) error {
	s.mu.Lock()
	r, state := s.active, s.state
	s.mu.Unlock()

	if state == StateTerminated {
		return s.opError("stop", ErrEngineTerminated)
	}
	if r == nil {
		return nil
	}

	r.abandon()
	if err := s.write(uci.CmdStop); err != nil {
		return s.opError("stop", err)
	}

	timer := time.NewTimer(s.cfg.StopTimeout)
	defer timer.Stop()

	select {
	case <-r.done:
		if r.err != nil {
			return s.opError("stop", r.err)
		}
		return nil
	case <-timer.C:
		s.logger.Warn("engine ignored stop, killing it", "timeout", s.cfg.StopTimeout)
		s.kill()
		return s.opError("stop", ErrStopTimeout)
	case <-ctx.Done():
		s.logger.Warn("stop abandoned before engine acknowledged, killing it", "error", ctx.Err())
		s.kill()
		return s.opError("stop", fmt.Errorf("%w: %w", ErrStopTimeout, ctx.Err()))
	}
}

// BestMove runs a single-line search and returns the engine's move.
func (s *Session) BestMove(ctx context.Context, pos models.Position, limit models.SearchLimit) (models.Move, error) {
	stream, err := s.RequestAnalysis(ctx, models.EngineRequest{Position: pos, Limit: limit, LineCount: 1})
	if err != nil {
		return "", err
	}
	for {
		msg, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				stopCtx, cancel := context.WithTimeout(context.Background(), s.cfg.StopTimeout)
				_ = s.StopCurrentRequest(stopCtx)
				cancel()
				return "", ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return "", s.opError("bestmove", errors.New("search ended without a best move"))
			}
			return "", err
		}
		if bm, ok := msg.(uci.BestMoveLine); ok {
			if bm.Move == "" {
				return "", s.opError("bestmove", ErrNoMove)
			}
			return bm.Move, nil
		}
	}
}

// Shutdown asks the engine to quit and kills it if it has not exited
// within the grace period. It is safe to call more than once.
func (s *Session) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		proc, r := s.proc, s.active
		if proc == nil {
			s.state = StateTerminated
		}
		s.mu.Unlock()
		if proc == nil {
			return
		}

		if r != nil {
			r.abandon()
			_ = s.write(uci.CmdStop)
		}
		_ = s.write(uci.CmdQuit)

		s.writeMu.Lock()
		_ = proc.Stdin().Close()
		s.writeMu.Unlock()

		timer := time.NewTimer(s.cfg.ShutdownGrace)
		defer timer.Stop()

		select {
		case <-s.exited:
		case <-timer.C:
			s.logger.Warn("engine did not quit, killing it", "grace", s.cfg.ShutdownGrace)
			s.kill()
			<-s.exited
		}
		s.logger.Info("engine shut down")
	})
}

func (s *Session) kill() {
	s.mu.Lock()
	proc := s.proc
	s.mu.Unlock()
	if proc == nil {
		return
	}
	if err := proc.Kill(); err != nil {
		s.logger.Debug("kill engine", "error", err)
	}
}

func (s *Session) write(cmds ...uci.Cmd) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	select {
	case <-s.dead:
		return ErrEngineTerminated
	default:
	}

	for _, cmd := range cmds {
		line := cmd.String()
		s.logger.Debug("send", "line", line)
		if _, err := s.stdin.WriteString(line + "\n"); err != nil {
			return fmt.Errorf("%w: %v", ErrEngineTerminated, err)
		}
	}
	if err := s.stdin.Flush(); err != nil {
		return fmt.Errorf("%w: %v", ErrEngineTerminated, err)
	}
	return nil
}

func (s *Session) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		s.dispatch(scanner.Text())
	}
	s.terminate(scanner.Err())
}

func (s *Session) dispatch(line string) {
	s.mu.Lock()
	r := s.active
	s.mu.Unlock()

	side := models.White
	if r != nil {
		side = r.side
	}

	switch m := s.decoder.Decode(line, side).(type) {
	case uci.ReadyAck:
		select {
		case s.acks <- m:
		default:
		}
	case uci.InfoLine:
		if r != nil {
			r.deliver(m)
		}
	case uci.BestMoveLine:
		if r == nil {
			return
		}
		r.deliver(m)
		s.mu.Lock()
		if s.active == r {
			s.active = nil
			if s.state == StateBusy {
				s.state = StateReady
			}
		}
		s.mu.Unlock()
		r.finish(nil)
	case uci.Unrecognized:
		if uci.IsAnomaly(m) {
			s.anomalies.Add(1)
			s.logger.Debug("protocol decode anomaly", "line", m.Raw, "reason", m.Reason)
		}
	}
}

func (s *Session) terminate(err error) {
	s.mu.Lock()
	r := s.active
	s.active = nil
	s.state = StateTerminated
	s.mu.Unlock()

	close(s.dead)
	if r != nil {
		r.finish(s.opError("analyze", ErrEngineTerminated))
	}

	if err != nil {
		s.logger.Warn("engine output ended", "error", err)
		return
	}
	s.logger.Info("engine output ended")
}
