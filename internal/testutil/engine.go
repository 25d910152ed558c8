// Package testutil provides an in-process UCI engine for tests.
package testutil

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FakeEngine speaks enough UCI over in-memory pipes to drive a session.
//
// Scores encode the position: a search of a position reached after n moves
// reports "cp n*100+rank" for each line, so tests can check which position
// a published line was computed for.
type FakeEngine struct {
	// NoHandshake makes the engine never answer "uci".
	NoHandshake bool
	// IgnoreStop makes the engine keep searching after "stop".
	IgnoreStop bool
	// IgnoreQuit makes the engine stay alive after "quit".
	IgnoreQuit bool
	// Hold keeps a finished search open until "stop" arrives.
	Hold bool
	// DepthDelay is slept between depths.
	DepthDelay time.Duration
	// Garbage is written before every search.
	Garbage []string

	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter

	mu       sync.Mutex
	commands []string
	multiPV  int
	moves    int
	searches int
	stopCh   chan struct{}
	searchWG sync.WaitGroup

	outMu    sync.Mutex
	exitOnce sync.Once
	exited   chan struct{}
	exitErr  error
}

// NewFakeEngine returns an engine that is not yet running.
func NewFakeEngine() *FakeEngine {
	e := &FakeEngine{multiPV: 1, exited: make(chan struct{})}
	e.stdinR, e.stdinW = io.Pipe()
	e.stdoutR, e.stdoutW = io.Pipe()
	return e
}

// Run starts the command loop. The session launcher calls it.
func (e *FakeEngine) Run() *FakeEngine {
	go e.loop()
	return e
}

func (e *FakeEngine) Stdin() io.WriteCloser { return e.stdinW }
func (e *FakeEngine) Stdout() io.Reader     { return e.stdoutR }

func (e *FakeEngine) Wait() error {
	<-e.exited
	return e.exitErr
}

func (e *FakeEngine) Kill() error {
	e.exit(errors.New("killed"))
	return nil
}

// Crash simulates the process dying without a goodbye.
func (e *FakeEngine) Crash() {
	e.exit(errors.New("crashed"))
}

// Exited is closed once the engine has stopped.
func (e *FakeEngine) Exited() <-chan struct{} { return e.exited }

// Commands returns every line received so far.
func (e *FakeEngine) Commands() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.commands...)
}

// Count returns how many received lines start with prefix.
func (e *FakeEngine) Count(prefix string) int {
	n := 0
	for _, c := range e.Commands() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// Searches returns how many "go" commands were received.
func (e *FakeEngine) Searches() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.searches
}

func (e *FakeEngine) exit(err error) {
	e.exitOnce.Do(func() {
		e.exitErr = err
		e.mu.Lock()
		if e.stopCh != nil {
			close(e.stopCh)
			e.stopCh = nil
		}
		e.mu.Unlock()
		_ = e.stdoutW.CloseWithError(io.EOF)
		_ = e.stdinR.CloseWithError(io.ErrClosedPipe)
		close(e.exited)
	})
}

func (e *FakeEngine) send(lines ...string) {
	e.outMu.Lock()
	defer e.outMu.Unlock()
	for _, line := range lines {
		if _, err := io.WriteString(e.stdoutW, line+"\n"); err != nil {
			return
		}
	}
}

func (e *FakeEngine) loop() {
	scanner := bufio.NewScanner(e.stdinR)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		e.mu.Lock()
		e.commands = append(e.commands, line)
		e.mu.Unlock()

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "uci":
			if !e.NoHandshake {
				e.send("id name FakeEngine", "id author testutil", "uciok")
			}
		case "isready":
			e.send("readyok")
		case "setoption":
			if len(fields) == 5 && fields[2] == "MultiPV" {
				if n, err := strconv.Atoi(fields[4]); err == nil {
					e.mu.Lock()
					e.multiPV = n
					e.mu.Unlock()
				}
			}
		case "position":
			n := 0
			for i, f := range fields {
				if f == "moves" {
					n = len(fields) - i - 1
				}
			}
			e.mu.Lock()
			e.moves = n
			e.mu.Unlock()
		case "go":
			depth := 1
			if len(fields) == 3 && fields[1] == "depth" {
				depth, _ = strconv.Atoi(fields[2])
			}
			e.startSearch(depth)
		case "stop":
			if !e.IgnoreStop {
				e.mu.Lock()
				if e.stopCh != nil {
					close(e.stopCh)
					e.stopCh = nil
				}
				e.mu.Unlock()
			}
		case "quit":
			if !e.IgnoreQuit {
				e.searchWG.Wait()
				e.exit(nil)
				return
			}
		}
	}
}

func (e *FakeEngine) startSearch(depth int) {
	e.searchWG.Wait()

	e.mu.Lock()
	stop := make(chan struct{})
	e.stopCh = stop
	lines, moves := e.multiPV, e.moves
	e.searches++
	e.mu.Unlock()

	e.send(e.Garbage...)

	e.searchWG.Add(1)
	go func() {
		defer e.searchWG.Done()
		best := "e2e4"
		for d := 1; d <= depth; d++ {
			select {
			case <-stop:
				e.send("bestmove " + best)
				return
			case <-e.exited:
				return
			default:
			}
			for rank := 1; rank <= lines; rank++ {
				e.send(fmt.Sprintf("info depth %d seldepth %d multipv %d score cp %d nodes %d pv %s",
					d, d+2, rank, moves*100+rank, d*1000, pvFor(rank)))
			}
			if e.DepthDelay > 0 {
				select {
				case <-stop:
					e.send("bestmove " + best)
					return
				case <-e.exited:
					return
				case <-time.After(e.DepthDelay):
				}
			}
		}
		if e.Hold {
			select {
			case <-stop:
			case <-e.exited:
				return
			}
		}
		e.mu.Lock()
		if e.stopCh == stop {
			e.stopCh = nil
		}
		e.mu.Unlock()
		e.send("bestmove " + best + " ponder e7e5")
	}()
}

func pvFor(rank int) string {
	first := []string{"e2e4", "d2d4", "g1f3", "c2c4", "b1c3"}
	return first[(rank-1)%len(first)] + " e7e5 g1f3"
}
