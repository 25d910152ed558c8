package worker

import (
	"context"
	"io"
	"sync"

	"github.com/jacokyle01/live-analysis/models"
	"github.com/jacokyle01/live-analysis/uci"
)

// request is the bookkeeping for the one search in flight. Only the
// session's read loop sends on or closes msgs.
type request struct {
	side models.Color
	msgs chan uci.Message
	done chan struct{}
	err  error

	abandoned   chan struct{}
	abandonOnce sync.Once
}

func newRequest(side models.Color) *request {
	return &request{
		side:      side,
		msgs:      make(chan uci.Message, 64),
		done:      make(chan struct{}),
		abandoned: make(chan struct{}),
	}
}

// deliver hands m to the consumer unless the request was abandoned.
func (r *request) deliver(m uci.Message) {
	select {
	case r.msgs <- m:
	case <-r.abandoned:
	}
}

func (r *request) abandon() {
	r.abandonOnce.Do(func() { close(r.abandoned) })
}

func (r *request) finish(err error) {
	r.err = err
	close(r.msgs)
	close(r.done)
}

// Stream yields the InfoLine and BestMoveLine messages of one request as
// the engine produces them. It can be consumed once, by one goroutine.
type Stream struct {
	r *request
}

// C returns the message channel. It is closed after the BestMoveLine or
// when the engine dies; Err tells the two apart.
func (s *Stream) C() <-chan uci.Message {
	return s.r.msgs
}

// Done is closed once the request has ended.
func (s *Stream) Done() <-chan struct{} {
	return s.r.done
}

// Err returns nil while the request runs or after a normal finish, and an
// ErrEngineTerminated error when the engine died mid-request.
func (s *Stream) Err() error {
	select {
	case <-s.r.done:
		return s.r.err
	default:
		return nil
	}
}

// Next blocks for the next message. It returns io.EOF after the
// BestMoveLine has been consumed.
func (s *Stream) Next(ctx context.Context) (uci.Message, error) {
	select {
	case m, ok := <-s.r.msgs:
		if !ok {
			if s.r.err != nil {
				return nil, s.r.err
			}
			return nil, io.EOF
		}
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
