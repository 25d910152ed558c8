package worker

import (
	"errors"
	"fmt"
)

var (
	// ErrEngineUnavailable means the engine could not be launched or did not
	// complete the handshake in time.
	ErrEngineUnavailable = errors.New("engine unavailable")
	// ErrSessionBusy means a request is already in flight.
	ErrSessionBusy = errors.New("engine session busy")
	// ErrEngineTerminated means the engine process is gone.
	ErrEngineTerminated = errors.New("engine terminated")
	// ErrStopTimeout means the engine did not acknowledge stop in time.
	ErrStopTimeout = errors.New("engine did not acknowledge stop")
	// ErrNoMove means the engine had no move to play.
	ErrNoMove = errors.New("engine has no legal move")
)

// OpError records the session operation that failed.
type OpError struct {
	Op      string
	Session string
	Err     error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("engine %s (session %s): %v", e.Op, e.Session, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err means the session can no longer be used.
func IsFatal(err error) bool {
	return errors.Is(err, ErrEngineUnavailable) || errors.Is(err, ErrEngineTerminated)
}
