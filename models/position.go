package models

import "strings"

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Color is the side to move.
type Color int

const (
	White Color = iota
	Black
)

func (c Color) String() string {
	if c == Black {
		return "black"
	}
	return "white"
}

// Move is a move in UCI long algebraic notation, e.g. "e2e4" or "e7e8q".
type Move string

// Valid reports whether m has the shape of a UCI move. Legality is not checked.
func (m Move) Valid() bool {
	if len(m) != 4 && len(m) != 5 {
		return false
	}
	for i := 0; i < 4; i += 2 {
		if m[i] < 'a' || m[i] > 'h' || m[i+1] < '1' || m[i+1] > '8' {
			return false
		}
	}
	if len(m) == 5 {
		return strings.IndexByte("nbrq", m[4]) >= 0
	}
	return true
}

// Position is an immutable snapshot of a game: where it started, the moves
// played since, and the resulting FEN. FEN identifies the position.
type Position struct {
	StartFEN   string `json:"start_fen"`
	Moves      []Move `json:"moves,omitempty"`
	FEN        string `json:"fen"`
	SideToMove Color  `json:"side_to_move"`
}

// Key returns the identity of the position.
func (p Position) Key() string {
	return p.FEN
}

// Clone returns a copy that shares no slices with p.
func (p Position) Clone() Position {
	c := p
	if p.Moves != nil {
		c.Moves = append([]Move(nil), p.Moves...)
	}
	return c
}
