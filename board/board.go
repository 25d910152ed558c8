// Package board adapts the chess rules library to the analyzer's models:
// legal moves, applying and undoing moves, and FEN serialization.
package board

import (
	"errors"
	"fmt"
	"sort"

	"github.com/corentings/chess"

	"github.com/jacokyle01/live-analysis/models"
)

// ErrIllegalMove is returned when a move is not legal in the current position.
var ErrIllegalMove = errors.New("illegal move")

// Board is a game in progress. It is not safe for concurrent use; the
// single writer that owns it publishes Position snapshots instead.
type Board struct {
	startFEN string
	game     *chess.Game
	moves    []models.Move
}

// New returns a board at the standard starting position.
func New() *Board {
	b, err := FromFEN(models.StartFEN)
	if err != nil {
		panic(err)
	}
	return b
}

// FromFEN returns a board starting at fen.
func FromFEN(fen string) (*Board, error) {
	game, err := newGame(fen)
	if err != nil {
		return nil, err
	}
	return &Board{startFEN: fen, game: game}, nil
}

func newGame(fen string) (*chess.Game, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("invalid FEN %q: %w", fen, err)
	}
	return chess.NewGame(opt), nil
}

// Position returns an immutable snapshot of the current position.
func (b *Board) Position() models.Position {
	side := models.White
	if b.game.Position().Turn() == chess.Black {
		side = models.Black
	}
	return models.Position{
		StartFEN:   b.startFEN,
		Moves:      append([]models.Move(nil), b.moves...),
		FEN:        b.game.FEN(),
		SideToMove: side,
	}
}

// LegalMoves returns the legal moves in UCI notation, sorted.
func (b *Board) LegalMoves() []models.Move {
	valid := b.game.ValidMoves()
	moves := make([]models.Move, 0, len(valid))
	for _, m := range valid {
		moves = append(moves, models.Move(m.String()))
	}
	sort.Slice(moves, func(i, j int) bool { return moves[i] < moves[j] })
	return moves
}

// IsLegal reports whether m can be played now.
func (b *Board) IsLegal(m models.Move) bool {
	_, ok := b.find(m)
	return ok
}

func (b *Board) find(m models.Move) (*chess.Move, bool) {
	if !m.Valid() {
		return nil, false
	}
	for _, v := range b.game.ValidMoves() {
		if v.String() == string(m) {
			return v, true
		}
	}
	return nil, false
}

// Apply plays m.
func (b *Board) Apply(m models.Move) error {
	move, ok := b.find(m)
	if !ok {
		return fmt.Errorf("%w: %s in %s", ErrIllegalMove, m, b.game.FEN())
	}
	if err := b.game.Move(move); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrIllegalMove, m, err)
	}
	b.moves = append(b.moves, m)
	return nil
}

// Undo takes back the last move. It reports false when there is none.
func (b *Board) Undo() bool {
	if len(b.moves) == 0 {
		return false
	}
	game, err := newGame(b.startFEN)
	if err != nil {
		return false
	}
	moves := b.moves[:len(b.moves)-1]
	b.game, b.moves = game, nil
	for _, m := range moves {
		if err := b.Apply(m); err != nil {
			// Replaying moves that were legal once cannot fail.
			panic(err)
		}
	}
	return true
}

// Reset returns to the starting position.
func (b *Board) Reset() {
	game, err := newGame(b.startFEN)
	if err != nil {
		panic(err)
	}
	b.game, b.moves = game, nil
}

// Outcome describes how the game ended, or is empty while it goes on.
func (b *Board) Outcome() string {
	if b.game.Outcome() == chess.NoOutcome {
		return ""
	}
	return fmt.Sprintf("%s by %s", b.game.Outcome(), b.game.Method())
}
