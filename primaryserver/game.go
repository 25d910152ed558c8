package primaryserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/jacokyle01/live-analysis/models"
)

// errNothingToUndo is returned by Undo at the starting position.
var errNothingToUndo = errors.New("no move to undo")

// errPositionChanged is returned when the board moved on during an engine search.
var errPositionChanged = errors.New("position changed during engine search")

// PositionView is the board as the presentation layer draws it.
type PositionView struct {
	FEN        string        `json:"fen"`
	Moves      []models.Move `json:"moves"`
	SideToMove string        `json:"side_to_move"`
	LegalMoves []models.Move `json:"legal_moves"`
	Outcome    string        `json:"outcome,omitempty"`
}

// view must be called with s.mu held.
func (s *Server) view() PositionView {
	pos := s.board.Position()
	moves := pos.Moves
	if moves == nil {
		moves = []models.Move{}
	}
	return PositionView{
		FEN:        pos.FEN,
		Moves:      moves,
		SideToMove: pos.SideToMove.String(),
		LegalMoves: s.board.LegalMoves(),
		Outcome:    s.board.Outcome(),
	}
}

// Position returns the current board.
func (s *Server) Position() PositionView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view()
}

// PlayMove plays m and hands the new position to the analyzer.
func (s *Server) PlayMove(m models.Move) (PositionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.board.Apply(m); err != nil {
		return PositionView{}, err
	}
	s.analyzer.SetPosition(s.board.Position())
	s.logger.Info("move played", "move", m)
	return s.view(), nil
}

// Undo takes back the last move.
func (s *Server) Undo() (PositionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.board.Undo() {
		return PositionView{}, errNothingToUndo
	}
	s.analyzer.SetPosition(s.board.Position())
	return s.view(), nil
}

// Reset returns the board to its starting position.
func (s *Server) Reset() PositionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.board.Reset()
	s.analyzer.SetPosition(s.board.Position())
	return s.view()
}

// PlayEngineMove asks the engine for a move and plays it. The board lock
// is not held during the search; the move is rejected if the board changed
// meanwhile.
func (s *Server) PlayEngineMove(ctx context.Context, limit models.SearchLimit) (models.Move, PositionView, error) {
	s.mu.RLock()
	before := s.board.Position()
	s.mu.RUnlock()

	move, err := s.analyzer.EngineMove(ctx, limit)
	if err != nil {
		return "", PositionView{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.board.Position()
	if now.FEN != before.FEN || len(now.Moves) != len(before.Moves) {
		return "", PositionView{}, errPositionChanged
	}
	if err := s.board.Apply(move); err != nil {
		return "", PositionView{}, fmt.Errorf("engine move: %w", err)
	}
	s.analyzer.SetPosition(s.board.Position())
	s.logger.Info("engine move played", "move", move)
	return move, s.view(), nil
}
