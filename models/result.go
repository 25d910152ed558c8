package models

import (
	"fmt"
	"strings"
)

// ScoreKind distinguishes centipawn evaluations from mate distances.
type ScoreKind int

const (
	Centipawns ScoreKind = iota
	MateIn
)

// Score is an evaluation from the perspective of the side to move.
// For MateIn, a negative value means the side to move gets mated.
type Score struct {
	Kind  ScoreKind `json:"kind"`
	Value int       `json:"value"`
}

// CP returns a centipawn score.
func CP(v int) Score { return Score{Kind: Centipawns, Value: v} }

// Mate returns a mate-distance score.
func Mate(n int) Score { return Score{Kind: MateIn, Value: n} }

// IsMate reports whether s is a mate distance.
func (s Score) IsMate() bool { return s.Kind == MateIn }

// Negate returns the score seen by the other side.
func (s Score) Negate() Score {
	return Score{Kind: s.Kind, Value: -s.Value}
}

// White returns s as seen by white, given the side that was to move.
func (s Score) White(side Color) Score {
	if side == Black {
		return s.Negate()
	}
	return s
}

func (s Score) String() string {
	if s.Kind == MateIn {
		return fmt.Sprintf("#%d", s.Value)
	}
	return fmt.Sprintf("%+.2f", float64(s.Value)/100)
}

// ScoredLine is one ranked candidate line.
type ScoredLine struct {
	Rank  int    `json:"rank"`
	Depth int    `json:"depth"`
	Score Score  `json:"score"`
	PV    []Move `json:"pv"`
}

// PVString joins the principal variation with spaces.
func (l ScoredLine) PVString() string {
	parts := make([]string, len(l.PV))
	for i, m := range l.PV {
		parts[i] = string(m)
	}
	return strings.Join(parts, " ")
}

// AnalysisSnapshot holds the ranked lines computed for one position.
// Seq increases with every snapshot produced; Token is the position
// version the lines were computed for.
type AnalysisSnapshot struct {
	Seq      uint64       `json:"seq"`
	Token    uint64       `json:"token"`
	Position Position     `json:"position"`
	Lines    []ScoredLine `json:"lines"`
	Depth    int          `json:"depth"`
	Final    bool         `json:"final"`
}
