package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMoveValid(t *testing.T) {
	for _, m := range []Move{"e2e4", "a7a8q", "h1h8", "b2b1n"} {
		assert.True(t, m.Valid(), m)
	}
	for _, m := range []Move{"", "e4", "e2e9", "i2e4", "e7e8k", "e2e4e5", "0000"} {
		assert.False(t, m.Valid(), m)
	}
}

func TestScore(t *testing.T) {
	assert.Equal(t, "+0.35", CP(35).String())
	assert.Equal(t, "-1.20", CP(-120).String())
	assert.Equal(t, "#3", Mate(3).String())
	assert.Equal(t, "#-2", Mate(-2).String())

	assert.Equal(t, CP(-35), CP(35).White(Black))
	assert.Equal(t, CP(35), CP(35).White(White))
	assert.Equal(t, Mate(2), Mate(-2).White(Black))
	assert.True(t, Mate(1).IsMate())
	assert.False(t, CP(1).IsMate())
}

func TestEngineRequestValidate(t *testing.T) {
	pos := Position{FEN: StartFEN}
	assert.NoError(t, EngineRequest{Position: pos, Limit: SearchLimit{Depth: 12}, LineCount: 3}.Validate())
	assert.Error(t, EngineRequest{Position: pos, Limit: SearchLimit{Depth: 0}, LineCount: 3}.Validate())
	assert.Error(t, EngineRequest{Position: pos, Limit: SearchLimit{Depth: 12}, LineCount: 0}.Validate())
	assert.Error(t, EngineRequest{Limit: SearchLimit{Depth: 12}, LineCount: 3}.Validate())
}

func TestPositionClone(t *testing.T) {
	p := Position{FEN: StartFEN, Moves: []Move{"e2e4"}}
	c := p.Clone()
	c.Moves[0] = "d2d4"
	assert.Equal(t, Move("e2e4"), p.Moves[0])
	assert.Equal(t, StartFEN, p.Key())
	assert.Equal(t, "black", Black.String())
}

func TestScoredLinePVString(t *testing.T) {
	l := ScoredLine{PV: []Move{"e2e4", "e7e5"}}
	assert.Equal(t, "e2e4 e7e5", l.PVString())
}
