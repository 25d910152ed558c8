package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacokyle01/live-analysis/models"
)

func TestNewBoard(t *testing.T) {
	b := New()
	pos := b.Position()

	assert.Equal(t, models.StartFEN, pos.FEN)
	assert.Equal(t, models.StartFEN, pos.StartFEN)
	assert.Equal(t, models.White, pos.SideToMove)
	assert.Empty(t, pos.Moves)
	assert.Len(t, b.LegalMoves(), 20)
	assert.Empty(t, b.Outcome())
}

func TestApplyAndUndo(t *testing.T) {
	b := New()

	require.NoError(t, b.Apply("e2e4"))
	require.NoError(t, b.Apply("e7e5"))

	pos := b.Position()
	assert.Equal(t, []models.Move{"e2e4", "e7e5"}, pos.Moves)
	assert.Equal(t, models.White, pos.SideToMove)
	assert.Contains(t, pos.FEN, "4p3/4P3")

	require.True(t, b.Undo())
	pos = b.Position()
	assert.Equal(t, []models.Move{"e2e4"}, pos.Moves)
	assert.Equal(t, models.Black, pos.SideToMove)

	require.True(t, b.Undo())
	assert.Equal(t, models.StartFEN, b.Position().FEN)
	assert.False(t, b.Undo())
}

func TestApplyRejectsIllegalMoves(t *testing.T) {
	b := New()

	for _, m := range []models.Move{"e2e5", "e7e5", "zz11", ""} {
		err := b.Apply(m)
		assert.ErrorIs(t, err, ErrIllegalMove, "move %q", m)
		assert.False(t, b.IsLegal(m))
	}
	assert.Empty(t, b.Position().Moves)
}

func TestPositionSnapshotIsIndependent(t *testing.T) {
	b := New()
	require.NoError(t, b.Apply("d2d4"))
	snap := b.Position()

	require.NoError(t, b.Apply("d7d5"))
	assert.Equal(t, []models.Move{"d2d4"}, snap.Moves)
}

func TestFromFEN(t *testing.T) {
	fen := "4k3/8/8/8/8/8/8/4K2R w K - 0 1"
	b, err := FromFEN(fen)
	require.NoError(t, err)

	assert.True(t, b.IsLegal("e1g1"))
	require.NoError(t, b.Apply("e1g1"))
	assert.Equal(t, fen, b.Position().StartFEN)

	_, err = FromFEN("not a fen")
	assert.Error(t, err)
}

func TestOutcomeAfterMate(t *testing.T) {
	b := New()
	for _, m := range []models.Move{"f2f3", "e7e5", "g2g4", "d8h4"} {
		require.NoError(t, b.Apply(m))
	}
	assert.NotEmpty(t, b.Outcome())
	assert.Empty(t, b.LegalMoves())
}

func TestReset(t *testing.T) {
	b := New()
	require.NoError(t, b.Apply("g1f3"))
	b.Reset()
	assert.Equal(t, models.StartFEN, b.Position().FEN)
	assert.Empty(t, b.Position().Moves)
}
