package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jacokyle01/live-analysis/models"
)

func TestFormatText(t *testing.T) {
	tests := []struct {
		name string
		side models.Color
		line models.ScoredLine
		want string
	}{
		{
			name: "white to move",
			side: models.White,
			line: models.ScoredLine{Rank: 1, Score: models.CP(35), PV: []models.Move{"e2e4", "e7e5", "g1f3"}},
			want: "PV1: 0.35 | e2e4 e7e5 g1f3",
		},
		{
			name: "black to move is flipped",
			side: models.Black,
			line: models.ScoredLine{Rank: 2, Score: models.CP(120), PV: []models.Move{"e7e5"}},
			want: "PV2: -1.20 | e7e5",
		},
		{
			name: "mate",
			side: models.White,
			line: models.ScoredLine{Rank: 1, Score: models.Mate(3), PV: []models.Move{"h5f7", "e8d7"}},
			want: "PV1: Mate in 3 | h5f7 e8d7",
		},
		{
			name: "mated with black to move",
			side: models.Black,
			line: models.ScoredLine{Rank: 1, Score: models.Mate(-2), PV: []models.Move{"g8h8"}},
			want: "PV1: Mate in 2 | g8h8",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := models.AnalysisSnapshot{
				Position: models.Position{SideToMove: tt.side},
				Lines:    []models.ScoredLine{tt.line},
			}
			assert.Equal(t, tt.want, FormatText(snap))
		})
	}
}

func TestFormatTextMultipleLines(t *testing.T) {
	snap := models.AnalysisSnapshot{
		Lines: []models.ScoredLine{
			{Rank: 1, Score: models.CP(20), PV: []models.Move{"d2d4"}},
			{Rank: 2, Score: models.CP(-5), PV: []models.Move{"a2a3"}},
		},
	}
	assert.Equal(t, "PV1: 0.20 | d2d4\nPV2: -0.05 | a2a3", FormatText(snap))
	assert.Empty(t, FormatText(models.AnalysisSnapshot{}))
}
