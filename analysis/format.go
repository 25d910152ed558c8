package analysis

import (
	"fmt"
	"strings"

	"github.com/jacokyle01/live-analysis/models"
)

// FormatText renders a snapshot as panel text, one line per candidate,
// with scores from white's point of view:
//
//	PV1: 0.35 | e2e4 e7e5 g1f3
//	PV2: Mate in 3 | h5f7 e8d7
func FormatText(snap models.AnalysisSnapshot) string {
	lines := make([]string, 0, len(snap.Lines))
	for _, l := range snap.Lines {
		score := l.Score.White(snap.Position.SideToMove)
		var eval string
		if score.IsMate() {
			eval = fmt.Sprintf("Mate in %d", score.Value)
		} else {
			eval = fmt.Sprintf("%.2f", float64(score.Value)/100)
		}
		lines = append(lines, fmt.Sprintf("PV%d: %s | %s", l.Rank, eval, l.PVString()))
	}
	return strings.Join(lines, "\n")
}
