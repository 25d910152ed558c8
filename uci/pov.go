package uci

import (
	"fmt"

	"github.com/jacokyle01/live-analysis/models"
)

// POV is the perspective an engine reports scores from.
type POV int

const (
	// POVSideToMove is the UCI convention.
	POVSideToMove POV = iota
	// POVWhite is used by engines that always score from white's view.
	POVWhite
)

// ParsePOV reads a POV from its configuration name.
func ParsePOV(s string) (POV, error) {
	switch s {
	case "", "side-to-move":
		return POVSideToMove, nil
	case "white":
		return POVWhite, nil
	}
	return 0, fmt.Errorf("unknown score perspective %q", s)
}

func (p POV) String() string {
	if p == POVWhite {
		return "white"
	}
	return "side-to-move"
}

// Decoder decodes lines for one request, normalizing every score to the
// perspective of the side to move in the requested position.
type Decoder struct {
	POV POV
}

// Decode parses line as Decode does and orients InfoLine scores for side.
func (d Decoder) Decode(line string, side models.Color) Message {
	msg := Decode(line)
	info, ok := msg.(InfoLine)
	if !ok || d.POV != POVWhite || side != models.Black {
		return msg
	}
	info.Score = info.Score.Negate()
	switch info.Bound {
	case Lower:
		info.Bound = Upper
	case Upper:
		info.Bound = Lower
	}
	return info
}
