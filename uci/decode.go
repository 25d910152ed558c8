package uci

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jacokyle01/live-analysis/models"
)

// Message is one decoded engine output line. It is one of ReadyAck,
// InfoLine, BestMoveLine or Unrecognized.
type Message interface {
	isMessage()
}

// ReadyAck acknowledges "uci" (Token "uciok") or "isready" (Token "readyok").
type ReadyAck struct {
	Token string
}

// Bound marks a score that is only a limit on the true value.
type Bound int

const (
	Exact Bound = iota
	Lower
	Upper
)

// InfoLine is a ranked search report with a score and principal variation.
type InfoLine struct {
	Rank  int
	Depth int
	Score models.Score
	Bound Bound
	PV    []models.Move
}

// Line converts the report into a ScoredLine.
func (l InfoLine) Line() models.ScoredLine {
	return models.ScoredLine{
		Rank:  l.Rank,
		Depth: l.Depth,
		Score: l.Score,
		PV:    append([]models.Move(nil), l.PV...),
	}
}

// BestMoveLine ends a search. Move is empty when the engine reports "(none)".
type BestMoveLine struct {
	Move   models.Move
	Ponder models.Move
}

// Unrecognized carries any line that is not one of the other messages.
// Malformed is set when the line had the shape of a report but a field
// failed to parse.
type Unrecognized struct {
	Raw       string
	Reason    string
	Malformed bool
}

func (ReadyAck) isMessage()     {}
func (InfoLine) isMessage()     {}
func (BestMoveLine) isMessage() {}
func (Unrecognized) isMessage() {}

// IsAnomaly reports whether m is a line that should have decoded but did not.
func IsAnomaly(m Message) bool {
	u, ok := m.(Unrecognized)
	return ok && u.Malformed
}

// Decode parses one engine output line. Scores are left as the engine
// reported them. It never fails: anything it cannot read is Unrecognized.
func Decode(line string) Message {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Unrecognized{Raw: line, Reason: "empty line"}
	}
	switch fields[0] {
	case "uciok", "readyok":
		if len(fields) != 1 {
			return Unrecognized{Raw: line, Reason: "trailing tokens"}
		}
		return ReadyAck{Token: fields[0]}
	case "bestmove":
		return decodeBestMove(line, fields[1:])
	case "info":
		return decodeInfo(line, fields[1:])
	}
	return Unrecognized{Raw: line, Reason: "unknown command"}
}

func decodeBestMove(line string, args []string) Message {
	if len(args) == 0 {
		return Unrecognized{Raw: line, Reason: "bestmove without move", Malformed: true}
	}
	var res BestMoveLine
	if args[0] != "(none)" {
		res.Move = models.Move(args[0])
		if !res.Move.Valid() {
			return Unrecognized{Raw: line, Reason: "invalid bestmove " + args[0], Malformed: true}
		}
	}
	if len(args) >= 3 && args[1] == "ponder" {
		res.Ponder = models.Move(args[2])
		if !res.Ponder.Valid() {
			res.Ponder = ""
		}
	}
	return res
}

func decodeInfo(line string, args []string) Message {
	var (
		res      InfoLine
		hasRank  bool
		hasScore bool
	)
	malformed := func(format string, a ...any) Message {
		return Unrecognized{Raw: line, Reason: fmt.Sprintf(format, a...), Malformed: true}
	}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "string":
			return Unrecognized{Raw: line, Reason: "info string"}
		case "depth":
			v, ok := intAt(args, i+1)
			if !ok {
				return malformed("bad depth")
			}
			res.Depth = v
			i++
		case "multipv":
			v, ok := intAt(args, i+1)
			if !ok || v < 1 {
				return malformed("bad multipv")
			}
			res.Rank = v
			hasRank = true
			i++
		case "score":
			if i+2 >= len(args) {
				return malformed("truncated score")
			}
			v, err := strconv.Atoi(args[i+2])
			if err != nil {
				return malformed("bad score value %q", args[i+2])
			}
			switch args[i+1] {
			case "cp":
				res.Score = models.CP(v)
			case "mate":
				res.Score = models.Mate(v)
			default:
				return malformed("bad score kind %q", args[i+1])
			}
			hasScore = true
			i += 2
			if i+1 < len(args) {
				switch args[i+1] {
				case "lowerbound":
					res.Bound = Lower
					i++
				case "upperbound":
					res.Bound = Upper
					i++
				}
			}
		case "wdl":
			i += 3
		case "seldepth", "nodes", "nps", "time", "hashfull", "tbhits", "cpuload",
			"currmove", "currmovenumber", "refutation", "currline":
			i++
		case "pv":
			for _, tok := range args[i+1:] {
				m := models.Move(tok)
				if !m.Valid() {
					return malformed("bad pv move %q", tok)
				}
				res.PV = append(res.PV, m)
			}
			i = len(args)
		}
	}

	switch {
	case !hasRank:
		return Unrecognized{Raw: line, Reason: "missing multipv"}
	case !hasScore:
		return Unrecognized{Raw: line, Reason: "missing score"}
	case len(res.PV) == 0:
		return Unrecognized{Raw: line, Reason: "missing pv"}
	}
	return res
}

func intAt(args []string, i int) (int, bool) {
	if i >= len(args) {
		return 0, false
	}
	v, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, false
	}
	return v, true
}
