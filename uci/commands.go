package uci

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jacokyle01/live-analysis/models"
)

// MultiPVOption is the engine option that controls how many lines are reported.
const MultiPVOption = "MultiPV"

// Cmd is one outbound protocol line, without the trailing newline.
type Cmd interface {
	String() string
}

type simpleCmd string

func (c simpleCmd) String() string { return string(c) }

var (
	CmdUCI        Cmd = simpleCmd("uci")
	CmdIsReady    Cmd = simpleCmd("isready")
	CmdUCINewGame Cmd = simpleCmd("ucinewgame")
	CmdStop       Cmd = simpleCmd("stop")
	CmdQuit       Cmd = simpleCmd("quit")
)

// CmdSetOption sets an engine option. An empty Value is sent as a button press.
type CmdSetOption struct {
	Name  string
	Value string
}

func (c CmdSetOption) String() string {
	if c.Value == "" {
		return "setoption name " + c.Name
	}
	return "setoption name " + c.Name + " value " + c.Value
}

// CmdPosition sets the position to search, as a root plus the moves played.
type CmdPosition struct {
	Position models.Position
}

func (c CmdPosition) String() string {
	var sb strings.Builder
	root := c.Position.StartFEN
	if root == "" {
		root = c.Position.FEN
	}
	if root == models.StartFEN {
		sb.WriteString("position startpos")
	} else {
		sb.WriteString("position fen ")
		sb.WriteString(root)
	}
	if c.Position.StartFEN != "" && len(c.Position.Moves) > 0 {
		sb.WriteString(" moves")
		for _, m := range c.Position.Moves {
			sb.WriteByte(' ')
			sb.WriteString(string(m))
		}
	}
	return sb.String()
}

// CmdGo starts a search limited to Depth plies.
type CmdGo struct {
	Depth int
}

func (c CmdGo) String() string {
	if c.Depth <= 0 {
		return "go infinite"
	}
	return fmt.Sprintf("go depth %d", c.Depth)
}

// EncodeRequest translates req into protocol commands. The MultiPV option is
// emitted first unless the engine is already known to use req.LineCount;
// pass 0 for currentLines when that is unknown.
func EncodeRequest(req models.EngineRequest, currentLines int) []Cmd {
	cmds := make([]Cmd, 0, 3)
	if req.LineCount != currentLines {
		cmds = append(cmds, CmdSetOption{Name: MultiPVOption, Value: strconv.Itoa(req.LineCount)})
	}
	cmds = append(cmds, CmdPosition{Position: req.Position}, CmdGo{Depth: req.Limit.Depth})
	return cmds
}

// ParseSetOption splits a setoption line into its name and value.
// Option names may contain spaces.
func ParseSetOption(line string) (name, value string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) < 3 || fields[0] != "setoption" || fields[1] != "name" {
		return "", "", false
	}
	valueIndex := findIndexString(fields, "value")
	if valueIndex == -1 {
		return strings.Join(fields[2:], " "), "", true
	}
	if valueIndex == 2 {
		return "", "", false
	}
	return strings.Join(fields[2:valueIndex], " "), strings.Join(fields[valueIndex+1:], " "), true
}

// ParseMultiPV returns the line count configured by a setoption line.
func ParseMultiPV(line string) (int, bool) {
	name, value, ok := ParseSetOption(line)
	if !ok || !strings.EqualFold(name, MultiPVOption) {
		return 0, false
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func findIndexString(slice []string, value string) int {
	for p, v := range slice {
		if v == value {
			return p
		}
	}
	return -1
}
