package worker

import (
	"context"
	"io"
	"os/exec"
)

// Process is a running engine with line-oriented standard streams.
type Process interface {
	Stdin() io.WriteCloser
	Stdout() io.Reader
	// Wait blocks until the process has exited.
	Wait() error
	Kill() error
}

// Launcher starts an engine process.
type Launcher func(ctx context.Context) (Process, error)

type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
}

// ExecLauncher launches the executable at path.
func ExecLauncher(path string, args ...string) Launcher {
	return func(ctx context.Context) (Process, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// Not CommandContext: the process outlives the start context.
		cmd := exec.Command(path, args...)

		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, err
		}

		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, err
		}

		if err := cmd.Start(); err != nil {
			return nil, err
		}

		return &execProcess{cmd: cmd, stdin: stdin, stdout: stdout}, nil
	}
}

func (p *execProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *execProcess) Stdout() io.Reader     { return p.stdout }
func (p *execProcess) Wait() error           { return p.cmd.Wait() }
func (p *execProcess) Kill() error           { return p.cmd.Process.Kill() }
