package runtimefacade

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/bitfield/script"
)

// execProcess wraps os/exec for a bare subprocess launch.
type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Wait() error { return p.cmd.Wait() }
func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}
func (p *execProcess) Pid() int {
	if p.cmd.Process == nil {
		return -1
	}
	return p.cmd.Process.Pid
}

// shellProcess wraps bitfield/script for the shell-launch convenience
// path. The command runs to completion inside StartProcess; Wait only
// reports the already-collected result.
type shellProcess struct {
	err    error
	output string
}

func (p *shellProcess) Wait() error {
	return p.err
}
func (p *shellProcess) Kill() error { return fmt.Errorf("shell-launched commands cannot be killed mid-flight") }
func (p *shellProcess) Pid() int    { return -1 }

// Output returns what the command wrote to stdout, available once Wait
// has returned.
func (p *shellProcess) Output() string { return p.output }

func (r *goroutineRuntime) StartProcess(ctx context.Context, shell, name string, args ...string) (Process, error) {
	if shell == "sh" {
		cmdline := name
		for _, a := range args {
			cmdline += " " + a
		}
		p := script.Exec(cmdline)
		output, err := p.String()
		return &shellProcess{err: err, output: output}, nil
	}

	cmd := exec.CommandContext(ctx, name, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting process %s: %w", name, err)
	}
	return &execProcess{cmd: cmd}, nil
}
