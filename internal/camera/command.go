// Package camera assembles camera image sequences into video files by
// driving an external encoder.
package camera

import (
	"context"
	"os/exec"
)

// CommandExecutor runs one prepared external command.
type CommandExecutor interface {
	// Run executes the command and returns the combined output (stdout+stderr).
	Run() ([]byte, error)
}

// CommandBuilder prepares external commands.
// This abstraction enables unit testing without spawning processes.
type CommandBuilder interface {
	BuildCommand(ctx context.Context, name string, args ...string) CommandExecutor
}

// ExecCommandExecutor wraps exec.Cmd to implement CommandExecutor.
type ExecCommandExecutor struct {
	cmd *exec.Cmd
}

// Run executes the command and returns combined output.
func (r *ExecCommandExecutor) Run() ([]byte, error) {
	return r.cmd.CombinedOutput()
}

// ExecCommandBuilder implements CommandBuilder using exec.CommandContext, so
// cancelling ctx kills the process.
type ExecCommandBuilder struct{}

func (ExecCommandBuilder) BuildCommand(ctx context.Context, name string, args ...string) CommandExecutor {
	return &ExecCommandExecutor{cmd: exec.CommandContext(ctx, name, args...)}
}

// MockCommandExecutor implements CommandExecutor for testing.
type MockCommandExecutor struct {
	Output    []byte
	Err       error
	RunCalled bool
}

func (m *MockCommandExecutor) Run() ([]byte, error) {
	m.RunCalled = true
	return m.Output, m.Err
}

// MockBuiltCommand records details of a built command.
type MockBuiltCommand struct {
	Name string
	Args []string
}

// MockCommandBuilder implements CommandBuilder for testing. Every built
// command is recorded; NextExecutor, when set, is returned once.
type MockCommandBuilder struct {
	Commands     []MockBuiltCommand
	NextExecutor *MockCommandExecutor
}

func (b *MockCommandBuilder) BuildCommand(_ context.Context, name string, args ...string) CommandExecutor {
	b.Commands = append(b.Commands, MockBuiltCommand{Name: name, Args: args})
	if b.NextExecutor != nil {
		e := b.NextExecutor
		b.NextExecutor = nil
		return e
	}
	return &MockCommandExecutor{}
}

// LastCommand returns the most recently built command, or nil if none.
func (b *MockCommandBuilder) LastCommand() *MockBuiltCommand {
	if len(b.Commands) == 0 {
		return nil
	}
	return &b.Commands[len(b.Commands)-1]
}
