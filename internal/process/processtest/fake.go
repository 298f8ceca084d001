// Package processtest provides a scripted process.Runner for tests.
package processtest

import (
	"context"
	"io"
	"strconv"
	"sync"

	"github.com/tendant/newscast/internal/process"
)

// FakeRunner records invocations and answers them with a user-supplied
// handler.
type FakeRunner struct {
	mu      sync.Mutex
	calls   []process.Command
	Handler func(cmd process.Command, stdin string) (process.Result, error)
}

func (f *FakeRunner) Run(ctx context.Context, cmd process.Command) (process.Result, error) {
	stdin := ""
	if cmd.Stdin != nil {
		b, _ := io.ReadAll(cmd.Stdin)
		stdin = string(b)
	}

	f.mu.Lock()
	recorded := cmd
	recorded.Args = append([]string(nil), cmd.Args...)
	recorded.Stdin = nil
	f.calls = append(f.calls, recorded)
	handler := f.Handler
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		res := process.Result{ExitCode: -1}
		return res, &process.CommandError{Command: cmd.Name, Args: cmd.Args, Result: res, Err: err}
	}
	if handler == nil {
		return process.Result{}, nil
	}
	return handler(cmd, stdin)
}

// Calls returns a copy of every recorded command.
func (f *FakeRunner) Calls() []process.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]process.Command(nil), f.calls...)
}

// CallsTo returns recorded commands for one program name.
func (f *FakeRunner) CallsTo(name string) []process.Command {
	var out []process.Command
	for _, c := range f.Calls() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Fail builds a CommandError as process.ExecRunner would for a non-zero exit.
func Fail(cmd process.Command, exitCode int, stderr string) (process.Result, error) {
	res := process.Result{ExitCode: exitCode, Stderr: stderr}
	return res, &process.CommandError{Command: cmd.Name, Args: cmd.Args, Result: res, Err: errExit(exitCode)}
}

type errExit int

func (e errExit) Error() string { return "exit status " + strconv.Itoa(int(e)) }
