// internal/process/runner.go
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"unicode/utf8"
)

// Command describes one external program invocation. Arguments are passed
// to the program verbatim; nothing is interpreted by a shell.
type Command struct {
	Name  string
	Args  []string
	Stdin io.Reader
	Dir   string
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result captures one finished invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner abstracts process execution so pipelines can be tested without binaries.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner executes commands via os/exec.
type ExecRunner struct{}

// Run executes cmd and captures stdout, stderr and exit code. A non-zero
// exit or start failure is returned as *CommandError.
func (ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Stdin = cmd.Stdin

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err == nil {
		return res, nil
	}

	res.ExitCode = -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = fmt.Errorf("%w: %w", ctxErr, err)
	}
	return res, &CommandError{Command: cmd.Name, Args: cmd.Args, Result: res, Err: err}
}

// CommandError reports a failed invocation with enough context to debug it.
type CommandError struct {
	Command string
	Args    []string
	Result  Result
	Err     error
}

const stderrTail = 400

func (e *CommandError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s failed (exit=%d): %v", e.Command, e.Result.ExitCode, e.Err)
	if tail := Tail(e.Result.Stderr, stderrTail); tail != "" {
		msg += ": " + tail
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Tail returns at most the last n bytes of s, trimmed. The cut never
// splits a UTF-8 sequence.
func Tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	cut := len(s) - n
	for cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut++
	}
	return "..." + s[cut:]
}
