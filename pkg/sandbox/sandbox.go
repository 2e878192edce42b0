// Package sandbox runs extracted scripts in a fresh, isolated Starlark
// interpreter scope with explicit capability injection and captured output.
// The sandbox performs no commit/rollback itself; transactional boundaries
// around a run belong to the caller.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"draftpilot/pkg/logx"
)

// Host supplies the named capability values injected into a script's scope.
// The sandbox never inspects the workspace; it only asks for bindings and
// hands them to the interpreter.
type Host interface {
	// Bindings returns the predeclared variables for one execution. Values
	// that produce textual results should write to out, which shares the
	// buffer used for print() capture.
	Bindings(out io.Writer) starlark.StringDict
}

// Outcome is the result of executing one script.
type Outcome struct {
	OK bool
	// Output holds everything the script printed before it finished or
	// faulted. On a fault this is the partial output written so far.
	Output string
	// Error is the formatted diagnostic for a fault, empty on success.
	Error string
}

// Executor executes scripts. Each call constructs a brand-new interpreter
// thread and scope; no state survives across executions.
type Executor struct {
	// Timeout bounds a single execution; zero means no bound.
	Timeout time.Duration

	logger *logx.Logger
}

// NewExecutor creates a sandboxed executor with the given execution timeout.
func NewExecutor(timeout time.Duration) *Executor {
	return &Executor{
		Timeout: timeout,
		logger:  logx.NewLogger("sandbox"),
	}
}

// fileOpts enables the non-module Starlark dialect features generated
// scripts rely on: top-level control flow, while loops, set literals, and
// reassignment of globals.
var fileOpts = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// Execute runs code against the host's capability bindings and returns the
// outcome. Faults never escape as errors: the diagnostic, including whatever
// output was produced before the fault, is folded into the Outcome.
func (e *Executor) Execute(ctx context.Context, code string, host Host) Outcome {
	var buf bytes.Buffer

	thread := &starlark.Thread{
		Name: "script",
		Print: func(_ *starlark.Thread, msg string) {
			buf.WriteString(msg)
			buf.WriteByte('\n')
		},
	}

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	// Cancel the interpreter when the context expires. The watchdog is
	// stopped on every exit path so no goroutine outlives the call.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel("execution cancelled: " + ctx.Err().Error())
		case <-done:
		}
	}()

	predeclared := host.Bindings(&buf)

	start := time.Now()
	_, err := starlark.ExecFileOptions(fileOpts, thread, "generated.star", code, predeclared)
	elapsed := time.Since(start).Round(time.Millisecond)

	if err != nil {
		diag := formatFault(err)
		e.logger.Debug("script faulted after %s: %s", elapsed, diag)
		return Outcome{Output: buf.String(), Error: diag}
	}

	e.logger.Debug("script completed in %s", elapsed)
	return Outcome{OK: true, Output: buf.String()}
}

// formatFault renders a fault as category, message, and best-effort trace.
func formatFault(err error) string {
	if evalErr, ok := err.(*starlark.EvalError); ok {
		return fmt.Sprintf("execution fault: %s\n%s", evalErr.Msg, evalErr.Backtrace())
	}
	// Syntax and resolve errors carry positions in their messages already.
	return fmt.Sprintf("script error: %v", err)
}
