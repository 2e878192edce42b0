package pipeline

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"draftpilot/pkg/logx"
)

// Decision is the approval gate's verdict on a candidate script.
type Decision int

const (
	// Approve lets the script execute.
	Approve Decision = iota
	// Reject cancels the run.
	Reject
	// RejectAndCopy cancels the run but asks that the script be surfaced
	// in the final report for manual use.
	RejectAndCopy
)

// Gate presents a candidate script for approval before execution.
type Gate interface {
	Present(code string) (Decision, error)
}

// AutoApproveGate approves every candidate. Used for unattended runs.
type AutoApproveGate struct{}

// Present implements Gate.
func (AutoApproveGate) Present(string) (Decision, error) {
	return Approve, nil
}

// TerminalGate prompts on the controlling terminal. A non-interactive stdin
// rejects the candidate: unattended runs must opt into auto-approval
// explicitly rather than silently executing generated code.
type TerminalGate struct {
	In     *os.File
	Out    *os.File
	logger *logx.Logger
}

// NewTerminalGate creates a gate reading from stdin and writing to stdout.
func NewTerminalGate() *TerminalGate {
	return &TerminalGate{
		In:     os.Stdin,
		Out:    os.Stdout,
		logger: logx.NewLogger("gate"),
	}
}

// Present implements Gate.
func (g *TerminalGate) Present(code string) (Decision, error) {
	if !term.IsTerminal(int(g.In.Fd())) {
		g.logger.Warn("stdin is not a terminal; rejecting candidate (use auto_approve for unattended runs)")
		return Reject, nil
	}

	fmt.Fprintln(g.Out, "---- candidate script ----")
	fmt.Fprintln(g.Out, code)
	fmt.Fprintln(g.Out, "--------------------------")
	fmt.Fprint(g.Out, "run this script? [y]es / [c]opy and cancel / [n]o: ")

	reader := bufio.NewReader(g.In)
	line, err := reader.ReadString('\n')
	if err != nil {
		return Reject, fmt.Errorf("failed to read approval: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return Approve, nil
	case "c", "copy":
		return RejectAndCopy, nil
	default:
		return Reject, nil
	}
}

// RecordingGate is a scripted gate for tests. Decisions are consumed in
// order; when exhausted it keeps returning the last one.
type RecordingGate struct {
	Decisions []Decision
	Presented []string
}

// Present implements Gate.
func (g *RecordingGate) Present(code string) (Decision, error) {
	g.Presented = append(g.Presented, code)
	if len(g.Decisions) == 0 {
		return Approve, nil
	}
	d := g.Decisions[0]
	if len(g.Decisions) > 1 {
		g.Decisions = g.Decisions[1:]
	}
	return d, nil
}
