// Package retrieval builds the initial prompt for a run. When an external
// RAG script is configured it is invoked as a subprocess with a hard timeout;
// otherwise the built-in template is rendered without context snippets.
// Retrieval failure aborts the whole operation: no attempt can proceed
// without an initial prompt.
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"draftpilot/pkg/exec"
	"draftpilot/pkg/logx"
	"draftpilot/pkg/prompt"
)

// PromptBuilder produces the context-augmented initial prompt for a query.
type PromptBuilder struct {
	// ScriptPath is the external RAG script; empty means built-in template.
	ScriptPath string
	// PythonBin runs the script.
	PythonBin string
	// Timeout is the hard bound on the retrieval call.
	Timeout time.Duration

	executor exec.Executor
	logger   *logx.Logger
}

// New creates a prompt builder backed by the given executor.
func New(scriptPath, pythonBin string, timeout time.Duration, executor exec.Executor) *PromptBuilder {
	if executor == nil {
		executor = exec.NewLocalExec()
	}
	if pythonBin == "" {
		pythonBin = "python3"
	}
	return &PromptBuilder{
		ScriptPath: scriptPath,
		PythonBin:  pythonBin,
		Timeout:    timeout,
		executor:   executor,
		logger:     logx.NewLogger("retrieval"),
	}
}

// BuildInitialPrompt returns the initial prompt for the user query. Non-zero
// exit, empty stdout, or timeout of the external script is a fatal error.
func (b *PromptBuilder) BuildInitialPrompt(ctx context.Context, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("request is empty")
	}

	if b.ScriptPath == "" {
		b.logger.Debug("no retrieval script configured; using built-in prompt template")
		return prompt.BuildInitial(query, "")
	}

	opts := exec.Opts{Timeout: b.Timeout}
	start := time.Now()
	result, err := b.executor.Run(ctx, []string{b.PythonBin, b.ScriptPath, query}, &opts)
	if err != nil {
		return "", fmt.Errorf("retrieval script failed: %w", err)
	}
	b.logger.Debug("retrieval completed in %s (exit %d)", time.Since(start).Round(time.Millisecond), result.ExitCode)

	if result.ExitCode != 0 {
		return "", fmt.Errorf("retrieval script exited with code %d: %s",
			result.ExitCode, stderrTail(result.Stderr))
	}

	promptText := strings.TrimSpace(result.Stdout)
	if promptText == "" {
		return "", fmt.Errorf("retrieval script produced no prompt: %s", stderrTail(result.Stderr))
	}

	return promptText, nil
}

// stderrTail extracts the most useful part of the script's stderr for a
// diagnostic: reported error lines if present, otherwise the last lines.
func stderrTail(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")

	var errLines []string
	for _, line := range lines {
		if strings.HasPrefix(line, "PYTHON_ERROR:") {
			errLines = append(errLines, line)
		}
	}
	if len(errLines) > 0 {
		return strings.Join(errLines, "; ")
	}

	const keep = 3
	if len(lines) > keep {
		lines = lines[len(lines)-keep:]
	}
	tail := strings.Join(lines, "; ")
	if tail == "" {
		return "(no diagnostic output)"
	}
	return tail
}
