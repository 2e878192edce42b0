// Package pipeline drives the bounded generate→execute→diagnose→regenerate
// loop: it calls the model service, normalizes and extracts the reply, gates
// the candidate, executes it inside a workspace apply scope, and on failure
// feeds the failing code and error back into the next prompt.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"draftpilot/pkg/extract"
	"draftpilot/pkg/logx"
	"draftpilot/pkg/metrics"
	"draftpilot/pkg/model"
	"draftpilot/pkg/persistence"
	"draftpilot/pkg/prompt"
	"draftpilot/pkg/sandbox"
)

// Scope is one open apply/rollback boundary around the workspace. The
// pipeline never inspects the workspace; it only opens a scope, hands it to
// the executor as the capability host, and commits or rolls back.
type Scope interface {
	sandbox.Host
	Commit() error
	Rollback() error
}

// Workspace opens apply scopes around script executions.
type Workspace interface {
	Begin(ctx context.Context) (Scope, error)
}

// ScriptExecutor runs one script against a capability host.
type ScriptExecutor interface {
	Execute(ctx context.Context, code string, host sandbox.Host) sandbox.Outcome
}

// Opts wires the pipeline's collaborators.
type Opts struct {
	Client      model.Client
	Workspace   Workspace
	Executor    ScriptExecutor
	Gate        Gate
	Store       *persistence.Store
	Recorder    *metrics.Recorder
	ArchiveDir  string
	MaxAttempts int
}

// Pipeline is the attempt controller.
type Pipeline struct {
	client      model.Client
	ws          Workspace
	executor    ScriptExecutor
	gate        Gate
	extractor   *extract.Extractor
	store       *persistence.Store
	recorder    *metrics.Recorder
	archiveDir  string
	maxAttempts int
	logger      *logx.Logger
}

// New creates a pipeline. Client, Workspace, and Executor are required; a
// nil Gate defaults to the interactive terminal gate, and a nil Store or
// Recorder disables persistence or metrics respectively.
func New(opts Opts) (*Pipeline, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("pipeline requires a model client")
	}
	if opts.Workspace == nil {
		return nil, fmt.Errorf("pipeline requires a workspace")
	}
	if opts.Executor == nil {
		return nil, fmt.Errorf("pipeline requires a script executor")
	}
	if opts.Gate == nil {
		opts.Gate = NewTerminalGate()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}

	return &Pipeline{
		client:      opts.Client,
		ws:          opts.Workspace,
		executor:    opts.Executor,
		gate:        opts.Gate,
		extractor:   extract.New(),
		store:       opts.Store,
		recorder:    opts.Recorder,
		archiveDir:  opts.ArchiveDir,
		maxAttempts: opts.MaxAttempts,
		logger:      logx.NewLogger("pipeline"),
	}, nil
}

// Run executes the bounded retry loop for one request. It issues at most
// MaxAttempts model calls and always terminates with one of the four
// terminal outcomes. Attempts are strictly sequential: each prompt after the
// first is built from the previous attempt's failing code and error.
func (p *Pipeline) Run(ctx context.Context, request, initialPrompt string) Report {
	report := Report{RunID: persistence.NewRunID()}

	var lastCode, lastErr string

	for i := 1; i <= p.maxAttempts; i++ {
		if ctx.Err() != nil {
			return p.finish(report, request, OutcomeAborted, "", lastErr, lastCode)
		}

		// Attempt 1 uses the retrieved initial prompt verbatim; later
		// attempts embed the last failing code and error.
		promptText := initialPrompt
		if i > 1 {
			fixIt, err := prompt.BuildFixIt(request, lastCode, lastErr)
			if err != nil {
				// Prompt construction failure does not consume a retry.
				p.logger.Error("attempt %d: %v", i, err)
				return p.finish(report, request, OutcomeAborted, "", err.Error(), lastCode)
			}
			promptText = fixIt
		}

		p.logger.Info("attempt %d/%d: calling model", i, p.maxAttempts)
		callStart := time.Now()
		env, err := p.client.Call(ctx, promptText)
		p.recorder.ObserveModelCall(time.Since(callStart), err == nil)

		if err != nil {
			if ctx.Err() != nil {
				return p.finish(report, request, OutcomeAborted, "", err.Error(), lastCode)
			}
			lastErr = fmt.Sprintf("model call failed: %v", err)
			p.consumeFailure(&report, i, FailureTransport, lastErr)
			continue
		}

		interp := model.Interpret(env)
		for _, w := range interp.Warnings {
			p.logger.Warn("attempt %d: %s", i, w)
		}
		if !interp.OK {
			lastErr = interp.Err
			p.consumeFailure(&report, i, FailureSemantic, lastErr)
			continue
		}

		code := p.extractor.Extract(interp.Text)

		decision, err := p.gate.Present(code)
		if err != nil {
			p.logger.Error("approval gate failed: %v", err)
			decision = Reject
		}
		if decision != Approve {
			p.logger.Info("attempt %d: candidate rejected by user", i)
			return p.finish(report, request, OutcomeCancelled, "", "cancelled by user", code)
		}

		outcome, execErr := p.executeInScope(ctx, code)
		if execErr != nil {
			lastCode, lastErr = code, execErr.Error()
			p.consumeFailure(&report, i, FailureExecution, lastErr)
			continue
		}
		if !outcome.OK {
			lastCode, lastErr = code, outcome.Error
			p.consumeFailure(&report, i, FailureExecution, lastErr)
			continue
		}

		report.Attempts = append(report.Attempts, AttemptRecord{Index: i, OK: true})
		p.recordAttempt(report.RunID, AttemptRecord{Index: i, OK: true})
		p.archive(request, code)
		return p.finish(report, request, OutcomeSuccess, outcome.Output, "", code)
	}

	return p.finish(report, request, OutcomeExhausted, "", lastErr, lastCode)
}

// executeInScope opens an apply scope, runs the script, and commits on
// success or rolls back on any fault. A scope that cannot be opened or
// committed counts as an execution failure for the attempt.
func (p *Pipeline) executeInScope(ctx context.Context, code string) (sandbox.Outcome, error) {
	scope, err := p.ws.Begin(ctx)
	if err != nil {
		return sandbox.Outcome{}, fmt.Errorf("failed to open apply scope: %w", err)
	}

	execStart := time.Now()
	outcome := p.executor.Execute(ctx, code, scope)
	p.recorder.ObserveExecution(time.Since(execStart), outcome.OK)

	if !outcome.OK {
		if rbErr := scope.Rollback(); rbErr != nil {
			p.logger.Error("rollback failed: %v", rbErr)
		}
		return outcome, nil
	}

	if err := scope.Commit(); err != nil {
		return sandbox.Outcome{}, fmt.Errorf("failed to commit apply scope: %w", err)
	}
	return outcome, nil
}

// consumeFailure records a failed attempt that consumed a retry.
func (p *Pipeline) consumeFailure(report *Report, index int, kind, errText string) {
	p.logger.Warn("attempt %d failed (%s): %s", index, kind, errText)
	rec := AttemptRecord{Index: index, FailureKind: kind, Error: errText}
	report.Attempts = append(report.Attempts, rec)
	p.recorder.ObserveAttemptFailure(kind)
	p.recordAttempt(report.RunID, rec)
}

// finish stamps the terminal outcome, persists the run, and returns the report.
func (p *Pipeline) finish(report Report, request string, outcome Outcome, output, lastErr, lastCode string) Report {
	report.Outcome = outcome
	report.Output = output
	report.LastError = lastErr
	report.LastCode = lastCode

	p.recorder.ObserveRun(string(outcome))
	p.logger.Info("run %s finished: %s", report.RunID, outcome)

	if p.store != nil {
		err := p.store.RecordRun(persistence.Run{
			ID:        report.RunID,
			Request:   request,
			Outcome:   string(outcome),
			Output:    output,
			LastError: lastErr,
			LastCode:  lastCode,
		})
		if err != nil {
			p.logger.Error("failed to persist run: %v", err)
		}
	}
	return report
}

func (p *Pipeline) recordAttempt(runID string, rec AttemptRecord) {
	if p.store == nil {
		return
	}
	err := p.store.RecordAttempt(persistence.Attempt{
		RunID:       runID,
		Index:       rec.Index,
		FailureKind: rec.FailureKind,
		Error:       rec.Error,
		OK:          rec.OK,
	})
	if err != nil {
		p.logger.Error("failed to persist attempt %d: %v", rec.Index, err)
	}
}

// archive saves a successfully executed script when an archive dir is set.
func (p *Pipeline) archive(request, code string) {
	if p.store == nil || p.archiveDir == "" {
		return
	}
	if _, err := p.store.SaveSuccessfulScript(p.archiveDir, request, code); err != nil {
		p.logger.Error("failed to archive script: %v", err)
	}
}
