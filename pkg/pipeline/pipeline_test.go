package pipeline

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"

	"draftpilot/pkg/model"
	"draftpilot/pkg/sandbox"
)

// fakeScope counts commits and rollbacks so tests can assert the
// all-or-nothing boundary is honored.
type fakeScope struct {
	committed  int
	rolledBack int
	commitErr  error
}

func (s *fakeScope) Bindings(io.Writer) starlark.StringDict { return starlark.StringDict{} }
func (s *fakeScope) Commit() error {
	s.committed++
	return s.commitErr
}
func (s *fakeScope) Rollback() error {
	s.rolledBack++
	return nil
}

type fakeWorkspace struct {
	scopes   []*fakeScope
	beginErr error
}

func (w *fakeWorkspace) Begin(context.Context) (Scope, error) {
	if w.beginErr != nil {
		return nil, w.beginErr
	}
	s := &fakeScope{}
	w.scopes = append(w.scopes, s)
	return s, nil
}

// fakeExecutor returns scripted outcomes in order, recording the code it ran.
type fakeExecutor struct {
	outcomes []sandbox.Outcome
	ran      []string
}

func (e *fakeExecutor) Execute(_ context.Context, code string, _ sandbox.Host) sandbox.Outcome {
	e.ran = append(e.ran, code)
	if len(e.outcomes) == 0 {
		return sandbox.Outcome{OK: true}
	}
	out := e.outcomes[0]
	e.outcomes = e.outcomes[1:]
	return out
}

type harness struct {
	client   *model.MockClient
	ws       *fakeWorkspace
	executor *fakeExecutor
	gate     *RecordingGate
	pipe     *Pipeline
}

func newHarness(t *testing.T, maxAttempts int) *harness {
	t.Helper()
	h := &harness{
		client:   model.NewMockClient(),
		ws:       &fakeWorkspace{},
		executor: &fakeExecutor{},
		gate:     &RecordingGate{},
	}
	pipe, err := New(Opts{
		Client:      h.client,
		Workspace:   h.ws,
		Executor:    h.executor,
		Gate:        h.gate,
		MaxAttempts: maxAttempts,
	})
	require.NoError(t, err)
	h.pipe = pipe
	return h
}

func TestRun_SuccessFirstAttempt(t *testing.T) {
	h := newHarness(t, 3)
	h.client.QueueText("output.write(\"done\")")
	h.executor.outcomes = []sandbox.Outcome{{OK: true, Output: "done"}}

	report := h.pipe.Run(context.Background(), "mark the doors", "initial prompt")

	assert.Equal(t, OutcomeSuccess, report.Outcome)
	assert.Equal(t, "done", report.Output)
	assert.Equal(t, 1, h.client.CallCount())
	require.Len(t, report.Attempts, 1)
	assert.True(t, report.Attempts[0].OK)

	// The scope committed exactly once and never rolled back.
	require.Len(t, h.ws.scopes, 1)
	assert.Equal(t, 1, h.ws.scopes[0].committed)
	assert.Equal(t, 0, h.ws.scopes[0].rolledBack)
}

func TestRun_FirstAttemptUsesInitialPromptVerbatim(t *testing.T) {
	h := newHarness(t, 3)
	h.client.QueueText("x = 1")
	h.executor.outcomes = []sandbox.Outcome{{OK: true}}

	h.pipe.Run(context.Background(), "count walls", "retrieved prompt with context")

	require.Len(t, h.client.Prompts, 1)
	assert.Equal(t, "retrieved prompt with context", h.client.Prompts[0])
}

func TestRun_ExecutionFaultFeedsCodeAndErrorIntoNextPrompt(t *testing.T) {
	h := newHarness(t, 3)
	badCode := "doc.set_param(id=42, name=\"height\", value=\"x\")"
	h.client.QueueText(badCode)
	h.client.QueueText("output.write(\"fixed\")")
	h.executor.outcomes = []sandbox.Outcome{
		{OK: false, Error: "execution fault: doc.set_param: no element with id 42"},
		{OK: true, Output: "fixed"},
	}

	report := h.pipe.Run(context.Background(), "set heights", "initial prompt")

	assert.Equal(t, OutcomeSuccess, report.Outcome)
	require.Equal(t, 2, h.client.CallCount())

	// The second prompt embeds the exact failing code and error verbatim.
	fixIt := h.client.Prompts[1]
	assert.Contains(t, fixIt, badCode)
	assert.Contains(t, fixIt, "no element with id 42")
	assert.Contains(t, fixIt, "set heights")

	// The failed attempt's scope rolled back; the fixed one committed.
	require.Len(t, h.ws.scopes, 2)
	assert.Equal(t, 1, h.ws.scopes[0].rolledBack)
	assert.Equal(t, 0, h.ws.scopes[0].committed)
	assert.Equal(t, 1, h.ws.scopes[1].committed)

	require.Len(t, report.Attempts, 2)
	assert.Equal(t, FailureExecution, report.Attempts[0].FailureKind)
	assert.True(t, report.Attempts[1].OK)
}

func TestRun_TransportFailureConsumesAttempt(t *testing.T) {
	h := newHarness(t, 2)
	h.client.QueueError(model.NewError(model.ErrorTypeTransport, "connection reset"))
	h.client.QueueText("output.write(\"ok\")")
	h.executor.outcomes = []sandbox.Outcome{{OK: true, Output: "ok"}}

	report := h.pipe.Run(context.Background(), "count walls", "initial prompt")

	assert.Equal(t, OutcomeSuccess, report.Outcome)
	require.Len(t, report.Attempts, 2)
	assert.Equal(t, FailureTransport, report.Attempts[0].FailureKind)
	assert.Contains(t, report.Attempts[0].Error, "connection reset")
}

func TestRun_SemanticFailureConsumesAttempt(t *testing.T) {
	h := newHarness(t, 2)
	h.client.QueueEnvelope(&model.Envelope{BlockReason: "SAFETY"})
	h.client.QueueText("output.write(\"ok\")")
	h.executor.outcomes = []sandbox.Outcome{{OK: true, Output: "ok"}}

	report := h.pipe.Run(context.Background(), "count walls", "initial prompt")

	assert.Equal(t, OutcomeSuccess, report.Outcome)
	require.Len(t, report.Attempts, 2)
	assert.Equal(t, FailureSemantic, report.Attempts[0].FailureKind)
	assert.Contains(t, report.Attempts[0].Error, "SAFETY")
}

func TestRun_ExhaustedAfterMaxAttempts(t *testing.T) {
	h := newHarness(t, 3)
	for i := 0; i < 3; i++ {
		h.client.QueueText("x = 1")
	}
	h.executor.outcomes = []sandbox.Outcome{
		{OK: false, Error: "fault one"},
		{OK: false, Error: "fault two"},
		{OK: false, Error: "fault three"},
	}

	report := h.pipe.Run(context.Background(), "count walls", "initial prompt")

	assert.Equal(t, OutcomeExhausted, report.Outcome)
	// No more than the budgeted number of model calls.
	assert.Equal(t, 3, h.client.CallCount())
	assert.Len(t, report.Attempts, 3)
	// The report surfaces the most recent failure for manual recovery.
	assert.Equal(t, "fault three", report.LastError)
	assert.Equal(t, "x = 1", report.LastCode)
}

func TestRun_MixedFailureKindsShareOneBudget(t *testing.T) {
	h := newHarness(t, 3)
	h.client.QueueError(model.NewError(model.ErrorTypeRateLimit, "rate limited"))
	h.client.QueueEnvelope(&model.Envelope{})
	h.client.QueueText("x = 1")
	h.executor.outcomes = []sandbox.Outcome{{OK: false, Error: "boom"}}

	report := h.pipe.Run(context.Background(), "count walls", "initial prompt")

	assert.Equal(t, OutcomeExhausted, report.Outcome)
	assert.Equal(t, 3, h.client.CallCount())
	require.Len(t, report.Attempts, 3)
	assert.Equal(t, FailureTransport, report.Attempts[0].FailureKind)
	assert.Equal(t, FailureSemantic, report.Attempts[1].FailureKind)
	assert.Equal(t, FailureExecution, report.Attempts[2].FailureKind)
}

func TestRun_RejectCancelsRun(t *testing.T) {
	h := newHarness(t, 3)
	h.client.QueueText("x = 1")
	h.gate.Decisions = []Decision{Reject}

	report := h.pipe.Run(context.Background(), "count walls", "initial prompt")

	assert.Equal(t, OutcomeCancelled, report.Outcome)
	// Rejection ends the run immediately; no retry, no execution.
	assert.Equal(t, 1, h.client.CallCount())
	assert.Empty(t, h.executor.ran)
	assert.Empty(t, h.ws.scopes)
}

func TestRun_RejectAndCopySurfacesScript(t *testing.T) {
	h := newHarness(t, 3)
	h.client.QueueText("x = 1")
	h.gate.Decisions = []Decision{RejectAndCopy}

	report := h.pipe.Run(context.Background(), "count walls", "initial prompt")

	assert.Equal(t, OutcomeCancelled, report.Outcome)
	assert.Equal(t, "x = 1", report.LastCode)
	assert.Empty(t, h.executor.ran)
}

func TestRun_GatePresentedExtractedCode(t *testing.T) {
	h := newHarness(t, 3)
	h.client.QueueText("```starlark\nx = 1\n```")
	h.executor.outcomes = []sandbox.Outcome{{OK: true}}

	h.pipe.Run(context.Background(), "count walls", "initial prompt")

	// The gate sees the extracted script, not the raw fenced reply.
	require.Len(t, h.gate.Presented, 1)
	assert.Equal(t, "x = 1", h.gate.Presented[0])
	require.Len(t, h.executor.ran, 1)
	assert.Equal(t, "x = 1", h.executor.ran[0])
}

func TestRun_CancelledContextAborts(t *testing.T) {
	h := newHarness(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := h.pipe.Run(ctx, "count walls", "initial prompt")

	assert.Equal(t, OutcomeAborted, report.Outcome)
	assert.Equal(t, 0, h.client.CallCount())
	assert.Empty(t, report.Attempts)
}

func TestRun_FixItBuildFailureAbortsWithoutConsumingRetry(t *testing.T) {
	// An empty request makes the fix-it builder fail on attempt two; the run
	// aborts instead of burning the remaining budget on a broken prompt.
	h := newHarness(t, 3)
	h.client.QueueText("x = 1")
	h.executor.outcomes = []sandbox.Outcome{{OK: false, Error: "boom"}}

	report := h.pipe.Run(context.Background(), "", "initial prompt")

	assert.Equal(t, OutcomeAborted, report.Outcome)
	assert.Equal(t, 1, h.client.CallCount())
	require.Len(t, report.Attempts, 1)
	assert.Equal(t, FailureExecution, report.Attempts[0].FailureKind)
}

func TestRun_ScopeOpenFailureConsumesAttempt(t *testing.T) {
	h := newHarness(t, 2)
	h.ws.beginErr = fmt.Errorf("database is locked")
	h.client.QueueText("x = 1")
	h.client.QueueText("x = 2")

	report := h.pipe.Run(context.Background(), "count walls", "initial prompt")

	assert.Equal(t, OutcomeExhausted, report.Outcome)
	require.Len(t, report.Attempts, 2)
	for _, rec := range report.Attempts {
		assert.Equal(t, FailureExecution, rec.FailureKind)
		assert.Contains(t, rec.Error, "apply scope")
	}
}

func TestRun_TransportErrorDoesNotClobberLastCode(t *testing.T) {
	// After an execution fault, a transport failure on the next attempt keeps
	// the previous failing code in the fix-it prompt and the final report.
	h := newHarness(t, 3)
	h.client.QueueText("bad = code()")
	h.client.QueueError(model.NewError(model.ErrorTypeTransport, "timeout"))
	h.client.QueueError(model.NewError(model.ErrorTypeTransport, "timeout"))
	h.executor.outcomes = []sandbox.Outcome{{OK: false, Error: "fault"}}

	report := h.pipe.Run(context.Background(), "count walls", "initial prompt")

	assert.Equal(t, OutcomeExhausted, report.Outcome)
	assert.Equal(t, "bad = code()", report.LastCode)
	assert.Contains(t, h.client.Prompts[2], "bad = code()")
}

func TestNew_RequiredCollaborators(t *testing.T) {
	_, err := New(Opts{})
	require.Error(t, err)

	_, err = New(Opts{Client: model.NewMockClient()})
	require.Error(t, err)

	_, err = New(Opts{Client: model.NewMockClient(), Workspace: &fakeWorkspace{}})
	require.Error(t, err)
}

func TestNew_DefaultsMaxAttempts(t *testing.T) {
	pipe, err := New(Opts{
		Client:    model.NewMockClient(),
		Workspace: &fakeWorkspace{},
		Executor:  &fakeExecutor{},
		Gate:      &RecordingGate{},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, pipe.maxAttempts)
}
