package pipeline

// Outcome is the terminal state of a pipeline run.
type Outcome string

const (
	// OutcomeSuccess means a generated script executed and its scope committed.
	OutcomeSuccess Outcome = "success"
	// OutcomeCancelled means the user rejected a candidate script.
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeExhausted means every attempt in the budget failed.
	OutcomeExhausted Outcome = "exhausted"
	// OutcomeAborted means the run stopped before or between attempts:
	// prompt construction failed or the context was cancelled. Aborting does
	// not consume a retry.
	OutcomeAborted Outcome = "aborted"
)

// Failure kinds recorded per consumed attempt. Transport and model-semantic
// failures share one retry budget; the kind only shapes reporting.
const (
	FailureTransport = "transport"
	FailureSemantic  = "semantic"
	FailureExecution = "execution"
)

// AttemptRecord is the per-iteration record kept for the final report.
type AttemptRecord struct {
	Index       int
	FailureKind string
	Error       string
	OK          bool
}

// Report is the result of one pipeline run. On success, Output carries the
// captured script output; on any other outcome LastError and LastCode let
// the user recover manually.
type Report struct {
	RunID     string
	Outcome   Outcome
	Output    string
	LastError string
	LastCode  string
	Attempts  []AttemptRecord
}
