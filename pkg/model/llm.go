// Package model defines the language-model client interface, the normalized
// response envelope, and the interpreter that folds an envelope into a uniform
// outcome for the attempt loop.
package model

import (
	"context"
)

// FinishReason describes why a candidate stopped generating.
type FinishReason string

const (
	// FinishStop indicates normal completion.
	FinishStop FinishReason = "stop"
	// FinishLength indicates generation was truncated by the token limit.
	FinishLength FinishReason = "length"
	// FinishSafety indicates generation was stopped by a content policy.
	FinishSafety FinishReason = "safety"
	// FinishRecitation indicates generation was stopped for reciting source material.
	FinishRecitation FinishReason = "recitation"
	// FinishOther covers reasons the service does not further classify.
	FinishOther FinishReason = "other"
)

// Candidate is one generated alternative within an envelope.
type Candidate struct {
	FinishReason FinishReason
	Text         string
}

// Envelope is the normalized view of a single model reply. A non-empty
// BlockReason at the envelope root means the prompt itself was refused and
// takes precedence over any candidate content.
type Envelope struct {
	BlockReason string
	BlockDetail string
	Candidates  []Candidate
}

// Blocked reports whether the envelope carries a root-level block indicator.
func (e *Envelope) Blocked() bool {
	return e != nil && e.BlockReason != ""
}

// Client defines the interface for calling the language-model service.
// Implementations apply their own per-call timeout.
type Client interface {
	Call(ctx context.Context, prompt string) (*Envelope, error)
}
