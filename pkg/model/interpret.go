package model

import (
	"fmt"
	"strings"
)

// Interpretation is the uniform outcome of normalizing one envelope.
// When OK is false, Err carries the failure message; Warnings are advisory
// and never block use of the text.
type Interpretation struct {
	OK       bool
	Text     string
	Err      string
	Warnings []string
}

// Interpret validates and normalizes a model response envelope.
//
// A root-level block indicator takes precedence over everything else, even
// when candidate text is present. Absent a block, the first candidate is
// read: truncation by length is accepted with a warning, a content-policy
// stop is a hard failure, and an unrecognized reason is accepted with a
// warning for forward compatibility. Empty generated text is always a
// failure regardless of finish reason.
func Interpret(env *Envelope) Interpretation {
	if env == nil {
		return Interpretation{Err: "no response envelope"}
	}

	if env.Blocked() {
		msg := fmt.Sprintf("prompt blocked by service: %s", env.BlockReason)
		if env.BlockDetail != "" {
			msg += " (" + env.BlockDetail + ")"
		}
		return Interpretation{Err: msg}
	}

	if len(env.Candidates) == 0 {
		return Interpretation{Err: "no candidate produced"}
	}

	cand := env.Candidates[0]
	var warnings []string

	switch cand.FinishReason {
	case FinishStop:
		// Normal completion.
	case FinishLength:
		warnings = append(warnings, "generation truncated by token limit; content may be incomplete")
	case FinishSafety:
		return Interpretation{Err: "generation stopped by content policy (safety)"}
	case FinishRecitation:
		return Interpretation{Err: "generation stopped by content policy (recitation)"}
	default:
		warnings = append(warnings, fmt.Sprintf("unrecognized finish reason %q; using content anyway", cand.FinishReason))
	}

	if strings.TrimSpace(cand.Text) == "" {
		return Interpretation{Err: "model returned empty text", Warnings: warnings}
	}

	return Interpretation{OK: true, Text: cand.Text, Warnings: warnings}
}
