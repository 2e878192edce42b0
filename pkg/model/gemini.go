package model

import (
	"context"
	"strings"
	"time"

	"google.golang.org/genai"

	"draftpilot/pkg/logx"
)

// GeminiClient implements Client on top of the Google GenAI API.
type GeminiClient struct {
	client      *genai.Client
	apiKey      string
	model       string
	timeout     time.Duration
	maxTokens   int
	temperature float32
	logger      *logx.Logger
}

// GeminiOpts configures a GeminiClient.
type GeminiOpts struct {
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float32
}

// NewGeminiClient creates a Gemini-backed model client. The underlying SDK
// client is created lazily on first call because its constructor needs a
// context.
func NewGeminiClient(opts GeminiOpts) *GeminiClient {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	return &GeminiClient{
		apiKey:      opts.APIKey,
		model:       opts.Model,
		timeout:     opts.Timeout,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		logger:      logx.NewLogger("model"),
	}
}

// Call sends a single-turn prompt and normalizes the reply into an Envelope.
// The configured per-call timeout bounds the whole request.
func (g *GeminiClient) Call(ctx context.Context, prompt string) (*Envelope, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	if g.client == nil {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, NewErrorWithCause(ErrorTypeAuth, err, "failed to create Gemini client")
		}
		g.client = client
	}

	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: prompt}}},
	}
	//nolint:gosec // MaxTokens validated at construction, overflow acceptable
	cfg := &genai.GenerateContentConfig{
		Temperature:     &g.temperature,
		MaxOutputTokens: int32(g.maxTokens),
	}

	start := time.Now()
	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		if ctx.Err() != nil {
			return nil, NewErrorWithCause(ErrorTypeTransport, err, "model call timed out")
		}
		return nil, NewErrorWithCause(classifyGenaiError(err), err, "Gemini API call failed")
	}
	g.logger.Debug("Gemini call completed in %s", time.Since(start).Round(time.Millisecond))

	if result == nil {
		return nil, NewError(ErrorTypeMalformed, "empty response from Gemini API")
	}

	return envelopeFromGemini(result), nil
}

// envelopeFromGemini maps a raw SDK response onto the normalized envelope.
func envelopeFromGemini(result *genai.GenerateContentResponse) *Envelope {
	env := &Envelope{}

	if fb := result.PromptFeedback; fb != nil && fb.BlockReason != genai.BlockedReasonUnspecified {
		env.BlockReason = string(fb.BlockReason)
		env.BlockDetail = fb.BlockReasonMessage
	}

	for _, cand := range result.Candidates {
		if cand == nil {
			continue
		}
		var text strings.Builder
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if part != nil {
					text.WriteString(part.Text)
				}
			}
		}
		env.Candidates = append(env.Candidates, Candidate{
			FinishReason: mapFinishReason(cand.FinishReason),
			Text:         text.String(),
		})
	}

	return env
}

// mapFinishReason folds the SDK finish reasons into the envelope's fixed set.
func mapFinishReason(reason genai.FinishReason) FinishReason {
	switch reason {
	case genai.FinishReasonStop:
		return FinishStop
	case genai.FinishReasonMaxTokens:
		return FinishLength
	case genai.FinishReasonSafety:
		return FinishSafety
	case genai.FinishReasonRecitation:
		return FinishRecitation
	default:
		return FinishOther
	}
}

// classifyGenaiError maps SDK errors onto the error taxonomy by message
// inspection; the SDK does not expose structured status codes uniformly.
func classifyGenaiError(err error) ErrorType {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "quota") || strings.Contains(msg, "rate"):
		return ErrorTypeRateLimit
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "API key"):
		return ErrorTypeAuth
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "connection") || strings.Contains(msg, "500") ||
		strings.Contains(msg, "502") || strings.Contains(msg, "503") || strings.Contains(msg, "504"):
		return ErrorTypeTransport
	default:
		return ErrorTypeUnknown
	}
}
