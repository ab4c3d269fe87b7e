// Package semantic defines the Analyzer interface for language-model backends
// that review recitation verifications.
//
// An analyzer wraps a remote or local model API (e.g., OpenAI GPT-4, Anthropic
// Claude, or a local Ollama instance) and exposes a uniform single-shot
// analysis call, so the verification engine never couples to any specific SDK.
// Backends receive the transcript, the expected passage and the raw alignment
// score, and return the model's reply verbatim; interpreting that reply is the
// caller's job.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly.
package semantic

import (
	"context"
	"fmt"
)

// Usage holds token accounting information returned by the model backend.
// Counts are in the model's native token unit and may differ between
// providers for the same textual content.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the instructions and
	// the analysis payload.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the reply.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens. Some providers return
	// it directly rather than computing it from the parts.
	TotalTokens int
}

// AnalysisRequest carries everything the model needs to review one
// verification. Callers should treat a zero-value request as invalid; at
// minimum Transcript and ExpectedText must be non-empty.
type AnalysisRequest struct {
	// SystemPrompt is the full instruction block, including the required
	// response format. Built by the caller so that every backend presents
	// identical instructions.
	SystemPrompt string

	// Transcript is the speech-to-text output under review.
	Transcript string

	// ExpectedText is the passage the learner was reciting.
	ExpectedText string

	// StrictnessDesc is a short prose description of how tolerant the
	// review should be. Derived by the caller from the strictness level.
	StrictnessDesc string

	// RawScore is the deterministic alignment score, 0..100. Given to the
	// model as a reference point, not a constraint.
	RawScore int

	// Temperature controls output randomness in the range [0.0, 2.0]. Keep
	// it at zero for reproducible reviews.
	Temperature float64

	// MaxTokens caps the completion length. Zero means the provider
	// default.
	MaxTokens int
}

// UserMessage renders the analysis payload that every backend sends as the
// user turn. Keeping the rendering here guarantees all backends present the
// same material in the same shape.
func (r AnalysisRequest) UserMessage() string {
	return fmt.Sprintf(
		"Expected passage:\n%s\n\nTranscript:\n%s\n\nDeterministic alignment score: %d/100\nTolerance: %s",
		r.ExpectedText, r.Transcript, r.RawScore, r.StrictnessDesc,
	)
}

// AnalysisResponse is the model's reply to one analysis request.
type AnalysisResponse struct {
	// Content is the full text of the reply. The caller parses it; backends
	// must not trim or reformat it beyond what the SDK itself does.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Analyzer is the abstraction over any model backend capable of reviewing a
// verification.
//
// Implementations must be safe for concurrent use from multiple goroutines.
// Analyze must return promptly once ctx is cancelled.
type Analyzer interface {
	// Analyze sends req to the model and waits for the full reply. The
	// returned response is non-nil exactly when error is nil.
	Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResponse, error)

	// Name identifies the backend in logs and metrics, e.g. "openai".
	Name() string
}
