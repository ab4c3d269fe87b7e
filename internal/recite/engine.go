package recite

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hifzlab/tasmee/internal/recite/refine"
	"github.com/hifzlab/tasmee/internal/recite/wordmatch"
)

// Engine is the default [Verifier]: greedy alignment, then optional semantic
// refinement of imperfect scores.
type Engine struct {
	aligner *Aligner
	refiner *refine.Refiner
	log     *slog.Logger
}

// Option configures an [Engine].
type Option func(*Engine)

// WithMatcher sets the word matcher used for alignment. Default: a matcher
// with the built-in variant table.
func WithMatcher(m *wordmatch.Matcher) Option {
	return func(e *Engine) {
		e.aligner = NewAligner(m)
	}
}

// WithRefiner enables the semantic refinement stage. Without a refiner every
// result is the raw alignment, regardless of what the request asks for.
func WithRefiner(r *refine.Refiner) Option {
	return func(e *Engine) {
		e.refiner = r
	}
}

// WithLogger sets the logger. Default: slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// NewEngine returns an Engine configured with the supplied options.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{log: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	if e.aligner == nil {
		e.aligner = NewAligner(wordmatch.New())
	}
	return e
}

var _ Verifier = (*Engine)(nil)

// Verify implements [Verifier]. Refinement failures never fail the call: the
// raw alignment result is returned instead.
func (e *Engine) Verify(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("recite: verify: %w", err)
	}

	strictness := req.Strictness
	if !strictness.IsValid() {
		strictness = Standard
	}
	expected := req.ExpectedWords
	if len(expected) == 0 {
		expected = strings.Fields(req.ExpectedText)
	}

	// --- Stage 1: greedy alignment ---

	raw := e.aligner.Align(expected, req.Transcript, strictness)
	result := &Result{Score: raw.Score, Errors: raw.Errors, Matches: raw.Matches}

	// --- Stage 2: semantic refinement ---

	if !req.UseSemanticRefinement || e.refiner == nil {
		return result, nil
	}

	expectedText := req.ExpectedText
	if expectedText == "" {
		expectedText = strings.Join(expected, " ")
	}
	outcome := e.refiner.Refine(ctx, refine.Request{
		Transcript:   req.Transcript,
		ExpectedText: expectedText,
		Strictness:   int(strictness),
		RawScore:     raw.Score,
	})
	switch outcome.Status {
	case refine.StatusRefined:
		// Override, never blend: the refined score and errors replace the
		// raw ones wholesale. Matches keep the raw alignment detail.
		result.Score = outcome.Score
		result.Errors = refinedErrors(outcome.Errors)
		result.Refined = true
		result.Rationale = outcome.Rationale
		e.log.DebugContext(ctx, "semantic refinement applied",
			"raw_score", raw.Score,
			"refined_score", outcome.Score)
	default:
		// Skipped, unavailable or malformed: the raw alignment stands. The
		// refiner has already logged any provider failure.
	}
	return result, nil
}

func refinedErrors(errs []refine.WordError) []WordError {
	out := make([]WordError, len(errs))
	for i, we := range errs {
		out[i] = WordError{Word: we.Word, Position: we.Position, Type: ErrorType(we.Type)}
	}
	return out
}
