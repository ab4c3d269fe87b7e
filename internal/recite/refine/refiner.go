// Package refine implements the language-model review stage of recitation
// verification.
//
// The [Refiner] sends the transcript, the expected passage and the raw
// alignment score to a [semantic.Analyzer]. The model is instructed (via a
// conservative system prompt) to judge what the learner actually recited,
// ignoring transcription spelling noise, and to return a structured JSON
// verdict with a score, an itemised error list and a short rationale.
//
// Every call reports one of four outcomes: Refined, Skipped, Unavailable or
// Malformed. The last two mean the raw alignment result must stand; the
// refiner logs the cause at WARN and the caller degrades silently. A refined
// verdict replaces the raw score and errors outright, it is never blended
// with them.
package refine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hifzlab/tasmee/pkg/provider/semantic"
)

const (
	// defaultTemperature keeps reviews near-deterministic without opting
	// into provider-default sampling.
	defaultTemperature = 0.1

	defaultTimeout       = 15 * time.Second
	defaultMaxConcurrent = 4
)

// systemPrompt instructs the model to act as a recitation examiner. The
// tolerance line of the user message varies per request; everything else is
// fixed so replies stay machine-parseable.
const systemPrompt = `You are a Quran recitation examiner reviewing an automated comparison between the expected text of a passage and a speech-to-text transcript of a learner reciting that passage.

The transcript comes from a speech recognizer: Arabic words are spelled by modern conventions and may differ from the Uthmani script without being recitation mistakes. Judge what the learner actually recited, not the orthography.

Rules:
- Score the recitation 0-100 for word accuracy against the expected passage.
- Report each genuine mistake as "missing" (expected word not recited), "wrong" (expected word recited as a different word) or "extra" (word recited that is not in the passage).
- Do NOT penalise transcription spelling variants of the same word.
- Apply the tolerance stated in the request.

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "score": <0-100>,
  "errors": [
    {"word": "<expected or extra word>", "position": <0-based index in the expected passage>, "type": "missing|wrong|extra"}
  ],
  "rationale": "<one or two sentences>"
}

If the recitation is perfect, return score 100 and an empty errors array.`

// Status tags the outcome of one refinement attempt.
type Status string

const (
	// StatusRefined means the model verdict parsed and should replace the
	// raw result.
	StatusRefined Status = "refined"
	// StatusSkipped means there was nothing to refine (raw score already
	// perfect).
	StatusSkipped Status = "skipped"
	// StatusUnavailable means the provider failed, timed out or had no
	// free concurrency slot.
	StatusUnavailable Status = "unavailable"
	// StatusMalformed means the provider replied but not with the required
	// JSON shape.
	StatusMalformed Status = "malformed"
)

// Request carries one verification to review.
type Request struct {
	// Transcript is the speech-to-text output.
	Transcript string
	// ExpectedText is the passage the learner was reciting.
	ExpectedText string
	// Strictness is the alignment strictness level, 1..3. It selects the
	// tolerance description sent to the model.
	Strictness int
	// RawScore is the deterministic alignment score, 0..100.
	RawScore int
}

// WordError is one mistake reported by the model.
type WordError struct {
	Word     string
	Position int
	// Type is "missing", "wrong" or "extra", validated during parsing.
	Type string
}

// Outcome is the tagged result of one refinement attempt. Score, Errors and
// Rationale are meaningful only when Status is [StatusRefined].
type Outcome struct {
	Status    Status
	Score     int
	Errors    []WordError
	Rationale string
}

// Option is a functional option for configuring a [Refiner].
type Option func(*Refiner)

// WithTemperature sets the model sampling temperature. Default: 0.1.
func WithTemperature(temp float64) Option {
	return func(r *Refiner) {
		r.temperature = temp
	}
}

// WithTimeout caps the wall-clock time of one refinement call, including
// queueing for a concurrency slot. Default: 15s.
func WithTimeout(d time.Duration) Option {
	return func(r *Refiner) {
		r.timeout = d
	}
}

// WithMaxConcurrent bounds the number of in-flight provider calls. Default: 4.
func WithMaxConcurrent(n int64) Option {
	return func(r *Refiner) {
		if n > 0 {
			r.sem = semaphore.NewWeighted(n)
		}
	}
}

// WithLogger sets the logger. Default: slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(r *Refiner) {
		r.log = log
	}
}

// Refiner reviews verifications through a [semantic.Analyzer]. It is safe
// for concurrent use.
type Refiner struct {
	analyzer    semantic.Analyzer
	temperature float64
	timeout     time.Duration
	sem         *semaphore.Weighted
	log         *slog.Logger
}

// New returns a new [Refiner] backed by the given analyzer.
func New(analyzer semantic.Analyzer, opts ...Option) *Refiner {
	r := &Refiner{
		analyzer:    analyzer,
		temperature: defaultTemperature,
		timeout:     defaultTimeout,
		sem:         semaphore.NewWeighted(defaultMaxConcurrent),
		log:         slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Refine asks the model to review one verification. It never returns an
// error: provider failures and malformed replies are folded into the Outcome
// status so the caller can fall back to the raw result.
//
// The provider call runs in its own goroutine and is always awaited, bounded
// by the configured timeout; a caller that goes away via ctx cancels it.
func (r *Refiner) Refine(ctx context.Context, req Request) Outcome {
	if req.RawScore >= 100 {
		return Outcome{Status: StatusSkipped}
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.sem.Acquire(callCtx, 1); err != nil {
		r.log.WarnContext(ctx, "semantic refinement unavailable",
			"provider", r.analyzer.Name(),
			"reason", "no concurrency slot",
			"error", err)
		return Outcome{Status: StatusUnavailable}
	}
	defer r.sem.Release(1)

	type reply struct {
		resp *semantic.AnalysisResponse
		err  error
	}
	ch := make(chan reply, 1)
	go func() {
		resp, err := r.analyzer.Analyze(callCtx, semantic.AnalysisRequest{
			SystemPrompt:   systemPrompt,
			Transcript:     req.Transcript,
			ExpectedText:   req.ExpectedText,
			StrictnessDesc: strictnessDesc(req.Strictness),
			RawScore:       req.RawScore,
			Temperature:    r.temperature,
		})
		ch <- reply{resp: resp, err: err}
	}()

	select {
	case <-callCtx.Done():
		r.log.WarnContext(ctx, "semantic refinement unavailable",
			"provider", r.analyzer.Name(),
			"error", callCtx.Err())
		return Outcome{Status: StatusUnavailable}
	case rep := <-ch:
		if rep.err != nil {
			r.log.WarnContext(ctx, "semantic refinement unavailable",
				"provider", r.analyzer.Name(),
				"error", rep.err)
			return Outcome{Status: StatusUnavailable}
		}
		out, err := parseReply(rep.resp.Content)
		if err != nil {
			r.log.WarnContext(ctx, "semantic refinement malformed",
				"provider", r.analyzer.Name(),
				"error", err)
			return Outcome{Status: StatusMalformed}
		}
		return out
	}
}

// strictnessDesc maps the 1..3 strictness scale onto the tolerance prose the
// model receives. Out-of-range values get the standard description.
func strictnessDesc(level int) string {
	switch level {
	case 1:
		return "lenient: accept dialectal pronunciation differences and recognizer spelling noise; flag only substantive word errors"
	case 3:
		return "strict: every word of the passage must be recited exactly and in order; flag every deviation"
	default:
		return "standard: tolerate recognizer spelling noise but flag every wrong, missing and extra word"
	}
}

// refinerResponse is the expected JSON structure returned by the model. The
// score is a pointer so that a reply without one is distinguishable from a
// genuine zero.
type refinerResponse struct {
	Score  *float64 `json:"score"`
	Errors []struct {
		Word     string `json:"word"`
		Position int    `json:"position"`
		Type     string `json:"type"`
	} `json:"errors"`
	Rationale string `json:"rationale"`
}

// parseReply validates the model output against the required shape. It
// strips markdown code fences before parsing.
func parseReply(content string) (Outcome, error) {
	cleaned := stripMarkdown(content)

	var r refinerResponse
	if err := json.Unmarshal([]byte(cleaned), &r); err != nil {
		return Outcome{}, fmt.Errorf("refine: parse reply: %w", err)
	}
	if r.Score == nil {
		return Outcome{}, fmt.Errorf("refine: reply has no score")
	}

	score := int(math.Round(*r.Score))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	errs := make([]WordError, 0, len(r.Errors))
	for _, e := range r.Errors {
		switch e.Type {
		case "missing", "wrong", "extra":
		default:
			return Outcome{}, fmt.Errorf("refine: unknown error type %q", e.Type)
		}
		if e.Word == "" {
			continue
		}
		errs = append(errs, WordError{Word: e.Word, Position: e.Position, Type: e.Type})
	}

	return Outcome{
		Status:    StatusRefined,
		Score:     score,
		Errors:    errs,
		Rationale: strings.TrimSpace(r.Rationale),
	}, nil
}

// stripMarkdown removes optional markdown code fences (```json ... ```) that
// some models prepend and append to JSON output.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
