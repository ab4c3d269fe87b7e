// Package mock provides a test double for the semantic.Analyzer interface.
//
// Use Analyzer in unit tests to verify that the refiner sends correct
// AnalysisRequests and to feed controlled replies without a live model
// backend. All fields are safe to set before calling any method; mutating
// them during a concurrent call is the caller's responsibility.
//
// Example:
//
//	a := &mock.Analyzer{
//	    AnalyzeResponse: &semantic.AnalysisResponse{Content: `{"score": 90}`},
//	}
//	resp, err := a.Analyze(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/hifzlab/tasmee/pkg/provider/semantic"
)

// AnalyzeCall records a single invocation of Analyze.
type AnalyzeCall struct {
	// Ctx is the context passed to Analyze.
	Ctx context.Context
	// Req is the AnalysisRequest passed to Analyze.
	Req semantic.AnalysisRequest
}

// Analyzer is a mock implementation of semantic.Analyzer.
// Zero values for response fields cause Analyze to return nil, nil.
// Set AnalyzeErr to inject errors.
type Analyzer struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// AnalyzeResponse is returned by Analyze. May be nil (returns nil, nil).
	AnalyzeResponse *semantic.AnalysisResponse

	// AnalyzeErr, if non-nil, is returned as the error from Analyze.
	AnalyzeErr error

	// AnalyzeDelay, if set, runs before the reply is returned; a non-nil
	// error aborts the call with that error. Block on ctx inside it to
	// exercise timeout paths.
	AnalyzeDelay func(ctx context.Context) error

	// NameValue is returned by Name. Defaults to "mock".
	NameValue string

	// --- Call records (read after test) ---

	// AnalyzeCalls records every invocation of Analyze in order.
	AnalyzeCalls []AnalyzeCall
}

// Analyze records the call and returns AnalyzeResponse, AnalyzeErr.
func (a *Analyzer) Analyze(ctx context.Context, req semantic.AnalysisRequest) (*semantic.AnalysisResponse, error) {
	a.mu.Lock()
	a.AnalyzeCalls = append(a.AnalyzeCalls, AnalyzeCall{Ctx: ctx, Req: req})
	resp, err, delay := a.AnalyzeResponse, a.AnalyzeErr, a.AnalyzeDelay
	a.mu.Unlock()

	if delay != nil {
		if derr := delay(ctx); derr != nil {
			return nil, derr
		}
	}
	return resp, err
}

// Name returns NameValue, or "mock" if unset.
func (a *Analyzer) Name() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.NameValue == "" {
		return "mock"
	}
	return a.NameValue
}

// Calls returns a copy of the recorded Analyze invocations. Thread-safe.
func (a *Analyzer) Calls() []AnalyzeCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	calls := make([]AnalyzeCall, len(a.AnalyzeCalls))
	copy(calls, a.AnalyzeCalls)
	return calls
}

// Reset clears all recorded calls. Thread-safe.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.AnalyzeCalls = nil
}

// Ensure Analyzer implements semantic.Analyzer at compile time.
var _ semantic.Analyzer = (*Analyzer)(nil)
