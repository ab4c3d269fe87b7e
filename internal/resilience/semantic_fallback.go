package resilience

import (
	"context"

	"github.com/hifzlab/tasmee/pkg/provider/semantic"
)

// SemanticFallback implements [semantic.Analyzer] with automatic failover
// across multiple model backends. Each backend has its own circuit breaker;
// when the primary fails or its breaker is open, the next healthy fallback is
// tried.
type SemanticFallback struct {
	group *FallbackGroup[semantic.Analyzer]
}

// Compile-time interface assertion.
var _ semantic.Analyzer = (*SemanticFallback)(nil)

// NewSemanticFallback creates a [SemanticFallback] with primary as the
// preferred backend. The analyzer's own Name labels its circuit breaker.
func NewSemanticFallback(primary semantic.Analyzer, cfg FallbackConfig) *SemanticFallback {
	return &SemanticFallback{
		group: NewFallbackGroup(primary, primary.Name(), cfg),
	}
}

// AddFallback registers an additional analyzer as a fallback. Fallbacks are
// tried in the order they are added, after the primary.
func (f *SemanticFallback) AddFallback(analyzer semantic.Analyzer) {
	f.group.AddFallback(analyzer.Name(), analyzer)
}

// Analyze sends the request to the first healthy backend and returns its
// reply. If the primary fails, subsequent fallbacks are tried.
func (f *SemanticFallback) Analyze(ctx context.Context, req semantic.AnalysisRequest) (*semantic.AnalysisResponse, error) {
	return ExecuteWithResult(f.group, func(a semantic.Analyzer) (*semantic.AnalysisResponse, error) {
		return a.Analyze(ctx, req)
	})
}

// Name returns the primary backend's name. It does not change on failover;
// per-request provider attribution happens in the backends themselves.
func (f *SemanticFallback) Name() string {
	if len(f.group.entries) > 0 {
		return f.group.entries[0].value.Name()
	}
	return "none"
}

// Available reports whether at least one backend's circuit currently admits
// calls. Health checks use it to flag total analyzer loss without issuing a
// model request.
func (f *SemanticFallback) Available() bool {
	for i := range f.group.entries {
		if f.group.entries[i].breaker.State() != StateOpen {
			return true
		}
	}
	return false
}
