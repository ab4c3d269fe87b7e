package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/hifzlab/tasmee/pkg/provider/semantic"
	"github.com/hifzlab/tasmee/pkg/provider/semantic/mock"
)

func TestSemanticFallback_PrimarySuccess(t *testing.T) {
	primary := &mock.Analyzer{
		NameValue:       "primary",
		AnalyzeResponse: &semantic.AnalysisResponse{Content: `{"score": 90}`},
	}
	secondary := &mock.Analyzer{
		NameValue:       "secondary",
		AnalyzeResponse: &semantic.AnalysisResponse{Content: `{"score": 10}`},
	}

	fb := NewSemanticFallback(primary, FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback(secondary)

	resp, err := fb.Analyze(context.Background(), semantic.AnalysisRequest{
		Transcript: "x", ExpectedText: "x",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != `{"score": 90}` {
		t.Fatalf("content = %q, want primary reply", resp.Content)
	}
	if got := len(primary.Calls()); got != 1 {
		t.Fatalf("primary called %d times, want 1", got)
	}
	if got := len(secondary.Calls()); got != 0 {
		t.Fatalf("secondary called %d times, want 0", got)
	}
}

func TestSemanticFallback_Failover(t *testing.T) {
	primary := &mock.Analyzer{
		NameValue:  "primary",
		AnalyzeErr: errors.New("primary down"),
	}
	secondary := &mock.Analyzer{
		NameValue:       "secondary",
		AnalyzeResponse: &semantic.AnalysisResponse{Content: `{"score": 75}`},
	}

	fb := NewSemanticFallback(primary, FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback(secondary)

	resp, err := fb.Analyze(context.Background(), semantic.AnalysisRequest{
		Transcript: "x", ExpectedText: "x",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != `{"score": 75}` {
		t.Fatalf("content = %q, want secondary reply", resp.Content)
	}
	if got := len(primary.Calls()); got != 1 {
		t.Fatalf("primary called %d times, want 1", got)
	}
}

func TestSemanticFallback_AllFail(t *testing.T) {
	primary := &mock.Analyzer{NameValue: "primary", AnalyzeErr: errors.New("primary down")}
	secondary := &mock.Analyzer{NameValue: "secondary", AnalyzeErr: errors.New("secondary down")}

	fb := NewSemanticFallback(primary, FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback(secondary)

	_, err := fb.Analyze(context.Background(), semantic.AnalysisRequest{
		Transcript: "x", ExpectedText: "x",
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestSemanticFallback_OpenBreakerSkipsPrimary(t *testing.T) {
	primary := &mock.Analyzer{NameValue: "primary", AnalyzeErr: errors.New("primary down")}
	secondary := &mock.Analyzer{
		NameValue:       "secondary",
		AnalyzeResponse: &semantic.AnalysisResponse{Content: "ok"},
	}

	fb := NewSemanticFallback(primary, FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2},
	})
	fb.AddFallback(secondary)

	// Two failing rounds trip the primary's breaker.
	for range 3 {
		if _, err := fb.Analyze(context.Background(), semantic.AnalysisRequest{
			Transcript: "x", ExpectedText: "x",
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// The third round must not have touched the primary.
	if got := len(primary.Calls()); got != 2 {
		t.Fatalf("primary called %d times, want 2", got)
	}
	if got := len(secondary.Calls()); got != 3 {
		t.Fatalf("secondary called %d times, want 3", got)
	}
}

func TestSemanticFallback_Available(t *testing.T) {
	primary := &mock.Analyzer{NameValue: "primary", AnalyzeErr: errors.New("primary down")}

	fb := NewSemanticFallback(primary, FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1},
	})

	if !fb.Available() {
		t.Fatal("Available() = false before any failure")
	}

	// One failure trips the sole breaker; the group has nothing left to offer.
	if _, err := fb.Analyze(context.Background(), semantic.AnalysisRequest{
		Transcript: "x", ExpectedText: "x",
	}); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if fb.Available() {
		t.Fatal("Available() = true with every breaker open")
	}

	// A healthy fallback restores availability even while the primary is open.
	fb.AddFallback(&mock.Analyzer{
		NameValue:       "secondary",
		AnalyzeResponse: &semantic.AnalysisResponse{Content: "ok"},
	})
	if !fb.Available() {
		t.Fatal("Available() = false with a closed fallback breaker")
	}
}

func TestSemanticFallback_Name(t *testing.T) {
	primary := &mock.Analyzer{NameValue: "openai"}
	fb := NewSemanticFallback(primary, FallbackConfig{})
	fb.AddFallback(&mock.Analyzer{NameValue: "ollama"})

	if got := fb.Name(); got != "openai" {
		t.Fatalf("Name() = %q, want openai", got)
	}
}
