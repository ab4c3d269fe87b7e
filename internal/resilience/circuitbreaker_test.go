package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var errBackend = errors.New("backend down")

// fakeClock is a manually advanced time source shared by the breaker tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "defaults"})
	if cb.maxFailures != 5 {
		t.Errorf("maxFailures = %d, want 5", cb.maxFailures)
	}
	if cb.cooldown != 30*time.Second {
		t.Errorf("cooldown = %v, want 30s", cb.cooldown)
	}
	if cb.probeLimit != 3 {
		t.Errorf("probeLimit = %d, want 3", cb.probeLimit)
	}
	if got := cb.State(); got != StateClosed {
		t.Errorf("initial State() = %v, want closed", got)
	}
}

func TestCircuitBreaker_ClosedPassesCallsThrough(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "closed"})

	calls := 0
	if err := cb.Execute(func() error { calls++; return nil }); err != nil {
		t.Fatalf("Execute() = %v, want nil", err)
	}
	// A failing call surfaces the backend error itself, not ErrCircuitOpen.
	if err := cb.Execute(func() error { calls++; return errBackend }); !errors.Is(err, errBackend) {
		t.Fatalf("Execute() = %v, want errBackend", err)
	}
	if calls != 2 {
		t.Fatalf("backend called %d times, want 2", calls)
	}
}

func TestCircuitBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:        "trips",
		MaxFailures: 3,
		Clock:       clk.Now,
	})

	for range 2 {
		_ = cb.Execute(func() error { return errBackend })
	}
	if got := cb.State(); got != StateClosed {
		t.Fatalf("State() = %v, want closed after 2 of 3 failures", got)
	}

	_ = cb.Execute(func() error { return errBackend })
	if got := cb.State(); got != StateOpen {
		t.Fatalf("State() = %v, want open after 3 failures", got)
	}

	// The open breaker fails fast without touching the backend.
	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Execute() = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Fatal("backend was called while the circuit was open")
	}
}

func TestCircuitBreaker_SuccessResetsFailureStreak(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "streak", MaxFailures: 3})

	_ = cb.Execute(func() error { return errBackend })
	_ = cb.Execute(func() error { return errBackend })
	_ = cb.Execute(func() error { return nil })
	_ = cb.Execute(func() error { return errBackend })
	_ = cb.Execute(func() error { return errBackend })

	if got := cb.State(); got != StateClosed {
		t.Fatalf("State() = %v, want closed (streak was broken by a success)", got)
	}
}

func TestCircuitBreaker_CooldownLeadsToHalfOpen(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "cooldown",
		MaxFailures:  1,
		ResetTimeout: time.Minute,
		Clock:        clk.Now,
	})

	_ = cb.Execute(func() error { return errBackend })
	if got := cb.State(); got != StateOpen {
		t.Fatalf("State() = %v, want open", got)
	}

	clk.Advance(59 * time.Second)
	if got := cb.State(); got != StateOpen {
		t.Fatalf("State() = %v, want open before the cooldown elapses", got)
	}

	clk.Advance(2 * time.Second)
	if got := cb.State(); got != StateHalfOpen {
		t.Fatalf("State() = %v, want half-open after the cooldown", got)
	}
}

func TestCircuitBreaker_CleanProbesClose(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "probes",
		MaxFailures:  1,
		ResetTimeout: time.Minute,
		HalfOpenMax:  2,
		Clock:        clk.Now,
	})

	_ = cb.Execute(func() error { return errBackend })
	clk.Advance(2 * time.Minute)

	for i := range 2 {
		if err := cb.Execute(func() error { return nil }); err != nil {
			t.Fatalf("probe %d: Execute() = %v, want nil", i, err)
		}
	}
	if got := cb.State(); got != StateClosed {
		t.Fatalf("State() = %v, want closed after 2 clean probes", got)
	}
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "reopen",
		MaxFailures:  1,
		ResetTimeout: time.Minute,
		HalfOpenMax:  3,
		Clock:        clk.Now,
	})

	_ = cb.Execute(func() error { return errBackend })
	clk.Advance(2 * time.Minute)

	if err := cb.Execute(func() error { return errBackend }); !errors.Is(err, errBackend) {
		t.Fatalf("probe Execute() = %v, want errBackend", err)
	}

	// The failed probe restarted the cooldown, so the breaker rejects again.
	if got := cb.State(); got != StateOpen {
		t.Fatalf("State() = %v, want open after a failed probe", got)
	}
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Execute() = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_HalfOpenBudgetRejectsExtraCalls(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "budget",
		MaxFailures:  1,
		ResetTimeout: time.Minute,
		HalfOpenMax:  1,
		Clock:        clk.Now,
	})

	_ = cb.Execute(func() error { return errBackend })
	clk.Advance(2 * time.Minute)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	// The lone probe slot is taken by the in-flight call.
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Execute() = %v, want ErrCircuitOpen while a probe is in flight", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("probe returned %v, want nil", err)
	}
	if got := cb.State(); got != StateClosed {
		t.Fatalf("State() = %v, want closed after the probe succeeded", got)
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "reset",
		MaxFailures:  1,
		ResetTimeout: time.Hour,
		Clock:        clk.Now,
	})

	_ = cb.Execute(func() error { return errBackend })
	if got := cb.State(); got != StateOpen {
		t.Fatalf("State() = %v, want open", got)
	}

	cb.Reset()
	if got := cb.State(); got != StateClosed {
		t.Fatalf("State() = %v, want closed after Reset", got)
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Execute() after Reset = %v, want nil", err)
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	want := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half-open",
		State(42):     "unknown",
	}
	for state, name := range want {
		if got := state.String(); got != name {
			t.Errorf("State(%d).String() = %q, want %q", int(state), got, name)
		}
	}
}
