// Package resilience guards outbound model calls with circuit breakers and
// ordered failover.
//
// A [CircuitBreaker] cuts a backend off after repeated failures and probes it
// again once a cooldown has passed. [FallbackGroup] chains several backends of
// one provider type, each behind its own breaker, so a dead primary is skipped
// instead of retried. [SemanticFallback] is the analyzer-typed chain used by
// the verification pipeline.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// refuses calls: the cooldown is still running, or the half-open probe budget
// is spent.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call. Normal operation.
	StateClosed State = iota

	// StateOpen rejects every call with [ErrCircuitOpen]. Entered after too
	// many consecutive failures; left when the cooldown elapses.
	StateOpen

	// StateHalfOpen admits a bounded number of probe calls. Clean probes close
	// the breaker, a single failed probe re-opens it.
	StateHalfOpen
)

// String returns the state name used in logs and health reports.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig tunes a [CircuitBreaker]. The zero value of every
// field is replaced with a default by [NewCircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels the breaker in log lines.
	Name string

	// MaxFailures is how many consecutive failures trip a closed breaker.
	// Default 5.
	MaxFailures int

	// ResetTimeout is how long a tripped breaker rejects calls before it
	// starts probing again. Default 30s.
	ResetTimeout time.Duration

	// HalfOpenMax bounds the probe calls admitted per half-open round; the
	// same number of clean probes closes the breaker. Default 3.
	HalfOpenMax int

	// Clock defaults to time.Now when nil.
	Clock func() time.Time
}

// CircuitBreaker is a three-state breaker: closed until MaxFailures
// consecutive failures, open for ResetTimeout, then half-open while probes
// decide between closing and re-opening.
type CircuitBreaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	probeLimit  int
	now         func() time.Time

	mu       sync.Mutex
	state    State
	failures int       // consecutive failures seen while closed
	openedAt time.Time // when the breaker last tripped
	probes   int       // calls admitted in the current half-open round
	probeOKs int       // probes of that round that came back clean
}

// NewCircuitBreaker creates a breaker from cfg, filling in defaults for
// zero-valued fields.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &CircuitBreaker{
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.ResetTimeout,
		probeLimit:  cfg.HalfOpenMax,
		now:         cfg.Clock,
	}
}

// Execute runs fn if the breaker admits the call and returns fn's error
// unchanged. Rejected calls fail fast with [ErrCircuitOpen] and never invoke
// fn.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.settle(probe, err)
	return err
}

// admit decides whether a call may proceed and whether it counts as a
// half-open probe. An open breaker whose cooldown has elapsed flips to
// half-open here.
func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probes = 0
		cb.probeOKs = 0
		slog.Info("circuit entering half-open", "breaker", cb.name)
	}

	if cb.state == StateHalfOpen {
		if cb.probes >= cb.probeLimit {
			return false, ErrCircuitOpen
		}
		cb.probes++
		return true, nil
	}
	return false, nil
}

// settle folds a finished call back into the state machine.
func (cb *CircuitBreaker) settle(probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch {
	case err == nil && probe:
		if cb.state != StateHalfOpen {
			// A concurrent probe already failed and re-opened the circuit;
			// this late success must not close it.
			return
		}
		cb.probeOKs++
		if cb.probeOKs >= cb.probeLimit {
			cb.state = StateClosed
			cb.failures = 0
			slog.Info("circuit closed after clean probes", "breaker", cb.name)
		}

	case err == nil:
		cb.failures = 0

	case probe:
		// One bad probe ends the half-open round and restarts the cooldown.
		cb.state = StateOpen
		cb.openedAt = cb.now()
		slog.Warn("circuit re-opened by failed probe", "breaker", cb.name)

	default:
		cb.failures++
		if cb.failures >= cb.maxFailures {
			cb.state = StateOpen
			cb.openedAt = cb.now()
			slog.Warn("circuit opened",
				"breaker", cb.name,
				"consecutive_failures", cb.failures)
		}
	}
}

// State reports the breaker's mode. An open breaker whose cooldown has
// elapsed reports [StateHalfOpen] even though the stored state flips only on
// the next [CircuitBreaker.Execute].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cooldown {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed] and clears every counter.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.probes = 0
	cb.probeOKs = 0
	slog.Info("circuit reset", "breaker", cb.name)
}
