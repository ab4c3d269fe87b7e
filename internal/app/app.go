// Package app wires all tasmee subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the operational HTTP endpoints, and Shutdown tears
// everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithStore, WithAnalyzer, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/hifzlab/tasmee/internal/config"
	"github.com/hifzlab/tasmee/internal/health"
	"github.com/hifzlab/tasmee/internal/hifz"
	"github.com/hifzlab/tasmee/internal/hifz/postgres"
	"github.com/hifzlab/tasmee/internal/hifz/redislock"
	"github.com/hifzlab/tasmee/internal/observe"
	"github.com/hifzlab/tasmee/internal/recite"
	"github.com/hifzlab/tasmee/internal/recite/refine"
	"github.com/hifzlab/tasmee/internal/recite/wordmatch"
	"github.com/hifzlab/tasmee/internal/resilience"
	"github.com/hifzlab/tasmee/internal/review"
	"github.com/hifzlab/tasmee/pkg/provider/semantic"
)

// submitLeaseTTL bounds how long one submission may hold the app-tier lock.
// Long enough for a verify round-trip plus the store update, short enough
// that a crashed holder does not wedge the learner.
const submitLeaseTTL = 30 * time.Second

// App owns all subsystem lifetimes and orchestrates the tasmee pipeline:
// recitation verification, stage progression, and the review queue.
type App struct {
	cfg *config.Config

	// Subsystems — initialised in New, torn down in Shutdown.
	metrics    *observe.Metrics
	analyzer   semantic.Analyzer
	fallback   *resilience.SemanticFallback
	verifier   recite.Verifier
	strictness recite.Strictness
	store      hifz.Store
	pg         *postgres.Store
	locker     *redislock.Locker
	service    *hifz.Service
	reviews    *review.FileStore
	health     *health.Handler

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a progression store instead of creating one from config.
func WithStore(s hifz.Store) Option {
	return func(a *App) { a.store = s }
}

// WithAnalyzer injects a semantic analyzer instead of creating one from the
// registry.
func WithAnalyzer(an semantic.Analyzer) Option {
	return func(a *App) { a.analyzer = an }
}

// WithMetrics injects a metrics bundle instead of building one from the
// global meter provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithVerifier injects a verifier instead of assembling the engine from
// config. The injected verifier is not instrumented.
func WithVerifier(v recite.Verifier) Option {
	return func(a *App) { a.verifier = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The registry comes
// from main.go with the built-in analyzer backends registered. Use Option
// functions to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: metrics instruments, the
// verification engine with its optional semantic refiner, store connections,
// the progression service, the review queue, and health checks.
func New(ctx context.Context, cfg *config.Config, reg *config.Registry, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Metrics ───────────────────────────────────────────────────────
	if err := a.initMetrics(); err != nil {
		return nil, fmt.Errorf("app: init metrics: %w", err)
	}

	// ── 2. Verifier ──────────────────────────────────────────────────────
	if err := a.initVerifier(reg); err != nil {
		return nil, fmt.Errorf("app: init verifier: %w", err)
	}

	// ── 3. Stores ────────────────────────────────────────────────────────
	if err := a.initStores(ctx); err != nil {
		return nil, fmt.Errorf("app: init stores: %w", err)
	}

	// ── 4. Progression service ───────────────────────────────────────────
	if err := a.initProgression(); err != nil {
		return nil, fmt.Errorf("app: init progression: %w", err)
	}

	// ── 5. Review queue ──────────────────────────────────────────────────
	if cfg.Review.Path != "" {
		a.reviews = review.NewFileStore(cfg.Review.Path)
	}

	// ── 6. Health checks ─────────────────────────────────────────────────
	a.initHealth()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initMetrics builds the instrument bundle from the global meter provider
// unless one was injected.
func (a *App) initMetrics() error {
	if a.metrics != nil {
		return nil
	}
	m, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}
	a.metrics = m
	return nil
}

// initVerifier assembles the verification engine: variant table, matcher,
// optional semantic refiner, and the instrumentation wrapper.
func (a *App) initVerifier(reg *config.Registry) error {
	strictness, err := a.cfg.Verify.Strictness()
	if err != nil {
		return err
	}
	a.strictness = strictness

	if a.verifier != nil {
		return nil // injected
	}

	table := wordmatch.Builtin()
	if path := a.cfg.Verify.VariantsFile; path != "" {
		t, err := wordmatch.LoadTableFile(path)
		if err != nil {
			return fmt.Errorf("load variants file: %w", err)
		}
		table = t
		slog.Info("loaded orthographic variant table", "path", path)
	}
	matcher := wordmatch.New(wordmatch.WithTable(table))

	engineOpts := []recite.Option{recite.WithMatcher(matcher)}

	if a.cfg.Semantic.Enabled {
		if err := a.initAnalyzer(reg); err != nil {
			return err
		}
		var refineOpts []refine.Option
		if d := a.cfg.Semantic.Timeout(); d > 0 {
			refineOpts = append(refineOpts, refine.WithTimeout(d))
		}
		if n := a.cfg.Semantic.MaxConcurrent; n > 0 {
			refineOpts = append(refineOpts, refine.WithMaxConcurrent(int64(n)))
		}
		engineOpts = append(engineOpts, recite.WithRefiner(refine.New(a.analyzer, refineOpts...)))
	}

	a.verifier = observe.WrapVerifier(recite.NewEngine(engineOpts...), a.metrics)
	return nil
}

// initAnalyzer builds the semantic backend from the registry, wrapping it in
// a circuit-breaking fallback group when a fallback backend is configured.
func (a *App) initAnalyzer(reg *config.Registry) error {
	if a.analyzer != nil {
		return nil // injected
	}

	primary, err := reg.CreateAnalyzer(a.cfg.Semantic.Provider)
	if err != nil {
		return fmt.Errorf("create analyzer %q: %w", a.cfg.Semantic.Provider.Name, err)
	}

	if a.cfg.Semantic.Fallback == nil {
		a.analyzer = primary
		slog.Info("semantic refinement enabled", "provider", primary.Name())
		return nil
	}

	second, err := reg.CreateAnalyzer(*a.cfg.Semantic.Fallback)
	if err != nil {
		return fmt.Errorf("create fallback analyzer %q: %w", a.cfg.Semantic.Fallback.Name, err)
	}

	fb := resilience.NewSemanticFallback(primary, resilience.FallbackConfig{})
	fb.AddFallback(second)
	a.fallback = fb
	a.analyzer = fb
	slog.Info("semantic refinement enabled",
		"provider", primary.Name(),
		"fallback", second.Name(),
	)
	return nil
}

// initStores connects the progression store and the optional submission
// locker. Without a Postgres DSN the service runs on the in-memory store.
func (a *App) initStores(ctx context.Context) error {
	if a.store == nil {
		if dsn := a.cfg.Storage.PostgresDSN; dsn != "" {
			pg, err := postgres.NewStore(ctx, dsn)
			if err != nil {
				return err
			}
			a.pg = pg
			a.store = pg
			a.closers = append(a.closers, func() error {
				pg.Close()
				return nil
			})
		} else {
			a.store = hifz.NewMemStore()
			slog.Info("no postgres_dsn configured, using in-memory progression store")
		}
	}

	if uri := a.cfg.Storage.RedisURL; uri != "" {
		locker, err := redislock.New(uri)
		if err != nil {
			return err
		}
		a.locker = locker
		a.closers = append(a.closers, locker.Close)
	}

	return nil
}

// initProgression builds the stage progression service over the store.
func (a *App) initProgression() error {
	plan, err := a.cfg.Hifz.PlanConfig()
	if err != nil {
		return err
	}
	a.service = hifz.NewService(a.store, plan,
		hifz.WithObserver(observe.NewProgressionObserver(a.metrics)),
	)
	return nil
}

// initHealth registers one readiness check per connected dependency.
func (a *App) initHealth() {
	var checkers []health.Checker
	if a.pg != nil {
		checkers = append(checkers, health.PingChecker("postgres", a.pg))
	}
	if a.locker != nil {
		checkers = append(checkers, health.PingChecker("redis", a.locker))
	}
	if a.fallback != nil {
		fb := a.fallback
		checkers = append(checkers, health.Checker{
			Name: "semantic",
			Check: func(context.Context) error {
				if !fb.Available() {
					return errors.New("all analyzer circuits open")
				}
				return nil
			},
		})
	}
	a.health = health.New(checkers...)
}

// ─── Operations ──────────────────────────────────────────────────────────────

// Attempt identifies which line of the mushaf a transcript claims to recite.
// Learner may be empty for anonymous checks; such attempts are never queued
// for review.
type Attempt struct {
	Learner string
	Page    int
	Line    int
	Stage   hifz.StageID
}

// VerifyAttempt runs one transcript through the verification engine. When the
// request carries no strictness the configured default applies. Results below
// the review threshold are appended to the review queue; queue failures are
// logged, not surfaced, because the caller already has a usable result.
func (a *App) VerifyAttempt(ctx context.Context, at Attempt, req recite.Request) (*recite.Result, error) {
	if req.Strictness == 0 {
		req.Strictness = a.strictness
	}

	res, err := a.verifier.Verify(ctx, req)
	if err != nil {
		return nil, err
	}

	a.queueReview(ctx, at, req, res)
	return res, nil
}

// queueReview appends a below-threshold attempt to the review file.
func (a *App) queueReview(ctx context.Context, at Attempt, req recite.Request, res *recite.Result) {
	if a.reviews == nil || a.cfg.Review.Threshold <= 0 || at.Learner == "" {
		return
	}
	if res.Score >= a.cfg.Review.Threshold {
		return
	}

	entry := review.Entry{
		Learner:    at.Learner,
		Page:       at.Page,
		Line:       at.Line,
		Stage:      at.Stage,
		Score:      res.Score,
		Errors:     res.Errors,
		Transcript: req.Transcript,
	}
	if err := a.reviews.Append(entry); err != nil {
		slog.WarnContext(ctx, "review queue append failed",
			"learner", at.Learner,
			"score", res.Score,
			"err", err,
		)
		return
	}
	slog.DebugContext(ctx, "attempt queued for review",
		"learner", at.Learner,
		"page", at.Page,
		"line", at.Line,
		"score", res.Score,
	)
}

// Submit applies one verification outcome to an open task. When a Redis
// locker is configured, submissions for the same learner are serialized
// across replicas; a held lock surfaces as [redislock.ErrNotAcquired] and
// the caller decides whether to retry.
func (a *App) Submit(ctx context.Context, learner string, taskID uuid.UUID, passed bool) (hifz.Task, error) {
	if a.locker != nil {
		lease, err := a.locker.Acquire(ctx, "submit:"+learner, submitLeaseTTL)
		if err != nil {
			return hifz.Task{}, fmt.Errorf("app: submit for %q: %w", learner, err)
		}
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				slog.WarnContext(ctx, "submit lease release failed", "learner", learner, "err", err)
			}
		}()
	}
	return a.service.Submit(ctx, learner, taskID, passed)
}

// Progression exposes the stage progression service for enrolment, planning
// and position queries.
func (a *App) Progression() *hifz.Service { return a.service }

// Verifier exposes the instrumented verification engine.
func (a *App) Verifier() recite.Verifier { return a.verifier }

// Health exposes the readiness handler for mounting on an HTTP mux.
func (a *App) Health() *health.Handler { return a.health }

// Reviews returns the review queue, or nil when no review path is configured.
func (a *App) Reviews() *review.FileStore { return a.reviews }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the operational HTTP endpoints (Prometheus scrape, health,
// readiness) and blocks until ctx is cancelled or the listener fails. The
// listener is drained gracefully before Run returns.
func (a *App) Run(ctx context.Context) error {
	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	a.health.Register(mux)

	srv := &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("app: serve: %w", err)
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		slog.Warn("http drain error", "err", err)
	}
	return ctx.Err()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
