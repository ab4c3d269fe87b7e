// Command tasmee is the entry point for the tasmee recitation verification
// server and its operator CLI.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"golang.org/x/sync/errgroup"

	"github.com/hifzlab/tasmee/internal/app"
	"github.com/hifzlab/tasmee/internal/config"
	"github.com/hifzlab/tasmee/internal/observe"
	"github.com/hifzlab/tasmee/internal/recite"
	"github.com/hifzlab/tasmee/pkg/provider/semantic"
	"github.com/hifzlab/tasmee/pkg/provider/semantic/anyllm"
	"github.com/hifzlab/tasmee/pkg/provider/semantic/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		usage()
		return 2
	}
	switch os.Args[1] {
	case "check":
		return runCheck(os.Args[2:])
	case "serve":
		return runServe(os.Args[2:])
	case "help", "-h", "--help":
		usage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "tasmee: unknown command %q\n\n", os.Args[1])
		usage()
		return 2
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: tasmee <command> [flags]

Commands:
  check   verify transcript files against an expected passage
  serve   run the metrics and health endpoints

Run "tasmee <command> -h" for command flags.
`)
}

// ── serve ─────────────────────────────────────────────────────────────────────

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	fs.Parse(args)

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "tasmee: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "tasmee: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("tasmee starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "tasmee"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Analyzer registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinAnalyzers(reg)

	application, err := app.New(ctx, cfg, reg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── check ─────────────────────────────────────────────────────────────────────

// checkOutput is one verification result as printed to stdout.
type checkOutput struct {
	File string `json:"file"`
	recite.Result
}

func runCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	var (
		expectedText = fs.String("expected", "", "expected passage text")
		expectedFile = fs.String("expected-file", "", "file holding the expected passage")
		strictFlag   = fs.String("strictness", "", "alignment strictness: lenient, standard or strict (default: from config)")
		refineFlag   = fs.Bool("refine", false, "ask the configured model to review imperfect scores")
		configPath   = fs.String("config", "", "YAML configuration file; required with -refine")
		parallel     = fs.Int("parallel", 4, "transcripts verified concurrently")
	)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: tasmee check [flags] <transcript-file>...")
		fmt.Fprintln(os.Stderr, "Verifies each transcript against the expected passage and prints one JSON result per line. Use - to read a transcript from stdin.")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	files := fs.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "tasmee check: no transcript files given")
		fs.Usage()
		return 2
	}

	expected, err := resolveExpected(*expectedText, *expectedFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tasmee check: %v\n", err)
		return 2
	}

	cfg := &config.Config{}
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "tasmee: %v\n", err)
			return 1
		}
	}
	if *strictFlag != "" {
		cfg.Verify.DefaultStrictness = *strictFlag
	}
	if *refineFlag && !cfg.Semantic.Enabled {
		fmt.Fprintln(os.Stderr, "tasmee check: -refine needs a config with semantic.enabled: true")
		return 2
	}
	// Check mode never touches the configured stores.
	cfg.Storage = config.StorageConfig{}

	lvl := cfg.Server.LogLevel
	if lvl == "" {
		lvl = config.LogWarn
	}
	slog.SetDefault(newLogger(lvl))

	reg := config.NewRegistry()
	registerBuiltinAnalyzers(reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, reg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tasmee: %v\n", err)
		return 1
	}

	// Fan out over the transcripts, but print in input order.
	if *parallel < 1 {
		*parallel = 1
	}
	results := make([]checkOutput, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*parallel)
	for i, path := range files {
		g.Go(func() error {
			transcript, err := readTranscript(path)
			if err != nil {
				return fmt.Errorf("read transcript %q: %w", path, err)
			}
			res, err := application.VerifyAttempt(gctx, app.Attempt{}, recite.Request{
				Transcript:            transcript,
				ExpectedText:          expected,
				UseSemanticRefinement: *refineFlag,
			})
			if err != nil {
				return fmt.Errorf("verify %q: %w", path, err)
			}
			results[i] = checkOutput{File: path, Result: *res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "tasmee: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	for _, out := range results {
		if err := enc.Encode(out); err != nil {
			fmt.Fprintf(os.Stderr, "tasmee: encode result: %v\n", err)
			return 1
		}
	}
	return 0
}

// resolveExpected returns the expected passage from the flag pair; exactly
// one of the two must be set.
func resolveExpected(text, file string) (string, error) {
	switch {
	case text != "" && file != "":
		return "", errors.New("-expected and -expected-file are mutually exclusive")
	case text != "":
		return text, nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read expected passage: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	default:
		return "", errors.New("one of -expected or -expected-file is required")
	}
}

// readTranscript reads one transcript from path, or from stdin when path
// is "-".
func readTranscript(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// ── Analyzer wiring ───────────────────────────────────────────────────────────

// builtinAnalyzers lists the semantic backends that ship with tasmee. Used
// for startup logging.
var builtinAnalyzers = []string{
	"openai", "anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "ollama",
}

// registerBuiltinAnalyzers wires all built-in analyzer factories into reg.
// Each factory receives a config.ProviderEntry and constructs the backend
// from the real implementation packages.
func registerBuiltinAnalyzers(reg *config.Registry) {
	// openai gets the native client: JSON response enforcement and
	// organization headers are only exposed there.
	reg.RegisterAnalyzer("openai", func(entry config.ProviderEntry) (semantic.Analyzer, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	// anthropic, gemini, deepseek, mistral, groq, llamacpp and llamafile
	// all share the same pattern: optional APIKey + optional BaseURL.
	for _, name := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterAnalyzer(name, func(entry config.ProviderEntry) (semantic.Analyzer, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterAnalyzer("ollama", func(entry config.ProviderEntry) (semantic.Analyzer, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	for _, name := range builtinAnalyzers {
		slog.Debug("registered analyzer", "name", name)
	}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
