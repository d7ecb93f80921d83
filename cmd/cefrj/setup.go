package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/syoon9/CEFRJ-annotator/internal/annotate"
	"github.com/syoon9/CEFRJ-annotator/internal/config"
	"github.com/syoon9/CEFRJ-annotator/internal/health"
	"github.com/syoon9/CEFRJ-annotator/internal/observe"
	"github.com/syoon9/CEFRJ-annotator/internal/resilience"
	"github.com/syoon9/CEFRJ-annotator/pkg/pattern"
	"github.com/syoon9/CEFRJ-annotator/pkg/tagger"
	"github.com/syoon9/CEFRJ-annotator/pkg/tagger/openai"
	"github.com/syoon9/CEFRJ-annotator/pkg/tagger/treetagger"
)

// loadConfig reads the configuration file and applies flag overrides. A
// missing file is tolerated when --patterns names the pattern table.
func (g *Globals) loadConfig() (*config.Config, error) {
	cfg, err := g.parseConfig()
	if err != nil {
		return nil, err
	}
	if g.PatternFile != "" {
		cfg.Patterns.File = g.PatternFile
	}
	if g.LogLevel != "" {
		cfg.LogLevel = config.LogLevel(g.LogLevel)
	}
	if g.Concurrency != 0 {
		cfg.Batch.Concurrency = g.Concurrency
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("config %q: %w", g.Config, err)
	}
	setupLogging(cfg.LogLevel)
	return cfg, nil
}

func (g *Globals) parseConfig() (*config.Config, error) {
	f, err := os.Open(g.Config)
	if errors.Is(err, os.ErrNotExist) && g.PatternFile != "" {
		cfg := &config.Config{}
		config.ApplyDefaults(cfg)
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", g.Config, err)
	}
	defer f.Close()
	return config.Parse(f)
}

// setupLogging installs the default logger for level.
func setupLogging(level config.LogLevel) {
	slog.SetDefault(newLogger(level))
}

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

// startTelemetry registers the OTel providers. Commands that skip it, such
// as annotate, still get usable no-op instruments from
// [observe.DefaultMetrics] through the global provider.
func startTelemetry(ctx context.Context) (func(), error) {
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "cefrj",
		ServiceVersion: version,
	})
	if err != nil {
		return nil, err
	}
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}, nil
}

// serveMetrics serves /metrics, /healthz and /readyz on
// telemetry.metrics_addr when it is set. The returned function stops the
// server.
func serveMetrics(cfg *config.Config, a *annotate.Annotator, chain *resilience.TaggerChain) func() {
	addr := cfg.Telemetry.MetricsAddr
	if addr == "" {
		return func() {}
	}

	breakers := make([]*resilience.CircuitBreaker, 0, len(chain.Names()))
	for _, name := range chain.Names() {
		breakers = append(breakers, chain.Breaker(name))
	}
	ready := health.New(
		health.Patterns(func() int { return a.Matcher().Len() }),
		health.Taggers(breakers...),
	)

	srv := observe.NewServer(addr, observe.DefaultMetrics(), ready.Register)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "addr", addr, "err", err)
		}
	}()
	slog.Info("serving metrics", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Warn("metrics server shutdown", "err", err)
		}
	}
}

func tableOptions(cfg *config.Config) pattern.TableOptions {
	return pattern.TableOptions{
		IDColumn:          cfg.Patterns.IDColumn,
		RegexColumn:       cfg.Patterns.RegexColumn,
		ExplanationColumn: cfg.Patterns.ExplanationColumn,
		Logger:            slog.Default(),
	}
}

// loadMatcher loads and compiles the configured pattern table.
func loadMatcher(cfg *config.Config) (*pattern.Matcher, error) {
	defs, err := pattern.LoadTable(cfg.Patterns.File, tableOptions(cfg))
	if err != nil {
		return nil, err
	}
	return compile(cfg, defs)
}

func compile(cfg *config.Config, defs []pattern.Definition) (*pattern.Matcher, error) {
	m, err := pattern.Compile(defs, pattern.WithMatchTimeout(cfg.Patterns.MatchTimeout))
	if err != nil {
		return nil, err
	}
	slog.Info("patterns loaded", "file", cfg.Patterns.File, "count", m.Len())
	return m, nil
}

// newRegistry returns a registry with the built-in taggers.
func newRegistry() *config.Registry {
	reg := config.NewRegistry()

	reg.Register("treetagger", func(e config.TaggerEntry) (tagger.Tagger, error) {
		opts := []treetagger.Option{treetagger.WithTimeout(e.Timeout)}
		if len(e.Args) > 0 {
			opts = append(opts, treetagger.WithArgs(e.Args...))
		}
		return treetagger.New(e.Command, opts...)
	})

	reg.Register("openai", func(e config.TaggerEntry) (tagger.Tagger, error) {
		apiKey := e.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		opts := []openai.Option{openai.WithTimeout(e.Timeout)}
		if e.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(e.BaseURL))
		}
		return openai.New(apiKey, e.Model, opts...)
	})

	// mock tags every word as unknown. It needs no external tagger and is
	// meant for trying out pattern tables on plain-word regexes.
	reg.Register("mock", func(config.TaggerEntry) (tagger.Tagger, error) {
		return tagger.Func(whitespaceTag), nil
	})

	for _, name := range reg.Names() {
		slog.Debug("registered tagger", "name", name)
	}
	return reg
}

func whitespaceTag(ctx context.Context, sentence string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, w := range strings.Fields(tagger.Preprocess(sentence)) {
		fmt.Fprintf(&sb, "%s\tUNK\t%s\n", w, w)
	}
	return tagger.Normalize(sb.String())
}

// buildTagger creates the primary tagger and its fallbacks, each behind its
// own circuit breaker.
func buildTagger(cfg *config.Config, reg *config.Registry) (*resilience.TaggerChain, error) {
	primary, err := reg.Create(cfg.Tagger)
	if err != nil {
		return nil, err
	}

	metrics := observe.DefaultMetrics()
	chain := resilience.NewTaggerChain(primary, cfg.Tagger.Name, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  cfg.Resilience.MaxFailures,
			ResetTimeout: cfg.Resilience.ResetTimeout,
		},
		OnFailure: func(name string, err error) {
			slog.Warn("tagger failed", "tagger", name, "err", err)
			metrics.RecordTaggerError(context.Background(), name)
		},
	})

	seen := map[string]int{cfg.Tagger.Name: 1}
	for _, fb := range cfg.Tagger.Fallbacks {
		t, err := reg.Create(fb)
		if err != nil {
			return nil, fmt.Errorf("fallback: %w", err)
		}
		name := fb.Name
		if n := seen[name]; n > 0 {
			name = fmt.Sprintf("%s#%d", name, n+1)
		}
		seen[fb.Name]++
		chain.AddFallback(name, t)
		slog.Info("tagger fallback added", "name", name)
	}
	return chain, nil
}
