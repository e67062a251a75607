// Package obs configures structured logging for verification runs.
package obs

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type correlationContextKey struct{}

// Correlation carries the identifiers of the unit of work being logged.
type Correlation struct {
	RunID    string
	Scenario string
	Actor    string
	Step     string
}

var (
	loggerMu sync.RWMutex
	logger   *slog.Logger
)

// Init configures the global structured logger.
func Init() {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if logger != nil {
		return
	}
	logger = newLogger(os.Stderr)
	slog.SetDefault(logger)
}

// SetOutputForTests overrides the global logger output for tests.
func SetOutputForTests(w io.Writer) func() {
	loggerMu.Lock()
	prev := logger
	logger = newLogger(w)
	slog.SetDefault(logger)
	loggerMu.Unlock()

	return func() {
		loggerMu.Lock()
		defer loggerMu.Unlock()
		if prev != nil {
			logger = prev
		} else {
			logger = newLogger(os.Stderr)
		}
		slog.SetDefault(logger)
	}
}

func newLogger(w io.Writer) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.TimeKey {
				t, ok := attr.Value.Any().(time.Time)
				if ok {
					return slog.String(slog.TimeKey, t.UTC().Format(time.RFC3339Nano))
				}
			}
			return attr
		},
	})
	return slog.New(handler)
}

func globalLogger() *slog.Logger {
	loggerMu.RLock()
	l := logger
	loggerMu.RUnlock()
	if l != nil {
		return l
	}
	Init()
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// Pkg returns a logger tagged with package name.
func Pkg(pkg string) *slog.Logger {
	return globalLogger().With("pkg", pkg)
}

// From returns a logger with correlation fields from context.
func From(ctx context.Context) *slog.Logger {
	l := globalLogger()
	attrs := correlationAttrs(CorrelationFromContext(ctx))
	if len(attrs) == 0 {
		return l
	}
	return l.With(attrs...)
}

// NewRunID returns a fresh identifier for one invocation of the runner.
func NewRunID() string {
	return "run-" + uuid.NewString()
}

// WithRunID stores run_id in context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return WithCorrelation(ctx, Correlation{RunID: runID})
}

// WithScenario stores the scenario name in context and clears actor/step.
func WithScenario(ctx context.Context, scenario string) context.Context {
	corr := CorrelationFromContext(ctx)
	corr.Scenario = strings.TrimSpace(scenario)
	corr.Actor = ""
	corr.Step = ""
	return context.WithValue(ctx, correlationContextKey{}, corr)
}

// WithCorrelation merges the non-empty fields of corr into the context.
func WithCorrelation(ctx context.Context, corr Correlation) context.Context {
	existing := CorrelationFromContext(ctx)
	if corr.RunID != "" {
		existing.RunID = corr.RunID
	}
	if corr.Scenario != "" {
		existing.Scenario = corr.Scenario
	}
	if corr.Actor != "" {
		existing.Actor = corr.Actor
	}
	if corr.Step != "" {
		existing.Step = corr.Step
	}
	return context.WithValue(ctx, correlationContextKey{}, existing)
}

// CorrelationFromContext returns correlation fields from context.
func CorrelationFromContext(ctx context.Context) Correlation {
	if ctx == nil {
		return Correlation{}
	}
	corr, ok := ctx.Value(correlationContextKey{}).(Correlation)
	if !ok {
		return Correlation{}
	}
	return corr
}

func correlationAttrs(corr Correlation) []any {
	attrs := make([]any, 0, 8)
	if corr.RunID != "" {
		attrs = append(attrs, "run_id", corr.RunID)
	}
	if corr.Scenario != "" {
		attrs = append(attrs, "scenario", corr.Scenario)
	}
	if corr.Actor != "" {
		attrs = append(attrs, "actor", corr.Actor)
	}
	if corr.Step != "" {
		attrs = append(attrs, "step", corr.Step)
	}
	return attrs
}
