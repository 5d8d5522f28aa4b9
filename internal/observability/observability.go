// Package observability bootstraps optional OpenTelemetry tracing
// around the agent pipeline. Grounded on the teacher's observability
// setup, trimmed to tracing only: no metrics SDK, no OTLP exporter
// wiring, since nothing in this system needs a collector endpoint.
// When unconfigured, the global no-op tracer provider is left in
// place and every span in pkg/agent becomes a zero-cost no-op.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Config controls whether tracing is enabled. No exporter is wired, so
// spans are recorded by the SDK provider but not sent anywhere, and
// ServiceName is not used by Setup. A zero Config leaves tracing
// disabled (the package-level no-op provider stays active).
type Config struct {
	Enabled     bool
	ServiceName string
}

// Shutdown flushes and releases a configured tracer provider. Calling
// Shutdown on a disabled configuration is a no-op.
type Shutdown func(ctx context.Context) error

// Setup installs a tracer provider as the global default when enabled.
// It returns a Shutdown func the caller must invoke on exit.
func Setup(cfg Config) (Shutdown, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		if err := tp.Shutdown(ctx); err != nil {
			return fmt.Errorf("observability: shutdown tracer provider: %w", err)
		}
		return nil
	}, nil
}
