package cmd

import (
	"context"
	"os"

	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// newTracerProvider builds the TracerProvider the Proxy Engine and
// Approval Coordinator use to emit spans around the pipeline stages. In
// production this would point at an OTLP collector; lacking one here, a
// stdout exporter keeps the spans flowing to stderr for inspection
// without pulling in a collector dependency.
func newTracerProvider(devMode bool) (*sdktrace.TracerProvider, error) {
	sampler := sdktrace.TraceIDRatioBased(0.1)
	if devMode {
		sampler = sdktrace.AlwaysSample()
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr))
	if err != nil {
		return nil, err
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sampler),
	), nil
}

// shutdownTracerProvider flushes and closes tp, bounding the wait so a
// slow exporter never blocks process shutdown indefinitely.
func shutdownTracerProvider(ctx context.Context, tp *sdktrace.TracerProvider) error {
	return tp.Shutdown(ctx)
}
