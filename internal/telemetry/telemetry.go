// Package telemetry sets up OpenTelemetry tracing and metrics. Spans and
// metrics are exported as JSON to rotating files under a directory.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ServiceName identifies this process in exported telemetry.
const ServiceName = "bloodlens"

// Options configures Setup.
type Options struct {
	Dir            string        // Output directory; empty disables export
	ServiceVersion string        // Reported as service.version
	MetricInterval time.Duration // Export interval for metrics (default 30s)
}

// ShutdownFunc flushes and closes the exporters.
type ShutdownFunc func(context.Context) error

// Setup installs global tracer and meter providers. With an empty Dir it
// leaves the no-op globals in place and returns a no-op shutdown.
func Setup(ctx context.Context, opts Options) (ShutdownFunc, error) {
	if opts.Dir == "" {
		return func(context.Context) error { return nil }, nil
	}
	if opts.ServiceVersion == "" {
		opts.ServiceVersion = "dev"
	}
	if opts.MetricInterval <= 0 {
		opts.MetricInterval = 30 * time.Second
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create telemetry directory: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(opts.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	traceFile := rotatingFile(filepath.Join(opts.Dir, "traces.log"))
	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(traceFile))
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)

	metricsFile := rotatingFile(filepath.Join(opts.Dir, "metrics.log"))
	metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(metricsFile))
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter,
			sdkmetric.WithInterval(opts.MetricInterval))),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		return errors.Join(
			tp.Shutdown(ctx),
			mp.Shutdown(ctx),
			traceFile.Close(),
			metricsFile.Close(),
		)
	}, nil
}

func rotatingFile(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
}
