// Package telemetry wires up structured logging and OpenTelemetry for the
// chat applications. Traces and metrics are exported to rotated files under
// ./logs so an OTEL collector can still pick them up via the SDK.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// InitLogger initializes structured logging with rotation
func InitLogger(name string) (*slog.Logger, error) {
	logDir := "logs"
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	logFile := filepath.Join(logDir, name+".log")

	lumberjackLogger := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    10, // 10 MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}

	// Log only to file, not to stdout
	handler := slog.NewJSONHandler(lumberjackLogger, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger, nil
}

// InitTelemetry initializes OpenTelemetry tracing and metrics for the named
// service. Traces and metrics land in rotated files under ./logs.
func InitTelemetry(ctx context.Context, service string) (trace.Tracer, metric.Meter, func(), error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(service),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create resource: %w", err)
	}

	logDir := "logs"
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	traceFile := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, service+"_traces.log"),
		MaxSize:    10, // 10 MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}

	traceExporter, err := stdouttrace.New(
		stdouttrace.WithWriter(traceFile),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricsFile := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, service+"_metrics.log"),
		MaxSize:    10, // 10 MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}

	metricExporter, err := stdoutmetric.New(
		stdoutmetric.WithWriter(metricsFile),
		stdoutmetric.WithPrettyPrint(),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(
				metricExporter,
				sdkmetric.WithInterval(10*time.Second),
			),
		),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	tracer := tp.Tracer(service)
	meter := mp.Meter(service)

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown tracer provider", "error", err)
		}
		if err := mp.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown meter provider", "error", err)
		}
		if err := traceFile.Close(); err != nil {
			slog.Error("failed to close trace file", "error", err)
		}
		if err := metricsFile.Close(); err != nil {
			slog.Error("failed to close metrics file", "error", err)
		}
	}

	return tracer, meter, cleanup, nil
}
