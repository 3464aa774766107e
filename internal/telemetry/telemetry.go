// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// ServiceName identifies ragchat in exported telemetry.
const ServiceName = "ragchat"

// Config controls telemetry export.
type Config struct {
	Enabled bool

	// Dir receives ragchat_metrics.log and ragchat_traces.log.
	Dir string

	// Interval between metric exports (default: 30s).
	Interval time.Duration

	// Version is reported as the service version.
	Version string
}

// Provider owns the OpenTelemetry providers.
type Provider struct {
	tracer   trace.Tracer
	metrics  *Metrics
	shutdown []func(context.Context) error
}

// Noop returns a provider that records nothing except the in-memory tally.
func Noop() *Provider {
	return &Provider{
		tracer:  tracenoop.NewTracerProvider().Tracer(ServiceName),
		metrics: NopMetrics(),
	}
}

// Setup builds providers from cfg. A disabled config yields Noop().
func Setup(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return Noop(), nil
	}
	if cfg.Dir == "" {
		return nil, errors.New("telemetry: output directory is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	if err := os.MkdirAll(cfg.Dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create telemetry directory: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(cfg.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	traceFile := rotatingFile(filepath.Join(cfg.Dir, "ragchat_traces.log"))
	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(traceFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)

	metricsFile := rotatingFile(filepath.Join(cfg.Dir, "ragchat_metrics.log"))
	metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(metricsFile))
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(cfg.Interval)),
		),
		sdkmetric.WithResource(res),
	)

	metrics, err := NewMetrics(mp.Meter(ServiceName))
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, err
	}

	return &Provider{
		tracer:  tp.Tracer(ServiceName),
		metrics: metrics,
		shutdown: []func(context.Context) error{
			tp.Shutdown,
			mp.Shutdown,
			func(context.Context) error { return traceFile.Close() },
			func(context.Context) error { return metricsFile.Close() },
		},
	}, nil
}

// Tracer returns the session tracer.
func (p *Provider) Tracer() trace.Tracer {
	return p.tracer
}

// Metrics returns the session metrics.
func (p *Provider) Metrics() *Metrics {
	return p.metrics
}

// Shutdown flushes pending telemetry and closes the output files.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range p.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	p.shutdown = nil
	return errors.Join(errs...)
}

func rotatingFile(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
}

// noopMeter backs NopMetrics.
var noopMeter = metricnoop.NewMeterProvider().Meter(ServiceName)
