// Package tracing configures the process-wide OpenTelemetry tracer provider.
// Remote tier calls, hook invocations and API requests create spans through
// otel.Tracer; with tracing disabled those spans are no-ops.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"

	"github.com/goclaw/memkeeper/config"
	"github.com/goclaw/memkeeper/pkg/logger"
)

const defaultServiceName = "memkeeper"

// failureLogInterval spaces out repeated "export failed" warnings from a
// long-running serve process whose collector is down.
const failureLogInterval = time.Minute

// ShutdownFunc flushes pending spans and releases the provider.
type ShutdownFunc func(ctx context.Context) error

// collector is a parsed OTLP endpoint.
type collector struct {
	hostPort string
	insecure bool
}

// parseCollector accepts "host:port" (plaintext), "http://host:port"
// (plaintext) and "https://host:port" (TLS).
func parseCollector(raw string) (collector, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return collector{}, errors.New("tracing endpoint is empty")
	}
	if !strings.Contains(raw, "://") {
		return collector{hostPort: raw, insecure: true}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return collector{}, fmt.Errorf("parse tracing endpoint: %w", err)
	}
	if u.Host == "" {
		return collector{}, fmt.Errorf("tracing endpoint %q has no host", raw)
	}
	switch u.Scheme {
	case "http":
		return collector{hostPort: u.Host, insecure: true}, nil
	case "https":
		return collector{hostPort: u.Host}, nil
	default:
		return collector{}, fmt.Errorf("tracing endpoint scheme %q is not supported", u.Scheme)
	}
}

var newExporter = func(ctx context.Context, c collector, cfg config.TracingConfig) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(c.hostPort),
		otlptracegrpc.WithTimeout(cfg.Timeout),
	}
	if c.insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
	}
	return otlptracegrpc.New(ctx, opts...)
}

// quietExporter swallows export errors so an unreachable collector never
// fails a hook or an API request. Failures are counted and logged at most
// once per failureLogInterval.
type quietExporter struct {
	sdktrace.SpanExporter
	endpoint string
	log      logger.Logger
	dropped  atomic.Int64
	every    rate.Sometimes
}

func newQuietExporter(exp sdktrace.SpanExporter, endpoint string, log logger.Logger) *quietExporter {
	return &quietExporter{
		SpanExporter: exp,
		endpoint:     endpoint,
		log:          log,
		every:        rate.Sometimes{First: 1, Interval: failureLogInterval},
	}
}

func (e *quietExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	err := e.SpanExporter.ExportSpans(ctx, spans)
	if err == nil {
		return nil
	}
	total := e.dropped.Add(int64(len(spans)))
	e.every.Do(func() {
		e.log.Warn("span export failed",
			"error", err,
			"endpoint", e.endpoint,
			"spans", len(spans),
			"dropped_total", total,
		)
	})
	return nil
}

func setPropagator() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

// Init installs the global tracer provider and W3C propagators. When tracing
// is disabled a no-op provider is installed and the returned ShutdownFunc
// does nothing.
func Init(ctx context.Context, cfg config.TracingConfig, serviceVersion string, log logger.Logger) (ShutdownFunc, error) {
	if log == nil {
		log = logger.Global()
	}
	setPropagator()

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}
	if cfg.Timeout <= 0 {
		return nil, errors.New("tracing timeout must be positive")
	}

	c, err := parseCollector(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	exp, err := newExporter(ctx, c, cfg)
	if err != nil {
		return nil, fmt.Errorf("create tracing exporter: %w", err)
	}
	quiet := newQuietExporter(exp, c.hostPort, log.With("component", "tracing"))

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		_ = exp.Shutdown(ctx)
		return nil, fmt.Errorf("create tracing resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(quiet),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg)),
	)
	otel.SetTracerProvider(tp)

	log.Debug("tracing enabled", "endpoint", c.hostPort, "tls", !c.insecure, "service", serviceName)

	return func(ctx context.Context) error {
		flushErr := tp.ForceFlush(ctx)
		if err := tp.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown tracing provider: %w", err)
		}
		if flushErr != nil {
			return fmt.Errorf("flush spans: %w", flushErr)
		}
		return nil
	}, nil
}

func sampler(cfg config.TracingConfig) sdktrace.Sampler {
	switch strings.ToLower(strings.TrimSpace(cfg.Sampler)) {
	case "always_on":
		return sdktrace.AlwaysSample()
	case "always_off":
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))
	}
}
