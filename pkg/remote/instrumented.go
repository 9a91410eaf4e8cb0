package remote

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/goclaw/memkeeper/pkg/memory"
	"github.com/goclaw/memkeeper/pkg/metrics"
)

const tracerName = "github.com/goclaw/memkeeper/pkg/remote"

// Instrumented records metrics and a trace span for every call.
type Instrumented struct {
	next    Client
	metrics *metrics.Manager
	tracer  trace.Tracer
}

// NewInstrumented wraps next. A nil manager disables metrics.
func NewInstrumented(next Client, m *metrics.Manager) *Instrumented {
	if m == nil {
		m = metrics.NoOpManager()
	}
	return &Instrumented{next: next, metrics: m, tracer: otel.Tracer(tracerName)}
}

// Search implements Client.
func (c *Instrumented) Search(ctx context.Context, query string, limit int) ([]memory.RemoteRecord, error) {
	ctx, span := c.tracer.Start(ctx, "remote.search", trace.WithAttributes(attribute.Int("limit", limit)))
	start := time.Now()
	recs, err := c.next.Search(ctx, query, limit)
	c.finish(ctx, span, "search", start, err)
	return recs, err
}

// List implements Client.
func (c *Instrumented) List(ctx context.Context, limit int) ([]memory.RemoteRecord, error) {
	ctx, span := c.tracer.Start(ctx, "remote.list", trace.WithAttributes(attribute.Int("limit", limit)))
	start := time.Now()
	recs, err := c.next.List(ctx, limit)
	c.finish(ctx, span, "list", start, err)
	return recs, err
}

// Create implements Client.
func (c *Instrumented) Create(ctx context.Context, rec memory.Record) (string, error) {
	ctx, span := c.tracer.Start(ctx, "remote.create", trace.WithAttributes(attribute.String("category", string(rec.Category))))
	start := time.Now()
	id, err := c.next.Create(ctx, rec)
	c.finish(ctx, span, "create", start, err)
	return id, err
}

// Close implements Client.
func (c *Instrumented) Close() error {
	return c.next.Close()
}

func (c *Instrumented) finish(ctx context.Context, span trace.Span, op string, start time.Time, err error) {
	if err != nil && IsNotConfigured(err) {
		span.End()
		return
	}
	c.metrics.RecordRemoteCall(ctx, op, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
