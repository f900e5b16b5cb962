// Package otelhooks records socketdispatch occurrences with OpenTelemetry.
//
// Each occurrence gets one span, started when it is received and ended by
// its terminal hook, plus the following instruments:
//
//	socketdispatch.invocations   counter, every received occurrence
//	socketdispatch.failures      counter, occurrences that ended in an error
//	socketdispatch.rejections    counter, reason=validation|lock
//	socketdispatch.latency_ms    histogram, dispatched occurrences
package otelhooks

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/bjaus/socketdispatch"
)

const scope = "github.com/bjaus/socketdispatch"

// Recorder owns the instruments and tracer.
type Recorder struct {
	tracer      trace.Tracer
	invocations metric.Int64Counter
	failures    metric.Int64Counter
	rejections  metric.Int64Counter
	latency     metric.Float64Histogram
}

// New creates the instruments on meter. Nil arguments fall back to the global
// providers.
func New(meter metric.Meter, tracer trace.Tracer) (*Recorder, error) {
	if meter == nil {
		meter = otel.Meter(scope)
	}
	if tracer == nil {
		tracer = otel.Tracer(scope)
	}

	invocations, err := meter.Int64Counter("socketdispatch.invocations",
		metric.WithDescription("Number of received socket events"),
	)
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter("socketdispatch.failures",
		metric.WithDescription("Number of socket events that ended in an error"),
	)
	if err != nil {
		return nil, err
	}

	rejections, err := meter.Int64Counter("socketdispatch.rejections",
		metric.WithDescription("Number of socket events rejected before dispatch"),
	)
	if err != nil {
		return nil, err
	}

	latency, err := meter.Float64Histogram("socketdispatch.latency_ms",
		metric.WithDescription("Socket event latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Recorder{
		tracer:      tracer,
		invocations: invocations,
		failures:    failures,
		rejections:  rejections,
		latency:     latency,
	}, nil
}

// Options returns the dispatcher hooks that feed the recorder.
func (r *Recorder) Options() []socketdispatch.Option {
	return []socketdispatch.Option{
		socketdispatch.WithOnReceive(r.onReceive),
		socketdispatch.WithOnSuccess(r.onSuccess),
		socketdispatch.WithOnFailure(r.onFailure),
		socketdispatch.WithOnValidationError(r.onValidationError),
		socketdispatch.WithOnLockRejected(r.onLockRejected),
	}
}

func eventAttr(event string) attribute.KeyValue {
	return attribute.String("event", event)
}

func (r *Recorder) onReceive(ctx context.Context, c socketdispatch.Conn, event string) context.Context {
	r.invocations.Add(ctx, 1, metric.WithAttributes(eventAttr(event)))
	ctx, _ = r.tracer.Start(ctx, "socketdispatch.event",
		trace.WithAttributes(
			eventAttr(event),
			attribute.String("conn.id", c.ID()),
		),
		trace.WithSpanKind(trace.SpanKindServer),
	)
	return ctx
}

func (r *Recorder) onSuccess(ctx context.Context, _ socketdispatch.Conn, event string, d time.Duration) {
	r.latency.Record(ctx, float64(d.Milliseconds()), metric.WithAttributes(eventAttr(event), attribute.Bool("success", true)))
	span := trace.SpanFromContext(ctx)
	span.SetStatus(codes.Ok, "")
	span.End()
}

func (r *Recorder) onFailure(ctx context.Context, _ socketdispatch.Conn, event string, err error, d time.Duration) {
	attrs := metric.WithAttributes(eventAttr(event))
	r.failures.Add(ctx, 1, attrs)
	r.latency.Record(ctx, float64(d.Milliseconds()), metric.WithAttributes(eventAttr(event), attribute.Bool("success", false)))

	span := trace.SpanFromContext(ctx)
	var tok socketdispatch.Token
	if errors.As(err, &tok) {
		// Tokens are expected outcomes reported to the caller.
		span.SetAttributes(attribute.String("token", string(tok)))
	} else {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (r *Recorder) onValidationError(ctx context.Context, _ socketdispatch.Conn, event string, err *socketdispatch.ValidationError) {
	r.rejections.Add(ctx, 1, metric.WithAttributes(eventAttr(event), attribute.String("reason", "validation")))
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("rejection", "validation"))
	span.AddEvent("validation failed", trace.WithAttributes(attribute.String("message", err.Error())))
	span.End()
}

func (r *Recorder) onLockRejected(ctx context.Context, _ socketdispatch.Conn, event string, inFlight []string) {
	r.rejections.Add(ctx, 1, metric.WithAttributes(eventAttr(event), attribute.String("reason", "lock")))
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("rejection", "lock"),
		attribute.StringSlice("in_flight", inFlight),
	)
	span.End()
}
