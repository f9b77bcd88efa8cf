package observability

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const upstreamTracerName = "ciattest/upstream"

type contextKey string

const (
	requestIDKey  contextKey = "observability.request_id"
	routeKey      contextKey = "observability.route"
	deliveryIDKey contextKey = "observability.delivery_id"
	jobNumberKey  contextKey = "observability.job_number"
)

// Span is the application-level tracing span contract.
type Span interface {
	End()
	RecordError(error)
}

type otelSpan struct {
	inner trace.Span
}

// StartUpstreamSpan starts a client span for one call to an upstream API.
func StartUpstreamSpan(ctx context.Context, system, operation string, attrs ...attribute.KeyValue) (context.Context, Span) {
	operation = strings.TrimSpace(operation)
	if operation == "" {
		operation = "unknown"
	}
	attrs = append(attrs,
		attribute.String("upstream.system", system),
		attribute.String("upstream.operation", operation),
	)
	if job, ok := JobNumberFromContext(ctx); ok {
		attrs = append(attrs, attribute.Int("ci.job.number", job))
	}

	ctx, span := otel.Tracer(upstreamTracerName).Start(ctx, system+"."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	return ctx, otelSpan{inner: span}
}

// WithRequestMetadata enriches context and current span with request metadata.
func WithRequestMetadata(ctx context.Context, requestID, route string) context.Context {
	requestID = strings.TrimSpace(requestID)
	route = strings.TrimSpace(route)
	if requestID != "" {
		ctx = context.WithValue(ctx, requestIDKey, requestID)
	}
	if route != "" {
		ctx = context.WithValue(ctx, routeKey, route)
	}
	setSpanAttributes(ctx,
		attribute.String("request.id", requestID),
		attribute.String("http.route", route),
	)
	return ctx
}

// WithDelivery tags context with the webhook delivery being processed.
func WithDelivery(ctx context.Context, deliveryID string, jobNumber int) context.Context {
	deliveryID = strings.TrimSpace(deliveryID)
	if deliveryID != "" {
		ctx = context.WithValue(ctx, deliveryIDKey, deliveryID)
	}
	if jobNumber > 0 {
		ctx = context.WithValue(ctx, jobNumberKey, jobNumber)
	}
	attrs := []attribute.KeyValue{attribute.String("ci.delivery.id", deliveryID)}
	if jobNumber > 0 {
		attrs = append(attrs, attribute.Int("ci.job.number", jobNumber))
	}
	setSpanAttributes(ctx, attrs...)
	return ctx
}

// RequestIDFromContext extracts request id.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(requestIDKey).(string)
	value = strings.TrimSpace(value)
	return value, ok && value != ""
}

// RouteFromContext extracts normalized route path.
func RouteFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(routeKey).(string)
	value = strings.TrimSpace(value)
	return value, ok && value != ""
}

// DeliveryIDFromContext extracts the webhook delivery id.
func DeliveryIDFromContext(ctx context.Context) (string, bool) {
	value, ok := ctx.Value(deliveryIDKey).(string)
	return value, ok && value != ""
}

// JobNumberFromContext extracts the CI job number.
func JobNumberFromContext(ctx context.Context) (int, bool) {
	value, ok := ctx.Value(jobNumberKey).(int)
	return value, ok && value > 0
}

func setSpanAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if attr.Value.Type() == attribute.STRING && attr.Value.AsString() == "" {
			continue
		}
		filtered = append(filtered, attr)
	}
	if len(filtered) > 0 {
		span.SetAttributes(filtered...)
	}
}

func (s otelSpan) End() {
	if s.inner == nil {
		return
	}
	s.inner.End()
}

func (s otelSpan) RecordError(err error) {
	if s.inner == nil || err == nil {
		return
	}
	s.inner.RecordError(err)
	s.inner.SetStatus(codes.Error, err.Error())
}
