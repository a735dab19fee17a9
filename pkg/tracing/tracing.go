package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "bintunet"

var (
	userIDKey    = attribute.Key("user.id")
	streamIDKey  = attribute.Key("stream.id")
	operationKey = attribute.Key("stream.operation")
	backendKey   = attribute.Key("storage.backend")
)

// Provider owns the process-wide tracer provider. A disabled Provider is a
// no-op and spans fall through to the global noop tracer.
type Provider struct {
	tp *tracesdk.TracerProvider
}

type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	JaegerURL      string
	Environment    string
	SampleRate     float64
}

func DefaultConfig() Config {
	return Config{
		ServiceName:    "bintunet",
		ServiceVersion: "dev",
		JaegerURL:      "http://localhost:14268/api/traces",
		Environment:    "development",
		SampleRate:     1.0,
	}
}

// Init installs a Jaeger-backed provider and the W3C propagators as the
// otel globals.
func Init(cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{}, nil
	}

	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.JaegerURL)))
	if err != nil {
		return nil, fmt.Errorf("failed to create jaeger exporter: %w", err)
	}

	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}

	tp := tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(res),
		tracesdk.WithSampler(tracesdk.ParentBased(tracesdk.TraceIDRatioBased(cfg.SampleRate))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{tp: tp}, nil
}

func newResource(cfg Config) (*resource.Resource, error) {
	version := cfg.ServiceVersion
	if version == "" {
		version = "dev"
	}
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(version),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace resource: %w", err)
	}
	return res, nil
}

// Shutdown flushes buffered spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

func start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordError marks the span in ctx as failed.
func RecordError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func TraceHTTPRequest(ctx context.Context, method, route string) (context.Context, trace.Span) {
	return start(ctx, "http."+method,
		semconv.HTTPMethodKey.String(method),
		semconv.HTTPRouteKey.String(route),
	)
}

// TraceWebSocketMessage spans one event pushed to a user's connections.
func TraceWebSocketMessage(ctx context.Context, eventType, userID string) (context.Context, trace.Span) {
	return start(ctx, "websocket."+eventType,
		attribute.String("websocket.message_type", eventType),
		userIDKey.String(userID),
	)
}

// TraceStreamOperation spans a lifecycle engine command. streamID may be
// empty for commands that act on the whole registry.
func TraceStreamOperation(ctx context.Context, operation, userID, streamID string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{operationKey.String(operation), userIDKey.String(userID)}
	if streamID != "" {
		attrs = append(attrs, streamIDKey.String(streamID))
	}
	return start(ctx, "stream."+operation, attrs...)
}

// TraceStoreOperation spans a call into the stream store backend.
func TraceStoreOperation(ctx context.Context, operation, backend, userID string) (context.Context, trace.Span) {
	return start(ctx, "store."+operation,
		attribute.String("db.operation", operation),
		backendKey.String(backend),
		userIDKey.String(userID),
	)
}
