package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/zhouzirui/lifeline/backend/internal/agent"
	"github.com/zhouzirui/lifeline/backend/internal/config"
)

const tracerName = "github.com/zhouzirui/lifeline/backend/internal/agent"

// Tracing owns the tracer provider. A disabled instance hands out no-op tracers.
type Tracing struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// SetupTracing exports spans to a Jaeger collector when tracing is enabled.
func SetupTracing(cfg config.ObservabilityConfig) (*Tracing, error) {
	if !cfg.TracingEnabled {
		return &Tracing{tracer: noop.NewTracerProvider().Tracer(tracerName)}, nil
	}

	endpoint := cfg.JaegerEndpoint
	if endpoint == "" {
		endpoint = "http://localhost:14268/api/traces"
	}
	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(endpoint)))
	if err != nil {
		return nil, fmt.Errorf("jaeger exporter: %w", err)
	}
	return NewTracing(sdktrace.WithBatcher(exporter), cfg.ServiceName), nil
}

// NewTracing builds a provider around the given span processor option.
func NewTracing(processor sdktrace.TracerProviderOption, serviceName string) *Tracing {
	if serviceName == "" {
		serviceName = "lifeline"
	}
	tp := sdktrace.NewTracerProvider(
		processor,
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	)
	otel.SetTracerProvider(tp)
	return &Tracing{provider: tp, tracer: tp.Tracer(tracerName)}
}

func (t *Tracing) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// TurnStarted opens the turn span; stage spans become its children.
func (t *Tracing) TurnStarted(ctx context.Context, sessionID, question string) context.Context {
	ctx, _ = t.tracer.Start(ctx, "agent.ProcessMessage",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.Int("question.length", len(question)),
		))
	return ctx
}

// StageCompleted records the stage after the fact using its start time.
func (t *Tracing) StageCompleted(ctx context.Context, ev agent.StageEvent) {
	_, span := t.tracer.Start(ctx, "agent.stage."+ev.Stage.String(),
		trace.WithTimestamp(ev.Started),
		trace.WithAttributes(
			attribute.String("intent", string(ev.Intent)),
			attribute.StringSlice("tools", ev.Tools),
		))
	span.End(trace.WithTimestamp(ev.Started.Add(ev.Elapsed)))
}

func (t *Tracing) TurnFinished(ctx context.Context, res agent.Result, _ time.Duration) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("intent", string(res.Intent)),
		attribute.Bool("success", res.Success),
		attribute.StringSlice("tools", res.ToolsUsed),
	)
	if !res.Success {
		span.SetStatus(codes.Error, res.Reasoning)
	}
	span.End()
}
