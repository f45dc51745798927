// Package telemetry sets up OpenTelemetry tracing for the cellular tools. Spans are written to a
// logger rather than shipped to a collector.
package telemetry

import (
	"context"
	"time"

	"github.com/agentuity/go-cellular/logger"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"
)

type ShutdownFunc func()

// New returns a tracer provider that logs every ended span at debug level.
func New(ctx context.Context, serviceName string, log logger.Logger) (trace.TracerProvider, ShutdownFunc, error) {
	res, err := resource.New(
		ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithProcess(),
		resource.WithHost(),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if errors.Is(err, resource.ErrPartialResource) || errors.Is(err, resource.ErrSchemaURLConflict) {
		log.Warn("incomplete telemetry resource: %v", err)
	} else if err != nil {
		return nil, nil, errors.Wrap(err, "error creating resource")
	}
	if res == nil {
		res = resource.Default()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(&logExporter{logger: log.WithPrefix("[otel]")})),
	)
	return tp, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		tp.Shutdown(ctx)
	}, nil
}

// StartSpan starts a span and returns a logger tagged with its trace and span ids.
func StartSpan(ctx context.Context, log logger.Logger, tracer trace.Tracer, name string, opts ...trace.SpanStartOption) (context.Context, logger.Logger, trace.Span) {
	ctx, span := tracer.Start(ctx, name, opts...)
	sc := span.SpanContext()
	if sc.IsValid() {
		log = log.With(map[string]interface{}{
			"trace_id": sc.TraceID().String(),
			"span_id":  sc.SpanID().String(),
		})
	}
	return ctx, log, span
}

type logExporter struct {
	logger logger.Logger
}

var _ sdktrace.SpanExporter = (*logExporter)(nil)

func (e *logExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		line := s.Name() + " " + s.EndTime().Sub(s.StartTime()).Round(time.Microsecond).String()
		if s.Status().Code == codes.Error {
			line += " error=" + s.Status().Description
		}
		for _, kv := range s.Attributes() {
			if kv.Value.Type() == attribute.INVALID {
				continue
			}
			line += " " + string(kv.Key) + "=" + kv.Value.Emit()
		}
		e.logger.Debug("span %s trace=%s", line, s.SpanContext().TraceID())
	}
	return nil
}

func (e *logExporter) Shutdown(ctx context.Context) error {
	return nil
}
