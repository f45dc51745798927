package session

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/agentuity/go-cellular/logger"
	"github.com/agentuity/go-cellular/status"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/agentuity/go-cellular/session"

// stage runs fn inside a child span named after the pipeline step.
func stage[T any](ctx context.Context, tracer trace.Tracer, name string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := tracer.Start(ctx, name)
	defer span.End()
	v, err := fn(ctx)
	if err != nil {
		st := status.Of(err)
		span.RecordError(err)
		span.SetAttributes(attribute.String("cellular.status", st.String()))
		span.SetStatus(codes.Error, st.String())
	}
	return v, err
}

// tracef logs at debug with the caller's file:line in front.
func tracef(log logger.Logger, format string, args ...interface{}) {
	if _, file, line, ok := runtime.Caller(1); ok {
		format = fmt.Sprintf("%s:%d ", filepath.Base(file), line) + format
	}
	log.Debug(format, args...)
}
