package logger

import "context"

type contextKey struct {
	name string
}

var loggerKey = &contextKey{name: "logger"}

// NewContext returns a copy of ctx carrying log. Components shared between calls log through
// it so their lines follow the call that triggered them.
func NewContext(ctx context.Context, log Logger) context.Context {
	return context.WithValue(ctx, loggerKey, log)
}

// FromContext returns the logger set with NewContext.
func FromContext(ctx context.Context) (Logger, bool) {
	log, ok := ctx.Value(loggerKey).(Logger)
	return log, ok
}
