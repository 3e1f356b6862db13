package assembler

import (
	"context"
	"log/slog"
)

// ErrorObserver is notified of internal errors raised while assembling a
// record. Such errors never reach the logged call.
type ErrorObserver interface {
	ObserveError(ctx context.Context, operation string, err error)
}

// ObserverFunc adapts a function to ErrorObserver.
type ObserverFunc func(ctx context.Context, operation string, err error)

// ObserveError implements ErrorObserver.
func (f ObserverFunc) ObserveError(ctx context.Context, operation string, err error) {
	f(ctx, operation, err)
}

type logObserver struct {
	log *slog.Logger
}

// LogObserver reports errors to log at warn level.
func LogObserver(log *slog.Logger) ErrorObserver {
	return &logObserver{log: log}
}

func (o *logObserver) ObserveError(ctx context.Context, operation string, err error) {
	o.log.WarnContext(ctx, "audit record degraded", "operation", operation, "error", err)
}
