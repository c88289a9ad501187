package requestctx

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/marketcart/api/internal/domain"
)

type contextKey string

const (
	loggerContextKey contextKey = "github.com/marketcart/api/internal/platform/requestctx/logger"
	traceContextKey  contextKey = "github.com/marketcart/api/internal/platform/requestctx/trace"
	callerContextKey contextKey = "github.com/marketcart/api/internal/platform/requestctx/caller"
)

var noopLogger = zap.NewNop()

// TraceInfo captures trace metadata propagated through request context.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// WithLogger stores the logger in context for downstream consumers.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerContextKey, logger)
}

// Logger retrieves the zap logger from context or returns a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerContextKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// WithLoggerFields returns a context whose logger carries the extra fields.
func WithLoggerFields(ctx context.Context, fields ...zap.Field) context.Context {
	if len(fields) == 0 {
		return ctx
	}
	return WithLogger(ctx, Logger(ctx).With(fields...))
}

// NoopLogger exposes the shared noop logger instance used across the package.
func NoopLogger() *zap.Logger { return noopLogger }

// WithTrace stores the trace metadata on the context for downstream usage.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceContextKey, info)
}

// Trace retrieves the trace metadata from context when available.
func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceContextKey).(TraceInfo)
	if !ok {
		return TraceInfo{}, false
	}
	return info, true
}

// TraceID extracts the trace identifier from context when present.
func TraceID(ctx context.Context) string {
	info, ok := Trace(ctx)
	if !ok {
		return ""
	}
	return info.TraceID
}

type callerSlot struct {
	actor atomic.Pointer[domain.Actor]
}

// WithCallerSlot reserves room for the verified caller. Middleware outside the authenticator
// installs it so it can read the caller back after the handler chain returns.
func WithCallerSlot(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, callerContextKey, &callerSlot{})
}

// SetCaller records the verified caller in the slot installed upstream, if any.
func SetCaller(ctx context.Context, actor domain.Actor) {
	if ctx == nil {
		return
	}
	if slot, ok := ctx.Value(callerContextKey).(*callerSlot); ok {
		slot.actor.Store(&actor)
	}
}

// Caller returns the verified caller recorded for this request.
func Caller(ctx context.Context) (domain.Actor, bool) {
	if ctx == nil {
		return domain.Actor{}, false
	}
	slot, ok := ctx.Value(callerContextKey).(*callerSlot)
	if !ok {
		return domain.Actor{}, false
	}
	actor := slot.actor.Load()
	if actor == nil {
		return domain.Actor{}, false
	}
	return *actor, true
}
