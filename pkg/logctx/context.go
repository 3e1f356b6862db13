package logctx

import (
	"context"
)

// stackKey is an unexported context key type.
type stackKey struct{}
type metaKey struct{}

type meta struct {
	operator string
}

// WithStack attaches s to the context.
func WithStack(ctx context.Context, s *Stack) context.Context {
	return context.WithValue(ctx, stackKey{}, s)
}

// FromContext returns the stack attached to ctx, or nil.
func FromContext(ctx context.Context) *Stack {
	if s, ok := ctx.Value(stackKey{}).(*Stack); ok {
		return s
	}
	return nil
}

// Put binds name in the innermost frame of the stack carried by ctx, making
// it visible to the templates of the running invocation. It reports false
// when ctx carries no open frame.
func Put(ctx context.Context, name string, v any) bool {
	s := FromContext(ctx)
	if s == nil {
		return false
	}
	return s.Put(name, v) == nil
}

// WithOperator attaches the identifier of the acting user or system.
func WithOperator(ctx context.Context, v string) context.Context {
	m := extractMeta(ctx)
	m.operator = v
	return context.WithValue(ctx, metaKey{}, m)
}

// Operator returns the operator attached with WithOperator.
func Operator(ctx context.Context) string {
	return extractMeta(ctx).operator
}

func extractMeta(ctx context.Context) meta {
	if v := ctx.Value(metaKey{}); v != nil {
		if m, ok := v.(meta); ok {
			return m
		}
	}
	return meta{}
}
