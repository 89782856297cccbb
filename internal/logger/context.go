package logger

import "context"

// Standard field keys, kept protocol/component agnostic the way
// marmos91/dittofs's internal/logger/fields.go keeps NFS/SMB keys
// agnostic across protocols.
const (
	KeyPath      = "path"
	KeyComponent = "component"
	KeyKind      = "kind"
	KeyState     = "state"
	KeyAttempt   = "attempt"
	KeyBytes     = "bytes"
	KeyError     = "error"
)

type contextKey struct{}

var logContextKey = contextKey{}

// LogContext carries request-scoped fields (which path, which
// component) through a call chain so log lines stay correlated without
// every function threading extra parameters.
type LogContext struct {
	Path      string
	Component string
}

// WithContext attaches lc to ctx.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext previously attached to ctx, or
// nil if none is present.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}
