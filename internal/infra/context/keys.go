// Package context holds typed request-scoped values shared between middleware and handlers.
package context

type contextKey string

const (
	contextKeyTraceID  = contextKey("traceID")
	contextKeyIdentity = contextKey("identity")
)
