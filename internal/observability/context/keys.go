// Package context carries request-scoped identity used by logging and the
// audit trail, without importing either.
package context

import "context"

type requestIDKey struct{}
type userIDKey struct{}
type actorKey struct{}

type actor struct {
	kind string
	id   string
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

func WithUserID(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDKey{}, userID)
}

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(userIDKey{}).(string)
	return value
}

// WithActor records who performs the current operation: an api_key, a
// signer, a webhook provider, or the system itself.
func WithActor(ctx context.Context, kind, id string) context.Context {
	if kind == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, actor{kind: kind, id: id})
}

func ActorFromContext(ctx context.Context) (kind, id string) {
	if ctx == nil {
		return "", ""
	}
	value, _ := ctx.Value(actorKey{}).(actor)
	return value.kind, value.id
}
