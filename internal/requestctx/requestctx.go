// Package requestctx carries per-request values used by logging and auditing.
// Handlers receive the caller identity explicitly; the copy stored here is read-only metadata.
package requestctx

import (
	"context"

	"github.com/aryan0dhankhar/visiongate/internal/security/auth"
)

type requestIDKey struct{}
type identityKey struct{}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request id or an empty string
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

func WithIdentity(ctx context.Context, identity auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

func Identity(ctx context.Context) (auth.Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(auth.Identity)
	return identity, ok
}
