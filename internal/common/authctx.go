package common

import "context"

type contextKey struct{ name string }

var userIDKey = contextKey{"user-id"}

// WithUserID attaches the authenticated user's identifier to the context.
// Company scope travels separately through the tenant package.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID returns the authenticated user identifier, if any.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}
