package middleware

import (
	"context"
	"strconv"
)

// ctxKey is used for storing values in request context.
type ctxKey string

const (
	userKey   ctxKey = "user"
	claimsKey ctxKey = "claims"
)

// ClaimsKey returns the context key used to store JWT claims.
func ClaimsKey() any { return claimsKey }

// WithUser returns a copy of ctx carrying the user subject.
func WithUser(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, userKey, sub)
}

// UserFromContext returns the user subject stored in the context.
func UserFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userKey).(string); ok {
		return v
	}
	return ""
}

// UserIDFromContext returns the numeric user id, or 0 when absent.
func UserIDFromContext(ctx context.Context) int64 {
	id, err := strconv.ParseInt(UserFromContext(ctx), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
