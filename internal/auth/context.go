package auth

import (
	"context"
	"strings"
)

type ctxKey string

const (
	userIDKey ctxKey = "auth_user_id"
	roleKey   ctxKey = "auth_role"
)

// ContextWithUser stores the authenticated identity in the context.
func ContextWithUser(ctx context.Context, userID, role string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, strings.TrimSpace(userID))
	return context.WithValue(ctx, roleKey, strings.TrimSpace(role))
}

// UserFromContext extracts the authenticated user id and role.
func UserFromContext(ctx context.Context) (userID, role string, ok bool) {
	if ctx == nil {
		return "", "", false
	}
	id, okID := ctx.Value(userIDKey).(string)
	r, okRole := ctx.Value(roleKey).(string)
	if !okID || !okRole || id == "" || r == "" {
		return "", "", false
	}
	return id, r, true
}
