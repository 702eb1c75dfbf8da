// Package session carries the authenticated user through request context.
package session

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

const (
	userIDKey    ctxKey = "session.user_id"
	emailKey     ctxKey = "session.email"
	clientIPKey  ctxKey = "session.client_ip"
	userAgentKey ctxKey = "session.user_agent"
)

// WithUser returns a context carrying the authenticated user's id and email.
func WithUser(ctx context.Context, userID uuid.UUID, email string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, emailKey, email)
}

// UserIDFromContext extracts the authenticated user id, if present.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}

// EmailFromContext extracts the authenticated user's email, or "".
func EmailFromContext(ctx context.Context) string {
	email, _ := ctx.Value(emailKey).(string)
	return email
}

// WithClientInfo returns a context carrying the request's client address and
// user agent for audit trails.
func WithClientInfo(ctx context.Context, ip, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey, ip)
	return context.WithValue(ctx, userAgentKey, userAgent)
}

// ClientIPFromContext extracts the client address, or "".
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}

// UserAgentFromContext extracts the client user agent, or "".
func UserAgentFromContext(ctx context.Context) string {
	ua, _ := ctx.Value(userAgentKey).(string)
	return ua
}
