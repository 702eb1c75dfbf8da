package session

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestUserRoundTrip(t *testing.T) {
	id := uuid.New()
	ctx := WithUser(context.Background(), id, "pat@example.com")

	got, ok := UserIDFromContext(ctx)
	if !ok {
		t.Fatal("expected user id in context")
	}
	if got != id {
		t.Errorf("got %s, want %s", got, id)
	}
	if email := EmailFromContext(ctx); email != "pat@example.com" {
		t.Errorf("got email %q", email)
	}
}

func TestClientInfoRoundTrip(t *testing.T) {
	ctx := WithClientInfo(context.Background(), "203.0.113.9", "curl/8.5.0")

	if ip := ClientIPFromContext(ctx); ip != "203.0.113.9" {
		t.Errorf("got ip %q", ip)
	}
	if ua := UserAgentFromContext(ctx); ua != "curl/8.5.0" {
		t.Errorf("got user agent %q", ua)
	}
	if ip := ClientIPFromContext(context.Background()); ip != "" {
		t.Errorf("expected empty ip, got %q", ip)
	}
}

func TestMissingUser(t *testing.T) {
	if _, ok := UserIDFromContext(context.Background()); ok {
		t.Error("expected no user id in empty context")
	}
	if email := EmailFromContext(context.Background()); email != "" {
		t.Errorf("expected empty email, got %q", email)
	}
}
