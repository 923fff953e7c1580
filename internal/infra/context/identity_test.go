package context_test

import (
	"context"
	"testing"

	"github.com/mkrupp/tokenauth/internal/domain"
	context_ "github.com/mkrupp/tokenauth/internal/infra/context"
)

func TestIdentityFromContext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	if _, ok := context_.IdentityFromContext(ctx); ok {
		t.Fatal("empty context must be anonymous")
	}

	ctx = context_.WithIdentity(ctx, domain.Identity{
		Subject: "client",
		Roles:   domain.NewRoleSet(domain.RoleClient),
	})

	identity, ok := context_.IdentityFromContext(ctx)
	if !ok || identity.Subject != "client" || !identity.Roles.Has(domain.RoleClient) {
		t.Fatalf("IdentityFromContext() = %+v, %v", identity, ok)
	}

	if _, ok := context_.IdentityFromContext(context_.WithAnonymous(ctx)); ok {
		t.Error("WithAnonymous must shadow the attached identity")
	}
}

func TestTraceIDFromContext(t *testing.T) {
	t.Parallel()

	if _, ok := context_.TraceIDFromContext(context_.WithTraceID(context.Background(), "")); ok {
		t.Error("empty trace id must be reported as absent")
	}

	traceID, ok := context_.TraceIDFromContext(context_.WithTraceID(context.Background(), "abc"))
	if !ok || traceID != "abc" {
		t.Errorf("TraceIDFromContext() = %q, %v", traceID, ok)
	}
}
