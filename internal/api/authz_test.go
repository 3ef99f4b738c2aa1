package api

import (
	"context"
	"errors"
	"testing"

	"employee-manager/internal/store"
)

func resolverReturning(o Ownership) OwnershipResolver {
	return func(_ context.Context, _ string, _ int64) (Ownership, error) {
		return o, nil
	}
}

func TestAuthorize_AdminBypassesOwnership(t *testing.T) {
	called := false
	resolve := func(_ context.Context, _ string, _ int64) (Ownership, error) {
		called = true
		return OwnershipNone, nil
	}
	admin := &Identity{Role: RoleAdmin, Email: "boss@example.com"}
	if err := Authorize(context.Background(), admin, 42, resolve); err != nil {
		t.Fatalf("admin must be allowed: %v", err)
	}
	if called {
		t.Fatal("admin path must not consult the ownership resolver")
	}
}

func TestAuthorize_NilIdentity(t *testing.T) {
	err := Authorize(context.Background(), nil, 1, resolverReturning(OwnershipHeld))
	assertStatus(t, err, 401)
}

func TestAuthorize_UserWithoutEmail(t *testing.T) {
	ident := &Identity{Role: RoleUser}
	err := Authorize(context.Background(), ident, 1, resolverReturning(OwnershipHeld))
	assertStatus(t, err, 401)
}

func TestAuthorize_UserHoldsResource(t *testing.T) {
	ident := &Identity{Role: RoleUser, Email: "me@example.com"}
	resolve := func(_ context.Context, email string, id int64) (Ownership, error) {
		if email != "me@example.com" || id != 7 {
			t.Fatalf("resolver got (%q, %d)", email, id)
		}
		return OwnershipHeld, nil
	}
	if err := Authorize(context.Background(), ident, 7, resolve); err != nil {
		t.Fatalf("owner must be allowed: %v", err)
	}
}

func TestAuthorize_UserRequestsForeignResource(t *testing.T) {
	ident := &Identity{Role: RoleUser, Email: "me@example.com"}
	err := Authorize(context.Background(), ident, 8, resolverReturning(OwnershipOther))
	assertStatus(t, err, 403)
}

func TestAuthorize_UserOwnsNothing(t *testing.T) {
	ident := &Identity{Role: RoleUser, Email: "me@example.com"}
	err := Authorize(context.Background(), ident, 7, resolverReturning(OwnershipNone))
	assertStatus(t, err, 404)
}

func TestAuthorize_ResolverNotFound(t *testing.T) {
	ident := &Identity{Role: RoleUser, Email: "me@example.com"}
	resolve := func(_ context.Context, _ string, _ int64) (Ownership, error) {
		return OwnershipNone, store.ErrNotFound
	}
	err := Authorize(context.Background(), ident, 7, resolve)
	assertStatus(t, err, 404)
}

func TestAuthorize_ResolverFailureDenies(t *testing.T) {
	ident := &Identity{Role: RoleUser, Email: "me@example.com"}
	boom := errors.New("connection reset")
	resolve := func(_ context.Context, _ string, _ int64) (Ownership, error) {
		return OwnershipNone, boom
	}
	err := Authorize(context.Background(), ident, 7, resolve)
	if !errors.Is(err, boom) {
		t.Fatalf("storage failures must propagate, got %v", err)
	}
}

func TestAuthorize_UnknownRoleDenies(t *testing.T) {
	ident := &Identity{Role: Role("Auditor"), Email: "x@example.com"}
	err := Authorize(context.Background(), ident, 1, resolverReturning(OwnershipHeld))
	assertStatus(t, err, 403)
}

func assertStatus(t *testing.T, err error, status int) {
	t.Helper()
	var appErr *AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %v", err)
	}
	if appErr.Status != status {
		t.Fatalf("expected status %d, got %d (%s)", status, appErr.Status, appErr.Message)
	}
}
