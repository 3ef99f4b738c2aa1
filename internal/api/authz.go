package api

import (
	"context"
	"errors"

	"employee-manager/internal/store"
)

// Ownership is the outcome of a server-side ownership lookup for a
// (identity, resource id) pair. It is computed fresh on every check and
// never cached; a stale answer would open a privilege-escalation window.
type Ownership int

const (
	// OwnershipNone: the identity has no owning record at all.
	OwnershipNone Ownership = iota
	// OwnershipOther: the identity owns a resource, but not this one.
	OwnershipOther
	// OwnershipHeld: the identity owns the requested resource.
	OwnershipHeld
)

// OwnershipResolver answers whether the resource with the given id belongs
// to the identity named by email. Implementations must consult storage,
// not token claims.
type OwnershipResolver func(ctx context.Context, email string, resourceID int64) (Ownership, error)

// Authorize is the single authorization decision for mutating and
// single-resource read operations on accounts and devices. Admins pass
// without an ownership lookup; users must hold the resource. Every
// ambiguous outcome (missing claim, unknown role, resolver error) denies.
func Authorize(ctx context.Context, ident *Identity, resourceID int64, resolve OwnershipResolver) error {
	if ident == nil {
		return UnauthorizedError("Authentication required")
	}

	switch ident.Role {
	case RoleAdmin:
		return nil

	case RoleUser:
		if ident.Email == "" {
			return UnauthorizedError("Invalid credentials")
		}
		owned, err := resolve(ctx, ident.Email, resourceID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return NotFoundError("Resource", resourceID)
			}
			return err
		}
		switch owned {
		case OwnershipHeld:
			return nil
		case OwnershipOther:
			return ForbiddenError("Users can access only their own resources")
		default:
			return NotFoundError("Resource", resourceID)
		}
	}

	return ForbiddenError("Unknown role")
}

// accountOwnership resolves the single account owned by the identity: the
// account whose employee's contact email matches. No account for the email
// means the identity maps to nothing (not found); a different account id
// means the caller is asking for someone else's record.
func (h *Handler) accountOwnership(ctx context.Context, email string, resourceID int64) (Ownership, error) {
	pb := h.store.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, h.store.DB,
		`SELECT a.id FROM accounts a
		 JOIN employees e ON e.id = a.employee_id
		 JOIN persons p ON p.id = e.person_id
		 WHERE p.email = `+pb.Add(email), pb.Params()...)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return OwnershipNone, nil
		}
		return OwnershipNone, err
	}
	if store.AsInt64(row["id"]) != resourceID {
		return OwnershipOther, nil
	}
	return OwnershipHeld, nil
}

// deviceOwnership checks the device_employees link between the caller's
// employee record and the device. The device must exist before ownership
// is judged; a missing device is not-found, an unlinked one is forbidden.
func (h *Handler) deviceOwnership(ctx context.Context, email string, resourceID int64) (Ownership, error) {
	pb := h.store.Dialect.NewParamBuilder()
	_, err := store.QueryRow(ctx, h.store.DB,
		"SELECT id FROM devices WHERE id = "+pb.Add(resourceID), pb.Params()...)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return OwnershipNone, nil
		}
		return OwnershipNone, err
	}

	pb = h.store.Dialect.NewParamBuilder()
	emp, err := store.QueryRow(ctx, h.store.DB,
		`SELECT e.id FROM employees e
		 JOIN persons p ON p.id = e.person_id
		 WHERE p.email = `+pb.Add(email), pb.Params()...)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return OwnershipNone, nil
		}
		return OwnershipNone, err
	}

	pb = h.store.Dialect.NewParamBuilder()
	_, err = store.QueryRow(ctx, h.store.DB,
		`SELECT device_id FROM device_employees
		 WHERE device_id = `+pb.Add(resourceID)+` AND employee_id = `+pb.Add(store.AsInt64(emp["id"])),
		pb.Params()...)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return OwnershipOther, nil
		}
		return OwnershipOther, err
	}
	return OwnershipHeld, nil
}
