package auth

import (
	"context"
	"fmt"

	"github.com/chrlesur/live-memory/pkg/types"
)

// Identity is the authenticated caller of a tool invocation. The API
// middleware resolves it from the bearer token and attaches it to the
// request context; tool handlers never see the clear token.
type Identity struct {
	Name        string
	Permissions []types.Permission
	SpaceIDs    []string
	TokenHash   string
	Bootstrap   bool
}

// HasPermission reports whether the identity carries the permission.
func (id *Identity) HasPermission(p types.Permission) bool {
	for _, have := range id.Permissions {
		if have == p {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the identity carries the admin permission.
func (id *Identity) IsAdmin() bool {
	return id.HasPermission(types.PermissionAdmin)
}

// CanAccess reports whether the identity may touch the space. An empty
// scope list grants access to every space.
func (id *Identity) CanAccess(spaceID string) bool {
	if len(id.SpaceIDs) == 0 {
		return true
	}
	for _, s := range id.SpaceIDs {
		if s == spaceID {
			return true
		}
	}
	return false
}

// CheckRead returns ErrForbidden unless the identity can read. Any
// permission grants read: write and admin tokens subsume it.
func CheckRead(id *Identity) error {
	if len(id.Permissions) == 0 {
		return fmt.Errorf("%w: read permission required", types.ErrForbidden)
	}
	return nil
}

// CheckWrite returns ErrForbidden unless the identity carries write or
// admin.
func CheckWrite(id *Identity) error {
	if !id.HasPermission(types.PermissionWrite) && !id.IsAdmin() {
		return fmt.Errorf("%w: write permission required", types.ErrForbidden)
	}
	return nil
}

// CheckAdmin returns ErrForbidden unless the identity is an admin.
func CheckAdmin(id *Identity) error {
	if !id.IsAdmin() {
		return fmt.Errorf("%w: admin permission required", types.ErrForbidden)
	}
	return nil
}

// CheckAccess returns ErrForbidden unless the identity is scoped to the
// space (or holds a universal scope).
func CheckAccess(id *Identity, spaceID string) error {
	if !id.CanAccess(spaceID) {
		return fmt.Errorf("%w: token not authorized for space %s", types.ErrForbidden, spaceID)
	}
	return nil
}

type ctxKey int

const identityKey ctxKey = iota

// WithIdentity attaches the identity to the context.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext extracts the identity attached by the API middleware.
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(*Identity)
	return id, ok
}
