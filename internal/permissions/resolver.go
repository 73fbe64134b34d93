// Package permissions computes the effective permission set a user holds
// through group membership.
package permissions

import (
	"context"

	"github.com/openmatchmaking/auth/internal/storage"
)

// Resolver maps a user to the de-duplicated codenames granted transitively
// by all of the user's groups.
type Resolver struct {
	groups      storage.GroupStore
	permissions storage.PermissionStore
}

// NewResolver wires the resolver over the group and permission stores.
func NewResolver(groups storage.GroupStore, permissions storage.PermissionStore) *Resolver {
	return &Resolver{groups: groups, permissions: permissions}
}

// Resolve returns the union of codenames granted by the user's groups.
// Duplicates across groups collapse; the result order is not significant.
// A user with no groups, or whose groups grant nothing, resolves to an
// empty set.
func (r *Resolver) Resolve(ctx context.Context, user *storage.User) ([]string, error) {
	if len(user.Groups) == 0 {
		return []string{}, nil
	}

	permissionIDs, err := r.groups.PermissionIDsForGroups(ctx, user.Groups)
	if err != nil {
		return nil, err
	}
	if len(permissionIDs) == 0 {
		return []string{}, nil
	}

	codenames, err := r.permissions.CodenamesByIDs(ctx, permissionIDs)
	if err != nil {
		return nil, err
	}
	if codenames == nil {
		codenames = []string{}
	}
	return codenames, nil
}
