package permissions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/openmatchmaking/auth/internal/storage"
	"github.com/openmatchmaking/auth/internal/storage/memory"
)

func seedPermission(t *testing.T, stores storage.Stores, codename string) bson.ObjectID {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, stores.Permissions.UpsertByCodename(ctx, []storage.Permission{{Codename: codename}}))
	ids, err := stores.Permissions.IDsByCodenames(ctx, []string{codename})
	require.NoError(t, err)
	require.Len(t, ids, 1)
	return ids[0]
}

func TestResolveUnionsAcrossGroups(t *testing.T) {
	ctx := context.Background()
	stores := memory.NewStore().Stores()
	resolver := NewResolver(stores.Groups, stores.Permissions)

	retrieve := seedPermission(t, stores, "auth.resource.retrieve")
	update := seedPermission(t, stores, "auth.resource.update")
	remove := seedPermission(t, stores, "auth.resource.delete")

	players := &storage.Group{Name: "Players", Permissions: []bson.ObjectID{retrieve, update}}
	moderators := &storage.Group{Name: "Moderators", Permissions: []bson.ObjectID{update, remove}}
	require.NoError(t, stores.Groups.Insert(ctx, players))
	require.NoError(t, stores.Groups.Insert(ctx, moderators))

	user := &storage.User{Username: "alice", Groups: []bson.ObjectID{players.ID, moderators.ID}}

	codenames, err := resolver.Resolve(ctx, user)
	require.NoError(t, err)
	// Set comparison: order is not part of the contract.
	assert.ElementsMatch(t,
		[]string{"auth.resource.retrieve", "auth.resource.update", "auth.resource.delete"},
		codenames,
	)
}

func TestResolveEmptyWhenUserHasNoGroups(t *testing.T) {
	ctx := context.Background()
	stores := memory.NewStore().Stores()
	resolver := NewResolver(stores.Groups, stores.Permissions)

	codenames, err := resolver.Resolve(ctx, &storage.User{Username: "alice"})
	require.NoError(t, err)
	assert.Empty(t, codenames)
	assert.NotNil(t, codenames, "profile serialization expects an empty list, not null")
}

func TestResolveEmptyWhenGroupsGrantNothing(t *testing.T) {
	ctx := context.Background()
	stores := memory.NewStore().Stores()
	resolver := NewResolver(stores.Groups, stores.Permissions)

	empty := &storage.Group{Name: "Game client"}
	require.NoError(t, stores.Groups.Insert(ctx, empty))

	codenames, err := resolver.Resolve(ctx, &storage.User{Username: "alice", Groups: []bson.ObjectID{empty.ID}})
	require.NoError(t, err)
	assert.Empty(t, codenames)
	assert.NotNil(t, codenames)
}
