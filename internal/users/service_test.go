package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/openmatchmaking/auth/internal/apperr"
	"github.com/openmatchmaking/auth/internal/password"
	"github.com/openmatchmaking/auth/internal/permissions"
	"github.com/openmatchmaking/auth/internal/storage"
	"github.com/openmatchmaking/auth/internal/storage/memory"
)

type usersFixture struct {
	service *Service
	stores  storage.Stores
	hasher  *password.Hasher
}

func newUsersFixture(t *testing.T) *usersFixture {
	t.Helper()

	stores := memory.NewStore().Stores()
	hasher := password.NewHasher()
	resolver := permissions.NewResolver(stores.Groups, stores.Permissions)

	require.NoError(t, stores.Groups.Insert(context.Background(), &storage.Group{Name: "Game client"}))

	return &usersFixture{
		service: NewService(stores.Users, stores.Groups, resolver, hasher, "Game client"),
		stores:  stores,
		hasher:  hasher,
	}
}

func validRequest() RegisterRequest {
	return RegisterRequest{
		Username:        "alice",
		Password:        "secret1",
		ConfirmPassword: "secret1",
	}
}

func TestRegisterCreatesUserInDefaultGroup(t *testing.T) {
	fixture := newUsersFixture(t)

	created, err := fixture.service.Register(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, "alice", created.Username)
	assert.NotEmpty(t, created.ID)

	id, err := bson.ObjectIDFromHex(created.ID)
	require.NoError(t, err)
	user, err := fixture.stores.Users.FindByID(context.Background(), id)
	require.NoError(t, err)

	group, err := fixture.stores.Groups.FindByName(context.Background(), "Game client")
	require.NoError(t, err)
	assert.Equal(t, []bson.ObjectID{group.ID}, user.Groups)
}

func TestRegisterHashesPassword(t *testing.T) {
	fixture := newUsersFixture(t)

	created, err := fixture.service.Register(context.Background(), validRequest())
	require.NoError(t, err)

	user, err := fixture.stores.Users.FindByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID.Hex())
	assert.NotEqual(t, "secret1", user.Password)
	ok, err := fixture.hasher.Verify("secret1", user.Password)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRegisterAggregatesBlankFields(t *testing.T) {
	fixture := newUsersFixture(t)

	_, err := fixture.service.Register(context.Background(), RegisterRequest{})
	require.Error(t, err)

	appErr := apperr.AsError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperr.KindValidation, appErr.Kind)
	assert.Equal(t, []string{MsgBlankField}, appErr.Fields["username"])
	assert.Equal(t, []string{MsgBlankField}, appErr.Fields["password"])
	assert.Equal(t, []string{MsgBlankField}, appErr.Fields["confirm_password"])
}

func TestRegisterRejectsPasswordMismatch(t *testing.T) {
	fixture := newUsersFixture(t)

	req := validRequest()
	req.ConfirmPassword = "secret2"
	_, err := fixture.service.Register(context.Background(), req)
	require.Error(t, err)

	appErr := apperr.AsError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, []string{MsgPasswordMismatch}, appErr.Fields["confirm_password"])
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	fixture := newUsersFixture(t)

	_, err := fixture.service.Register(context.Background(), validRequest())
	require.NoError(t, err)

	_, err = fixture.service.Register(context.Background(), validRequest())
	require.Error(t, err)

	appErr := apperr.AsError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperr.KindValidation, appErr.Kind)
	assert.Equal(t, []string{MsgUsernameTaken}, appErr.Fields["username"])
}

func TestRegisterWithoutDefaultGroup(t *testing.T) {
	stores := memory.NewStore().Stores()
	resolver := permissions.NewResolver(stores.Groups, stores.Permissions)
	service := NewService(stores.Users, stores.Groups, resolver, password.NewHasher(), "Game client")

	created, err := service.Register(context.Background(), validRequest())
	require.NoError(t, err)

	id, err := bson.ObjectIDFromHex(created.ID)
	require.NoError(t, err)
	user, err := stores.Users.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, user.Groups)
}

func TestProfileResolvesPermissions(t *testing.T) {
	fixture := newUsersFixture(t)
	ctx := context.Background()

	require.NoError(t, fixture.stores.Permissions.UpsertByCodename(ctx, []storage.Permission{
		{Codename: "auth.users.retrieve", Description: "retrieve a user"},
	}))
	ids, err := fixture.stores.Permissions.IDsByCodenames(ctx, []string{"auth.users.retrieve"})
	require.NoError(t, err)
	require.NoError(t, fixture.stores.Groups.AddPermissions(ctx, "Game client", ids))

	created, err := fixture.service.Register(ctx, validRequest())
	require.NoError(t, err)

	profile, err := fixture.service.ProfileByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, profile.ID)
	assert.Equal(t, "alice", profile.Username)
	assert.Equal(t, []string{"auth.users.retrieve"}, profile.Permissions)
}

func TestProfileEmptyPermissionsIsNotNil(t *testing.T) {
	fixture := newUsersFixture(t)

	created, err := fixture.service.Register(context.Background(), validRequest())
	require.NoError(t, err)

	profile, err := fixture.service.ProfileByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.NotNil(t, profile.Permissions)
	assert.Empty(t, profile.Permissions)
}

func TestProfileUnknownUser(t *testing.T) {
	fixture := newUsersFixture(t)

	_, err := fixture.service.ProfileByID(context.Background(), bson.NewObjectID().Hex())
	require.Error(t, err)

	appErr := apperr.AsError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperr.KindNotFound, appErr.Kind)
	assert.Equal(t, MsgUserNotFound, appErr.Message)
}

func TestProfileMalformedID(t *testing.T) {
	fixture := newUsersFixture(t)

	_, err := fixture.service.ProfileByID(context.Background(), "not-an-object-id")
	require.Error(t, err)

	appErr := apperr.AsError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperr.KindNotFound, appErr.Kind)
}