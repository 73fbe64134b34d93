package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8000", cfg.App.Addr())
	assert.Equal(t, "auth", cfg.Mongo.Database)
	assert.Equal(t, "access_token", cfg.JWT.AccessFieldName)
	assert.Equal(t, "refresh_token", cfg.JWT.RefreshFieldName)
	assert.Equal(t, "JWT", cfg.JWT.AuthHeaderPrefix)
	assert.Equal(t, 1800.0, cfg.JWT.Lifetime.Seconds())

	require.Len(t, cfg.DefaultGroups, 1)
	game := cfg.DefaultGroups[0]
	assert.Equal(t, "Game client", game.Name)
	assert.True(t, game.Matches("auth.resource.retrieve"))
	assert.True(t, game.Matches("auth.resource.update"))
	assert.False(t, game.Matches("auth.resource.create"))
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestParseDefaultGroups(t *testing.T) {
	groups, err := ParseDefaultGroups(`Game client=(\.retrieve|\.update)$; Moderators ;`)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	assert.Equal(t, "Game client", groups[0].Name)
	assert.NotNil(t, groups[0].Match)

	assert.Equal(t, "Moderators", groups[1].Name)
	assert.Nil(t, groups[1].Match)
	assert.False(t, groups[1].Matches("auth.resource.retrieve"))
}

func TestParseDefaultGroupsRejectsBadPattern(t *testing.T) {
	_, err := ParseDefaultGroups(`Broken=([`)
	assert.Error(t, err)
}

func TestParseDefaultGroupsRejectsMissingName(t *testing.T) {
	_, err := ParseDefaultGroups(`=pattern`)
	assert.Error(t, err)
}
