package token

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/openmatchmaking/auth/internal/apperr"
	"github.com/openmatchmaking/auth/internal/password"
	"github.com/openmatchmaking/auth/internal/refresh"
	"github.com/openmatchmaking/auth/internal/storage"
)

// MsgInvalidCredentials is returned for both an unknown username and a
// wrong password, so responses cannot be used to enumerate accounts.
const MsgInvalidCredentials = "User wasn't found or specified an invalid password."

// MsgUserNotFound is returned when a refresh names a user that no longer
// exists.
const MsgUserNotFound = "User wasn't found."

// MsgInvalidRefreshToken is returned when the supplied refresh token does
// not match the stored slot.
const MsgInvalidRefreshToken = "Specified an invalid `refresh_token`."

// MsgMissingAccessToken is returned when the authorization header is
// absent.
const MsgMissingAccessToken = "An access token isn't set in request."

// Pair is an issued access/refresh token pair.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// ManagerConfig carries the lifecycle manager's tunables.
type ManagerConfig struct {
	// HeaderPrefix is the expected authorization header prefix,
	// compared case-insensitively (default "JWT").
	HeaderPrefix string
	// RefreshTokenLength is the character length of generated refresh
	// tokens (minimum 32).
	RefreshTokenLength int
}

// Manager owns the per-user token state machine: issuing pairs, verifying
// access tokens, and refreshing them. The invariant it maintains is that
// at most one refresh token per user is live at any time.
type Manager struct {
	codec   *Codec
	users   storage.UserStore
	refresh *refresh.Store
	hasher  *password.Hasher
	config  ManagerConfig
}

// NewManager wires the lifecycle manager.
func NewManager(codec *Codec, users storage.UserStore, store *refresh.Store, hasher *password.Hasher, cfg ManagerConfig) *Manager {
	if cfg.HeaderPrefix == "" {
		cfg.HeaderPrefix = "JWT"
	}
	if cfg.RefreshTokenLength < 32 {
		cfg.RefreshTokenLength = 32
	}
	return &Manager{codec: codec, users: users, refresh: store, hasher: hasher, config: cfg}
}

// Issue validates the credentials and returns a fresh token pair. The new
// refresh token overwrites the user's slot, invalidating any prior one.
//
// An unknown username and a failed password check return the identical
// NotFoundError.
func (m *Manager) Issue(ctx context.Context, username, plainPassword string) (*Pair, error) {
	user, err := m.users.FindByUsername(ctx, username)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound(MsgInvalidCredentials)
	}
	if err != nil {
		return nil, err
	}

	ok, err := m.hasher.Verify(plainPassword, user.Password)
	if err != nil || !ok {
		return nil, apperr.NotFound(MsgInvalidCredentials)
	}

	accessToken, err := m.codec.Encode(user.ID.Hex())
	if err != nil {
		return nil, err
	}
	refreshToken, err := NewRefreshToken(m.config.RefreshTokenLength)
	if err != nil {
		return nil, err
	}
	if err := m.refresh.Save(ctx, user.Username, refreshToken); err != nil {
		return nil, err
	}

	return &Pair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// Verify decodes the access token. It never consults the refresh store;
// signature and expiry alone decide validity.
func (m *Manager) Verify(accessToken string) (*Claims, error) {
	return m.codec.Decode(accessToken)
}

// Refresh exchanges a signed (possibly expired) access token plus the live
// refresh token for a new access token. The stored refresh token is left
// untouched; refresh does not rotate it.
func (m *Manager) Refresh(ctx context.Context, accessToken, refreshToken string) (string, error) {
	claims, err := m.codec.DecodeExpired(accessToken)
	if err != nil {
		return "", err
	}

	userID, err := bson.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return "", apperr.NotFound(MsgUserNotFound)
	}
	user, err := m.users.FindByID(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", apperr.NotFound(MsgUserNotFound)
	}
	if err != nil {
		return "", err
	}

	stored, err := m.refresh.Get(ctx, user.Username)
	if errors.Is(err, refresh.ErrTokenNotFound) {
		return "", apperr.Token(MsgInvalidRefreshToken)
	}
	if err != nil {
		return "", err
	}
	if stored != strings.TrimSpace(refreshToken) {
		return "", apperr.Token(MsgInvalidRefreshToken)
	}

	return m.codec.Encode(user.ID.Hex())
}

// ExtractToken pulls the raw token out of an authorization header value of
// the form "<prefix> <token>". An empty value yields AuthorizationError; a
// wrong or missing prefix yields HeaderError. Both are reported before any
// decoding is attempted.
func (m *Manager) ExtractToken(headerValue string) (string, error) {
	if headerValue == "" {
		return "", apperr.New(apperr.KindAuthorization, MsgMissingAccessToken)
	}

	parts := strings.Split(strings.TrimSpace(headerValue), " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], m.config.HeaderPrefix) {
		return "", apperr.New(
			apperr.KindHeader,
			"An authorization header must use the `"+m.config.HeaderPrefix+"` prefix.",
		)
	}
	return parts[1], nil
}

// Codec exposes the underlying codec, mainly for tests that need to mint
// tokens with custom lifetimes.
func (m *Manager) Codec() *Codec {
	return m.codec
}
