// Package users implements account registration and profile retrieval.
package users

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/openmatchmaking/auth/internal/apperr"
	"github.com/openmatchmaking/auth/internal/password"
	"github.com/openmatchmaking/auth/internal/permissions"
	"github.com/openmatchmaking/auth/internal/storage"
)

// MsgBlankField rejects required fields that are empty.
const MsgBlankField = "Field cannot be blank."

// MsgPasswordMismatch rejects registrations whose confirmation differs
// from the password.
const MsgPasswordMismatch = "Confirm password must equal to a new password."

// MsgUsernameTaken rejects registrations for an existing username.
const MsgUsernameTaken = "Username must be unique."

// MsgUserNotFound is returned when a profile names a user that no longer
// exists.
const MsgUserNotFound = "User was not found."

// RegisterRequest is the registration request shape.
type RegisterRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Validate checks the request fields and aggregates every failure.
// Password confirmation is only compared once both fields are present,
// mirroring schema-level validation that skips on field errors.
func (r RegisterRequest) Validate() error {
	fields := apperr.FieldErrors{}

	if r.Username == "" {
		fields.Add("username", MsgBlankField)
	}
	if r.Password == "" {
		fields.Add("password", MsgBlankField)
	}
	if r.ConfirmPassword == "" {
		fields.Add("confirm_password", MsgBlankField)
	}
	if len(fields) == 0 && r.Password != r.ConfirmPassword {
		fields.Add("confirm_password", MsgPasswordMismatch)
	}

	return fields.Err()
}

// RegisteredUser is the registration response projection.
type RegisteredUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Profile is the profile response projection.
type Profile struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	Permissions []string `json:"permissions"`
}

// Service registers users and serves their profiles.
type Service struct {
	users            storage.UserStore
	groups           storage.GroupStore
	resolver         *permissions.Resolver
	hasher           *password.Hasher
	defaultGroupName string
}

// NewService wires the user service. defaultGroupName is the group every
// new account joins; lookups for it are collation-aware.
func NewService(users storage.UserStore, groups storage.GroupStore, resolver *permissions.Resolver, hasher *password.Hasher, defaultGroupName string) *Service {
	return &Service{
		users:            users,
		groups:           groups,
		resolver:         resolver,
		hasher:           hasher,
		defaultGroupName: defaultGroupName,
	}
}

// Register validates the request, hashes the password once, attaches the
// default group and persists the user.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*RegisteredUser, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	count, err := s.users.CountByUsername(ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		fields := apperr.FieldErrors{}
		fields.Add("username", MsgUsernameTaken)
		return nil, fields.Err()
	}

	var groups []bson.ObjectID
	defaultGroup, err := s.groups.FindByName(ctx, s.defaultGroupName)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if defaultGroup != nil {
		groups = append(groups, defaultGroup.ID)
	}

	// The raw password is transformed exactly once, before first
	// persistence; the stored document only ever sees the hash.
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	user := &storage.User{
		Username: req.Username,
		Password: hash,
		Groups:   groups,
	}
	if err := s.users.Insert(ctx, user); err != nil {
		return nil, err
	}

	return &RegisteredUser{ID: user.ID.Hex(), Username: user.Username}, nil
}

// ProfileByID returns the profile projection for the user id carried by a
// verified access token.
func (s *Service) ProfileByID(ctx context.Context, rawID string) (*Profile, error) {
	id, err := bson.ObjectIDFromHex(rawID)
	if err != nil {
		return nil, apperr.NotFound(MsgUserNotFound)
	}

	user, err := s.users.FindByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound(MsgUserNotFound)
	}
	if err != nil {
		return nil, err
	}

	codenames, err := s.resolver.Resolve(ctx, user)
	if err != nil {
		return nil, err
	}

	return &Profile{
		ID:          user.ID.Hex(),
		Username:    user.Username,
		Permissions: codenames,
	}, nil
}
