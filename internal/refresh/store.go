// Package refresh persists the single live refresh token per user in
// Redis.
//
// The store is a plain key-value slot: issuing a new token pair overwrites
// the previous value, which invalidates any refresh token handed out
// earlier. No rotation history is kept.
package refresh

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrTokenNotFound is returned when no refresh token is stored for a user.
var ErrTokenNotFound = errors.New("refresh token not found")

// Store reads and writes refresh-token slots keyed
// `<field-name>_<username>`.
type Store struct {
	client    redis.UniversalClient
	fieldName string
}

// NewStore wraps an existing Redis client. fieldName is the configured
// refresh-token field name and doubles as the key prefix.
func NewStore(client redis.UniversalClient, fieldName string) *Store {
	return &Store{client: client, fieldName: fieldName}
}

// Key returns the slot key for a username.
func (s *Store) Key(username string) string {
	return fmt.Sprintf("%s_%s", s.fieldName, username)
}

// Save overwrites the user's refresh-token slot. Last write wins; a lost
// race against a concurrent issue leaves the later write authoritative.
func (s *Store) Save(ctx context.Context, username, token string) error {
	return s.client.Set(ctx, s.Key(username), token, 0).Err()
}

// Get returns the live refresh token for the user, or ErrTokenNotFound
// when the slot is empty.
func (s *Store) Get(ctx context.Context, username string) (string, error) {
	value, err := s.client.Get(ctx, s.Key(username)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrTokenNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
