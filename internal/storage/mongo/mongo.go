// Package mongo implements the storage ports against MongoDB.
//
// The adapters preserve the collection-level semantics the core depends on:
// strength-2 collation on group names, bulk codename upserts, one
// aggregation round-trip for permission set-unions, and a single
// multi-document $pull when permissions are retracted.
package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/openmatchmaking/auth/internal/storage"
)

const (
	usersCollection         = "users"
	groupsCollection        = "groups"
	permissionsCollection   = "permissions"
	microservicesCollection = "microservices"
)

// groupCollation is applied to every group name read and write, and to the
// group name index, so "Game client" and "GAME CLIENT" address the same
// document.
func groupCollation() *options.Collation {
	return &options.Collation{Locale: "en", Strength: 2}
}

// DB wraps a connected database handle and hands out port adapters.
type DB struct {
	client   *mongo.Client
	database *mongo.Database
}

// Connect dials the deployment and verifies the connection with a ping.
func Connect(ctx context.Context, uri, database string) (*DB, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return &DB{client: client, database: client.Database(database)}, nil
}

// Close tears down the underlying client.
func (db *DB) Close(ctx context.Context) error {
	return db.client.Disconnect(ctx)
}

// Stores returns the port adapters backed by this database.
func (db *DB) Stores() storage.Stores {
	return storage.Stores{
		Users:         &userStore{db.database.Collection(usersCollection)},
		Groups:        &groupStore{db.database.Collection(groupsCollection)},
		Permissions:   &permissionStore{db.database.Collection(permissionsCollection)},
		Microservices: &microserviceStore{db.database.Collection(microservicesCollection)},
	}
}

// EnsureIndexes creates the unique indexes every collection relies on. It
// is idempotent and safe to run at every bootstrap.
func (db *DB) EnsureIndexes(ctx context.Context) error {
	users := db.database.Collection(usersCollection)
	if _, err := users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    keyAsc("username"),
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("users index: %w", err)
	}

	groups := db.database.Collection(groupsCollection)
	if _, err := groups.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    keyAsc("name"),
		Options: options.Index().SetUnique(true).SetCollation(groupCollation()),
	}); err != nil {
		return fmt.Errorf("groups index: %w", err)
	}

	permissions := db.database.Collection(permissionsCollection)
	if _, err := permissions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    keyAsc("codename"),
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("permissions index: %w", err)
	}

	microservices := db.database.Collection(microservicesCollection)
	if _, err := microservices.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    keyAsc("name"),
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("microservices index: %w", err)
	}

	return nil
}
