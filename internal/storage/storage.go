// Package storage defines the document models persisted by the service and
// the store ports its core components depend on.
//
// Two adapter sets implement the ports: storage/mongo against a real
// MongoDB deployment and storage/memory for tests.
package storage

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ErrNotFound is returned by lookups when no document matches.
var ErrNotFound = errors.New("document not found")

// User is a registered account. Password holds the argon2id encoded hash;
// the raw password never reaches a store.
type User struct {
	ID       bson.ObjectID   `bson:"_id,omitempty" json:"id"`
	Username string          `bson:"username" json:"username"`
	Password string          `bson:"password" json:"-"`
	Groups   []bson.ObjectID `bson:"groups" json:"-"`
}

// Group names a set of permissions. Name uniqueness is case-insensitive
// under en/strength-2 collation.
type Group struct {
	ID          bson.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name        string          `bson:"name" json:"name"`
	Permissions []bson.ObjectID `bson:"permissions" json:"-"`
}

// Permission is identified by its codename; the storage id is derived from
// the codename by lookup, never supplied by callers.
type Permission struct {
	ID          bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Codename    string        `bson:"codename" json:"codename"`
	Description string        `bson:"description,omitempty" json:"description,omitempty"`
}

// Microservice records the permissions a service declared at registration.
// Documents are replace-upserted keyed by Name.
type Microservice struct {
	ID          bson.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name        string          `bson:"name" json:"name"`
	Version     string          `bson:"version" json:"version"`
	Permissions []bson.ObjectID `bson:"permissions" json:"-"`
}

// UserStore persists users. Username lookups are case-sensitive exact
// matches.
type UserStore interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByID(ctx context.Context, id bson.ObjectID) (*User, error)
	CountByUsername(ctx context.Context, username string) (int64, error)
	Insert(ctx context.Context, user *User) error
	Delete(ctx context.Context, id bson.ObjectID) error
}

// GroupStore persists groups. Name lookups use the collection's strength-2
// collation, so "Game client" and "GAME CLIENT" address the same group.
type GroupStore interface {
	FindByName(ctx context.Context, name string) (*Group, error)
	Insert(ctx context.Context, group *Group) error

	// PermissionIDsForGroups returns the de-duplicated union of the
	// permission references held by the given groups.
	PermissionIDsForGroups(ctx context.Context, groupIDs []bson.ObjectID) ([]bson.ObjectID, error)

	// PullPermissions retracts the given permission ids from every group
	// in a single multi-document update.
	PullPermissions(ctx context.Context, permissionIDs []bson.ObjectID) error

	// AddPermissions unions the given permission ids into the named
	// group's permission set without introducing duplicates.
	AddPermissions(ctx context.Context, name string, permissionIDs []bson.ObjectID) error
}

// PermissionStore persists permissions keyed by codename.
type PermissionStore interface {
	// UpsertByCodename writes all declared permissions in one bulk
	// operation, creating missing codenames and refreshing descriptions
	// of existing ones.
	UpsertByCodename(ctx context.Context, permissions []Permission) error
	IDsByCodenames(ctx context.Context, codenames []string) ([]bson.ObjectID, error)
	CodenamesByIDs(ctx context.Context, ids []bson.ObjectID) ([]string, error)
	FindByIDs(ctx context.Context, ids []bson.ObjectID) ([]Permission, error)
}

// MicroserviceStore persists microservice declarations.
type MicroserviceStore interface {
	FindByName(ctx context.Context, name string) (*Microservice, error)
	// Replace fully replaces the document matching the declaration's
	// name, inserting it when absent.
	Replace(ctx context.Context, microservice *Microservice) error
}

// Stores bundles the four ports for wiring.
type Stores struct {
	Users         UserStore
	Groups        GroupStore
	Permissions   PermissionStore
	Microservices MicroserviceStore
}
