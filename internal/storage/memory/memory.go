// Package memory provides in-memory implementations of the storage ports.
//
// The adapters mirror the MongoDB behavior the core depends on, including
// strength-2 collation on group names, so unit tests run without a
// database.
package memory

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/openmatchmaking/auth/internal/storage"
)

// Store owns the shared document maps; the per-port adapters returned by
// Stores are views over it.
type Store struct {
	mu sync.RWMutex

	users         map[bson.ObjectID]storage.User
	groups        map[bson.ObjectID]storage.Group
	permissions   map[bson.ObjectID]storage.Permission
	microservices map[bson.ObjectID]storage.Microservice

	collator *collate.Collator
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{
		users:         make(map[bson.ObjectID]storage.User),
		groups:        make(map[bson.ObjectID]storage.Group),
		permissions:   make(map[bson.ObjectID]storage.Permission),
		microservices: make(map[bson.ObjectID]storage.Microservice),
		// Loose matches the en/strength-2 collation of the group name
		// index: case- and accent-insensitive.
		collator: collate.New(language.English, collate.Loose),
	}
}

// Stores returns the port adapters backed by this store.
func (s *Store) Stores() storage.Stores {
	return storage.Stores{
		Users:         &userStore{s},
		Groups:        &groupStore{s},
		Permissions:   &permissionStore{s},
		Microservices: &microserviceStore{s},
	}
}

func (s *Store) sameName(a, b string) bool {
	return s.collator.CompareString(a, b) == 0
}

type userStore struct{ s *Store }

func (u *userStore) FindByUsername(_ context.Context, username string) (*storage.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()

	for _, user := range u.s.users {
		if user.Username == username {
			copied := user
			return &copied, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (u *userStore) FindByID(_ context.Context, id bson.ObjectID) (*storage.User, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()

	user, ok := u.s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := user
	return &copied, nil
}

func (u *userStore) CountByUsername(_ context.Context, username string) (int64, error) {
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()

	var count int64
	for _, user := range u.s.users {
		if user.Username == username {
			count++
		}
	}
	return count, nil
}

func (u *userStore) Insert(_ context.Context, user *storage.User) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	if user.ID.IsZero() {
		user.ID = bson.NewObjectID()
	}
	u.s.users[user.ID] = *user
	return nil
}

func (u *userStore) Delete(_ context.Context, id bson.ObjectID) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	if _, ok := u.s.users[id]; !ok {
		return storage.ErrNotFound
	}
	delete(u.s.users, id)
	return nil
}

type groupStore struct{ s *Store }

func (g *groupStore) FindByName(_ context.Context, name string) (*storage.Group, error) {
	g.s.mu.RLock()
	defer g.s.mu.RUnlock()

	for _, group := range g.s.groups {
		if g.s.sameName(group.Name, name) {
			copied := group
			return &copied, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (g *groupStore) Insert(_ context.Context, group *storage.Group) error {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()

	if group.ID.IsZero() {
		group.ID = bson.NewObjectID()
	}
	g.s.groups[group.ID] = *group
	return nil
}

func (g *groupStore) PermissionIDsForGroups(_ context.Context, groupIDs []bson.ObjectID) ([]bson.ObjectID, error) {
	g.s.mu.RLock()
	defer g.s.mu.RUnlock()

	seen := make(map[bson.ObjectID]struct{})
	var ids []bson.ObjectID
	for _, groupID := range groupIDs {
		group, ok := g.s.groups[groupID]
		if !ok {
			continue
		}
		for _, permID := range group.Permissions {
			if _, dup := seen[permID]; dup {
				continue
			}
			seen[permID] = struct{}{}
			ids = append(ids, permID)
		}
	}
	return ids, nil
}

func (g *groupStore) PullPermissions(_ context.Context, permissionIDs []bson.ObjectID) error {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()

	removed := make(map[bson.ObjectID]struct{}, len(permissionIDs))
	for _, id := range permissionIDs {
		removed[id] = struct{}{}
	}
	for groupID, group := range g.s.groups {
		kept := make([]bson.ObjectID, 0, len(group.Permissions))
		for _, permID := range group.Permissions {
			if _, gone := removed[permID]; !gone {
				kept = append(kept, permID)
			}
		}
		group.Permissions = kept
		g.s.groups[groupID] = group
	}
	return nil
}

func (g *groupStore) AddPermissions(_ context.Context, name string, permissionIDs []bson.ObjectID) error {
	g.s.mu.Lock()
	defer g.s.mu.Unlock()

	for groupID, group := range g.s.groups {
		if !g.s.sameName(group.Name, name) {
			continue
		}
		existing := make(map[bson.ObjectID]struct{}, len(group.Permissions))
		for _, permID := range group.Permissions {
			existing[permID] = struct{}{}
		}
		for _, permID := range permissionIDs {
			if _, dup := existing[permID]; !dup {
				group.Permissions = append(group.Permissions, permID)
			}
		}
		g.s.groups[groupID] = group
		return nil
	}
	return storage.ErrNotFound
}

type permissionStore struct{ s *Store }

func (p *permissionStore) UpsertByCodename(_ context.Context, permissions []storage.Permission) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	for _, perm := range permissions {
		updated := false
		for id, existing := range p.s.permissions {
			if existing.Codename == perm.Codename {
				existing.Description = perm.Description
				p.s.permissions[id] = existing
				updated = true
				break
			}
		}
		if !updated {
			perm.ID = bson.NewObjectID()
			p.s.permissions[perm.ID] = perm
		}
	}
	return nil
}

func (p *permissionStore) IDsByCodenames(_ context.Context, codenames []string) ([]bson.ObjectID, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	var ids []bson.ObjectID
	for _, codename := range codenames {
		for id, perm := range p.s.permissions {
			if perm.Codename == codename {
				ids = append(ids, id)
				break
			}
		}
	}
	return ids, nil
}

func (p *permissionStore) CodenamesByIDs(_ context.Context, ids []bson.ObjectID) ([]string, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	var codenames []string
	for _, id := range ids {
		if perm, ok := p.s.permissions[id]; ok {
			codenames = append(codenames, perm.Codename)
		}
	}
	return codenames, nil
}

func (p *permissionStore) FindByIDs(_ context.Context, ids []bson.ObjectID) ([]storage.Permission, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	var found []storage.Permission
	for _, id := range ids {
		if perm, ok := p.s.permissions[id]; ok {
			found = append(found, perm)
		}
	}
	return found, nil
}

type microserviceStore struct{ s *Store }

func (m *microserviceStore) FindByName(_ context.Context, name string) (*storage.Microservice, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	for _, ms := range m.s.microservices {
		if ms.Name == name {
			copied := ms
			return &copied, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *microserviceStore) Replace(_ context.Context, microservice *storage.Microservice) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()

	for id, existing := range m.s.microservices {
		if existing.Name == microservice.Name {
			microservice.ID = id
			m.s.microservices[id] = *microservice
			return nil
		}
	}
	if microservice.ID.IsZero() {
		microservice.ID = bson.NewObjectID()
	}
	m.s.microservices[microservice.ID] = *microservice
	return nil
}
