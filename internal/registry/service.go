// Package registry registers microservices and keeps the group/permission
// graph consistent with their declarations.
//
// Registration applies the authoritative writes synchronously (permission
// upserts and the microservice replace) and hands the group propagation to
// a background synchronizer; callers observe eventual consistency on group
// membership.
package registry

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"

	"github.com/openmatchmaking/auth/internal/apperr"
	"github.com/openmatchmaking/auth/internal/storage"
)

var (
	versionPattern  = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
	codenamePattern = regexp.MustCompile(`^[a-z\-.]+$`)
)

// MsgInvalidVersion rejects versions outside semantic major.minor.patch.
const MsgInvalidVersion = "Field value must match the major.minor.patch version semantics."

// MsgInvalidCodename rejects codenames outside the lowercase/dot/hyphen
// charset.
const MsgInvalidCodename = "Field value must contain only lowercase letters, dots and hyphens."

// MsgBlankField rejects required fields that are empty.
const MsgBlankField = "Field cannot be blank."

// PermissionDeclaration is one permission a microservice declares at
// registration.
type PermissionDeclaration struct {
	Codename    string `json:"codename"`
	Description string `json:"description,omitempty"`
}

// Declaration is a microservice registration request.
type Declaration struct {
	Name        string                  `json:"name"`
	Version     string                  `json:"version"`
	Permissions []PermissionDeclaration `json:"permissions"`
}

// Validate checks every field and aggregates all failures into a single
// ValidationError; it never stops at the first broken field.
func (d Declaration) Validate() error {
	fields := apperr.FieldErrors{}

	if strings.TrimSpace(d.Name) == "" {
		fields.Add("name", MsgBlankField)
	}
	if strings.TrimSpace(d.Version) == "" {
		fields.Add("version", MsgBlankField)
	} else if !versionPattern.MatchString(d.Version) {
		fields.Add("version", MsgInvalidVersion)
	}
	for _, perm := range d.Permissions {
		if strings.TrimSpace(perm.Codename) == "" {
			fields.Add("permissions", MsgBlankField)
		} else if !codenamePattern.MatchString(perm.Codename) {
			fields.Add("permissions", MsgInvalidCodename)
		}
	}

	return fields.Err()
}

func (d Declaration) codenames() []string {
	names := make([]string, 0, len(d.Permissions))
	for _, perm := range d.Permissions {
		names = append(names, perm.Codename)
	}
	return names
}

// Service performs microservice registration.
type Service struct {
	stores storage.Stores
	sync   *Synchronizer
}

// NewService wires the registration service. sync may not be nil; a
// registration without propagation is not a valid state.
func NewService(stores storage.Stores, sync *Synchronizer) *Service {
	return &Service{stores: stores, sync: sync}
}

// Register makes the credential store consistent with the declaration.
//
// It validates, bulk-upserts the declared permissions by codename,
// resolves their authoritative ids, replaces the microservice document
// keyed by name, and enqueues the group synchronization for the id-set
// difference. The returned channel closes when that background job has
// drained; transports ignore it, tests use it as their readiness poll.
func (s *Service) Register(ctx context.Context, decl Declaration) (<-chan struct{}, error) {
	if err := decl.Validate(); err != nil {
		return nil, err
	}

	declared := make([]storage.Permission, 0, len(decl.Permissions))
	for _, perm := range decl.Permissions {
		declared = append(declared, storage.Permission{
			Codename:    perm.Codename,
			Description: perm.Description,
		})
	}
	if err := s.stores.Permissions.UpsertByCodename(ctx, declared); err != nil {
		return nil, err
	}

	newIDs, err := s.stores.Permissions.IDsByCodenames(ctx, decl.codenames())
	if err != nil {
		return nil, err
	}

	var previousIDs []bson.ObjectID
	previous, err := s.stores.Microservices.FindByName(ctx, decl.Name)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if previous != nil {
		previousIDs = previous.Permissions
	}

	if err := s.stores.Microservices.Replace(ctx, &storage.Microservice{
		Name:        decl.Name,
		Version:     decl.Version,
		Permissions: newIDs,
	}); err != nil {
		return nil, err
	}

	removed := difference(previousIDs, newIDs)
	added := difference(newIDs, previousIDs)

	done := s.sync.Enqueue(Job{
		Microservice: decl.Name,
		Removed:      removed,
		Added:        s.describeAdded(ctx, decl.Name, added),
	})
	return done, nil
}

// describeAdded pairs the added ids with their codenames so the
// synchronizer can evaluate default-group predicates without another
// lookup. A failed lookup is logged and degrades to id-only entries that
// no predicate matches, so the grants are skipped but the retractions in
// the same job still run.
func (s *Service) describeAdded(ctx context.Context, microservice string, added []bson.ObjectID) []storage.Permission {
	if len(added) == 0 {
		return nil
	}
	described, err := s.stores.Permissions.FindByIDs(ctx, added)
	if err != nil {
		s.sync.logger.Error("group sync: describe added permissions",
			zap.String("microservice", microservice),
			zap.Int("added", len(added)),
			zap.Error(err),
		)
	}
	if len(described) == 0 {
		described = make([]storage.Permission, 0, len(added))
		for _, id := range added {
			described = append(described, storage.Permission{ID: id})
		}
	}
	return described
}

func difference(left, right []bson.ObjectID) []bson.ObjectID {
	exclude := make(map[bson.ObjectID]struct{}, len(right))
	for _, id := range right {
		exclude[id] = struct{}{}
	}
	var out []bson.ObjectID
	for _, id := range left {
		if _, found := exclude[id]; !found {
			out = append(out, id)
		}
	}
	return out
}
