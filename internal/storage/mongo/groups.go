package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/openmatchmaking/auth/internal/storage"
)

type groupStore struct {
	coll *mongo.Collection
}

func (g *groupStore) FindByName(ctx context.Context, name string) (*storage.Group, error) {
	var group storage.Group
	err := g.coll.FindOne(
		ctx,
		bson.D{{Key: "name", Value: name}},
		options.FindOne().SetCollation(groupCollation()),
	).Decode(&group)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (g *groupStore) Insert(ctx context.Context, group *storage.Group) error {
	if group.Permissions == nil {
		group.Permissions = []bson.ObjectID{}
	}
	result, err := g.coll.InsertOne(ctx, group)
	if err != nil {
		return err
	}
	if id, ok := result.InsertedID.(bson.ObjectID); ok {
		group.ID = id
	}
	return nil
}

// PermissionIDsForGroups unions permission references server-side with one
// aggregation: $addToSet collects each group's permission list, $reduce
// folds the lists with $setUnion.
func (g *groupStore) PermissionIDsForGroups(ctx context.Context, groupIDs []bson.ObjectID) ([]bson.ObjectID, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "$in", Value: groupIDs}}},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "permission_ids", Value: bson.D{{Key: "$addToSet", Value: "$permissions"}}},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "permission_ids", Value: bson.D{{Key: "$reduce", Value: bson.D{
				{Key: "input", Value: "$permission_ids"},
				{Key: "initialValue", Value: bson.A{}},
				{Key: "in", Value: bson.D{{Key: "$setUnion", Value: bson.A{"$$value", "$$this"}}}},
			}}}},
		}}},
	}

	cursor, err := g.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var results []struct {
		PermissionIDs []bson.ObjectID `bson:"permission_ids"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0].PermissionIDs, nil
}

func (g *groupStore) PullPermissions(ctx context.Context, permissionIDs []bson.ObjectID) error {
	if len(permissionIDs) == 0 {
		return nil
	}
	_, err := g.coll.UpdateMany(
		ctx,
		bson.D{},
		bson.D{{Key: "$pull", Value: bson.D{
			{Key: "permissions", Value: bson.D{{Key: "$in", Value: permissionIDs}}},
		}}},
	)
	return err
}

func (g *groupStore) AddPermissions(ctx context.Context, name string, permissionIDs []bson.ObjectID) error {
	if len(permissionIDs) == 0 {
		return nil
	}
	result, err := g.coll.UpdateOne(
		ctx,
		bson.D{{Key: "name", Value: name}},
		bson.D{{Key: "$addToSet", Value: bson.D{
			{Key: "permissions", Value: bson.D{{Key: "$each", Value: permissionIDs}}},
		}}},
		options.UpdateOne().SetCollation(groupCollation()),
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}
