package mongo

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/openmatchmaking/auth/internal/storage"
)

type permissionStore struct {
	coll *mongo.Collection
}

// UpsertByCodename writes every declared permission in a single bulk
// operation; a failed batch leaves no permission attributed to the calling
// microservice.
func (p *permissionStore) UpsertByCodename(ctx context.Context, permissions []storage.Permission) error {
	if len(permissions) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(permissions))
	for _, perm := range permissions {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.D{{Key: "codename", Value: perm.Codename}}).
			SetUpdate(bson.D{
				{Key: "$set", Value: bson.D{{Key: "description", Value: perm.Description}}},
				{Key: "$setOnInsert", Value: bson.D{{Key: "codename", Value: perm.Codename}}},
			}).
			SetUpsert(true))
	}

	_, err := p.coll.BulkWrite(ctx, models)
	return err
}

func (p *permissionStore) IDsByCodenames(ctx context.Context, codenames []string) ([]bson.ObjectID, error) {
	if len(codenames) == 0 {
		return nil, nil
	}

	cursor, err := p.coll.Find(ctx, bson.D{
		{Key: "codename", Value: bson.D{{Key: "$in", Value: codenames}}},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []storage.Permission
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	ids := make([]bson.ObjectID, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
	}
	return ids, nil
}

func (p *permissionStore) FindByIDs(ctx context.Context, ids []bson.ObjectID) ([]storage.Permission, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	cursor, err := p.coll.Find(ctx, bson.D{
		{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []storage.Permission
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// CodenamesByIDs maps permission ids to codenames in one aggregation
// round-trip with set semantics.
func (p *permissionStore) CodenamesByIDs(ctx context.Context, ids []bson.ObjectID) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "codenames", Value: bson.D{{Key: "$addToSet", Value: "$codename"}}},
		}}},
	}

	cursor, err := p.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var results []struct {
		Codenames []string `bson:"codenames"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0].Codenames, nil
}
