package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/openmatchmaking/auth/internal/storage"
)

type microserviceStore struct {
	coll *mongo.Collection
}

func (m *microserviceStore) FindByName(ctx context.Context, name string) (*storage.Microservice, error) {
	var ms storage.Microservice
	err := m.coll.FindOne(ctx, bson.D{{Key: "name", Value: name}}).Decode(&ms)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ms, nil
}

// Replace swaps the whole document keyed by name, inserting when absent.
// The permission list is replaced, never merged.
func (m *microserviceStore) Replace(ctx context.Context, microservice *storage.Microservice) error {
	if microservice.Permissions == nil {
		microservice.Permissions = []bson.ObjectID{}
	}
	doc := bson.D{
		{Key: "name", Value: microservice.Name},
		{Key: "version", Value: microservice.Version},
		{Key: "permissions", Value: microservice.Permissions},
	}
	result, err := m.coll.ReplaceOne(
		ctx,
		bson.D{{Key: "name", Value: microservice.Name}},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return err
	}
	if id, ok := result.UpsertedID.(bson.ObjectID); ok {
		microservice.ID = id
	}
	return nil
}
