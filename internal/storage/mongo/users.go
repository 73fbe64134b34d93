package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/openmatchmaking/auth/internal/storage"
)

type userStore struct {
	coll *mongo.Collection
}

func keyAsc(field string) bson.D {
	return bson.D{{Key: field, Value: 1}}
}

func (u *userStore) FindByUsername(ctx context.Context, username string) (*storage.User, error) {
	var user storage.User
	err := u.coll.FindOne(ctx, bson.D{{Key: "username", Value: username}}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (u *userStore) FindByID(ctx context.Context, id bson.ObjectID) (*storage.User, error) {
	var user storage.User
	err := u.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (u *userStore) CountByUsername(ctx context.Context, username string) (int64, error) {
	return u.coll.CountDocuments(ctx, bson.D{{Key: "username", Value: username}})
}

func (u *userStore) Insert(ctx context.Context, user *storage.User) error {
	result, err := u.coll.InsertOne(ctx, user)
	if err != nil {
		return err
	}
	if id, ok := result.InsertedID.(bson.ObjectID); ok {
		user.ID = id
	}
	return nil
}

func (u *userStore) Delete(ctx context.Context, id bson.ObjectID) error {
	result, err := u.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}
