package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"user-notifier/internal/model"
)

const DefaultMongoCollection = "user_preferences"

// MongoCollection is the part of *mongo.Collection the store uses.
type MongoCollection interface {
	FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) *mongo.SingleResult
	ReplaceOne(ctx context.Context, filter, replacement any, opts ...options.Lister[options.ReplaceOptions]) (*mongo.UpdateResult, error)
}

// MongoStore keeps one document per user with _id set to the user id.
type MongoStore struct {
	coll   MongoCollection
	client *mongo.Client
}

// NewMongoStore wraps coll. client is only used by Ping.
func NewMongoStore(coll MongoCollection, client *mongo.Client) *MongoStore {
	return &MongoStore{coll: coll, client: client}
}

func NewMongoStoreFromDatabase(db *mongo.Database, collection string) *MongoStore {
	if collection == "" {
		collection = DefaultMongoCollection
	}
	return NewMongoStore(db.Collection(collection), db.Client())
}

func (s *MongoStore) Get(ctx context.Context, userID string) (*model.UserPreferences, error) {
	var prefs model.UserPreferences
	err := s.coll.FindOne(ctx, bson.M{"_id": userID}).Decode(&prefs)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo get %q: %w", userID, err)
	}
	return &prefs, nil
}

func (s *MongoStore) Put(ctx context.Context, prefs *model.UserPreferences) error {
	if err := validate(prefs); err != nil {
		return err
	}

	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": prefs.UserID}, prefs, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo put %q: %w", prefs.UserID, err)
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	if s.client == nil {
		return errors.New("mongo store has no client")
	}
	return s.client.Ping(ctx, nil)
}
