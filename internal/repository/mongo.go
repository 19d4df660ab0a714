package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tlu-support/internal/models"
)

const (
	usersCollection         = "users"
	studentsCollection      = "students"
	agentsCollection        = "agents"
	conversationsCollection = "conversations"
	messagesCollection      = "messages"
)

// MongoTransactor runs a function inside a multi-document transaction.
// Repositories called with the context passed to fn take part in the transaction.
type MongoTransactor struct {
	client *mongo.Client
}

func NewMongoTransactor(client *mongo.Client) *MongoTransactor {
	return &MongoTransactor{client: client}
}

func (t *MongoTransactor) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := t.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// EnsureIndexes creates the unique and ordering indexes the repositories rely on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		usersCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		studentsCollection: {
			{Keys: bson.D{{Key: "student_code", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "academic_status", Value: 1}}},
		},
		conversationsCollection: {
			{Keys: bson.D{{Key: "last_message_at", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "last_message_at", Value: -1}}},
			{Keys: bson.D{{Key: "student_id", Value: 1}}},
		},
		messagesCollection: {
			{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
		},
	}

	for name, idx := range indexes {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}

func notFoundOr(err error, what string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%w: %s", models.ErrNotFound, what)
	}
	return err
}

func duplicateOr(err error, what string) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s", models.ErrDuplicate, what)
	}
	return err
}
