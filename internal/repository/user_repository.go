package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"tlu-support/internal/models"
)

type UserRepository struct {
	collection *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{collection: db.Collection(usersCollection)}
}

func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	_, err := r.collection.InsertOne(ctx, user)
	return duplicateOr(err, "email")
}

func (r *UserRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&user); err != nil {
		return nil, notFoundOr(err, "user")
	}
	return &user, nil
}

func (r *UserRepository) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.collection.FindOne(ctx, bson.M{"email": email}).Decode(&user); err != nil {
		return nil, notFoundOr(err, "user")
	}
	return &user, nil
}

func (r *UserRepository) UpdateUser(ctx context.Context, id string, upd models.UserUpdate) error {
	set := bson.M{}
	if upd.Password != nil {
		set["password"] = *upd.Password
	}
	if upd.ResetRequired != nil {
		set["reset_required"] = *upd.ResetRequired
	}
	if upd.Phone != nil {
		set["phone"] = *upd.Phone
	}
	if upd.Address != nil {
		set["address"] = *upd.Address
	}
	if upd.Avatar != nil {
		set["avatar"] = *upd.Avatar
	}
	if len(set) == 0 {
		return nil
	}

	res, err := r.collection.UpdateByID(ctx, id, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: user", models.ErrNotFound)
	}
	return nil
}
