package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tlu-support/internal/models"
)

type ChatRepository struct {
	conversations *mongo.Collection
	messages      *mongo.Collection
}

func NewChatRepository(db *mongo.Database) *ChatRepository {
	return &ChatRepository{
		conversations: db.Collection(conversationsCollection),
		messages:      db.Collection(messagesCollection),
	}
}

// Conversations

func (r *ChatRepository) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	_, err := r.conversations.InsertOne(ctx, conv)
	return err
}

func (r *ChatRepository) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := r.conversations.FindOne(ctx, bson.M{"_id": id}).Decode(&conv); err != nil {
		return nil, notFoundOr(err, "conversation")
	}
	return &conv, nil
}

// UpdateConversation writes the mutable fields only if the stored version still equals
// conv.Version, then advances conv.Version. A stale version yields ErrConflict.
func (r *ChatRepository) UpdateConversation(ctx context.Context, conv *models.Conversation) error {
	set := bson.M{
		"status":          conv.Status,
		"last_message_at": conv.LastMessageAt,
		"title":           conv.Title,
	}
	if conv.AgentID != nil {
		set["agent_id"] = *conv.AgentID
	}

	res, err := r.conversations.UpdateOne(ctx,
		bson.M{"_id": conv.ID, "version": conv.Version},
		bson.M{"$set": set, "$inc": bson.M{"version": 1}},
	)
	if err != nil {
		return err
	}

	if res.MatchedCount == 0 {
		count, err := r.conversations.CountDocuments(ctx, bson.M{"_id": conv.ID})
		if err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("%w: conversation", models.ErrNotFound)
		}
		return models.ErrConflict
	}

	conv.Version++
	return nil
}

func (r *ChatRepository) ListConversations(ctx context.Context, filter models.ConversationFilter) ([]models.Conversation, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.StudentID != "" {
		query["student_id"] = filter.StudentID
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "last_message_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(filter.Limit))

	cursor, err := r.conversations.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}

	result := []models.Conversation{}
	err = cursor.All(ctx, &result)
	return result, err
}

// Messages

func (r *ChatRepository) InsertMessage(ctx context.Context, msg *models.Message) error {
	_, err := r.messages.InsertOne(ctx, msg)
	return err
}

// ListMessages returns one window of a conversation's messages, newest first, and the total count.
func (r *ChatRepository) ListMessages(ctx context.Context, conversationID string, offset, limit int) ([]models.Message, int64, error) {
	filter := bson.M{"conversation_id": conversationID}

	total, err := r.messages.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := r.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}

	result := []models.Message{}
	if err := cursor.All(ctx, &result); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}
