package services

import (
	"context"
	"io"
	"time"

	"tlu-support/internal/models"
)

// Transactor runs fn as one atomic unit; repositories called with the ctx passed to fn
// take part in it.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, id string, upd models.UserUpdate) error
}

type StudentRepository interface {
	CreateStudent(ctx context.Context, student *models.Student) error
	GetStudent(ctx context.Context, userID string) (*models.Student, error)
	FindStudentByCode(ctx context.Context, code string) (*models.Student, error)
	SearchStudents(ctx context.Context, filter models.StudentFilter) (*models.StudentPage, error)
	CreateAgent(ctx context.Context, agent *models.Agent) error
	GetAgent(ctx context.Context, userID string) (*models.Agent, error)
}

type ConversationRepository interface {
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	UpdateConversation(ctx context.Context, conv *models.Conversation) error
	ListConversations(ctx context.Context, filter models.ConversationFilter) ([]models.Conversation, error)
}

type MessageRepository interface {
	InsertMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, conversationID string, offset, limit int) ([]models.Message, int64, error)
}

// Broadcaster is the fanout seen from the services. Delivery is best effort.
type Broadcaster interface {
	EmitToRoom(roomID, event string, payload interface{})
	EmitToUser(userID, event string, payload interface{})
	// EmitToRooms reaches each connection at most once across all the rooms.
	EmitToRooms(event string, payload interface{}, roomIDs ...string)
}

type EventPublisher interface {
	Publish(ctx context.Context, channel string, payload interface{}) error
}

type Cache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) bool
}

type ObjectStorage interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
}

type EmailService interface {
	SendTemporaryPassword(to, password string) error
}
