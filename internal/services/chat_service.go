package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tlu-support/internal/metrics"
	"tlu-support/internal/models"
	"tlu-support/internal/realtime"
)

const (
	DefaultConversationLimit = 20
	MaxConversationLimit     = 100
	DefaultPageSize          = 20
	MaxPageSize              = 100
)

type SendMessageInput struct {
	ConversationID string
	Content        string
	MsgType        models.MessageType
}

type SendMessageResult struct {
	Message      *models.Message      `json:"message"`
	Conversation *models.Conversation `json:"conversation"`
	Created      bool                 `json:"created"`
	Reopened     bool                 `json:"reopened"`
}

// ChatService is the message ingestion pipeline plus the read side of conversations.
type ChatService struct {
	tx            Transactor
	conversations ConversationRepository
	messages      MessageRepository
	users         UserRepository
	fanout        Broadcaster
	notifier      *SupportNotifier
	writeTimeout  time.Duration
	maxRetries    int
	now           func() time.Time
	log           zerolog.Logger
}

type ChatServiceOptions struct {
	WriteTimeout time.Duration
	MaxRetries   int
}

func NewChatService(tx Transactor, conversations ConversationRepository, messages MessageRepository, users UserRepository,
	fanout Broadcaster, notifier *SupportNotifier, opts ChatServiceOptions, log zerolog.Logger) *ChatService {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	return &ChatService{
		tx:            tx,
		conversations: conversations,
		messages:      messages,
		users:         users,
		fanout:        fanout,
		notifier:      notifier,
		writeTimeout:  opts.WriteTimeout,
		maxRetries:    opts.MaxRetries,
		now:           func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		log:           log.With().Str("component", "chat").Logger(),
	}
}

// SendMessage persists a message, creating or reopening its conversation in the same
// transaction, and only then fans it out. The write is detached from the caller's
// cancellation so a dropped client cannot leave it half done.
func (s *ChatService) SendMessage(ctx context.Context, senderID string, in SendMessageInput) (*SendMessageResult, error) {
	if in.MsgType == "" {
		in.MsgType = models.MessageText
	}
	if !in.MsgType.Valid() {
		return nil, fmt.Errorf("%w: unknown message type %q", models.ErrValidation, in.MsgType)
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
	defer cancel()

	var (
		result *SendMessageResult
		sender *models.User
	)
	err := retryOnConflict(s.maxRetries, func() error {
		return s.tx.WithTx(writeCtx, func(ctx context.Context) error {
			var err error
			sender, err = s.users.GetUserByID(ctx, senderID)
			if err != nil {
				return err
			}
			result, err = s.ingest(ctx, sender, in)
			return err
		})
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrValidation) || errors.Is(err, models.ErrConflict) {
			return nil, err
		}
		metrics.IngestFailures.Inc()
		s.log.Error().Err(err).Str("sender_id", senderID).Str("conversation_id", in.ConversationID).Msg("message ingestion rolled back")
		return nil, fmt.Errorf("%w: failed to send message", models.ErrPersistence)
	}

	s.afterCommit(writeCtx, sender, result)
	return result, nil
}

func (s *ChatService) ingest(ctx context.Context, sender *models.User, in SendMessageInput) (*SendMessageResult, error) {
	now := s.now()
	res := &SendMessageResult{}

	var conv *models.Conversation
	if in.ConversationID == "" {
		conv = &models.Conversation{
			ID:            uuid.NewString(),
			Title:         models.DefaultConversationTitle,
			StudentID:     sender.ID,
			Status:        models.StatusPendingAgent,
			CreatedAt:     now,
			LastMessageAt: now,
		}
		if err := s.conversations.CreateConversation(ctx, conv); err != nil {
			return nil, err
		}
		res.Created = true
	} else {
		var err error
		conv, err = s.conversations.GetConversation(ctx, in.ConversationID)
		if err != nil {
			return nil, err
		}
		if conv.Status == models.StatusClosed {
			conv.Status = models.StatusPendingAgent
			res.Reopened = true
		}
	}

	msgID, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	msg := &models.Message{
		ID:             msgID.String(),
		ConversationID: conv.ID,
		SenderID:       sender.ID,
		Content:        in.Content,
		MsgType:        in.MsgType,
		CreatedAt:      now,
	}
	if err := s.messages.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}

	if !res.Created {
		conv.Touch(now)
		if err := s.conversations.UpdateConversation(ctx, conv); err != nil {
			return nil, err
		}
	}

	res.Message = msg
	res.Conversation = conv
	return res, nil
}

// afterCommit runs the side effects of a committed message. None of them can fail the send.
func (s *ChatService) afterCommit(ctx context.Context, sender *models.User, res *SendMessageResult) {
	conv, msg := res.Conversation, res.Message

	metrics.MessagesIngested.WithLabelValues(string(msg.MsgType)).Inc()
	if res.Created {
		metrics.ConversationsCreated.Inc()
	}
	if res.Reopened {
		metrics.Transitions.WithLabelValues(string(models.StatusClosed), string(models.StatusPendingAgent)).Inc()
	}

	if res.Created {
		// nobody has joined the new room yet, so the creator is reached through its user room
		s.fanout.EmitToRooms(realtime.EventNewMessage, msg, conv.ID, realtime.UserRoom(sender.ID))
	} else {
		s.fanout.EmitToRoom(conv.ID, realtime.EventNewMessage, msg)
	}
	if res.Created || res.Reopened {
		change := StatusChange{ConversationID: conv.ID, Status: conv.Status}
		if res.Reopened {
			change.Previous = models.StatusClosed
		}
		s.fanout.EmitToRooms(realtime.EventStatusChange, change, conv.ID, realtime.UserRoom(conv.StudentID))
	}

	if sender.ID == conv.StudentID {
		s.notifier.StudentMessage(ctx, conv, msg)
	}
}

// ListConversations returns conversations ordered by last activity, newest first.
func (s *ChatService) ListConversations(ctx context.Context, status string, limit int) ([]models.Conversation, error) {
	filter := models.ConversationFilter{Limit: limit}
	if status != "" {
		st, err := models.ParseChatStatus(status)
		if err != nil {
			return nil, err
		}
		filter.Status = st
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultConversationLimit
	}
	if filter.Limit > MaxConversationLimit {
		filter.Limit = MaxConversationLimit
	}

	convs, err := s.conversations.ListConversations(ctx, filter)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list conversations")
		return nil, fmt.Errorf("%w: failed to list conversations", models.ErrPersistence)
	}
	return convs, nil
}

// ListStudentConversations returns the caller's own conversations.
func (s *ChatService) ListStudentConversations(ctx context.Context, studentID string, limit int) ([]models.Conversation, error) {
	if limit <= 0 || limit > MaxConversationLimit {
		limit = DefaultConversationLimit
	}
	convs, err := s.conversations.ListConversations(ctx, models.ConversationFilter{StudentID: studentID, Limit: limit})
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list conversations")
		return nil, fmt.Errorf("%w: failed to list conversations", models.ErrPersistence)
	}
	return convs, nil
}

// GetConversation loads a conversation the caller is allowed to see.
func (s *ChatService) GetConversation(ctx context.Context, caller models.Principal, id string) (*models.Conversation, error) {
	conv, err := s.conversations.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.Role.IsAgent() && conv.StudentID != caller.UserID {
		return nil, fmt.Errorf("%w: not a participant of this conversation", models.ErrForbidden)
	}
	return conv, nil
}

// GetMessages pages through a conversation starting from the newest messages.
// Each page is returned in ascending time order.
func (s *ChatService) GetMessages(ctx context.Context, caller models.Principal, conversationID string, page, size int) (*models.MessagePage, error) {
	if page < 1 {
		return nil, fmt.Errorf("%w: page must be >= 1", models.ErrValidation)
	}
	if size < 1 || size > MaxPageSize {
		return nil, fmt.Errorf("%w: size must be between 1 and %d", models.ErrValidation, MaxPageSize)
	}

	if _, err := s.GetConversation(ctx, caller, conversationID); err != nil {
		return nil, err
	}

	items, total, err := s.messages.ListMessages(ctx, conversationID, (page-1)*size, size)
	if err != nil {
		s.log.Error().Err(err).Str("conversation_id", conversationID).Msg("failed to list messages")
		return nil, fmt.Errorf("%w: failed to load messages", models.ErrPersistence)
	}

	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}

	return &models.MessagePage{Total: total, Page: page, Size: size, Items: items}, nil
}
