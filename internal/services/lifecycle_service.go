package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"tlu-support/internal/metrics"
	"tlu-support/internal/models"
	"tlu-support/internal/realtime"
)

const AgentJoinedNotice = "Agent has joined the chat"

type StatusChange struct {
	ConversationID string            `json:"conversation_id"`
	Status         models.ChatStatus `json:"status"`
	Previous       models.ChatStatus `json:"previous,omitempty"`
}

// LifecycleService owns conversation status changes made by agents. Writes are
// optimistic: a stale revision is re-read and re-applied up to maxRetries times.
type LifecycleService struct {
	conversations ConversationRepository
	users         UserRepository
	fanout        Broadcaster
	maxRetries    int
	log           zerolog.Logger
}

func NewLifecycleService(conversations ConversationRepository, users UserRepository, fanout Broadcaster, maxRetries int, log zerolog.Logger) *LifecycleService {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &LifecycleService{
		conversations: conversations,
		users:         users,
		fanout:        fanout,
		maxRetries:    maxRetries,
		log:           log.With().Str("component", "lifecycle").Logger(),
	}
}

// Assign puts the agent in charge of the conversation and moves it to AGENT_PROCESSING.
// Re-assigning overwrites the agent and announces again. Assigning a CLOSED conversation
// reopens it directly; that move is allowed here and nowhere else.
func (s *LifecycleService) Assign(ctx context.Context, conversationID, agentID string) (*models.Conversation, error) {
	agent, err := s.users.GetUserByID(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if !agent.Role.IsAgent() {
		return nil, fmt.Errorf("%w: user %s cannot be assigned to conversations", models.ErrValidation, agentID)
	}

	var previous models.ChatStatus
	conv, err := s.mutate(ctx, conversationID, func(conv *models.Conversation) (bool, error) {
		if conv.Status != models.StatusClosed && !conv.Status.CanTransitionTo(models.StatusAgentProcessing) {
			return false, fmt.Errorf("%w: cannot assign a conversation in status %s", models.ErrValidation, conv.Status)
		}
		previous = conv.Status
		id := agent.ID
		conv.AgentID = &id
		conv.Status = models.StatusAgentProcessing
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.recordTransition(previous, conv.Status)
	s.fanout.EmitToRoom(conv.ID, realtime.EventSystemNotification, realtime.Notice{
		Content: AgentJoinedNotice,
		Type:    "SYSTEM",
		RoomID:  conv.ID,
		UserID:  agent.ID,
	})
	if previous != conv.Status {
		change := StatusChange{ConversationID: conv.ID, Status: conv.Status, Previous: previous}
		s.fanout.EmitToRooms(realtime.EventStatusChange, change, conv.ID, realtime.UserRoom(conv.StudentID))
	}
	return conv, nil
}

// SetStatus applies an explicit status change; only transitions in the table are accepted.
func (s *LifecycleService) SetStatus(ctx context.Context, conversationID string, status models.ChatStatus) (*models.Conversation, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", models.ErrValidation, status)
	}

	var previous models.ChatStatus
	conv, err := s.mutate(ctx, conversationID, func(conv *models.Conversation) (bool, error) {
		if !conv.Status.CanTransitionTo(status) {
			return false, fmt.Errorf("%w: cannot change status from %s to %s", models.ErrValidation, conv.Status, status)
		}
		previous = conv.Status
		if conv.Status == status {
			return false, nil
		}
		conv.Status = status
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.recordTransition(previous, conv.Status)
	change := StatusChange{ConversationID: conv.ID, Status: conv.Status, Previous: previous}
	s.fanout.EmitToRooms(realtime.EventStatusChange, change, conv.ID, realtime.UserRoom(conv.StudentID))
	return conv, nil
}

// mutate loads the conversation, applies fn and writes it back under a revision check.
// fn returning false means there is nothing to write.
func (s *LifecycleService) mutate(ctx context.Context, id string, fn func(*models.Conversation) (bool, error)) (*models.Conversation, error) {
	var conv *models.Conversation
	err := retryOnConflict(s.maxRetries, func() error {
		var err error
		conv, err = s.conversations.GetConversation(ctx, id)
		if err != nil {
			return err
		}
		changed, err := fn(conv)
		if err != nil || !changed {
			return err
		}
		return s.conversations.UpdateConversation(ctx, conv)
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrValidation) || errors.Is(err, models.ErrConflict) {
			return nil, err
		}
		s.log.Error().Err(err).Str("conversation_id", id).Msg("conversation update failed")
		return nil, fmt.Errorf("%w: failed to update conversation", models.ErrPersistence)
	}
	return conv, nil
}

func (s *LifecycleService) recordTransition(from, to models.ChatStatus) {
	if from != to {
		metrics.Transitions.WithLabelValues(string(from), string(to)).Inc()
	}
}

// retryOnConflict runs fn until it stops failing with ErrConflict, at most attempts times.
func retryOnConflict(attempts int, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if !errors.Is(err, models.ErrConflict) {
			return err
		}
		metrics.WriteConflicts.Inc()
	}
	return fmt.Errorf("%w: gave up after %d attempts", err, attempts)
}
