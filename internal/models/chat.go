package models

import (
	"fmt"
	"time"
)

type ChatStatus string

const (
	StatusOpen            ChatStatus = "OPEN"
	StatusPendingAgent    ChatStatus = "PENDING_AGENT"
	StatusAgentProcessing ChatStatus = "AGENT_PROCESSING"
	StatusClosed          ChatStatus = "CLOSED"
)

// chatTransitions lists the allowed targets for each status. Self-transitions are
// always allowed and handled in CanTransitionTo.
var chatTransitions = map[ChatStatus][]ChatStatus{
	StatusOpen:            {StatusPendingAgent, StatusAgentProcessing, StatusClosed},
	StatusPendingAgent:    {StatusOpen, StatusAgentProcessing, StatusClosed},
	StatusAgentProcessing: {StatusPendingAgent, StatusClosed},
	StatusClosed:          {StatusPendingAgent, StatusOpen},
}

func (s ChatStatus) Valid() bool {
	_, ok := chatTransitions[s]
	return ok
}

func (s ChatStatus) CanTransitionTo(next ChatStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	for _, allowed := range chatTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func ParseChatStatus(raw string) (ChatStatus, error) {
	s := ChatStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrValidation, raw)
	}
	return s, nil
}

type MessageType string

const (
	MessageText        MessageType = "TEXT"
	MessageImage       MessageType = "IMAGE"
	MessageFile        MessageType = "FILE"
	MessageSystemEvent MessageType = "SYSTEM_EVENT"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageFile, MessageSystemEvent:
		return true
	}
	return false
}

const DefaultConversationTitle = "Student support"

type Conversation struct {
	ID            string     `bson:"_id" json:"id"`
	Title         string     `bson:"title,omitempty" json:"title,omitempty"`
	StudentID     string     `bson:"student_id" json:"student_id"`
	AgentID       *string    `bson:"agent_id,omitempty" json:"agent_id"`
	Status        ChatStatus `bson:"status" json:"status"`
	CreatedAt     time.Time  `bson:"created_at" json:"created_at"`
	LastMessageAt time.Time  `bson:"last_message_at" json:"last_message_at"`
	// Version is bumped on every committed update and used for optimistic concurrency.
	Version int64 `bson:"version" json:"-"`
}

// Touch moves LastMessageAt forward; it never moves backwards.
func (c *Conversation) Touch(at time.Time) {
	if at.After(c.LastMessageAt) {
		c.LastMessageAt = at
	}
}

type Message struct {
	ID             string      `bson:"_id" json:"id"`
	ConversationID string      `bson:"conversation_id" json:"conversation_id"`
	SenderID       string      `bson:"sender_id" json:"sender_id"`
	Content        string      `bson:"content" json:"content"`
	MsgType        MessageType `bson:"msg_type" json:"msg_type"`
	CreatedAt      time.Time   `bson:"created_at" json:"created_at"`
}

type ConversationFilter struct {
	Status    ChatStatus
	StudentID string
	Limit     int
}

type MessagePage struct {
	Total int64     `json:"total"`
	Page  int       `json:"page"`
	Size  int       `json:"size"`
	Items []Message `json:"items"`
}
