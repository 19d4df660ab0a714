package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"tlu-support/internal/models"
)

// SupportEvent tells agents (and any other subscriber of the channel) that a student wrote.
type SupportEvent struct {
	Type           string             `json:"type"`
	ConversationID string             `json:"conversation_id"`
	StudentID      string             `json:"student_id"`
	Status         models.ChatStatus  `json:"status"`
	Preview        string             `json:"preview"`
	MsgType        models.MessageType `json:"msg_type"`
	SentAt         time.Time          `json:"sent_at"`
}

const previewLength = 120

type SupportNotifier struct {
	publisher EventPublisher
	channel   string
	log       zerolog.Logger
}

func NewSupportNotifier(publisher EventPublisher, channel string, log zerolog.Logger) *SupportNotifier {
	return &SupportNotifier{
		publisher: publisher,
		channel:   channel,
		log:       log.With().Str("component", "support_notifier").Logger(),
	}
}

// StudentMessage publishes the event; failures are logged and swallowed.
func (n *SupportNotifier) StudentMessage(ctx context.Context, conv *models.Conversation, msg *models.Message) {
	if n == nil || n.publisher == nil {
		return
	}

	preview := msg.Content
	if r := []rune(preview); len(r) > previewLength {
		preview = string(r[:previewLength])
	}

	event := SupportEvent{
		Type:           "support_message",
		ConversationID: conv.ID,
		StudentID:      conv.StudentID,
		Status:         conv.Status,
		Preview:        preview,
		MsgType:        msg.MsgType,
		SentAt:         msg.CreatedAt,
	}
	if err := n.publisher.Publish(ctx, n.channel, event); err != nil {
		n.log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("failed to publish support event")
	}
}
