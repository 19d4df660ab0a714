package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tlu-support/internal/models"
	"tlu-support/internal/realtime"
	"tlu-support/internal/services"
	"tlu-support/internal/utils"
)

const (
	readTimeout     = 60 * time.Second
	readLimit       = 1 << 20
	inflightTimeout = 5 * time.Second
)

type joinRoomPayload struct {
	RoomID string `json:"room_id"`
}

type socketMessagePayload struct {
	ConversationID string `json:"conversation_id" validate:"omitempty,max=64"`
	Content        string `json:"content" validate:"max=5000"`
	SenderID       string `json:"sender_id"`
	MsgType        string `json:"msg_type" validate:"omitempty,oneof=TEXT IMAGE FILE SYSTEM_EVENT"`
}

type typingPayload struct {
	RoomID string `json:"room_id"`
}

// SocketHandler is the websocket gateway: it authenticates the upgrade, registers the
// connection with the hub and dispatches inbound frames.
type SocketHandler struct {
	hub      *realtime.Hub
	chat     *services.ChatService
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewSocketHandler(hub *realtime.Hub, chat *services.ChatService, allowedOrigins []string, log zerolog.Logger) *SocketHandler {
	return &SocketHandler{
		hub:  hub,
		chat: chat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log: log.With().Str("component", "socket").Logger(),
	}
}

// originChecker allows every origin when the list is empty or contains "*".
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

// Handle runs behind AuthMiddleware, so the caller identity is already in the context.
func (h *SocketHandler) Handle(c *gin.Context) {
	p := utils.GetPrincipal(c)

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := realtime.NewConnection(p.UserID, string(p.Role), ws)
	h.hub.Register(conn)
	conn.Start()
	h.log.Debug().Str("user_id", p.UserID).Str("conn_id", conn.ID()).Msg("socket connected")

	defer func() {
		h.hub.Unregister(conn)
		conn.Close()
		h.log.Debug().Str("user_id", p.UserID).Str("conn_id", conn.ID()).Msg("socket disconnected")
	}()

	ws.SetReadLimit(readLimit)
	_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) &&
				!errors.Is(err, websocket.ErrCloseSent) {
				h.log.Debug().Err(err).Str("conn_id", conn.ID()).Msg("socket read failed")
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(readTimeout))

		var frame realtime.InboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.replyError(conn, fmt.Errorf("%w: invalid frame", models.ErrValidation))
			continue
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), inflightTimeout)
		switch frame.Event {
		case realtime.EventJoinRoom:
			h.handleJoin(ctx, conn, p, frame.Data)
		case realtime.EventSendMessage:
			h.handleSend(ctx, conn, p, frame.Data)
		case realtime.EventTyping:
			h.handleTyping(conn, frame.Data)
		default:
			h.replyError(conn, fmt.Errorf("%w: unknown event %q", models.ErrValidation, frame.Event))
		}
		cancel()
	}
}

// handleJoin accepts the caller's own user room or a conversation the caller may read.
func (h *SocketHandler) handleJoin(ctx context.Context, conn *realtime.Connection, p models.Principal, data json.RawMessage) {
	var req joinRoomPayload
	if err := decodePayload(data, &req); err != nil || req.RoomID == "" {
		h.replyError(conn, fmt.Errorf("%w: room_id is required", models.ErrValidation))
		return
	}

	if strings.HasPrefix(req.RoomID, realtime.UserRoom("")) {
		if req.RoomID != realtime.UserRoom(p.UserID) {
			h.replyError(conn, fmt.Errorf("%w: cannot join another user's room", models.ErrForbidden))
			return
		}
	} else if _, err := h.chat.GetConversation(ctx, p, req.RoomID); err != nil {
		h.replyError(conn, err)
		return
	}

	h.hub.Join(conn, req.RoomID)
}

func (h *SocketHandler) handleSend(ctx context.Context, conn *realtime.Connection, p models.Principal, data json.RawMessage) {
	var req socketMessagePayload
	if err := decodePayload(data, &req); err != nil {
		h.replyError(conn, fmt.Errorf("%w: invalid send_message payload", models.ErrValidation))
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		h.replyError(conn, fmt.Errorf("%w: %s", models.ErrValidation, strings.Join(utils.ParseErrors(err), "; ")))
		return
	}
	if req.SenderID != "" && req.SenderID != p.UserID {
		h.replyError(conn, fmt.Errorf("%w: sender_id does not match the authenticated user", models.ErrValidation))
		return
	}
	if err := authorizeSend(ctx, h.chat, p, req.ConversationID); err != nil {
		h.replyError(conn, err)
		return
	}

	res, err := h.chat.SendMessage(ctx, p.UserID, services.SendMessageInput{
		ConversationID: req.ConversationID,
		Content:        req.Content,
		MsgType:        models.MessageType(req.MsgType),
	})
	if err != nil {
		h.replyError(conn, err)
		return
	}

	// The sender follows the conversation from now on. A new conversation already reached
	// it through the user room; otherwise deliver the echo here if it was not a member.
	room := res.Conversation.ID
	if !h.hub.InRoom(conn, room) {
		if !res.Created {
			_ = h.hub.SendTo(conn, realtime.EventNewMessage, res.Message)
		}
		h.hub.Subscribe(conn, room)
	}
}

// handleTyping relays the payload verbatim to the other members of the room.
func (h *SocketHandler) handleTyping(conn *realtime.Connection, data json.RawMessage) {
	var req typingPayload
	if err := decodePayload(data, &req); err != nil || req.RoomID == "" {
		h.replyError(conn, fmt.Errorf("%w: room_id is required", models.ErrValidation))
		return
	}
	if !h.hub.InRoom(conn, req.RoomID) {
		h.replyError(conn, fmt.Errorf("%w: join the room before typing", models.ErrForbidden))
		return
	}
	h.hub.RelayTyping(req.RoomID, conn, data)
}

// replyError sends the error only to the originating connection.
func (h *SocketHandler) replyError(conn *realtime.Connection, err error) {
	name, status, msg := utils.PublicError(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("conn_id", conn.ID()).Msg("socket event failed")
	}
	_ = h.hub.SendTo(conn, realtime.EventError, realtime.ErrorPayload{Type: name, Detail: msg})
}

func decodePayload(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return errors.New("empty payload")
	}
	return json.Unmarshal(data, v)
}
