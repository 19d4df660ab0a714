package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"tlu-support/internal/models"
	"tlu-support/internal/services"
	"tlu-support/internal/utils"
)

type ChatHandler struct {
	chat      *services.ChatService
	lifecycle *services.LifecycleService
	media     *services.MediaService
	log       zerolog.Logger
}

func NewChatHandler(chat *services.ChatService, lifecycle *services.LifecycleService, media *services.MediaService, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, lifecycle: lifecycle, media: media, log: log}
}

type sendMessageRequest struct {
	ConversationID string `json:"conversation_id" validate:"omitempty,max=64"`
	Content        string `json:"content" validate:"max=5000"`
	MsgType        string `json:"msg_type" validate:"omitempty,oneof=TEXT IMAGE FILE SYSTEM_EVENT"`
}

type statusRequest struct {
	Status string `json:"status"`
}

// authorizeSend keeps students out of conversations they do not own.
// Agents may post into any existing conversation.
func authorizeSend(ctx context.Context, chat *services.ChatService, p models.Principal, conversationID string) error {
	if conversationID == "" || p.Role.IsAgent() {
		return nil
	}
	_, err := chat.GetConversation(ctx, p, conversationID)
	return err
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if !bindAndValidate(c, &req) {
		return
	}

	p := utils.GetPrincipal(c)
	ctx := c.Request.Context()
	if err := authorizeSend(ctx, h.chat, p, req.ConversationID); err != nil {
		utils.WriteError(c, err, h.log)
		return
	}

	res, err := h.chat.SendMessage(ctx, p.UserID, services.SendMessageInput{
		ConversationID: req.ConversationID,
		Content:        req.Content,
		MsgType:        models.MessageType(req.MsgType),
	})
	if err != nil {
		utils.WriteError(c, err, h.log)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	c.JSON(status, res)
}

func (h *ChatHandler) Upload(c *gin.Context) {
	kind, err := services.ParseUploadKind(c.PostForm("type"))
	if err != nil {
		utils.WriteError(c, err, h.log)
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		utils.WriteError(c, fmt.Errorf("%w: file is required", models.ErrValidation), h.log)
		return
	}
	f, err := fh.Open()
	if err != nil {
		utils.WriteError(c, fmt.Errorf("%w: cannot read file", models.ErrValidation), h.log)
		return
	}
	defer f.Close()

	res, err := h.media.Upload(c.Request.Context(), kind, fh.Filename, f)
	if err != nil {
		utils.WriteError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *ChatHandler) MyConversations(c *gin.Context) {
	limit, ok := intQuery(c, "limit", services.DefaultConversationLimit)
	if !ok {
		return
	}
	convs, err := h.chat.ListStudentConversations(c.Request.Context(), utils.GetPrincipal(c).UserID, limit)
	if err != nil {
		utils.WriteError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, convs)
}

func (h *ChatHandler) ListConversations(c *gin.Context) {
	limit, ok := intQuery(c, "limit", services.DefaultConversationLimit)
	if !ok {
		return
	}
	convs, err := h.chat.ListConversations(c.Request.Context(), c.Query("status"), limit)
	if err != nil {
		utils.WriteError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, convs)
}

func (h *ChatHandler) GetMessages(c *gin.Context) {
	page, ok := intQuery(c, "page", 1)
	if !ok {
		return
	}
	size, ok := intQuery(c, "size", services.DefaultPageSize)
	if !ok {
		return
	}

	res, err := h.chat.GetMessages(c.Request.Context(), utils.GetPrincipal(c), c.Param("id"), page, size)
	if err != nil {
		utils.WriteError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *ChatHandler) Assign(c *gin.Context) {
	agentID := c.Query("agent_id")
	if agentID == "" {
		utils.WriteError(c, fmt.Errorf("%w: agent_id is required", models.ErrValidation), h.log)
		return
	}

	conv, err := h.lifecycle.Assign(c.Request.Context(), c.Param("id"), agentID)
	if err != nil {
		utils.WriteError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// UpdateStatus takes the target status from the query string, falling back to a JSON body.
func (h *ChatHandler) UpdateStatus(c *gin.Context) {
	raw := c.Query("status")
	if raw == "" {
		var req statusRequest
		if err := c.ShouldBindJSON(&req); err == nil {
			raw = req.Status
		}
	}
	if raw == "" {
		utils.WriteError(c, fmt.Errorf("%w: status is required", models.ErrValidation), h.log)
		return
	}

	status, err := models.ParseChatStatus(raw)
	if err != nil {
		utils.WriteError(c, err, h.log)
		return
	}

	conv, err := h.lifecycle.SetStatus(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		utils.WriteError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// intQuery parses an optional integer query parameter, answering 400 when it is malformed.
func intQuery(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		utils.WriteError(c, fmt.Errorf("%w: %s must be an integer", models.ErrValidation, name), zerolog.Nop())
		return 0, false
	}
	return v, true
}
