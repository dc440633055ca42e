package handler

import (
	"net/http"
	"strconv"
	"time"

	"civichat/internal/services"
	"civichat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type MessageHandler struct {
	service *services.MessageService
}

func NewMessageHandler(service *services.MessageService) *MessageHandler {
	return &MessageHandler{service: service}
}

func (h *MessageHandler) Send(c *gin.Context) {
	identity, err := services.IdentityFrom(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	conversationID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req httpdto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "VALIDATION_FAILED"))
		return
	}

	in := services.SendInput{Content: req.Content, Kind: req.Kind}
	for _, raw := range req.AttachmentIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid attachment id", "VALIDATION_FAILED"))
			return
		}
		in.AttachmentIDs = append(in.AttachmentIDs, id)
	}
	if req.ReplyToID != "" {
		id, err := uuid.Parse(req.ReplyToID)
		if err != nil {
			c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid reply_to_id", "VALIDATION_FAILED"))
			return
		}
		in.ReplyToID = id
	}

	msg, err := h.service.Send(c.Request.Context(), identity.UserID, conversationID, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(msg))
}

func (h *MessageHandler) List(c *gin.Context) {
	identity, err := services.IdentityFrom(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	conversationID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var before time.Time
	if raw := c.Query("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid before", "VALIDATION_FAILED"))
			return
		}
		before = parsed
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	msgs, err := h.service.Fetch(c.Request.Context(), identity.UserID, conversationID, before, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(msgs))
}

func (h *MessageHandler) Edit(c *gin.Context) {
	identity, err := services.IdentityFrom(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	messageID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req httpdto.EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "VALIDATION_FAILED"))
		return
	}

	msg, err := h.service.Edit(c.Request.Context(), identity.UserID, messageID, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(msg))
}

func (h *MessageHandler) Delete(c *gin.Context) {
	identity, err := services.IdentityFrom(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	messageID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), identity.UserID, messageID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"deleted": true}))
}
