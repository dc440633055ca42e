package handler

import (
	"net/http"
	"strconv"

	"civichat/internal/services"
	"civichat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ConversationHandler struct {
	service *services.ConversationService
}

func NewConversationHandler(service *services.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

func (h *ConversationHandler) List(c *gin.Context) {
	identity, err := services.IdentityFrom(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	convs, total, err := h.service.List(c.Request.Context(), identity.UserID, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]httpdto.ConversationResponse, 0, len(convs))
	for _, conv := range convs {
		items = append(items, httpdto.ToConversationResponse(conv))
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.Paginated[httpdto.ConversationResponse]{
		Items: items, Total: total, Page: page, Limit: limit,
	}))
}

func (h *ConversationHandler) Get(c *gin.Context) {
	identity, err := services.IdentityFrom(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	conversationID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	conv, err := h.service.Get(c.Request.Context(), identity.UserID, conversationID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ToConversationResponse(conv)))
}

func (h *ConversationHandler) CreateDirect(c *gin.Context) {
	identity, err := services.IdentityFrom(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	var req httpdto.CreateDirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "VALIDATION_FAILED"))
		return
	}
	peerID, err := uuid.Parse(req.PeerID)
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid peer_id", "VALIDATION_FAILED"))
		return
	}

	conv, err := h.service.CreateDirect(c.Request.Context(), identity.UserID, peerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(httpdto.ToConversationResponse(conv)))
}

func (h *ConversationHandler) CreateGroup(c *gin.Context) {
	identity, err := services.IdentityFrom(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	var req httpdto.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "VALIDATION_FAILED"))
		return
	}

	memberIDs := make([]uuid.UUID, 0, len(req.MemberIDs))
	for _, raw := range req.MemberIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid member id", "VALIDATION_FAILED"))
			return
		}
		memberIDs = append(memberIDs, id)
	}

	conv, err := h.service.CreateGroup(c.Request.Context(), identity.UserID, req.Name, req.Description, memberIDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(httpdto.ToConversationResponse(conv)))
}

func (h *ConversationHandler) MarkRead(c *gin.Context) {
	identity, err := services.IdentityFrom(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	conversationID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.service.MarkRead(c.Request.Context(), identity.UserID, conversationID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"marked": true}))
}
