package handler

import (
	"net/http"
	"strconv"

	"civichat/internal/services"
	"civichat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type CallHandler struct {
	service *services.CallService
}

func NewCallHandler(service *services.CallService) *CallHandler {
	return &CallHandler{service: service}
}

func (h *CallHandler) History(c *gin.Context) {
	identity, err := services.IdentityFrom(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	conversationID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	calls, total, err := h.service.History(c.Request.Context(), identity.UserID, conversationID, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]httpdto.CallResponse, 0, len(calls))
	for _, cl := range calls {
		items = append(items, httpdto.ToCallResponse(cl))
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.Paginated[httpdto.CallResponse]{
		Items: items, Total: total, Page: page, Limit: limit,
	}))
}

// JoinToken hands out the media bridge credential for a ringing or
// active call the caller participates in.
func (h *CallHandler) JoinToken(c *gin.Context) {
	identity, err := services.IdentityFrom(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	callID, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	token, err := h.service.JoinToken(c.Request.Context(), identity.UserID, callID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(token))
}
