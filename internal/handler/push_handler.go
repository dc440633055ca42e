package handler

import (
	"net/http"

	"civichat/internal/push"
	"civichat/internal/services"
	"civichat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type PushHandler struct {
	notifier *push.Notifier
}

func NewPushHandler(notifier *push.Notifier) *PushHandler {
	return &PushHandler{notifier: notifier}
}

func (h *PushHandler) Subscribe(c *gin.Context) {
	identity, err := services.IdentityFrom(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	var req httpdto.PushSubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", "VALIDATION_FAILED"))
		return
	}

	if err := h.notifier.Subscribe(c.Request.Context(), identity.UserID, req.Endpoint, req.Keys.P256dh, req.Keys.Auth); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, httpdto.NewSuccessResponse(gin.H{"subscribed": true}))
}
