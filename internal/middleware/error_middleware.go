package middleware

import (
	"civichat/internal/transport/httpdto"
	"civichat/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ErrorHandler logs errors handlers attached to the gin context and
// renders a generic body without leaking internals.
func ErrorHandler(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		if l != nil {
			l.ErrorCtx(c.Request.Context(), "request error: "+err.Error())
		}
		if !c.Writer.Written() {
			c.JSON(c.Writer.Status(), httpdto.NewErrorResponse("request failed", "INTERNAL_ERROR"))
		}
	}
}
