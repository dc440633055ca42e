package middleware

import (
	"net/http"

	"civichat/internal/redis"
	"civichat/internal/services"
	"civichat/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

// MessageRateLimitMiddleware caps message sends per user. Applied after
// auth on the message POST route; limiter errors fail open so a redis
// outage does not take messaging down.
func MessageRateLimitMiddleware(limiter *redis.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := services.IdentityFrom(c.Request.Context())
		if err != nil {
			c.Next()
			return
		}

		allowed, err := limiter.AllowMessage(c.Request.Context(), identity.UserID.String())
		if err != nil {
			c.Next()
			return
		}
		if !allowed {
			c.JSON(http.StatusTooManyRequests, httpdto.NewErrorResponse("rate limit exceeded", "RATE_LIMITED"))
			c.Abort()
			return
		}
		c.Next()
	}
}
