package handler

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/runcup-connect/internal/dto"
	"github.com/prperemyshlev/runcup-connect/internal/service"
	"go.uber.org/zap"
)

// Limiter counts a request against a key
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*service.RateLimitResult, error)
}

// RateLimitMiddleware creates a rate limiting middleware. Requests pass
// when the limiter itself fails.
func RateLimitMiddleware(limiter Limiter, limit int, window time.Duration, keyFunc func(*gin.Context) string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := limiter.Allow(c.Request.Context(), keyFunc(c), limit, window)
		if err != nil {
			logger.Warn("Rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(max(result.Remaining, 0)))

		if !result.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(result.RetryAfter.Seconds()))))
			c.JSON(http.StatusTooManyRequests, dto.ErrorResponse{
				Error:   "Too Many Requests",
				Message: fmt.Sprintf("Rate limit exceeded, try again in %s", result.RetryAfter),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RouteIPKey scopes the limit to the route and the client IP, so login
// attempts do not eat into the connect budget.
func RouteIPKey(c *gin.Context) string {
	return fmt.Sprintf("%s:%s", c.FullPath(), c.ClientIP())
}
