package errors

import (
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Write serializes err as the JSON error response and aborts the handler chain.
func Write(c *gin.Context, err error) {
	apiErr := As(err)
	if apiErr.Kind == KindInternal {
		slog.Error("Request failed", "path", c.FullPath(), "error", err)
	}
	if apiErr.Kind == KindRateLimited {
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(apiErr.RetryAfter)))
	}
	c.AbortWithStatusJSON(apiErr.Status(), ErrorResponse{
		Success:   false,
		ErrorType: apiErr.Type(),
		Message:   apiErr.Message,
		Details:   apiErr.Details,
	})
}
