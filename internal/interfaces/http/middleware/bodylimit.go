package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/channelsync/backend/internal/interfaces/http/dto"
)

// BodyLimit caps the request body size. Webhook payloads are small; anything
// past the limit is either abuse or a misrouted upload.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge,
				dto.NewErrorResponse(dto.ErrCodeBadRequest, "request body too large"))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
