package server

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	headerRequestID     = "X-Request-ID"
	contextRequestIDKey = "request_id"
)

// RequestID propagates the caller's request id, minting one when absent.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(contextRequestIDKey, id)
		c.Writer.Header().Set(headerRequestID, id)
		c.Next()
	}
}
