package statusapi

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDKey = "request_id"

// requestID ensures every request carries an X-Request-ID, accepting a
// client-supplied one if present and well-formed, minting a fresh UUID
// otherwise.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if l := len(id); l < 1 || l > 64 {
			id = uuid.New().String()
		}

		c.Header("X-Request-ID", id)
		c.Set(requestIDKey, id)
		c.Next()
	}
}
