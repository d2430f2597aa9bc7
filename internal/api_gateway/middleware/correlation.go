package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/giftcert-ledger/internal/platform/correlation"
)

const (
	// CorrelationIDHeader is read from the request and echoed on the response.
	CorrelationIDHeader = correlation.Header

	// CorrelationIDKey is the gin context key holding the id.
	CorrelationIDKey = "correlation_id"

	maxCorrelationIDLength = 128
)

// CorrelationID adopts the caller's correlation id, or mints one, and puts it
// on the request context. From there it reaches service and ledger log lines
// and the headers of any event published while serving the request.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationIDHeader)
		if id == "" || len(id) > maxCorrelationIDLength {
			id = correlation.NewID()
		}

		c.Header(CorrelationIDHeader, id)
		c.Set(CorrelationIDKey, id)
		c.Request = c.Request.WithContext(correlation.WithID(c.Request.Context(), id))

		c.Next()
	}
}

// GetCorrelationID returns the id set by CorrelationID, or "".
func GetCorrelationID(c *gin.Context) string {
	if id := c.GetString(CorrelationIDKey); id != "" {
		return id
	}
	if c.Request != nil {
		return correlation.ID(c.Request.Context())
	}
	return ""
}
