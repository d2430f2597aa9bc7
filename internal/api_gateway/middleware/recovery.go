package middleware

import (
	"log/slog"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/giftcert-ledger/internal/api_gateway/handler"
)

// Recovery turns a panic in a handler into a logged 500 carrying the
// standard error envelope and the request's correlation id.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			logger.ErrorContext(c.Request.Context(), "Panic recovered",
				"error", r,
				"stack", string(debug.Stack()),
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)

			c.Abort()
			if c.Writer.Written() {
				return
			}
			handler.RespondInternalError(c)
		}()

		c.Next()
	}
}
