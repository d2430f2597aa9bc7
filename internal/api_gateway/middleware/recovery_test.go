package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giftcert-ledger/internal/api_gateway/handler"
	"github.com/giftcert-ledger/internal/logger"
)

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("PanicBecomesEnvelopedInternalError", func(t *testing.T) {
		var logs bytes.Buffer
		router := gin.New()
		router.Use(Recovery(logger.New(&logs, "error")))
		router.Use(CorrelationID())
		router.POST("/certificates/:id/charges", func(c *gin.Context) {
			panic("ledger exploded")
		})

		req := httptest.NewRequest(http.MethodPost, "/certificates/c1/charges", nil)
		req.Header.Set(CorrelationIDHeader, "req-77")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)

		var body handler.Response
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		require.NotNil(t, body.Error)
		assert.Equal(t, "INTERNAL_SERVER_ERROR", body.Error.Code)
		assert.Equal(t, "An internal server error occurred", body.Error.Message)
		assert.Equal(t, "req-77", body.CorrelationID)
		assert.Nil(t, body.Data)

		out := logs.String()
		assert.Contains(t, out, `"msg":"Panic recovered"`)
		assert.Contains(t, out, `"error":"ledger exploded"`)
		assert.Contains(t, out, `"correlation_id":"req-77"`)
		assert.Contains(t, out, `"path":"/certificates/c1/charges"`)
		assert.Contains(t, out, `"stack":`)
	})

	t.Run("PanicAfterResponseStartedKeepsStatus", func(t *testing.T) {
		var logs bytes.Buffer
		router := gin.New()
		router.Use(Recovery(logger.New(&logs, "error")))
		router.GET("/partial", func(c *gin.Context) {
			c.String(http.StatusOK, "partial")
			panic("late failure")
		})

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/partial", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "partial", rr.Body.String())
		assert.Contains(t, logs.String(), `"error":"late failure"`)
	})

	t.Run("NoPanicNoEffect", func(t *testing.T) {
		var logs bytes.Buffer
		router := gin.New()
		router.Use(Recovery(logger.New(&logs, "info")))
		router.GET("/health", func(c *gin.Context) {
			c.String(http.StatusOK, "OK")
		})

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, logs.String())
	})
}
