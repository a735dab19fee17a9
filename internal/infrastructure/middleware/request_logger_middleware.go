package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"bintunet/pkg/logger"
	"bintunet/pkg/utils"
)

const requestIDHeader = "X-Request-ID"

// RequestLoggerMiddleware tags every request with an id and logs its outcome.
func RequestLoggerMiddleware(cl *logger.ContextLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = utils.GenerateRequestID()
		}
		c.Header(requestIDHeader, requestID)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), requestID))

		start := time.Now()
		c.Next()

		cl.LogRequest(c.Request.Context(), c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start).Milliseconds())
	}
}
