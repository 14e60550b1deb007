package middleware

import (
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ikkim/delivery-tracker/pkg/logger"
)

const (
	RequestIDHeader = "X-Request-ID"

	requestIDKey = "request_id"
	loggerKey    = "logger"
)

// query parameters never written to the log
var sensitiveParams = []string{"token"}

// LoggingMiddleware tags each request with an id and a request-scoped logger,
// then logs the outcome at a level matching the status code.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)

		log := logger.WithContext(map[string]interface{}{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"ip":         c.ClientIP(),
		})
		c.Set(loggerKey, log)

		// health checks would drown everything else
		healthCheck := c.Request.URL.Path == "/health"
		if !healthCheck {
			log.Debug("Incoming request", map[string]interface{}{
				"user_agent": c.Request.UserAgent(),
				"query":      redactQuery(c.Request.URL.Query()),
			})
		}

		c.Next()

		status := c.Writer.Status()
		fields := map[string]interface{}{
			"status_code": status,
			"latency_ms":  time.Since(start).Milliseconds(),
			"body_size":   c.Writer.Size(),
		}
		if userID, ok := GetUserID(c); ok {
			fields["user_id"] = userID
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		switch {
		case status >= 500:
			log.Error("Request failed", nil, fields)
		case status >= 400:
			log.Warn("Request rejected", fields)
		case healthCheck:
			log.Debug("Request completed", fields)
		default:
			log.Info("Request completed", fields)
		}
	}
}

func redactQuery(values url.Values) string {
	for _, name := range sensitiveParams {
		if values.Has(name) {
			values.Set(name, "REDACTED")
		}
	}
	return values.Encode()
}

// GetLoggerFromContext returns the request-scoped logger, or the global one
// outside a request.
func GetLoggerFromContext(c *gin.Context) *logger.Logger {
	if v, exists := c.Get(loggerKey); exists {
		if l, ok := v.(*logger.Logger); ok {
			return l
		}
	}
	return logger.Get()
}

// GetRequestID returns the id assigned by LoggingMiddleware.
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
