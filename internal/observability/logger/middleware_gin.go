package logger

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	obscontext "github.com/Heyzerohey/packhey/internal/observability/context"
)

const headerRequestID = "X-Request-Id"

// MiddlewareConfig tunes the gin request logger.
type MiddlewareConfig struct {
	// SkipPaths lists request paths that are never logged (health checks).
	SkipPaths []string
}

// GinMiddleware assigns a request id, logs each request, and masks sensitive headers.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, path := range cfg.SkipPaths {
		skip[path] = struct{}{}
	}

	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(headerRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Writer.Header().Set(headerRequestID, requestID)

		ctx := obscontext.WithRequestID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		if _, ok := skip[c.Request.URL.Path]; ok {
			return
		}

		log := FromContext(c.Request.Context())
		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if auth := c.GetHeader("Authorization"); auth != "" {
			fields = append(fields, zap.String("authorization", MaskAuthorization(auth)))
		}
		if userID := obscontext.UserIDFromContext(c.Request.Context()); userID != "" {
			fields = append(fields, zap.String("pro_user_id", userID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
			log.Warn("http request", fields...)
			return
		}
		log.Info("http request", fields...)
	}
}
