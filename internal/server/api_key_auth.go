package server

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	obscontext "github.com/Heyzerohey/packhey/internal/observability/context"
)

const (
	contextAuthTypeKey  = "auth_type"
	contextProUserIDKey = "pro_user_id"
	contextAPIKeyIDKey  = "api_key_id"
)

// HashAPIKey derives the stored lookup hash for a raw API key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}

// APIKeyRequired authenticates the Pro API. User identity is derived solely
// from the api_keys table.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		hash := HashAPIKey(parts[1])
		now := time.Now().UTC()

		var record struct {
			ID        snowflake.ID `gorm:"column:id"`
			ProUserID snowflake.ID `gorm:"column:pro_user_id"`
			KeyHash   string       `gorm:"column:key_hash"`
		}

		if err := s.db.WithContext(c.Request.Context()).Raw(
			`SELECT id, pro_user_id, key_hash
			 FROM api_keys
			 WHERE key_hash = ?
			   AND is_active = TRUE
			   AND (expires_at IS NULL OR expires_at > ?)
			 LIMIT 1`,
			hash,
			now,
		).Scan(&record).Error; err != nil {
			AbortWithError(c, err)
			return
		}

		if record.ID == 0 || subtle.ConstantTimeCompare([]byte(record.KeyHash), []byte(hash)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := c.Request.Context()
		ctx = context.WithValue(ctx, contextAuthTypeKey, "api_key")
		ctx = context.WithValue(ctx, contextProUserIDKey, int64(record.ProUserID))
		ctx = context.WithValue(ctx, contextAPIKeyIDKey, int64(record.ID))
		ctx = obscontext.WithUserID(ctx, record.ProUserID.String())
		ctx = obscontext.WithActor(ctx, "api_key", record.ID.String())

		c.Set(contextProUserIDKey, int64(record.ProUserID))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// proUserID returns the authenticated Pro user, or zero when the request is
// unauthenticated.
func proUserID(c *gin.Context) snowflake.ID {
	if raw, ok := c.Get(contextProUserIDKey); ok {
		if value, ok := raw.(int64); ok {
			return snowflake.ID(value)
		}
	}
	return 0
}
