package app

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type SeenToucher interface {
	TouchUserSeen(ctx context.Context, userID string) error
}

// TouchLastSeen bumps last_seen_at at most once per throttle window per member.
func TouchLastSeen(members SeenToucher, rdb redis.Cmdable, throttle time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := CurrentUserID(c)
		if uid == "" {
			c.Next()
			return
		}

		key := "lendshelf:lastseen:" + uid
		if ok, _ := rdb.SetNX(c.Request.Context(), key, "1", throttle).Result(); ok {
			_ = members.TouchUserSeen(c.Request.Context(), uid) // best effort
		}
		c.Next()
	}
}
