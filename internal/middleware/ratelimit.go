package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/invigilo/invigilo-backend/internal/config"
	"github.com/invigilo/invigilo-backend/internal/realtime"
	"github.com/invigilo/invigilo-backend/internal/response"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	loginRateLimit  = 10
	loginRateWindow = time.Minute

	// The REST heartbeat shares the realtime heartbeat budget, keyed per
	// session, so a client cannot dodge the limit by switching transports.
	heartbeatRateLimit  = 20
	heartbeatRateWindow = time.Minute
)

// Limiter counts requests in fixed Redis windows so limits hold across
// replicas. On Redis failure it lets traffic through rather than locking
// everyone out.
type Limiter struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewLimiter creates a new Limiter.
func NewLimiter(rdb *redis.Client, log zerolog.Logger) *Limiter {
	return &Limiter{
		rdb: rdb,
		log: log.With().Str("component", "ratelimit").Logger(),
	}
}

// Allow counts one hit against the key and reports whether it stays within the
// limit. The window starts with the first hit.
func (l *Limiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) bool {
	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		l.log.Error().Err(err).Str("key", key).Msg("Rate-limit counter failed, allowing request")
		return true
	}
	if count == 1 {
		l.rdb.Expire(ctx, key, window)
	}
	return count <= limit
}

// HeartbeatRateLimit caps REST heartbeats per session. Malformed session IDs
// pass through so the handler can reject them with its usual 400.
func (l *Limiter) HeartbeatRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, err := uuid.Parse(c.Param("session_id"))
		if err != nil {
			c.Next()
			return
		}
		key := config.CacheKey.ChannelRateKey(sessionID, realtime.KindHeartbeat)
		if !l.Allow(c.Request.Context(), key, heartbeatRateLimit, heartbeatRateWindow) {
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}

// LoginRateLimit caps credential attempts per client address.
func (l *Limiter) LoginRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := config.CacheKey.LoginRateKey(c.ClientIP())
		if !l.Allow(c.Request.Context(), key, loginRateLimit, loginRateWindow) {
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}
