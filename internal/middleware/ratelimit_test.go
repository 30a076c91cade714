package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLimiterAllow(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	limiter := NewLimiter(rdb, zerolog.Nop())

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow(ctx, "ratelimit:test", 3, time.Minute), "hit %d", i+1)
	}
	assert.False(t, limiter.Allow(ctx, "ratelimit:test", 3, time.Minute))

	// A fresh window starts once the key expires.
	mr.FastForward(2 * time.Minute)
	assert.True(t, limiter.Allow(ctx, "ratelimit:test", 3, time.Minute))
}

func TestHeartbeatRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	limiter := NewLimiter(rdb, zerolog.Nop())
	r := gin.New()
	r.POST("/sessions/:session_id/heartbeat", limiter.HeartbeatRateLimit(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	hit := func(id string) int {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/sessions/"+id+"/heartbeat", nil)
		r.ServeHTTP(w, req)
		return w.Code
	}

	sessionID := uuid.NewString()
	for i := 0; i < heartbeatRateLimit; i++ {
		assert.Equal(t, http.StatusOK, hit(sessionID), "hit %d", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, hit(sessionID))

	// Budgets are per session.
	assert.Equal(t, http.StatusOK, hit(uuid.NewString()))

	// Malformed IDs fall through so the handler returns its usual 400.
	assert.Equal(t, http.StatusOK, hit("not-a-uuid"))
}

func TestLimiterFailsOpen(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	limiter := NewLimiter(rdb, zerolog.Nop())
	mr.Close()

	// Redis being down must not lock everyone out.
	assert.True(t, limiter.Allow(ctx, "ratelimit:test", 1, time.Minute))
	assert.True(t, limiter.Allow(ctx, "ratelimit:test", 1, time.Minute))
}
