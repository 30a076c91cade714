package handler

import (
	"net/http"
	"testing"

	"github.com/invigilo/invigilo-backend/internal/realtime"
	"github.com/stretchr/testify/assert"
)

func originRequest(origin string) *http.Request {
	req, _ := http.NewRequest("GET", "/ws", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	return req
}

func TestBuildUpgraderOriginCheck(t *testing.T) {
	t.Run("empty list allows everything", func(t *testing.T) {
		up := buildUpgrader(nil)
		assert.True(t, up.CheckOrigin(originRequest("https://anywhere.example.com")))
		assert.True(t, up.CheckOrigin(originRequest("")))
	})

	t.Run("configured list is enforced", func(t *testing.T) {
		up := buildUpgrader([]string{"https://exam.example.com", "http://localhost:5173"})
		assert.True(t, up.CheckOrigin(originRequest("https://exam.example.com")))
		assert.True(t, up.CheckOrigin(originRequest("http://localhost:5173")))
		assert.False(t, up.CheckOrigin(originRequest("https://evil.example.com")))
		assert.False(t, up.CheckOrigin(originRequest("")))
	})

	t.Run("origin matching is case-insensitive", func(t *testing.T) {
		up := buildUpgrader([]string{"https://Exam.Example.com"})
		assert.True(t, up.CheckOrigin(originRequest("https://exam.example.com")))
	})
}

func TestWSKindLimitsCoverEverySendKind(t *testing.T) {
	for _, kind := range []string{
		realtime.KindFrame, realtime.KindAudio, realtime.KindEvent, realtime.KindHeartbeat,
	} {
		limit, ok := wsKindLimits[kind]
		assert.True(t, ok, "no inbound budget for %s", kind)
		assert.Positive(t, limit)
	}
}
