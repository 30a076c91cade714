package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/invigilo/invigilo-backend/internal/config"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/invigilo/invigilo-backend/internal/realtime"
	"github.com/invigilo/invigilo-backend/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allEventTypes = []model.EventType{
	model.EventFaceMissing, model.EventMultipleFaces, model.EventGazeAway,
	model.EventMouthOpen, model.EventPhoneDetected, model.EventNotesDetected,
	model.EventMultiplePersons, model.EventAudioSpeech, model.EventSuspiciousBehavior,
	model.EventTabSwitch, model.EventFullscreenExit, model.EventCopyPaste,
	model.EventIdentityMismatch, model.EventManualFlag,
}

// Every event type in the vocabulary must resolve to a warning message and a
// summary counter; a miss would drop results on the floor at runtime.
func TestEventVocabularyIsClosed(t *testing.T) {
	for _, et := range allEventTypes {
		text, ok := WarningText(et)
		assert.True(t, ok, "no warning text for %s", et)
		assert.NotEmpty(t, text, "empty warning text for %s", et)

		col, ok := repository.CounterColumn(et)
		assert.True(t, ok, "no counter column for %s", et)
		assert.NotEmpty(t, col, "empty counter column for %s", et)
	}

	_, ok := WarningText(model.EventType("NOT_A_THING"))
	assert.False(t, ok)
	_, ok = repository.CounterColumn(model.EventType("NOT_A_THING"))
	assert.False(t, ok)
}

func TestParseClientTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	millis := int64(1770000000000)

	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{"json number", fmt.Sprintf("%d", millis), time.UnixMilli(millis)},
		{"numeric string", fmt.Sprintf("%q", fmt.Sprint(millis)), time.UnixMilli(millis)},
		{"empty", "", now},
		{"non-numeric string", `"yesterday"`, now},
		{"object", `{"ms": 123}`, now},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseClientTimestamp(json.RawMessage(tt.raw), now)
			assert.True(t, tt.want.Equal(got), "want %v, got %v", tt.want, got)
		})
	}
}

func newTestProctoringService(t *testing.T, cfg *config.Config) (*ProctoringService, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	log := zerolog.Nop()
	svc := &ProctoringService{
		rdb:      rdb,
		cfg:      cfg,
		notifier: NewNotificationService(realtime.NewHub(rdb, log), log),
		log:      log,
	}
	return svc, rdb
}

func riskConfig() *config.Config {
	return &config.Config{
		HighRiskThreshold:      0.75,
		CriticalRiskThreshold:  0.90,
		WindowSeconds:          30,
		WindowTTLSeconds:       90,
		MinFramesInWindow:      5,
		CriticalRatioThreshold: 0.70,
	}
}

// fakeSuspender records suspension requests from the risk evaluator.
type fakeSuspender struct {
	calls   []uuid.UUID
	reasons []string
}

func (f *fakeSuspender) Suspend(ctx context.Context, sessionID uuid.UUID, reason string) error {
	f.calls = append(f.calls, sessionID)
	f.reasons = append(f.reasons, reason)
	return nil
}

func TestEvaluateRiskWindowBelowMinimum(t *testing.T) {
	ctx := context.Background()
	svc, rdb := newTestProctoringService(t, riskConfig())
	sessionID := uuid.New()

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.EvaluateRiskWindow(ctx, sessionID, 0.95))
	}

	// Too few frames to judge; the window keeps accumulating.
	frames, err := rdb.ZCard(ctx, config.CacheKey.RiskFramesKey(sessionID)).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(3), frames)
	critical, err := rdb.ZCard(ctx, config.CacheKey.RiskCriticalKey(sessionID)).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(3), critical)
}

func TestEvaluateRiskWindowBelowRatio(t *testing.T) {
	ctx := context.Background()
	svc, rdb := newTestProctoringService(t, riskConfig())
	sessionID := uuid.New()

	// 6 frames, 1 critical: ratio 0.17 stays under the 0.70 trigger.
	require.NoError(t, svc.EvaluateRiskWindow(ctx, sessionID, 0.95))
	for i := 0; i < 5; i++ {
		require.NoError(t, svc.EvaluateRiskWindow(ctx, sessionID, 0.10))
	}

	frames, err := rdb.ZCard(ctx, config.CacheKey.RiskFramesKey(sessionID)).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(6), frames)
	critical, err := rdb.ZCard(ctx, config.CacheKey.RiskCriticalKey(sessionID)).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), critical)
}

func TestEvaluateRiskWindowPrunesOldEntries(t *testing.T) {
	ctx := context.Background()
	svc, rdb := newTestProctoringService(t, riskConfig())
	sessionID := uuid.New()

	// Seed members timestamped well before the window start.
	stale := float64(time.Now().Add(-5*time.Minute).UnixMilli())
	framesKey := config.CacheKey.RiskFramesKey(sessionID)
	for i := 0; i < 4; i++ {
		require.NoError(t, rdb.ZAdd(ctx, framesKey, redis.Z{
			Score:  stale,
			Member: uuid.NewString(),
		}).Err())
	}

	require.NoError(t, svc.EvaluateRiskWindow(ctx, sessionID, 0.10))

	frames, err := rdb.ZCard(ctx, framesKey).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), frames)
}

func TestEvaluateRiskWindowTriggersSuspension(t *testing.T) {
	ctx := context.Background()
	svc, rdb := newTestProctoringService(t, riskConfig())
	suspender := &fakeSuspender{}
	svc.sessions = suspender
	sessionID := uuid.New()

	// Five critical results fill the window and every one of them is
	// critical, so the fifth crosses both thresholds.
	for i := 0; i < 5; i++ {
		require.NoError(t, svc.EvaluateRiskWindow(ctx, sessionID, 0.95))
	}

	require.Len(t, suspender.calls, 1)
	assert.Equal(t, sessionID, suspender.calls[0])
	assert.Contains(t, suspender.reasons[0], "5 of 5")

	// The trigger consumes the window: both keys are gone, so a straggler
	// result starts a fresh count instead of re-suspending.
	frames, err := rdb.Exists(ctx, config.CacheKey.RiskFramesKey(sessionID)).Result()
	require.NoError(t, err)
	assert.Zero(t, frames)
	critical, err := rdb.Exists(ctx, config.CacheKey.RiskCriticalKey(sessionID)).Result()
	require.NoError(t, err)
	assert.Zero(t, critical)

	require.NoError(t, svc.EvaluateRiskWindow(ctx, sessionID, 0.95))
	assert.Len(t, suspender.calls, 1)
}

func TestShouldWarnStudent(t *testing.T) {
	const threshold = 0.75

	assert.True(t, shouldWarnStudent(model.SeverityHigh, 0, threshold))
	assert.True(t, shouldWarnStudent(model.SeverityCritical, 0, threshold))
	assert.False(t, shouldWarnStudent(model.SeverityLow, 0.10, threshold))
	assert.False(t, shouldWarnStudent(model.SeverityMedium, 0.74, threshold))

	// A high risk score warns even when the model labelled it mildly.
	assert.True(t, shouldWarnStudent(model.SeverityMedium, 0.75, threshold))
	assert.True(t, shouldWarnStudent(model.SeverityLow, 0.90, threshold))

	// Threshold zero disables the score path rather than warning on everything.
	assert.False(t, shouldWarnStudent(model.SeverityLow, 0.90, 0))
}

func TestProcessResultRejectsPoison(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestProctoringService(t, riskConfig())

	t.Run("garbage payload", func(t *testing.T) {
		err := svc.ProcessResult(ctx, []byte("not json"))
		assert.ErrorIs(t, err, ErrMalformedResult)
	})

	t.Run("missing session id", func(t *testing.T) {
		body, _ := json.Marshal(map[string]any{"eventType": "FACE_MISSING", "severity": "HIGH"})
		err := svc.ProcessResult(ctx, body)
		assert.ErrorIs(t, err, ErrMalformedResult)
	})

	t.Run("unknown event type", func(t *testing.T) {
		body, _ := json.Marshal(map[string]any{
			"sessionId": uuid.New(), "eventType": "MIND_READING", "severity": "HIGH",
		})
		err := svc.ProcessResult(ctx, body)
		assert.ErrorIs(t, err, ErrUnknownEventType)
	})

	t.Run("unknown severity", func(t *testing.T) {
		body, _ := json.Marshal(map[string]any{
			"sessionId": uuid.New(), "eventType": "FACE_MISSING", "severity": "SPICY",
		})
		err := svc.ProcessResult(ctx, body)
		assert.ErrorIs(t, err, ErrMalformedResult)
	})
}

func TestApplyQuickRules(t *testing.T) {
	ctx := context.Background()
	svc, rdb := newTestProctoringService(t, riskConfig())
	sessionID := uuid.New()

	warnings := rdb.Subscribe(ctx, config.CacheKey.RealtimeChannel(
		realtime.StudentQueue(sessionID, realtime.ChannelWarning)))
	defer warnings.Close()
	_, err := warnings.Receive(ctx)
	require.NoError(t, err)

	receive := func() *redis.Message {
		select {
		case msg := <-warnings.Channel():
			return msg
		case <-time.After(time.Second):
			return nil
		}
	}

	t.Run("tab switches warn at the third occurrence", func(t *testing.T) {
		svc.applyQuickRules(ctx, sessionID, model.BehaviorTabSwitch)
		svc.applyQuickRules(ctx, sessionID, model.BehaviorTabSwitch)
		assert.Nil(t, receive(), "warned too early")

		svc.applyQuickRules(ctx, sessionID, model.BehaviorTabSwitch)
		msg := receive()
		require.NotNil(t, msg, "expected a warning on the third tab switch")

		var frame realtime.ServerFrame
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &frame))
		assert.Equal(t, realtime.FrameMessage, frame.Type)
		assert.Equal(t, realtime.StudentQueue(sessionID, realtime.ChannelWarning), frame.Destination)
	})

	t.Run("fullscreen exit warns immediately", func(t *testing.T) {
		svc.applyQuickRules(ctx, sessionID, model.BehaviorFullscreenExit)
		assert.NotNil(t, receive())
	})

	t.Run("copy paste warns immediately", func(t *testing.T) {
		svc.applyQuickRules(ctx, sessionID, model.BehaviorCopyPaste)
		assert.NotNil(t, receive())
	})

	t.Run("context menu stays silent", func(t *testing.T) {
		svc.applyQuickRules(ctx, sessionID, model.BehaviorContextMenu)
		assert.Nil(t, receive())
	})
}
