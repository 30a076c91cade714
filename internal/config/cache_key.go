package config

import (
	"fmt"

	"github.com/google/uuid"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SessionPresenceKey marks a session as live; refreshed on every heartbeat.
func (r *CacheKeyStruct) SessionPresenceKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("session:active:%s", sessionID)
}

// RiskFramesKey is the ordered set of all inference results inside the rolling window.
func (r *CacheKeyStruct) RiskFramesKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("session:risk:frames:%s", sessionID)
}

// RiskCriticalKey is the ordered set of critical-risk results inside the rolling window.
func (r *CacheKeyStruct) RiskCriticalKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("session:risk:critical:%s", sessionID)
}

// ShuffledQuestionsKey holds the per-student question order for an exam.
func (r *CacheKeyStruct) ShuffledQuestionsKey(examID, userID uuid.UUID) string {
	return fmt.Sprintf("exam:questions:%s:%s", examID, userID)
}

// RefreshTokenKey indexes the single valid refresh capability per user.
func (r *CacheKeyStruct) RefreshTokenKey(userID uuid.UUID) string {
	return fmt.Sprintf("refresh:%s", userID)
}

// TokenBlacklistKey marks a revoked capability until its original expiry.
func (r *CacheKeyStruct) TokenBlacklistKey(jti string) string {
	return fmt.Sprintf("blacklist:jwt:%s", jti)
}

// LoginRateKey is the counting window for login attempts from one address.
func (r *CacheKeyStruct) LoginRateKey(ip string) string {
	return fmt.Sprintf("ratelimit:login:%s", ip)
}

// ChannelRateKey is the counting window for one inbound realtime kind on one session.
func (r *CacheKeyStruct) ChannelRateKey(sessionID uuid.UUID, kind string) string {
	return fmt.Sprintf("ratelimit:ws:%s:%s", sessionID, kind)
}

// BehaviorCountKey counts browser events of one type for quick-rule decisions.
func (r *CacheKeyStruct) BehaviorCountKey(sessionID uuid.UUID, eventType string) string {
	return fmt.Sprintf("session:behavior:%s:%s", sessionID, eventType)
}

// BehaviorQueue is the list drained by the behaviour persist worker.
func (r *CacheKeyStruct) BehaviorQueue() string {
	return "queue:behavior_events"
}

// RealtimeChannel is the pub/sub channel relaying one destination across nodes.
func (r *CacheKeyStruct) RealtimeChannel(destination string) string {
	return "realtime:" + destination
}

// RealtimePattern matches every relayed destination.
func (r *CacheKeyStruct) RealtimePattern() string {
	return "realtime:*"
}

var CacheKey = NewCacheKeyStruct()
